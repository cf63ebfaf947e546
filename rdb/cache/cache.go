// Package cache 以编译后 SQL 的 SHA-256 为键缓存查询返回的原始行
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hatlonely/ifxorm/cfg"
	"github.com/hatlonely/ifxorm/kv/store"
	"github.com/hatlonely/ifxorm/log"
	"github.com/hatlonely/ifxorm/log/logger"
	"github.com/hatlonely/ifxorm/rdb"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL 查询构建器默认的缓存有效期
const DefaultTTL = 60 * time.Second

// DefaultOverflowMaxAge 溢出条目在内存中保留的时间
const DefaultOverflowMaxAge = 10 * time.Minute

// Key hex(sha256(sql))，字面量不同的两条语句是不同的键
func Key(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}

// Entry 缓存的原始行和写入时间
type Entry struct {
	Rows     []rdb.Row `msgpack:"rows" json:"rows"`
	StoredAt time.Time `msgpack:"storedAt" json:"storedAt"`
}

type Options struct {
	// memory 无容量上限；freecache 有容量上限，写满后淘汰旧条目；redis 多个进程共享
	Type      string                      `cfg:"type" def:"freecache" validate:"oneof=memory freecache redis"`
	FreeCache store.FreeCacheStoreOptions `cfg:"freecache"`
	Redis     store.RedisStoreOptions     `cfg:"redis"`

	// MaxAge 后端保留条目的时间，0 表示由后端自行淘汰；有效期判断使用查询的 TTL
	MaxAge time.Duration `cfg:"maxAge"`

	// OverflowMaxAge 后端因单条过大拒绝的条目改存进程内存，保留这么久
	OverflowMaxAge time.Duration `cfg:"overflowMaxAge" def:"10m"`

	Observable *store.ObservableStoreOptions `cfg:"observable"`

	Registerer prometheus.Registerer `cfg:"-"`
	Logger     logger.Logger         `cfg:"-"`
}

// Stats 自创建以来的累计次数
type Stats struct {
	Hits   int64
	Misses int64
	Stale  int64
	// Overflow 因单条过大写入溢出存储的次数
	Overflow int64
}

// ResultCache 可以被多个查询构建器共享
type ResultCache struct {
	mu    sync.Mutex
	store store.Store[string, *Entry]
	// overflow 保存后端拒绝的过大条目
	overflow       store.Store[string, *Entry]
	overflowMaxAge time.Duration
	group          singleflight.Group
	now            func() time.Time
	maxAge         time.Duration
	logger         logger.Logger

	hits, misses, stale, overflows atomic.Int64
	hitCounter, missCounter        prometheus.Counter
	staleCounter, overflowCounter  prometheus.Counter
}

type Option func(*ResultCache)

// WithClock 替换时钟，用于测试有效期
func WithClock(now func() time.Time) Option {
	return func(c *ResultCache) { c.now = now }
}

func WithLogger(l logger.Logger) Option {
	return func(c *ResultCache) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMaxAge(d time.Duration) Option {
	return func(c *ResultCache) { c.maxAge = d }
}

// WithOverflowMaxAge 溢出条目的保留时间，非正数时使用 DefaultOverflowMaxAge
func WithOverflowMaxAge(d time.Duration) Option {
	return func(c *ResultCache) {
		if d > 0 {
			c.overflowMaxAge = d
		}
	}
}

// WithRegisterer 把命中、未命中、过期计数注册到 registerer
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(c *ResultCache) {
		if registerer != nil {
			registerer.MustRegister(c.hitCounter, c.missCounter, c.staleCounter, c.overflowCounter)
		}
	}
}

func NewResultCacheWithOptions(options *Options) (*ResultCache, error) {
	if options == nil {
		options = &Options{}
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "result cache defaults")
	}

	storeOptions := &store.Options{
		Type:       options.Type,
		FreeCache:  options.FreeCache,
		Redis:      options.Redis,
		Observable: options.Observable,
	}
	s, err := store.NewStoreWithOptions[string, *Entry](storeOptions)
	if err != nil {
		return nil, errors.WithMessage(err, "create result cache store failed")
	}

	return NewResultCache(s,
		WithMaxAge(options.MaxAge),
		WithOverflowMaxAge(options.OverflowMaxAge),
		WithLogger(options.Logger),
		WithRegisterer(options.Registerer),
	), nil
}

func NewResultCache(s store.Store[string, *Entry], opts ...Option) *ResultCache {
	c := &ResultCache{
		store:          s,
		overflow:       store.NewSyncMapStore[string, *Entry](),
		overflowMaxAge: DefaultOverflowMaxAge,
		now:            time.Now,
		logger:         log.Default(),
		hitCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ifxorm_result_cache_hits_total",
			Help: "Total number of result cache hits",
		}),
		missCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ifxorm_result_cache_misses_total",
			Help: "Total number of result cache misses",
		}),
		staleCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ifxorm_result_cache_stale_total",
			Help: "Total number of result cache entries bypassed because they expired",
		}),
		overflowCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ifxorm_result_cache_overflow_total",
			Help: "Total number of result cache entries kept in memory because the backend rejected their size",
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup 条目存在且 now - StoredAt < ttl 时返回行的副本；过期条目被跳过但不删除
func (c *ResultCache) Lookup(ctx context.Context, sql string, ttl time.Duration) ([]rdb.Row, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(ctx, sql, ttl)
}

func (c *ResultCache) lookup(ctx context.Context, sql string, ttl time.Duration) ([]rdb.Row, bool) {
	key := Key(sql)
	entry, err := c.store.Get(ctx, key)
	if errors.Is(err, store.ErrKeyNotFound) {
		entry, err = c.overflow.Get(ctx, key)
	}
	if err != nil || entry == nil {
		if err != nil && !errors.Is(err, store.ErrKeyNotFound) {
			c.logger.WarnContext(ctx, "result cache get failed", "error", err)
		}
		c.misses.Add(1)
		c.missCounter.Inc()
		return nil, false
	}
	if c.now().Sub(entry.StoredAt) >= ttl {
		c.stale.Add(1)
		c.staleCounter.Inc()
		c.misses.Add(1)
		c.missCounter.Inc()
		return nil, false
	}
	c.hits.Add(1)
	c.hitCounter.Inc()
	return cloneRows(entry.Rows), true
}

// Store 以当前时间写入，覆盖已有条目
func (c *ResultCache) Store(ctx context.Context, sql string, rows []rdb.Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.put(ctx, sql, rows)
}

// put 后端拒绝过大的条目时改写入溢出存储，同一个键只在其中一处保留
func (c *ResultCache) put(ctx context.Context, sql string, rows []rdb.Row) error {
	key := Key(sql)
	entry := &Entry{Rows: cloneRows(rows), StoredAt: c.now()}
	err := c.store.Set(ctx, key, entry, store.WithExpiration(c.maxAge))
	if err == nil {
		return c.overflow.Del(ctx, key)
	}
	if !errors.Is(err, store.ErrEntryTooLarge) {
		return errors.WithMessage(err, "result cache set failed")
	}

	if err := c.store.Del(ctx, key); err != nil {
		return errors.WithMessage(err, "result cache del failed")
	}
	maxAge := c.overflowMaxAge
	if c.maxAge > 0 && c.maxAge < maxAge {
		maxAge = c.maxAge
	}
	c.overflows.Add(1)
	c.overflowCounter.Inc()
	c.logger.DebugContext(ctx, "result cache entry kept in memory", "rows", len(rows), "reason", err.Error())
	return c.overflow.Set(ctx, key, entry, store.WithExpiration(maxAge))
}

// Fetch 命中时直接返回；未命中时调用 load 并写入缓存，相同 SQL 的并发未命中只调用一次 load。
// 第二个返回值表示是否命中。写入失败只记录日志
func (c *ResultCache) Fetch(ctx context.Context, sql string, ttl time.Duration, load func(ctx context.Context) ([]rdb.Row, error)) ([]rdb.Row, bool, error) {
	if rows, ok := c.Lookup(ctx, sql, ttl); ok {
		return rows, true, nil
	}

	v, err, _ := c.group.Do(Key(sql), func() (any, error) {
		rows, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Store(ctx, sql, rows); err != nil {
			c.logger.WarnContext(ctx, "result cache store failed", "error", err)
		}
		return rows, nil
	})
	if err != nil {
		return nil, false, err
	}
	return cloneRows(v.([]rdb.Row)), false, nil
}

func (c *ResultCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Stale: c.stale.Load(), Overflow: c.overflows.Load()}
}

func (c *ResultCache) Close() error {
	c.overflow.Close()
	return c.store.Close()
}

// cloneRows 深拷贝到行一级，并把反序列化得到的整数统一为 int64
func cloneRows(rows []rdb.Row) []rdb.Row {
	out := make([]rdb.Row, len(rows))
	for i, row := range rows {
		r := make(rdb.Row, len(row))
		for k, v := range row {
			r[k] = normalize(v)
		}
		out[i] = r
	}
	return out
}

func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		if n <= 1<<63-1 {
			return int64(n)
		}
	case float32:
		return float64(n)
	case json.Number:
		// json 序列化的后端
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return v
}
