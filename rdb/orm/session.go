// Package orm 把连接、模型注册表、结果缓存、渲染缓存和写操作组合为一个会话
package orm

import (
	"context"
	"time"

	"github.com/hatlonely/ifxorm/cfg"
	"github.com/hatlonely/ifxorm/log"
	"github.com/hatlonely/ifxorm/log/logger"
	"github.com/hatlonely/ifxorm/rdb"
	"github.com/hatlonely/ifxorm/rdb/cache"
	"github.com/hatlonely/ifxorm/rdb/introspect"
	"github.com/hatlonely/ifxorm/rdb/model"
	"github.com/hatlonely/ifxorm/rdb/persist"
	"github.com/hatlonely/ifxorm/rdb/query"
	"github.com/hatlonely/ifxorm/rdb/render"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type Options struct {
	SQL rdb.SQLOptions `cfg:"sql"`
	// 非空时为每条语句记录 span 和指标
	Observable *rdb.ObservableOptions `cfg:"observable"`

	Cache cache.Options `cfg:"cache"`
	// DisableCache 所有查询都直接访问数据库
	DisableCache bool `cfg:"disableCache"`
	// TTL 查询构建器默认的缓存有效期
	TTL time.Duration `cfg:"ttl" def:"60s"`

	Render   render.Options        `cfg:"render"`
	Snapshot model.SnapshotOptions `cfg:"snapshot"`

	// 为空时使用 log.Default()
	Logger *logger.SLogOptions `cfg:"logger"`

	Registerer prometheus.Registerer `cfg:"-" validate:"-"`
}

// Session 持有一个连接以及依附于它的模型注册表和缓存，不是并发安全的
type Session struct {
	conn        rdb.Connection
	registry    *model.Registry
	cache       *cache.ResultCache
	renderCache *render.Cache
	snapshots   *model.SnapshotStore
	executor    *persist.Executor
	logger      logger.Logger
	ttl         time.Duration
}

type Option func(*Session)

func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCache nil 表示不使用结果缓存
func WithCache(c *cache.ResultCache) Option {
	return func(s *Session) { s.cache = c }
}

func WithRenderCache(c *render.Cache) Option {
	return func(s *Session) { s.renderCache = c }
}

func WithRegistry(r *model.Registry) Option {
	return func(s *Session) { s.registry = r }
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Session) { s.ttl = ttl }
}

// LoadOptions 从配置文件读取会话配置
func LoadOptions(filename string) (*Options, error) {
	options := &Options{}
	if err := cfg.Load(filename, options); err != nil {
		return nil, errors.WithMessagef(err, "load %s failed", filename)
	}
	return options, nil
}

func NewSessionWithOptions(options *Options) (*Session, error) {
	if err := cfg.SetDefaults(options); err != nil {
		return nil, err
	}
	if err := cfg.Validate(options); err != nil {
		return nil, err
	}

	l := log.Default()
	if options.Logger != nil {
		slog, err := logger.NewSLogWithOptions(options.Logger)
		if err != nil {
			return nil, errors.WithMessage(err, "create logger failed")
		}
		l = slog
	}

	sqlConn, err := rdb.NewSQLConnectionWithOptions(&options.SQL)
	if err != nil {
		return nil, errors.WithMessage(err, "open connection failed")
	}
	var conn rdb.Connection = sqlConn
	if options.Observable != nil {
		observable := *options.Observable
		if observable.Registerer == nil {
			observable.Registerer = options.Registerer
		}
		if observable.Logger == nil {
			observable.Logger = l
		}
		conn = rdb.NewObservableConnection(sqlConn, &observable)
	}

	var resultCache *cache.ResultCache
	if !options.DisableCache {
		cacheOptions := options.Cache
		cacheOptions.Logger = l
		if cacheOptions.Registerer == nil {
			cacheOptions.Registerer = options.Registerer
		}
		if resultCache, err = cache.NewResultCacheWithOptions(&cacheOptions); err != nil {
			_ = sqlConn.Close()
			return nil, err
		}
	}

	renderOptions := options.Render
	renderOptions.Logger = l
	renderCache, err := render.NewCacheWithOptions(&renderOptions)
	if err != nil {
		_ = sqlConn.Close()
		return nil, err
	}

	snapshots, err := model.NewSnapshotStoreWithOptions(&options.Snapshot)
	if err != nil {
		_ = sqlConn.Close()
		return nil, err
	}
	registryOptions := []model.RegistryOption{model.WithLogger(l)}
	if snapshots != nil {
		registryOptions = append(registryOptions, model.WithSnapshotStore(snapshots))
	}

	s := NewSession(conn,
		WithLogger(l),
		WithCache(resultCache),
		WithRenderCache(renderCache),
		WithRegistry(model.NewRegistry(introspect.NewInformix(conn), registryOptions...)),
		WithTTL(options.TTL),
	)
	s.snapshots = snapshots
	return s, nil
}

// NewSession 默认使用 Informix 系统表反射模型，不启用结果缓存
func NewSession(conn rdb.Connection, opts ...Option) *Session {
	s := &Session{
		conn:   conn,
		logger: log.Default(),
		ttl:    cache.DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = model.NewRegistry(introspect.NewInformix(conn), model.WithLogger(s.logger))
	}
	s.executor = persist.New(conn, persist.WithLogger(s.logger))
	return s
}

func (s *Session) Connection() rdb.Connection { return s.conn }

func (s *Session) Registry() *model.Registry { return s.registry }

func (s *Session) Cache() *cache.ResultCache { return s.cache }

// Register 手动声明的模型，优先于反射
func (s *Session) Register(m *model.Model) {
	s.registry.Register(m)
}

// Model 返回表的模型，第一次使用时反射并记住
func (s *Session) Model(ctx context.Context, table string) (*model.Model, error) {
	return s.registry.Get(ctx, table)
}

// Refresh 丢弃已记住的模型，重新反射
func (s *Session) Refresh(ctx context.Context, table string) (*model.Model, error) {
	return s.registry.Refresh(ctx, table)
}

func (s *Session) Tables() []string {
	return s.registry.Tables()
}

// Query 以表名开始一个查询
func (s *Session) Query(ctx context.Context, table string) (*query.Builder, error) {
	m, err := s.Model(ctx, table)
	if err != nil {
		return nil, err
	}
	return s.From(m), nil
}

// From 以模型开始一个查询，构建器共享会话的缓存和注册表
func (s *Session) From(m *model.Model) *query.Builder {
	return query.New(s.conn, m,
		query.WithRegistry(s.registry),
		query.WithCache(s.cache),
		query.WithRenderCache(s.renderCache),
		query.WithLogger(s.logger),
		query.WithTTL(s.ttl),
	)
}

// NewEntity 创建 table 的实体，用于 Add
func (s *Session) NewEntity(ctx context.Context, table string, values map[string]any) (*model.Entity, error) {
	m, err := s.Model(ctx, table)
	if err != nil {
		return nil, err
	}
	return m.NewEntity(values)
}

func (s *Session) Add(ctx context.Context, e *model.Entity, confirm bool) error {
	return s.executor.Add(ctx, e, confirm)
}

func (s *Session) BulkAdd(ctx context.Context, m *model.Model, entities []*model.Entity, confirm bool) error {
	return s.executor.BulkAdd(ctx, m, entities, confirm)
}

func (s *Session) Update(ctx context.Context, e *model.Entity, where map[string]any, confirm bool) error {
	return s.executor.Update(ctx, e, where, confirm)
}

func (s *Session) Delete(ctx context.Context, table string, where map[string]any, confirm bool) error {
	m, err := s.Model(ctx, table)
	if err != nil {
		return err
	}
	return s.executor.Delete(ctx, m, where, confirm)
}

// CreateTable 执行建表语句并注册模型
func (s *Session) CreateTable(ctx context.Context, m *model.Model) error {
	if err := s.executor.CreateTable(ctx, m); err != nil {
		return err
	}
	s.registry.Register(m)
	return nil
}

// Describe 表格形式的字段列表
func (s *Session) Describe(ctx context.Context, table string) (string, error) {
	m, err := s.Model(ctx, table)
	if err != nil {
		return "", err
	}
	return render.Table(model.DescribeHeaders, m.Describe()), nil
}

// Close 依次关闭缓存和连接，返回第一个错误
func (s *Session) Close() error {
	var errs []error
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	if s.renderCache != nil {
		errs = append(errs, s.renderCache.Close())
	}
	if s.snapshots != nil {
		errs = append(errs, s.snapshots.Close())
	}
	if closer, ok := s.conn.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	for _, err := range errs {
		if err != nil {
			return errors.Wrap(err, "close session failed")
		}
	}
	return nil
}
