package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hatlonely/ifxorm/kv/store"
	"github.com/hatlonely/ifxorm/log"
	"github.com/hatlonely/ifxorm/rdb"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const query = "SELECT t1.id, t1.nome FROM clientes AS t1"

func TestKey(t *testing.T) {
	Convey("Key", t, func() {
		So(Key("SELECT 1"), ShouldHaveLength, 64)
		So(Key("SELECT 1"), ShouldEqual, Key("SELECT 1"))
		So(Key("SELECT * FROM t WHERE a = '1'"), ShouldNotEqual, Key("SELECT * FROM t WHERE a = '2'"))
	})
}

func testResultCache(newCache func(now func() time.Time) *ResultCache) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := newCache(clk.Now)
	rows := []rdb.Row{{"id": int64(1), "nome": "Ana"}, {"id": int64(2), "nome": "Bia"}}

	Convey("未写入时未命中", func() {
		_, ok := c.Lookup(ctx, query, DefaultTTL)
		So(ok, ShouldBeFalse)
		So(c.Stats().Misses, ShouldEqual, 1)
	})

	Convey("有效期内命中，过期后跳过", func() {
		So(c.Store(ctx, query, rows), ShouldBeNil)

		clk.Advance(59 * time.Second)
		got, ok := c.Lookup(ctx, query, DefaultTTL)
		So(ok, ShouldBeTrue)
		So(got, ShouldHaveLength, 2)
		So(got[0]["id"], ShouldEqual, int64(1))
		So(got[1]["nome"], ShouldEqual, "Bia")

		clk.Advance(time.Second)
		_, ok = c.Lookup(ctx, query, DefaultTTL)
		So(ok, ShouldBeFalse)
		So(c.Stats(), ShouldResemble, Stats{Hits: 1, Misses: 1, Stale: 1})

		Convey("重新写入覆盖过期条目", func() {
			So(c.Store(ctx, query, rows[:1]), ShouldBeNil)
			got, ok := c.Lookup(ctx, query, DefaultTTL)
			So(ok, ShouldBeTrue)
			So(got, ShouldHaveLength, 1)
		})
	})

	Convey("每次命中返回独立的行", func() {
		So(c.Store(ctx, query, rows), ShouldBeNil)
		first, _ := c.Lookup(ctx, query, DefaultTTL)
		first[0]["nome"] = "changed"
		second, _ := c.Lookup(ctx, query, DefaultTTL)
		So(second[0]["nome"], ShouldEqual, "Ana")
		So(rows[0]["nome"], ShouldEqual, "Ana")
	})

	Convey("Fetch", func() {
		var calls int
		load := func(ctx context.Context) ([]rdb.Row, error) {
			calls++
			return rows, nil
		}

		got, hit, err := c.Fetch(ctx, query, DefaultTTL, load)
		So(err, ShouldBeNil)
		So(hit, ShouldBeFalse)
		So(got, ShouldHaveLength, 2)

		_, hit, err = c.Fetch(ctx, query, DefaultTTL, load)
		So(err, ShouldBeNil)
		So(hit, ShouldBeTrue)
		So(calls, ShouldEqual, 1)

		clk.Advance(DefaultTTL)
		_, hit, _ = c.Fetch(ctx, query, DefaultTTL, load)
		So(hit, ShouldBeFalse)
		So(calls, ShouldEqual, 2)
	})

	Convey("Fetch 加载失败不写入", func() {
		boom := errors.New("boom")
		_, _, err := c.Fetch(ctx, query, DefaultTTL, func(ctx context.Context) ([]rdb.Row, error) {
			return nil, boom
		})
		So(err, ShouldEqual, boom)
		_, ok := c.Lookup(ctx, query, DefaultTTL)
		So(ok, ShouldBeFalse)
	})
}

func TestResultCache(t *testing.T) {
	Convey("memory", t, func() {
		testResultCache(func(now func() time.Time) *ResultCache {
			return NewResultCache(store.NewSyncMapStore[string, *Entry](), WithClock(now), WithLogger(log.Nop()))
		})
	})

	Convey("freecache", t, func() {
		testResultCache(func(now func() time.Time) *ResultCache {
			c, err := NewResultCacheWithOptions(&Options{Type: "freecache", FreeCache: store.FreeCacheStoreOptions{Size: 1024 * 1024}})
			So(err, ShouldBeNil)
			WithClock(now)(c)
			return c
		})
	})

	Convey("redis", t, func() {
		mr := miniredis.RunT(t)
		testResultCache(func(now func() time.Time) *ResultCache {
			mr.FlushAll()
			c, err := NewResultCacheWithOptions(&Options{
				Type:  "redis",
				Redis: store.RedisStoreOptions{Endpoint: mr.Addr(), Prefix: "test:"},
			})
			So(err, ShouldBeNil)
			WithClock(now)(c)
			return c
		})
	})
}

func TestResultCacheConcurrency(t *testing.T) {
	Convey("并发未命中只加载一次", t, func() {
		c := NewResultCache(store.NewSyncMapStore[string, *Entry](), WithLogger(log.Nop()))
		var calls atomic.Int64
		release := make(chan struct{})
		load := func(ctx context.Context) ([]rdb.Row, error) {
			calls.Add(1)
			<-release
			return []rdb.Row{{"id": int64(1)}}, nil
		}

		var wg sync.WaitGroup
		started := make(chan struct{}, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				started <- struct{}{}
				rows, _, err := c.Fetch(context.Background(), query, DefaultTTL, load)
				if err == nil && len(rows) == 1 {
					rows[0]["id"] = int64(99)
				}
			}()
		}
		for i := 0; i < 8; i++ {
			<-started
		}
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		So(calls.Load(), ShouldBeBetweenOrEqual, 1, 8)
		rows, ok := c.Lookup(context.Background(), query, DefaultTTL)
		So(ok, ShouldBeTrue)
		So(rows[0]["id"], ShouldEqual, int64(1))
	})
}

func manyRows(n int) []rdb.Row {
	rows := make([]rdb.Row, n)
	for i := range rows {
		rows[i] = rdb.Row{"id": int64(i), "nome": fmt.Sprintf("cliente %d", i), "status": "ATIVO"}
	}
	return rows
}

func TestOverflow(t *testing.T) {
	ctx := context.Background()

	Convey("默认配置缓存大结果", t, func() {
		c, err := NewResultCacheWithOptions(nil)
		So(err, ShouldBeNil)
		defer c.Close()
		WithLogger(log.Nop())(c)

		var loads atomic.Int64
		load := func(ctx context.Context) ([]rdb.Row, error) {
			loads.Add(1)
			return manyRows(3000), nil
		}
		for i := 0; i < 3; i++ {
			rows, _, err := c.Fetch(ctx, query, DefaultTTL, load)
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 3000)
			So(rows[2999]["nome"], ShouldEqual, "cliente 2999")
		}
		So(loads.Load(), ShouldEqual, 1)
		So(c.Stats(), ShouldResemble, Stats{Hits: 2, Misses: 1, Overflow: 1})
		So(testutil.ToFloat64(c.overflowCounter), ShouldEqual, 1)

		Convey("变小后回到后端", func() {
			So(c.Store(ctx, query, manyRows(2)), ShouldBeNil)
			rows, ok := c.Lookup(ctx, query, DefaultTTL)
			So(ok, ShouldBeTrue)
			So(rows, ShouldHaveLength, 2)
			So(c.Stats().Overflow, ShouldEqual, 1)
		})
	})

	Convey("默认配置的小结果写入 freecache", t, func() {
		c, err := NewResultCacheWithOptions(nil)
		So(err, ShouldBeNil)
		defer c.Close()

		So(c.Store(ctx, query, manyRows(20)), ShouldBeNil)
		rows, ok := c.Lookup(ctx, query, DefaultTTL)
		So(ok, ShouldBeTrue)
		So(rows, ShouldHaveLength, 20)
		So(c.Stats().Overflow, ShouldEqual, 0)
		_, ok = c.store.(*store.FreeCacheStore[string, *Entry])
		So(ok, ShouldBeTrue)
	})

	Convey("溢出条目按 MaxAge 过期", t, func() {
		c, err := NewResultCacheWithOptions(&Options{
			FreeCache: store.FreeCacheStoreOptions{Size: 1024 * 1024},
			MaxAge:    time.Millisecond,
		})
		So(err, ShouldBeNil)
		defer c.Close()
		WithLogger(log.Nop())(c)

		So(c.Store(ctx, query, manyRows(500)), ShouldBeNil)
		So(c.Stats().Overflow, ShouldEqual, 1)
		time.Sleep(5 * time.Millisecond)
		_, ok := c.Lookup(ctx, query, time.Hour)
		So(ok, ShouldBeFalse)
	})
}

func TestMetrics(t *testing.T) {
	Convey("prometheus 计数", t, func() {
		registry := prometheus.NewRegistry()
		c := NewResultCache(store.NewSyncMapStore[string, *Entry](), WithRegisterer(registry), WithLogger(log.Nop()))
		ctx := context.Background()

		c.Lookup(ctx, query, DefaultTTL)
		So(c.Store(ctx, query, nil), ShouldBeNil)
		c.Lookup(ctx, query, DefaultTTL)
		c.Lookup(ctx, query, 0)

		So(testutil.ToFloat64(c.hitCounter), ShouldEqual, 1)
		So(testutil.ToFloat64(c.missCounter), ShouldEqual, 2)
		So(testutil.ToFloat64(c.staleCounter), ShouldEqual, 1)

		families, err := registry.Gather()
		So(err, ShouldBeNil)
		names := map[string]bool{}
		for _, f := range families {
			names[f.GetName()] = true
		}
		So(names["ifxorm_result_cache_hits_total"], ShouldBeTrue)
		So(names["ifxorm_result_cache_misses_total"], ShouldBeTrue)
		So(names["ifxorm_result_cache_stale_total"], ShouldBeTrue)
		So(names["ifxorm_result_cache_overflow_total"], ShouldBeTrue)
	})

	Convey("未知类型", t, func() {
		_, err := NewResultCacheWithOptions(&Options{Type: "boltdbx"})
		So(err, ShouldNotBeNil)
	})
}
