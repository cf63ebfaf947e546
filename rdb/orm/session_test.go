package orm

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hatlonely/ifxorm/kv/store"
	"github.com/hatlonely/ifxorm/log"
	"github.com/hatlonely/ifxorm/rdb"
	"github.com/hatlonely/ifxorm/rdb/cache"
	"github.com/hatlonely/ifxorm/rdb/model"
	"github.com/hatlonely/ifxorm/rdb/rdbtest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func catalogConn() *rdbtest.Conn {
	return rdbtest.New().
		Respond("FROM systables t JOIN syscolumns c",
			rdb.Row{"name": "id", "coltype": int64(262), "length": int64(4), "position": int64(1), "pk": int64(1)},
			rdb.Row{"name": "nome", "coltype": int64(13), "length": int64(60), "position": int64(2), "pk": int64(0)},
		).
		Respond("FROM sysconstraints c",
			rdb.Row{"constraint_name": "r1", "from_table": "pedido", "to_table": "clientes", "from_column": "cliente_id", "to_column": "id"},
		).
		Respond("FROM clientes AS t1", rdb.Row{"id": int64(1), "nome": "Ana"})
}

func countContaining(statements []string, s string) int {
	n := 0
	for _, stmt := range statements {
		if strings.Contains(stmt, s) {
			n++
		}
	}
	return n
}

func TestSession(t *testing.T) {
	ctx := context.Background()

	Convey("Session", t, func() {
		conn := catalogConn()
		rc := cache.NewResultCache(store.NewSyncMapStore[string, *cache.Entry](), cache.WithLogger(log.Nop()))
		s := NewSession(conn, WithLogger(log.Nop()), WithCache(rc))

		Convey("第一次使用时反射模型", func() {
			m, err := s.Model(ctx, "Clientes")
			So(err, ShouldBeNil)
			So(m.FieldNames(), ShouldResemble, []string{"id", "nome"})
			So(m.PrimaryKey(), ShouldResemble, []string{"id"})
			r, ok := m.Relation("pedidos")
			So(ok, ShouldBeTrue)
			So(r.Kind, ShouldEqual, model.OneToMany)

			again, err := s.Model(ctx, "clientes")
			So(err, ShouldBeNil)
			So(again, ShouldPointTo, m)
			So(countContaining(conn.Queries(), "syscolumns"), ShouldEqual, 1)
			So(s.Tables(), ShouldResemble, []string{"clientes"})
		})

		Convey("查询共享结果缓存", func() {
			for i := 0; i < 2; i++ {
				b, err := s.Query(ctx, "clientes")
				So(err, ShouldBeNil)
				result, err := b.Where("nome", "Ana").All(ctx)
				So(err, ShouldBeNil)
				So(result.Len(), ShouldEqual, 1)
			}
			So(countContaining(conn.Queries(), "FROM clientes AS t1"), ShouldEqual, 1)
			So(rc.Stats().Hits, ShouldEqual, 1)
		})

		Convey("Refresh 重新反射", func() {
			m, _ := s.Model(ctx, "clientes")
			fresh, err := s.Refresh(ctx, "clientes")
			So(err, ShouldBeNil)
			So(fresh, ShouldNotPointTo, m)
			So(countContaining(conn.Queries(), "syscolumns"), ShouldEqual, 2)
		})

		Convey("写操作", func() {
			e, err := s.NewEntity(ctx, "clientes", map[string]any{"nome": "Bia"})
			So(err, ShouldBeNil)
			So(s.Add(ctx, e, true), ShouldBeNil)
			So(s.Update(ctx, e, map[string]any{"nome": "Ana"}, true), ShouldBeNil)
			So(s.Delete(ctx, "clientes", map[string]any{"id": 1}, true), ShouldBeNil)
			m, _ := s.Model(ctx, "clientes")
			So(s.BulkAdd(ctx, m, []*model.Entity{e}, true), ShouldBeNil)

			var writes []string
			for _, stmt := range conn.Statements() {
				if !strings.HasPrefix(stmt, "SELECT") {
					writes = append(writes, stmt)
				}
			}
			So(writes, ShouldResemble, []string{
				"BEGIN WORK", "INSERT INTO clientes (nome) VALUES ('Bia')", "COMMIT WORK",
				"BEGIN WORK", "UPDATE clientes SET nome = 'Bia' WHERE nome = 'Ana'", "COMMIT WORK",
				"BEGIN WORK", "DELETE FROM clientes WHERE id = '1'", "COMMIT WORK",
				"BEGIN WORK", "INSERT INTO clientes (nome) VALUES ('Bia')", "COMMIT WORK",
			})
		})

		Convey("CreateTable 注册模型", func() {
			m := model.NewModel("notas", model.IntField("id", model.PrimaryKey(), model.NotNull()))
			So(s.CreateTable(ctx, m), ShouldBeNil)
			got, err := s.Model(ctx, "notas")
			So(err, ShouldBeNil)
			So(got, ShouldPointTo, m)
			So(conn.Statements(), ShouldResemble, []string{"CREATE TABLE notas (id INT NOT NULL, PRIMARY KEY (id))"})
		})

		Convey("Describe", func() {
			out, err := s.Describe(ctx, "clientes")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "Nullable")
			So(out, ShouldContainSubstring, "nome")
		})

		Convey("未知的表", func() {
			_, err := NewSession(rdbtest.New(), WithLogger(log.Nop())).Query(ctx, "nada")
			So(err, ShouldNotBeNil)
		})

		Convey("Close", func() {
			So(s.Close(), ShouldBeNil)
		})
	})
}

func TestNewSessionWithOptions(t *testing.T) {
	ctx := context.Background()

	Convey("sqlite 连接，启用观测", t, func() {
		registry := prometheus.NewRegistry()
		s, err := NewSessionWithOptions(&Options{
			SQL:        rdb.SQLOptions{Driver: "sqlite3", Database: ":memory:"},
			Observable: &rdb.ObservableOptions{Name: "orm_test_sql"},
			Cache:      cache.Options{Type: "memory"},
			Registerer: registry,
		})
		So(err, ShouldBeNil)
		defer s.Close()

		m := model.NewModel("clientes",
			model.IntField("id", model.PrimaryKey(), model.NotNull()),
			model.TextField("nome"),
		)
		So(s.CreateTable(ctx, m), ShouldBeNil)
		So(s.Connection().Execute(ctx, "INSERT INTO clientes (id, nome) VALUES (1, 'Ana'), (2, 'Bia')"), ShouldBeNil)

		for i := 0; i < 2; i++ {
			result, err := s.From(m).Where("nome", "Bia").All(ctx)
			So(err, ShouldBeNil)
			So(result.Len(), ShouldEqual, 1)
			So(result.At(0).Get("id"), ShouldEqual, int64(2))
		}
		So(s.Cache().Stats().Hits, ShouldEqual, 1)

		observable, ok := s.Connection().(*rdb.ObservableConnection)
		So(ok, ShouldBeTrue)
		So(testutil.ToFloat64(observable.Statements().WithLabelValues("select", "success")), ShouldEqual, 1)
		So(testutil.ToFloat64(observable.Statements().WithLabelValues("create", "success")), ShouldEqual, 1)
	})

	Convey("关闭缓存", t, func() {
		s, err := NewSessionWithOptions(&Options{
			SQL:          rdb.SQLOptions{Driver: "sqlite3", Database: ":memory:"},
			DisableCache: true,
		})
		So(err, ShouldBeNil)
		defer s.Close()
		So(s.Cache(), ShouldBeNil)
	})

	Convey("非法配置", t, func() {
		_, err := NewSessionWithOptions(&Options{
			SQL:   rdb.SQLOptions{Driver: "sqlite3", Database: ":memory:"},
			Cache: cache.Options{Type: "mongo"},
		})
		So(err, ShouldNotBeNil)

		_, err = NewSessionWithOptions(&Options{SQL: rdb.SQLOptions{Driver: "informix"}})
		So(err, ShouldNotBeNil)
	})
}

func TestLoadOptions(t *testing.T) {
	Convey("从 yaml 读取", t, func() {
		dir := t.TempDir()
		filename := filepath.Join(dir, "ifxorm.yaml")
		So(os.WriteFile(filename, []byte(`
sql:
  driver: sqlite3
  database: ":memory:"
cache:
  type: memory
  maxAge: 10m
ttl: 30s
observable:
  name: ifx
snapshot:
  enable: true
  path: `+filepath.Join(dir, "models.db")+`
`), 0644), ShouldBeNil)

		options, err := LoadOptions(filename)
		So(err, ShouldBeNil)
		So(options.SQL.Driver, ShouldEqual, "sqlite3")
		So(options.Cache.Type, ShouldEqual, "memory")
		So(options.Cache.MaxAge, ShouldEqual, 10*time.Minute)
		So(options.TTL, ShouldEqual, 30*time.Second)
		So(options.Observable.Name, ShouldEqual, "ifx")
		So(options.Observable.EnableMetrics, ShouldBeTrue)
		So(options.Render.Enable, ShouldBeFalse)
		So(options.Logger, ShouldBeNil)

		s, err := NewSessionWithOptions(options)
		So(err, ShouldBeNil)
		So(s.Close(), ShouldBeNil)
	})
}
