package rdb

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

type recordingConn struct {
	mu         sync.Mutex
	statements []string
	fail       string
	closed     bool
}

func (c *recordingConn) Execute(ctx context.Context, sql string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statements = append(c.statements, sql)
	if c.fail != "" && strings.Contains(sql, c.fail) {
		return errors.New("boom")
	}
	return nil
}

func (c *recordingConn) ExecuteQuery(ctx context.Context, sql string) ([]Row, error) {
	if err := c.Execute(ctx, sql); err != nil {
		return nil, err
	}
	return []Row{{"n": int64(1)}}, nil
}

func (c *recordingConn) Close() error {
	c.closed = true
	return nil
}

func TestObservableConnection(t *testing.T) {
	ctx := context.Background()

	Convey("ObservableConnection", t, func() {
		inner := &recordingConn{fail: "DELETE"}
		registry := prometheus.NewRegistry()
		conn := NewObservableConnection(inner, &ObservableOptions{
			Name:          "test_sql",
			EnableMetrics: true,
			EnableTracing: true,
			Registerer:    registry,
		})

		So(conn.Execute(ctx, "BEGIN WORK"), ShouldBeNil)
		rows, err := conn.ExecuteQuery(ctx, "select n from t")
		So(err, ShouldBeNil)
		So(rows, ShouldResemble, []Row{{"n": int64(1)}})
		So(conn.Execute(ctx, "DELETE FROM t WHERE id = '1'"), ShouldNotBeNil)

		So(inner.statements, ShouldHaveLength, 3)
		So(testutil.ToFloat64(conn.Statements().WithLabelValues("begin", "success")), ShouldEqual, 1)
		So(testutil.ToFloat64(conn.Statements().WithLabelValues("select", "success")), ShouldEqual, 1)
		So(testutil.ToFloat64(conn.Statements().WithLabelValues("delete", "error")), ShouldEqual, 1)

		count, err := testutil.GatherAndCount(registry, "test_sql_statements_total")
		So(err, ShouldBeNil)
		So(count, ShouldEqual, 3)

		So(conn.Close(), ShouldBeNil)
		So(inner.closed, ShouldBeTrue)
	})

	Convey("不启用指标", t, func() {
		conn := NewObservableConnection(&recordingConn{}, &ObservableOptions{Name: "plain"})
		So(conn.Statements(), ShouldBeNil)
		So(conn.Execute(ctx, "COMMIT WORK"), ShouldBeNil)
	})
}

func TestStatementKind(t *testing.T) {
	Convey("StatementKind", t, func() {
		So(StatementKind("  SELECT FIRST 1 1 FROM t"), ShouldEqual, "select")
		So(StatementKind("ROLLBACK WORK"), ShouldEqual, "rollback")
		So(StatementKind(""), ShouldEqual, "unknown")
	})
}

func TestRowClone(t *testing.T) {
	Convey("Clone 互不影响", t, func() {
		row := Row{"id": int64(1)}
		clone := row.Clone()
		clone["id"] = int64(2)
		So(row["id"], ShouldEqual, int64(1))
	})
}
