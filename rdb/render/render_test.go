package render

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hatlonely/ifxorm/kv/store"
	"github.com/hatlonely/ifxorm/log/logger"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTable(t *testing.T) {
	Convey("表头和每行都出现在输出中", t, func() {
		out := Table([]string{"id", "nome"}, [][]string{{"1", "Ana"}, {"2", "O'Brien"}})
		lines := strings.Split(out, "\n")
		So(len(lines), ShouldBeGreaterThanOrEqualTo, 5)
		So(out, ShouldContainSubstring, "nome")
		So(out, ShouldContainSubstring, "Ana")
		So(out, ShouldContainSubstring, "O'Brien")
		So(strings.Index(out, "Ana"), ShouldBeLessThan, strings.Index(out, "O'Brien"))
	})

	Convey("没有行时只有表头", t, func() {
		out := Table([]string{"id"}, nil)
		So(out, ShouldContainSubstring, "id")
	})
}

func TestKey(t *testing.T) {
	Convey("Key", t, func() {
		k := Key([]string{"a", "b"}, [][]string{{"1", "2"}})
		So(k, ShouldHaveLength, 128)
		So(k[:64], ShouldEqual, Key([]string{"a", "b"}, nil)[:64])
		So(k, ShouldNotEqual, Key([]string{"a", "b"}, [][]string{{"1", "3"}}))
		So(Key([]string{"ab"}, nil), ShouldNotEqual, Key([]string{"a", "b"}, nil))
	})
}

type readOnlyStore struct {
	*store.SyncMapStore[string, string]
}

func (readOnlyStore) Set(ctx context.Context, key string, value string, opts ...store.SetOption) error {
	return errors.New("read only")
}

func TestCache(t *testing.T) {
	ctx := context.Background()

	Convey("内存 store", t, func() {
		s := store.NewSyncMapStore[string, string]()
		c := NewCache(s)
		headers, rows := []string{"id"}, [][]string{{"1"}}

		out, err := c.Render(ctx, headers, rows)
		So(err, ShouldBeNil)
		So(out, ShouldEqual, Table(headers, rows))

		So(s.Set(ctx, Key(headers, rows), "cached"), ShouldBeNil)
		out, err = c.Render(ctx, headers, rows)
		So(err, ShouldBeNil)
		So(out, ShouldEqual, "cached")
	})

	Convey("bbolt 文件", t, func() {
		path := filepath.Join(t.TempDir(), "render.db")
		c, err := NewCacheWithOptions(&Options{Enable: true, Path: path})
		So(err, ShouldBeNil)
		out, err := c.Render(ctx, []string{"id"}, [][]string{{"7"}})
		So(err, ShouldBeNil)
		So(out, ShouldContainSubstring, "7")
		So(c.Close(), ShouldBeNil)

		c, err = NewCacheWithOptions(&Options{Enable: true, Path: path})
		So(err, ShouldBeNil)
		defer c.Close()
		v, err := c.store.Get(ctx, Key([]string{"id"}, [][]string{{"7"}}))
		So(err, ShouldBeNil)
		So(v, ShouldEqual, out)
	})

	Convey("写入失败时记录日志并返回渲染结果", t, func() {
		var buf bytes.Buffer
		l, err := logger.NewSLogWithWriter(&buf, &logger.SLogOptions{Level: "warn"})
		So(err, ShouldBeNil)
		c := NewCache(readOnlyStore{store.NewSyncMapStore[string, string]()}, WithLogger(l))

		out, err := c.Render(ctx, []string{"id"}, [][]string{{"1"}})
		So(err, ShouldBeNil)
		So(out, ShouldEqual, Table([]string{"id"}, [][]string{{"1"}}))
		So(buf.String(), ShouldContainSubstring, "render cache set failed")
		So(buf.String(), ShouldContainSubstring, "read only")
	})

	Convey("未启用", t, func() {
		c, err := NewCacheWithOptions(&Options{})
		So(err, ShouldBeNil)
		So(c, ShouldBeNil)
	})
}
