package introspect

import (
	"context"
	"strings"
	"testing"

	"github.com/hatlonely/ifxorm/rdb"
	"github.com/hatlonely/ifxorm/rdb/model"
	"github.com/hatlonely/ifxorm/rdb/rdbtest"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInformix(t *testing.T) {
	ctx := context.Background()

	Convey("DescribeTable", t, func() {
		conn := rdbtest.New().Respond("FROM systables t JOIN syscolumns c",
			rdb.Row{"name": "id", "coltype": int64(262), "length": int64(4), "position": int64(1), "pk": int64(1)},
			rdb.Row{"name": "nome      ", "coltype": int64(269), "length": int64(60), "position": int64(2), "pk": int64(0)},
			rdb.Row{"name": "limite", "coltype": "5", "length": int64(4098), "position": int64(3), "pk": int64(0)},
		)
		columns, err := NewInformix(conn).DescribeTable(ctx, "Clientes")
		So(err, ShouldBeNil)
		So(columns, ShouldHaveLength, 3)
		So(columns[0], ShouldResemble, model.ColumnInfo{Name: "id", Type: "SERIAL", ColType: 262, Length: 4, Position: 1, PrimaryKey: true})
		So(columns[1].Name, ShouldEqual, "nome")
		So(columns[1].Nullable(), ShouldBeFalse)
		So(columns[2].FieldType(), ShouldEqual, model.Float)
		So(columns[2].Nullable(), ShouldBeTrue)

		sql := conn.Queries()[0]
		So(sql, ShouldContainSubstring, "WHERE t.tabname = 'clientes' ORDER BY c.colno")
		So(sql, ShouldContainSubstring, "pi.part16")
	})

	Convey("表名被转义", t, func() {
		So(DescribeTableSQL("x' OR '1'='1"), ShouldContainSubstring, "t.tabname = 'x'' or ''1''=''1'")
		So(DescribeForeignKeysSQL("a'b"), ShouldContainSubstring, "= 'a''b'")
	})

	Convey("DescribeForeignKeys", t, func() {
		conn := rdbtest.New().Respond("FROM sysconstraints c",
			rdb.Row{"constraint_name": "r101_1", "from_table": "pedidos", "to_table": "clientes", "from_column": "cliente_id", "to_column": "id"},
		)
		fks, err := NewInformix(conn).DescribeForeignKeys(ctx, "clientes")
		So(err, ShouldBeNil)
		So(fks, ShouldResemble, []model.FKInfo{{ConstraintName: "r101_1", FromTable: "pedidos", ToTable: "clientes", FromColumn: "cliente_id", ToColumn: "id"}})

		sql := conn.Queries()[0]
		So(sql, ShouldContainSubstring, "c.constrtype = 'R'")
		So(strings.Count(sql, "'clientes'"), ShouldEqual, 2)
	})

	Convey("查询失败", t, func() {
		boom := errors.New("boom")
		conn := rdbtest.New().FailQuery("syscolumns", boom)
		_, err := NewInformix(conn).DescribeTable(ctx, "clientes")
		So(errors.Cause(err), ShouldEqual, boom)
	})

	Convey("与 Registry 一起使用", t, func() {
		conn := rdbtest.New().
			Respond("FROM systables t JOIN syscolumns c",
				rdb.Row{"name": "id", "coltype": int64(262), "position": int64(1), "pk": int64(1)},
				rdb.Row{"name": "nome", "coltype": int64(13), "position": int64(2), "pk": int64(0)},
			).
			Respond("FROM sysconstraints c")
		registry := model.NewRegistry(NewInformix(conn))
		m, err := registry.Get(ctx, "clientes")
		So(err, ShouldBeNil)
		So(m.FieldNames(), ShouldResemble, []string{"id", "nome"})
		So(m.PrimaryKey(), ShouldResemble, []string{"id"})
	})
}
