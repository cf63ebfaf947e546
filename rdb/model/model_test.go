package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hatlonely/ifxorm/rdb"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func clientes() *Model {
	return NewModel("clientes",
		IntField("id", PrimaryKey(), NotNull()),
		TextField("nome", NotNull()),
		TextField("status"),
	)
}

func TestField(t *testing.T) {
	Convey("Normalize", t, func() {
		v, err := IntField("id").Normalize(int32(7))
		So(err, ShouldBeNil)
		So(v, ShouldEqual, int64(7))

		v, err = IntField("id").Normalize("42")
		So(err, ShouldBeNil)
		So(v, ShouldEqual, int64(42))

		_, err = IntField("id").Normalize(1.5)
		So(err, ShouldNotBeNil)

		v, err = FloatField("price").Normalize(3)
		So(err, ShouldBeNil)
		So(v, ShouldEqual, float64(3))

		v, err = BoolField("ok").Normalize("t")
		So(err, ShouldBeNil)
		So(v, ShouldEqual, true)

		v, err = TextField("nome").Normalize([]byte("Ana"))
		So(err, ShouldBeNil)
		So(v, ShouldEqual, "Ana")

		now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		v, err = TextField("created").Normalize(now)
		So(err, ShouldBeNil)
		So(v, ShouldEqual, now)

		v, err = TextField("nome").Normalize(nil)
		So(err, ShouldBeNil)
		So(v, ShouldBeNil)
	})

	Convey("ParseFieldType", t, func() {
		for s, want := range map[string]FieldType{"int": Integer, "FLOAT": Float, "string": Text, "boolean": Boolean} {
			got, err := ParseFieldType(s)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, want)
		}
		_, err := ParseFieldType("blob")
		So(err, ShouldNotBeNil)
	})
}

func TestModel(t *testing.T) {
	Convey("字段顺序和主键", t, func() {
		m := clientes()
		So(m.Table(), ShouldEqual, "clientes")
		So(m.FieldNames(), ShouldResemble, []string{"id", "nome", "status"})
		So(m.PrimaryKey(), ShouldResemble, []string{"id"})
		So(m.HasField("nome"), ShouldBeTrue)
		So(m.HasField("email"), ShouldBeFalse)
	})

	Convey("重复字段覆盖定义但保留位置", t, func() {
		m := NewModel("t", IntField("a"), TextField("b"), TextField("a"))
		So(m.FieldNames(), ShouldResemble, []string{"a", "b"})
		f, _ := m.Field("a")
		So(f.Type, ShouldEqual, Text)
	})

	Convey("DeclareRelation", t, func() {
		pedidos := NewModel("pedidos", IntField("id"), IntField("cliente_id"))
		So(pedidos.DeclareRelation("cliente", "clientes"), ShouldBeNil)
		r, ok := pedidos.Relation("cliente")
		So(ok, ShouldBeTrue)
		So(r, ShouldResemble, Relation{Name: "cliente", Table: "clientes", Kind: ManyToOne, LocalKey: "cliente_id", RemoteKey: "id"})

		So(clientes().DeclareRelation("pedidos", "pedidos"), ShouldBeNil)
		m := clientes()
		So(m.DeclareRelation("pedidos", "pedidos"), ShouldBeNil)
		r, _ = m.Relation("pedidos")
		So(r.Kind, ShouldEqual, OneToMany)
		So(r.LocalKey, ShouldEqual, "id")
		So(r.RemoteKey, ShouldEqual, "cliente_id")

		So(NewModel("x", TextField("name")).DeclareRelation("y", "ys"), ShouldNotBeNil)
	})

	Convey("Describe", t, func() {
		rows := clientes().Describe()
		So(rows, ShouldHaveLength, 3)
		So(rows[0], ShouldResemble, []string{"id", "int", "true", "false"})
		So(rows[2], ShouldResemble, []string{"status", "text", "false", "true"})
	})

	Convey("CreateTableSQL", t, func() {
		m := NewModel("pedidos",
			IntField("id", PrimaryKey(), NotNull(), AutoIncrement()),
			FloatField("total"),
			BoolField("pago", NotNull()),
			TextField("obs"),
		)
		So(m.CreateTableSQL(), ShouldEqual,
			"CREATE TABLE pedidos (id SERIAL NOT NULL, total FLOAT, pago BOOLEAN NOT NULL, obs VARCHAR(255), PRIMARY KEY (id))")
	})
}

func TestEntity(t *testing.T) {
	Convey("NewEntity 只接受声明的字段", t, func() {
		m := clientes()
		e, err := m.NewEntity(map[string]any{"id": 1, "nome": "Ana"})
		So(err, ShouldBeNil)
		So(e.Get("id"), ShouldEqual, int64(1))
		So(e.Values(), ShouldResemble, []any{int64(1), "Ana", nil})

		_, err = m.NewEntity(map[string]any{"email": "x"})
		So(err, ShouldNotBeNil)
	})

	Convey("FromRow 附加列", t, func() {
		e := clientes().FromRow(map[string]any{"id": "3", "nome": "Bia", "t2.total": 10.5})
		So(e.Get("id"), ShouldEqual, int64(3))
		So(e.Get("t2.total"), ShouldEqual, 10.5)
		So(e.Has("t2.total"), ShouldBeTrue)
		So(e.ExtraNames(), ShouldResemble, []string{"t2.total"})
	})

	Convey("Validate", t, func() {
		m := NewModel("clientes",
			IntField("id", PrimaryKey(), NotNull(), AutoIncrement()),
			TextField("nome", NotNull()),
		)
		e, _ := m.NewEntity(map[string]any{})
		err := e.Validate()
		So(errors.Is(err, rdb.ErrValidation), ShouldBeTrue)
		var verr *rdb.ValidationError
		So(errors.As(err, &verr), ShouldBeTrue)
		So(verr.Field, ShouldEqual, "nome")

		So(e.Set("nome", "Ana"), ShouldBeNil)
		So(e.Validate(), ShouldBeNil)
	})

	Convey("ToMap 和 JSON", t, func() {
		e, _ := clientes().NewEntity(map[string]any{"id": 1, "nome": "Ana", "status": "ATIVO"})
		p, _ := NewModel("pedidos", IntField("id"), IntField("cliente_id")).NewEntity(map[string]any{"id": 9, "cliente_id": 1})
		e.SetRelated("pedidos", []*Entity{p})

		So(e.ToMap(false), ShouldNotContainKey, "pedidos")
		deep := e.ToMap(true)
		So(deep["pedidos"], ShouldResemble, []map[string]any{{"id": int64(9), "cliente_id": int64(1)}})

		buf, err := json.Marshal(e)
		So(err, ShouldBeNil)
		So(string(buf), ShouldEqual, `{"id":1,"nome":"Ana","pedidos":[{"cliente_id":1,"id":9}],"status":"ATIVO"}`)
	})

	Convey("SetRelated nil 变为空列表", t, func() {
		e, _ := clientes().NewEntity(nil)
		e.SetRelated("pedidos", nil)
		r, ok := e.Related("pedidos")
		So(ok, ShouldBeTrue)
		So(r, ShouldNotBeNil)
		So(r, ShouldHaveLength, 0)
	})
}

func TestRelationsFromForeignKeys(t *testing.T) {
	Convey("正向和反向关系", t, func() {
		fks := []FKInfo{{ConstraintName: "fk1", FromTable: "pedido", ToTable: "cliente", FromColumn: "cliente_id", ToColumn: "id"}}

		forward := RelationsFromForeignKeys("pedido", fks)
		So(forward, ShouldResemble, []Relation{{Name: "cliente", Table: "cliente", Kind: ManyToOne, LocalKey: "cliente_id", RemoteKey: "id"}})

		reverse := RelationsFromForeignKeys("cliente", fks)
		So(reverse, ShouldResemble, []Relation{{Name: "pedidos", Table: "pedido", Kind: OneToMany, LocalKey: "id", RemoteKey: "cliente_id"}})
	})

	Convey("自引用外键同时产生两个关系", t, func() {
		fks := []FKInfo{{FromTable: "node", ToTable: "node", FromColumn: "parent_id", ToColumn: "id"}}
		relations := RelationsFromForeignKeys("node", fks)
		So(relations, ShouldHaveLength, 2)
		So(relations[0].Name, ShouldEqual, "parent")
		So(relations[1].Name, ShouldEqual, "nodes")
	})
}
