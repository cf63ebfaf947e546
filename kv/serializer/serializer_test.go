package serializer

import (
	"encoding/json"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type row map[string]any

type entry struct {
	Rows     []row
	StoredAt time.Time
}

func TestNewByteSerializerWithOptions(t *testing.T) {
	Convey("默认 msgpack", t, func() {
		s, err := NewByteSerializerWithOptions[string](nil)
		So(err, ShouldBeNil)
		_, ok := s.(*MsgPackSerializer[string])
		So(ok, ShouldBeTrue)
	})

	Convey("json", t, func() {
		s, err := NewByteSerializerWithOptions[string](&Options{Type: "json"})
		So(err, ShouldBeNil)
		buf, err := s.Serialize("clientes")
		So(err, ShouldBeNil)
		So(string(buf), ShouldEqual, `"clientes"`)
	})

	Convey("json 数字保留为 json.Number", t, func() {
		s := NewJSONSerializer[*entry]()
		buf, err := s.Serialize(&entry{Rows: []row{{"id": 9007199254740993}}})
		So(err, ShouldBeNil)
		e, err := s.Deserialize(buf)
		So(err, ShouldBeNil)
		So(e.Rows[0]["id"], ShouldEqual, json.Number("9007199254740993"))

		_, err = s.Deserialize([]byte("{"))
		So(err, ShouldNotBeNil)
	})

	Convey("不支持的类型", t, func() {
		_, err := NewByteSerializerWithOptions[string](&Options{Type: "bson"})
		So(err, ShouldNotBeNil)
	})
}

func TestMsgPackSerializer(t *testing.T) {
	Convey("整数统一解码为 int64", t, func() {
		s := NewMsgPackSerializer[*entry]()
		now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

		buf, err := s.Serialize(&entry{
			Rows:     []row{{"id": 1, "nome": "Ana", "saldo": 10.5, "ativo": true}},
			StoredAt: now,
		})
		So(err, ShouldBeNil)

		e, err := s.Deserialize(buf)
		So(err, ShouldBeNil)
		So(e.StoredAt.Equal(now), ShouldBeTrue)
		So(e.Rows, ShouldHaveLength, 1)
		So(e.Rows[0]["id"], ShouldEqual, int64(1))
		So(e.Rows[0]["nome"], ShouldEqual, "Ana")
		So(e.Rows[0]["saldo"], ShouldEqual, 10.5)
		So(e.Rows[0]["ativo"], ShouldEqual, true)
	})
	Convey("空输入和损坏输入", t, func() {
		s := NewMsgPackSerializer[*entry]()
		_, err := s.Deserialize(nil)
		So(err, ShouldNotBeNil)
		_, err = s.Deserialize([]byte{0xc1})
		So(err, ShouldNotBeNil)
	})
}
