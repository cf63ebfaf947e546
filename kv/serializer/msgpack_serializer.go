package serializer

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// MsgPackSerializer 快照和渲染缓存的默认编码。
// 解码到 any 时整数统一为 int64/uint64，浮点数为 float64，时间保持 time.Time。
// 没有 msgpack tag 的字段回退到 json tag
type MsgPackSerializer[T any] struct{}

func NewMsgPackSerializer[T any]() *MsgPackSerializer[T] {
	return &MsgPackSerializer[T]{}
}

func (s *MsgPackSerializer[T]) Serialize(from T) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(from); err != nil {
		return nil, errors.Wrap(err, "msgpack encode failed")
	}
	return buf.Bytes(), nil
}

func (s *MsgPackSerializer[T]) Deserialize(data []byte) (T, error) {
	var result T
	if len(data) == 0 {
		return result, errors.New("msgpack decode failed: empty input")
	}
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	dec.SetCustomStructTag("json")
	if err := dec.Decode(&result); err != nil {
		return result, errors.Wrap(err, "msgpack decode failed")
	}
	return result, nil
}
