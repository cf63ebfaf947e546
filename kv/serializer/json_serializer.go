package serializer

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// JSONSerializer 反序列化到 interface{} 时数字保留为 json.Number，避免大整数变成 float64
type JSONSerializer[T any] struct{}

func NewJSONSerializer[T any]() *JSONSerializer[T] {
	return &JSONSerializer[T]{}
}

func (s *JSONSerializer[T]) Serialize(from T) ([]byte, error) {
	buf, err := json.Marshal(from)
	if err != nil {
		return nil, errors.Wrap(err, "json marshal failed")
	}
	return buf, nil
}

func (s *JSONSerializer[T]) Deserialize(to []byte) (T, error) {
	var result T
	dec := json.NewDecoder(bytes.NewReader(to))
	dec.UseNumber()
	if err := dec.Decode(&result); err != nil {
		return result, errors.Wrap(err, "json unmarshal failed")
	}
	return result, nil
}
