package serializer

import (
	"github.com/pkg/errors"
)

type Serializer[F, T any] interface {
	Serialize(from F) (T, error)
	Deserialize(to T) (F, error)
}

type Options struct {
	// msgpack 或 json，默认 msgpack
	Type string `cfg:"type" def:"msgpack" validate:"omitempty,oneof=msgpack json"`
}

func NewByteSerializerWithOptions[T any](options *Options) (Serializer[T, []byte], error) {
	if options == nil {
		return NewMsgPackSerializer[T](), nil
	}

	switch options.Type {
	case "", "msgpack":
		return NewMsgPackSerializer[T](), nil
	case "json":
		return NewJSONSerializer[T](), nil
	}
	return nil, errors.Errorf("unsupported serializer type %q", options.Type)
}
