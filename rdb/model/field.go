package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// FieldType 字段类型
type FieldType int

const (
	Integer FieldType = iota + 1
	Float
	Text
	Boolean
)

func (t FieldType) String() string {
	switch t {
	case Integer:
		return "int"
	case Float:
		return "float"
	case Text:
		return "text"
	case Boolean:
		return "bool"
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// ParseFieldType 解析 int/integer、float、text/string、bool/boolean
func ParseFieldType(s string) (FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer":
		return Integer, nil
	case "float", "double", "decimal":
		return Float, nil
	case "text", "string", "str":
		return Text, nil
	case "bool", "boolean":
		return Boolean, nil
	}
	return 0, errors.Errorf("unknown field type %q", s)
}

// Field 字段定义，声明后不可修改
type Field struct {
	Name       string
	Type       FieldType
	PrimaryKey bool
	Nullable   bool
	// AutoIncrement 为 SERIAL 类列，插入时值为空则省略该列，由数据库生成
	AutoIncrement bool
}

type FieldOption func(*Field)

func PrimaryKey() FieldOption {
	return func(f *Field) { f.PrimaryKey = true }
}

func NotNull() FieldOption {
	return func(f *Field) { f.Nullable = false }
}

func AutoIncrement() FieldOption {
	return func(f *Field) { f.AutoIncrement = true }
}

// NewField 默认允许为空
func NewField(name string, t FieldType, opts ...FieldOption) Field {
	f := Field{Name: name, Type: t, Nullable: true}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

func IntField(name string, opts ...FieldOption) Field   { return NewField(name, Integer, opts...) }
func FloatField(name string, opts ...FieldOption) Field { return NewField(name, Float, opts...) }
func TextField(name string, opts ...FieldOption) Field  { return NewField(name, Text, opts...) }
func BoolField(name string, opts ...FieldOption) Field  { return NewField(name, Boolean, opts...) }

// Normalize 把值转换为字段类型对应的 Go 类型：int64、float64、string、bool，nil 保持不变
func (f Field) Normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	var (
		v  any
		ok bool
	)
	switch f.Type {
	case Integer:
		v, ok = toInt64(value)
	case Float:
		v, ok = toFloat64(value)
	case Text:
		v, ok = toText(value)
	case Boolean:
		v, ok = toBool(value)
	default:
		return value, nil
	}
	if !ok {
		return nil, errors.Errorf("field %s: cannot use %v (%T) as %s", f.Name, value, value, f.Type)
	}
	return v, nil
}

// normalizeLenient 转换失败时保留原值，用于映射数据库返回的行
func (f Field) normalizeLenient(value any) any {
	if v, err := f.Normalize(value); err == nil {
		return v
	}
	return value
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case []byte:
		return toInt64(string(v))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func floatToInt(f float64) (int64, bool) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case []byte:
		return toFloat64(string(v))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	case bool:
		return 0, false
	}
	if n, ok := toInt64(value); ok {
		return float64(n), true
	}
	return 0, false
}

func toText(value any) (any, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case time.Time:
		// 日期时间列按 Text 声明时保留 time.Time，由格式化阶段生成 DATETIME 字面量
		return v, true
	case fmt.Stringer:
		return v.String(), true
	}
	return fmt.Sprint(value), true
}

func toBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case []byte:
		return toBool(string(v))
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "t", "true", "1", "y", "yes":
			return true, true
		case "f", "false", "0", "n", "no":
			return false, true
		}
		return false, false
	}
	if n, ok := toInt64(value); ok {
		return n != 0, true
	}
	return false, false
}
