package cfg

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// SetDefaults 为结构体中的零值字段填充 def tag 指定的默认值，嵌套结构体递归处理。
// 为 nil 的结构体指针表示未启用的可选配置，保持为 nil
func SetDefaults(object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("object must be a non-nil pointer")
	}
	return setDefaults(rv.Elem())
}

func setDefaults(rv reflect.Value) error {
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		return setDefaults(rv.Elem())
	}
	if rv.Kind() != reflect.Struct || rv.Type() == timeType {
		return nil
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		value := rv.Field(i)
		if !value.CanSet() {
			continue
		}

		if isNested(value.Type()) {
			if err := setDefaults(value); err != nil {
				return errors.WithMessagef(err, "field %s", field.Name)
			}
			continue
		}

		def, ok := field.Tag.Lookup("def")
		if !ok || !value.IsZero() {
			continue
		}
		if value.Kind() == reflect.Ptr {
			value.Set(reflect.New(value.Type().Elem()))
			value = value.Elem()
		}
		if err := setDefaultValue(value, def); err != nil {
			return errors.WithMessagef(err, "field %s", field.Name)
		}
	}
	return nil
}

// isNested 判断是否为需要递归处理的结构体（或结构体指针）
func isNested(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && t != timeType
}

// setDefaultValue 将字符串解析为字段类型并赋值，环境变量覆盖也复用这里
func setDefaultValue(rv reflect.Value, def string) error {
	if def == "" && rv.Kind() != reflect.String {
		return nil
	}

	switch rv.Type() {
	case durationType:
		d, err := time.ParseDuration(def)
		if err != nil {
			n, numErr := strconv.ParseInt(def, 10, 64)
			if numErr != nil {
				return errors.Wrapf(err, "invalid duration value %q", def)
			}
			d = time.Duration(n)
		}
		rv.SetInt(int64(d))
		return nil
	case timeType:
		t, err := parseTime(def)
		if err != nil {
			return err
		}
		rv.Set(reflect.ValueOf(t))
		return nil
	}

	switch rv.Kind() {
	case reflect.String:
		rv.SetString(def)
	case reflect.Bool:
		b, err := strconv.ParseBool(def)
		if err != nil {
			return errors.Wrapf(err, "invalid bool value %q", def)
		}
		rv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(def, 0, rv.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid int value %q", def)
		}
		rv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(def, 0, rv.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid uint value %q", def)
		}
		rv.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(def, rv.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid float value %q", def)
		}
		rv.SetFloat(f)
	case reflect.Slice:
		return setSliceDefault(rv, def)
	default:
		return errors.Errorf("unsupported default for type %v", rv.Type())
	}
	return nil
}

// setSliceDefault 逗号分隔的列表
func setSliceDefault(rv reflect.Value, def string) error {
	parts := strings.Split(def, ",")
	slice := reflect.MakeSlice(rv.Type(), len(parts), len(parts))
	for i, part := range parts {
		if err := setDefaultValue(slice.Index(i), strings.TrimSpace(part)); err != nil {
			return errors.WithMessagef(err, "element %d", i)
		}
	}
	rv.Set(slice)
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0), nil
	}
	return time.Time{}, errors.Errorf("invalid time value %q", s)
}
