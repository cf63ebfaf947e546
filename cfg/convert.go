package cfg

import (
	"reflect"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

// ConvertTo 将解码后的 map 按 cfg tag 填充到结构体，键名匹配不区分大小写
func ConvertTo(data map[string]any, object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("object must be a non-nil pointer")
	}
	return convertValue(data, rv.Elem(), "")
}

// fieldKey 返回字段对应的配置键，cfg tag 优先，没有时使用字段名
func fieldKey(field reflect.StructField) (string, bool) {
	tag := field.Tag.Get("cfg")
	if tag == "-" {
		return "", false
	}
	if name := strings.Split(tag, ",")[0]; name != "" {
		return name, true
	}
	return field.Name, true
}

func convertValue(src any, dst reflect.Value, path string) error {
	if src == nil {
		return nil
	}

	if dst.Kind() == reflect.Ptr {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return convertValue(src, dst.Elem(), path)
	}

	sv := reflect.ValueOf(src)
	switch dst.Type() {
	case durationType:
		d, err := toDuration(sv)
		if err == nil {
			dst.SetInt(int64(d))
		}
		return errors.WithMessagef(err, "field %q", path)
	case timeType:
		t, err := toTime(sv)
		if err == nil {
			dst.Set(reflect.ValueOf(t))
		}
		return errors.WithMessagef(err, "field %q", path)
	}

	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}

	switch dst.Kind() {
	case reflect.Struct:
		return convertToStruct(sv, dst, path)
	case reflect.Map:
		return convertToMap(sv, dst, path)
	case reflect.Slice:
		return convertToSlice(sv, dst, path)
	case reflect.String:
		if sv.Kind() == reflect.String {
			dst.SetString(sv.String())
			return nil
		}
	case reflect.Bool:
		if sv.Kind() == reflect.Bool {
			dst.SetBool(sv.Bool())
			return nil
		}
		if sv.Kind() == reflect.String {
			return setDefaultValue(dst, sv.String())
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if sv.Kind() == reflect.String {
			return errors.WithMessagef(setDefaultValue(dst, sv.String()), "field %q", path)
		}
		if isNumber(sv.Kind()) {
			dst.Set(sv.Convert(dst.Type()))
			return nil
		}
	}

	return errors.Errorf("field %q: cannot convert %v to %v", path, sv.Type(), dst.Type())
}

func toDuration(sv reflect.Value) (time.Duration, error) {
	switch sv.Kind() {
	case reflect.String:
		d, err := time.ParseDuration(sv.String())
		return d, errors.Wrapf(err, "failed to parse duration %q", sv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return time.Duration(sv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return time.Duration(sv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		// 浮点数按秒处理
		return time.Duration(sv.Float() * float64(time.Second)), nil
	}
	return 0, errors.Errorf("cannot convert %v to time.Duration", sv.Type())
}

func toTime(sv reflect.Value) (time.Time, error) {
	if t, ok := sv.Interface().(time.Time); ok {
		return t, nil
	}
	switch sv.Kind() {
	case reflect.String:
		return parseTime(sv.String())
	case reflect.Int, reflect.Int64:
		return time.Unix(sv.Int(), 0), nil
	}
	return time.Time{}, errors.Errorf("cannot convert %v to time.Time", sv.Type())
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func convertToStruct(sv reflect.Value, dst reflect.Value, path string) error {
	if sv.Kind() != reflect.Map {
		return errors.Errorf("field %q: expected a map, got %v", path, sv.Type())
	}

	keys := make(map[string]reflect.Value, sv.Len())
	for _, key := range sv.MapKeys() {
		keys[strings.ToLower(key.String())] = sv.MapIndex(key)
	}

	dt := dst.Type()
	for i := 0; i < dt.NumField(); i++ {
		field := dt.Field(i)
		if !dst.Field(i).CanSet() {
			continue
		}
		name, ok := fieldKey(field)
		if !ok {
			continue
		}
		value, found := keys[strings.ToLower(name)]
		if !found {
			continue
		}
		if err := convertValue(value.Interface(), dst.Field(i), joinPath(path, name)); err != nil {
			return err
		}
	}
	return nil
}

func convertToMap(sv reflect.Value, dst reflect.Value, path string) error {
	if sv.Kind() != reflect.Map {
		return errors.Errorf("field %q: expected a map, got %v", path, sv.Type())
	}
	if dst.IsNil() {
		dst.Set(reflect.MakeMap(dst.Type()))
	}
	for _, key := range sv.MapKeys() {
		item := reflect.New(dst.Type().Elem()).Elem()
		if err := convertValue(sv.MapIndex(key).Interface(), item, joinPath(path, key.String())); err != nil {
			return err
		}
		k := reflect.ValueOf(key.Interface())
		if !k.Type().ConvertibleTo(dst.Type().Key()) {
			return errors.Errorf("field %q: cannot convert key %v to %v", path, k.Type(), dst.Type().Key())
		}
		dst.SetMapIndex(k.Convert(dst.Type().Key()), item)
	}
	return nil
}

func convertToSlice(sv reflect.Value, dst reflect.Value, path string) error {
	if sv.Kind() == reflect.String {
		return setSliceDefault(dst, sv.String())
	}
	if sv.Kind() != reflect.Slice && sv.Kind() != reflect.Array {
		return errors.Errorf("field %q: expected a list, got %v", path, sv.Type())
	}
	slice := reflect.MakeSlice(dst.Type(), sv.Len(), sv.Len())
	for i := 0; i < sv.Len(); i++ {
		if err := convertValue(sv.Index(i).Interface(), slice.Index(i), path); err != nil {
			return err
		}
	}
	dst.Set(slice)
	return nil
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
