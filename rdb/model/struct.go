package model

import (
	"reflect"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var timeType = reflect.TypeOf(time.Time{})

// FromStruct 根据结构体声明模型，table 为空时使用结构体名的小写形式
// 支持的 tag 格式：
//   - `ifx:"column_name,pk,notnull,serial,type=text"`
//   - `ifx:"-"` 忽略字段
func FromStruct(table string, v any) (*Model, error) {
	rt := reflect.TypeOf(v)
	if rt != nil && rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt == nil || rt.Kind() != reflect.Struct {
		return nil, errors.Errorf("expected struct, got %T", v)
	}
	if table == "" {
		table = strings.ToLower(rt.Name())
	}

	var fields []Field
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get("ifx")
		if tag == "-" {
			continue
		}
		f, err := parseFieldTag(sf, tag)
		if err != nil {
			return nil, errors.WithMessagef(err, "field %s", sf.Name)
		}
		fields = append(fields, f)
	}
	return NewModel(table, fields...), nil
}

func parseFieldTag(sf reflect.StructField, tag string) (Field, error) {
	f := Field{Name: strings.ToLower(sf.Name), Type: inferFieldType(sf.Type), Nullable: true}

	parts := strings.Split(tag, ",")
	if parts[0] != "" && !strings.Contains(parts[0], "=") {
		f.Name = parts[0]
	}
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if key, value, ok := strings.Cut(part, "="); ok {
			if key != "type" {
				return f, errors.Errorf("unknown tag option %q", key)
			}
			t, err := ParseFieldType(value)
			if err != nil {
				return f, err
			}
			f.Type = t
			continue
		}
		switch part {
		case "":
		case "pk", "primary":
			f.PrimaryKey = true
			f.Nullable = false
		case "notnull", "required":
			f.Nullable = false
		case "serial":
			f.AutoIncrement = true
		default:
			return f, errors.Errorf("unknown tag option %q", part)
		}
	}
	return f, nil
}

func inferFieldType(t reflect.Type) FieldType {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Integer
	case reflect.Float32, reflect.Float64:
		return Float
	case reflect.Bool:
		return Boolean
	}
	return Text
}

// EntityFromStruct 按字段名从结构体取值创建实体，nil 指针视为未设置
func (m *Model) EntityFromStruct(v any) (*Entity, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, errors.Errorf("expected struct, got %T", v)
	}
	e := newEntity(m)
	for name, fv := range structColumns(rv) {
		if !m.HasField(name) {
			continue
		}
		if fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				continue
			}
			fv = fv.Elem()
		}
		if err := e.Set(name, fv.Interface()); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Scan 把字段和附加列写入结构体，列名按 ifx tag 或小写字段名匹配
func (e *Entity) Scan(dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return errors.New("dest must be a pointer to struct")
	}
	for name, fv := range structColumns(rv.Elem()) {
		value := e.Get(name)
		if value == nil || !fv.CanSet() {
			continue
		}
		if err := setFieldValue(fv, value); err != nil {
			return errors.WithMessagef(err, "column %s", name)
		}
	}
	return nil
}

func structColumns(rv reflect.Value) map[string]reflect.Value {
	rt := rv.Type()
	columns := make(map[string]reflect.Value, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get("ifx")
		if tag == "-" {
			continue
		}
		name := strings.ToLower(sf.Name)
		if n := strings.Split(tag, ",")[0]; n != "" && !strings.Contains(n, "=") {
			name = n
		}
		columns[name] = rv.Field(i)
	}
	return columns
}

func setFieldValue(fv reflect.Value, value any) error {
	if fv.Kind() == reflect.Ptr {
		elem := reflect.New(fv.Type().Elem())
		if err := setFieldValue(elem.Elem(), value); err != nil {
			return err
		}
		fv.Set(elem)
		return nil
	}

	if fv.Type() == timeType {
		switch v := value.(type) {
		case time.Time:
			fv.Set(reflect.ValueOf(v))
			return nil
		case string:
			for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano, "2006-01-02"} {
				if t, err := time.Parse(layout, v); err == nil {
					fv.Set(reflect.ValueOf(t))
					return nil
				}
			}
			return errors.Errorf("cannot parse time %q", v)
		}
	}

	var (
		v  any
		ok bool
	)
	switch fv.Kind() {
	case reflect.Bool:
		v, ok = toBool(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, ok = toInt64(value)
	case reflect.Float32, reflect.Float64:
		v, ok = toFloat64(value)
	case reflect.String:
		v, ok = toText(value)
		if t, isTime := v.(time.Time); isTime {
			v = t.Format("2006-01-02 15:04:05")
		}
	default:
		v, ok = value, true
	}
	if !ok {
		return errors.Errorf("cannot convert %T to %v", value, fv.Type())
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(fv.Type()) {
		fv.Set(rv)
		return nil
	}
	if rv.Type().ConvertibleTo(fv.Type()) {
		fv.Set(rv.Convert(fv.Type()))
		return nil
	}
	return errors.Errorf("cannot convert %T to %v", value, fv.Type())
}
