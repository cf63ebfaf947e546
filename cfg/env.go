package cfg

import (
	"os"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// EnvName 返回配置路径对应的环境变量名，例如 prefix=IFXORM，path=cache.ttl 得到 IFXORM_CACHE_TTL
func EnvName(prefix, path string) string {
	name := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(path))
	if prefix == "" {
		return name
	}
	return strings.ToUpper(prefix) + "_" + name
}

// ApplyEnv 用环境变量覆盖结构体中的叶子字段，lookup 为 nil 时使用 os.LookupEnv
func ApplyEnv(prefix string, object any, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("object must be a non-nil pointer")
	}
	return applyEnv(prefix, rv.Elem(), "", lookup)
}

func applyEnv(prefix string, rv reflect.Value, path string, lookup func(string) (string, bool)) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		value := rv.Field(i)
		if !value.CanSet() {
			continue
		}
		name, ok := fieldKey(field)
		if !ok {
			continue
		}
		fieldPath := joinPath(path, name)

		if isNested(value.Type()) {
			if value.Kind() == reflect.Ptr {
				if value.IsNil() {
					continue
				}
				value = value.Elem()
			}
			if err := applyEnv(prefix, value, fieldPath, lookup); err != nil {
				return err
			}
			continue
		}
		if value.Kind() == reflect.Map || value.Kind() == reflect.Interface {
			continue
		}

		env := EnvName(prefix, fieldPath)
		s, found := lookup(env)
		if !found {
			continue
		}
		if value.Kind() == reflect.Ptr {
			value.Set(reflect.New(value.Type().Elem()))
			value = value.Elem()
		}
		if err := setDefaultValue(value, s); err != nil {
			return errors.WithMessagef(err, "env %s", env)
		}
	}
	return nil
}
