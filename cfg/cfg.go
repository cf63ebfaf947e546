package cfg

import (
	"os"

	"github.com/pkg/errors"
)

// EnvPrefix 默认的环境变量前缀
const EnvPrefix = "IFXORM"

// LoadOptions 控制 Load 的行为
type LoadOptions struct {
	// 环境变量前缀，为空时不读取环境变量
	EnvPrefix string
	// 测试时替换 os.LookupEnv
	Lookup func(string) (string, bool)
}

// Load 读取配置文件并填充 object：解码 -> 环境变量覆盖 -> 默认值 -> 校验
func Load(filename string, object any) error {
	return LoadWithOptions(filename, object, &LoadOptions{EnvPrefix: EnvPrefix})
}

func LoadWithOptions(filename string, object any, options *LoadOptions) error {
	format, err := FormatOf(filename)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to read config file %s", filename)
	}
	return LoadBytes(data, format, object, options)
}

// LoadBytes 与 Load 相同，但直接处理内存中的配置内容
func LoadBytes(data []byte, format string, object any, options *LoadOptions) error {
	if options == nil {
		options = &LoadOptions{}
	}

	m, err := Decode(data, format)
	if err != nil {
		return err
	}
	if err := ConvertTo(m, object); err != nil {
		return errors.WithMessage(err, "failed to convert config")
	}
	if options.EnvPrefix != "" {
		if err := ApplyEnv(options.EnvPrefix, object, options.Lookup); err != nil {
			return err
		}
	}
	if err := SetDefaults(object); err != nil {
		return errors.WithMessage(err, "failed to set defaults")
	}
	return Validate(object)
}
