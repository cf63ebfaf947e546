package cfg

import (
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// 支持的配置格式
const (
	FormatYaml = "yaml"
	FormatToml = "toml"
	FormatIni  = "ini"
	FormatJson = "json"
)

// FormatOf 根据文件扩展名推断配置格式
func FormatOf(filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYaml, nil
	case ".toml":
		return FormatToml, nil
	case ".ini":
		return FormatIni, nil
	case ".json":
		return FormatJson, nil
	}
	return "", errors.Errorf("unsupported config file extension %q", filepath.Ext(filename))
}

// Decode 将配置内容解码为 map[string]any
func Decode(data []byte, format string) (map[string]any, error) {
	switch format {
	case FormatYaml:
		var result map[string]any
		if err := yaml.Unmarshal(data, &result); err != nil {
			return nil, errors.Wrap(err, "failed to decode YAML")
		}
		return ensureMap(result), nil
	case FormatToml:
		var result map[string]any
		if err := toml.Unmarshal(data, &result); err != nil {
			return nil, errors.Wrap(err, "failed to decode TOML")
		}
		return ensureMap(result), nil
	case FormatJson:
		var result map[string]any
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, errors.Wrap(err, "failed to decode JSON")
		}
		return ensureMap(result), nil
	case FormatIni:
		return decodeIni(data)
	}
	return nil, errors.Errorf("unsupported config format %q", format)
}

func ensureMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// decodeIni 默认 section 的键放在根上，其他 section 按名字嵌套，
// 名字中的 "." 表示多级，例如 [cache.redis]
func decodeIni(data []byte) (map[string]any, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:         true,
		AllowShadows:             true,
		SpaceBeforeInlineComment: true,
	}, data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode INI")
	}

	result := map[string]any{}
	for _, section := range file.Sections() {
		target := result
		if name := section.Name(); name != ini.DefaultSection {
			for _, part := range strings.Split(name, ".") {
				child, ok := target[part].(map[string]any)
				if !ok {
					child = map[string]any{}
					target[part] = child
				}
				target = child
			}
		}
		for _, key := range section.Keys() {
			target[key.Name()] = parseIniKey(key)
		}
	}
	return result, nil
}

func parseIniKey(key *ini.Key) any {
	if values := key.ValueWithShadows(); len(values) > 1 {
		items := make([]any, len(values))
		for i, v := range values {
			items[i] = parseScalar(v)
		}
		return items
	}
	return parseScalar(key.String())
}

// parseScalar 尝试把字符串转换为 bool / int64 / float64
func parseScalar(value string) any {
	if value == "" {
		return ""
	}
	if b, err := strconv.ParseBool(value); err == nil && (value == "true" || value == "false") {
		return b
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
