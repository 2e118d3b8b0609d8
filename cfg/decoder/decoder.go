package decoder

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Decoder 将配置文件内容解析为通用的 map 结构，后续由 ref.Decode 绑定到结构体
type Decoder interface {
	Decode(data []byte) (map[string]any, error)
}

// NewDecoderWithFormat 支持 json, yaml/yml, toml, ini
func NewDecoderWithFormat(format string) (Decoder, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "json":
		return &JsonDecoder{}, nil
	case "yaml", "yml":
		return &YamlDecoder{}, nil
	case "toml":
		return &TomlDecoder{}, nil
	case "ini":
		return &IniDecoder{}, nil
	default:
		return nil, errors.Errorf("unsupported config format %q", format)
	}
}

// NewDecoderForPath 按文件扩展名选择解码器
func NewDecoderForPath(path string) (Decoder, error) {
	return NewDecoderWithFormat(filepath.Ext(path))
}
