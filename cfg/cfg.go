package cfg

import (
	"os"
	"strings"

	"github.com/hatlonely/tabdb/cfg/decoder"
	"github.com/hatlonely/tabdb/cfg/validator"
	"github.com/hatlonely/tabdb/ref"
	"github.com/pkg/errors"
)

// Options 配置加载选项
type Options struct {
	// 配置文件路径，按扩展名选择解码器，为空时只读取环境变量
	Path string `cfg:"path"`
	// 环境变量前缀，为空时不读取环境变量
	EnvPrefix string `cfg:"envPrefix"`
}

// Config 解析后的配置数据
type Config struct {
	data map[string]any
}

func NewConfigWithOptions(options *Options) (*Config, error) {
	if options == nil {
		options = &Options{}
	}

	data := map[string]any{}
	if options.Path != "" {
		content, err := os.ReadFile(options.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config file %s failed", options.Path)
		}
		dec, err := decoder.NewDecoderForPath(options.Path)
		if err != nil {
			return nil, err
		}
		if data, err = dec.Decode(content); err != nil {
			return nil, errors.WithMessagef(err, "decode config file %s failed", options.Path)
		}
	}

	if options.EnvPrefix != "" {
		env := (&decoder.EnvDecoder{Prefix: options.EnvPrefix}).DecodeEnviron(os.Environ())
		data = decoder.Merge(data, env)
	}

	return NewConfig(data), nil
}

func NewConfig(data map[string]any) *Config {
	if data == nil {
		data = map[string]any{}
	}
	return &Config{data: data}
}

// Sub 按点分隔的路径获取子配置，路径不存在时返回空配置
func (c *Config) Sub(key string) *Config {
	if key == "" {
		return c
	}
	current := c.data
	for _, part := range strings.Split(key, ".") {
		next, ok := lookup(current, part).(map[string]any)
		if !ok {
			return NewConfig(nil)
		}
		current = next
	}
	return NewConfig(current)
}

// ConvertTo 绑定到结构体，依次执行解码、def 默认值和 validate 校验
func (c *Config) ConvertTo(object any) error {
	if err := ref.Decode(c.data, object); err != nil {
		return errors.WithMessage(err, "ref.Decode failed")
	}
	if err := SetDefaults(object); err != nil {
		return errors.WithMessage(err, "SetDefaults failed")
	}
	if err := validator.ValidateStruct(object); err != nil {
		return errors.WithMessage(err, "validator.ValidateStruct failed")
	}
	return nil
}

func (c *Config) Data() map[string]any {
	return c.data
}

// Load 读取配置文件并绑定到 object
func Load(path string, object any) error {
	c, err := NewConfigWithOptions(&Options{Path: path})
	if err != nil {
		return err
	}
	return c.ConvertTo(object)
}

// LoadOrDefault 文件不存在时只填充默认值并校验
func LoadOrDefault(path string, object any) error {
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return errors.Wrapf(err, "stat config file %s failed", path)
		}
		return NewConfig(nil).ConvertTo(object)
	}
	return Load(path, object)
}

func lookup(m map[string]any, key string) any {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}
