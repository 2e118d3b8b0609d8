package ref

import (
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// TagName 配置结构体使用的字段 tag
const TagName = "cfg"

// Decode 将 map、slice 等通用结构按 cfg tag 解码到 output，output 必须是指针
// 支持弱类型转换（"1" -> 1）、字符串转 time.Duration、逗号分隔字符串转 slice
func Decode(input any, output any) error {
	if output == nil || reflect.ValueOf(output).Kind() != reflect.Ptr {
		return errors.New("output must be a non-nil pointer")
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          TagName,
		WeaklyTypedInput: true,
		Result:           output,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return errors.Wrap(err, "mapstructure.NewDecoder failed")
	}

	if err := decoder.Decode(input); err != nil {
		return errors.Wrap(err, "decoder.Decode failed")
	}
	return nil
}
