package decoder

import (
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// IniDecoder section 名中的 "." 展开为嵌套层级，[store.options] 对应 store.options
// 值统一保留为字符串，由弱类型解码完成转换
type IniDecoder struct{}

func (i *IniDecoder) Decode(data []byte) (map[string]any, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:         true,
		SpaceBeforeInlineComment: true,
	}, data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode INI")
	}

	result := make(map[string]any)
	for _, section := range file.Sections() {
		target := result
		if name := section.Name(); name != ini.DefaultSection {
			for _, part := range strings.Split(name, ".") {
				target = child(target, part)
			}
		}
		for _, key := range section.Keys() {
			target[key.Name()] = key.String()
		}
	}
	return result, nil
}

func child(m map[string]any, key string) map[string]any {
	if sub, ok := m[key].(map[string]any); ok {
		return sub
	}
	sub := make(map[string]any)
	m[key] = sub
	return sub
}
