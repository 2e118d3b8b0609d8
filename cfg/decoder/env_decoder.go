package decoder

import (
	"strings"
)

// EnvDecoder 将带前缀的环境变量解析为嵌套 map
// TABDB_STORE_DRIVER=mysql 对应 store.driver，键统一小写，绑定结构体时大小写不敏感
type EnvDecoder struct {
	Prefix string
}

// DecodeEnviron environ 格式同 os.Environ()
func (e *EnvDecoder) DecodeEnviron(environ []string) map[string]any {
	prefix := strings.ToUpper(e.Prefix)
	if prefix != "" && !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}

	result := make(map[string]any)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) || key == prefix {
			continue
		}
		parts := strings.Split(strings.ToLower(strings.TrimPrefix(key, prefix)), "_")
		target := result
		for _, part := range parts[:len(parts)-1] {
			target = child(target, part)
		}
		target[parts[len(parts)-1]] = value
	}
	return result
}

// Merge 将 src 递归合并到 dst，src 优先，键名大小写不敏感
func Merge(dst map[string]any, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	for k, v := range src {
		existingKey := lookupFold(dst, k)
		sub, ok := v.(map[string]any)
		if ok && existingKey != "" {
			if existing, ok := dst[existingKey].(map[string]any); ok {
				Merge(existing, sub)
				continue
			}
		}
		if existingKey != "" {
			delete(dst, existingKey)
		}
		dst[k] = v
	}
	return dst
}

func lookupFold(m map[string]any, key string) string {
	if _, ok := m[key]; ok {
		return key
	}
	for k := range m {
		if strings.EqualFold(k, key) {
			return k
		}
	}
	return ""
}
