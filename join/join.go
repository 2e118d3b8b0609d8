// Package join 实现两张表在指定字段上的等值连接和去重
package join

import (
	"strconv"
	"strings"

	"github.com/hatlonely/tabdb/schema"
)

// Distinct 对 left 和 right 做嵌套循环等值连接，返回匹配的 left 行在 fields 上的投影，按首次出现顺序去重
// 缺失的字段与空字符串不相等，两侧都缺失时视为相等，投影中同样缺失
func Distinct(left []schema.Row, right []schema.Row, fields []string) []map[string]string {
	seen := make(map[string]struct{})
	result := make([]map[string]string, 0)

	for _, l := range left {
		for _, r := range right {
			if !match(l, r, fields) {
				continue
			}
			// 同一个 left 行的所有匹配投影相同
			if k := key(l, fields); !contains(seen, k) {
				seen[k] = struct{}{}
				result = append(result, project(l, fields))
			}
			break
		}
	}
	return result
}

func match(l schema.Row, r schema.Row, fields []string) bool {
	for _, f := range fields {
		lv, lok := l.Values[f]
		rv, rok := r.Values[f]
		if lok != rok || lv != rv {
			return false
		}
	}
	return true
}

func project(row schema.Row, fields []string) map[string]string {
	values := make(map[string]string, len(fields))
	for _, f := range fields {
		if v, ok := row.Values[f]; ok {
			values[f] = v
		}
	}
	return values
}

func contains(set map[string]struct{}, k string) bool {
	_, ok := set[k]
	return ok
}

// key 长度前缀编码，缺失值编码为 "-"，不同元组不会得到相同的 key
func key(row schema.Row, fields []string) string {
	var b strings.Builder
	for _, f := range fields {
		v, ok := row.Values[f]
		if !ok {
			b.WriteString("-;")
			continue
		}
		b.WriteString(strconv.Itoa(len(v)))
		b.WriteByte(':')
		b.WriteString(v)
		b.WriteByte(';')
	}
	return b.String()
}
