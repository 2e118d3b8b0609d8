package schema

import (
	"slices"
	"strings"
)

// Validate 检查表定义本身是否合法，不检查枚举是否已定义
func (t *TableDefinition) Validate() error {
	if t == nil || t.Name == "" {
		return InvalidArgumentf("table name cannot be empty")
	}
	if !ValidIdentifier(t.Name) {
		return InvalidArgumentf("invalid table name %q", t.Name)
	}
	if len(t.Fields) == 0 {
		return InvalidArgumentf("table %q has no fields", t.Name)
	}

	// 存储中的标识符不区分大小写
	seen := make(map[string]struct{}, len(t.Fields))
	for _, f := range t.Fields {
		if !ValidIdentifier(f.Name) {
			return InvalidArgumentf("invalid field name %q in table %q", f.Name, t.Name)
		}
		if strings.EqualFold(f.Name, IDColumn) {
			return InvalidArgumentf("field name %q is reserved", f.Name)
		}
		key := strings.ToLower(f.Name)
		if _, ok := seen[key]; ok {
			return InvalidArgumentf("duplicate field %q in table %q", f.Name, t.Name)
		}
		seen[key] = struct{}{}

		if !f.Type.Valid() {
			return InvalidArgumentf("unknown type %q for field %q", f.Type, f.Name)
		}
		if f.Type == FieldTypeEnum && f.EnumName == "" {
			return InvalidArgumentf("enum field %q requires an enum name", f.Name)
		}
		if f.Type != FieldTypeEnum && f.EnumName != "" {
			return InvalidArgumentf("field %q of type %s cannot reference enum %q", f.Name, f.Type, f.EnumName)
		}
	}
	return nil
}

// Registry 表定义和枚举定义的内存目录，是行校验的唯一依据
// 非并发安全，由 Database 独占
type Registry struct {
	tables []*TableDefinition
	enums  []*EnumDefinition
}

func NewRegistry() *Registry {
	return &Registry{}
}

// CleanEnumValues 去掉首尾空白并丢弃空值
func CleanEnumValues(values []string) []string {
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			cleaned = append(cleaned, v)
		}
	}
	return cleaned
}

// DefineEnum 定义枚举，同名定义直接覆盖
func (r *Registry) DefineEnum(name string, values []string) (*EnumDefinition, error) {
	if name == "" {
		return nil, InvalidArgumentf("enum name cannot be empty")
	}
	cleaned := CleanEnumValues(values)
	if len(cleaned) == 0 {
		return nil, InvalidArgumentf("enum %q has no values", name)
	}

	def := &EnumDefinition{Name: name, Values: cleaned}
	if i := r.enumIndex(name); i >= 0 {
		r.enums[i] = def
	} else {
		r.enums = append(r.enums, def)
	}
	return def.Clone(), nil
}

// PutTable 按名称写入表定义，已存在则原位替换。
// 表名不区分大小写，替换时保留已有的名称。
func (r *Registry) PutTable(def *TableDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	stored := def.Clone()
	if i := r.tableIndex(def.Name); i >= 0 {
		stored.Name = r.tables[i].Name
		r.tables[i] = stored
	} else {
		r.tables = append(r.tables, stored)
	}
	return nil
}

func (r *Registry) LookupTable(name string) (*TableDefinition, bool) {
	if i := r.tableIndex(name); i >= 0 {
		return r.tables[i].Clone(), true
	}
	return nil, false
}

func (r *Registry) LookupEnum(name string) (*EnumDefinition, bool) {
	if i := r.enumIndex(name); i >= 0 {
		return r.enums[i].Clone(), true
	}
	return nil, false
}

// RemoveTable 从目录中删除表定义
func (r *Registry) RemoveTable(name string) bool {
	i := r.tableIndex(name)
	if i < 0 {
		return false
	}
	r.tables = slices.Delete(r.tables, i, i+1)
	return true
}

// RemoveEnum 删除枚举，仍被字段引用时拒绝
func (r *Registry) RemoveEnum(name string) error {
	i := r.enumIndex(name)
	if i < 0 {
		return InvalidArgumentf("enum %q not found", name)
	}
	if refs := r.EnumReferences(name); len(refs) > 0 {
		return InvalidArgumentf("enum %q is referenced by %s", name, strings.Join(refs, ", "))
	}
	r.enums = slices.Delete(r.enums, i, i+1)
	return nil
}

// EnumReferences 返回引用该枚举的 "表.字段" 列表
func (r *Registry) EnumReferences(name string) []string {
	var refs []string
	for _, t := range r.tables {
		for _, f := range t.Fields {
			if f.Type == FieldTypeEnum && f.EnumName == name {
				refs = append(refs, t.Name+"."+f.Name)
			}
		}
	}
	return refs
}

// Tables 按声明顺序返回所有表定义的副本
func (r *Registry) Tables() []*TableDefinition {
	out := make([]*TableDefinition, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t.Clone())
	}
	return out
}

// Enums 按声明顺序返回所有枚举定义的副本
func (r *Registry) Enums() []*EnumDefinition {
	out := make([]*EnumDefinition, 0, len(r.enums))
	for _, e := range r.enums {
		out = append(out, e.Clone())
	}
	return out
}

func (r *Registry) TableNames() []string {
	names := make([]string, 0, len(r.tables))
	for _, t := range r.tables {
		names = append(names, t.Name)
	}
	return names
}

func (r *Registry) Len() int {
	return len(r.tables)
}

func (r *Registry) Reset() {
	r.tables = nil
	r.enums = nil
}

func (r *Registry) tableIndex(name string) int {
	return slices.IndexFunc(r.tables, func(t *TableDefinition) bool { return strings.EqualFold(t.Name, name) })
}

func (r *Registry) enumIndex(name string) int {
	return slices.IndexFunc(r.enums, func(e *EnumDefinition) bool { return e.Name == name })
}
