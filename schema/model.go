package schema

import (
	"regexp"
	"slices"
)

// IDColumn 隐式的自增主键列，由存储层维护，不属于 TableDefinition.Fields
const IDColumn = "id"

// FieldType 字段类型
type FieldType string

const (
	FieldTypeInteger FieldType = "integer"
	FieldTypeReal    FieldType = "real"
	FieldTypeChar    FieldType = "char"
	FieldTypeString  FieldType = "string"
	FieldTypeEnum    FieldType = "enum"
	FieldTypeEmail   FieldType = "email"
)

var fieldTypes = []FieldType{
	FieldTypeInteger,
	FieldTypeReal,
	FieldTypeChar,
	FieldTypeString,
	FieldTypeEnum,
	FieldTypeEmail,
}

// FieldTypes 返回所有支持的字段类型
func FieldTypes() []FieldType {
	return slices.Clone(fieldTypes)
}

// ParseFieldType 将文本标签解析为 FieldType
func ParseFieldType(tag string) (FieldType, error) {
	t := FieldType(tag)
	if !t.Valid() {
		return "", InvalidArgumentf("unknown field type %q", tag)
	}
	return t, nil
}

func (t FieldType) Valid() bool {
	return slices.Contains(fieldTypes, t)
}

func (t FieldType) String() string {
	return string(t)
}

// FieldDefinition 字段定义
type FieldDefinition struct {
	Name string
	Type FieldType
	// EnumName 仅当 Type 为 enum 时有值
	EnumName string
}

// TableDefinition 表定义，Fields 保持声明顺序
type TableDefinition struct {
	Name   string
	Fields []FieldDefinition
}

// Field 按名称查找字段
func (t *TableDefinition) Field(name string) (FieldDefinition, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

func (t *TableDefinition) HasField(name string) bool {
	_, ok := t.Field(name)
	return ok
}

// FieldNames 按声明顺序返回字段名
func (t *TableDefinition) FieldNames() []string {
	names := make([]string, 0, len(t.Fields))
	for _, f := range t.Fields {
		names = append(names, f.Name)
	}
	return names
}

// Clone 深拷贝
func (t *TableDefinition) Clone() *TableDefinition {
	return &TableDefinition{
		Name:   t.Name,
		Fields: slices.Clone(t.Fields),
	}
}

// EnumDefinition 枚举定义
type EnumDefinition struct {
	Name   string
	Values []string
}

func (e *EnumDefinition) Contains(value string) bool {
	return slices.Contains(e.Values, value)
}

func (e *EnumDefinition) Clone() *EnumDefinition {
	return &EnumDefinition{
		Name:   e.Name,
		Values: slices.Clone(e.Values),
	}
}

// Row 一行数据，所有值都以文本形式存储
type Row struct {
	ID     int64
	Values map[string]string
}

// Project 按给定字段顺序取值，缺失的字段返回空字符串
func (r Row) Project(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = r.Values[f]
	}
	return out
}

var identifierRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier 表名和字段名会直接成为 SQL 标识符
func ValidIdentifier(name string) bool {
	return identifierRegexp.MatchString(name)
}
