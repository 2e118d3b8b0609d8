package codec

import (
	"github.com/hatlonely/tabdb/schema"
	"github.com/pkg/errors"
)

// Document 持久化的 schema 文档，不包含行数据
type Document struct {
	Name            string                `json:"name" yaml:"name" msgpack:"name" bson:"name"`
	Tables          []TableDocument       `json:"tables" yaml:"tables" msgpack:"tables" bson:"tables"`
	EnumDefinitions *OrderedMap[[]string] `json:"enum_definitions" yaml:"enum_definitions" msgpack:"enum_definitions" bson:"enum_definitions"`
}

type TableDocument struct {
	Name   string                     `json:"name" yaml:"name" msgpack:"name" bson:"name"`
	Fields *OrderedMap[FieldDocument] `json:"fields" yaml:"fields" msgpack:"fields" bson:"fields"`
}

// FieldDocument EnumName 为 nil 时序列化为 null
type FieldDocument struct {
	Type     string  `json:"type" yaml:"type" msgpack:"type" bson:"type"`
	EnumName *string `json:"enum_name" yaml:"enum_name" msgpack:"enum_name" bson:"enum_name"`
}

// Encode 按声明顺序导出目录
func Encode(name string, registry *schema.Registry) *Document {
	doc := &Document{
		Name:            name,
		Tables:          make([]TableDocument, 0, registry.Len()),
		EnumDefinitions: NewOrderedMap[[]string](),
	}

	for _, t := range registry.Tables() {
		fields := NewOrderedMap[FieldDocument]()
		for _, f := range t.Fields {
			fd := FieldDocument{Type: f.Type.String()}
			if f.EnumName != "" {
				enumName := f.EnumName
				fd.EnumName = &enumName
			}
			fields.Set(f.Name, fd)
		}
		doc.Tables = append(doc.Tables, TableDocument{Name: t.Name, Fields: fields})
	}

	for _, e := range registry.Enums() {
		doc.EnumDefinitions.Set(e.Name, e.Values)
	}
	return doc
}

// Decode 重建目录，未知类型标签或非法定义返回 schema.ErrDeserialization
func Decode(doc *Document) (*schema.Registry, error) {
	if doc == nil {
		return nil, errors.WithMessage(schema.ErrDeserialization, "document is empty")
	}

	registry := schema.NewRegistry()
	for name, values := range doc.EnumDefinitions.All() {
		if _, err := registry.DefineEnum(name, values); err != nil {
			return nil, errors.WithMessagef(schema.ErrDeserialization, "enum %q: %v", name, err)
		}
	}

	for i, t := range doc.Tables {
		def := &schema.TableDefinition{Name: t.Name}
		for fieldName, fd := range t.Fields.All() {
			fieldType, err := schema.ParseFieldType(fd.Type)
			if err != nil {
				return nil, errors.WithMessagef(schema.ErrDeserialization, "table %q field %q: unknown type tag %q", t.Name, fieldName, fd.Type)
			}
			field := schema.FieldDefinition{Name: fieldName, Type: fieldType}
			if fd.EnumName != nil {
				field.EnumName = *fd.EnumName
			}
			def.Fields = append(def.Fields, field)
		}
		if err := registry.PutTable(def); err != nil {
			return nil, errors.WithMessagef(schema.ErrDeserialization, "table #%d %q: %v", i, t.Name, err)
		}
	}

	return registry, nil
}
