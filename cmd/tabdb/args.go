package main

import (
	"strconv"
	"strings"

	"github.com/hatlonely/tabdb/schema"
)

// parseFieldSpec 解析 name:type 或 name:enum:<enum name>
func parseFieldSpec(spec string) (schema.FieldDefinition, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
		return schema.FieldDefinition{}, schema.InvalidArgumentf("invalid field spec %q, want name:type[:enum]", spec)
	}

	fieldType, err := schema.ParseFieldType(strings.ToLower(parts[1]))
	if err != nil {
		return schema.FieldDefinition{}, schema.InvalidArgumentf("field %q: unknown type %q", parts[0], parts[1])
	}

	field := schema.FieldDefinition{Name: parts[0], Type: fieldType}
	switch {
	case fieldType == schema.FieldTypeEnum && len(parts) != 3:
		return schema.FieldDefinition{}, schema.InvalidArgumentf("enum field %q requires an enum name, want %s:enum:<enum>", parts[0], parts[0])
	case fieldType != schema.FieldTypeEnum && len(parts) == 3:
		return schema.FieldDefinition{}, schema.InvalidArgumentf("field %q of type %s cannot reference an enum", parts[0], fieldType)
	case len(parts) == 3:
		field.EnumName = parts[2]
	}
	return field, nil
}

// parseValues 解析 field=value，值中可以包含 '='，值可以为空
func parseValues(args []string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		if !ok || field == "" {
			return nil, schema.InvalidArgumentf("invalid value %q, want field=value", arg)
		}
		if _, dup := values[field]; dup {
			return nil, schema.InvalidArgumentf("field %q given more than once", field)
		}
		values[field] = value
	}
	return values, nil
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, schema.InvalidArgumentf("invalid row id %q", arg)
	}
	return id, nil
}
