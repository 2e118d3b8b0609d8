package validator

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"unicode/utf8"

	playground "github.com/go-playground/validator/v10"
	"github.com/hatlonely/tabdb/schema"
	"github.com/pkg/errors"
)

// 注册到 go-playground/validator 的自定义规则
const (
	tagInteger = "tab_integer"
	tagReal    = "tab_real"
	tagChar    = "tab_char"
	tagEmail   = "tab_email"
)

var (
	integerRegexp = regexp.MustCompile(`^[+-]?[0-9]+$`)
	emailRegexp   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// Catalog 校验所需的只读目录
type Catalog interface {
	LookupTable(name string) (*schema.TableDefinition, bool)
	LookupEnum(name string) (*schema.EnumDefinition, bool)
}

// ValidationError 携带失败原因，用于向用户反馈
type ValidationError struct {
	Table  string
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value %q for %s.%s: %s", e.Value, e.Table, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return schema.ErrValidation
}

// Validator 行校验器
type Validator struct {
	catalog  Catalog
	validate *playground.Validate
}

func NewValidator(catalog Catalog) *Validator {
	v := playground.New()
	// 规则都是纯函数，注册不会失败
	_ = v.RegisterValidation(tagInteger, func(fl playground.FieldLevel) bool {
		return isInteger(fl.Field().String())
	})
	_ = v.RegisterValidation(tagReal, func(fl playground.FieldLevel) bool {
		return isReal(fl.Field().String())
	})
	_ = v.RegisterValidation(tagChar, func(fl playground.FieldLevel) bool {
		return utf8.RuneCountInString(fl.Field().String()) == 1
	})
	_ = v.RegisterValidation(tagEmail, func(fl playground.FieldLevel) bool {
		return emailRegexp.MatchString(fl.Field().String())
	})

	return &Validator{
		catalog:  catalog,
		validate: v,
	}
}

// Validate 校验一行数据。
// 未知表或字段返回 schema.ErrInvalidArgument，值不合法返回 *ValidationError。
// 空值对所有类型都视为合法，原样存储，不做解析。
func (v *Validator) Validate(table string, values map[string]string) error {
	def, ok := v.catalog.LookupTable(table)
	if !ok {
		return schema.InvalidArgumentf("table %q not found", table)
	}

	for _, name := range slices.Sorted(maps.Keys(values)) {
		field, ok := def.Field(name)
		if !ok {
			return schema.InvalidArgumentf("field %q does not exist in table %q", name, table)
		}

		value := values[name]
		if value == "" {
			continue
		}

		if reason := v.check(field, value); reason != "" {
			return &ValidationError{Table: table, Field: name, Value: value, Reason: reason}
		}
	}

	return nil
}

// Check 布尔形式的 Validate
func (v *Validator) Check(table string, values map[string]string) bool {
	return v.Validate(table, values) == nil
}

func (v *Validator) check(field schema.FieldDefinition, value string) string {
	switch field.Type {
	case schema.FieldTypeString:
		return ""
	case schema.FieldTypeEnum:
		return v.checkEnum(field, value)
	case schema.FieldTypeInteger:
		return v.checkTag(value, tagInteger, "not an integer")
	case schema.FieldTypeReal:
		return v.checkTag(value, tagReal, "not a real number")
	case schema.FieldTypeChar:
		return v.checkTag(value, tagChar, "must be exactly one character")
	case schema.FieldTypeEmail:
		return v.checkTag(value, tagEmail, "not a valid email address")
	default:
		return fmt.Sprintf("unknown field type %q", field.Type)
	}
}

func (v *Validator) checkTag(value string, tag string, reason string) string {
	err := v.validate.Var(value, tag)
	if err == nil {
		return ""
	}
	var verrs playground.ValidationErrors
	if errors.As(err, &verrs) {
		return reason
	}
	return err.Error()
}

func (v *Validator) checkEnum(field schema.FieldDefinition, value string) string {
	if field.EnumName == "" {
		return "enum field has no enum reference"
	}
	enum, ok := v.catalog.LookupEnum(field.EnumName)
	if !ok {
		return fmt.Sprintf("enum %q is not defined", field.EnumName)
	}
	if !enum.Contains(value) {
		return fmt.Sprintf("not a member of enum %q", field.EnumName)
	}
	return ""
}

func isInteger(s string) bool {
	return integerRegexp.MatchString(s)
}

func isReal(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	if err == nil {
		return true
	}
	// 超出范围的值按 ±Inf 接受
	return errors.Is(err, strconv.ErrRange)
}
