package cfg

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var durationType = reflect.TypeOf(time.Duration(0))

// SetDefaults 按 def tag 为零值字段填充默认值，递归处理嵌套结构体
// nil 的结构体指针字段只有在其内部存在 def tag 时才会被分配
func SetDefaults(object any) error {
	rv := reflect.ValueOf(object)
	if object == nil || rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("object must be a non-nil pointer")
	}
	return setDefaults(rv.Elem())
}

func setDefaults(rv reflect.Value) error {
	if rv.Kind() != reflect.Struct {
		return nil
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fv := rv.Field(i)
		if !fv.CanSet() {
			continue
		}

		switch {
		case fv.Kind() == reflect.Struct:
			if err := setDefaults(fv); err != nil {
				return errors.WithMessagef(err, "field %s", field.Name)
			}
		case fv.Kind() == reflect.Ptr && fv.Type().Elem().Kind() == reflect.Struct:
			if fv.IsNil() {
				if !hasDefaults(fv.Type().Elem()) {
					continue
				}
				fv.Set(reflect.New(fv.Type().Elem()))
			}
			if err := setDefaults(fv.Elem()); err != nil {
				return errors.WithMessagef(err, "field %s", field.Name)
			}
		}

		def, ok := field.Tag.Lookup("def")
		if !ok || !fv.IsZero() {
			continue
		}
		if err := setDefaultValue(fv, def); err != nil {
			return errors.WithMessagef(err, "field %s", field.Name)
		}
	}
	return nil
}

func hasDefaults(rt reflect.Type) bool {
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if _, ok := field.Tag.Lookup("def"); ok {
			return true
		}
		ft := field.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft != rt && hasDefaults(ft) {
			return true
		}
	}
	return false
}

func setDefaultValue(rv reflect.Value, def string) error {
	if rv.Type() == durationType {
		d, err := time.ParseDuration(def)
		if err != nil {
			return errors.Wrapf(err, "invalid duration %q", def)
		}
		rv.SetInt(int64(d))
		return nil
	}

	switch rv.Kind() {
	case reflect.String:
		rv.SetString(def)
	case reflect.Bool:
		v, err := strconv.ParseBool(def)
		if err != nil {
			return errors.Wrapf(err, "invalid bool %q", def)
		}
		rv.SetBool(v)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := strconv.ParseInt(def, 0, rv.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid int %q", def)
		}
		rv.SetInt(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := strconv.ParseUint(def, 0, rv.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid uint %q", def)
		}
		rv.SetUint(v)
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(def, rv.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid float %q", def)
		}
		rv.SetFloat(v)
	case reflect.Slice:
		parts := strings.Split(def, ",")
		slice := reflect.MakeSlice(rv.Type(), len(parts), len(parts))
		for i, part := range parts {
			if err := setDefaultValue(slice.Index(i), strings.TrimSpace(part)); err != nil {
				return errors.WithMessagef(err, "element %d", i)
			}
		}
		rv.Set(slice)
	case reflect.Ptr:
		ptr := reflect.New(rv.Type().Elem())
		if err := setDefaultValue(ptr.Elem(), def); err != nil {
			return err
		}
		rv.Set(ptr)
	default:
		return errors.Errorf("unsupported default type %v", rv.Type())
	}
	return nil
}
