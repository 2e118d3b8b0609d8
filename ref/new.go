package ref

import (
	"fmt"
	"reflect"
	"sync"
)

// TypeOptions 通过命名空间和类型名选择一个已注册的构造函数
type TypeOptions struct {
	Namespace string `cfg:"namespace"`
	Type      string `cfg:"type"`
	Options   any    `cfg:"options"`
}

// Convertable 可以把自身转换为构造函数参数类型的配置数据
type Convertable interface {
	// ConvertTo object 为指向目标对象的指针
	ConvertTo(object any) error
}

type constructor struct {
	originalFunc any
	newFunc      reflect.Value
	paramType    reflect.Type // 无参构造函数为 nil
	returnsError bool
}

var errorInterface = reflect.TypeOf((*error)(nil)).Elem()

func newConstructor(newFunc any) (*constructor, error) {
	funcValue := reflect.ValueOf(newFunc)
	if funcValue.Kind() != reflect.Func {
		return nil, fmt.Errorf("newFunc must be a function")
	}

	funcType := funcValue.Type()
	if funcType.NumIn() > 1 {
		return nil, fmt.Errorf("newFunc must have 0 or 1 input parameters, got %d", funcType.NumIn())
	}
	if funcType.NumOut() != 1 && funcType.NumOut() != 2 {
		return nil, fmt.Errorf("newFunc must have 1 or 2 return values, got %d", funcType.NumOut())
	}

	c := &constructor{
		originalFunc: newFunc,
		newFunc:      funcValue,
	}
	if funcType.NumIn() == 1 {
		c.paramType = funcType.In(0)
	}
	if funcType.NumOut() == 2 {
		if !funcType.Out(1).Implements(errorInterface) {
			return nil, fmt.Errorf("second return value must be error type")
		}
		c.returnsError = true
	}

	return c, nil
}

func (c *constructor) new(options any) (any, error) {
	var args []reflect.Value
	if c.paramType != nil {
		arg, err := c.convertOptions(options)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	results := c.newFunc.Call(args)
	if c.returnsError && !results[1].IsNil() {
		return nil, results[1].Interface().(error)
	}
	return results[0].Interface(), nil
}

// convertOptions 将 options 转换为构造函数的参数类型
//   - nil: 参数类型的零值（指针类型分配一个空对象）
//   - 可直接赋值: 原样传入
//   - Convertable: 调用 ConvertTo
//   - map 等通用结构: 按 cfg tag 解码
func (c *constructor) convertOptions(options any) (reflect.Value, error) {
	target := c.paramType
	elemType := target
	if target.Kind() == reflect.Ptr {
		elemType = target.Elem()
	}

	if options == nil {
		if target.Kind() == reflect.Ptr {
			return reflect.New(elemType), nil
		}
		return reflect.Zero(target), nil
	}

	value := reflect.ValueOf(options)
	if value.Type().AssignableTo(target) {
		return value, nil
	}

	ptr := reflect.New(elemType)
	if convertable, ok := options.(Convertable); ok {
		if err := convertable.ConvertTo(ptr.Interface()); err != nil {
			return reflect.Value{}, fmt.Errorf("failed to convert options to %v: %w", target, err)
		}
	} else if err := Decode(options, ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("failed to decode options to %v: %w", target, err)
	}

	if target.Kind() == reflect.Ptr {
		return ptr, nil
	}
	return ptr.Elem(), nil
}

var constructors sync.Map

func key(namespace string, type_ string) string {
	return namespace + ":" + type_
}

// Register 注册构造函数，同一个 key 重复注册相同函数时忽略
func Register(namespace string, type_ string, newFunc any) error {
	k := key(namespace, type_)
	if existing, ok := constructors.Load(k); ok {
		if reflect.ValueOf(existing.(*constructor).originalFunc).Pointer() == reflect.ValueOf(newFunc).Pointer() {
			return nil
		}
		return fmt.Errorf("constructor for %s already registered with different function", k)
	}

	c, err := newConstructor(newFunc)
	if err != nil {
		return fmt.Errorf("failed to create constructor: %w", err)
	}

	constructors.Store(k, c)
	return nil
}

func MustRegister(namespace string, type_ string, newFunc any) {
	if err := Register(namespace, type_, newFunc); err != nil {
		panic(err)
	}
}

// RegisterT 以类型 T 的包路径和类型名作为 namespace 和 type
func RegisterT[T any](newFunc any) error {
	namespace, type_, err := typeKey[T]()
	if err != nil {
		return err
	}
	return Register(namespace, type_, newFunc)
}

func MustRegisterT[T any](newFunc any) {
	if err := RegisterT[T](newFunc); err != nil {
		panic(err)
	}
}

// New 调用已注册的构造函数创建对象
func New(namespace string, type_ string, options any) (any, error) {
	value, ok := constructors.Load(key(namespace, type_))
	if !ok {
		return nil, fmt.Errorf("constructor not found for %s", key(namespace, type_))
	}
	return value.(*constructor).new(options)
}

// NewT 按 T 的类型信息查找构造函数
func NewT[T any](options any) (T, error) {
	var zero T
	namespace, type_, err := typeKey[T]()
	if err != nil {
		return zero, err
	}

	obj, err := New(namespace, type_, options)
	if err != nil {
		return zero, err
	}

	result, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("created object is not of type %T", zero)
	}
	return result, nil
}

// NewWithTypeOptions 按 TypeOptions 创建对象并断言为 T
func NewWithTypeOptions[T any](options *TypeOptions) (T, error) {
	var zero T
	if options == nil {
		return zero, fmt.Errorf("type options cannot be nil")
	}

	obj, err := New(options.Namespace, options.Type, options.Options)
	if err != nil {
		return zero, err
	}

	result, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%s does not implement %s", key(options.Namespace, options.Type), reflect.TypeOf((*T)(nil)).Elem())
	}
	return result, nil
}

func typeKey[T any]() (string, string, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return "", "", fmt.Errorf("cannot determine package path or type name for type %v", t)
	}
	return t.PkgPath(), t.Name(), nil
}
