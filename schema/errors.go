package schema

import (
	"github.com/pkg/errors"
)

// 错误分类，调用方通过 errors.Is 判断
var (
	// ErrInvalidArgument 输入缺失或不合法：空名称、空字段集合、未知的表/字段/枚举引用
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrValidation 行数据未通过类型、格式或枚举成员检查
	ErrValidation = errors.New("validation failed")
	// ErrNotConnected 没有活动的存储连接
	ErrNotConnected = errors.New("database not connected")
	// ErrStorage 底层存储拒绝了操作
	ErrStorage = errors.New("storage error")
	// ErrDeserialization 持久化文档格式错误或包含未知类型标签
	ErrDeserialization = errors.New("deserialization error")
)

// InvalidArgumentf 构造一个 ErrInvalidArgument 错误
func InvalidArgumentf(format string, args ...any) error {
	return errors.WithMessagef(ErrInvalidArgument, format, args...)
}
