package writer

import (
	"io"
)

// Writer 日志输出器接口
type Writer interface {
	io.Writer
	io.Closer
}

// Namespace 输出器在 ref 中的注册命名空间
const Namespace = "github.com/hatlonely/tabdb/log/writer"
