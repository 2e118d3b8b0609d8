package log

import (
	"github.com/hatlonely/tabdb/log/logger"
)

var defaultLogger logger.Logger

func init() {
	l, err := logger.NewSLogWithOptions(&logger.SLogOptions{
		Level:  "info",
		Format: "text",
	})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	defaultLogger = l
}

// Default 输出到 stderr 的 text 格式日志器
func Default() logger.Logger {
	return defaultLogger
}

func SetDefault(l logger.Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// NewLoggerWithOptions options 为 nil 时返回 Default()
func NewLoggerWithOptions(options *logger.SLogOptions) (logger.Logger, error) {
	if options == nil {
		return Default(), nil
	}
	return logger.NewSLogWithOptions(options)
}

func Discard() logger.Logger {
	return logger.NewDiscard()
}
