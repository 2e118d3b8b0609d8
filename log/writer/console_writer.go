package writer

import (
	"io"
	"os"
)

// ConsoleWriterOptions 控制台输出配置
type ConsoleWriterOptions struct {
	// 输出目标：stdout, stderr
	Target string `cfg:"target" def:"stderr" validate:"omitempty,oneof=stdout stderr"`
}

// ConsoleWriter 控制台输出器，Close 不会关闭标准输出
type ConsoleWriter struct {
	target string
	w      io.Writer
}

func NewConsoleWriterWithOptions(options *ConsoleWriterOptions) (*ConsoleWriter, error) {
	target := "stderr"
	if options != nil && options.Target == "stdout" {
		target = "stdout"
	}

	var w io.Writer = os.Stderr
	if target == "stdout" {
		w = os.Stdout
	}
	return &ConsoleWriter{target: target, w: w}, nil
}

func (c *ConsoleWriter) Target() string {
	return c.target
}

func (c *ConsoleWriter) Write(p []byte) (int, error) {
	return c.w.Write(p)
}

func (c *ConsoleWriter) Close() error {
	return nil
}
