package writer

import (
	"fmt"

	"github.com/hatlonely/tabdb/ref"
)

// MultiWriterOptions 多输出配置
type MultiWriterOptions struct {
	Writers []ref.TypeOptions `cfg:"writers"`
}

// MultiWriter 将同一条日志写入多个输出器
type MultiWriter struct {
	writers []Writer
}

func NewMultiWriterWithOptions(options *MultiWriterOptions) (*MultiWriter, error) {
	if options == nil || len(options.Writers) == 0 {
		return nil, fmt.Errorf("at least one writer is required")
	}

	writers := make([]Writer, 0, len(options.Writers))
	for i := range options.Writers {
		w, err := ref.NewWithTypeOptions[Writer](&options.Writers[i])
		if err != nil {
			for _, created := range writers {
				_ = created.Close()
			}
			return nil, fmt.Errorf("failed to create writer %d: %w", i, err)
		}
		writers = append(writers, w)
	}

	return NewMultiWriter(writers...), nil
}

func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

func (m *MultiWriter) Write(p []byte) (int, error) {
	for i, w := range m.writers {
		if _, err := w.Write(p); err != nil {
			return 0, fmt.Errorf("writer %d failed: %w", i, err)
		}
	}
	return len(p), nil
}

func (m *MultiWriter) Close() error {
	var lastErr error
	for i, w := range m.writers {
		if err := w.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close writer %d: %w", i, err)
		}
	}
	return lastErr
}
