package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileWriterOptions 文件输出配置
type FileWriterOptions struct {
	// 文件路径
	Path string `cfg:"path" validate:"required"`
	// 单个文件最大字节数，0 表示不轮转
	MaxSize int64 `cfg:"maxSize"`
	// 保留的历史文件数量
	MaxBackups int `cfg:"maxBackups" def:"3"`
}

// FileWriter 文件输出器，超过 MaxSize 后轮转为 path.1, path.2 ...
type FileWriter struct {
	options FileWriterOptions
	file    *os.File
	size    int64
	mu      sync.Mutex
}

func NewFileWriterWithOptions(options *FileWriterOptions) (*FileWriter, error) {
	if options == nil || options.Path == "" {
		return nil, fmt.Errorf("file path is required")
	}

	w := &FileWriter{options: *options}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (f *FileWriter) open() error {
	dir := filepath.Dir(f.options.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(f.options.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", f.options.Path, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to stat file %s: %w", f.options.Path, err)
	}

	f.file = file
	f.size = info.Size()
	return nil
}

func (f *FileWriter) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return 0, fmt.Errorf("file is closed")
	}

	if f.options.MaxSize > 0 && f.size > 0 && f.size+int64(len(p)) > f.options.MaxSize {
		if err := f.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := f.file.Write(p)
	f.size += int64(n)
	return n, err
}

// rotate 调用方持有锁
func (f *FileWriter) rotate() error {
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("failed to close file %s: %w", f.options.Path, err)
	}
	f.file = nil

	backups := max(f.options.MaxBackups, 1)
	_ = os.Remove(backupName(f.options.Path, backups))
	for i := backups - 1; i >= 1; i-- {
		_ = os.Rename(backupName(f.options.Path, i), backupName(f.options.Path, i+1))
	}
	if err := os.Rename(f.options.Path, backupName(f.options.Path, 1)); err != nil {
		return fmt.Errorf("failed to rotate file %s: %w", f.options.Path, err)
	}

	return f.open()
}

func backupName(path string, i int) string {
	return fmt.Sprintf("%s.%d", path, i)
}

func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
