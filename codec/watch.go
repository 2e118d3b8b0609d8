package codec

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/hatlonely/tabdb/log"
	"github.com/hatlonely/tabdb/log/logger"
	"github.com/pkg/errors"
)

type FileWatcherOptions struct {
	Path   string              `cfg:"path" validate:"required"`
	Logger *logger.SLogOptions `cfg:"logger"`
}

// FileWatcher 监听模式文件的变化并通知使用者，不读取文件内容。
// 监听的是文件所在目录，SaveFile 的临时文件重命名也能被感知。
type FileWatcher struct {
	path string

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	logger logger.Logger
}

func NewFileWatcherWithOptions(options *FileWatcherOptions) (*FileWatcher, error) {
	if options == nil || options.Path == "" {
		return nil, errors.New("file watcher path cannot be empty")
	}

	l, err := log.NewLoggerWithOptions(options.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "log.NewLoggerWithOptions failed")
	}

	path := filepath.Clean(options.Path)
	return &FileWatcher{
		path:   path,
		done:   make(chan struct{}, 1),
		logger: l.WithGroup("fileWatcher").With("path", path),
	}, nil
}

// OnChange 先同步通知一次，之后每次文件被写入、创建或重命名时在后台协程中通知
func (w *FileWatcher) OnChange(listener func() error) error {
	if err := listener(); err != nil {
		return errors.WithMessage(err, "listener failed")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "fsnotify.NewWatcher failed")
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return errors.Wrap(err, "watcher.Add failed")
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer watcher.Close()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if filepath.Clean(event.Name) != w.path {
					continue
				}
				w.logger.Debug("schema file changed", "op", event.Op.String())
				if err := listener(); err != nil {
					w.logger.Warn("listener failed", "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("watcher error", "error", err)
			case <-w.done:
				return
			}
		}
	}()

	return nil
}

// Close 可以重复调用
func (w *FileWatcher) Close() error {
	w.closeOnce.Do(func() {
		w.done <- struct{}{}
		w.wg.Wait()
		close(w.done)
	})
	return nil
}
