package writer

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// FileWriterOptions 文件输出配置
type FileWriterOptions struct {
	Path string `cfg:"path"`
	// MaxSize 单个文件的字节上限，超过后当前文件改名为 <path>.1 并重新打开，0 表示不切分
	MaxSize int64 `cfg:"maxSize"`
}

// FileWriter 追加写入的文件输出器，SQL 日志量大时可按大小切分
type FileWriter struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	file    *os.File
	size    int64
}

func NewFileWriterWithOptions(options *FileWriterOptions) (*FileWriter, error) {
	if options == nil || options.Path == "" {
		return nil, errors.New("file path is required")
	}
	if options.MaxSize < 0 {
		return nil, errors.Errorf("invalid max size %d", options.MaxSize)
	}

	dir := filepath.Dir(options.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "os.MkdirAll failed. dir: %s", dir)
	}

	w := &FileWriter{path: options.Path, maxSize: options.MaxSize}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *FileWriter) open() error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrapf(err, "os.OpenFile failed. path: %s", w.path)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return errors.Wrapf(err, "file.Stat failed. path: %s", w.path)
	}
	w.file = file
	w.size = info.Size()
	return nil
}

// rotate 只保留一个历史文件
func (w *FileWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return errors.Wrap(err, "close before rotate failed")
	}
	w.file = nil
	if err := os.Rename(w.path, w.path+".1"); err != nil {
		return errors.Wrapf(err, "os.Rename failed. path: %s", w.path)
	}
	return w.open()
}

func (w *FileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, errors.New("file writer is closed")
	}
	if w.maxSize > 0 && w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
