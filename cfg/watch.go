package cfg

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Watcher 监听配置文件，文件写入后重新加载并回调
type Watcher struct {
	filename string
	watcher  *fsnotify.Watcher
	once     sync.Once
	done     chan struct{}
}

// Watch 监听 filename，每次写入后调用 fn；newObject 为每次加载提供一个新的目标对象，
// 加载失败时把错误交给 fn，由调用方决定是否保留旧配置
func Watch(filename string, newObject func() any, fn func(object any, err error)) (*Watcher, error) {
	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, errors.Wrap(err, "invalid file path")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}
	// 监听所在目录，编辑器的替换写入也能收到事件
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, errors.Wrap(err, "failed to add directory to watcher")
	}

	w := &Watcher{filename: absPath, watcher: watcher, done: make(chan struct{})}
	go w.run(newObject, fn)
	return w, nil
}

func (w *Watcher) run(newObject func() any, fn func(any, error)) {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.filename {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			object := newObject()
			fn(object, Load(w.filename, object))
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close 停止监听
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		err = w.watcher.Close()
		<-w.done
	})
	return err
}
