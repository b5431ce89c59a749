package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/rendergraph/core"
)

// Watcher reloads a Config from path whenever the file changes on disk,
// adapted from an AssetManager's fsnotify plumbing but scoped to a single
// file rather than a recursive asset tree.
type Watcher struct {
	path string

	mu      sync.RWMutex
	current Config

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	onChange func(Config)
}

// NewWatcher loads path once, then begins watching it for changes.
// onChange, if non-nil, is invoked with the freshly reloaded config after
// every successful reload.
func NewWatcher(path string, onChange func(Config)) (*Watcher, error) {
	initial, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatch.Add(path); err != nil {
		fsWatch.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		current:  initial,
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		onChange: onChange,
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("config: watch %q: %v", w.path, err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		core.LogWarn("config: reload %q failed, keeping previous config: %v", w.path, err)
		return
	}
	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()
	core.LogInfo("config: reloaded %q", w.path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close stops watching and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsnotify.Close()
}
