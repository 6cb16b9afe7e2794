package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/moolen/magma/internal/logging"
)

var watcherLogger = logging.GetLogger("config-watcher")

// ReloadCallback receives the freshly loaded configuration after the
// file on disk changed.
type ReloadCallback func(cfg *Config)

// Watcher reloads the configuration file when it changes on disk.
// Events are debounced so editors that write in several steps trigger
// a single reload.
type Watcher struct {
	path     string
	callback ReloadCallback
	debounce time.Duration

	mu            sync.Mutex
	current       *Config
	debounceTimer *time.Timer
	ready         chan struct{}
	readyOnce     sync.Once
}

// NewWatcher creates a watcher for the given config file. The callback
// runs on every successful reload, including the initial load.
func NewWatcher(path string, callback ReloadCallback) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path must not be empty")
	}
	if callback == nil {
		return nil, fmt.Errorf("reload callback must not be nil")
	}
	return &Watcher{
		path:     path,
		callback: callback,
		debounce: 500 * time.Millisecond,
		ready:    make(chan struct{}),
	}, nil
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Start loads the file once and then watches it until the context is
// cancelled. The initial load must succeed; later reload failures are
// logged and the previous configuration stays active.
func (w *Watcher) Start(ctx context.Context) error {
	cfg, err := Load(w.path)
	if err != nil {
		return fmt.Errorf("initial config load failed: %w", err)
	}
	w.setCurrent(cfg)
	w.callback(cfg)

	go w.watchLoop(ctx)

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("config watcher did not become ready")
	}
}

func (w *Watcher) setCurrent(cfg *Config) {
	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()
}

func (w *Watcher) signalReady() {
	w.readyOnce.Do(func() { close(w.ready) })
}

func (w *Watcher) watchLoop(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		watcherLogger.Error("Failed to create file watcher: %v", err)
		w.signalReady()
		return
	}
	defer watcher.Close()

	if err := watcher.Add(w.path); err != nil {
		watcherLogger.Error("Failed to watch %s: %v", w.path, err)
		w.signalReady()
		return
	}
	w.signalReady()

	for {
		select {
		case <-ctx.Done():
			w.cancelDebounce()
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				w.scheduleReload()
			case event.Op&(fsnotify.Rename|fsnotify.Remove) != 0:
				// Editors replace the file on save; wait for the new
				// inode and re-register the watch.
				time.Sleep(50 * time.Millisecond)
				if err := watcher.Add(w.path); err != nil {
					watcherLogger.Warn("Failed to re-watch %s: %v", w.path, err)
					continue
				}
				w.scheduleReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			watcherLogger.Error("File watcher error: %v", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) cancelDebounce() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		watcherLogger.Error("Config reload failed, keeping previous config: %v", err)
		return
	}
	w.setCurrent(cfg)
	watcherLogger.Info("Config reloaded from %s", w.path)
	w.callback(cfg)
}
