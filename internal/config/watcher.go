package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/teranos/protohackd/internal/logger"
)

// ReloadFunc is invoked with the freshly-reloaded config after a debounced
// file-change event. Only log.* and pest.upstream_addr are expected to be
// acted on — listener addresses are bound once at startup.
type ReloadFunc func(*Config)

// Watcher watches the on-disk config file and debounces reload callbacks.
type Watcher struct {
	path      string
	fsw       *fsnotify.Watcher
	mu        sync.Mutex
	callbacks []ReloadFunc
	timer     *time.Timer
}

// NewWatcher starts watching configPath. Caller must call Close.
func NewWatcher(configPath string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(configPath)); err != nil {
		fsw.Close()
		return nil, err
	}
	w := &Watcher{path: configPath, fsw: fsw}
	go w.loop()
	return w, nil
}

// OnReload registers a callback fired after every debounced reload.
func (w *Watcher) OnReload(fn ReloadFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Named("config").Warnw("watcher error", logger.FieldError, err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(300*time.Millisecond, w.reload)
}

func (w *Watcher) reload() {
	Reset()
	cfg, err := Load(w.path)
	if err != nil {
		logger.Named("config").Warnw("reload failed", logger.FieldError, err)
		return
	}
	logger.Named("config").Infow("config reloaded", "path", w.path)
	w.mu.Lock()
	callbacks := append([]ReloadFunc(nil), w.callbacks...)
	w.mu.Unlock()
	for _, cb := range callbacks {
		cb(cfg)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error { return w.fsw.Close() }
