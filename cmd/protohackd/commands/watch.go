package commands

import (
	"sync"

	"github.com/teranos/protohackd/internal/config"
	"github.com/teranos/protohackd/internal/logger"
)

var (
	watcherOnce sync.Once
	watcher     *config.Watcher
)

// configWatcher lazily starts the shared config file watcher, wiring the
// ambient log-level/theme reload every server command gets for free.
// Individual commands may add their own OnReload callback (e.g. pest's
// upstream address) on top of this one instance.
func configWatcher(cfg *config.Config) *config.Watcher {
	watcherOnce.Do(func() {
		path := cfgPath
		if path == "" {
			path = "protohackd.toml"
		}
		w, err := config.NewWatcher(path)
		if err != nil {
			logger.Named("config").Warnw("config watcher not started", logger.FieldError, err)
			return
		}
		w.OnReload(func(c *config.Config) {
			_ = logger.Initialize(logger.Options{JSON: c.Log.JSON, Verbosity: c.Log.Level, Theme: c.Log.Theme})
		})
		watcher = w
	})
	return watcher
}
