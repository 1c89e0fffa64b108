package config

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/rockerboo/lsp-proxy/internal/logger"
)

// WatchForChanges watches path and logs a warning whenever it's written
// to. This is observational only: the proxy never reloads its config,
// so a config edit never takes effect until it is restarted, and this
// just tells the operator that it's waiting on one. The watcher is
// closed when ctx is done.
func WatchForChanges(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					logger.Warnf("config: %s changed on disk; restart lsp-proxy to pick up the change", path)
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("config: watch error: %v", werr)
			}
		}
	}()

	return nil
}
