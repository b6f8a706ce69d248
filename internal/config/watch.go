package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads cfg whenever its file changes and passes every successfully
// validated result to onChange. The parent directory is watched so editors
// that replace the file on save are handled. Watch blocks until ctx is done.
func Watch(ctx context.Context, cfg *Config, onChange func(*Config)) error {
	if cfg.File == "" {
		return fmt.Errorf("configuration was not loaded from a file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(cfg.File)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", target, err)
	}

	logger := slog.Default().With("component", "config.watch")
	logger.Info("Config watcher started", "path", target)

	var (
		mu      sync.Mutex
		pending *time.Timer
		current = cfg
	)
	reload := func() {
		mu.Lock()
		defer mu.Unlock()
		next, err := current.Reload()
		if err != nil {
			logger.Warn("Config reload rejected", "error", err)
			return
		}
		current = next
		logger.Info("Config reloaded", "path", target)
		onChange(next)
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if pending != nil {
				pending.Stop()
			}
			mu.Unlock()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			mu.Lock()
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(reloadDebounce, reload)
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			logger.Warn("Config watcher error", "error", err)
		}
	}
}
