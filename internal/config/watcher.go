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

const reloadDebounce = 500 * time.Millisecond

// Watcher reloads the config file on change and hands the result to a
// callback. The parent directory is watched so editors that replace the
// file by rename are still seen.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	explicit Overrides
	onReload func(Options)
	logger   *slog.Logger
}

// NewWatcher creates a watcher for path. explicit overrides are reapplied
// on every reload so command-line flags keep winning.
func NewWatcher(path string, explicit Overrides, onReload func(Options), logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return nil, fmt.Errorf("no config path to watch")
	}
	path = filepath.Clean(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		watcher:  w,
		path:     path,
		explicit: explicit,
		onReload: onReload,
		logger:   logger,
	}, nil
}

// Run watches for changes until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var (
		mu       sync.Mutex
		debounce *time.Timer
	)
	stop := func() {
		mu.Lock()
		defer mu.Unlock()
		if debounce != nil {
			debounce.Stop()
		}
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			mu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, w.reload)
			mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	opts, err := Resolve(w.path, w.explicit)
	if err != nil {
		w.logger.Warn("config reload failed", "path", w.path, "error", err)
		return
	}
	for _, msg := range opts.Validate() {
		w.logger.Warn("config", "warning", msg)
	}
	w.logger.Info("config reloaded", "path", w.path, "enabled", opts.Enabled)
	w.onReload(opts)
}
