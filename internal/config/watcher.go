package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agent-of-empires/aoe/internal/logging"
)

var watchLog = logging.ForComponent(logging.CompConfig)

// Watcher watches the config file and calls onChange after edits. Events are
// debounced because editors fire several write events per save.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher

	ctx    context.Context
	cancel context.CancelFunc

	onChange func()
}

// NewWatcher creates a watcher for the config file at path. Call Start in a
// goroutine to begin watching. The parent directory is created if missing,
// since fsnotify cannot watch a path that does not exist.
func NewWatcher(path string, onChange func()) (*Watcher, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		path:     path,
		watcher:  fw,
		ctx:      ctx,
		cancel:   cancel,
		onChange: onChange,
	}, nil
}

// Start begins watching. Must be called in a goroutine; returns when Stop is
// called. The directory is watched rather than the file itself so that
// rename-over saves (vim, atomic writers) keep firing events.
func (w *Watcher) Start() {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		watchLog.Warn("config_watch_add_failed", slog.String("dir", dir), slog.String("error", err.Error()))
		return
	}

	var debounceMu sync.Mutex
	var debounceTimer *time.Timer

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			debounceMu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(200*time.Millisecond, func() {
				watchLog.Debug("config_changed", slog.String("path", w.path))
				if w.onChange != nil {
					w.onChange()
				}
			})
			debounceMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			watchLog.Warn("config_watch_error", slog.String("error", err.Error()))
		}
	}
}

// Stop shuts down the watcher.
func (w *Watcher) Stop() {
	w.cancel()
	_ = w.watcher.Close()
}
