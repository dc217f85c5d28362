package recognition

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce coalesces bursts of file events into one reload.
const DefaultReloadDebounce = 500 * time.Millisecond

// Watch reloads the engine's pattern table whenever an image file in dir is
// created, written, renamed or removed. It returns once the watcher is
// installed; reloading continues until ctx is cancelled.
func (e *Engine) Watch(ctx context.Context, dir string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("pattern watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	e.logger.Info("watching patterns", "dir", dir)
	go e.watchLoop(ctx, w, dir, debounce)
	return nil
}

func (e *Engine) watchLoop(ctx context.Context, w *fsnotify.Watcher, dir string, debounce time.Duration) {
	defer w.Close()

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !patternExts[strings.ToLower(filepath.Ext(ev.Name))] {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			e.logger.Debug("pattern change", "file", ev.Name, "op", ev.Op.String())
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			e.logger.Warn("pattern watcher", "error", err)
		case <-timer.C:
			if _, err := e.Reload(dir); err != nil {
				e.logger.Error("pattern reload failed", "dir", dir, "error", err)
			}
		}
	}
}
