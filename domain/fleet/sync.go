package fleet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/soocke/pixel-watch-go/domain/monitor"
	"github.com/soocke/pixel-watch-go/domain/rules"
)

const DefaultSyncDebounce = 500 * time.Millisecond

// ProgramLoader reads rule sets by file name. The target name inside a file
// may differ from the file name.
type ProgramLoader interface {
	Dir() string
	List() ([]string, error)
	Load(name string) (rules.Target, error)
}

// LoadPrograms creates an idle monitor for every readable program file and
// returns how many were created. Unreadable files are logged and skipped.
func (c *Coordinator) LoadPrograms(programs ProgramLoader) int {
	files, err := programs.List()
	if err != nil {
		c.logger.Error("list programs failed", "dir", programs.Dir(), "error", err)
		return 0
	}
	created := 0
	for _, file := range files {
		t, err := programs.Load(file)
		if err != nil {
			c.logger.Warn("program skipped", "program", file, "error", err)
			continue
		}
		if c.CreateMonitors([]rules.Target{t}) == 0 {
			continue
		}
		c.track(file, t.Name)
		created++
	}
	return created
}

// Apply brings the fleet in line with the program file name. A new target
// gets a started monitor and a known one has its rules swapped. A target
// renamed inside the file replaces the old monitor. A deleted file removes
// the monitor it defined.
func (c *Coordinator) Apply(ctx context.Context, programs ProgramLoader, file string) error {
	t, err := programs.Load(file)
	if errors.Is(err, os.ErrNotExist) {
		name, ok := c.source(file)
		if !ok {
			return nil
		}
		c.logger.Info("program removed", "program", file, "target", name)
		return c.Remove(name)
	}
	if err != nil {
		return err
	}
	if prev, ok := c.source(file); ok && prev != t.Name {
		c.logger.Info("program renamed its target", "program", file, "from", prev, "to", t.Name)
		if err := c.Remove(prev); err != nil && !errors.Is(err, ErrUnknownTarget) {
			c.logger.Warn("renamed target did not stop cleanly", "target", prev, "error", err)
		}
	}
	if m, ok := c.Get(t.Name); ok && m.State() != monitor.StateStopped {
		c.track(file, t.Name)
		return c.Reload(t)
	}
	if c.CreateMonitors([]rules.Target{t}) == 0 {
		return fmt.Errorf("%q: monitor not created", t.Name)
	}
	c.track(file, t.Name)
	m, _ := c.Get(t.Name)
	return m.Start(ctx)
}

// track records file as the definition of target name. A target has one
// source file; the latest file applied wins.
func (c *Coordinator) track(file, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for f, n := range c.sources {
		if n == name && f != file {
			c.logger.Warn("target now defined by another program", "target", name, "was", f, "now", file)
			delete(c.sources, f)
		}
	}
	c.sources[file] = name
}

func (c *Coordinator) source(file string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.sources[file]
	return name, ok
}

// WatchPrograms applies program file changes until ctx is cancelled. It
// returns once the watcher is installed.
func (c *Coordinator) WatchPrograms(ctx context.Context, programs ProgramLoader, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultSyncDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("program watcher: %w", err)
	}
	if err := w.Add(programs.Dir()); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", programs.Dir(), err)
	}
	c.logger.Info("watching programs", "dir", programs.Dir())
	go c.syncLoop(ctx, w, programs, debounce)
	return nil
}

func (c *Coordinator) syncLoop(ctx context.Context, w *fsnotify.Watcher, programs ProgramLoader, debounce time.Duration) {
	defer w.Close()

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := map[string]bool{}
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			ext := strings.ToLower(filepath.Ext(ev.Name))
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending[strings.TrimSuffix(filepath.Base(ev.Name), filepath.Ext(ev.Name))] = true
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			c.logger.Warn("program watcher", "error", err)
		case <-timer.C:
			for name := range pending {
				if err := c.Apply(ctx, programs, name); err != nil {
					c.logger.Warn("program change not applied", "program", name, "error", err)
				}
			}
			clear(pending)
		}
	}
}
