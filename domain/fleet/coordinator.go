// Package fleet manages the monitors of every configured target.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/soocke/pixel-watch-go/domain/monitor"
	"github.com/soocke/pixel-watch-go/domain/rules"
)

var ErrUnknownTarget = errors.New("unknown target")

// Factory builds an idle monitor for a validated target.
type Factory func(t rules.Target) *monitor.Monitor

type Options struct {
	// MaxMonitors caps how many monitors may be managed. Zero means no cap.
	MaxMonitors int
}

// Coordinator owns one monitor per target name. It only drives lifecycles;
// capture and matching happen on the monitors' own goroutines.
type Coordinator struct {
	logger  *slog.Logger
	factory Factory
	opts    Options

	mu       sync.RWMutex
	monitors map[string]*monitor.Monitor
	sources  map[string]string // program file -> target name
}

func New(logger *slog.Logger, factory Factory, opts Options) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Coordinator{
		logger:   logger,
		factory:  factory,
		opts:     opts,
		monitors: map[string]*monitor.Monitor{},
		sources:  map[string]string{},
	}
}

// CreateMonitors instantiates a monitor for each target and returns how many
// were created. Invalid targets and names that already have a live monitor
// are logged and skipped. A stopped monitor under the same name is replaced.
func (c *Coordinator) CreateMonitors(targets []rules.Target) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	created := 0
	for _, t := range targets {
		if err := t.Validate(); err != nil {
			c.logger.Warn("target skipped: invalid", "error", err)
			continue
		}
		if m, ok := c.monitors[t.Name]; ok && m.State() != monitor.StateStopped {
			c.logger.Warn("target skipped: monitor already exists", "target", t.Name)
			continue
		}
		if _, replacing := c.monitors[t.Name]; !replacing && c.opts.MaxMonitors > 0 && len(c.monitors) >= c.opts.MaxMonitors {
			c.logger.Warn("target skipped: monitor limit reached", "target", t.Name, "max_monitors", c.opts.MaxMonitors)
			continue
		}
		c.monitors[t.Name] = c.factory(t)
		created++
		c.logger.Info("monitor created", "target", t.Name, "rules", len(t.Rules))
	}
	return created
}

// Get returns the monitor for name.
func (c *Coordinator) Get(name string) (*monitor.Monitor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.monitors[name]
	return m, ok
}

// Names returns the managed target names in sorted order.
func (c *Coordinator) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.monitors))
	for n := range c.monitors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c *Coordinator) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.monitors)
}

func (c *Coordinator) snapshot() []*monitor.Monitor {
	names := c.Names()
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*monitor.Monitor, 0, len(names))
	for _, n := range names {
		out = append(out, c.monitors[n])
	}
	return out
}

// StartAll starts every monitor that is not yet running and returns how many
// started.
func (c *Coordinator) StartAll(ctx context.Context) int {
	n := 0
	for _, m := range c.snapshot() {
		if err := m.Start(ctx); err != nil {
			c.logger.Debug("monitor not started", "target", m.Name(), "error", err)
			continue
		}
		n++
	}
	c.logger.Info("monitors started", "count", n)
	return n
}

// StopAll stops every monitor concurrently and returns how many stopped
// within their timeout.
func (c *Coordinator) StopAll() int {
	mons := c.snapshot()
	stopped := make([]bool, len(mons))
	var g errgroup.Group
	for i, m := range mons {
		g.Go(func() error {
			if err := m.Stop(); err != nil {
				return fmt.Errorf("%s: %w", m.Name(), err)
			}
			stopped[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Warn("monitor stop incomplete", "error", err)
	}
	n := 0
	for _, ok := range stopped {
		if ok {
			n++
		}
	}
	c.logger.Info("monitors stopped", "count", n)
	return n
}

// PauseAll pauses every running monitor and returns how many changed.
func (c *Coordinator) PauseAll() int {
	n := 0
	for _, m := range c.snapshot() {
		if m.Alive() && m.Pause() {
			n++
		}
	}
	return n
}

// ResumeAll resumes every paused monitor and returns how many changed.
func (c *Coordinator) ResumeAll() int {
	n := 0
	for _, m := range c.snapshot() {
		if m.Alive() && m.Resume() {
			n++
		}
	}
	return n
}

// Status returns a snapshot keyed by target name.
func (c *Coordinator) Status() map[string]monitor.Status {
	out := map[string]monitor.Status{}
	for _, m := range c.snapshot() {
		out[m.Name()] = m.Status()
	}
	return out
}

// Reload replaces the rule set of a managed target in place.
func (c *Coordinator) Reload(t rules.Target) error {
	m, ok := c.Get(t.Name)
	if !ok {
		return fmt.Errorf("%q: %w", t.Name, ErrUnknownTarget)
	}
	return m.SetTarget(t)
}

// Remove stops the monitor for name and forgets it.
func (c *Coordinator) Remove(name string) error {
	c.mu.Lock()
	m, ok := c.monitors[name]
	delete(c.monitors, name)
	for file, n := range c.sources {
		if n == name {
			delete(c.sources, file)
		}
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrUnknownTarget)
	}
	return m.Stop()
}
