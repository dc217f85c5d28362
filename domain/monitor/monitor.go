// Package monitor runs the capture, recognise and dispatch loop for one
// target window.
package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/soocke/pixel-watch-go/domain/capture"
	"github.com/soocke/pixel-watch-go/domain/platform"
	"github.com/soocke/pixel-watch-go/domain/recognition"
	"github.com/soocke/pixel-watch-go/domain/rules"
)

const (
	DefaultPausePoll   = 500 * time.Millisecond
	DefaultStopTimeout = time.Second
)

// Deps are the collaborators a monitor drives.
type Deps struct {
	Locator    platform.Locator
	Capture    capture.Provider
	Recognizer Recognizer
	Dispatcher Dispatcher
	Hooks      Hooks
}

type Options struct {
	// PausePoll is the sleep between checks while paused.
	PausePoll time.Duration
	// StopTimeout bounds how long Stop waits for the current cycle.
	StopTimeout time.Duration
}

// Monitor watches one target window. Cycles are strictly sequential: a cycle
// captures once, evaluates every rule and finishes its dispatches before the
// next one starts. Lifecycle calls are safe from any goroutine.
type Monitor struct {
	logger *slog.Logger
	deps   Deps
	opts   Options
	name   string

	target     atomic.Pointer[rules.Target]
	handle     atomic.Uintptr
	lastStatus atomic.Pointer[string]
	cycles     atomic.Uint64
	matches    atomic.Uint64
	running    atomic.Bool
	session    Session

	// stateMu guards the base state, the paused flag and listeners so the
	// effective state and its notifications change together.
	stateMu   sync.Mutex
	base      State
	paused    bool
	listeners []StateListener

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	runID  string

	// loop-goroutine only
	warned map[string]bool
}

// New builds an idle monitor for target. The target is assumed valid.
func New(logger *slog.Logger, target rules.Target, deps Deps, opts Options) *Monitor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Hooks == nil {
		deps.Hooks = NopHooks{}
	}
	if opts.PausePoll <= 0 {
		opts.PausePoll = DefaultPausePoll
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	m := &Monitor{
		logger: logger.With("target", target.Name),
		deps:   deps,
		opts:   opts,
		name:   target.Name,
		warned: map[string]bool{},
	}
	t := target
	m.target.Store(&t)
	m.setStatus("created")
	return m
}

func (m *Monitor) Name() string { return m.name }

// Target returns the current rule set.
func (m *Monitor) Target() rules.Target { return *m.target.Load() }

// SetTarget swaps the rule set. The next cycle uses the new rules; a cycle
// in progress finishes with the old ones. Changing the window title drops the
// resolved handle.
func (m *Monitor) SetTarget(t rules.Target) error {
	if t.Name != m.name {
		return fmt.Errorf("target name %q does not match monitor %q", t.Name, m.name)
	}
	if err := t.Validate(); err != nil {
		return err
	}
	prev := m.target.Swap(&t)
	if prev.WindowTitle != t.WindowTitle || prev.WindowClass != t.WindowClass {
		m.handle.Store(0)
		m.setBase(StateIdle)
	}
	m.logger.Info("rule set replaced", "rules", len(t.Rules), "interval", t.Interval)
	return nil
}

// AddListener registers l for state changes.
func (m *Monitor) AddListener(l StateListener) {
	m.stateMu.Lock()
	m.listeners = append(m.listeners, l)
	m.stateMu.Unlock()
}

// State returns the effective state.
func (m *Monitor) State() State {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.effective()
}

func (m *Monitor) effective() State {
	if m.base == StateStopped {
		return StateStopped
	}
	if m.paused {
		return StatePaused
	}
	return m.base
}

func (m *Monitor) setBase(next State) { m.mutateState(func() { m.base = next }) }

func (m *Monitor) mutateState(fn func()) {
	m.stateMu.Lock()
	prev := m.effective()
	fn()
	next := m.effective()
	ls := append([]StateListener(nil), m.listeners...)
	m.stateMu.Unlock()
	if prev == next {
		return
	}
	m.logger.Debug("monitor state transition", "from", prev.String(), "to", next.String())
	m.deps.Hooks.StateChanged(m.name, prev, next)
	for _, l := range ls {
		l(prev, next)
	}
}

// Alive reports whether the loop goroutine is running.
func (m *Monitor) Alive() bool { return m.running.Load() }

func (m *Monitor) Paused() bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.paused
}

// Handle returns the resolved window handle, or zero.
func (m *Monitor) Handle() platform.Handle { return platform.Handle(m.handle.Load()) }

// Done is closed when the loop exits. It is nil before Start.
func (m *Monitor) Done() <-chan struct{} {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	return m.done
}

// Start launches the loop. The loop ends when ctx is cancelled or Stop is
// called.
func (m *Monitor) Start(ctx context.Context) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.State() == StateStopped {
		return ErrStopped
	}
	if m.cancel != nil {
		return ErrRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.runID = uuid.NewString()
	m.running.Store(true)
	m.logger.Info("monitor started", "run_id", m.runID)
	go m.loop(runCtx, m.done)
	return nil
}

// Stop ends the loop after its current cycle and waits up to the stop
// timeout. A stopped monitor cannot be restarted.
func (m *Monitor) Stop() error {
	m.lifeMu.Lock()
	cancel, done := m.cancel, m.done
	m.lifeMu.Unlock()
	if cancel == nil {
		m.setBase(StateStopped)
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-time.After(m.opts.StopTimeout):
		m.logger.Warn("monitor stop timed out", "timeout", m.opts.StopTimeout)
		return ErrStopTimeout
	}
}

// Pause makes the loop skip capture and evaluation. It reports whether the
// call changed anything.
func (m *Monitor) Pause() bool {
	changed := false
	m.mutateState(func() {
		if m.base != StateStopped && !m.paused {
			m.paused, changed = true, true
		}
	})
	if changed {
		m.setStatus("paused")
	}
	return changed
}

// Resume undoes Pause.
func (m *Monitor) Resume() bool {
	changed := false
	m.mutateState(func() {
		if m.base != StateStopped && m.paused {
			m.paused, changed = false, true
		}
	})
	if changed {
		m.setStatus("resumed")
	}
	return changed
}

func (m *Monitor) setStatus(s string) { m.lastStatus.Store(&s) }

func (m *Monitor) LastStatus() string { return *m.lastStatus.Load() }

// Status returns a snapshot for observability.
func (m *Monitor) Status() Status {
	t := m.Target()
	st := Status{
		Name:       m.name,
		Alive:      m.Alive(),
		State:      m.State().String(),
		LastStatus: m.LastStatus(),
		Cycles:     m.cycles.Load(),
		Matches:    m.matches.Load(),
		Title:      t.WindowTitle,
	}
	m.lifeMu.Lock()
	st.RunID = m.runID
	m.lifeMu.Unlock()
	st.Session, st.TotalActive = m.session.Values()
	if st.Alive {
		p := m.Paused()
		st.Paused = &p
		if h := m.Handle(); h != 0 {
			st.Handle = &h
			if title := m.deps.Locator.Title(h); title != "" {
				st.Title = title
			}
		}
	}
	return st
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		m.running.Store(false)
		m.session.OnTick(false, time.Now())
		m.setBase(StateStopped)
		m.setStatus("stopped")
		m.logger.Info("monitor stopped", "cycles", m.cycles.Load(), "matches", m.matches.Load())
	}()
	for ctx.Err() == nil {
		wait := m.cycle(ctx)
		m.session.OnTick(m.State() == StateActive, time.Now())
		if !sleepCtx(ctx, wait) {
			return
		}
	}
}

// cycle runs one iteration and returns how long to sleep before the next.
// Panics are contained to the cycle.
func (m *Monitor) cycle(ctx context.Context) (wait time.Duration) {
	t := m.target.Load()
	wait = t.Interval
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("monitor cycle panic", "error", r, "stack", string(debug.Stack()))
			m.setStatus(fmt.Sprintf("error: %v", r))
		}
	}()

	if m.Paused() {
		return m.opts.PausePoll
	}

	h := m.Handle()
	if h == 0 || !m.deps.Locator.IsValid(h) {
		if h != 0 {
			m.logger.Info("window lost", "handle", uintptr(h))
			m.handle.Store(0)
			m.setBase(StateIdle)
		}
		resolved, err := platform.Resolve(m.deps.Locator, t.WindowTitle, t.WindowClass)
		if err != nil {
			m.setStatus(fmt.Sprintf("waiting for window %q", t.WindowTitle))
			m.logger.Debug("window not resolved", "title", t.WindowTitle, "error", err)
			return wait
		}
		h = resolved
		m.handle.Store(uintptr(h))
		m.setBase(StateActive)
		m.logger.Info("window resolved", "handle", uintptr(h), "title", m.deps.Locator.Title(h))
	}

	start := time.Now()
	img, err := m.deps.Capture.Capture(h)
	if err != nil {
		m.setStatus(fmt.Sprintf("capture failed: %v", err))
		m.logger.Warn("capture failed", "error", err)
		m.deps.Hooks.CaptureFailed(m.name, err)
		return wait
	}
	defer capture.RecycleFrame(img)
	m.cycles.Add(1)

	frame := recognition.NewFrame(img)
	found := 0
	failure := ""
	for _, r := range t.Rules {
		if _, ok := m.deps.Recognizer.Pattern(r.Pattern); !ok {
			if !m.warned[r.Pattern] {
				m.warned[r.Pattern] = true
				m.logger.Warn("rule skipped: unknown pattern", "pattern", r.Pattern)
			}
			continue
		}
		match := m.deps.Recognizer.FindBestIn(frame, r.Pattern, r.Threshold, r.Strategy)
		if !match.Found {
			continue
		}
		found++
		m.matches.Add(1)
		m.logger.Info("pattern matched", "pattern", r.Pattern, "x", match.X, "y", match.Y, "confidence", match.Confidence)
		m.deps.Hooks.Matched(m.name, r, match)

		// dispatch finishes even when a stop arrives mid-sequence
		res := m.deps.Dispatcher.Dispatch(context.WithoutCancel(ctx), h, r, match.Rect())
		m.deps.Hooks.Dispatched(m.name, r, res)
		if res.Err != nil {
			failure = fmt.Sprintf("%s: action failed: %v", r.Pattern, res.Err)
		}
	}
	m.deps.Hooks.CycleCompleted(m.name, time.Since(start))
	switch {
	case failure != "":
		m.setStatus(failure)
	case found == 0:
		m.setStatus("watching")
	default:
		m.setStatus(fmt.Sprintf("matched %d rule(s)", found))
	}
	return wait
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
