package monitor

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/soocke/pixel-watch-go/domain/dispatch"
	"github.com/soocke/pixel-watch-go/domain/platform"
	"github.com/soocke/pixel-watch-go/domain/recognition"
	"github.com/soocke/pixel-watch-go/domain/rules"
)

var (
	ErrRunning     = errors.New("monitor already running")
	ErrStopped     = errors.New("monitor stopped")
	ErrStopTimeout = errors.New("monitor did not stop in time")
)

// State is the lifecycle state of a monitor.
type State int32

const (
	StateIdle State = iota
	StateActive
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StateListener is called after each state change.
type StateListener func(prev, next State)

// Recognizer is the read side of the recognition engine.
type Recognizer interface {
	FindBestIn(f *recognition.Frame, name string, threshold float64, strategy rules.Strategy) recognition.Match
	Pattern(name string) (*recognition.Pattern, bool)
}

// Dispatcher reacts to a match.
type Dispatcher interface {
	Dispatch(ctx context.Context, h platform.Handle, rule rules.Rule, region image.Rectangle) dispatch.Result
}

// Hooks observes monitor activity. Implementations must be safe for
// concurrent use by many monitors.
type Hooks interface {
	StateChanged(target string, prev, next State)
	CaptureFailed(target string, err error)
	CycleCompleted(target string, took time.Duration)
	Matched(target string, rule rules.Rule, m recognition.Match)
	Dispatched(target string, rule rules.Rule, res dispatch.Result)
}

// NopHooks ignores every event. Embed it to implement a subset of Hooks.
type NopHooks struct{}

func (NopHooks) StateChanged(string, State, State)              {}
func (NopHooks) CaptureFailed(string, error)                    {}
func (NopHooks) CycleCompleted(string, time.Duration)           {}
func (NopHooks) Matched(string, rules.Rule, recognition.Match)  {}
func (NopHooks) Dispatched(string, rules.Rule, dispatch.Result) {}

// MultiHooks fans every event out to each element in order.
type MultiHooks []Hooks

func (mh MultiHooks) StateChanged(t string, prev, next State) {
	for _, h := range mh {
		h.StateChanged(t, prev, next)
	}
}

func (mh MultiHooks) CaptureFailed(t string, err error) {
	for _, h := range mh {
		h.CaptureFailed(t, err)
	}
}

func (mh MultiHooks) CycleCompleted(t string, took time.Duration) {
	for _, h := range mh {
		h.CycleCompleted(t, took)
	}
}

func (mh MultiHooks) Matched(t string, r rules.Rule, m recognition.Match) {
	for _, h := range mh {
		h.Matched(t, r, m)
	}
}

func (mh MultiHooks) Dispatched(t string, r rules.Rule, res dispatch.Result) {
	for _, h := range mh {
		h.Dispatched(t, r, res)
	}
}

// Status is a point-in-time view of a monitor.
type Status struct {
	Name        string           `json:"name"`
	RunID       string           `json:"run_id,omitempty"`
	Alive       bool             `json:"alive"`
	Paused      *bool            `json:"paused"`
	Handle      *platform.Handle `json:"handle"`
	Title       string           `json:"title"`
	State       string           `json:"state"`
	LastStatus  string           `json:"last_status"`
	Cycles      uint64           `json:"cycles"`
	Matches     uint64           `json:"matches"`
	Session     time.Duration    `json:"session"`
	TotalActive time.Duration    `json:"total_active"`
}
