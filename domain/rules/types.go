package rules

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidAction marks an action whose kind or parameters cannot be executed.
var ErrInvalidAction = errors.New("invalid action")

// Strategy selects the recognition algorithm used for a rule.
type Strategy int

const (
	StrategyTemplate Strategy = iota
	StrategyHistogram
)

func (s Strategy) String() string {
	switch s {
	case StrategyTemplate:
		return "template"
	case StrategyHistogram:
		return "histogram"
	default:
		return "unknown"
	}
}

// ParseStrategy maps a persisted match_method value. Empty means template.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "template":
		return StrategyTemplate, nil
	case "histogram":
		return StrategyHistogram, nil
	}
	return 0, fmt.Errorf("unknown match method %q", s)
}

// Button is a pointer button.
type Button int

const (
	ButtonLeft Button = iota
	ButtonRight
	ButtonMiddle
)

func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonRight:
		return "right"
	case ButtonMiddle:
		return "middle"
	default:
		return "unknown"
	}
}

// ParseButton maps a persisted button name. Empty means left.
func ParseButton(s string) (Button, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "left":
		return ButtonLeft, nil
	case "right":
		return ButtonRight, nil
	case "middle", "center":
		return ButtonMiddle, nil
	}
	return 0, fmt.Errorf("unknown button %q", s)
}

// PressType is the keyboard transition requested by a key action.
type PressType int

const (
	PressClick PressType = iota
	PressDown
	PressUp
)

func (p PressType) String() string {
	switch p {
	case PressClick:
		return "click"
	case PressDown:
		return "down"
	case PressUp:
		return "up"
	default:
		return "unknown"
	}
}

// ParsePressType maps a persisted press_type value. Empty means click.
func ParsePressType(s string) (PressType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "click":
		return PressClick, nil
	case "down":
		return PressDown, nil
	case "up":
		return PressUp, nil
	}
	return 0, fmt.Errorf("unknown press type %q", s)
}

// Kind discriminates the Action union.
type Kind int

const (
	KindClick Kind = iota
	KindKey
	KindText
	KindWait
)

func (k Kind) String() string {
	switch k {
	case KindClick:
		return "click"
	case KindKey:
		return "key"
	case KindText:
		return "text"
	case KindWait:
		return "wait"
	default:
		return "unknown"
	}
}

// Params is implemented by the per-kind parameter sets. The unexported method
// closes the union to this package.
type Params interface {
	Kind() Kind
	isParams()
}

// Click presses a pointer button at X,Y. When Relative is set X and Y are
// fractions of the matched region, otherwise window-local pixels.
type Click struct {
	X, Y     float64
	Button   Button
	Relative bool
}

// Key sends one virtual-key transition.
type Key struct {
	Code  int
	Press PressType
}

// Text types a literal string one character at a time.
type Text struct {
	Text  string
	Delay time.Duration
}

// Wait sleeps without touching the injector.
type Wait struct {
	Duration time.Duration
}

func (Click) Kind() Kind { return KindClick }
func (Key) Kind() Kind   { return KindKey }
func (Text) Kind() Kind  { return KindText }
func (Wait) Kind() Kind  { return KindWait }

func (Click) isParams() {}
func (Key) isParams()   {}
func (Text) isParams()  {}
func (Wait) isParams()  {}

// Action is one step of a rule's action list.
type Action struct {
	Params Params
	// Delay is slept after the action completes.
	Delay time.Duration
	// Required aborts the rest of the list when this action fails.
	Required bool
}

// Kind returns the action kind, or -1 when Params is missing.
func (a Action) Kind() Kind {
	if a.Params == nil {
		return -1
	}
	return a.Params.Kind()
}

// Rule binds a pattern to a recognition strategy and an action list.
type Rule struct {
	Pattern      string
	Strategy     Strategy
	Threshold    float64
	ClickOnMatch bool
	Actions      []Action
}

// Target is the rule set of one monitored window.
type Target struct {
	Name        string
	WindowTitle string
	WindowClass string
	Interval    time.Duration
	Rules       []Rule
}

// Seconds converts a persisted float seconds value to a duration.
func Seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
