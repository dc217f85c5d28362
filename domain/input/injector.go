// Package input delivers synthetic pointer and keyboard events through an
// ordered chain of transports.
package input

import (
	"errors"
	"time"

	"github.com/soocke/pixel-watch-go/domain/rules"
)

var (
	// ErrUnavailable is returned when no transport in a chain can be used.
	ErrUnavailable = errors.New("no input transport available")
	// ErrBudgetExceeded is returned when an operation runs out of time
	// before any transport succeeded.
	ErrBudgetExceeded = errors.New("input time budget exceeded")
)

// Injector is one input transport. Coordinates are screen pixels.
type Injector interface {
	Name() string
	// Available reports whether the transport can be used at all. Chains
	// skip unavailable transports without counting them as failures.
	Available() bool
	Move(x, y int) error
	Click(x, y int, button rules.Button) error
	KeyEvent(code int, press rules.PressType) error
	Type(text string, delay time.Duration) error
}

// Standard strategy names accepted in configuration.
const (
	StrategyDriver   = "driver"
	StrategyHardware = "hardware"
	StrategyMessage  = "message"
	StrategyRobotgo  = "robotgo"
)

// DefaultOrder is the fallback order from most to least direct transport.
var DefaultOrder = []string{StrategyDriver, StrategyHardware, StrategyMessage, StrategyRobotgo}

// pressDuration is the hold time between a down and an up transition.
const pressDuration = 30 * time.Millisecond
