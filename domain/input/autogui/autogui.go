// Package autogui adapts robotgo to the input and platform contracts. It
// moves the real cursor and works on every desktop robotgo supports.
package autogui

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-vgo/robotgo"

	"github.com/soocke/pixel-watch-go/domain/input"
	"github.com/soocke/pixel-watch-go/domain/platform"
	"github.com/soocke/pixel-watch-go/domain/rules"
)

// Injector is the user-level automation transport.
type Injector struct{}

var _ input.Injector = Injector{}

func New() Injector { return Injector{} }

func (Injector) Name() string    { return input.StrategyRobotgo }
func (Injector) Available() bool { return true }

func (Injector) Move(x, y int) error {
	robotgo.Move(x, y)
	return nil
}

func (i Injector) Click(x, y int, button rules.Button) error {
	robotgo.Move(x, y)
	robotgo.Click(buttonName(button), false)
	return nil
}

func (Injector) KeyEvent(code int, press rules.PressType) error {
	name, ok := input.KeyName(code)
	if !ok {
		return fmt.Errorf("no key name for vk %#x", code)
	}
	switch press {
	case rules.PressDown:
		return robotgo.KeyToggle(name, "down")
	case rules.PressUp:
		return robotgo.KeyToggle(name, "up")
	default:
		return robotgo.KeyTap(name)
	}
}

// Type taps one key per printable character, honouring the inter-character
// delay.
func (i Injector) Type(text string, delay time.Duration) error {
	for n, code := range input.TextKeyCodes(text) {
		if n > 0 && delay > 0 {
			time.Sleep(delay)
		}
		if _, ok := input.KeyName(code); !ok {
			// punctuation has no portable key name
			robotgo.TypeStr(string(rune(code)))
			continue
		}
		if err := i.KeyEvent(code, rules.PressClick); err != nil {
			return err
		}
	}
	return nil
}

func buttonName(b rules.Button) string {
	switch b {
	case rules.ButtonRight:
		return "right"
	case rules.ButtonMiddle:
		return "center"
	default:
		return "left"
	}
}

// Locator finds windows through their owning process. Handles are process
// ids, so one process maps to one window.
type Locator struct{}

var _ platform.Locator = Locator{}
var _ platform.Activator = Locator{}

func NewLocator() Locator { return Locator{} }

func (Locator) FindExact(title, _ string) (platform.Handle, error) {
	return find(func(t string) bool { return t == title }, title)
}

func (Locator) FindPartial(title string) (platform.Handle, error) {
	return find(func(t string) bool { return strings.Contains(t, title) }, title)
}

func find(match func(string) bool, title string) (platform.Handle, error) {
	procs, err := robotgo.Process()
	if err != nil {
		return 0, fmt.Errorf("list processes: %w", err)
	}
	for _, p := range procs {
		if p.Pid <= 0 {
			continue
		}
		if t := robotgo.GetTitle(p.Pid); t != "" && match(t) {
			return platform.Handle(p.Pid), nil
		}
	}
	return 0, fmt.Errorf("%q: %w", title, platform.ErrWindowNotFound)
}

func (Locator) Rect(h platform.Handle) (platform.Rect, error) {
	x, y, w, hh := robotgo.GetBounds(int(h))
	if w <= 0 || hh <= 0 {
		return platform.Rect{}, fmt.Errorf("no bounds for pid %d", int(h))
	}
	return platform.Rect{Left: x, Top: y, Right: x + w, Bottom: y + hh}, nil
}

func (Locator) IsValid(h platform.Handle) bool {
	if h == 0 {
		return false
	}
	ok, err := robotgo.PidExists(int(h))
	return err == nil && ok
}

func (Locator) Title(h platform.Handle) string { return robotgo.GetTitle(int(h)) }

func (Locator) Activate(h platform.Handle) error { return robotgo.ActivePid(int(h)) }
