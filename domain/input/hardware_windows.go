//go:build windows

package input

import (
	"fmt"
	"time"

	"github.com/soocke/pixel-watch-go/domain/rules"
)

// HardwareInjector posts hardware-equivalent events through user32.
type HardwareInjector struct{}

func NewHardwareInjector() *HardwareInjector { return &HardwareInjector{} }

func (HardwareInjector) Name() string    { return StrategyHardware }
func (HardwareInjector) Available() bool { return procMouseEvent.Find() == nil }

func (HardwareInjector) Move(x, y int) error {
	ok, _, callErr := procSetCursorPos.Call(uintptr(x), uintptr(y))
	if ok == 0 {
		return fmt.Errorf("SetCursorPos: %w", callErr)
	}
	return nil
}

func (h HardwareInjector) Click(x, y int, button rules.Button) error {
	if err := h.Move(x, y); err != nil {
		return err
	}
	down, up := mouseFlags(button)
	_, _, _ = procMouseEvent.Call(down, 0, 0, 0, 0)
	time.Sleep(pressDuration)
	_, _, _ = procMouseEvent.Call(up, 0, 0, 0, 0)
	return nil
}

func (HardwareInjector) KeyEvent(code int, press rules.PressType) error {
	sc := scanCode(code)
	if press != rules.PressUp {
		_, _, _ = procKeybdEvent.Call(uintptr(code), sc, 0, 0)
	}
	if press == rules.PressClick {
		time.Sleep(pressDuration)
	}
	if press != rules.PressDown {
		_, _, _ = procKeybdEvent.Call(uintptr(code), sc, keyeventfKeyUp, 0)
	}
	return nil
}

func (h HardwareInjector) Type(text string, delay time.Duration) error {
	return typeWith(h.KeyEvent, text, delay)
}
