//go:build windows

package input

import (
	"errors"
	"fmt"
	"time"
	"unsafe"

	"github.com/soocke/pixel-watch-go/domain/rules"
)

const (
	wmKeyDown       = 0x0100
	wmKeyUp         = 0x0101
	wmMouseMove     = 0x0200
	wmLButtonDown   = 0x0201
	wmLButtonUp     = 0x0202
	wmRButtonDown   = 0x0204
	wmRButtonUp     = 0x0205
	wmMButtonDown   = 0x0207
	wmMButtonUp     = 0x0208
	mkLButton       = 0x0001
	mkRButton       = 0x0002
	mkMButton       = 0x0010
	keyUpTransition = 0xC0000000
)

type point struct{ X, Y int32 }

// MessageInjector posts window messages to the window under the target point
// without moving the system cursor. Key messages go to the foreground window.
type MessageInjector struct{}

func NewMessageInjector() *MessageInjector { return &MessageInjector{} }

func (MessageInjector) Name() string    { return StrategyMessage }
func (MessageInjector) Available() bool { return procPostMessageW.Find() == nil }

func (MessageInjector) Move(x, y int) error {
	hwnd, cx, cy, err := clientPoint(x, y)
	if err != nil {
		return err
	}
	return post(hwnd, wmMouseMove, 0, makeLParam(cx, cy))
}

func (MessageInjector) Click(x, y int, button rules.Button) error {
	hwnd, cx, cy, err := clientPoint(x, y)
	if err != nil {
		return err
	}
	down, up, mk := uintptr(wmLButtonDown), uintptr(wmLButtonUp), uintptr(mkLButton)
	switch button {
	case rules.ButtonRight:
		down, up, mk = wmRButtonDown, wmRButtonUp, mkRButton
	case rules.ButtonMiddle:
		down, up, mk = wmMButtonDown, wmMButtonUp, mkMButton
	}
	lp := makeLParam(cx, cy)
	if err := post(hwnd, down, mk, lp); err != nil {
		return err
	}
	time.Sleep(pressDuration)
	return post(hwnd, up, 0, lp)
}

func (MessageInjector) KeyEvent(code int, press rules.PressType) error {
	hwnd, _, _ := procGetForegroundWin.Call()
	if hwnd == 0 {
		return errors.New("no foreground window")
	}
	sc := scanCode(code)
	downLP := 1 | sc<<16
	if press != rules.PressUp {
		if err := post(hwnd, wmKeyDown, uintptr(code), downLP); err != nil {
			return err
		}
	}
	if press == rules.PressClick {
		time.Sleep(pressDuration)
	}
	if press != rules.PressDown {
		return post(hwnd, wmKeyUp, uintptr(code), downLP|keyUpTransition)
	}
	return nil
}

func (m MessageInjector) Type(text string, delay time.Duration) error {
	return typeWith(m.KeyEvent, text, delay)
}

// clientPoint finds the window under a screen point and converts the point
// to that window's client coordinates.
func clientPoint(x, y int) (hwnd uintptr, cx, cy int, err error) {
	if unsafe.Sizeof(uintptr(0)) == 8 {
		// POINT is passed by value in a single register on 64-bit.
		hwnd, _, _ = procWindowFromPoint.Call(uintptr(uint32(int32(x))) | uintptr(uint32(int32(y)))<<32)
	} else {
		hwnd, _, _ = procWindowFromPoint.Call(uintptr(x), uintptr(y))
	}
	if hwnd == 0 {
		return 0, 0, 0, fmt.Errorf("no window at (%d,%d)", x, y)
	}
	pt := point{X: int32(x), Y: int32(y)}
	if ok, _, callErr := procScreenToClient.Call(hwnd, uintptr(unsafe.Pointer(&pt))); ok == 0 {
		return 0, 0, 0, fmt.Errorf("ScreenToClient: %w", callErr)
	}
	return hwnd, int(pt.X), int(pt.Y), nil
}

func makeLParam(x, y int) uintptr {
	return uintptr(uint16(int16(x))) | uintptr(uint16(int16(y)))<<16
}

func post(hwnd, msg, wparam, lparam uintptr) error {
	ok, _, callErr := procPostMessageW.Call(hwnd, msg, wparam, lparam)
	if ok == 0 {
		return fmt.Errorf("PostMessageW %#x: %w", msg, callErr)
	}
	return nil
}
