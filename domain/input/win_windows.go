//go:build windows

package input

import (
	"time"

	"golang.org/x/sys/windows"

	"github.com/soocke/pixel-watch-go/domain/rules"
)

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	procSetCursorPos     = user32.NewProc("SetCursorPos")
	procMouseEvent       = user32.NewProc("mouse_event")
	procKeybdEvent       = user32.NewProc("keybd_event")
	procMapVirtualKeyW   = user32.NewProc("MapVirtualKeyW")
	procPostMessageW     = user32.NewProc("PostMessageW")
	procWindowFromPoint  = user32.NewProc("WindowFromPoint")
	procScreenToClient   = user32.NewProc("ScreenToClient")
	procGetForegroundWin = user32.NewProc("GetForegroundWindow")
)

const (
	mouseeventfLeftDown   = 0x0002
	mouseeventfLeftUp     = 0x0004
	mouseeventfRightDown  = 0x0008
	mouseeventfRightUp    = 0x0010
	mouseeventfMiddleDown = 0x0020
	mouseeventfMiddleUp   = 0x0040
	keyeventfKeyUp        = 0x0002
	mapvkVKToVSC          = 0
)

func mouseFlags(b rules.Button) (down, up uintptr) {
	switch b {
	case rules.ButtonRight:
		return mouseeventfRightDown, mouseeventfRightUp
	case rules.ButtonMiddle:
		return mouseeventfMiddleDown, mouseeventfMiddleUp
	default:
		return mouseeventfLeftDown, mouseeventfLeftUp
	}
}

func scanCode(vk int) uintptr {
	sc, _, _ := procMapVirtualKeyW.Call(uintptr(vk), mapvkVKToVSC)
	return sc
}

// typeWith sends one key click per printable character of text.
func typeWith(key func(code int, press rules.PressType) error, text string, delay time.Duration) error {
	for i, code := range TextKeyCodes(text) {
		if i > 0 && delay > 0 {
			time.Sleep(delay)
		}
		if err := key(code, rules.PressClick); err != nil {
			return err
		}
	}
	return nil
}
