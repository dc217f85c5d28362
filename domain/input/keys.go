package input

import (
	"strconv"
	"unicode"
)

// Windows virtual-key codes used by non-Windows transports and tests.
const (
	VKBack    = 0x08
	VKTab     = 0x09
	VKReturn  = 0x0D
	VKShift   = 0x10
	VKControl = 0x11
	VKMenu    = 0x12
	VKPause   = 0x13
	VKCapital = 0x14
	VKEscape  = 0x1B
	VKSpace   = 0x20
	VKPrior   = 0x21
	VKNext    = 0x22
	VKEnd     = 0x23
	VKHome    = 0x24
	VKLeft    = 0x25
	VKUp      = 0x26
	VKRight   = 0x27
	VKDown    = 0x28
	VKInsert  = 0x2D
	VKDelete  = 0x2E
	VKF1      = 0x70
	VKF24     = 0x87
)

var namedKeys = map[int]string{
	VKBack:    "backspace",
	VKTab:     "tab",
	VKReturn:  "enter",
	VKShift:   "shift",
	VKControl: "ctrl",
	VKMenu:    "alt",
	VKPause:   "pause",
	VKCapital: "capslock",
	VKEscape:  "esc",
	VKSpace:   "space",
	VKPrior:   "pageup",
	VKNext:    "pagedown",
	VKEnd:     "end",
	VKHome:    "home",
	VKLeft:    "left",
	VKUp:      "up",
	VKRight:   "right",
	VKDown:    "down",
	VKInsert:  "insert",
	VKDelete:  "delete",
}

// KeyName returns the lower-case key name for a virtual-key code, as used by
// cross-platform automation libraries.
func KeyName(code int) (string, bool) {
	switch {
	case code >= '0' && code <= '9', code >= 'A' && code <= 'Z':
		return string(unicode.ToLower(rune(code))), true
	case code >= VKF1 && code <= VKF24:
		return "f" + strconv.Itoa(code-VKF1+1), true
	}
	name, ok := namedKeys[code]
	return name, ok
}

// TextKeyCodes maps each printable ASCII character of s to the key code of
// its upper-case form. Other characters are dropped.
func TextKeyCodes(s string) []int {
	out := make([]int, 0, len(s))
	for _, r := range s {
		if r < 32 || r > 126 {
			continue
		}
		out = append(out, int(unicode.ToUpper(r)))
	}
	return out
}
