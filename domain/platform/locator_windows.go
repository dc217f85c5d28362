//go:build windows

package platform

import (
	"fmt"
	"strings"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

const swRestore = 9

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procFindWindowW         = user32.NewProc("FindWindowW")
	procEnumWindows         = user32.NewProc("EnumWindows")
	procGetWindowTextW      = user32.NewProc("GetWindowTextW")
	procIsWindowVisible     = user32.NewProc("IsWindowVisible")
	procIsWindow            = user32.NewProc("IsWindow")
	procGetWindowRect       = user32.NewProc("GetWindowRect")
	procIsIconic            = user32.NewProc("IsIconic")
	procShowWindow          = user32.NewProc("ShowWindow")
	procSetForegroundWindow = user32.NewProc("SetForegroundWindow")
)

type winRect struct {
	Left, Top, Right, Bottom int32
}

// Win32Locator resolves top-level windows through user32.
type Win32Locator struct{}

// NewLocator returns the native locator for this platform.
func NewLocator() *Win32Locator { return &Win32Locator{} }

func (Win32Locator) FindExact(title, class string) (Handle, error) {
	titlePtr, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return 0, err
	}
	var classPtr *uint16
	if class != "" {
		if classPtr, err = windows.UTF16PtrFromString(class); err != nil {
			return 0, err
		}
	}
	hwnd, _, _ := procFindWindowW.Call(uintptr(unsafe.Pointer(classPtr)), uintptr(unsafe.Pointer(titlePtr)))
	if hwnd == 0 {
		return 0, fmt.Errorf("%q: %w", title, ErrWindowNotFound)
	}
	return Handle(hwnd), nil
}

// Windows caps the number of callbacks a process may create, so a single
// enumeration callback is shared and guarded by enumMu.
var (
	enumMu     sync.Mutex
	enumNeedle string
	enumFound  uintptr
	enumProc   = syscall.NewCallback(func(hwnd uintptr, _ uintptr) uintptr {
		if vis, _, _ := procIsWindowVisible.Call(hwnd); vis == 0 {
			return 1
		}
		if strings.Contains(windowText(hwnd), enumNeedle) {
			enumFound = hwnd
			return 0 // stop
		}
		return 1
	})
)

func (Win32Locator) FindPartial(title string) (Handle, error) {
	enumMu.Lock()
	enumNeedle, enumFound = title, 0
	// EnumWindows reports failure when the callback stops early.
	_, _, _ = procEnumWindows.Call(enumProc, 0)
	found := enumFound
	enumMu.Unlock()
	if found == 0 {
		return 0, fmt.Errorf("%q: %w", title, ErrWindowNotFound)
	}
	return Handle(found), nil
}

func (Win32Locator) Rect(h Handle) (Rect, error) {
	var r winRect
	ok, _, callErr := procGetWindowRect.Call(uintptr(h), uintptr(unsafe.Pointer(&r)))
	if ok == 0 {
		return Rect{}, fmt.Errorf("GetWindowRect: %w", callErr)
	}
	return Rect{Left: int(r.Left), Top: int(r.Top), Right: int(r.Right), Bottom: int(r.Bottom)}, nil
}

func (Win32Locator) IsValid(h Handle) bool {
	if h == 0 {
		return false
	}
	ok, _, _ := procIsWindow.Call(uintptr(h))
	return ok != 0
}

func (Win32Locator) Title(h Handle) string { return windowText(uintptr(h)) }

// Activate restores a minimised window and makes it the foreground window.
func (Win32Locator) Activate(h Handle) error {
	if iconic, _, _ := procIsIconic.Call(uintptr(h)); iconic != 0 {
		_, _, _ = procShowWindow.Call(uintptr(h), swRestore)
		time.Sleep(50 * time.Millisecond)
	}
	ok, _, callErr := procSetForegroundWindow.Call(uintptr(h))
	if ok == 0 {
		return fmt.Errorf("SetForegroundWindow: %w", callErr)
	}
	return nil
}

func windowText(hwnd uintptr) string {
	const maxChars = 256
	buf := make([]uint16, maxChars)
	n, _, _ := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if n == 0 {
		return ""
	}
	return strings.TrimSpace(windows.UTF16ToString(buf[:n]))
}
