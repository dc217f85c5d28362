//go:build windows

package input

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/windows"

	"github.com/soocke/pixel-watch-go/domain/rules"
)

// DriverInjector drives a kernel-mode input driver through its user-mode
// DLL. The DLL exports DD_btn, DD_mov, DD_key and DD_todc.
type DriverInjector struct {
	path string

	once    sync.Once
	loadErr error
	btn     *windows.LazyProc
	mov     *windows.LazyProc
	key     *windows.LazyProc
	todc    *windows.LazyProc
}

// NewDriverInjector prepares the driver at path. An empty path yields an
// unavailable injector.
func NewDriverInjector(path string) *DriverInjector { return &DriverInjector{path: path} }

func (d *DriverInjector) Name() string { return StrategyDriver }

func (d *DriverInjector) Available() bool { return d.load() == nil }

func (d *DriverInjector) load() error {
	d.once.Do(func() {
		if d.path == "" {
			d.loadErr = errors.New("driver path not configured")
			return
		}
		dll := windows.NewLazyDLL(d.path)
		if err := dll.Load(); err != nil {
			d.loadErr = err
			return
		}
		d.btn, d.mov, d.key, d.todc = dll.NewProc("DD_btn"), dll.NewProc("DD_mov"), dll.NewProc("DD_key"), dll.NewProc("DD_todc")
		for _, p := range []*windows.LazyProc{d.btn, d.mov, d.key, d.todc} {
			if err := p.Find(); err != nil {
				d.loadErr = err
				return
			}
		}
	})
	return d.loadErr
}

func (d *DriverInjector) Move(x, y int) error {
	if err := d.load(); err != nil {
		return err
	}
	return ddResult("DD_mov", d.mov, uintptr(x), uintptr(y))
}

func (d *DriverInjector) Click(x, y int, button rules.Button) error {
	if err := d.Move(x, y); err != nil {
		return err
	}
	down, up := uintptr(1), uintptr(2)
	switch button {
	case rules.ButtonRight:
		down, up = 4, 8
	case rules.ButtonMiddle:
		down, up = 16, 32
	}
	if err := ddResult("DD_btn", d.btn, down); err != nil {
		return err
	}
	time.Sleep(pressDuration)
	return ddResult("DD_btn", d.btn, up)
}

func (d *DriverInjector) KeyEvent(code int, press rules.PressType) error {
	if err := d.load(); err != nil {
		return err
	}
	dc, _, _ := d.todc.Call(uintptr(code))
	if dc == 0 {
		return fmt.Errorf("DD_todc: no driver code for vk %#x", code)
	}
	if press != rules.PressUp {
		if err := ddResult("DD_key", d.key, dc, 1); err != nil {
			return err
		}
	}
	if press == rules.PressClick {
		time.Sleep(pressDuration)
	}
	if press != rules.PressDown {
		return ddResult("DD_key", d.key, dc, 2)
	}
	return nil
}

func (d *DriverInjector) Type(text string, delay time.Duration) error {
	return typeWith(d.KeyEvent, text, delay)
}

// ddResult calls a driver export; the driver reports success as 1.
func ddResult(name string, p *windows.LazyProc, args ...uintptr) error {
	r, _, _ := p.Call(args...)
	if r != 1 {
		return fmt.Errorf("%s returned %d", name, int32(r))
	}
	return nil
}
