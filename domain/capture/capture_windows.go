//go:build windows

package capture

// Window capture with GDI. Each call BitBlt's the window's screen rectangle
// into a temporary top-down DIB and converts BGRA to RGBA into a pooled
// frame. GDI objects are released before returning.

import (
	"fmt"
	"image"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/soocke/pixel-watch-go/domain/platform"
)

const (
	smCxVirtualScreen = 78
	smCyVirtualScreen = 79
	smXVirtualScreen  = 76
	smYVirtualScreen  = 77
	srccopy           = 0x00CC0020
	captureBlt        = 0x40000000
	dibRGBColors      = 0
	biRgb             = 0
)

var (
	user32                 = windows.NewLazySystemDLL("user32.dll")
	gdi32                  = windows.NewLazySystemDLL("gdi32.dll")
	procGetDC              = user32.NewProc("GetDC")
	procReleaseDC          = user32.NewProc("ReleaseDC")
	procGetSystemMetrics   = user32.NewProc("GetSystemMetrics")
	procCreateCompatibleDC = gdi32.NewProc("CreateCompatibleDC")
	procDeleteDC           = gdi32.NewProc("DeleteDC")
	procSelectObject       = gdi32.NewProc("SelectObject")
	procBitBlt             = gdi32.NewProc("BitBlt")
	procCreateDIBSection   = gdi32.NewProc("CreateDIBSection")
	procDeleteObject       = gdi32.NewProc("DeleteObject")
)

type bitmapInfoHeader struct {
	BiSize          uint32
	BiWidth         int32
	BiHeight        int32
	BiPlanes        uint16
	BiBitCount      uint16
	BiCompression   uint32
	BiSizeImage     uint32
	BiXPelsPerMeter int32
	BiYPelsPerMeter int32
	BiClrUsed       uint32
	BiClrImportant  uint32
}

type bitmapInfo struct {
	Header bitmapInfoHeader
	_      [4]byte // one RGBQUAD placeholder (unused for 32-bit)
}

// GDIProvider captures the on-screen pixels of a window rectangle.
type GDIProvider struct {
	rects RectSource
}

func NewGDIProvider(rects RectSource) *GDIProvider {
	return &GDIProvider{rects: rects}
}

// NewNativeProvider returns the preferred provider for this platform.
func NewNativeProvider(rects RectSource) Provider { return NewGDIProvider(rects) }

func (p *GDIProvider) Capture(h platform.Handle) (*image.RGBA, error) {
	vis, win, err := visiblePart(p.rects, h, virtualScreen())
	if err != nil {
		return nil, err
	}
	frame, err := captureRect(vis)
	if err != nil || vis == win {
		return frame, err
	}
	out := windowFrame(frame, win.Size(), vis.Min.Sub(win.Min))
	RecycleFrame(frame)
	return out, nil
}

func virtualScreen() image.Rectangle {
	x := int(getSystemMetric(smXVirtualScreen))
	y := int(getSystemMetric(smYVirtualScreen))
	w := int(getSystemMetric(smCxVirtualScreen))
	h := int(getSystemMetric(smCyVirtualScreen))
	return image.Rect(x, y, x+w, y+h)
}

func captureRect(r image.Rectangle) (*image.RGBA, error) {
	w, h := r.Dx(), r.Dy()

	screenDC, _, callErr := procGetDC.Call(0)
	if screenDC == 0 {
		return nil, fmt.Errorf("GetDC: %w", callErr)
	}
	defer procReleaseDC.Call(0, screenDC)

	memDC, _, callErr := procCreateCompatibleDC.Call(screenDC)
	if memDC == 0 {
		return nil, fmt.Errorf("CreateCompatibleDC: %w", callErr)
	}
	defer procDeleteDC.Call(memDC)

	var bi bitmapInfo
	bi.Header.BiSize = uint32(unsafe.Sizeof(bi.Header))
	bi.Header.BiWidth = int32(w)
	bi.Header.BiHeight = -int32(h) // top-down
	bi.Header.BiPlanes = 1
	bi.Header.BiBitCount = 32
	bi.Header.BiCompression = biRgb
	bi.Header.BiSizeImage = uint32(w * h * 4)

	var bitsPtr unsafe.Pointer
	bmp, _, callErr := procCreateDIBSection.Call(memDC, uintptr(unsafe.Pointer(&bi)), dibRGBColors, uintptr(unsafe.Pointer(&bitsPtr)), 0, 0)
	if bmp == 0 {
		return nil, fmt.Errorf("CreateDIBSection: %w", callErr)
	}
	defer procDeleteObject.Call(bmp)

	prev, _, callErr := procSelectObject.Call(memDC, bmp)
	if prev == 0 || prev == ^uintptr(0) { // failure or GDI_ERROR
		return nil, fmt.Errorf("SelectObject: %w", callErr)
	}

	ok, _, callErr := procBitBlt.Call(memDC, 0, 0, uintptr(w), uintptr(h), screenDC, uintptr(r.Min.X), uintptr(r.Min.Y), srccopy|captureBlt)
	if ok == 0 {
		return nil, fmt.Errorf("BitBlt %v: %w", r, callErr)
	}

	pixLen := w * h * 4
	src := unsafe.Slice((*byte)(bitsPtr), pixLen)
	dst := AcquireFrame(image.Rect(0, 0, w, h))
	for i := 0; i < pixLen; i += 4 {
		// src alpha is undefined; force opaque
		dst.Pix[i+0] = src[i+2]
		dst.Pix[i+1] = src[i+1]
		dst.Pix[i+2] = src[i+0]
		dst.Pix[i+3] = 0xFF
	}
	return dst, nil
}

func getSystemMetric(idx int) int32 {
	v, _, _ := procGetSystemMetrics.Call(uintptr(idx))
	return int32(v)
}
