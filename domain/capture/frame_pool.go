package capture

import (
	"fmt"
	"image"
	"sync"

	"github.com/soocke/pixel-watch-go/domain/platform"
)

// Captures are large and produced every cycle by every monitor. Providers
// copy pixels into pooled buffers and monitors recycle a frame once all rules
// have been evaluated against it. Frames that are never recycled are simply
// collected.

var framePool sync.Pool // stores *image.RGBA

// AcquireFrame returns a reusable RGBA image sized to rect. Pix length is
// exactly rect area * 4 and Stride is width*4. Pixel contents are undefined.
func AcquireFrame(rect image.Rectangle) *image.RGBA {
	w, h := rect.Dx(), rect.Dy()
	if w <= 0 || h <= 0 {
		return &image.RGBA{Rect: rect}
	}
	needed := w * h * 4
	var img *image.RGBA
	if v := framePool.Get(); v != nil {
		img = v.(*image.RGBA)
	}
	if img == nil || cap(img.Pix) < needed {
		img = &image.RGBA{Pix: make([]byte, needed), Stride: w * 4, Rect: rect}
	} else {
		img.Stride = w * 4
		img.Rect = rect
		img.Pix = img.Pix[:needed]
	}
	return img
}

// RecycleFrame returns the frame to the pool. The caller must not touch img
// afterwards.
func RecycleFrame(img *image.RGBA) {
	if img == nil || img.Pix == nil {
		return
	}
	framePool.Put(img)
}

// copyToPooled copies src into a pooled frame whose bounds start at 0,0.
func copyToPooled(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	dst := AcquireFrame(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		so := src.PixOffset(b.Min.X, b.Min.Y+y)
		copy(dst.Pix[y*dst.Stride:(y+1)*dst.Stride], src.Pix[so:so+dst.Stride])
	}
	return dst
}

// visiblePart returns a window's screen rectangle and the part of it that
// lies on screen.
func visiblePart(rects RectSource, h platform.Handle, screen image.Rectangle) (vis, win image.Rectangle, err error) {
	wr, err := rects.Rect(h)
	if err != nil {
		return image.Rectangle{}, image.Rectangle{}, err
	}
	win = wr.Rectangle()
	vis = win.Intersect(screen)
	if vis.Empty() {
		return image.Rectangle{}, image.Rectangle{}, fmt.Errorf("window %#x is off screen (%v)", uintptr(h), win)
	}
	return vis, win, nil
}

// windowFrame places src, the on-screen part of a window, at off inside a
// pooled frame of the window's full size so match positions stay
// window-relative. The rest of the frame is opaque black.
func windowFrame(src *image.RGBA, size, off image.Point) *image.RGBA {
	b := src.Bounds()
	if off == (image.Point{}) && b.Size() == size {
		return copyToPooled(src)
	}
	dst := AcquireFrame(image.Rectangle{Max: size})
	for i := 0; i < len(dst.Pix); i += 4 {
		dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = 0, 0, 0, 0xFF
	}
	vis := image.Rectangle{Min: off, Max: off.Add(b.Size())}.Intersect(dst.Rect)
	n := vis.Dx() * 4
	for y := vis.Min.Y; y < vis.Max.Y; y++ {
		so := src.PixOffset(b.Min.X, b.Min.Y+y-off.Y)
		do := dst.PixOffset(vis.Min.X, y)
		copy(dst.Pix[do:do+n], src.Pix[so:so+n])
	}
	return dst
}
