package recognition

import (
	"image"
	"sync"
)

// Luminance weights used for every colour to grayscale conversion.
const (
	lumR = 0.2126
	lumG = 0.7152
	lumB = 0.0722
)

// plane is an interleaved float image with 1 (gray) or 3 (RGB) channels,
// values in 0..255.
type plane struct {
	w, h, c int
	pix     []float64
}

func (p *plane) empty() bool { return p == nil || p.w == 0 || p.h == 0 }

// isGrayImage reports whether img carries a single channel.
func isGrayImage(img image.Image) bool {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return true
	}
	return false
}

// newPlane converts img into its native channel depth.
func newPlane(img image.Image) *plane {
	if img == nil {
		return nil
	}
	if isGrayImage(img) {
		return grayPlaneOf(img)
	}
	return colorPlaneOf(img)
}

func colorPlaneOf(img image.Image) *plane {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	p := &plane{w: w, h: h, c: 3, pix: make([]float64, w*h*3)}
	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < h; y++ {
			row := rgba.Pix[rgba.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < w; x++ {
				o := (y*w + x) * 3
				p.pix[o] = float64(row[x*4])
				p.pix[o+1] = float64(row[x*4+1])
				p.pix[o+2] = float64(row[x*4+2])
			}
		}
		return p
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			o := (y*w + x) * 3
			p.pix[o] = float64(r >> 8)
			p.pix[o+1] = float64(g >> 8)
			p.pix[o+2] = float64(bb >> 8)
		}
	}
	return p
}

func grayPlaneOf(img image.Image) *plane {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	p := &plane{w: w, h: h, c: 1, pix: make([]float64, w*h)}
	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < h; y++ {
			row := g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < w; x++ {
				p.pix[y*w+x] = float64(row[x])
			}
		}
		return p
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			p.pix[y*w+x] = (lumR*float64(r) + lumG*float64(g) + lumB*float64(bb)) / 257
		}
	}
	return p
}

// toGray returns p itself when already single channel.
func (p *plane) toGray() *plane {
	if p == nil || p.c == 1 {
		return p
	}
	out := &plane{w: p.w, h: p.h, c: 1, pix: make([]float64, p.w*p.h)}
	for i := range out.pix {
		o := i * 3
		out.pix[i] = lumR*p.pix[o] + lumG*p.pix[o+1] + lumB*p.pix[o+2]
	}
	return out
}

// Frame is a capture prepared for repeated matching. Colour and gray
// summed-area tables are built lazily and shared by every rule evaluated
// against the same capture.
type Frame struct {
	native *plane

	colorOnce sync.Once
	colorPre  *framePrecomp
	grayOnce  sync.Once
	grayPre   *framePrecomp
}

// NewFrame wraps a capture. A nil or empty image yields a Frame that never
// matches.
func NewFrame(img image.Image) *Frame {
	if img == nil || img.Bounds().Empty() {
		return &Frame{}
	}
	return &Frame{native: newPlane(img)}
}

// Bounds returns the capture size.
func (f *Frame) Bounds() image.Rectangle {
	if f == nil || f.native == nil {
		return image.Rectangle{}
	}
	return image.Rect(0, 0, f.native.w, f.native.h)
}

func (f *Frame) empty() bool { return f == nil || f.native.empty() }

// precomp returns the summed-area tables for the requested channel depth.
func (f *Frame) precomp(channels int) *framePrecomp {
	if f.empty() {
		return nil
	}
	if channels == 1 || f.native.c == 1 {
		f.grayOnce.Do(func() { f.grayPre = buildFramePrecomp(f.native.toGray()) })
		return f.grayPre
	}
	f.colorOnce.Do(func() { f.colorPre = buildFramePrecomp(f.native) })
	return f.colorPre
}
