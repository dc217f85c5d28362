package recognition

import (
	"image"
	"sync"
)

// Pattern is an immutable reference image. Derived descriptors are computed on
// first use and cached, so a Pattern may be shared by any number of monitors.
type Pattern struct {
	name   string
	native *plane

	colorOnce sync.Once
	colorTpl  *templatePrecomp
	grayOnce  sync.Once
	grayTpl   *templatePrecomp

	colorHistOnce sync.Once
	colorHist     []float64
	grayHistOnce  sync.Once
	grayHist      []float64
}

func newPattern(name string, img image.Image) *Pattern {
	return &Pattern{name: name, native: newPlane(img)}
}

func (p *Pattern) Name() string { return p.name }

// Size returns the pattern width and height in pixels.
func (p *Pattern) Size() (w, h int) {
	if p.native == nil {
		return 0, 0
	}
	return p.native.w, p.native.h
}

func (p *Pattern) channels() int {
	if p.native == nil {
		return 0
	}
	return p.native.c
}

func (p *Pattern) template(channels int) *templatePrecomp {
	if p.native.empty() {
		return nil
	}
	if channels == 1 || p.native.c == 1 {
		p.grayOnce.Do(func() { p.grayTpl = buildTemplatePrecomp(p.native.toGray()) })
		return p.grayTpl
	}
	p.colorOnce.Do(func() { p.colorTpl = buildTemplatePrecomp(p.native) })
	return p.colorTpl
}

func (p *Pattern) histogram(channels int) []float64 {
	if channels == 1 || p.native.c == 1 {
		p.grayHistOnce.Do(func() {
			g := p.native.toGray()
			p.grayHist = histogram(g, 0, 0, g.w, g.h)
		})
		return p.grayHist
	}
	p.colorHistOnce.Do(func() {
		p.colorHist = histogram(p.native, 0, 0, p.native.w, p.native.h)
	})
	return p.colorHist
}
