package recognition

import "math"

// HSV quantisation, 8-bit hue range 0..180.
const (
	hueBins  = 30
	satBins  = 32
	valBins  = 32
	grayBins = 64
)

// histogram computes the concatenated hue/saturation/value histogram of the
// w*h region at (x,y). Single-channel planes produce a plain intensity
// histogram. Each sub-histogram is min-max normalised independently.
func histogram(p *plane, x, y, w, h int) []float64 {
	if p.c == 1 {
		hist := make([]float64, grayBins)
		for yy := y; yy < y+h; yy++ {
			for xx := x; xx < x+w; xx++ {
				hist[binOf(p.pix[yy*p.w+xx], 256, grayBins)]++
			}
		}
		minMax(hist)
		return hist
	}

	hh := make([]float64, hueBins)
	sh := make([]float64, satBins)
	vh := make([]float64, valBins)
	for yy := y; yy < y+h; yy++ {
		for xx := x; xx < x+w; xx++ {
			o := (yy*p.w + xx) * 3
			hv, sv, vv := hsv8(p.pix[o], p.pix[o+1], p.pix[o+2])
			hh[binOf(hv, 180, hueBins)]++
			sh[binOf(sv, 256, satBins)]++
			vh[binOf(vv, 256, valBins)]++
		}
	}
	minMax(hh)
	minMax(sh)
	minMax(vh)
	out := make([]float64, 0, hueBins+satBins+valBins)
	out = append(out, hh...)
	out = append(out, sh...)
	return append(out, vh...)
}

// hsv8 converts RGB in 0..255 to H in 0..180 and S, V in 0..255.
func hsv8(r, g, b float64) (h, s, v float64) {
	v = math.Max(r, math.Max(g, b))
	mn := math.Min(r, math.Min(g, b))
	d := v - mn
	if v > 0 {
		s = 255 * d / v
	}
	if d == 0 {
		return 0, s, v
	}
	switch v {
	case r:
		h = 60 * (g - b) / d
	case g:
		h = 120 + 60*(b-r)/d
	default:
		h = 240 + 60*(r-g)/d
	}
	if h < 0 {
		h += 360
	}
	return h / 2, s, v
}

func binOf(v, rangeMax float64, bins int) int {
	i := int(v * float64(bins) / rangeMax)
	if i < 0 {
		return 0
	}
	if i >= bins {
		return bins - 1
	}
	return i
}

// minMax rescales h to 0..1 in place. A constant histogram becomes all zeros.
func minMax(h []float64) {
	lo, hi := h[0], h[0]
	for _, v := range h {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	for i, v := range h {
		if span == 0 {
			h[i] = 0
			continue
		}
		h[i] = (v - lo) / span
	}
}

// correlate returns the Pearson correlation of two equal-length histograms,
// clamped to 0..1. When either side has no variance the score is 1 for
// identical vectors and 0 otherwise.
func correlate(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	n := float64(len(a))
	var sa, sb float64
	for i := range a {
		sa += a[i]
		sb += b[i]
	}
	ma, mb := sa/n, sb/n
	var num, da, db float64
	for i := range a {
		x, y := a[i]-ma, b[i]-mb
		num += x * y
		da += x * x
		db += y * y
	}
	if da == 0 || db == 0 {
		for i := range a {
			if a[i] != b[i] {
				return 0
			}
		}
		return 1
	}
	return clamp01(num / math.Sqrt(da*db))
}
