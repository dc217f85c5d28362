package recognition

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// varianceEpsilon is the per-pixel variance under which a window or template
// is treated as flat.
const varianceEpsilon = 1e-6

// unscored marks score-map cells skipped by a coarse stride.
const unscored = -1.0

// framePrecomp stores a capture plane with per-channel summed-area tables of
// values and squared values. Tables are padded by one row and column so a
// window sum is four lookups with no bounds checks.
type framePrecomp struct {
	p          *plane
	integral   [][]float64
	integralSq [][]float64
}

// templatePrecomp caches per-channel sums of a pattern plane.
type templatePrecomp struct {
	p     *plane
	n     float64
	sumT  []float64
	meanT []float64
	// varT is the summed-over-channels centred energy of the template.
	varT float64
}

func buildFramePrecomp(p *plane) *framePrecomp {
	if p.empty() {
		return nil
	}
	stride := p.w + 1
	fp := &framePrecomp{p: p, integral: make([][]float64, p.c), integralSq: make([][]float64, p.c)}
	for ch := 0; ch < p.c; ch++ {
		in := make([]float64, stride*(p.h+1))
		sq := make([]float64, stride*(p.h+1))
		for y := 0; y < p.h; y++ {
			var rowSum, rowSum2 float64
			for x := 0; x < p.w; x++ {
				v := p.pix[(y*p.w+x)*p.c+ch]
				rowSum += v
				rowSum2 += v * v
				off := (y+1)*stride + x + 1
				in[off] = in[off-stride] + rowSum
				sq[off] = sq[off-stride] + rowSum2
			}
		}
		fp.integral[ch] = in
		fp.integralSq[ch] = sq
	}
	return fp
}

func buildTemplatePrecomp(p *plane) *templatePrecomp {
	if p.empty() {
		return nil
	}
	tp := &templatePrecomp{p: p, n: float64(p.w * p.h), sumT: make([]float64, p.c), meanT: make([]float64, p.c)}
	sumT2 := make([]float64, p.c)
	for i := 0; i < p.w*p.h; i++ {
		for ch := 0; ch < p.c; ch++ {
			v := p.pix[i*p.c+ch]
			tp.sumT[ch] += v
			sumT2[ch] += v * v
		}
	}
	for ch := 0; ch < p.c; ch++ {
		tp.meanT[ch] = tp.sumT[ch] / tp.n
		tp.varT += sumT2[ch] - tp.sumT[ch]*tp.sumT[ch]/tp.n
	}
	return tp
}

// flat reports whether the template has no variance on any channel.
func (t *templatePrecomp) flat() bool {
	return t.varT <= varianceEpsilon*t.n*float64(t.p.c)
}

// windowSum returns the inclusive sum over the w*h window at (x,y).
func windowSum(I []float64, stride, x, y, w, h int) float64 {
	return I[(y+h)*stride+x+w] - I[y*stride+x+w] - I[(y+h)*stride+x] + I[y*stride+x]
}

// scoreAt computes the match confidence of t placed at (x,y) on f.
// Textured templates use normalized cross-correlation with per-channel mean
// removal. Flat templates have no correlation structure, so they are scored by
// normalized RMS similarity instead. The result is clamped to 0..1.
func scoreAt(f *framePrecomp, t *templatePrecomp, x, y int) float64 {
	w, h, c := t.p.w, t.p.h, t.p.c
	stride := f.p.w + 1
	n := t.n

	if t.flat() {
		var ssd float64
		for ch := 0; ch < c; ch++ {
			sumF := windowSum(f.integral[ch], stride, x, y, w, h)
			sumF2 := windowSum(f.integralSq[ch], stride, x, y, w, h)
			m := t.meanT[ch]
			ssd += sumF2 - 2*m*sumF + n*m*m
		}
		if ssd < 0 {
			ssd = 0
		}
		return clamp01(1 - math.Sqrt(ssd/(n*float64(c)))/255)
	}

	var varF, numer float64
	for ch := 0; ch < c; ch++ {
		sumF := windowSum(f.integral[ch], stride, x, y, w, h)
		sumF2 := windowSum(f.integralSq[ch], stride, x, y, w, h)
		varF += sumF2 - sumF*sumF/n
		numer -= sumF * t.sumT[ch] / n
	}
	if varF <= varianceEpsilon*n*float64(c) {
		return 0
	}
	rowLen := w * c
	for ty := 0; ty < h; ty++ {
		fo := ((y+ty)*f.p.w + x) * c
		to := ty * rowLen
		fr := f.p.pix[fo : fo+rowLen]
		tr := t.p.pix[to : to+rowLen]
		for i, v := range tr {
			numer += fr[i] * v
		}
	}
	return clamp01(numer / math.Sqrt(varF*t.varT))
}

// scoreMap scores every stride-th offset of t over f. Cells that were not
// visited hold unscored. Rows are split across workers.
func scoreMap(f *framePrecomp, t *templatePrecomp, stride, workers int) (scores []float64, mw, mh int) {
	if f == nil || t == nil || f.p.c != t.p.c {
		return nil, 0, 0
	}
	mw = f.p.w - t.p.w + 1
	mh = f.p.h - t.p.h + 1
	if mw <= 0 || mh <= 0 {
		return nil, 0, 0
	}
	if stride <= 0 {
		stride = 1
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	scores = make([]float64, mw*mh)
	for i := range scores {
		scores[i] = unscored
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for y := 0; y < mh; y += stride {
		g.Go(func() error {
			for x := 0; x < mw; x += stride {
				scores[y*mw+x] = scoreAt(f, t, x, y)
			}
			return nil
		})
	}
	_ = g.Wait()
	return scores, mw, mh
}

// bestIn returns the arg-max of a score map. When stride > 1 and refine is
// set, the neighbourhood of the coarse winner is rescored at full resolution.
func bestIn(f *framePrecomp, t *templatePrecomp, scores []float64, mw, mh, stride int, refine bool) (bx, by int, best float64) {
	best = unscored
	for i, s := range scores {
		if s > best {
			best, bx, by = s, i%mw, i/mw
		}
	}
	if best == unscored || !refine || stride <= 1 {
		return bx, by, best
	}
	cx, cy := bx, by
	for y := max(0, cy-stride); y <= min(mh-1, cy+stride); y++ {
		for x := max(0, cx-stride); x <= min(mw-1, cx+stride); x++ {
			if s := scoreAt(f, t, x, y); s > best {
				best, bx, by = s, x, y
			}
		}
	}
	return bx, by, best
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
