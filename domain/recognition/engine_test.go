package recognition

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soocke/pixel-watch-go/domain/rules"
)

// synthFrame creates a uniform RGBA image filled with c.
func synthFrame(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// noiseFrame fills an RGBA image with deterministic pseudo-random pixels.
func noiseFrame(w, h int, seed uint64) *image.RGBA {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = byte(rng.IntN(256))
		img.Pix[i+1] = byte(rng.IntN(256))
		img.Pix[i+2] = byte(rng.IntN(256))
		img.Pix[i+3] = 255
	}
	return img
}

func paste(dst *image.RGBA, src image.Image, x, y int) {
	b := src.Bounds()
	draw.Draw(dst, image.Rect(x, y, x+b.Dx(), y+b.Dy()), src, b.Min, draw.Src)
}

var (
	red   = color.RGBA{R: 255, A: 255}
	black = color.RGBA{A: 255}
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(nil, Options{})
}

func TestEngine_FindBestSolidPattern(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.AddPattern("button", synthFrame(20, 10, red)))

	capture := synthFrame(200, 150, black)
	paste(capture, synthFrame(20, 10, red), 50, 60)

	m := e.FindBest(capture, "button", 0.9, rules.StrategyTemplate)
	require.True(t, m.Found)
	assert.Equal(t, image.Rect(50, 60, 70, 70), m.Rect())
	assert.InDelta(t, 1.0, m.Confidence, 1e-9)
	assert.Equal(t, image.Pt(60, 65), m.Center())
}

func TestEngine_FindBestLossyCaptureMissesStrictThreshold(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.AddPattern("button", synthFrame(20, 10, red)))

	capture := synthFrame(200, 150, black)
	paste(capture, synthFrame(20, 10, red), 50, 60)
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, capture, &jpeg.Options{Quality: 10}))
	lossy, err := jpeg.Decode(&buf)
	require.NoError(t, err)

	m := e.FindBest(lossy, "button", 0.99, rules.StrategyTemplate)
	assert.False(t, m.Found)
	assert.Less(t, m.Confidence, 0.99)
	assert.Greater(t, m.Confidence, 0.5)
	assert.Equal(t, image.Rectangle{}, m.Rect())

	m = e.FindBest(lossy, "button", m.Confidence, rules.StrategyTemplate)
	assert.True(t, m.Found, "threshold equal to confidence must match")
}

func TestEngine_FindBestTexturedPattern(t *testing.T) {
	e := NewEngine(nil, Options{Stride: 3, Refine: true, Workers: 2})
	tpl := noiseFrame(16, 12, 7)
	require.NoError(t, e.AddPattern("noise", tpl))

	capture := noiseFrame(120, 90, 99)
	paste(capture, tpl, 36, 42)

	m := e.FindBest(capture, "noise", 0.95, rules.StrategyTemplate)
	require.True(t, m.Found)
	assert.Equal(t, 36, m.X)
	assert.Equal(t, 42, m.Y)
	assert.InDelta(t, 1.0, m.Confidence, 1e-6)
}

func TestEngine_ThresholdAboveOneNeverMatches(t *testing.T) {
	e := newTestEngine(t)
	tpl := noiseFrame(10, 10, 3)
	require.NoError(t, e.AddPattern("p", tpl))
	capture := noiseFrame(60, 40, 4)
	paste(capture, tpl, 5, 5)

	for _, s := range []rules.Strategy{rules.StrategyTemplate, rules.StrategyHistogram} {
		m := e.FindBest(capture, "p", 1.1, s)
		assert.False(t, m.Found, s.String())
		assert.LessOrEqual(t, m.Confidence, 1.0)
		assert.Empty(t, e.FindAll(capture, "p", 1.1, s))
	}
}

func TestEngine_NotFoundEdges(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.AddPattern("p", synthFrame(4, 4, red)))

	assert.Equal(t, Match{}, e.FindBest(synthFrame(10, 10, red), "missing", 0.5, rules.StrategyTemplate))
	assert.Equal(t, Match{}, e.FindBest(nil, "p", 0.5, rules.StrategyTemplate))
	assert.Equal(t, Match{}, e.FindBest(image.NewRGBA(image.Rect(0, 0, 0, 0)), "p", 0.5, rules.StrategyTemplate))
	assert.Equal(t, Match{}, e.FindBest(synthFrame(3, 3, red), "p", 0.5, rules.StrategyTemplate), "pattern larger than capture")
	assert.Nil(t, e.FindAll(nil, "p", 0.5, rules.StrategyTemplate))

	assert.ErrorIs(t, e.AddPattern("empty", image.NewRGBA(image.Rect(0, 0, 0, 0))), ErrEmptyImage)
	assert.ErrorIs(t, e.AddPattern("nil", nil), ErrEmptyImage)
}

func TestEngine_ChannelMismatchPicksHigherPass(t *testing.T) {
	e := newTestEngine(t)
	tpl := noiseFrame(12, 12, 11)
	require.NoError(t, e.AddPattern("color", tpl))
	require.NoError(t, e.AddPattern("gray", imaging.Grayscale(tpl)))
	grayTpl := image.NewGray(tpl.Bounds())
	draw.Draw(grayTpl, grayTpl.Bounds(), tpl, image.Point{}, draw.Src)
	require.NoError(t, e.AddPattern("gray8", grayTpl))

	capture := noiseFrame(80, 60, 12)
	paste(capture, tpl, 20, 30)

	require.NotPanics(t, func() {
		for _, name := range []string{"color", "gray", "gray8"} {
			m := e.FindBest(capture, name, 0.8, rules.StrategyTemplate)
			assert.True(t, m.Found, name)
			assert.Equal(t, image.Pt(20, 30), m.Rect().Min, name)
		}
	})

	p, _ := e.Pattern("color")
	f := NewFrame(capture)
	_, _, native := e.bestPass(f.precomp(3), p.template(3))
	_, _, gray := e.bestPass(f.precomp(1), p.template(1))
	_, _, best := e.bestTemplate(f, p)
	assert.Equal(t, math.Max(native, gray), best)

	gcap := image.NewGray(capture.Bounds())
	draw.Draw(gcap, gcap.Bounds(), capture, image.Point{}, draw.Src)
	m := e.FindBest(gcap, "color", 0.8, rules.StrategyTemplate)
	assert.True(t, m.Found)
}

func TestEngine_FindAllDedup(t *testing.T) {
	e := newTestEngine(t)
	tpl := noiseFrame(10, 10, 21)
	require.NoError(t, e.AddPattern("p", tpl))

	capture := noiseFrame(150, 100, 22)
	paste(capture, tpl, 10, 10)
	paste(capture, tpl, 80, 50)
	paste(capture, tpl, 120, 10)

	all := e.FindAll(capture, "p", 0.9, rules.StrategyTemplate)
	require.Len(t, all, 3)
	got := []image.Point{all[0].Rect().Min, all[1].Rect().Min, all[2].Rect().Min}
	assert.ElementsMatch(t, []image.Point{{10, 10}, {80, 50}, {120, 10}}, got)

	loose := e.FindAll(capture, "p", 0.05, rules.StrategyTemplate)
	require.NotEmpty(t, loose)
	for i := range loose {
		for j := i + 1; j < len(loose); j++ {
			a, b := centre(loose[i]), centre(loose[j])
			assert.Greater(t, math.Hypot(a[0]-b[0], a[1]-b[1]), 5.0)
		}
		if i > 0 {
			assert.GreaterOrEqual(t, loose[i-1].Confidence, loose[i].Confidence)
		}
	}
}

func TestDedup_KeepsStrongestAndBoundaryIsExclusive(t *testing.T) {
	in := []Match{
		{X: 0, Y: 0, W: 10, H: 10, Confidence: 0.8},
		{X: 5, Y: 0, W: 10, H: 10, Confidence: 0.9},
		{X: 11, Y: 0, W: 10, H: 10, Confidence: 0.7},
	}
	out := Dedup(in, 5)
	require.Len(t, out, 2)
	assert.Equal(t, 5, out[0].X)
	assert.Equal(t, 11, out[1].X)
	assert.Nil(t, Dedup(nil, 5))
}

func TestEngine_HistogramStrategy(t *testing.T) {
	e := newTestEngine(t)
	tpl := synthFrame(20, 10, red)
	require.NoError(t, e.AddPattern("button", tpl))

	capture := synthFrame(200, 150, black)
	paste(capture, tpl, 50, 60)

	m := e.FindBest(capture, "button", 0.9, rules.StrategyHistogram)
	require.True(t, m.Found)
	assert.Equal(t, image.Pt(50, 60), m.Rect().Min)
	assert.InDelta(t, 1.0, m.Confidence, 1e-9)

	all := e.FindAll(capture, "button", 0.9, rules.StrategyHistogram)
	require.Len(t, all, 1)
	assert.Equal(t, image.Pt(50, 60), all[0].Rect().Min)
}

func TestCorrelate(t *testing.T) {
	assert.InDelta(t, 1.0, correlate([]float64{0, 1, 2}, []float64{0, 2, 4}), 1e-12)
	assert.Equal(t, 0.0, correlate([]float64{0, 1, 2}, []float64{2, 1, 0}))
	assert.Equal(t, 1.0, correlate([]float64{0, 0}, []float64{0, 0}))
	assert.Equal(t, 0.0, correlate([]float64{0, 0}, []float64{0, 1}))
	assert.Equal(t, 0.0, correlate([]float64{1}, []float64{1, 2}))
}

func TestHSV8(t *testing.T) {
	h, s, v := hsv8(255, 0, 0)
	assert.Equal(t, [3]float64{0, 255, 255}, [3]float64{h, s, v})
	h, _, _ = hsv8(0, 255, 0)
	assert.Equal(t, 60.0, h)
	h, _, _ = hsv8(0, 0, 255)
	assert.Equal(t, 120.0, h)
	h, s, v = hsv8(40, 40, 40)
	assert.Equal(t, [3]float64{0, 0, 40}, [3]float64{h, s, v})
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	require.NoError(t, imaging.Save(img, path))
}

func TestEngine_LoadPatternsIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), synthFrame(4, 4, red))
	writePNG(t, filepath.Join(dir, "b.jpg"), noiseFrame(8, 8, 1))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not an image"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	e := newTestEngine(t)
	n, err := e.LoadPatterns(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	first := e.Names()

	n, err = e.LoadPatterns(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, first, e.Names())
	assert.Equal(t, []string{"a", "b"}, e.Names())

	_, err = e.LoadPatterns(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestEngine_ReloadSwapsTable(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), synthFrame(4, 4, red))

	e := newTestEngine(t)
	require.NoError(t, e.AddPattern("manual", synthFrame(2, 2, red)))
	before, _ := e.Pattern("manual")

	n, err := e.Reload(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a"}, e.Names())
	// a reader holding the old pattern keeps a usable value
	w, h := before.Size()
	assert.Equal(t, [2]int{2, 2}, [2]int{w, h})
}

func TestEngine_WatchReloadsOnNewFile(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), synthFrame(4, 4, red))
	e := newTestEngine(t)
	_, err := e.LoadPatterns(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, e.Watch(ctx, dir, 20*time.Millisecond))

	writePNG(t, filepath.Join(dir, "b.png"), synthFrame(4, 4, black))
	require.Eventually(t, func() bool { return e.Len() == 2 }, 3*time.Second, 20*time.Millisecond)
}
