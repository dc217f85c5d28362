package recognition

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/disintegration/imaging"

	"github.com/soocke/pixel-watch-go/domain/rules"
)

// histogramRelax scales the threshold used to collect histogram candidates.
const histogramRelax = 0.7

// ErrEmptyImage is returned when a pattern has no pixels.
var ErrEmptyImage = errors.New("empty image")

var patternExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".bmp": true}

// Options tunes the correlation search.
type Options struct {
	// Stride is the coarse step between scored offsets; 1 scores every offset.
	// Above 1, FindAll and histogram candidates only see grid offsets and may
	// miss peaks between them; Refine only applies to FindBest.
	Stride int
	// Refine rescores the neighbourhood of a coarse winner at full resolution.
	Refine bool
	// Workers bounds parallel row scoring; 0 means runtime.NumCPU.
	Workers int
}

// Match is the outcome of one recognition call. Position is in
// capture-local pixels and is zero when Found is false.
type Match struct {
	Found      bool
	X, Y, W, H int
	Confidence float64
}

// Center returns the centre of the matched region.
func (m Match) Center() image.Point {
	return image.Pt(m.X+m.W/2, m.Y+m.H/2)
}

func (m Match) Rect() image.Rectangle {
	return image.Rect(m.X, m.Y, m.X+m.W, m.Y+m.H)
}

type table map[string]*Pattern

// Engine matches named patterns against captures. The pattern table is
// replaced wholesale on every write, so lookups never lock and in-flight
// matches keep the table they started with.
type Engine struct {
	logger *slog.Logger
	opts   Options

	mu    sync.Mutex // serialises writers
	table atomic.Pointer[table]
}

// NewEngine builds an engine with an empty pattern table.
func NewEngine(logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Stride <= 0 {
		opts.Stride = 1
	}
	e := &Engine{logger: logger, opts: opts}
	e.table.Store(&table{})
	return e
}

func (e *Engine) snapshot() table { return *e.table.Load() }

// Pattern returns the named pattern, if loaded.
func (e *Engine) Pattern(name string) (*Pattern, bool) {
	p, ok := e.snapshot()[name]
	return p, ok
}

// Names returns the loaded pattern names in sorted order.
func (e *Engine) Names() []string {
	return slices.Sorted(maps.Keys(e.snapshot()))
}

func (e *Engine) Len() int { return len(e.snapshot()) }

// AddPattern inserts or overwrites a single pattern.
func (e *Engine) AddPattern(name string, img image.Image) error {
	if name == "" {
		return errors.New("pattern name is empty")
	}
	if img == nil || img.Bounds().Empty() {
		return fmt.Errorf("pattern %q: %w", name, ErrEmptyImage)
	}
	p := newPattern(name, img)
	e.mu.Lock()
	defer e.mu.Unlock()
	next := maps.Clone(e.snapshot())
	next[name] = p
	e.table.Store(&next)
	return nil
}

// LoadPatterns merges every qualifying image in dir into the table, keyed by
// file stem. Unreadable files are logged and skipped. It returns the number
// of patterns loaded from dir.
func (e *Engine) LoadPatterns(dir string) (int, error) {
	loaded, err := e.readDir(dir)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	next := maps.Clone(e.snapshot())
	maps.Copy(next, loaded)
	e.table.Store(&next)
	return len(loaded), nil
}

// Reload replaces the whole table with the contents of dir. Patterns added
// through AddPattern and absent from dir are dropped.
func (e *Engine) Reload(dir string) (int, error) {
	loaded, err := e.readDir(dir)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.table.Store(&loaded)
	e.logger.Info("patterns reloaded", "dir", dir, "count", len(loaded))
	return len(loaded), nil
}

func (e *Engine) readDir(dir string) (table, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read pattern dir: %w", err)
	}
	out := make(table, len(entries))
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(ent.Name()))
		if !patternExts[ext] {
			continue
		}
		path := filepath.Join(dir, ent.Name())
		img, err := imaging.Open(path)
		if err != nil {
			e.logger.Warn("pattern load failed", "path", path, "error", err)
			continue
		}
		if img.Bounds().Empty() {
			e.logger.Warn("pattern is empty", "path", path)
			continue
		}
		name := strings.TrimSuffix(ent.Name(), filepath.Ext(ent.Name()))
		out[name] = newPattern(name, img)
	}
	return out, nil
}

// FindBest matches a raw capture. See FindBestIn.
func (e *Engine) FindBest(capture image.Image, name string, threshold float64, strategy rules.Strategy) Match {
	return e.FindBestIn(NewFrame(capture), name, threshold, strategy)
}

// FindAll matches a raw capture. See FindAllIn.
func (e *Engine) FindAll(capture image.Image, name string, threshold float64, strategy rules.Strategy) []Match {
	return e.FindAllIn(NewFrame(capture), name, threshold, strategy)
}

// FindBestIn returns the highest-confidence placement of the pattern on f.
// Found is set when the confidence reaches threshold. Unknown patterns and
// empty frames report not-found with zero confidence.
func (e *Engine) FindBestIn(f *Frame, name string, threshold float64, strategy rules.Strategy) Match {
	p, ok := e.Pattern(name)
	if !ok || f.empty() || p.native.empty() {
		return Match{}
	}
	pw, ph := p.Size()

	var x, y int
	var conf float64
	switch strategy {
	case rules.StrategyHistogram:
		x, y, conf = e.bestHistogram(f, p, threshold)
	default:
		x, y, conf = e.bestTemplate(f, p)
	}
	if conf < 0 {
		return Match{}
	}
	if conf < threshold {
		return Match{Confidence: conf}
	}
	return Match{Found: true, X: x, Y: y, W: pw, H: ph, Confidence: conf}
}

// FindAllIn returns every placement reaching threshold, collapsed so that no
// two results have centres within half the pattern width of each other.
// Results are ordered by descending confidence.
func (e *Engine) FindAllIn(f *Frame, name string, threshold float64, strategy rules.Strategy) []Match {
	p, ok := e.Pattern(name)
	if !ok || f.empty() || p.native.empty() {
		return nil
	}
	pw, ph := p.Size()

	var hits []Match
	if strategy == rules.StrategyHistogram {
		fp, cands := e.candidates(f, p, threshold*histogramRelax)
		ref := p.histogram(fp.p.c)
		for _, c := range cands {
			if s := correlate(histogram(fp.p, c.X, c.Y, pw, ph), ref); s >= threshold {
				hits = append(hits, Match{Found: true, X: c.X, Y: c.Y, W: pw, H: ph, Confidence: s})
			}
		}
	} else {
		// Native channels only; the gray pass is a FindBest refinement.
		_, hits = e.candidates(f, p, threshold)
	}
	return Dedup(hits, float64(pw)/2)
}

// bestTemplate correlates on native channels and again in grayscale when both
// sides are colour, keeping the higher score. A negative score means nothing
// could be scored.
func (e *Engine) bestTemplate(f *Frame, p *Pattern) (x, y int, conf float64) {
	c := min(f.native.c, p.channels())
	x, y, conf = e.bestPass(f.precomp(c), p.template(c))
	if c == 3 {
		if gx, gy, gc := e.bestPass(f.precomp(1), p.template(1)); gc > conf {
			x, y, conf = gx, gy, gc
		}
	}
	return x, y, conf
}

func (e *Engine) bestPass(fp *framePrecomp, tp *templatePrecomp) (int, int, float64) {
	scores, mw, mh := scoreMap(fp, tp, e.opts.Stride, e.opts.Workers)
	if scores == nil {
		return 0, 0, unscored
	}
	return bestIn(fp, tp, scores, mw, mh, e.opts.Stride, e.opts.Refine)
}

// bestHistogram scores every relaxed template candidate by colour
// distribution and returns the best one.
func (e *Engine) bestHistogram(f *Frame, p *Pattern, threshold float64) (x, y int, conf float64) {
	fp, cands := e.candidates(f, p, threshold*histogramRelax)
	if fp == nil {
		return 0, 0, unscored
	}
	pw, ph := p.Size()
	ref := p.histogram(fp.p.c)
	conf = 0
	for _, c := range cands {
		if s := correlate(histogram(fp.p, c.X, c.Y, pw, ph), ref); s > conf {
			x, y, conf = c.X, c.Y, s
		}
	}
	return x, y, conf
}

// candidates runs the native-channel pass and returns every scored offset
// reaching min.
func (e *Engine) candidates(f *Frame, p *Pattern, minScore float64) (*framePrecomp, []Match) {
	c := min(f.native.c, p.channels())
	fp, tp := f.precomp(c), p.template(c)
	scores, mw, _ := scoreMap(fp, tp, e.opts.Stride, e.opts.Workers)
	if scores == nil {
		return nil, nil
	}
	pw, ph := p.Size()
	var out []Match
	for i, s := range scores {
		if s == unscored || s < minScore {
			continue
		}
		out = append(out, Match{Found: true, X: i % mw, Y: i / mw, W: pw, H: ph, Confidence: s})
	}
	return fp, out
}

// Dedup greedily keeps the strongest matches, accepting one only when its
// centre is farther than radius from every match already kept.
func Dedup(matches []Match, radius float64) []Match {
	if len(matches) == 0 {
		return nil
	}
	sorted := slices.Clone(matches)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })
	var kept []Match
	for _, m := range sorted {
		mc := centre(m)
		dup := false
		for _, k := range kept {
			kc := centre(k)
			if math.Hypot(mc[0]-kc[0], mc[1]-kc[1]) <= radius {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, m)
		}
	}
	return kept
}

func centre(m Match) [2]float64 {
	return [2]float64{float64(m.X) + float64(m.W)/2, float64(m.Y) + float64(m.H)/2}
}
