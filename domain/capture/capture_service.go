package capture

import (
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/soocke/pixel-watch-go/domain/platform"
)

const captureStatsLogInterval = 30 * time.Second

// Instrumented wraps a Provider with counters and periodic debug logging.
// It is shared by all monitors, so every field is atomic.
type Instrumented struct {
	next   Provider
	logger *slog.Logger

	captures     atomic.Uint64
	failures     atomic.Uint64
	captureNanos atomic.Uint64
	lastAt       atomic.Int64
	lastErr      atomic.Pointer[string]
	lastLog      atomic.Int64
}

// NewInstrumented decorates next. A nil logger disables stats logging.
func NewInstrumented(logger *slog.Logger, next Provider) *Instrumented {
	return &Instrumented{next: next, logger: logger}
}

// Capture delegates to the wrapped provider. Errors, including a panic in
// the provider, are wrapped with ErrCaptureFailed.
func (s *Instrumented) Capture(h platform.Handle) (*image.RGBA, error) {
	start := time.Now()
	img, err := s.capture(h)
	if err == nil && (img == nil || img.Rect.Empty()) {
		err = fmt.Errorf("empty frame for window %#x", uintptr(h))
	}
	if err != nil {
		s.failures.Add(1)
		msg := err.Error()
		s.lastErr.Store(&msg)
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}
	s.captureNanos.Add(uint64(time.Since(start).Nanoseconds()))
	s.captures.Add(1)
	s.lastAt.Store(time.Now().UnixNano())
	s.maybeLogStats()
	return img, nil
}

func (s *Instrumented) capture(h platform.Handle) (img *image.RGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("provider panic: %v", r)
		}
	}()
	return s.next.Capture(h)
}

func (s *Instrumented) Stats() CaptureStats {
	captures := s.captures.Load()
	var avg time.Duration
	if captures > 0 {
		avg = time.Duration(s.captureNanos.Load() / captures)
	}
	var last time.Time
	if ns := s.lastAt.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	var lastErr string
	if p := s.lastErr.Load(); p != nil {
		lastErr = *p
	}
	return CaptureStats{
		Captures:    captures,
		Failures:    s.failures.Load(),
		AvgCapture:  avg,
		LastCapture: last,
		LastError:   lastErr,
	}
}

func (s *Instrumented) maybeLogStats() {
	if s.logger == nil {
		return
	}
	now := time.Now().UnixNano()
	prev := s.lastLog.Load()
	if now-prev < int64(captureStatsLogInterval) || !s.lastLog.CompareAndSwap(prev, now) {
		return
	}
	stats := s.Stats()
	s.logger.Debug("capture.stats",
		"captures", stats.Captures,
		"failures", stats.Failures,
		"avg_capture", stats.AvgCapture,
	)
}
