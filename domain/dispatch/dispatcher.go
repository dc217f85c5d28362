// Package dispatch executes a rule's action list against a matched region.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/soocke/pixel-watch-go/domain/input"
	"github.com/soocke/pixel-watch-go/domain/platform"
	"github.com/soocke/pixel-watch-go/domain/rules"
)

const (
	DefaultActivateDelay     = 300 * time.Millisecond
	DefaultClickOnMatchDelay = 200 * time.Millisecond
)

// Options tunes dispatch side effects.
type Options struct {
	// ActivateWindow raises the target window before the first action when
	// the locator supports it.
	ActivateWindow bool
	ActivateDelay  time.Duration
	// ClickOnMatchDelay is slept after the centre click of a click-on-match
	// rule.
	ClickOnMatchDelay time.Duration
}

// Rects reports a window's current screen rectangle.
type Rects interface {
	Rect(h platform.Handle) (platform.Rect, error)
}

// Result summarises one dispatched action list.
type Result struct {
	Executed int
	Failed   int
	// Aborted is set when a required action failed and the rest of the list
	// was skipped.
	Aborted bool
	Err     error
}

// Dispatcher runs action lists through an injector. One Dispatcher is shared
// by every monitor; it runs one action list at a time so sequences from
// different windows never interleave on the shared cursor. The lock is held
// through wait actions and delays, so a long wait holds up dispatch for the
// whole fleet.
type Dispatcher struct {
	logger   *slog.Logger
	injector input.Injector
	rects    Rects
	opts     Options

	mu    sync.Mutex
	sleep func(ctx context.Context, d time.Duration)
}

// New builds a dispatcher. rects is usually the platform locator; when it
// also implements platform.Activator windows can be raised before dispatch.
func New(logger *slog.Logger, injector input.Injector, rects Rects, opts Options) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.ActivateDelay <= 0 {
		opts.ActivateDelay = DefaultActivateDelay
	}
	if opts.ClickOnMatchDelay < 0 {
		opts.ClickOnMatchDelay = 0
	}
	return &Dispatcher{logger: logger, injector: injector, rects: rects, opts: opts, sleep: sleepCtx}
}

// Dispatch performs the rule's reaction to a match: an optional centre click
// followed by the rule's action list.
func (d *Dispatcher) Dispatch(ctx context.Context, h platform.Handle, rule rules.Rule, region image.Rectangle) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.activate(ctx, h)
	var res Result
	if rule.ClickOnMatch {
		c := image.Pt(region.Min.X+region.Dx()/2, region.Min.Y+region.Dy()/2)
		err := d.clickAt(h, c, rules.ButtonLeft)
		if err != nil {
			res.Failed++
			res.Err = fmt.Errorf("click on match: %w", err)
			d.logger.Warn("click on match failed", "pattern", rule.Pattern, "error", err)
		} else {
			res.Executed++
		}
		d.sleep(ctx, d.opts.ClickOnMatchDelay)
	}
	sub := d.execute(ctx, h, region, rule.Actions)
	res.Executed += sub.Executed
	res.Failed += sub.Failed
	res.Aborted = sub.Aborted
	res.Err = errors.Join(res.Err, sub.Err)
	return res
}

// Execute runs actions in order against region. A failing required action
// aborts the remainder; other failures are recorded and execution continues.
func (d *Dispatcher) Execute(ctx context.Context, h platform.Handle, region image.Rectangle, actions []rules.Action) Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activate(ctx, h)
	return d.execute(ctx, h, region, actions)
}

func (d *Dispatcher) execute(ctx context.Context, h platform.Handle, region image.Rectangle, actions []rules.Action) Result {
	var res Result
	var errs []error
	for i, a := range actions {
		err := d.run(ctx, h, region, a)
		if err != nil {
			res.Failed++
			err = fmt.Errorf("action %d (%s): %w", i, a.Kind(), err)
			errs = append(errs, err)
			if a.Required {
				d.logger.Warn("required action failed, aborting", "index", i, "error", err)
				res.Aborted = true
				break
			}
			d.logger.Warn("action failed", "index", i, "error", err)
		} else {
			res.Executed++
		}
		d.sleep(ctx, a.Delay)
	}
	res.Err = errors.Join(errs...)
	return res
}

func (d *Dispatcher) run(ctx context.Context, h platform.Handle, region image.Rectangle, a rules.Action) error {
	switch p := a.Params.(type) {
	case rules.Click:
		return d.clickAt(h, ResolvePoint(p, region), p.Button)
	case rules.Key:
		return d.injector.KeyEvent(p.Code, p.Press)
	case rules.Text:
		for i, code := range input.TextKeyCodes(p.Text) {
			if i > 0 {
				d.sleep(ctx, p.Delay)
			}
			if err := d.injector.KeyEvent(code, rules.PressClick); err != nil {
				return fmt.Errorf("char %d: %w", i, err)
			}
		}
		return nil
	case rules.Wait:
		d.sleep(ctx, p.Duration)
		return nil
	default:
		return fmt.Errorf("%w: unsupported parameters %T", rules.ErrInvalidAction, a.Params)
	}
}

// clickAt converts a window-local point using the window's current rectangle
// and clicks it.
func (d *Dispatcher) clickAt(h platform.Handle, local image.Point, b rules.Button) error {
	wr, err := d.rects.Rect(h)
	if err != nil {
		return fmt.Errorf("window rect: %w", err)
	}
	pt := wr.ToScreen(local.X, local.Y)
	d.logger.Debug("click", "local", local, "screen", pt, "button", b.String())
	return d.injector.Click(pt.X, pt.Y, b)
}

func (d *Dispatcher) activate(ctx context.Context, h platform.Handle) {
	if !d.opts.ActivateWindow {
		return
	}
	act, ok := d.rects.(platform.Activator)
	if !ok {
		return
	}
	if err := act.Activate(h); err != nil {
		d.logger.Warn("window activation failed", "error", err)
		return
	}
	d.sleep(ctx, d.opts.ActivateDelay)
}

// ResolvePoint returns the window-local point of a click. Relative clicks
// are fractions of the matched region offset from its top-left corner.
func ResolvePoint(c rules.Click, region image.Rectangle) image.Point {
	if c.Relative {
		return image.Pt(region.Min.X+int(float64(region.Dx())*c.X), region.Min.Y+int(float64(region.Dy())*c.Y))
	}
	return image.Pt(int(c.X), int(c.Y))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
