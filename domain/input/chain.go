package input

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/soocke/pixel-watch-go/domain/rules"
)

// DefaultClickBudget bounds one operation across every transport.
const DefaultClickBudget = time.Second

// ChainOptions configures a Chain.
type ChainOptions struct {
	// Budget is the time allowed for one operation, including rate limiting.
	Budget time.Duration
	// EventsPerSecond limits operations across all monitors. Zero disables
	// limiting.
	EventsPerSecond float64
	Burst           int
}

// Chain tries each transport in order until one succeeds. The cursor and the
// keyboard focus are process-wide, so every primitive runs under one lock and
// concurrent monitors never interleave a down/up pair.
type Chain struct {
	logger     *slog.Logger
	strategies []Injector
	budget     time.Duration
	limiter    *rate.Limiter

	mu sync.Mutex
}

var _ Injector = (*Chain)(nil)

// NewChain builds a chain over strategies in the given order.
func NewChain(logger *slog.Logger, opts ChainOptions, strategies ...Injector) *Chain {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Budget <= 0 {
		opts.Budget = DefaultClickBudget
	}
	c := &Chain{logger: logger, strategies: strategies, budget: opts.Budget}
	if opts.EventsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.EventsPerSecond), burst)
	}
	return c
}

func (c *Chain) Name() string { return "chain" }

// Available reports whether any transport is usable.
func (c *Chain) Available() bool {
	for _, s := range c.strategies {
		if s.Available() {
			return true
		}
	}
	return false
}

// Strategies returns the names of the usable transports in order.
func (c *Chain) Strategies() []string {
	var out []string
	for _, s := range c.strategies {
		if s.Available() {
			out = append(out, s.Name())
		}
	}
	return out
}

func (c *Chain) Move(x, y int) error {
	return c.run("move", func(s Injector) error { return s.Move(x, y) })
}

func (c *Chain) Click(x, y int, button rules.Button) error {
	return c.run("click", func(s Injector) error { return s.Click(x, y, button) })
}

func (c *Chain) KeyEvent(code int, press rules.PressType) error {
	return c.run("key", func(s Injector) error { return s.KeyEvent(code, press) })
}

// Type is not bounded by the click budget since its duration scales with the
// text length.
func (c *Chain) Type(text string, delay time.Duration) error {
	return c.runBudget("type", 0, func(s Injector) error { return s.Type(text, delay) })
}

func (c *Chain) run(op string, fn func(Injector) error) error {
	return c.runBudget(op, c.budget, fn)
}

func (c *Chain) runBudget(op string, budget time.Duration, fn func(Injector) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx := context.Background()
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: %w: %w", op, ErrBudgetExceeded, err)
		}
	}

	var errs []error
	tried := 0
	for _, s := range c.strategies {
		if !s.Available() {
			continue
		}
		if ctx.Err() != nil {
			errs = append(errs, ErrBudgetExceeded)
			break
		}
		tried++
		err := call(fn, s)
		if err == nil {
			if tried > 1 {
				c.logger.Debug("input fallback used", "op", op, "strategy", s.Name())
			}
			return nil
		}
		c.logger.Debug("input strategy failed", "op", op, "strategy", s.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	if tried == 0 && len(errs) == 0 {
		return fmt.Errorf("%s: %w", op, ErrUnavailable)
	}
	return fmt.Errorf("%s: %w", op, errors.Join(errs...))
}

// call invokes fn on s, converting a transport panic into an error.
func call(fn func(Injector) error, s Injector) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(s)
}

// Assemble builds a chain from transports picked by name in order. Unknown
// names are logged and skipped.
func Assemble(logger *slog.Logger, opts ChainOptions, order []string, byName map[string]Injector) *Chain {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if len(order) == 0 {
		order = DefaultOrder
	}
	var picked []Injector
	for _, name := range order {
		s, ok := byName[name]
		if !ok {
			logger.Warn("unknown input strategy", "name", name)
			continue
		}
		picked = append(picked, s)
	}
	return NewChain(logger, opts, picked...)
}
