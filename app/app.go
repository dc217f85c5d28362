package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/soocke/pixel-watch-go/debug"
	"github.com/soocke/pixel-watch-go/domain/fleet"
)

const shutdownTimeout = 5 * time.Second

// App runs the monitoring fleet until its context ends.
type App struct {
	c *Container
}

func New(c *Container) *App { return &App{c: c} }

// Run loads patterns and rule sets, starts every monitor after the startup
// delay and blocks until ctx is cancelled. Monitors are stopped before it
// returns.
func (a *App) Run(ctx context.Context) error {
	c, cfg, logger := a.c, a.c.Config, a.c.Logger

	if cfg.Debug {
		debug.Start(ctx, logger.With("component", "debug"), debug.DefaultInterval)
	}

	patternDir := cfg.PatternDir(c.ConfigDir)
	n, err := c.Engine.LoadPatterns(patternDir)
	if err != nil {
		logger.Warn("patterns not loaded", "dir", patternDir, "error", err)
	} else {
		logger.Info("patterns loaded", "dir", patternDir, "count", n)
	}
	if cfg.Patterns.Watch && err == nil {
		if err := c.Engine.Watch(ctx, patternDir, 0); err != nil {
			logger.Warn("pattern watch disabled", "error", err)
		}
	}

	created := c.Fleet.LoadPrograms(c.Programs)
	logger.Info("monitors created", "count", created)
	for _, name := range c.Fleet.Names() {
		m, _ := c.Fleet.Get(name)
		for _, p := range m.Target().Patterns() {
			if _, ok := c.Engine.Pattern(p); !ok {
				logger.Warn("rule references unknown pattern", "target", name, "pattern", p)
			}
		}
	}
	if err := os.MkdirAll(c.Programs.Dir(), 0o755); err == nil {
		if err := c.Fleet.WatchPrograms(ctx, c.Programs, 0); err != nil {
			logger.Warn("program watch disabled", "error", err)
		}
	}

	srv := a.serve()

	if d := cfg.StartupDelayDuration(); d > 0 {
		logger.Info("waiting before start", "delay", d)
		select {
		case <-ctx.Done():
		case <-time.After(d):
		}
	}
	if ctx.Err() == nil {
		c.Fleet.StartAll(ctx)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	c.Fleet.StopAll()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status server shutdown", "error", err)
		}
	}
	st := c.Capture.Stats()
	logger.Info("capture totals", "captures", st.Captures, "failures", st.Failures)
	return nil
}

func (a *App) serve() *http.Server {
	addr := a.c.Config.Metrics.Listen
	if addr == "" {
		return nil
	}
	srv := fleet.NewServer(addr, a.c.Fleet, a.c.Metrics)
	go func() {
		a.c.Logger.Info("status server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.c.Logger.Error("status server failed", "addr", addr, "error", err)
		}
	}()
	return srv
}
