// Package app wires the engine, the platform collaborators and the fleet into
// a running process.
package app

import (
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/soocke/pixel-watch-go/config"
	"github.com/soocke/pixel-watch-go/domain/capture"
	"github.com/soocke/pixel-watch-go/domain/dispatch"
	"github.com/soocke/pixel-watch-go/domain/events"
	"github.com/soocke/pixel-watch-go/domain/fleet"
	"github.com/soocke/pixel-watch-go/domain/input"
	"github.com/soocke/pixel-watch-go/domain/input/autogui"
	"github.com/soocke/pixel-watch-go/domain/monitor"
	"github.com/soocke/pixel-watch-go/domain/platform"
	"github.com/soocke/pixel-watch-go/domain/recognition"
	"github.com/soocke/pixel-watch-go/domain/rules"
)

// Container holds the shared services. One engine, capture provider,
// injector chain and dispatcher serve every monitor.
type Container struct {
	Config    *config.System
	ConfigDir string
	Logger    *slog.Logger

	Engine     *recognition.Engine
	Locator    platform.Locator
	Capture    *capture.Instrumented
	Input      *input.Chain
	Dispatcher *dispatch.Dispatcher
	Metrics    *fleet.Metrics
	Events     *events.Hooks
	Fleet      *fleet.Coordinator
	Programs   *config.Programs

	nc *nats.Conn
}

// BuildContainer constructs every component. The only side effect is the
// optional NATS connection.
func BuildContainer(cfg *config.System, configDir string, logger *slog.Logger) (*Container, error) {
	c := &Container{Config: cfg, ConfigDir: configDir, Logger: logger}

	c.Engine = recognition.NewEngine(logger.With("component", "recognition"), recognition.Options{
		Stride:  cfg.Recognition.Stride,
		Refine:  cfg.Recognition.Refine,
		Workers: cfg.Recognition.Workers,
	})
	c.Locator = newLocator()
	c.Capture = capture.NewInstrumented(logger.With("component", "capture"), capture.NewNativeProvider(c.Locator))

	strategies := input.NativeStrategies(cfg.Input.DriverDLL)
	strategies[input.StrategyRobotgo] = autogui.New()
	c.Input = input.Assemble(logger.With("component", "input"), input.ChainOptions{
		Budget:          rules.Seconds(cfg.Input.ClickBudget),
		EventsPerSecond: cfg.Input.EventsPerSecond,
		Burst:           cfg.Input.Burst,
	}, cfg.Input.Strategies, strategies)
	logger.Info("input strategies", "available", c.Input.Strategies())

	c.Dispatcher = dispatch.New(logger.With("component", "dispatch"), c.Input, c.Locator, dispatch.Options{
		ActivateWindow:    cfg.Dispatch.ActivateWindow,
		ActivateDelay:     rules.Seconds(cfg.Dispatch.ActivateDelay),
		ClickOnMatchDelay: rules.Seconds(cfg.Dispatch.ClickOnMatchDelay),
	})

	c.Metrics = fleet.NewMetrics()
	hooks := monitor.MultiHooks{c.Metrics}
	if cfg.Events.NATSURL != "" {
		nc, err := events.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			return nil, fmt.Errorf("events: %w", err)
		}
		c.nc = nc
		c.Events = events.NewHooks(logger.With("component", "events"), nc, cfg.Events.SubjectPrefix)
		hooks = append(hooks, c.Events)
		logger.Info("publishing events", "url", cfg.Events.NATSURL, "prefix", cfg.Events.SubjectPrefix)
	}

	monOpts := monitor.Options{PausePoll: cfg.PausePoll(), StopTimeout: cfg.StopTimeoutDuration()}
	c.Fleet = fleet.New(logger.With("component", "fleet"), func(t rules.Target) *monitor.Monitor {
		return monitor.New(logger, t, monitor.Deps{
			Locator:    c.Locator,
			Capture:    c.Capture,
			Recognizer: c.Engine,
			Dispatcher: c.Dispatcher,
			Hooks:      hooks,
		}, monOpts)
	}, fleet.Options{MaxMonitors: cfg.MaxMonitors})

	c.Programs = config.NewPrograms(logger.With("component", "config"), configDir, cfg.DefaultInterval())
	return c, nil
}

// Close releases external connections.
func (c *Container) Close() {
	if c.nc != nil {
		if err := c.nc.Drain(); err != nil {
			c.Logger.Warn("nats drain failed", "error", err)
		}
	}
}
