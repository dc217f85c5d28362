// Package config loads the system settings and the per-target rule sets.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/soocke/pixel-watch-go/domain/rules"
)

const (
	SystemFile  = "system_config.yaml"
	ProgramsDir = "program_configs"
	EnvPrefix   = "PIXELWATCH"
)

// System holds process-wide settings. Durations are persisted as float
// seconds.
type System struct {
	MonitoringIntervalDefault float64 `mapstructure:"monitoring_interval_default" yaml:"monitoring_interval_default"`
	StartupDelay              float64 `mapstructure:"startup_delay" yaml:"startup_delay"`
	MaxMonitors               int     `mapstructure:"max_monitors" yaml:"max_monitors"`
	PausePollInterval         float64 `mapstructure:"pause_poll_interval" yaml:"pause_poll_interval"`
	StopTimeout               float64 `mapstructure:"stop_timeout" yaml:"stop_timeout"`
	Debug                     bool    `mapstructure:"debug" yaml:"debug"`

	Log         LogConfig         `mapstructure:"log" yaml:"log"`
	Recognition RecognitionConfig `mapstructure:"recognition" yaml:"recognition"`
	Patterns    PatternsConfig    `mapstructure:"patterns" yaml:"patterns"`
	Input       InputConfig       `mapstructure:"input" yaml:"input"`
	Dispatch    DispatchConfig    `mapstructure:"dispatch" yaml:"dispatch"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Events      EventsConfig      `mapstructure:"events" yaml:"events"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type RecognitionConfig struct {
	Stride  int  `mapstructure:"stride" yaml:"stride"`
	Refine  bool `mapstructure:"refine" yaml:"refine"`
	Workers int  `mapstructure:"workers" yaml:"workers"`
}

type PatternsConfig struct {
	Dir   string `mapstructure:"dir" yaml:"dir"`
	Watch bool   `mapstructure:"watch" yaml:"watch"`
}

type InputConfig struct {
	DriverDLL       string   `mapstructure:"driver_dll" yaml:"driver_dll"`
	Strategies      []string `mapstructure:"strategies" yaml:"strategies"`
	ClickBudget     float64  `mapstructure:"click_budget" yaml:"click_budget"`
	EventsPerSecond float64  `mapstructure:"events_per_second" yaml:"events_per_second"`
	Burst           int      `mapstructure:"burst" yaml:"burst"`
}

type DispatchConfig struct {
	ActivateWindow    bool    `mapstructure:"activate_window" yaml:"activate_window"`
	ActivateDelay     float64 `mapstructure:"activate_delay" yaml:"activate_delay"`
	ClickOnMatchDelay float64 `mapstructure:"click_on_match_delay" yaml:"click_on_match_delay"`
}

type MetricsConfig struct {
	// Listen is the address of the status and metrics server. Empty disables it.
	Listen string `mapstructure:"listen" yaml:"listen"`
}

type EventsConfig struct {
	// NATSURL enables event publishing when set.
	NATSURL       string `mapstructure:"nats_url" yaml:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix" yaml:"subject_prefix"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("monitoring_interval_default", 1.0)
	v.SetDefault("startup_delay", 3.0)
	v.SetDefault("max_monitors", 10)
	v.SetDefault("pause_poll_interval", 0.5)
	v.SetDefault("stop_timeout", 1.0)
	v.SetDefault("debug", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 14)
	v.SetDefault("log.compress", true)

	v.SetDefault("recognition.stride", 1)
	v.SetDefault("recognition.refine", true)
	v.SetDefault("recognition.workers", 0)

	v.SetDefault("patterns.dir", "templates")
	v.SetDefault("patterns.watch", true)

	v.SetDefault("input.driver_dll", "")
	v.SetDefault("input.strategies", []string{"driver", "hardware", "message", "robotgo"})
	v.SetDefault("input.click_budget", 1.0)
	v.SetDefault("input.events_per_second", 0.0)
	v.SetDefault("input.burst", 1)

	v.SetDefault("dispatch.activate_window", true)
	v.SetDefault("dispatch.activate_delay", 0.3)
	v.SetDefault("dispatch.click_on_match_delay", 0.2)

	v.SetDefault("metrics.listen", "127.0.0.1:9464")
	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject_prefix", "pixelwatch")
}

// DefaultSystem returns the built-in settings.
func DefaultSystem() *System {
	v := viper.New()
	SetDefaults(v)
	var s System
	if err := v.Unmarshal(&s); err != nil {
		panic(fmt.Sprintf("unmarshal default config: %v", err))
	}
	return &s
}

// Load reads the system settings at path, layered over the defaults and
// overridden by PIXELWATCH_* environment variables. A missing file yields
// the defaults.
func Load(path string) (*System, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	var s System
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &s, nil
}

// Validate rejects values the runtime cannot work with.
func (s *System) Validate() error {
	if s.MonitoringIntervalDefault <= 0 {
		return errors.New("monitoring_interval_default must be positive")
	}
	if s.StartupDelay < 0 {
		return errors.New("startup_delay must not be negative")
	}
	if s.MaxMonitors < 0 {
		return errors.New("max_monitors must not be negative")
	}
	if s.Recognition.Stride < 1 {
		return errors.New("recognition.stride must be at least 1")
	}
	if s.Input.ClickBudget <= 0 {
		return errors.New("input.click_budget must be positive")
	}
	if s.Input.EventsPerSecond < 0 {
		return errors.New("input.events_per_second must not be negative")
	}
	switch strings.ToLower(s.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", s.Log.Level)
	}
	return nil
}

// Save writes s to path as YAML.
func (s *System) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func (s *System) DefaultInterval() time.Duration { return rules.Seconds(s.MonitoringIntervalDefault) }

func (s *System) StartupDelayDuration() time.Duration { return rules.Seconds(s.StartupDelay) }

func (s *System) PausePoll() time.Duration { return rules.Seconds(s.PausePollInterval) }

func (s *System) StopTimeoutDuration() time.Duration { return rules.Seconds(s.StopTimeout) }

// PatternDir resolves the pattern directory against the config directory.
func (s *System) PatternDir(configDir string) string {
	if filepath.IsAbs(s.Patterns.Dir) {
		return s.Patterns.Dir
	}
	return filepath.Join(configDir, s.Patterns.Dir)
}
