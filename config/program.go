package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soocke/pixel-watch-go/domain/rules"
)

// ErrInvalidRuleSet marks a program file that cannot produce a target.
var ErrInvalidRuleSet = errors.New("invalid rule set")

const (
	defaultThreshold = 0.8
	defaultTextDelay = 0.01
	defaultWait      = 1.0
)

// Persisted shapes. Everything is decoded into these records first and then
// validated into the typed rule model.

type programFile struct {
	Target    *rawTarget `yaml:"target,omitempty"`
	rawTarget `yaml:",inline"`
}

type rawTarget struct {
	Name               string    `yaml:"name"`
	WindowTitle        string    `yaml:"window_title"`
	WindowClass        *string   `yaml:"window_class"`
	MonitoringInterval *float64  `yaml:"monitoring_interval,omitempty"`
	Rules              []rawRule `yaml:"rules"`
}

type rawRule struct {
	Template     string      `yaml:"template"`
	Threshold    *float64    `yaml:"threshold,omitempty"`
	MatchMethod  string      `yaml:"match_method,omitempty"`
	ClickOnMatch bool        `yaml:"click_on_match,omitempty"`
	Actions      []rawAction `yaml:"actions"`
}

type rawAction struct {
	Type     string    `yaml:"type"`
	Params   yaml.Node `yaml:"params,omitempty"`
	Delay    float64   `yaml:"delay,omitempty"`
	Required bool      `yaml:"required,omitempty"`
}

type clickParams struct {
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Button   string  `yaml:"button,omitempty"`
	Relative bool    `yaml:"relative,omitempty"`
}

type keyParams struct {
	Key       int    `yaml:"key"`
	PressType string `yaml:"press_type,omitempty"`
}

type textParams struct {
	Text  string   `yaml:"text"`
	Delay *float64 `yaml:"delay,omitempty"`
}

type waitParams struct {
	Seconds *float64 `yaml:"seconds,omitempty"`
}

// Decode parses one program file. Rules that fail validation are dropped and
// reported in skipped; the returned error is non-nil only when the target
// itself is unusable. fallbackName is used when the file has no name.
func Decode(data []byte, fallbackName string, defaultInterval time.Duration) (t rules.Target, skipped []error, err error) {
	var pf programFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return rules.Target{}, nil, fmt.Errorf("%w: %w", ErrInvalidRuleSet, err)
	}
	raw := pf.rawTarget
	if pf.Target != nil {
		raw = *pf.Target
	}

	t = rules.Target{
		Name:        raw.Name,
		WindowTitle: raw.WindowTitle,
		Interval:    defaultInterval,
	}
	if t.Name == "" {
		t.Name = fallbackName
	}
	if raw.WindowClass != nil {
		t.WindowClass = *raw.WindowClass
	}
	if raw.MonitoringInterval != nil {
		t.Interval = rules.Seconds(*raw.MonitoringInterval)
	}
	if err := t.Validate(); err != nil {
		return rules.Target{}, nil, fmt.Errorf("%w: %w", ErrInvalidRuleSet, err)
	}

	for i, rr := range raw.Rules {
		r, err := decodeRule(rr)
		if err == nil {
			err = r.Validate()
		}
		if err != nil {
			skipped = append(skipped, fmt.Errorf("rule %d: %w", i, err))
			continue
		}
		t.Rules = append(t.Rules, r)
	}
	return t, skipped, nil
}

func decodeRule(rr rawRule) (rules.Rule, error) {
	strategy, err := rules.ParseStrategy(rr.MatchMethod)
	if err != nil {
		return rules.Rule{}, err
	}
	r := rules.Rule{
		Pattern:      rr.Template,
		Strategy:     strategy,
		Threshold:    defaultThreshold,
		ClickOnMatch: rr.ClickOnMatch,
	}
	if rr.Threshold != nil {
		r.Threshold = *rr.Threshold
	}
	for i, ra := range rr.Actions {
		a, err := decodeAction(ra)
		if err != nil {
			return rules.Rule{}, fmt.Errorf("action %d: %w", i, err)
		}
		r.Actions = append(r.Actions, a)
	}
	return r, nil
}

func decodeAction(ra rawAction) (rules.Action, error) {
	a := rules.Action{Delay: rules.Seconds(ra.Delay), Required: ra.Required}
	if ra.Delay < 0 {
		return a, fmt.Errorf("%w: negative delay", rules.ErrInvalidAction)
	}
	switch strings.ToLower(ra.Type) {
	case "click":
		var p clickParams
		if err := decodeParams(&ra.Params, &p); err != nil {
			return a, err
		}
		b, err := rules.ParseButton(p.Button)
		if err != nil {
			return a, fmt.Errorf("%w: %w", rules.ErrInvalidAction, err)
		}
		a.Params = rules.Click{X: p.X, Y: p.Y, Button: b, Relative: p.Relative}
	case "key":
		var p keyParams
		if err := decodeParams(&ra.Params, &p); err != nil {
			return a, err
		}
		press, err := rules.ParsePressType(p.PressType)
		if err != nil {
			return a, fmt.Errorf("%w: %w", rules.ErrInvalidAction, err)
		}
		a.Params = rules.Key{Code: p.Key, Press: press}
	case "text":
		var p textParams
		if err := decodeParams(&ra.Params, &p); err != nil {
			return a, err
		}
		delay := defaultTextDelay
		if p.Delay != nil {
			delay = *p.Delay
		}
		if delay < 0 {
			return a, fmt.Errorf("%w: negative text delay", rules.ErrInvalidAction)
		}
		a.Params = rules.Text{Text: p.Text, Delay: rules.Seconds(delay)}
	case "wait":
		var p waitParams
		if err := decodeParams(&ra.Params, &p); err != nil {
			return a, err
		}
		secs := defaultWait
		if p.Seconds != nil {
			secs = *p.Seconds
		}
		if secs < 0 {
			return a, fmt.Errorf("%w: negative wait", rules.ErrInvalidAction)
		}
		a.Params = rules.Wait{Duration: rules.Seconds(secs)}
	default:
		return a, fmt.Errorf("%w: unknown type %q", rules.ErrInvalidAction, ra.Type)
	}
	return a, nil
}

func decodeParams(n *yaml.Node, v any) error {
	if n.Kind == 0 {
		return nil
	}
	if err := n.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", rules.ErrInvalidAction, err)
	}
	return nil
}

// Encode renders t in the persisted shape.
func Encode(t rules.Target) ([]byte, error) {
	interval := t.Interval.Seconds()
	raw := rawTarget{
		Name:               t.Name,
		WindowTitle:        t.WindowTitle,
		MonitoringInterval: &interval,
	}
	if t.WindowClass != "" {
		raw.WindowClass = &t.WindowClass
	}
	for _, r := range t.Rules {
		threshold := r.Threshold
		rr := rawRule{
			Template:     r.Pattern,
			Threshold:    &threshold,
			ClickOnMatch: r.ClickOnMatch,
		}
		if r.Strategy != rules.StrategyTemplate {
			rr.MatchMethod = r.Strategy.String()
		}
		for _, a := range r.Actions {
			ra, err := encodeAction(a)
			if err != nil {
				return nil, fmt.Errorf("rule %q: %w", r.Pattern, err)
			}
			rr.Actions = append(rr.Actions, ra)
		}
		raw.Rules = append(raw.Rules, rr)
	}
	return yaml.Marshal(raw)
}

func encodeAction(a rules.Action) (rawAction, error) {
	ra := rawAction{Delay: a.Delay.Seconds(), Required: a.Required}
	var params any
	switch p := a.Params.(type) {
	case rules.Click:
		ra.Type = "click"
		params = clickParams{X: p.X, Y: p.Y, Button: p.Button.String(), Relative: p.Relative}
	case rules.Key:
		ra.Type = "key"
		params = keyParams{Key: p.Code, PressType: p.Press.String()}
	case rules.Text:
		ra.Type = "text"
		d := p.Delay.Seconds()
		params = textParams{Text: p.Text, Delay: &d}
	case rules.Wait:
		ra.Type = "wait"
		s := p.Duration.Seconds()
		params = waitParams{Seconds: &s}
	default:
		return ra, rules.ErrInvalidAction
	}
	if err := ra.Params.Encode(params); err != nil {
		return ra, err
	}
	return ra, nil
}

// DefaultProgram returns the starter rule set written by add-target.
func DefaultProgram(name, windowTitle string) rules.Target {
	if windowTitle == "" {
		windowTitle = name
	}
	return rules.Target{
		Name:        name,
		WindowTitle: windowTitle,
		Interval:    time.Second,
		Rules: []rules.Rule{{
			Pattern:   "sample_template",
			Threshold: defaultThreshold,
			Actions: []rules.Action{
				{Params: rules.Click{X: 100, Y: 100}, Delay: 500 * time.Millisecond},
				{Params: rules.Wait{Duration: time.Second}},
			},
		}},
	}
}

// Programs reads and writes the rule sets under <config dir>/program_configs.
type Programs struct {
	logger          *slog.Logger
	dir             string
	defaultInterval time.Duration
}

func NewPrograms(logger *slog.Logger, configDir string, defaultInterval time.Duration) *Programs {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if defaultInterval <= 0 {
		defaultInterval = time.Second
	}
	return &Programs{
		logger:          logger,
		dir:             filepath.Join(configDir, ProgramsDir),
		defaultInterval: defaultInterval,
	}
}

func (p *Programs) Dir() string { return p.dir }

func (p *Programs) path(name string) string { return filepath.Join(p.dir, name+".yaml") }

// List returns the program names in sorted order.
func (p *Programs) List() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); strings.EqualFold(ext, ".yaml") || strings.EqualFold(ext, ".yml") {
			names = append(names, strings.TrimSuffix(e.Name(), ext))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Load reads one program. Invalid rules are logged and dropped.
func (p *Programs) Load(name string) (rules.Target, error) {
	path := p.path(name)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		data, err = os.ReadFile(filepath.Join(p.dir, name+".yml"))
	}
	if err != nil {
		return rules.Target{}, err
	}
	t, skipped, err := Decode(data, name, p.defaultInterval)
	if err != nil {
		return rules.Target{}, fmt.Errorf("%s: %w", name, err)
	}
	for _, e := range skipped {
		p.logger.Warn("rule skipped", "program", name, "error", e)
	}
	return t, nil
}

// Save writes t as <name>.yaml.
func (p *Programs) Save(t rules.Target) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRuleSet, err)
	}
	b, err := Encode(t)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(p.path(t.Name), b, 0o644)
}
