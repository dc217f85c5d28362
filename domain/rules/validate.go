package rules

import (
	"errors"
	"fmt"
)

// Validate checks a single action's parameters.
func (a Action) Validate() error {
	switch p := a.Params.(type) {
	case nil:
		return fmt.Errorf("%w: missing parameters", ErrInvalidAction)
	case Click:
		if p.Relative && (p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1) {
			return fmt.Errorf("%w: relative click outside 0..1 (%.3f,%.3f)", ErrInvalidAction, p.X, p.Y)
		}
		if !p.Relative && (p.X < 0 || p.Y < 0) {
			return fmt.Errorf("%w: negative click coordinates (%.0f,%.0f)", ErrInvalidAction, p.X, p.Y)
		}
	case Key:
		if p.Code <= 0 || p.Code > 0xFE {
			return fmt.Errorf("%w: key code %d out of range", ErrInvalidAction, p.Code)
		}
	case Text:
		if p.Delay < 0 {
			return fmt.Errorf("%w: negative text delay", ErrInvalidAction)
		}
	case Wait:
		if p.Duration < 0 {
			return fmt.Errorf("%w: negative wait", ErrInvalidAction)
		}
	}
	if a.Delay < 0 {
		return fmt.Errorf("%w: negative delay", ErrInvalidAction)
	}
	return nil
}

// Validate checks the rule and all of its actions.
func (r Rule) Validate() error {
	if r.Pattern == "" {
		return errors.New("rule has no template")
	}
	if r.Threshold < 0 || r.Threshold > 1 {
		return fmt.Errorf("rule %q: threshold %.3f outside 0..1", r.Pattern, r.Threshold)
	}
	if len(r.Actions) == 0 && !r.ClickOnMatch {
		return fmt.Errorf("rule %q: no actions", r.Pattern)
	}
	for i, a := range r.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("rule %q action %d: %w", r.Pattern, i, err)
		}
	}
	return nil
}

// Validate checks target identity. Rules are validated individually so one
// bad rule does not discard the whole target.
func (t Target) Validate() error {
	if t.Name == "" {
		return errors.New("target has no name")
	}
	if t.WindowTitle == "" {
		return fmt.Errorf("target %q: window_title is required", t.Name)
	}
	if t.Interval <= 0 {
		return fmt.Errorf("target %q: monitoring_interval must be positive", t.Name)
	}
	return nil
}

// Patterns returns the distinct pattern names referenced by the target.
func (t Target) Patterns() []string {
	seen := make(map[string]struct{}, len(t.Rules))
	var out []string
	for _, r := range t.Rules {
		if _, ok := seen[r.Pattern]; ok {
			continue
		}
		seen[r.Pattern] = struct{}{}
		out = append(out, r.Pattern)
	}
	return out
}
