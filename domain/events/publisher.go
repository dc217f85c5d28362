// Package events publishes match and dispatch events to NATS.
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/soocke/pixel-watch-go/domain/dispatch"
	"github.com/soocke/pixel-watch-go/domain/monitor"
	"github.com/soocke/pixel-watch-go/domain/recognition"
	"github.com/soocke/pixel-watch-go/domain/rules"
)

const (
	SpecVersion   = "1.0"
	DefaultPrefix = "pixelwatch"

	TypeMatch    = "match"
	TypeDispatch = "dispatch"
	TypeState    = "state"
)

// Publisher is the subset of *nats.Conn used here.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Event is a CloudEvents-shaped envelope.
type Event struct {
	SpecVersion string         `json:"specversion"`
	ID          string         `json:"id"`
	Source      string         `json:"source"`
	Type        string         `json:"type"`
	Time        string         `json:"time"`
	Subject     string         `json:"subject,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Hooks turns monitor activity into events. Publishing is fire and forget:
// failures are logged and never reach the monitor.
type Hooks struct {
	monitor.NopHooks

	logger *slog.Logger
	pub    Publisher
	prefix string
	now    func() time.Time
}

var _ monitor.Hooks = (*Hooks)(nil)

func NewHooks(logger *slog.Logger, pub Publisher, prefix string) *Hooks {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Hooks{logger: logger, pub: pub, prefix: Token(prefix), now: time.Now}
}

// Connect dials url and names the connection after the prefix.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}

// Subject returns <prefix>.events.<typ>.<target>.
func (h *Hooks) Subject(typ, target string) string {
	return h.prefix + ".events." + typ + "." + Token(target)
}

func (h *Hooks) Matched(target string, r rules.Rule, m recognition.Match) {
	h.publish(TypeMatch, target, map[string]any{
		"pattern":    r.Pattern,
		"strategy":   r.Strategy.String(),
		"x":          m.X,
		"y":          m.Y,
		"w":          m.W,
		"h":          m.H,
		"confidence": m.Confidence,
	})
}

func (h *Hooks) Dispatched(target string, r rules.Rule, res dispatch.Result) {
	data := map[string]any{
		"pattern":  r.Pattern,
		"executed": res.Executed,
		"failed":   res.Failed,
		"aborted":  res.Aborted,
	}
	if res.Err != nil {
		data["error"] = res.Err.Error()
	}
	h.publish(TypeDispatch, target, data)
}

func (h *Hooks) StateChanged(target string, prev, next monitor.State) {
	h.publish(TypeState, target, map[string]any{"from": prev.String(), "to": next.String()})
}

func (h *Hooks) publish(typ, target string, data map[string]any) {
	subject := h.Subject(typ, target)
	ev := Event{
		SpecVersion: SpecVersion,
		ID:          uuid.NewString(),
		Source:      h.prefix + "/" + target,
		Type:        h.prefix + "." + typ,
		Time:        h.now().UTC().Format(time.RFC3339Nano),
		Subject:     target,
		Data:        data,
	}
	b, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("event encode failed", "subject", subject, "error", err)
		return
	}
	if err := h.pub.Publish(subject, b); err != nil {
		h.logger.Warn("event publish failed", "subject", subject, "error", err)
	}
}

// Token maps s onto a single subject token: lowercase alphanumerics and
// underscores.
func Token(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
