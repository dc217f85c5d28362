package fleet

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soocke/pixel-watch-go/domain/dispatch"
	"github.com/soocke/pixel-watch-go/domain/monitor"
	"github.com/soocke/pixel-watch-go/domain/recognition"
	"github.com/soocke/pixel-watch-go/domain/rules"
)

// Metrics records monitor activity as Prometheus series. It implements
// monitor.Hooks and is shared by every monitor.
type Metrics struct {
	monitor.NopHooks

	registry        *prometheus.Registry
	cycles          *prometheus.CounterVec
	cycleSeconds    *prometheus.HistogramVec
	captureFailures *prometheus.CounterVec
	matches         *prometheus.CounterVec
	confidence      *prometheus.HistogramVec
	actions         *prometheus.CounterVec
	states          *prometheus.GaugeVec
}

var _ monitor.Hooks = (*Metrics)(nil)

// NewMetrics registers the series on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixelwatch", Name: "cycles_total",
			Help: "Completed capture cycles.",
		}, []string{"target"}),
		cycleSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pixelwatch", Name: "cycle_seconds",
			Help:    "Time spent recognising and dispatching in one cycle.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"target"}),
		captureFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixelwatch", Name: "capture_failures_total",
			Help: "Failed window captures.",
		}, []string{"target"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixelwatch", Name: "matches_total",
			Help: "Rule matches.",
		}, []string{"target", "pattern"}),
		confidence: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pixelwatch", Name: "match_confidence",
			Help:    "Confidence of reported matches.",
			Buckets: []float64{0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 0.99, 1},
		}, []string{"target"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixelwatch", Name: "actions_total",
			Help: "Dispatched actions by outcome.",
		}, []string{"target", "result"}),
		states: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pixelwatch", Name: "monitor_state",
			Help: "1 for the current state of each monitor.",
		}, []string{"target", "state"}),
	}
	m.registry.MustRegister(
		m.cycles, m.cycleSeconds, m.captureFailures, m.matches,
		m.confidence, m.actions, m.states,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) StateChanged(target string, prev, next monitor.State) {
	m.states.WithLabelValues(target, prev.String()).Set(0)
	m.states.WithLabelValues(target, next.String()).Set(1)
}

func (m *Metrics) CaptureFailed(target string, _ error) {
	m.captureFailures.WithLabelValues(target).Inc()
}

func (m *Metrics) CycleCompleted(target string, took time.Duration) {
	m.cycles.WithLabelValues(target).Inc()
	m.cycleSeconds.WithLabelValues(target).Observe(took.Seconds())
}

func (m *Metrics) Matched(target string, r rules.Rule, match recognition.Match) {
	m.matches.WithLabelValues(target, r.Pattern).Inc()
	m.confidence.WithLabelValues(target).Observe(match.Confidence)
}

func (m *Metrics) Dispatched(target string, _ rules.Rule, res dispatch.Result) {
	m.actions.WithLabelValues(target, "ok").Add(float64(res.Executed))
	m.actions.WithLabelValues(target, "failed").Add(float64(res.Failed))
	if res.Aborted {
		m.actions.WithLabelValues(target, "aborted").Inc()
	}
}
