package fleet

import (
	"encoding/json"
	"net/http"
	"time"
)

// NewMux exposes the fleet over HTTP: GET /status returns the per-target
// snapshot, POST /pause and /resume apply to every monitor, and /metrics
// serves Prometheus series when metrics is non-nil.
func NewMux(c *Coordinator, metrics *Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, c.Status())
	})
	mux.HandleFunc("POST /pause", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"paused": c.PauseAll()})
	})
	mux.HandleFunc("POST /resume", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"resumed": c.ResumeAll()})
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"monitors": c.Len(), "time": time.Now().UTC()})
	})
	if metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}
	return mux
}

// NewServer wraps NewMux in a server listening on addr.
func NewServer(addr string, c *Coordinator, metrics *Metrics) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewMux(c, metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
