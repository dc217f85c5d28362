// Package debug logs runtime statistics while debug mode is on. It exists to
// tell goroutine or native-memory growth in long monitoring sessions apart
// from ordinary heap churn.
package debug

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/metrics"
	"time"
)

const DefaultInterval = 5 * time.Second

// Start logs one runtime sample per interval until ctx is cancelled.
func Start(ctx context.Context, logger *slog.Logger, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	go run(ctx, logger, interval)
}

func run(ctx context.Context, logger *slog.Logger, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	samples := []metrics.Sample{{Name: "/sched/goroutines:goroutines"}}
	rssErrLogged := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		metrics.Read(samples)
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		attrs := []any{
			slog.Uint64("goroutines", samples[0].Value.Uint64()),
			slog.Uint64("heap_alloc", ms.HeapAlloc),
			slog.Uint64("heap_inuse", ms.HeapInuse),
			slog.Uint64("heap_sys", ms.HeapSys),
			slog.Uint64("stack_inuse", ms.StackInuse),
			slog.Uint64("next_gc", ms.NextGC),
			slog.Uint64("num_gc", uint64(ms.NumGC)),
		}
		rss, err := residentSet()
		switch {
		case err == nil:
			attrs = append(attrs, slog.Uint64("rss", rss))
		case !rssErrLogged:
			logger.Warn("debug: resident set unavailable", "error", err)
			rssErrLogged = true
		}
		logger.Info("runtime stats", attrs...)
	}
}
