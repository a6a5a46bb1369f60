package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kaillera-relay/server/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"frames_emitted", snap.FramesEmitted,
					"cache_hits", snap.CacheHits,
					"cache_misses", snap.CacheMisses,
					"rooms_active", snap.RoomsActive,
					"players_active", snap.PlayersActive,
					"malformed_datagrams", snap.Malformed,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
