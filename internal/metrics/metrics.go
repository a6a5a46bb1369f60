// Package metrics exposes the server's Prometheus counters/gauges and
// the /metrics and /ready HTTP endpoints: promauto collectors plus a
// small local-mirror snapshot for cheap periodic logging.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kaillera-relay/server/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frames_emitted_total",
		Help: "Total combined frames emitted by the frame synchronizer across all rooms.",
	})
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_hit_total",
		Help: "Total outbound payloads resolved to a Game Cache reference instead of literal data.",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_miss_total",
		Help: "Total outbound payloads sent as literal Game Data (no cache hit).",
	})
	CacheResolveMiss = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_resolve_miss_total",
		Help: "Total inbound Game Cache references to a never-written slot (fatal to the sender).",
	})
	PlayersDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "players_dropped_total",
		Help: "Total players dropped, by reason.",
	}, []string{"reason"})
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rooms_active",
		Help: "Current number of in-memory rooms.",
	})
	PlayersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "players_active",
		Help: "Current number of players across all rooms.",
	})
	SendWindowRedundantBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "send_window_redundant_bytes_total",
		Help: "Total bytes re-sent as send-window history padding.",
	})
	MalformedDatagrams = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udp_malformed_datagrams_total",
		Help: "Total UDP datagrams dropped for violating wire framing rules.",
	})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrUDPRead           = "udp_read"
	ErrUDPWrite          = "udp_write"
	ErrProtocolViolation = "protocol_violation"
	ErrFloodControl      = "flood_control"
	ErrIdleTimeout       = "idle_timeout"
)

// StartHTTP serves Prometheus metrics at /metrics and a readiness
// probe at /ready on addr.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for cheap periodic logging without scraping
// the Prometheus registry in-process.
var (
	localFramesEmitted uint64
	localCacheHits     uint64
	localCacheMisses   uint64
	localRoomsActive   uint64
	localPlayersActive uint64
	localMalformed     uint64
	localErrors        uint64
)

// Snapshot is a cheap copy of the local counters.
type Snapshot struct {
	FramesEmitted uint64
	CacheHits     uint64
	CacheMisses   uint64
	RoomsActive   uint64
	PlayersActive uint64
	Malformed     uint64
	Errors        uint64
}

func Snap() Snapshot {
	return Snapshot{
		FramesEmitted: atomic.LoadUint64(&localFramesEmitted),
		CacheHits:     atomic.LoadUint64(&localCacheHits),
		CacheMisses:   atomic.LoadUint64(&localCacheMisses),
		RoomsActive:   atomic.LoadUint64(&localRoomsActive),
		PlayersActive: atomic.LoadUint64(&localPlayersActive),
		Malformed:     atomic.LoadUint64(&localMalformed),
		Errors:        atomic.LoadUint64(&localErrors),
	}
}

func IncFramesEmitted() {
	FramesEmitted.Inc()
	atomic.AddUint64(&localFramesEmitted, 1)
}

func IncCacheHit() {
	CacheHits.Inc()
	atomic.AddUint64(&localCacheHits, 1)
}

func IncCacheMiss() {
	CacheMisses.Inc()
	atomic.AddUint64(&localCacheMisses, 1)
}

func IncCacheResolveMiss() { CacheResolveMiss.Inc() }

func IncPlayerDropped(reason string) { PlayersDropped.WithLabelValues(reason).Inc() }

func SetRoomsActive(n int) {
	RoomsActive.Set(float64(n))
	atomic.StoreUint64(&localRoomsActive, uint64(n))
}

func SetPlayersActive(n int) {
	PlayersActive.Set(float64(n))
	atomic.StoreUint64(&localPlayersActive, uint64(n))
}

func AddSendWindowRedundantBytes(n int) { SendWindowRedundantBytes.Add(float64(n)) }

func IncMalformedDatagram() {
	MalformedDatagrams.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge and pre-registers common
// error label series so the first real error doesn't pay registration
// latency.
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{ErrUDPRead, ErrUDPWrite, ErrProtocolViolation, ErrFloodControl, ErrIdleTimeout} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}
