package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Global structured logger. Initialized with a reasonable text handler.
var logger atomic.Pointer[slog.Logger]

func init() {
	l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Store(l)
}

// L returns the current global logger.
func L() *slog.Logger { return logger.Load() }

// Set replaces the global logger.
func Set(l *slog.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// New creates a logger with the given level, format ("text" or
// "json"), and optional writer (defaults to stderr). The handler is
// wrapped in a floodSuppressingHandler: a room under a misbehaving
// sender (spec.md §7's MalformedFrame/ProtocolViolation/FloodControl
// traffic) can otherwise log one line per datagram and bury everything
// else the server is trying to tell an operator.
func New(format string, level slog.Leveler, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(newFloodSuppressingHandler(h, floodSuppressWindow))
}

// floodSuppressWindow is how long a repeated (level, message) pair is
// collapsed into a single line before being allowed through again.
const floodSuppressWindow = 2 * time.Second

// floodSuppressingHandler wraps a slog.Handler and collapses runs of
// records sharing the same level and message within floodSuppressWindow
// into one line, tagged with how many were dropped. It never
// suppresses across distinct messages, so a flood of repeated
// "malformed_datagram" or "player_dropped" lines from one bad sender
// can't drown out unrelated log output.
type floodSuppressingHandler struct {
	next   slog.Handler
	window time.Duration
	state  *suppressState
}

// suppressState is shared by a handler and every derived handler
// produced by WithAttrs/WithGroup, so logger.With(...) call sites
// still suppress against the same run-tracking map.
type suppressState struct {
	mu   sync.Mutex
	runs map[string]*suppressRun
}

type suppressRun struct {
	record    slog.Record
	count     int
	firstSeen time.Time
}

func newFloodSuppressingHandler(next slog.Handler, window time.Duration) *floodSuppressingHandler {
	return &floodSuppressingHandler{
		next:   next,
		window: window,
		state:  &suppressState{runs: make(map[string]*suppressRun)},
	}
}

func (h *floodSuppressingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *floodSuppressingHandler) Handle(ctx context.Context, r slog.Record) error {
	key := r.Level.String() + "|" + r.Message

	h.state.mu.Lock()
	run, inRun := h.state.runs[key]
	var flush *suppressRun
	if inRun && r.Time.Sub(run.firstSeen) < h.window {
		run.count++
		h.state.mu.Unlock()
		return nil
	}
	if inRun && run.count > 0 {
		flush = run
	}
	h.state.runs[key] = &suppressRun{record: r.Clone(), firstSeen: r.Time}
	h.state.mu.Unlock()

	if flush != nil {
		summary := flush.record.Clone()
		summary.AddAttrs(slog.Int("suppressed", flush.count))
		if err := h.next.Handle(ctx, summary); err != nil {
			return err
		}
	}
	return h.next.Handle(ctx, r)
}

func (h *floodSuppressingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &floodSuppressingHandler{next: h.next.WithAttrs(attrs), window: h.window, state: h.state}
}

func (h *floodSuppressingHandler) WithGroup(name string) slog.Handler {
	return &floodSuppressingHandler{next: h.next.WithGroup(name), window: h.window, state: h.state}
}
