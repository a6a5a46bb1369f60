// Package dispatch implements the per-recipient dispatcher (spec.md
// §4.6): it batches combined frames produced by the frame synchronizer
// up to the recipient's own delay, compresses the batch through the
// recipient's outbound cache, and hands the resulting message to the
// recipient's send window.
package dispatch

import (
	"github.com/kaillera-relay/server/internal/cache"
	"github.com/kaillera-relay/server/internal/metrics"
	"github.com/kaillera-relay/server/internal/sendwindow"
	"github.com/kaillera-relay/server/internal/wire"
)

// Recipient buffers combined frames for one player and drains them in
// delay-sized batches. Not safe for concurrent use; owned by the
// single room goroutine (spec.md §5).
type Recipient struct {
	Delay    int
	staging  [][]byte
	outCache *cache.Cache
	window   *sendwindow.Window
}

// NewRecipient builds a dispatcher for a player with the given delay,
// backed by its own outbound cache and send window.
func NewRecipient(delay int, outCache *cache.Cache, window *sendwindow.Window) *Recipient {
	return &Recipient{Delay: delay, outCache: outCache, window: window}
}

// Accept buffers one combined frame. Once Delay frames have
// accumulated it drains exactly Delay of them, concatenates them into
// a single payload, compresses it through the outbound cache, and
// returns the encoded datagram ready for the UDP socket. It returns
// nil while still accumulating.
func (r *Recipient) Accept(combined []byte) []byte {
	r.staging = append(r.staging, combined)
	if len(r.staging) < r.Delay {
		return nil
	}
	batch := r.staging[:r.Delay]
	r.staging = append([][]byte(nil), r.staging[r.Delay:]...)

	payload := make([]byte, 0, len(batch)*len(combined))
	for _, fr := range batch {
		payload = append(payload, fr...)
	}

	if pos, hit := r.outCache.Emit(payload); hit {
		metrics.IncCacheHit()
		return r.window.Emit(wire.TypeGameCache, wire.BuildGameCache(byte(pos)))
	}
	metrics.IncCacheMiss()
	r.outCache.Record(payload)
	return r.window.Emit(wire.TypeGameData, wire.BuildGameData(payload))
}
