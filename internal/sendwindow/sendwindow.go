// Package sendwindow implements the per-recipient outbound message
// ring (spec.md §4.2): the last W emitted messages, re-sent
// newest-first in every datagram so a single UDP send carries
// redundant history and tolerates loss without retransmission.
package sendwindow

import (
	"github.com/kaillera-relay/server/internal/metrics"
	"github.com/kaillera-relay/server/internal/wire"
)

// DefaultDepth is the maximum message count a Kaillera datagram header
// can practically carry (spec.md §4.2, "W ≤ 10").
const DefaultDepth = 10

// Window holds the last Depth emitted messages for one recipient, plus
// the recipient's monotone outbound sequence counter. Not safe for
// concurrent use; owned by the single room goroutine that drives its
// recipient (spec.md §5).
type Window struct {
	depth   int
	seq     uint16
	entries []wire.Message // index 0 = most recently emitted
}

// New returns a Window with room for depth history entries.
func New(depth int) *Window {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Window{depth: depth}
}

// Emit assigns the next sequence number to a new message of the given
// type and payload, pushes it to the front of the ring, and returns
// the encoded datagram: the new message first, followed by up to
// depth-1 prior messages in descending seq order (P7).
func (w *Window) Emit(msgType byte, payload []byte) []byte {
	w.seq++
	entry := wire.Message{Seq: w.seq, Type: msgType, Payload: payload}
	w.entries = append([]wire.Message{entry}, w.entries...)
	if len(w.entries) > w.depth {
		w.entries = w.entries[:w.depth]
	}
	redundant := 0
	for _, e := range w.entries[1:] {
		redundant += len(e.Payload)
	}
	metrics.AddSendWindowRedundantBytes(redundant)
	return wire.EncodeDatagram(w.entries)
}

// Entries returns a copy of the current ring contents, newest first;
// exposed for tests and diagnostics.
func (w *Window) Entries() []wire.Message {
	out := make([]wire.Message, len(w.entries))
	copy(out, w.entries)
	return out
}
