// Package framesync implements the room-scoped frame synchronizer
// (spec.md §4.5): it advances a monotonically increasing frame
// counter only when every active player has at least one queued
// frame, then emits a byte-exact interleaved combined frame.
package framesync

import "github.com/kaillera-relay/server/internal/queue"

// Synchronizer owns a room's frame counter. It holds no player state
// itself; TryAdvance is handed the room's currently active, join-order
// queues on every call, so a player drop (which shrinks the active
// set) is picked up automatically on the next ingress-triggered call.
type Synchronizer struct {
	frame uint64
}

// Frame returns the number of combined frames emitted so far.
func (s *Synchronizer) Frame() uint64 { return s.frame }

// Reset zeroes the frame counter (called on Playing entry).
func (s *Synchronizer) Reset() { s.frame = 0 }

// TryAdvance emits as many combined frames as currently possible: it
// loops popping one frame from every queue in order and concatenating
// them, for as long as every queue has at least one frame queued
// (spec.md's "may emit many frames in a single input burst"). Player
// index order is the caller-supplied slice order, which must be the
// stable join order (ties broken by ascending UID at join time).
func (s *Synchronizer) TryAdvance(queues []*queue.Queue) [][]byte {
	if len(queues) == 0 {
		return nil
	}
	var out [][]byte
	for {
		for _, q := range queues {
			if q.Len() == 0 {
				return out
			}
		}
		combined := make([]byte, 0, queue.FrameSize*len(queues))
		for _, q := range queues {
			fr, _ := q.PopFront()
			combined = append(combined, fr[0], fr[1])
		}
		s.frame++
		out = append(out, combined)
	}
}
