// Package queue implements the per-player ordered input queue
// (spec.md §3, §4.4): fixed-size 2-byte frames, preemptively
// zero-padded at game start so the frame synchronizer's wait-for-all
// invariant is satisfiable from frame 0.
package queue

import (
	"errors"
	"fmt"
)

// FrameSize is the width of one emulator input word.
const FrameSize = 2

// ErrOddPayload is returned when an enqueued payload isn't a whole
// number of frames.
var ErrOddPayload = errors.New("queue: payload is not a multiple of frame size")

// Queue is a FIFO of fixed-size frames for one player.
type Queue struct {
	frames [][FrameSize]byte
}

// New returns a queue preloaded with padLen zero frames (I1: at game
// start, len(queue) = d_player - d_min).
func New(padLen int) *Queue {
	q := &Queue{frames: make([][FrameSize]byte, 0, padLen+8)}
	for i := 0; i < padLen; i++ {
		q.frames = append(q.frames, [FrameSize]byte{})
	}
	return q
}

// Len returns the number of frames currently queued.
func (q *Queue) Len() int { return len(q.frames) }

// EnqueueBytes splits data into consecutive 2-byte frames, appended in
// order, per spec.md §4.4 ("Enqueue splits an incoming 0x12 payload of
// 2*d_p bytes into d_p consecutive 2-byte frames").
func (q *Queue) EnqueueBytes(data []byte) error {
	if len(data)%FrameSize != 0 {
		return fmt.Errorf("%w: %d bytes", ErrOddPayload, len(data))
	}
	for i := 0; i < len(data); i += FrameSize {
		q.frames = append(q.frames, [FrameSize]byte{data[i], data[i+1]})
	}
	return nil
}

// Enqueue appends a single already-framed input.
func (q *Queue) Enqueue(frame [FrameSize]byte) {
	q.frames = append(q.frames, frame)
}

// PopFront removes and returns the head frame. ok is false if the
// queue is empty.
func (q *Queue) PopFront() (frame [FrameSize]byte, ok bool) {
	if len(q.frames) == 0 {
		return frame, false
	}
	frame = q.frames[0]
	q.frames = q.frames[1:]
	return frame, true
}
