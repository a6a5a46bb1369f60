package sendwindow

import (
	"testing"

	"github.com/kaillera-relay/server/internal/wire"
)

// TestNewestFirstOrdering covers P7: the datagram for a new message m
// lists m first, followed by min(depth-1, history) prior messages in
// descending seq order.
func TestNewestFirstOrdering(t *testing.T) {
	w := New(3)
	_ = w.Emit(wire.TypeGameData, []byte{1})
	_ = w.Emit(wire.TypeGameData, []byte{2})
	datagram := w.Emit(wire.TypeGameData, []byte{3})

	msgs, err := wire.DecodeDatagram(datagram)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i := 0; i < len(msgs)-1; i++ {
		if msgs[i].Seq <= msgs[i+1].Seq {
			t.Fatalf("messages not in descending seq order: %v", msgs)
		}
	}
	if msgs[0].Payload[0] != 3 {
		t.Fatalf("newest message not first: %v", msgs[0])
	}
}

func TestWindowCapsAtDepth(t *testing.T) {
	w := New(2)
	for i := 0; i < 5; i++ {
		w.Emit(wire.TypeGameData, []byte{byte(i)})
	}
	if len(w.Entries()) != 2 {
		t.Fatalf("got %d entries, want capped at 2", len(w.Entries()))
	}
}

func TestSeqMonotonic(t *testing.T) {
	w := New(DefaultDepth)
	var last uint16
	for i := 0; i < 5; i++ {
		w.Emit(wire.TypeGameData, []byte{byte(i)})
		cur := w.Entries()[0].Seq
		if cur <= last {
			t.Fatalf("seq not monotonically increasing: %d after %d", cur, last)
		}
		last = cur
	}
}
