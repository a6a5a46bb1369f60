package dispatch

import (
	"bytes"
	"testing"

	"github.com/kaillera-relay/server/internal/cache"
	"github.com/kaillera-relay/server/internal/sendwindow"
	"github.com/kaillera-relay/server/internal/wire"
)

func TestRecipient_BuffersUntilDelay(t *testing.T) {
	r := NewRecipient(2, cache.New(), sendwindow.New(sendwindow.DefaultDepth))
	if out := r.Accept([]byte{0x11, 0x22}); out != nil {
		t.Fatalf("expected nil before delay reached, got %v", out)
	}
	out := r.Accept([]byte{0xAA, 0xBB})
	if out == nil {
		t.Fatalf("expected a datagram once delay reached")
	}
	msgs, err := wire.DecodeDatagram(out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msgs[0].Type != wire.TypeGameData {
		t.Fatalf("expected literal Game Data on first send, got type %x", msgs[0].Type)
	}
	data, err := wire.ParseGameData(msgs[0].Payload)
	if err != nil {
		t.Fatalf("parse game data: %v", err)
	}
	want := []byte{0x11, 0x22, 0xAA, 0xBB}
	if !bytes.Equal(data, want) {
		t.Fatalf("got %v want %v", data, want)
	}
}

// TestRecipient_CacheHitOnRepeat covers P3/scenario 3: an identical
// repeated batch is sent as a Game Cache reference.
func TestRecipient_CacheHitOnRepeat(t *testing.T) {
	r := NewRecipient(1, cache.New(), sendwindow.New(sendwindow.DefaultDepth))
	first := r.Accept([]byte{0x11, 0x22, 0xAA, 0xBB})
	second := r.Accept([]byte{0x11, 0x22, 0xAA, 0xBB})

	firstMsgs, _ := wire.DecodeDatagram(first)
	if firstMsgs[0].Type != wire.TypeGameData {
		t.Fatalf("expected first send to be literal Game Data")
	}
	secondMsgs, _ := wire.DecodeDatagram(second)
	if secondMsgs[0].Type != wire.TypeGameCache {
		t.Fatalf("expected repeated payload to hit cache, got type %x", secondMsgs[0].Type)
	}
	pos, err := wire.ParseGameCache(secondMsgs[0].Payload)
	if err != nil {
		t.Fatalf("parse game cache: %v", err)
	}
	if pos != 0 {
		t.Fatalf("expected cache hit at position 0, got %d", pos)
	}
}

func TestRecipient_SlowerRecipientGetsLargerBatch(t *testing.T) {
	fast := NewRecipient(1, cache.New(), sendwindow.New(sendwindow.DefaultDepth))
	slow := NewRecipient(2, cache.New(), sendwindow.New(sendwindow.DefaultDepth))

	fastOut := fast.Accept([]byte{0x01, 0x02})
	slowOut1 := slow.Accept([]byte{0x01, 0x02})
	if slowOut1 != nil {
		t.Fatalf("slow recipient should not emit yet")
	}
	slowOut2 := slow.Accept([]byte{0x03, 0x04})

	fastMsgs, _ := wire.DecodeDatagram(fastOut)
	fastData, _ := wire.ParseGameData(fastMsgs[0].Payload)
	slowMsgs, _ := wire.DecodeDatagram(slowOut2)
	slowData, _ := wire.ParseGameData(slowMsgs[0].Payload)

	if len(slowData) != 2*len(fastData) {
		t.Fatalf("expected slow recipient's payload to be 2x fast's: got %d vs %d", len(slowData), len(fastData))
	}
}
