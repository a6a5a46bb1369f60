package cache

import (
	"bytes"
	"errors"
	"testing"
)

func TestCache_MissBeforeWrite(t *testing.T) {
	c := New()
	if _, err := c.Resolve(0); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}

func TestCache_EmitMissThenRecordThenHit(t *testing.T) {
	c := New()
	payload := []byte{0x11, 0x22}
	if _, hit := c.Emit(payload); hit {
		t.Fatalf("expected miss before record")
	}
	c.Record(payload)
	pos, hit := c.Emit(payload)
	if !hit || pos != 0 {
		t.Fatalf("expected hit at pos 0, got hit=%v pos=%d", hit, pos)
	}
}

func TestCache_ResolveReturnsRecordedBytes(t *testing.T) {
	c := New()
	payload := []byte{0xAA, 0xBB}
	c.Record(payload)
	got, err := c.Resolve(0)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %v want %v", got, payload)
	}
}

// TestCache_WrapAroundEvictsOldContent exercises P3: after 256 distinct
// writes the ring wraps and the original content at position 0 is no
// longer reachable via Emit (it's been evicted from the index), even
// though a fresh write to the same content would again hit.
func TestCache_WrapAroundEvictsOldContent(t *testing.T) {
	c := New()
	first := []byte{0x00, 0x01}
	c.Record(first)
	for i := 0; i < slots; i++ {
		c.Record([]byte{byte(i), 0xFF})
	}
	if _, hit := c.Emit(first); hit {
		t.Fatalf("expected first payload to be evicted after full wraparound")
	}
}

func TestCache_DuplicateContentRewrittenKeepsLatestPosition(t *testing.T) {
	c := New()
	payload := []byte{0x01, 0x02}
	c.Record(payload)
	// advance the ring without touching payload again
	for i := 0; i < 5; i++ {
		c.Record([]byte{byte(0x10 + i), byte(0x20 + i)})
	}
	c.Record(payload) // re-record identical content at a new position
	pos, hit := c.Emit(payload)
	if !hit || pos != 6 {
		t.Fatalf("expected hit at pos 6 (latest write), got hit=%v pos=%d", hit, pos)
	}
}
