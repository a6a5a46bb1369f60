package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestDatagramRoundTrip(t *testing.T) {
	msgs := []Message{
		{Seq: 3, Type: TypeGameData, Payload: BuildGameData([]byte{0x11, 0x22})},
		{Seq: 2, Type: TypeGameData, Payload: BuildGameData([]byte{0xAA, 0xBB})},
		{Seq: 1, Type: TypeReadyToPlay, Payload: BuildReadyToPlay()},
	}
	wireBytes := EncodeDatagram(msgs)
	out, err := DecodeDatagram(wireBytes)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(msgs) {
		t.Fatalf("got %d messages, want %d", len(out), len(msgs))
	}
	for i := range msgs {
		if out[i].Seq != msgs[i].Seq || out[i].Type != msgs[i].Type || !bytes.Equal(out[i].Payload, msgs[i].Payload) {
			t.Fatalf("message %d mismatch: got %+v want %+v", i, out[i], msgs[i])
		}
	}
}

func TestDecodeDatagram_ZeroCount(t *testing.T) {
	_, err := DecodeDatagram([]byte{0x00})
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame, got %v", err)
	}
}

func TestDecodeDatagram_TooManyMessages(t *testing.T) {
	_, err := DecodeDatagram([]byte{0x11})
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame for count 17, got %v", err)
	}
}

func TestDecodeDatagram_TruncatedMessage(t *testing.T) {
	// count=1, but no message bytes follow.
	_, err := DecodeDatagram([]byte{0x01})
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame, got %v", err)
	}
}

func TestDecodeDatagram_LengthTooShort(t *testing.T) {
	b := []byte{0x01, 0x00, 0x00, 0x00, 0x00, TypeReadyToPlay}
	_, err := DecodeDatagram(b)
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame for length 0, got %v", err)
	}
}

func TestDecodeDatagram_PayloadExtendsPastDatagram(t *testing.T) {
	// length says 10 bytes follow the type byte, but only 2 are present.
	b := []byte{0x01, 0x00, 0x00, 0x0B, 0x00, TypeGameData, 0x00, 0x00}
	_, err := DecodeDatagram(b)
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame, got %v", err)
	}
}

func TestGameDataPayloadRoundTrip(t *testing.T) {
	data := []byte{0x11, 0x22, 0xAA, 0xBB}
	payload := BuildGameData(data)
	out, err := ParseGameData(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("got %v want %v", out, data)
	}
}

func TestGameCachePayloadRoundTrip(t *testing.T) {
	payload := BuildGameCache(0x42)
	pos, err := ParseGameCache(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if pos != 0x42 {
		t.Fatalf("got %d want 0x42", pos)
	}
}

func TestStartGameServerPayload(t *testing.T) {
	payload := BuildStartGameServer(3, 2, 4)
	if payload[0] != 0 { // empty NUL-terminated name
		t.Fatalf("expected leading NUL terminator")
	}
}
