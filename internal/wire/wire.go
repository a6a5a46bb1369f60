// Package wire implements the Kaillera datagram framing: a leading
// message count followed by individually length-prefixed messages,
// each carrying its own sequence number, length, and type byte.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/kaillera-relay/server/internal/metrics"
)

// Message types the core consumes or produces (spec.md §6).
const (
	TypeCloseGame        byte = 0x10
	TypeStartGame        byte = 0x11
	TypeGameData         byte = 0x12
	TypeGameCache        byte = 0x13
	TypeDropGame         byte = 0x14
	TypeReadyToPlay      byte = 0x15
	TypeUpdateGameStatus byte = 0x0E
)

// maxMessagesPerDatagram bounds message_count; a larger value on the
// wire is treated as malformed rather than an oversized allocation.
const maxMessagesPerDatagram = 16

// ErrMalformedFrame is returned when a datagram violates the framing
// rules in spec.md §4.1. The entire datagram is dropped on this error;
// there is no partial delivery.
var ErrMalformedFrame = errors.New("wire: malformed frame")

// Message is one decoded wire message: its sequence number (used only
// for send-window dedup, never for reordering), its type, and its
// payload (everything after the type byte).
type Message struct {
	Seq     uint16
	Type    byte
	Payload []byte
}

// DecodeDatagram parses a full UDP datagram into its constituent
// messages. Non-idempotent-type dedup against a high-water mark is the
// caller's responsibility (spec.md §4.1); this function only validates
// framing.
func DecodeDatagram(b []byte) ([]Message, error) {
	if len(b) < 1 {
		metrics.IncMalformedDatagram()
		return nil, fmt.Errorf("%w: empty datagram", ErrMalformedFrame)
	}
	count := int(b[0])
	if count == 0 {
		metrics.IncMalformedDatagram()
		return nil, fmt.Errorf("%w: message_count is zero", ErrMalformedFrame)
	}
	if count > maxMessagesPerDatagram {
		metrics.IncMalformedDatagram()
		return nil, fmt.Errorf("%w: message_count %d exceeds max %d", ErrMalformedFrame, count, maxMessagesPerDatagram)
	}
	msgs := make([]Message, 0, count)
	off := 1
	for i := 0; i < count; i++ {
		if off+5 > len(b) {
			metrics.IncMalformedDatagram()
			return nil, fmt.Errorf("%w: message %d header truncated", ErrMalformedFrame, i)
		}
		seq := binary.LittleEndian.Uint16(b[off : off+2])
		length := binary.LittleEndian.Uint16(b[off+2 : off+4])
		if length < 1 {
			metrics.IncMalformedDatagram()
			return nil, fmt.Errorf("%w: message %d length %d < 1", ErrMalformedFrame, i, length)
		}
		typ := b[off+4]
		payloadStart := off + 5
		payloadLen := int(length) - 1
		if payloadStart+payloadLen > len(b) {
			metrics.IncMalformedDatagram()
			return nil, fmt.Errorf("%w: message %d extends past datagram", ErrMalformedFrame, i)
		}
		payload := make([]byte, payloadLen)
		copy(payload, b[payloadStart:payloadStart+payloadLen])
		msgs = append(msgs, Message{Seq: seq, Type: typ, Payload: payload})
		off = payloadStart + payloadLen
	}
	return msgs, nil
}

// EncodeDatagram packs messages into a single datagram in the order
// given; callers that want the send-window's newest-first redundancy
// pattern (spec.md §4.2) must order msgs themselves before calling.
func EncodeDatagram(msgs []Message) []byte {
	if len(msgs) == 0 {
		return nil
	}
	if len(msgs) > maxMessagesPerDatagram {
		msgs = msgs[:maxMessagesPerDatagram]
	}
	var buf bytes.Buffer
	buf.Grow(1 + len(msgs)*16)
	buf.WriteByte(byte(len(msgs)))
	for _, m := range msgs {
		var hdr [4]byte
		binary.LittleEndian.PutUint16(hdr[0:2], m.Seq)
		binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(m.Payload)+1))
		buf.Write(hdr[:])
		buf.WriteByte(m.Type)
		buf.Write(m.Payload)
	}
	return buf.Bytes()
}

// readCString reads a NUL-terminated byte string from b starting at
// off, returning the string (without the terminator) and the offset
// just past the terminator.
func readCString(b []byte, off int) (string, int, error) {
	for i := off; i < len(b); i++ {
		if b[i] == 0 {
			return string(b[off:i]), i + 1, nil
		}
	}
	return "", 0, fmt.Errorf("%w: unterminated string", ErrMalformedFrame)
}

// writeCString appends s followed by a NUL terminator.
func writeCString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}
