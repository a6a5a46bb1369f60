package wire

import (
	"errors"
	"testing"
)

// FuzzDecodeDatagram ensures the decoder never panics on arbitrary
// input and only ever returns ErrMalformedFrame or a valid decode.
func FuzzDecodeDatagram(f *testing.F) {
	seed := [][]byte{
		EncodeDatagram([]Message{{Seq: 1, Type: TypeGameData, Payload: BuildGameData([]byte{1, 2})}}),
		{0x00},
		{0x11},
		{0x01, 0x00, 0x00, 0x00, 0x00},
	}
	for _, s := range seed {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		if _, err := DecodeDatagram(data); err != nil && !errors.Is(err, ErrMalformedFrame) {
			t.Fatalf("unexpected error kind: %v", err)
		}
	})
}
