package wire

import "testing"

func BenchmarkEncodeDecodeDatagram(b *testing.B) {
	msgs := []Message{
		{Seq: 1, Type: TypeGameData, Payload: BuildGameData([]byte{0x11, 0x22, 0x33, 0x44})},
		{Seq: 2, Type: TypeGameCache, Payload: BuildGameCache(7)},
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		out := EncodeDatagram(msgs)
		if _, err := DecodeDatagram(out); err != nil {
			b.Fatalf("decode: %v", err)
		}
	}
}
