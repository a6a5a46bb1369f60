package udpserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kaillera-relay/server/internal/registry"
	"github.com/kaillera-relay/server/internal/room"
)

// TestServer_MalformedDatagramCausesNoSideEffects mirrors spec.md §8
// scenario 6: a datagram with message_count=0 is dropped whole at the
// wire layer, so the room it would have targeted sees nothing.
func TestServer_MalformedDatagramCausesNoSideEffects(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reg := registry.New()
	srv := NewServer(WithListenAddr("127.0.0.1:0"), WithRegistry(reg))
	go func() { _ = srv.Serve(ctx) }()
	select {
	case <-srv.Ready():
	case <-time.After(1 * time.Second):
		t.Fatalf("server did not signal readiness")
	}

	r := room.New("room-1", 1, "Some Game", "Some Emu", 100, srv.SendFunc(), room.Options{})
	_ = reg.Add("room-1", r)
	_ = r.Join(100, "host", 1, 1)
	c0, err := net.DialUDP("udp", nil, mustResolve(t, srv.Addr()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c0.Close()
	srv.RegisterSession(100, c0.LocalAddr().(*net.UDPAddr))
	reg.BindPlayer(100, "room-1")

	before := r.State()
	if _, err := c0.Write([]byte{0x00}); err != nil { // message_count=0: malformed
		t.Fatalf("write: %v", err)
	}
	time.Sleep(50 * time.Millisecond) // let the ingress loop process-and-drop it

	if r.State() != before {
		t.Fatalf("malformed datagram changed room state: %v -> %v", before, r.State())
	}
	if r.PlayerCount() != 1 {
		t.Fatalf("malformed datagram changed player count: got %d", r.PlayerCount())
	}
}

// TestServer_UnknownSenderInvokesHandler covers the join/lobby
// boundary: a datagram from an address with no bound session is
// routed to the registered handler instead of being silently dropped.
func TestServer_UnknownSenderInvokesHandler(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seen := make(chan []byte, 1)
	srv := NewServer(
		WithListenAddr("127.0.0.1:0"),
		WithUnknownSenderHandler(func(addr *net.UDPAddr, datagram []byte) {
			seen <- datagram
		}),
	)
	go func() { _ = srv.Serve(ctx) }()
	select {
	case <-srv.Ready():
	case <-time.After(1 * time.Second):
		t.Fatalf("server did not signal readiness")
	}

	c, err := net.DialUDP("udp", nil, mustResolve(t, srv.Addr()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	payload := []byte{0x01, 0x00, 0x01, 0x02, 0x00, 0x15, 0x00}
	if _, err := c.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-seen:
		if len(got) != len(payload) {
			t.Fatalf("handler saw %d bytes, want %d", len(got), len(payload))
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("unknown sender handler was never invoked")
	}
}
