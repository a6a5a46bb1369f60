package udpserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kaillera-relay/server/internal/registry"
	"github.com/kaillera-relay/server/internal/room"
	"github.com/kaillera-relay/server/internal/wire"
)

// TestSmokeServer_TwoPlayerRoundTrip drives the whole ingress/egress
// path over a real loopback UDP socket: two clients send Game Data and
// each must receive the combined frame back.
func TestSmokeServer_TwoPlayerRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reg := registry.New()
	srv := NewServer(WithListenAddr("127.0.0.1:0"), WithRegistry(reg))

	go func() {
		if err := srv.Serve(ctx); err != nil {
			t.Logf("Serve returned: %v", err)
		}
	}()
	select {
	case <-srv.Ready():
	case <-time.After(1 * time.Second):
		t.Fatalf("server did not signal readiness")
	}

	c0, err := net.DialUDP("udp", nil, mustResolve(t, srv.Addr()))
	if err != nil {
		t.Fatalf("dial client 0: %v", err)
	}
	defer c0.Close()
	c1, err := net.DialUDP("udp", nil, mustResolve(t, srv.Addr()))
	if err != nil {
		t.Fatalf("dial client 1: %v", err)
	}
	defer c1.Close()

	r := room.New("room-1", 1, "Some Game", "Some Emu", 100, srv.SendFunc(), room.Options{})
	if err := reg.Add("room-1", r); err != nil {
		t.Fatalf("add room: %v", err)
	}
	if err := r.Join(100, "host", 1, 1); err != nil {
		t.Fatalf("join host: %v", err)
	}
	if err := r.Join(200, "guest", 1, 1); err != nil {
		t.Fatalf("join guest: %v", err)
	}
	srv.RegisterSession(100, c0.LocalAddr().(*net.UDPAddr))
	srv.RegisterSession(200, c1.LocalAddr().(*net.UDPAddr))
	reg.BindPlayer(100, "room-1")
	reg.BindPlayer(200, "room-1")

	send := func(c *net.UDPConn, seq uint16, typ byte, payload []byte) {
		dgram := wire.EncodeDatagram([]wire.Message{{Seq: seq, Type: typ, Payload: payload}})
		if _, err := c.Write(dgram); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	send(c0, 1, wire.TypeStartGame, wire.BuildStartGameServer(0, 0, 0))
	send(c0, 1, wire.TypeReadyToPlay, wire.BuildReadyToPlay())
	send(c1, 1, wire.TypeReadyToPlay, wire.BuildReadyToPlay())

	// Drain the Netsync/StartGame/ReadyToPlay control traffic before
	// sending Game Data, so the next read is the combined frame.
	drainUntilPlaying(t, c0)
	drainUntilPlaying(t, c1)

	send(c0, 2, wire.TypeGameData, wire.BuildGameData([]byte{0x11, 0x22}))
	send(c1, 2, wire.TypeGameData, wire.BuildGameData([]byte{0xAA, 0xBB}))

	want := []byte{0x11, 0x22, 0xAA, 0xBB}
	got0 := readGameData(t, c0)
	got1 := readGameData(t, c1)
	if string(got0) != string(want) {
		t.Fatalf("client 0 got %v want %v", got0, want)
	}
	if string(got1) != string(want) {
		t.Fatalf("client 1 got %v want %v", got1, want)
	}
}

func mustResolve(t *testing.T, addr string) *net.UDPAddr {
	t.Helper()
	a, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		t.Fatalf("resolve %q: %v", addr, err)
	}
	return a
}

// drainUntilPlaying reads and discards datagrams until it sees a 0x15
// Ready to Play broadcast, which is the last control message before
// Game Data traffic begins.
func drainUntilPlaying(t *testing.T, c *net.UDPConn) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	buf := make([]byte, 4096)
	for time.Now().Before(deadline) {
		_ = c.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, err := c.Read(buf)
		if err != nil {
			continue
		}
		msgs, err := wire.DecodeDatagram(buf[:n])
		if err != nil {
			continue
		}
		for _, m := range msgs {
			if m.Type == wire.TypeReadyToPlay {
				return
			}
		}
	}
	t.Fatalf("never observed ReadyToPlay broadcast")
}

func readGameData(t *testing.T, c *net.UDPConn) []byte {
	t.Helper()
	buf := make([]byte, 4096)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_ = c.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, err := c.Read(buf)
		if err != nil {
			continue
		}
		msgs, err := wire.DecodeDatagram(buf[:n])
		if err != nil {
			continue
		}
		for _, m := range msgs {
			if m.Type == wire.TypeGameData {
				data, err := wire.ParseGameData(m.Payload)
				if err != nil {
					t.Fatalf("parse game data: %v", err)
				}
				return data
			}
		}
	}
	t.Fatalf("timed out waiting for Game Data")
	return nil
}
