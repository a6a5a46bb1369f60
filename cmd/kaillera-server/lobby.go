package main

import (
	"encoding/binary"
	"log/slog"
	"net"
	"sync"

	"github.com/kaillera-relay/server/internal/registry"
	"github.com/kaillera-relay/server/internal/room"
	"github.com/kaillera-relay/server/internal/udpserver"
)

// lobby is a minimal stand-in for the bootstrap/session layer spec.md
// §1 places out of core scope (the HELLO0.83 handshake and user-login
// ACK ping dance). It exists only so this binary can demonstrate the
// Game Data/Game Cache core end to end over a real UDP socket without
// a separate client-facing lobby process: any datagram from an
// unrecognized address is treated as a join request into a single
// shared room, created lazily on first contact. It speaks none of the
// real Kaillera wire types listed in spec.md §6 for this purpose; its
// tiny join framing (optional shared key, username, grade, delay) is
// local to this stand-in and never reaches internal/room except as
// already-validated Join arguments.
type lobby struct {
	mu         sync.Mutex
	reg        *registry.Registry
	srv        *udpserver.Server
	opts       room.Options
	maxPlayers int
	gameTitle  string
	emuName    string
	serverKey  string // optional shared key (spec.md §1); empty disables the check
	roomID     string
	logger     *slog.Logger
}

func newLobby(reg *registry.Registry, srv *udpserver.Server, opts room.Options, maxPlayers int, gameTitle, emuName, serverKey string, logger *slog.Logger) *lobby {
	return &lobby{
		reg:        reg,
		srv:        srv,
		opts:       opts,
		maxPlayers: maxPlayers,
		gameTitle:  gameTitle,
		emuName:    emuName,
		serverKey:  serverKey,
		logger:     logger,
	}
}

// onUnknownSender implements udpserver.WithUnknownSenderHandler. It
// expects datagram to be a NUL-terminated shared key (empty if the
// deployment has none) followed by a NUL-terminated username, a 1-byte
// connection-quality grade, and a 2-byte little-endian delay (already
// computed by whatever stands in for the ping→delay table in a real
// deployment; spec.md §9 treats that computation as opaque to the
// core).
func (lb *lobby) onUnknownSender(addr *net.UDPAddr, datagram []byte) {
	keyEnd := -1
	for i, b := range datagram {
		if b == 0 {
			keyEnd = i
			break
		}
	}
	if keyEnd < 0 {
		lb.logger.Debug("lobby_join_malformed", "from", addr.String())
		return
	}
	if lb.serverKey != "" && string(datagram[:keyEnd]) != lb.serverKey {
		lb.logger.Warn("lobby_join_wrong_key", "from", addr.String())
		return
	}
	rest := datagram[keyEnd+1:]
	nameEnd := -1
	for i, b := range rest {
		if b == 0 {
			nameEnd = i
			break
		}
	}
	if nameEnd < 0 || nameEnd+4 > len(rest) {
		lb.logger.Debug("lobby_join_malformed", "from", addr.String())
		return
	}
	username := string(rest[:nameEnd])
	grade := int(rest[nameEnd+1])
	delay := int(binary.LittleEndian.Uint16(rest[nameEnd+2 : nameEnd+4]))
	if delay < 1 {
		delay = 1
	}

	lb.mu.Lock()
	defer lb.mu.Unlock()

	uid := uidForAddr(addr)
	r, ok := lb.currentRoom()
	if !ok {
		lb.roomID = lb.reg.NextID()
		r = room.New(lb.roomID, 1, lb.gameTitle, lb.emuName, uid, lb.srv.SendFunc(), lb.opts)
		if err := lb.reg.Add(lb.roomID, r); err != nil {
			lb.logger.Warn("lobby_room_create_failed", "error", err)
			return
		}
	}

	if err := r.Join(uid, username, grade, delay); err != nil {
		lb.logger.Warn("lobby_join_failed", "uid", uid, "username", username, "error", err)
		return
	}
	lb.srv.RegisterSession(uid, addr)
	lb.reg.BindPlayer(uid, lb.roomID)
	lb.logger.Info("lobby_join", "uid", uid, "username", username, "room", lb.roomID)
}

func (lb *lobby) currentRoom() (*room.Room, bool) {
	if lb.roomID == "" {
		return nil, false
	}
	r, ok := lb.reg.Get(lb.roomID)
	if !ok || r.State() != room.StateWaiting {
		lb.roomID = ""
		return nil, false
	}
	return r, true
}

// uidForAddr derives a stable-enough uid from a client's source
// address for this single-process demo lobby; a real lobby assigns
// uids from its own session table.
func uidForAddr(addr *net.UDPAddr) uint32 {
	ip4 := addr.IP.To4()
	var h uint32
	if ip4 != nil {
		h = binary.BigEndian.Uint32(ip4)
	} else {
		for _, b := range addr.IP {
			h = h*31 + uint32(b)
		}
	}
	return h ^ uint32(addr.Port)*2654435761
}
