// Package registry tracks the set of in-memory rooms and the uid→room
// index the UDP ingress layer needs to demux an inbound datagram to
// its room. It is the thread-safe boundary around internal/room's
// single-goroutine-per-room model: every method here may be called
// concurrently, but once a *room.Room is handed to its owning
// goroutine only that goroutine calls its methods.
package registry

import (
	"sync"

	"github.com/kaillera-relay/server/internal/logging"
	"github.com/kaillera-relay/server/internal/metrics"
	"github.com/kaillera-relay/server/internal/room"
)

// Registry is a concurrency-safe directory of active rooms, keyed by
// room ID, plus a reverse index from player UID to the room they
// currently occupy.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*room.Room
	byUID   map[uint32]string
	nextNum uint64
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		rooms: make(map[string]*room.Room),
		byUID: make(map[uint32]string),
	}
}

// NextID returns a monotonically increasing room ID string, for
// callers that don't derive one from a lobby/game name elsewhere.
func (reg *Registry) NextID() string {
	reg.mu.Lock()
	reg.nextNum++
	n := reg.nextNum
	reg.mu.Unlock()
	return formatRoomID(n)
}

// Add registers a new room under id and wires its OnEmpty hook to
// self-evict from the registry. Returns an error if id is already in
// use.
func (reg *Registry) Add(id string, r *room.Room) error {
	reg.mu.Lock()
	if _, exists := reg.rooms[id]; exists {
		reg.mu.Unlock()
		return ErrDuplicateRoom
	}
	reg.rooms[id] = r
	cur := len(reg.rooms)
	reg.mu.Unlock()

	r.OnEmpty(func(r *room.Room) { reg.Remove(id) })
	metrics.SetRoomsActive(cur)
	logging.L().Info("room_registered", "room", id)
	return nil
}

// Remove evicts a room and every uid binding that pointed at it. Safe
// to call multiple times.
func (reg *Registry) Remove(id string) {
	reg.mu.Lock()
	_, existed := reg.rooms[id]
	delete(reg.rooms, id)
	for uid, rid := range reg.byUID {
		if rid == id {
			delete(reg.byUID, uid)
		}
	}
	cur := len(reg.rooms)
	reg.mu.Unlock()
	if existed {
		metrics.SetRoomsActive(cur)
		logging.L().Info("room_evicted", "room", id)
	}
}

// BindPlayer records that uid is currently a member of room id, so a
// later inbound datagram from uid can be routed without the caller
// tracking the mapping itself.
func (reg *Registry) BindPlayer(uid uint32, id string) {
	reg.mu.Lock()
	reg.byUID[uid] = id
	reg.mu.Unlock()
}

// UnbindPlayer removes uid's room binding, if any.
func (reg *Registry) UnbindPlayer(uid uint32) {
	reg.mu.Lock()
	delete(reg.byUID, uid)
	reg.mu.Unlock()
}

// Get returns the room registered under id, if any.
func (reg *Registry) Get(id string) (*room.Room, bool) {
	reg.mu.RLock()
	r, ok := reg.rooms[id]
	reg.mu.RUnlock()
	return r, ok
}

// RoomForPlayer resolves uid to its currently bound room, if any.
func (reg *Registry) RoomForPlayer(uid uint32) (*room.Room, bool) {
	reg.mu.RLock()
	id, ok := reg.byUID[uid]
	if !ok {
		reg.mu.RUnlock()
		return nil, false
	}
	r, ok := reg.rooms[id]
	reg.mu.RUnlock()
	return r, ok
}

// Snapshot returns a point-in-time copy of the active room list,
// mirroring internal/hub's read-only Snapshot pattern.
func (reg *Registry) Snapshot() []*room.Room {
	reg.mu.RLock()
	rooms := make([]*room.Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.mu.RUnlock()
	return rooms
}

// Count returns the number of active rooms.
func (reg *Registry) Count() int {
	reg.mu.RLock()
	n := len(reg.rooms)
	reg.mu.RUnlock()
	return n
}
