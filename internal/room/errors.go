package room

import "errors"

// Sentinel errors for Join and other room-boundary operations. Message
// handling itself never returns errors across the room boundary (per
// spec.md §9, "no unwinding"); player failures are represented as a
// drop, surfaced only via logging/metrics (see DropReason).
var (
	ErrRoomFull      = errors.New("room: full")
	ErrWrongState    = errors.New("room: not accepting joins in current state")
	ErrDuplicateUID  = errors.New("room: uid already joined")
	ErrUnknownPlayer = errors.New("room: message from unknown uid")
)

// DropReason classifies why a player was removed from a room. It is
// never placed on the wire (the 0x14 payload in spec.md §6 carries
// only username and player number); it exists for logging/metrics
// only, per SPEC_FULL.md's "voluntary quit vs. forced drop" supplement.
type DropReason string

const (
	DropVoluntary         DropReason = "quit"
	DropIdleTimeout       DropReason = "idle_timeout"
	DropProtocolViolation DropReason = "protocol_violation"
	DropCacheMiss         DropReason = "cache_miss"
	DropFloodControl      DropReason = "flood_control"
)
