package room

import (
	"time"

	"github.com/kaillera-relay/server/internal/cache"
	"github.com/kaillera-relay/server/internal/dispatch"
	"github.com/kaillera-relay/server/internal/queue"
	"github.com/kaillera-relay/server/internal/sendwindow"
)

// Player is a room member (spec.md §3). Fields set at Join are stable
// for the player's lifetime except Delay, which is mutable until the
// 0x11 Start Game transition freezes it, and Ready/Dropped/LastSeen,
// which the room updates as messages arrive.
type Player struct {
	UID          uint32
	Username     string
	Grade        int
	Delay        int
	PlayerNumber int // 1-based, assigned at join, stable even if later players drop
	LastSeen     time.Time
	Ready        bool
	Dropped      bool

	queue     *queue.Queue
	inCache   *cache.Cache // inbound cache; resolves this player's own 0x13 references
	window    *sendwindow.Window
	recipient *dispatch.Recipient
	highWater map[byte]uint16 // per-type high-water seq mark, dedup per spec.md §4.1
}

func newPlayer(uid uint32, username string, grade, delay, playerNumber int) *Player {
	return &Player{
		UID:          uid,
		Username:     username,
		Grade:        grade,
		Delay:        delay,
		PlayerNumber: playerNumber,
		LastSeen:     time.Now(),
		highWater:    make(map[byte]uint16, 4),
	}
}

// seenSeq reports whether seq has already been processed for typ
// (spec.md §4.1 dedup for non-idempotent types: 0x12, 0x13, 0x14,
// 0x15) and records it if not.
func (p *Player) seenSeq(typ byte, seq uint16) bool {
	if hw, ok := p.highWater[typ]; ok && seq <= hw {
		return true
	}
	p.highWater[typ] = seq
	return false
}
