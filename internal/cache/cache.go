// Package cache implements the per-(player, direction) 256-slot
// content-addressed ring cache (spec.md §3, §4.3). A Cache is not
// safe for concurrent use; each Room owns its players' caches and
// touches them only from its single room goroutine (spec.md §5).
package cache

import "errors"

const slots = 256

// ErrCacheMiss is returned by Resolve when asked for a position that
// has never been written. Per spec.md §7 this is fatal to the
// requesting player, not the room.
var ErrCacheMiss = errors.New("cache: position never written")

// Cache is a fixed 256-slot ring of the most recently seen payloads,
// plus a content→position index for O(1) hit detection on emit.
type Cache struct {
	slots [slots][]byte
	next  int
	pos   map[string]int
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{pos: make(map[string]int, slots)}
}

// Resolve returns the payload previously written at pos. Used when a
// peer references a position via a 0x13 Game Cache message.
func (c *Cache) Resolve(pos byte) ([]byte, error) {
	b := c.slots[pos]
	if b == nil {
		return nil, ErrCacheMiss
	}
	return b, nil
}

// Emit checks whether payload already sits in the cache. On a hit it
// returns the slot position; on a miss the caller must send the
// literal payload and call Record.
func (c *Cache) Emit(payload []byte) (pos int, hit bool) {
	p, ok := c.pos[string(payload)]
	if !ok {
		return 0, false
	}
	return p, true
}

// Record writes payload at the next ring position, evicting whatever
// content previously lived there from the lookup index.
func (c *Cache) Record(payload []byte) {
	p := c.next
	if old := c.slots[p]; old != nil {
		if oldPos, ok := c.pos[string(old)]; ok && oldPos == p {
			delete(c.pos, string(old))
		}
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	c.slots[p] = buf
	c.pos[string(buf)] = p
	c.next = (c.next + 1) % slots
}
