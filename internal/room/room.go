// Package room implements the Room Controller (C7, spec.md §4.7): it
// ingests decoded messages, owns the room's players, delays, and sync
// state, and drives the Input Cache, Player Input Queue, Frame
// Synchronizer, and Per-Recipient Dispatcher on their behalf.
//
// A Room is driven by exactly one goroutine (spec.md §5's
// one-writer-per-room model); it holds no internal mutex because only
// that goroutine ever touches it. Anything that needs a thread-safe
// view of rooms (the registry, metrics) is expected to serialize
// access externally — see internal/registry.
package room

import (
	"log/slog"
	"time"

	"github.com/kaillera-relay/server/internal/cache"
	"github.com/kaillera-relay/server/internal/dispatch"
	"github.com/kaillera-relay/server/internal/framesync"
	"github.com/kaillera-relay/server/internal/logging"
	"github.com/kaillera-relay/server/internal/metrics"
	"github.com/kaillera-relay/server/internal/queue"
	"github.com/kaillera-relay/server/internal/sendwindow"
	"github.com/kaillera-relay/server/internal/wire"
)

// State is the room's place in the spec.md §4.7 state machine.
type State int

const (
	StateWaiting State = iota
	StateNetsync
	StatePlaying
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateNetsync:
		return "netsync"
	case StatePlaying:
		return "playing"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// SendFunc transmits a raw datagram to the given player over UDP.
// Sends are fire-and-forget (spec.md §5): errors are logged, never
// propagated back into room state.
type SendFunc func(uid uint32, datagram []byte)

const (
	// MinPlayers/MaxPlayers bound room size (spec.md §3).
	MinPlayers = 1
	MaxPlayers = 8

	defaultFloodCap    = 256 // spec.md §5 "queue_depth capped at a safety bound (e.g., 256 frames)"
	defaultIdleTimeout = 60 * time.Second
	defaultWindowDepth = sendwindow.DefaultDepth
)

// Options configure a Room at construction. All have spec-derived
// defaults; callers only need to set what differs.
type Options struct {
	MaxPlayers  int
	FloodCap    int
	IdleTimeout time.Duration
	WindowDepth int
	Logger      *slog.Logger
}

// Room is the per-game-room synchronization engine.
type Room struct {
	ID         string
	GameID     uint32
	GameTitle  string
	EmuName    string
	HostUID    uint32
	maxPlayers int
	floodCap   int
	idleTO     time.Duration
	windowDep  int

	state        State
	players      []*Player // stable join order; dropped players stay here, flagged Dropped
	byUID        map[uint32]*Player
	nextNum      int
	sync         *framesync.Synchronizer
	dMin         int
	playingSince time.Time // zero when not Playing; for frame-rate diagnostics only (SPEC_FULL.md supplement)

	send   SendFunc
	logger *slog.Logger

	onEmpty func(*Room) // invoked on each transition to Closing (last active player gone, or Close)
}

// New constructs a Room in the Waiting state.
func New(id string, gameID uint32, gameTitle, emuName string, hostUID uint32, send SendFunc, opts Options) *Room {
	if opts.MaxPlayers <= 0 || opts.MaxPlayers > MaxPlayers {
		opts.MaxPlayers = MaxPlayers
	}
	if opts.FloodCap <= 0 {
		opts.FloodCap = defaultFloodCap
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.WindowDepth <= 0 {
		opts.WindowDepth = defaultWindowDepth
	}
	if opts.Logger == nil {
		opts.Logger = logging.L()
	}
	return &Room{
		ID:         id,
		GameID:     gameID,
		GameTitle:  gameTitle,
		EmuName:    emuName,
		HostUID:    hostUID,
		maxPlayers: opts.MaxPlayers,
		floodCap:   opts.FloodCap,
		idleTO:     opts.IdleTimeout,
		windowDep:  opts.WindowDepth,
		byUID:      make(map[uint32]*Player),
		send:       send,
		logger:     opts.Logger.With("room", id),
	}
}

// OnEmpty registers a callback fired whenever the room transitions to
// Closing: when its last active player drops (spec.md §7 RoomEmpty) and
// also when Close is called with players still present, e.g. so a
// lobby/registry can evict it.
func (r *Room) OnEmpty(fn func(*Room)) { r.onEmpty = fn }

// State returns the room's current state.
func (r *Room) State() State { return r.state }

// PlayerCount returns the number of non-dropped players.
func (r *Room) PlayerCount() int { return r.activeCount() }

// Frame returns the number of combined frames emitted this Playing
// session.
func (r *Room) Frame() uint64 {
	if r.sync == nil {
		return 0
	}
	return r.sync.Frame()
}

// FrameRate returns the average combined frames emitted per second
// since Playing entry. It is a diagnostic surfaced only through the
// debug log line Tick writes (SPEC_FULL.md supplement to make P1 "the
// synchronizer never stalls" observable operationally); it has no
// effect on wire behavior and is not part of the core invariants.
// Returns 0 outside Playing or when no time has elapsed since Playing
// entry.
func (r *Room) FrameRate() float64 {
	if r.playingSince.IsZero() {
		return 0
	}
	elapsed := time.Since(r.playingSince).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(r.Frame()) / elapsed
}

// Join adds a new player to the room. Only valid while Waiting; delay
// is the session layer's already-computed d_p (spec.md §9, opaque to
// the core). Join order is the stable tie-break for simultaneous
// arrivals (ascending UID is the lobby's responsibility when it
// sequences genuinely concurrent join requests before handing them to
// the room one at a time).
func (r *Room) Join(uid uint32, username string, grade, delay int) error {
	if r.state != StateWaiting {
		return ErrWrongState
	}
	if _, exists := r.byUID[uid]; exists {
		return ErrDuplicateUID
	}
	if len(r.players) >= r.maxPlayers {
		return ErrRoomFull
	}
	if delay < 1 {
		delay = 1
	}
	r.nextNum++
	p := newPlayer(uid, username, grade, delay, r.nextNum)
	r.players = append(r.players, p)
	r.byUID[uid] = p
	metrics.SetPlayersActive(len(r.players))
	r.logger.Info("player_joined", "uid", uid, "username", username, "player_num", p.PlayerNumber)
	return nil
}

// HandleMessage routes one decoded message to its handler, first
// dropping replays of the non-idempotent types itself. seq is used here
// only for that per-type high-water dedup (spec.md §4.1); ordering is
// otherwise irrelevant.
func (r *Room) HandleMessage(uid uint32, seq uint16, typ byte, payload []byte) {
	p, ok := r.byUID[uid]
	if !ok || p.Dropped {
		r.logger.Warn("message_unknown_player", "uid", uid, "type", typ)
		return
	}
	p.LastSeen = time.Now()

	switch typ {
	case wire.TypeGameData, wire.TypeGameCache, wire.TypeDropGame, wire.TypeReadyToPlay:
		if p.seenSeq(typ, seq) {
			return // P6: replayed datagram, no state change
		}
	}

	switch typ {
	case wire.TypeStartGame:
		r.handleStartGame(p, payload)
	case wire.TypeReadyToPlay:
		r.handleReady(p)
	case wire.TypeGameData:
		r.handleGameData(p, payload)
	case wire.TypeGameCache:
		r.handleGameCache(p, payload)
	case wire.TypeDropGame:
		r.handleDropGame(p)
	default:
		r.logger.Debug("message_unknown_type", "uid", uid, "type", typ)
	}
}

// Tick drops any player idle for longer than the configured timeout
// (spec.md §5, §7 IdleTimeout). Callers should invoke this
// periodically from the room's own goroutine.
func (r *Room) Tick(now time.Time) {
	for _, p := range append([]*Player(nil), r.players...) {
		if p.Dropped {
			continue
		}
		if now.Sub(p.LastSeen) > r.idleTO {
			r.dropPlayer(p, DropIdleTimeout)
		}
	}
	if r.state == StatePlaying {
		r.logger.Debug("frame_rate", "frame", r.Frame(), "fps", r.FrameRate())
	}
}

// handleStartGame transitions Waiting → Netsync (spec.md §4.7). Only
// the host may trigger it, and only from Waiting; any other case is an
// unexpected message for the current state and is silently dropped
// (logged).
func (r *Room) handleStartGame(p *Player, payload []byte) {
	if r.state != StateWaiting || p.UID != r.HostUID {
		r.logger.Debug("start_game_ignored", "uid", p.UID, "state", r.state.String())
		return
	}
	if err := wire.ParseStartGameClient(payload); err != nil {
		r.logger.Debug("start_game_malformed", "uid", p.UID, "error", err)
		return
	}

	r.state = StateNetsync
	r.dMin = minDelay(r.players)
	r.sync = &framesync.Synchronizer{}

	for _, pl := range r.players {
		pl.queue = queue.New(pl.Delay - r.dMin)
		pl.inCache = cache.New()
		pl.window = sendwindow.New(r.windowDep)
		pl.recipient = dispatch.NewRecipient(pl.Delay, cache.New(), pl.window)
		pl.Ready = false
	}

	r.broadcast(wire.TypeUpdateGameStatus, wire.BuildUpdateGameStatus(r.GameID, wire.StatusNetsync, byte(len(r.players)), byte(r.maxPlayers)))
	total := byte(len(r.players))
	for _, pl := range r.players {
		r.sendTo(pl, wire.TypeStartGame, wire.BuildStartGameServer(uint16(pl.Delay), byte(pl.PlayerNumber), total))
	}
	r.logger.Info("netsync_entered", "players", len(r.players), "d_min", r.dMin)
}

// handleReady handles 0x15 during Netsync, transitioning to Playing
// once every player is ready (spec.md §4.7).
func (r *Room) handleReady(p *Player) {
	if r.state != StateNetsync {
		r.logger.Debug("ready_ignored", "uid", p.UID, "state", r.state.String())
		return
	}
	p.Ready = true
	for _, pl := range r.players {
		if !pl.Ready {
			return
		}
	}
	r.state = StatePlaying
	r.sync.Reset()
	r.playingSince = time.Now()
	r.broadcast(wire.TypeUpdateGameStatus, wire.BuildUpdateGameStatus(r.GameID, wire.StatusPlaying, byte(len(r.players)), byte(r.maxPlayers)))
	r.broadcast(wire.TypeReadyToPlay, wire.BuildReadyToPlay())
	r.logger.Info("playing_entered", "players", len(r.players))
}

// handleGameData handles 0x12 Game Data: record to the sender's
// inbound cache (so a later 0x13 from the same player can resolve it),
// enqueue the frames, and try to advance (spec.md §4.7, §4.4).
func (r *Room) handleGameData(p *Player, payload []byte) {
	if r.state != StatePlaying {
		r.dropPlayer(p, DropProtocolViolation)
		return
	}
	data, err := wire.ParseGameData(payload)
	if err != nil || len(data) != 2*p.Delay {
		metrics.IncError(metrics.ErrProtocolViolation)
		r.dropPlayer(p, DropProtocolViolation)
		return
	}
	p.inCache.Record(data)
	_ = p.queue.EnqueueBytes(data) // length already validated as a multiple of frame size above
	if p.queue.Len() > r.floodCap {
		metrics.IncError(metrics.ErrFloodControl)
		r.dropPlayer(p, DropFloodControl)
		return
	}
	r.tryAdvance()
}

// handleGameCache handles 0x13 Game Cache: resolve the referenced
// position from the sender's own inbound cache, enqueue the resolved
// frames, and try to advance.
func (r *Room) handleGameCache(p *Player, payload []byte) {
	if r.state != StatePlaying {
		// spec.md §4.7 names only 0x12 outside Playing as a
		// ProtocolViolation; a 0x13 here falls under the general
		// "unexpected message types for the current state are
		// silently dropped (with a log)" rule.
		r.logger.Debug("game_cache_ignored", "uid", p.UID, "state", r.state.String())
		return
	}
	pos, err := wire.ParseGameCache(payload)
	if err != nil {
		metrics.IncError(metrics.ErrProtocolViolation)
		r.dropPlayer(p, DropProtocolViolation)
		return
	}
	data, err := p.inCache.Resolve(pos)
	if err != nil {
		metrics.IncCacheResolveMiss()
		r.dropPlayer(p, DropCacheMiss)
		return
	}
	_ = p.queue.EnqueueBytes(data)
	if p.queue.Len() > r.floodCap {
		metrics.IncError(metrics.ErrFloodControl)
		r.dropPlayer(p, DropFloodControl)
		return
	}
	r.tryAdvance()
}

// handleDropGame handles a voluntary 0x14 quit from a player.
func (r *Room) handleDropGame(p *Player) {
	r.dropPlayer(p, DropVoluntary)
}

// tryAdvance drives the frame synchronizer over the currently active
// (non-dropped) players' queues, in stable join order, and fans each
// emitted combined frame out to every active recipient's dispatcher.
func (r *Room) tryAdvance() {
	queues := make([]*queue.Queue, 0, len(r.players))
	active := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		if p.Dropped {
			continue
		}
		queues = append(queues, p.queue)
		active = append(active, p)
	}
	combined := r.sync.TryAdvance(queues)
	for _, frame := range combined {
		metrics.IncFramesEmitted()
		for _, p := range active {
			if dgram := p.recipient.Accept(frame); dgram != nil {
				r.send(p.UID, dgram)
			}
		}
	}
}

// dropPlayer removes a player from synchronization and notifies the
// rest of the room, per spec.md §4.7/§7. Idempotent.
func (r *Room) dropPlayer(p *Player, reason DropReason) {
	if p.Dropped {
		return
	}
	p.Dropped = true
	metrics.IncPlayerDropped(string(reason))
	r.logger.Info("player_dropped", "uid", p.UID, "username", p.Username, "reason", string(reason))

	r.broadcast(wire.TypeDropGame, wire.BuildDropGameServer(p.Username, byte(p.PlayerNumber)))

	if r.state == StatePlaying {
		// A dropped player's queue is excluded from here on; this can
		// itself unblock the wait-for-all gate for the remaining players.
		r.tryAdvance()
	}

	if r.activeCount() == 0 {
		r.transitionClosing()
	}
	metrics.SetPlayersActive(r.activeCount())
}

// activeCount returns the number of non-dropped players.
func (r *Room) activeCount() int {
	n := 0
	for _, p := range r.players {
		if !p.Dropped {
			n++
		}
	}
	return n
}

// Close ends the room from outside (owner-driven close, spec.md §6
// 0x10 Close Game), freeing queues/caches and notifying members.
func (r *Room) Close() {
	if r.state == StateClosing {
		return
	}
	r.broadcast(wire.TypeCloseGame, wire.BuildCloseGame(r.GameID))
	r.transitionClosing()
}

// transitionClosing frees per-player synchronization state and
// invokes the empty-room callback, if registered.
func (r *Room) transitionClosing() {
	r.state = StateClosing
	r.playingSince = time.Time{}
	for _, p := range r.players {
		p.queue = nil
		p.inCache = nil
		p.window = nil
		p.recipient = nil
	}
	r.logger.Info("room_closing", "players", len(r.players))
	if r.onEmpty != nil {
		r.onEmpty(r)
	}
}

// sendTo encodes payload through p's own send window (so the 0x11/
// 0x0E/0x14/0x10 control messages benefit from the same redundancy as
// Game Data/Cache traffic) and hands the datagram to the transport.
func (r *Room) sendTo(p *Player, msgType byte, payload []byte) {
	if p.window == nil {
		r.send(p.UID, wire.EncodeDatagram([]wire.Message{{Seq: 0, Type: msgType, Payload: payload}}))
		return
	}
	r.send(p.UID, p.window.Emit(msgType, payload))
}

// broadcast sends the same message to every active player.
func (r *Room) broadcast(msgType byte, payload []byte) {
	for _, p := range r.players {
		if p.Dropped {
			continue
		}
		r.sendTo(p, msgType, payload)
	}
}

func minDelay(players []*Player) int {
	if len(players) == 0 {
		return 1
	}
	m := players[0].Delay
	for _, p := range players[1:] {
		if p.Delay < m {
			m = p.Delay
		}
	}
	return m
}
