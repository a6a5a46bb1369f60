// Package udpserver is the UDP ingress/session layer spec.md §9 calls
// the "one task demultiplexes datagrams from the main socket to
// per-room mailboxes." It owns the single UDP socket, the
// uid↔address session table, and the fan-out of decoded messages to
// the correct room — each room is then driven synchronously,
// single-writer, by the goroutine that calls HandleMessage (here,
// Serve's own select loop; spec.md's "mailbox" is realized as a
// direct call rather than a separate per-room channel, since
// decode+dispatch is already non-suspending and bounded per spec.md
// §5). The idle-timeout sweep (r.Tick) is driven from that same select
// loop via a ticker case, not a second goroutine: spec.md §5 requires
// exactly one writer per room, so Tick and HandleMessage must never
// run concurrently against the same Room. Socket reads happen on a
// separate readLoop goroutine, but that goroutine only ever writes to
// a channel — it never touches Room state.
package udpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/kaillera-relay/server/internal/logging"
	"github.com/kaillera-relay/server/internal/metrics"
	"github.com/kaillera-relay/server/internal/registry"
	"github.com/kaillera-relay/server/internal/room"
	"github.com/kaillera-relay/server/internal/wire"
)

const (
	defaultReadBufferSize     = 4096 // generous for message_count<=16 datagrams; Kaillera frames are small
	defaultSendBufferSize     = 1024
	defaultIdleTickInterval   = 5 * time.Second
	maxUDPDatagramSizeDefault = 65507
)

// Server owns the UDP socket and routes decoded messages to rooms.
type Server struct {
	mu   sync.RWMutex
	addr string
	conn *net.UDPConn

	registry         *registry.Registry
	readBufSize      int
	sendBufSize      int
	idleTickInterval time.Duration
	logger           *slog.Logger

	readyOnce sync.Once
	readyCh   chan struct{}
	errCh     chan error
	lastErrMu sync.Mutex
	lastErr   error

	sessionsMu sync.RWMutex
	uidToAddr  map[uint32]*net.UDPAddr
	addrToUID  map[string]uint32

	onUnknownSender func(addr *net.UDPAddr, datagram []byte)

	sender *asyncSender
	wg     sync.WaitGroup
}

// ServerOption configures a Server at construction, mirroring the
// teacher's ServerOption constructor style.
type ServerOption func(*Server)

func WithListenAddr(a string) ServerOption { return func(s *Server) { s.addr = a } }

func WithRegistry(r *registry.Registry) ServerOption {
	return func(s *Server) { s.registry = r }
}

func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithReadBufferSize(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.readBufSize = n
		}
	}
}

func WithSendBufferSize(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.sendBufSize = n
		}
	}
}

func WithIdleTickInterval(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.idleTickInterval = d
		}
	}
}

// WithUnknownSenderHandler registers a callback invoked when a
// datagram arrives from an address with no bound session. Room/lobby
// creation is a cross-room concern out of core scope (spec.md §5); a
// caller that wants a join handshake wires it here and calls
// RegisterSession + registry.BindPlayer once it has decided the
// datagram is a join request.
func WithUnknownSenderHandler(fn func(addr *net.UDPAddr, datagram []byte)) ServerOption {
	return func(s *Server) { s.onUnknownSender = fn }
}

// SetUnknownSenderHandler registers the handler after construction, for
// callers (like a lobby stand-in) that need a reference to the Server
// itself — e.g. for SendFunc — before they can build the handler.
func (s *Server) SetUnknownSenderHandler(fn func(addr *net.UDPAddr, datagram []byte)) {
	s.mu.Lock()
	s.onUnknownSender = fn
	s.mu.Unlock()
}

// NewServer constructs a Server in the not-yet-listening state.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		readBufSize:      defaultReadBufferSize,
		sendBufSize:      defaultSendBufferSize,
		idleTickInterval: defaultIdleTickInterval,
		logger:           logging.L(),
		readyCh:          make(chan struct{}),
		errCh:            make(chan error, 1),
		uidToAddr:        make(map[uint32]*net.UDPAddr),
		addrToUID:        make(map[string]uint32),
	}
	for _, o := range opts {
		o(s)
	}
	if s.addr == "" {
		s.addr = ":0"
	}
	if s.registry == nil {
		s.registry = registry.New()
	}
	return s
}

func (s *Server) Addr() string           { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }
func (s *Server) Ready() <-chan struct{} { return s.readyCh }
func (s *Server) Errors() <-chan error   { return s.errCh }
func (s *Server) Registry() *registry.Registry { return s.registry }

func (s *Server) setError(err error) {
	if err == nil {
		return
	}
	s.lastErrMu.Lock()
	s.lastErr = err
	s.lastErrMu.Unlock()
	select {
	case s.errCh <- err:
	default:
	}
}

func (s *Server) LastError() error {
	s.lastErrMu.Lock()
	defer s.lastErrMu.Unlock()
	return s.lastErr
}

// RegisterSession binds uid to addr so inbound datagrams from addr
// demux to uid, and SendFunc can reach uid by address.
func (s *Server) RegisterSession(uid uint32, addr *net.UDPAddr) {
	s.sessionsMu.Lock()
	s.uidToAddr[uid] = addr
	s.addrToUID[addr.String()] = uid
	s.sessionsMu.Unlock()
}

// UnregisterSession removes uid's session binding, if any.
func (s *Server) UnregisterSession(uid uint32) {
	s.sessionsMu.Lock()
	if addr, ok := s.uidToAddr[uid]; ok {
		delete(s.addrToUID, addr.String())
		delete(s.uidToAddr, uid)
	}
	s.sessionsMu.Unlock()
}

func (s *Server) sessionForAddr(addr *net.UDPAddr) (uint32, bool) {
	s.sessionsMu.RLock()
	uid, ok := s.addrToUID[addr.String()]
	s.sessionsMu.RUnlock()
	return uid, ok
}

func (s *Server) addrForUID(uid uint32) (*net.UDPAddr, bool) {
	s.sessionsMu.RLock()
	addr, ok := s.uidToAddr[uid]
	s.sessionsMu.RUnlock()
	return addr, ok
}

// SendFunc returns a room.SendFunc bound to this server's session
// table and outbound sender, for use as room.Options' transport.
func (s *Server) SendFunc() room.SendFunc {
	return func(uid uint32, datagram []byte) {
		addr, ok := s.addrForUID(uid)
		if !ok {
			s.logger.Debug("send_unknown_session", "uid", uid)
			return
		}
		s.sender.Send(addr, datagram)
	}
}

// Serve opens the UDP socket and runs the ingress loop until ctx is
// cancelled or a fatal socket error occurs.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	addr := s.addr
	s.mu.Unlock()

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		return wrap
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		return wrap
	}
	s.mu.Lock()
	s.conn = conn
	s.addr = conn.LocalAddr().String()
	s.mu.Unlock()

	s.sender = newAsyncSender(ctx, conn, s.sendBufSize)
	defer s.sender.Close()

	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("udp_listen", "addr", s.Addr())

	inbound := make(chan inboundDatagram, s.readBufSize)
	s.wg.Add(1)
	go s.readLoop(ctx, conn, inbound)

	go func() { <-ctx.Done(); _ = conn.Close() }()

	ticker := time.NewTicker(s.idleTickInterval)
	defer ticker.Stop()

	// This select loop is the room's single ingress goroutine
	// (spec.md §5's one-writer-per-room model): every call to
	// r.HandleMessage (via handleDatagram) and r.Tick below runs here
	// and only here, so no Room is ever touched by two goroutines at
	// once. readLoop below does nothing but read the socket and hand
	// datagrams off; it never reaches into room state itself.
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return nil
		case dg, ok := <-inbound:
			if !ok {
				s.wg.Wait()
				return nil
			}
			s.handleDatagram(dg.from, dg.data)
		case now := <-ticker.C:
			for _, r := range s.registry.Snapshot() {
				r.Tick(now)
			}
		}
	}
}

// inboundDatagram is one datagram handed from readLoop to Serve's
// single ingress select loop.
type inboundDatagram struct {
	from *net.UDPAddr
	data []byte
}

// readLoop only performs blocking socket reads and forwards datagrams
// over inbound; it must never call into Room state directly, since
// Serve's select loop is the sole goroutine allowed to do that
// (spec.md §5).
func (s *Server) readLoop(ctx context.Context, conn *net.UDPConn, inbound chan<- inboundDatagram) {
	defer s.wg.Done()
	defer close(inbound)
	buf := make([]byte, s.readBufSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			wrap := fmt.Errorf("%w: %v", ErrRead, err)
			metrics.IncError(mapErrToMetric(wrap))
			s.setError(wrap)
			continue
		}
		data := append([]byte(nil), buf[:n]...)
		select {
		case inbound <- inboundDatagram{from: from, data: data}:
		case <-ctx.Done():
			return
		}
	}
}

// handleDatagram decodes and routes one inbound datagram. A datagram
// from an address with no bound session is handed, undecoded, to the
// unknown-sender handler. A malformed datagram from a bound session is
// dropped whole (spec.md §6, "no partial delivery"); wire already
// counts the failure metric. Called only from Serve's ingress select
// loop.
func (s *Server) handleDatagram(from *net.UDPAddr, datagram []byte) {
	uid, ok := s.sessionForAddr(from)
	if !ok {
		if s.onUnknownSender != nil {
			s.onUnknownSender(from, datagram)
		} else {
			s.logger.Debug("unknown_sender_dropped", "from", from.String())
		}
		return
	}

	msgs, err := wire.DecodeDatagram(datagram)
	if err != nil {
		s.logger.Debug("malformed_datagram", "from", from.String(), "error", err)
		return
	}
	r, ok := s.registry.RoomForPlayer(uid)
	if !ok {
		s.logger.Debug("session_without_room", "uid", uid)
		return
	}
	for _, m := range msgs {
		r.HandleMessage(uid, m.Seq, m.Type, m.Payload)
	}
}

// Shutdown closes rooms and the socket cooperatively (spec.md §5:
// "each room task drains its mailbox, emits 0x10 to members, and
// exits").
func (s *Server) Shutdown(ctx context.Context) error {
	for _, r := range s.registry.Snapshot() {
		r.Close()
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: shutdown timeout: %v", ErrContext, ctx.Err())
	case <-done:
		s.logger.Info("udp_shutdown_complete")
		return nil
	}
}
