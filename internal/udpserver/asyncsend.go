package udpserver

import (
	"context"
	"net"
	"sync"

	"github.com/kaillera-relay/server/internal/logging"
	"github.com/kaillera-relay/server/internal/metrics"
)

// outboundDatagram pairs a destination address with an already-encoded
// wire datagram.
type outboundDatagram struct {
	addr *net.UDPAddr
	data []byte
}

// asyncSender funnels outbound writes through a single goroutine, the
// same non-blocking-enqueue shape as the teacher's transport.AsyncTx:
// a full buffer drops the newest datagram rather than stalling the
// room goroutine that produced it (spec.md §5, "fire-and-forget").
type asyncSender struct {
	mu     sync.Mutex
	ch     chan outboundDatagram
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	conn   *net.UDPConn
	closed bool
}

func newAsyncSender(parent context.Context, conn *net.UDPConn, buf int) *asyncSender {
	ctx, cancel := context.WithCancel(parent)
	a := &asyncSender{
		ch:     make(chan outboundDatagram, buf),
		ctx:    ctx,
		cancel: cancel,
		conn:   conn,
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *asyncSender) loop() {
	defer a.wg.Done()
	for {
		select {
		case out, ok := <-a.ch:
			if !ok {
				return
			}
			if _, err := a.conn.WriteToUDP(out.data, out.addr); err != nil {
				metrics.IncError(metrics.ErrUDPWrite)
				logging.L().Debug("udp_write_error", "addr", out.addr.String(), "error", err)
			}
		case <-a.ctx.Done():
			return
		}
	}
}

// Send enqueues a datagram for asynchronous transmission. Drops and
// counts the datagram if the outbound buffer is full rather than
// blocking the caller (always a room goroutine).
func (a *asyncSender) Send(addr *net.UDPAddr, data []byte) {
	select {
	case a.ch <- outboundDatagram{addr: addr, data: data}:
	default:
		metrics.IncError(metrics.ErrUDPWrite)
		logging.L().Debug("udp_send_buffer_full_drop", "addr", addr.String())
	}
}

// Close stops the sender goroutine. Safe to call once.
func (a *asyncSender) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	a.cancel()
	a.wg.Wait()
}
