package udpserver

import (
	"errors"

	"github.com/kaillera-relay/server/internal/metrics"
)

// Sentinel errors, wrapped for classification via errors.Is, mirroring
// the teacher's server.errors.go pattern.
var (
	ErrListen        = errors.New("udp: listen")
	ErrRead          = errors.New("udp: read")
	ErrWrite         = errors.New("udp: write")
	ErrUnknownSender = errors.New("udp: datagram from unregistered session")
	ErrContext       = errors.New("udp: context cancelled")
)

// mapErrToMetric maps wrapped sentinel errors to metrics labels.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrRead):
		return metrics.ErrUDPRead
	case errors.Is(err, ErrWrite):
		return metrics.ErrUDPWrite
	case errors.Is(err, ErrListen):
		return metrics.ErrUDPRead
	default:
		return "other"
	}
}
