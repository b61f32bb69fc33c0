// Package socket defines the non-blocking datagram transport the engine
// drives from its Tick loop, grounded in the original's Socket trait
// (connect/send/recv/poll over an Addrd<Dgram>).
package socket

import (
	"errors"

	"github.com/simeonmiteff/go-coap/pkg/coap"
)

// ErrWouldBlock is returned by Send when the underlying transport cannot
// accept the datagram right now. It is not a failure: callers busy-retry
// past it rather than surfacing it, the same way the original's
// nb::block! spins past WouldBlock.
var ErrWouldBlock = errors.New("socket: would block")

// Socket is the one collaborator Tick needs: a way to poll for an inbound
// datagram and a way to send one. Poll returning (nil, nil) means "no
// datagram pending right now", not an error.
type Socket interface {
	// Poll returns the next inbound datagram if one is ready, or
	// (nil, nil) if none is pending. It never blocks.
	Poll() (*coap.Addressed[[]byte], error)
	// Send attempts to transmit d. It returns ErrWouldBlock if the
	// transport can't accept it yet.
	Send(d coap.Addressed[[]byte]) error
}
