package engine

import (
	"errors"
	"fmt"

	"github.com/simeonmiteff/go-coap/pkg/coap"
)

// ErrWouldBlock is the sentinel a caller checks with errors.Is to learn
// that an operation simply has nothing to report yet — the Go-idiomatic
// stand-in for the original's nb::Result<T, nb::Error<E>>::WouldBlock.
var ErrWouldBlock = errors.New("engine: would block")

// WhenKind identifies which step of Tick an error happened during.
type WhenKind int

const (
	WhenPolling WhenKind = iota
	WhenSendingMessage
	WhenParsingMessage
)

func (k WhenKind) String() string {
	switch k {
	case WhenPolling:
		return "polling"
	case WhenSendingMessage:
		return "sending-message"
	case WhenParsingMessage:
		return "parsing-message"
	default:
		return "unknown"
	}
}

// When is the first half of an engine.Error: what the engine was doing,
// and (when known) which message it was doing it for.
type When struct {
	Kind  WhenKind
	Addr  *coap.Addr
	Id    coap.Id
	Token coap.Token
}

func (w When) String() string {
	if w.Addr == nil {
		return w.Kind.String()
	}
	return fmt.Sprintf("%s(addr=%s, id=%d, token=%s)", w.Kind, *w.Addr, w.Id, w.Token)
}

// Polling builds a When for an error that occurred outside the context
// of any particular message (socket.Poll, clock.TryNow).
func Polling() When {
	return When{Kind: WhenPolling}
}

// SendingMessage builds a When describing the specific message an error
// happened while transmitting.
func SendingMessage(addr coap.Addr, id coap.Id, token coap.Token) When {
	return When{Kind: WhenSendingMessage, Addr: &addr, Id: id, Token: token}
}

// ParsingMessage builds a When for an inbound datagram that failed to
// decode.
func ParsingMessage(addr coap.Addr) When {
	return When{Kind: WhenParsingMessage, Addr: &addr}
}

// What is the second half of an engine.Error: what went wrong. It is
// itself an error so it can carry an Unwrap chain back to the underlying
// cause.
type What interface {
	error
	isWhat()
}

// SockError wraps a failure from the Socket collaborator.
type SockError struct{ Err error }

func (e SockError) Error() string { return fmt.Sprintf("socket error: %v", e.Err) }
func (e SockError) Unwrap() error { return e.Err }
func (SockError) isWhat()         {}

// ClockError reports that the Clock collaborator refused to report the
// current time.
type ClockError struct{ Err error }

func (e ClockError) Error() string { return fmt.Sprintf("clock error: %v", e.Err) }
func (e ClockError) Unwrap() error { return e.Err }
func (ClockError) isWhat()         {}

// FromBytesError wraps a codec failure decoding an inbound datagram.
type FromBytesError struct{ Err error }

func (e FromBytesError) Error() string { return fmt.Sprintf("could not parse message: %v", e.Err) }
func (e FromBytesError) Unwrap() error { return e.Err }
func (FromBytesError) isWhat()         {}

// ToBytesError wraps a codec failure encoding an outbound message.
type ToBytesError struct{ Err error }

func (e ToBytesError) Error() string { return fmt.Sprintf("could not encode message: %v", e.Err) }
func (e ToBytesError) Unwrap() error { return e.Err }
func (ToBytesError) isWhat()         {}

// HostInvalidUTF8Error reports that a request's Uri-Host option value
// wasn't valid UTF-8 text, so it was never even a candidate address.
type HostInvalidUTF8Error struct{}

func (HostInvalidUTF8Error) Error() string { return "uri-host option is not valid utf-8" }
func (HostInvalidUTF8Error) isWhat()       {}

// HostInvalidIPAddressError reports that a request's Uri-Host/Uri-Port
// options were valid text but didn't resolve to a usable IPv4 address.
type HostInvalidIPAddressError struct{ Err error }

func (e HostInvalidIPAddressError) Error() string { return fmt.Sprintf("invalid host address: %v", e.Err) }
func (e HostInvalidIPAddressError) Unwrap() error { return e.Err }
func (HostInvalidIPAddressError) isWhat()         {}

// MissingHostOptionError reports that a request had no Uri-Host option
// to send to. A missing Uri-Port alone does not trigger it; the port then
// defaults to 5683.
type MissingHostOptionError struct{}

func (MissingHostOptionError) Error() string { return "request has no Uri-Host/Uri-Port option" }
func (MissingHostOptionError) isWhat()       {}

// MessageNeverAckedError reports a confirmable message whose retry timer
// exhausted its attempts without an ACK or RESET ever arriving.
type MessageNeverAckedError struct{}

func (MessageNeverAckedError) Error() string { return "message was never acknowledged" }
func (MessageNeverAckedError) isWhat()       {}

// Error is the engine's two-dimensional error: what was happening (When)
// and what went wrong (What).
type Error struct {
	When When
	What What
}

func (e *Error) Error() string {
	return fmt.Sprintf("coap engine: %s: %v", e.When, e.What)
}

func (e *Error) Unwrap() error {
	return e.What
}

func newError(when When, what What) *Error {
	return &Error{When: when, What: what}
}
