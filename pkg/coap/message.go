// Package coap implements the RFC 7252 message format: the wire types,
// the delta-encoded option list, and the codec between the two. It has
// no knowledge of sockets, retries, or engine state — those live in the
// packages that import it.
package coap

import (
	"fmt"
	"net"
)

// MaxMessageSize is the largest datagram the engine will build or accept,
// matching the UDP path's practical ceiling for CoAP (RFC 7252 §4.6).
const MaxMessageSize = 1152

// Type is the CoAP message type carried in the low two bits of byte 0.
type Type uint8

const (
	Confirmable Type = iota
	NonConfirmable
	Ack
	Reset
)

func (t Type) String() string {
	switch t {
	case Confirmable:
		return "CON"
	case NonConfirmable:
		return "NON"
	case Ack:
		return "ACK"
	case Reset:
		return "RESET"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Code is the CoAP method/response code, stored unpacked as class.detail
// (e.g. 2.05 Content is Code{Class: 2, Detail: 5}).
type Code struct {
	Class  uint8
	Detail uint8
}

// NewCode builds a Code from its class and detail.
func NewCode(class, detail uint8) Code {
	return Code{Class: class, Detail: detail}
}

func (c Code) String() string {
	return fmt.Sprintf("%d.%02d", c.Class, c.Detail)
}

// Byte packs the code into the single wire byte (3 bits class, 5 bits detail).
func (c Code) Byte() byte {
	return (c.Class << 5) | (c.Detail & 0x1f)
}

// CodeFromByte unpacks the wire byte into a Code.
func CodeFromByte(b byte) Code {
	return Code{Class: b >> 5, Detail: b & 0x1f}
}

// CodeEmpty is the reserved 0.00 empty code used by ACKs, RESETs and pings.
var CodeEmpty = Code{Class: 0, Detail: 0}

// CodeKind classifies a Code per RFC 7252 §3.
type CodeKind int

const (
	CodeEmptyKind CodeKind = iota
	CodeRequest
	CodeResponse
)

// Kind reports whether c is the empty code, a request code (0.01-0.31), or
// a response code (2.xx/4.xx/5.xx). Codes in any other class (1, 3, 6, 7)
// are also reported as CodeRequest.
func (c Code) Kind() CodeKind {
	switch {
	case c.Class == 0 && c.Detail == 0:
		return CodeEmptyKind
	case c.Class == 0:
		return CodeRequest
	case c.Class == 2 || c.Class == 4 || c.Class == 5:
		return CodeResponse
	default:
		return CodeRequest
	}
}

// Id is the 16-bit message identifier used for deduplication and ACK/RESET
// matching. It wraps like any fixed-width counter.
type Id uint16

// Token is an opaque 0-8 byte value (RFC 7252 §5.3.1) correlating a
// response to the request that caused it.
type Token []byte

func (t Token) String() string {
	return fmt.Sprintf("%x", []byte(t))
}

// Equal reports whether two tokens carry the same bytes.
func (t Token) Equal(o Token) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if t[i] != o[i] {
			return false
		}
	}
	return true
}

// Option numbers this module cares about (RFC 7252 §12.2, plus the
// defaults registered for CoAP content negotiation).
const (
	OptionURIHost      uint16 = 3
	OptionURIPort      uint16 = 7
	OptionURIPath      uint16 = 11
	OptionContentFormat uint16 = 12
	OptionURIQuery     uint16 = 15
	OptionAccept       uint16 = 17
)

// Option is a single CoAP option: a registered number and an opaque value.
// Delta is populated by NormalizeOptions immediately before encoding and is
// meaningless on an unnormalized list.
type Option struct {
	Number uint16
	Delta  uint16
	Value  []byte
}

// Message is a fully parsed or fully built CoAP message, independent of
// the address it was received from or will be sent to.
type Message struct {
	Type    Type
	Code    Code
	Id      Id
	Token   Token
	Options []Option
	Payload []byte
}

// Addr is an IPv4 CoAP peer address. CoAP-over-IPv6 is out of scope (see
// SPEC_FULL.md Non-goals).
type Addr struct {
	IP   [4]byte
	Port uint16
}

func (a Addr) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", a.IP[0], a.IP[1], a.IP[2], a.IP[3], a.Port)
}

// AddrFromUDP converts a resolved *net.UDPAddr into an Addr, rejecting
// anything that isn't a 4-byte IPv4 address.
func AddrFromUDP(u *net.UDPAddr) (Addr, error) {
	ip4 := u.IP.To4()
	if ip4 == nil {
		return Addr{}, fmt.Errorf("coap: %s is not an IPv4 address", u.IP)
	}
	var a Addr
	copy(a.IP[:], ip4)
	a.Port = uint16(u.Port)
	return a, nil
}

// UDPAddr converts back to the standard library's address type for dialing.
func (a Addr) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.IP(a.IP[:]), Port: int(a.Port)}
}

// Addressed pairs a value with the peer address it came from or is bound
// for — datagrams, parsed messages, anything that needs a "who" alongside
// its "what".
type Addressed[T any] struct {
	Value T
	Addr  Addr
}
