// Package engine drives the non-blocking CoAP message exchange loop: one
// Tick call polls the socket, dispatches whatever arrived, flushes
// messages queued for a single send, and advances every outstanding
// confirmable message's retry timer. It is grounded throughout in the
// original's core/mod.rs Core<P: Platform>.
package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"unicode/utf8"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/simeonmiteff/go-coap/pkg/buffer"
	"github.com/simeonmiteff/go-coap/pkg/clock"
	"github.com/simeonmiteff/go-coap/pkg/coap"
	"github.com/simeonmiteff/go-coap/pkg/config"
	"github.com/simeonmiteff/go-coap/pkg/peerstate"
	"github.com/simeonmiteff/go-coap/pkg/retry"
	"github.com/simeonmiteff/go-coap/pkg/socket"
)

// DefaultQueueCapacity bounds the response store, fling queue, and retry
// queue; the same order of magnitude as the original's fixed ArrayVec
// buffers.
const DefaultQueueCapacity = 16

type retryEntry struct {
	msg   coap.Addressed[coap.Message]
	timer *retry.Timer
}

// Engine is the whole message-exchange state machine: one per bound
// socket, driven forward one Tick at a time.
type Engine struct {
	id   xid.ID
	sock socket.Socket
	clk  clock.Clock
	cfg  config.Data
	log  *logrus.Logger

	peers *peerstate.Store

	responses *buffer.Bounded[coap.Addressed[coap.Message]]
	flingQ    *buffer.Bounded[coap.Addressed[coap.Message]]
	retryQ    *buffer.Bounded[retryEntry]

	metrics *Metrics
}

// New builds an Engine around sock and clk. cfg and log may be the zero
// value / nil respectively; a nil logger falls back to logrus's package
// default, mirroring the teacher's cmd/get use of the package-level
// logger when no explicit one is wired in.
func New(sock socket.Socket, clk clock.Clock, cfg config.Data, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	id := xid.New()
	e := &Engine{
		id:        id,
		sock:      sock,
		clk:       clk,
		cfg:       cfg,
		log:       log,
		peers:     peerstate.NewStore(peerstate.DefaultHistoryCapacity),
		responses: buffer.NewBounded[coap.Addressed[coap.Message]](DefaultQueueCapacity),
		flingQ:    buffer.NewBounded[coap.Addressed[coap.Message]](DefaultQueueCapacity),
		retryQ:    buffer.NewBounded[retryEntry](DefaultQueueCapacity),
		metrics:   NewMetrics(id.String()),
	}
	e.metrics.queueDepth = func() (int, int, int) {
		return e.responses.Len(), e.flingQ.Len(), e.retryQ.Len()
	}
	return e
}

// ID is this engine instance's opaque sortable identifier, attached to
// every log line and metric it emits.
func (e *Engine) ID() xid.ID { return e.id }

// Metrics returns the engine's prometheus.Collector for registration
// with a prometheus.Registerer.
func (e *Engine) Metrics() *Metrics { return e.metrics }

func (e *Engine) fields(addr coap.Addr) logrus.Fields {
	return logrus.Fields{"engine": e.id.String(), "addr": addr.String()}
}

func (e *Engine) err(when When, what What) *Error {
	return newError(when, what)
}

// Tick is the one driver step: poll the socket for an inbound datagram,
// dispatch it if one arrived, flush the fling queue, and advance the
// retry queue. It returns the raw inbound datagram (if any) so PollReq
// can hand callers the parsed request.
func (e *Engine) Tick() (*coap.Addressed[[]byte], error) {
	e.metrics.incTicks()

	dgram, err := e.sock.Poll()
	if err != nil {
		return nil, e.err(Polling(), SockError{Err: err})
	}
	if dgram != nil {
		if err := e.dgramRecvd(*dgram); err != nil {
			return nil, err
		}
	}
	if err := e.sendFlings(); err != nil {
		return nil, err
	}
	if err := e.sendRetrys(); err != nil {
		return nil, err
	}
	return dgram, nil
}

func (e *Engine) dgramRecvd(dgram coap.Addressed[[]byte]) error {
	msg, parseErr := coap.Unmarshal(dgram.Value)
	if parseErr != nil {
		e.log.WithFields(e.fields(dgram.Addr)).WithError(parseErr).Warn("coap: dropping unparseable datagram")
		return nil
	}
	return e.msgRecvd(coap.Addressed[coap.Message]{Value: msg, Addr: dgram.Addr})
}

func (e *Engine) msgRecvd(m coap.Addressed[coap.Message]) error {
	e.processAcks(m)

	if m.Value.Code.Kind() == coap.CodeResponse {
		e.StoreResp(m)
	}
	return nil
}

// processAcks removes the retry-queue entry matched by an inbound ACK or
// RESET, the engine's Ack Matcher.
func (e *Engine) processAcks(m coap.Addressed[coap.Message]) {
	if m.Value.Type != coap.Ack && m.Value.Type != coap.Reset {
		return
	}
	_, matched := e.retryQ.TakeIf(func(entry retryEntry) bool {
		return entry.msg.Addr == m.Addr && entry.msg.Value.Id == m.Value.Id
	})
	if matched {
		e.metrics.incAcksMatched()
		e.log.WithFields(e.fields(m.Addr)).WithField("id", m.Value.Id).Debug("coap: ack matched")
		return
	}
	e.metrics.incUnknownAcks()
	e.log.WithFields(e.fields(m.Addr)).WithField("id", m.Value.Id).Warn("coap: ack/reset matched nothing outstanding")
}

// StoreResp records a response in the Response Store for later
// collection via PollResp. It panics if the store is still full after
// compaction, per the bounded-buffer invariant (SPEC_FULL.md §6).
func (e *Engine) StoreResp(resp coap.Addressed[coap.Message]) {
	if _, ok := e.responses.Push(resp); !ok {
		panic("engine: response store full after compaction")
	}
	e.metrics.incResponses()
	e.log.WithFields(e.fields(resp.Addr)).WithField("token", resp.Value.Token.String()).Debug("coap: response stored")
}

// PollResp ticks the engine once and, if a response from addr matching
// token has arrived (now or on some earlier tick), returns and removes
// it. Otherwise it returns ErrWouldBlock.
func (e *Engine) PollResp(token coap.Token, addr coap.Addr) (coap.Message, error) {
	if _, err := e.Tick(); err != nil {
		return coap.Message{}, err
	}
	resp, ok := e.responses.TakeIf(func(m coap.Addressed[coap.Message]) bool {
		return m.Addr == addr && m.Value.Token.Equal(token)
	})
	if !ok {
		return coap.Message{}, ErrWouldBlock
	}
	return resp.Value, nil
}

// PollReq ticks the engine once and returns the inbound message if one
// arrived and decoded. Building an application-level request object out
// of it is the caller's job; this hands back only what the engine itself
// understands (id, token, code, options, payload).
func (e *Engine) PollReq() (coap.Addressed[coap.Message], error) {
	dgram, err := e.Tick()
	if err != nil {
		return coap.Addressed[coap.Message]{}, err
	}
	if dgram == nil {
		return coap.Addressed[coap.Message]{}, ErrWouldBlock
	}
	msg, parseErr := coap.Unmarshal(dgram.Value)
	if parseErr != nil {
		return coap.Addressed[coap.Message]{}, e.err(ParsingMessage(dgram.Addr), FromBytesError{Err: parseErr})
	}
	return coap.Addressed[coap.Message]{Value: msg, Addr: dgram.Addr}, nil
}

// PollPing ticks the engine once and reports whether the ping identified
// by (id, addr) is still outstanding.
//
// The exchange this watches for is the bare CON/RESET round trip RFC
// 7252 calls a "ping":
//
//	 Client                  Server
//	    |                      |
//	    | CON [0.00], Id=0x7d34|
//	    +--------------------->|
//	    |                      |
//	    | RESET [0.00], Id=0x7d34
//	    |<---------------------+
//	    |                      |
//
// Once the matching RESET removes the retry-queue entry, PollPing
// reports success (nil error); until then, or if the timer gives up
// first, it reports ErrWouldBlock / MessageNeverAckedError respectively
// by virtue of Tick's ordinary retry-queue processing.
func (e *Engine) PollPing(id coap.Id, addr coap.Addr) error {
	if _, err := e.Tick(); err != nil {
		return err
	}
	for _, slot := range e.retryQ.Slots() {
		if slot == nil {
			continue
		}
		if slot.msg.Addr == addr && slot.msg.Value.Id == id {
			return ErrWouldBlock
		}
	}
	return nil
}

// sendFlings walks the fling queue; for every present slot it serializes
// the message, attempts to send it, and only clears the slot once the
// send succeeds. Taking the slot before attempting the send (the
// original's literal behaviour) would lose the message on a transient
// send failure.
func (e *Engine) sendFlings() error {
	slots := e.flingQ.Slots()
	for i, slot := range slots {
		if slot == nil {
			continue
		}
		msg := *slot
		when := SendingMessage(msg.Addr, msg.Value.Id, msg.Value.Token)

		bytes, err := coap.Marshal(msg.Value, coap.MaxMessageSize)
		if err != nil {
			return e.err(when, ToBytesError{Err: err})
		}
		if err := e.send(when, msg.Addr, bytes); err != nil {
			return err
		}
		slots[i] = nil
	}
	return nil
}

// sendRetrys advances every outstanding confirmable message's retry
// timer, resending on Retry and surfacing MessageNeverAckedError on the
// first GiveUp it finds.
func (e *Engine) sendRetrys() error {
	slots := e.retryQ.Slots()
	for i, slot := range slots {
		if slot == nil {
			continue
		}
		entry := slot
		when := SendingMessage(entry.msg.Addr, entry.msg.Value.Id, entry.msg.Value.Token)

		now, err := e.clk.TryNow()
		if err != nil {
			return e.err(when, ClockError{Err: err})
		}

		switch entry.timer.WhatShouldIDo(now) {
		case retry.Wait:
			continue
		case retry.Retry:
			bytes, err := coap.Marshal(entry.msg.Value, coap.MaxMessageSize)
			if err != nil {
				return e.err(when, ToBytesError{Err: err})
			}
			if err := e.send(when, entry.msg.Addr, bytes); err != nil {
				return err
			}
			e.metrics.incRetries()
			e.log.WithFields(e.fields(entry.msg.Addr)).WithField("id", entry.msg.Value.Id).Debug("coap: retry sent")
		case retry.GiveUp:
			slots[i] = nil
			e.metrics.incGiveUps()
			e.log.WithFields(e.fields(entry.msg.Addr)).WithField("id", entry.msg.Value.Id).Error("coap: message never acknowledged")
			return e.err(when, MessageNeverAckedError{})
		}
	}
	return nil
}

// send busy-retries past a transient ErrWouldBlock from the socket, the
// same way the original's nb::block! spins on a would-block result
// instead of surfacing it to the caller.
func (e *Engine) send(when When, addr coap.Addr, bytes []byte) error {
	for {
		err := e.sock.Send(coap.Addressed[[]byte]{Value: bytes, Addr: addr})
		if err == nil {
			return nil
		}
		if errors.Is(err, socket.ErrWouldBlock) {
			continue
		}
		return e.err(when, SockError{Err: err})
	}
}

// SendMsg enqueues m for a single, unretried send on the next Tick (the
// Fling Queue), used for ACKs, RESETs, and anything else that doesn't
// need reliability. It panics if the queue is still full after
// compaction.
func (e *Engine) SendMsg(m coap.Addressed[coap.Message]) {
	if _, ok := e.flingQ.Push(m); !ok {
		panic("engine: fling queue full after compaction")
	}
}

// Ack builds and enqueues an ACK for a confirmable message, allocating a
// fresh Id for it. Non-confirmable messages need no ACK and this is a
// no-op for them.
func (e *Engine) Ack(m coap.Addressed[coap.Message]) error {
	if m.Value.Type != coap.Confirmable {
		return nil
	}
	id, err := e.peers.NextID(e.clk, m.Addr)
	if err != nil {
		return e.err(Polling(), ClockError{Err: err})
	}
	ack := coap.Addressed[coap.Message]{
		Addr: m.Addr,
		Value: coap.Message{
			Type: coap.Ack,
			Code: coap.CodeEmpty,
			Id:   id,
		},
	}
	e.SendMsg(ack)
	return nil
}

// SendReq sends req as a confirmable request, extracting its destination
// from the Uri-Host (option 3) and Uri-Port (option 7) options, and
// enqueues a Retry Timer for it (the Retry Queue) using the same
// ad-hoc Exponential(100ms)/5-attempts default the original core's
// retryable() helper uses. If req has no Id or Token set (both zero
// value), fresh ones are allocated for the destination peer.
func (e *Engine) SendReq(req coap.Message) (coap.Id, coap.Token, coap.Addr, error) {
	addr, what := uriAddr(req.Options)
	if what != nil {
		return 0, nil, coap.Addr{}, e.err(Polling(), what)
	}

	if req.Id == 0 {
		id, err := e.peers.NextID(e.clk, addr)
		if err != nil {
			return 0, nil, addr, e.err(Polling(), ClockError{Err: err})
		}
		req.Id = id
	}
	if len(req.Token) == 0 {
		tok, err := e.peers.NextToken(e.clk, addr)
		if err != nil {
			return 0, nil, addr, e.err(Polling(), ClockError{Err: err})
		}
		req.Token = tok
	}

	when := SendingMessage(addr, req.Id, req.Token)
	bytes, marshalErr := coap.Marshal(req, coap.MaxMessageSize)
	if marshalErr != nil {
		return 0, nil, addr, e.err(when, ToBytesError{Err: marshalErr})
	}

	now, clockErr := e.clk.TryNow()
	if clockErr != nil {
		return 0, nil, addr, e.err(when, ClockError{Err: clockErr})
	}
	timer := retry.NewTimer(now, retry.DefaultStrategy, retry.DefaultMaxAttempts)
	if _, ok := e.retryQ.Push(retryEntry{msg: coap.Addressed[coap.Message]{Value: req, Addr: addr}, timer: timer}); !ok {
		panic("engine: retry queue full after compaction")
	}

	if err := e.send(when, addr, bytes); err != nil {
		return 0, nil, addr, err
	}
	return req.Id, req.Token, addr, nil
}

// Ping sends an empty confirmable message (RFC 7252 §4.3) to host:port
// and enqueues it on the retry queue exactly like any other confirmable
// send; a RESET response matches it via the ordinary Ack Matcher path.
func (e *Engine) Ping(host string, port uint16) (coap.Id, coap.Addr, error) {
	addr, err := resolveHostPort(host, port)
	if err != nil {
		return 0, coap.Addr{}, e.err(Polling(), HostInvalidIPAddressError{Err: err})
	}

	id, err := e.peers.NextID(e.clk, addr)
	if err != nil {
		return 0, addr, e.err(Polling(), ClockError{Err: err})
	}

	msg := coap.Message{Type: coap.Confirmable, Code: coap.CodeEmpty, Id: id}
	when := SendingMessage(addr, id, nil)
	bytes, marshalErr := coap.Marshal(msg, 13)
	if marshalErr != nil {
		return 0, addr, e.err(when, ToBytesError{Err: marshalErr})
	}

	now, clockErr := e.clk.TryNow()
	if clockErr != nil {
		return 0, addr, e.err(when, ClockError{Err: clockErr})
	}
	timer := retry.NewTimer(now, retry.DefaultStrategy, retry.DefaultMaxAttempts)
	if _, ok := e.retryQ.Push(retryEntry{msg: coap.Addressed[coap.Message]{Value: msg, Addr: addr}, timer: timer}); !ok {
		panic("engine: retry queue full after compaction")
	}

	if err := e.send(when, addr, bytes); err != nil {
		return 0, addr, err
	}
	return id, addr, nil
}

// uriAddr extracts a destination Addr from a request's Uri-Host (a
// string, RFC 7252 §5.10.1) and Uri-Port (a network-byte-order uint,
// §5.10.2) options. The two ways a Uri-Host can fail to resolve — not
// valid text at all, or valid text that isn't a usable IPv4 address —
// are reported as distinct What variants so callers can tell a malformed
// option apart from a merely unreachable one.
func uriAddr(opts []coap.Option) (coap.Addr, What) {
	hostVal, ok := coap.FindOption(opts, coap.OptionURIHost)
	if !ok {
		return coap.Addr{}, MissingHostOptionError{}
	}
	if !utf8.Valid(hostVal) {
		return coap.Addr{}, HostInvalidUTF8Error{}
	}
	var port uint16 = 5683
	if portVal, ok := coap.FindOption(opts, coap.OptionURIPort); ok {
		port = decodeUintOption(portVal)
	}
	addr, err := resolveHostPort(string(hostVal), port)
	if err != nil {
		return coap.Addr{}, HostInvalidIPAddressError{Err: err}
	}
	return addr, nil
}

func decodeUintOption(v []byte) uint16 {
	if len(v) > 2 {
		v = v[len(v)-2:]
	}
	var buf [2]byte
	copy(buf[2-len(v):], v)
	return binary.BigEndian.Uint16(buf[:])
}

func resolveHostPort(host string, port uint16) (coap.Addr, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		return coap.Addr{}, fmt.Errorf("%q is not an IPv4 literal", host)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return coap.Addr{}, fmt.Errorf("%q is not an IPv4 address", host)
	}
	var a coap.Addr
	copy(a.IP[:], ip4)
	a.Port = port
	return a, nil
}

// EncodeURIPort renders port as the minimal-width big-endian CoAP uint
// option value, for callers building a request's Uri-Port option.
func EncodeURIPort(port uint16) []byte {
	if port < 256 {
		return []byte{byte(port)}
	}
	return []byte{byte(port >> 8), byte(port)}
}

// ParseURIPort is a convenience for command-line tools parsing a
// "host:port" string into host and port parts.
func ParseURIPort(s string) (host string, port uint16, err error) {
	h, p, splitErr := net.SplitHostPort(s)
	if splitErr != nil {
		return "", 0, splitErr
	}
	n, convErr := strconv.ParseUint(p, 10, 16)
	if convErr != nil {
		return "", 0, convErr
	}
	return h, uint16(n), nil
}
