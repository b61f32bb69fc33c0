package engine

import (
	"errors"
	"testing"

	"github.com/simeonmiteff/go-coap/pkg/clock"
	"github.com/simeonmiteff/go-coap/pkg/coap"
	"github.com/simeonmiteff/go-coap/pkg/config"
	"github.com/simeonmiteff/go-coap/pkg/socket"
)

var serverAddr = coap.Addr{IP: [4]byte{127, 0, 0, 1}, Port: 5683}

func newTestEngine() (*Engine, *socket.Mock, *clock.Mock) {
	sock := socket.NewMock()
	clk := clock.NewMock()
	e := New(sock, clk, config.New().Build(), nil)
	return e, sock, clk
}

// TestPing mirrors the original core's ping() test: send a ping, have the
// mock socket answer with a matching RESET, and confirm PollPing reports
// it resolved.
func TestPing(t *testing.T) {
	e, sock, clk := newTestEngine()

	id, addr, err := e.Ping("127.0.0.1", 5683)
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if len(sock.Sent()) != 1 {
		t.Fatalf("expected 1 datagram sent, got %d", len(sock.Sent()))
	}

	reset := coap.Message{Type: coap.Reset, Code: coap.CodeEmpty, Id: id}
	bytes, err := coap.Marshal(reset, coap.MaxMessageSize)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	sock.Deliver(coap.Addressed[[]byte]{Value: bytes, Addr: addr})

	if err := e.PollPing(id, addr); err != nil {
		t.Fatalf("PollPing: %v", err)
	}

	// The retry-queue entry is gone once matched, so polling again still
	// reports resolved rather than reverting to ErrWouldBlock.
	clk.Advance(1)
	if err := e.PollPing(id, addr); err != nil {
		t.Fatalf("PollPing after match: %v", err)
	}
}

// TestPingTimesOut exercises a ping nobody answers, which should
// eventually surface MessageNeverAckedError from the retry queue.
func TestPingTimesOut(t *testing.T) {
	e, _, clk := newTestEngine()

	id, addr, err := e.Ping("127.0.0.1", 5683)
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}

	var lastErr error
	for i := 0; i < 20; i++ {
		clk.Advance(1000)
		lastErr = e.PollPing(id, addr)
		if lastErr != nil {
			break
		}
	}

	var engErr *Error
	if !errors.As(lastErr, &engErr) {
		t.Fatalf("expected *Error, got %v", lastErr)
	}
	var neverAcked MessageNeverAckedError
	if !errors.As(engErr, &neverAcked) {
		t.Fatalf("expected MessageNeverAckedError, got %v", engErr.What)
	}
	_ = addr
}

// TestClientFlow mirrors the original core's client_flow() test: send a
// GET, have the server answer with a 2.05 response carrying the same
// token, and confirm PollResp hands it back exactly once.
func TestClientFlow(t *testing.T) {
	e, sock, _ := newTestEngine()

	req := coap.Message{
		Type: coap.Confirmable,
		Code: coap.NewCode(0, 1), // GET
		Options: []coap.Option{
			{Number: coap.OptionURIHost, Value: []byte("127.0.0.1")},
			{Number: coap.OptionURIPath, Value: []byte("hello")},
		},
	}
	id, token, addr, err := e.SendReq(req)
	if err != nil {
		t.Fatalf("SendReq: %v", err)
	}
	if len(sock.Sent()) != 1 {
		t.Fatalf("expected 1 datagram sent, got %d", len(sock.Sent()))
	}

	resp := coap.Message{
		Type:  coap.Ack,
		Code:  coap.NewCode(2, 5), // 2.05 Content
		Id:    id,
		Token: token,
		Payload: []byte("world"),
	}
	bytes, err := coap.Marshal(resp, coap.MaxMessageSize)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	sock.Deliver(coap.Addressed[[]byte]{Value: bytes, Addr: addr})

	got, err := e.PollResp(token, addr)
	if err != nil {
		t.Fatalf("PollResp: %v", err)
	}
	if string(got.Payload) != "world" {
		t.Fatalf("unexpected payload %q", got.Payload)
	}

	if _, err := e.PollResp(token, addr); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("expected second PollResp to WouldBlock, got %v", err)
	}
}

// TestUnknownAckAbsorbed confirms an ACK matching nothing outstanding is
// absorbed rather than surfaced as an error.
func TestUnknownAckAbsorbed(t *testing.T) {
	e, sock, _ := newTestEngine()

	ack := coap.Message{Type: coap.Ack, Code: coap.CodeEmpty, Id: 999}
	bytes, err := coap.Marshal(ack, coap.MaxMessageSize)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	sock.Deliver(coap.Addressed[[]byte]{Value: bytes, Addr: serverAddr})

	if _, err := e.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := e.metrics.unknownAcks; got != 1 {
		t.Fatalf("expected 1 unknown ack, got %d", got)
	}
}

// TestRetryExhaustion drives a confirmable send under the default
// 100ms/5-attempt backoff to a deterministic GiveUp by advancing the clock
// 10s per tick, well past every retry deadline.
func TestRetryExhaustion(t *testing.T) {
	e, _, clk := newTestEngine()

	req := coap.Message{
		Type: coap.Confirmable,
		Code: coap.NewCode(0, 1),
		Options: []coap.Option{
			{Number: coap.OptionURIHost, Value: []byte("127.0.0.1")},
		},
	}
	_, _, _, err := e.SendReq(req)
	if err != nil {
		t.Fatalf("SendReq: %v", err)
	}

	var lastErr error
	for i := 0; i < 10; i++ {
		clk.Advance(10000)
		if _, err := e.Tick(); err != nil {
			lastErr = err
			break
		}
	}

	var engErr *Error
	if !errors.As(lastErr, &engErr) {
		t.Fatalf("expected *Error, got %v", lastErr)
	}
	var neverAcked MessageNeverAckedError
	if !errors.As(engErr, &neverAcked) {
		t.Fatalf("expected MessageNeverAckedError, got %v", engErr.What)
	}
}

// TestFlingQueueCompaction fills the fling queue to capacity, drains it
// with sendFlings, and confirms a 17th enqueue then succeeds by landing in
// one of the slots the drain vacated.
func TestFlingQueueCompaction(t *testing.T) {
	e, sock, _ := newTestEngine()
	sock.FailSends(socket.ErrWouldBlock)

	for i := 0; i < DefaultQueueCapacity; i++ {
		m := coap.Addressed[coap.Message]{
			Addr:  serverAddr,
			Value: coap.Message{Type: coap.Ack, Code: coap.CodeEmpty, Id: coap.Id(i)},
		}
		e.SendMsg(m)
	}

	sock.ClearSendError()
	if err := e.sendFlings(); err != nil {
		t.Fatalf("sendFlings: %v", err)
	}
	if got := e.flingQ.Len(); got != 0 {
		t.Fatalf("expected fling queue drained, got %d entries", got)
	}

	// The queue is empty now; pushing one more must succeed. Push finds a
	// vacant slot on its first search, so no compaction runs.
	m := coap.Addressed[coap.Message]{
		Addr:  serverAddr,
		Value: coap.Message{Type: coap.Ack, Code: coap.CodeEmpty, Id: coap.Id(100)},
	}
	e.SendMsg(m)
	if got := e.flingQ.Len(); got != 1 {
		t.Fatalf("expected 1 entry after re-enqueue, got %d", got)
	}
}

// TestAck confirms a confirmable inbound message gets an ACK enqueued on
// the fling queue with a freshly allocated Id, and that the ACK actually
// goes out on the next Tick.
func TestAck(t *testing.T) {
	e, sock, _ := newTestEngine()

	req := coap.Addressed[coap.Message]{
		Addr:  serverAddr,
		Value: coap.Message{Type: coap.Confirmable, Code: coap.NewCode(0, 1), Id: 42},
	}
	if err := e.Ack(req); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if got := e.flingQ.Len(); got != 1 {
		t.Fatalf("expected 1 fling entry, got %d", got)
	}

	if _, err := e.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	sent := sock.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 datagram sent, got %d", len(sent))
	}
	ackMsg, err := coap.Unmarshal(sent[0].Value)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if ackMsg.Type != coap.Ack {
		t.Fatalf("expected ACK type, got %v", ackMsg.Type)
	}
	if ackMsg.Code != coap.CodeEmpty {
		t.Fatalf("expected empty code, got %v", ackMsg.Code)
	}
}

// TestAckNoopForNonConfirmable confirms Ack does nothing for a message
// that doesn't need one.
func TestAckNoopForNonConfirmable(t *testing.T) {
	e, _, _ := newTestEngine()

	req := coap.Addressed[coap.Message]{
		Addr:  serverAddr,
		Value: coap.Message{Type: coap.NonConfirmable, Code: coap.NewCode(0, 1), Id: 7},
	}
	if err := e.Ack(req); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if got := e.flingQ.Len(); got != 0 {
		t.Fatalf("expected no fling entry for a non-confirmable message, got %d", got)
	}
}

// TestPollReq confirms an inbound request datagram comes back parsed and
// addressed.
func TestPollReq(t *testing.T) {
	e, sock, _ := newTestEngine()

	req := coap.Message{
		Type: coap.Confirmable,
		Code: coap.NewCode(0, 1), // GET
		Id:   7,
		Options: []coap.Option{
			{Number: coap.OptionURIPath, Value: []byte("hello")},
		},
	}
	bytes, err := coap.Marshal(req, coap.MaxMessageSize)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	sock.Deliver(coap.Addressed[[]byte]{Value: bytes, Addr: serverAddr})

	got, err := e.PollReq()
	if err != nil {
		t.Fatalf("PollReq: %v", err)
	}
	if got.Value.Id != req.Id || got.Addr != serverAddr {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.Value.Code != req.Code {
		t.Fatalf("unexpected code: %v", got.Value.Code)
	}
}

// TestPollReqWouldBlock confirms PollReq reports ErrWouldBlock when
// nothing has arrived.
func TestPollReqWouldBlock(t *testing.T) {
	e, _, _ := newTestEngine()

	if _, err := e.PollReq(); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("expected ErrWouldBlock, got %v", err)
	}
}
