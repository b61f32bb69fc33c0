package socket

import "github.com/simeonmiteff/go-coap/pkg/coap"

// Mock is an in-memory Socket double for tests, grounded in the
// original's test-only SockMock: a queue of inbound datagrams to hand
// back from Poll and a log of whatever was handed to Send.
type Mock struct {
	rx      []coap.Addressed[[]byte]
	sent    []coap.Addressed[[]byte]
	sendErr error
}

// NewMock returns an empty Mock.
func NewMock() *Mock {
	return &Mock{}
}

// Deliver enqueues a datagram for the next Poll call to return.
func (m *Mock) Deliver(d coap.Addressed[[]byte]) {
	m.rx = append(m.rx, d)
}

// FailSends makes every subsequent Send return err until ClearSendError
// is called. Passing ErrWouldBlock simulates a transport that's
// momentarily full.
func (m *Mock) FailSends(err error) {
	m.sendErr = err
}

// ClearSendError removes any configured Send failure.
func (m *Mock) ClearSendError() {
	m.sendErr = nil
}

// Poll returns the oldest undelivered datagram, if any.
func (m *Mock) Poll() (*coap.Addressed[[]byte], error) {
	if len(m.rx) == 0 {
		return nil, nil
	}
	d := m.rx[0]
	m.rx = m.rx[1:]
	return &d, nil
}

// Send records d unless a failure is configured.
func (m *Mock) Send(d coap.Addressed[[]byte]) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, d)
	return nil
}

// Sent returns every datagram accepted by Send so far, in order.
func (m *Mock) Sent() []coap.Addressed[[]byte] {
	return m.sent
}
