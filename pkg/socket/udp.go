//go:build linux

package socket

import (
	"errors"
	"net"
	"time"

	"github.com/higebu/netfd"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/simeonmiteff/go-coap/pkg/coap"
)

// UDP is the production Socket, backed by a bound *net.UDPConn. It
// recovers the raw file descriptor via netfd the same way the teacher's
// pkg/exporter collector does for a wrapped net.Conn, and uses it to tune
// socket buffering the way pkg/linux tunes TCP_INFO parsing per kernel
// version — here the "version" axis is just "did the tuning succeed",
// logged and otherwise ignored.
type UDP struct {
	conn *net.UDPConn
	log  *logrus.Logger
}

// Listen binds a UDP socket on laddr (host:port), applies best-effort
// socket tuning, and returns a ready-to-poll Socket.
func Listen(laddr string, log *logrus.Logger) (*UDP, error) {
	addr, err := net.ResolveUDPAddr("udp4", laddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	u := &UDP{conn: conn, log: log}
	u.tune()
	return u, nil
}

func (u *UDP) tune() {
	fd := netfd.GetFdFromConn(u.conn)
	if fd <= 0 {
		u.log.Debug("coap: could not recover fd for socket tuning")
		return
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, 1<<20); err != nil {
		u.log.WithError(err).Debug("coap: SO_RCVBUF tuning failed")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		u.log.WithError(err).Debug("coap: SO_REUSEADDR tuning failed")
	}
}

// Close releases the underlying socket.
func (u *UDP) Close() error {
	return u.conn.Close()
}

// Poll reads one pending datagram without blocking: a zero-duration read
// deadline turns the blocking ReadFromUDP into "return now, one way or
// another".
func (u *UDP) Poll() (*coap.Addressed[[]byte], error) {
	buf := make([]byte, coap.MaxMessageSize)
	if err := u.conn.SetReadDeadline(time.Now()); err != nil {
		return nil, err
	}
	n, raddr, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, nil
		}
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return nil, nil
		}
		return nil, err
	}
	a, err := coap.AddrFromUDP(raddr)
	if err != nil {
		return nil, err
	}
	dgram := coap.Addressed[[]byte]{Value: append([]byte(nil), buf[:n]...), Addr: a}
	return &dgram, nil
}

// Send writes d.Value to d.Addr, translating a short write deadline into
// ErrWouldBlock rather than a hard failure.
func (u *UDP) Send(d coap.Addressed[[]byte]) error {
	if err := u.conn.SetWriteDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
		return err
	}
	_, err := u.conn.WriteToUDP(d.Value, d.Addr.UDPAddr())
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrWouldBlock
	}
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
		return ErrWouldBlock
	}
	return err
}
