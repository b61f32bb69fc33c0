// coap-client sends a single confirmable GET (or, with no path, a bare
// ping) to a CoAP server and prints whatever comes back, grounded in the
// teacher's cmd/get: a package-level logrus logger, os.Args for the
// target instead of a flags package, and a single happy-path run that
// logrus.Fatalf's out on the first error.
package main

import (
	"errors"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/simeonmiteff/go-coap/pkg/clock"
	"github.com/simeonmiteff/go-coap/pkg/coap"
	"github.com/simeonmiteff/go-coap/pkg/config"
	"github.com/simeonmiteff/go-coap/pkg/engine"
	"github.com/simeonmiteff/go-coap/pkg/socket"
)

func main() {
	target := "127.0.0.1:5683"
	if len(os.Args) > 1 {
		target = os.Args[1]
	}
	var path string
	if len(os.Args) > 2 {
		path = os.Args[2]
	}

	host, port, err := engine.ParseURIPort(target)
	if err != nil {
		logrus.Fatalf("parse target: %v", err)
	}

	sock, err := socket.Listen("0.0.0.0:0", logrus.StandardLogger())
	if err != nil {
		logrus.Fatalf("listen: %v", err)
	}
	defer sock.Close()

	e := engine.New(sock, clock.NewStd(), config.New().Build(), logrus.StandardLogger())

	if path == "" {
		ping(e, host, port)
		return
	}
	get(e, host, port, path)
}

func ping(e *engine.Engine, host string, port uint16) {
	id, addr, err := e.Ping(host, port)
	if err != nil {
		logrus.Fatalf("ping: %v", err)
	}
	logrus.Infof("ping sent to %s id=%d", addr, id)

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		err := e.PollPing(id, addr)
		if err == nil {
			logrus.Infof("ping acknowledged by %s", addr)
			return
		}
		if errors.Is(err, engine.ErrWouldBlock) {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		logrus.Fatalf("ping: %v", err)
	}
	logrus.Fatalf("ping: timed out waiting for %s", addr)
}

func get(e *engine.Engine, host string, port uint16, path string) {
	req := coap.Message{
		Type: coap.Confirmable,
		Code: coap.NewCode(0, 1), // GET
		Options: []coap.Option{
			{Number: coap.OptionURIHost, Value: []byte(host)},
			{Number: coap.OptionURIPort, Value: engine.EncodeURIPort(port)},
			{Number: coap.OptionURIPath, Value: []byte(path)},
		},
	}

	_, token, addr, err := e.SendReq(req)
	if err != nil {
		logrus.Fatalf("send: %v", err)
	}
	logrus.Infof("request sent to %s%s token=%s", addr, path, token)

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := e.PollResp(token, addr)
		if err == nil {
			logrus.Infof("response %s from %s: %d bytes", resp.Code, addr, len(resp.Payload))
			os.Stdout.Write(resp.Payload)
			os.Stdout.Write([]byte("\n"))
			return
		}
		if errors.Is(err, engine.ErrWouldBlock) {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		logrus.Fatalf("get: %v", err)
	}
	logrus.Fatalf("get: timed out waiting for %s", addr)
}
