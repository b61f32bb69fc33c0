/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package main

import (
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/simeonmiteff/go-coap/pkg/clock"
	"github.com/simeonmiteff/go-coap/pkg/config"
	"github.com/simeonmiteff/go-coap/pkg/engine"
	"github.com/simeonmiteff/go-coap/pkg/socket"
)

func main() {
	laddr := "0.0.0.0:5683"
	if len(os.Args) > 1 {
		laddr = os.Args[1]
	}
	listenAddr := ":18080"
	if len(os.Args) > 2 {
		listenAddr = os.Args[2]
	}

	sock, err := socket.Listen(laddr, logrus.StandardLogger())
	if err != nil {
		logrus.Fatalf("listen: %v", err)
	}
	defer sock.Close()

	e := engine.New(sock, clock.NewStd(), config.New().Build(), logrus.StandardLogger())

	prometheus.MustRegister(e.Metrics())

	go func() {
		for {
			if _, err := e.Tick(); err != nil {
				logrus.WithError(err).Warn("coap: tick reported an error")
			}
		}
	}()

	logrus.Infof("coap-metrics: serving /metrics on %s, engine bound to %s", listenAddr, laddr)
	http.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(listenAddr, nil); err != nil {
		logrus.Fatalf("serve: %v", err)
	}
}
