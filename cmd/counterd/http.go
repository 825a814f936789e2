// Copyright 2015 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
	"github.com/urfave/negroni"

	"github.com/diffeo/go-counter/auth"
	"github.com/diffeo/go-counter/config"
	"github.com/diffeo/go-counter/counter"
	"github.com/diffeo/go-counter/restserver"
)

// RequestIDHeader carries a per-request identifier, generated if the
// caller does not send one.
const RequestIDHeader = "X-Request-Id"

// shutdownTimeout bounds how long in-flight requests get on shutdown.
const shutdownTimeout = 10 * time.Second

// HTTP serves counterd connections.
type HTTP struct {
	Counters counter.Counters
	Auth     auth.Authenticator
	Config   config.Config

	// Backend describes the store in debug output, without
	// credentials.
	Backend string

	// ReqLogger, if not nil, logs every request at debug level.
	ReqLogger *logrus.Logger
}

// Handler builds the complete middleware chain and router.
func (h *HTTP) Handler() http.Handler {
	r := mux.NewRouter()
	restserver.PopulateRouter(r, h.Counters, restserver.Options{
		Auth:    h.Auth,
		Debug:   h.Config.Debug,
		Backend: h.Backend,
	})
	r.Handle("/metrics", promhttp.Handler())

	recovery := negroni.NewRecovery()
	recovery.Logger = logrus.StandardLogger()
	recovery.PrintStack = false

	n := negroni.New()
	n.Use(recovery)
	n.Use(negroni.HandlerFunc(requestID))
	if h.ReqLogger != nil {
		n.Use(requestLogger(h.ReqLogger))
	}
	n.Use(negroni.HandlerFunc(countRequests))
	n.Use(cors.New(h.Config.CORS.Options()))
	n.UseHandler(r)
	return n
}

// Serve runs an HTTP server on the configured address until it fails
// or the process receives SIGINT or SIGTERM.
func (h *HTTP) Serve() error {
	srv := &http.Server{
		Addr:              h.Config.HTTP,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case err := <-errs:
		return err
	case sig := <-sigs:
		logrus.WithFields(logrus.Fields{
			"signal": sig.String(),
		}).Info("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

func requestID(rw http.ResponseWriter, req *http.Request, next http.HandlerFunc) {
	id := req.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewV4().String()
		req.Header.Set(RequestIDHeader, id)
	}
	rw.Header().Set(RequestIDHeader, id)
	next(rw, req)
}

func requestLogger(logger *logrus.Logger) negroni.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request, next http.HandlerFunc) {
		start := time.Now()
		next(rw, req)
		status := 0
		if res, ok := rw.(negroni.ResponseWriter); ok {
			status = res.Status()
		}
		logger.WithFields(logrus.Fields{
			"request_id": req.Header.Get(RequestIDHeader),
			"method":     req.Method,
			"path":       req.URL.Path,
			"remote":     req.RemoteAddr,
			"status":     status,
			"duration":   time.Since(start),
		}).Debug("HTTP request")
	}
}

func countRequests(rw http.ResponseWriter, req *http.Request, next http.HandlerFunc) {
	next(rw, req)
	code := http.StatusOK
	if res, ok := rw.(negroni.ResponseWriter); ok && res.Status() != 0 {
		code = res.Status()
	}
	httpRequests.WithLabelValues(req.Method, strconv.Itoa(code)).Inc()
}
