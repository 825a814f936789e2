// Copyright 2015-2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Command counterd runs the persistent counter REST service.
//
// Settings come from an optional YAML file named by -config; any
// command-line flag given explicitly overrides the file.
package main

import (
	"flag"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/diffeo/go-counter/auth"
	"github.com/diffeo/go-counter/backend"
	"github.com/diffeo/go-counter/config"
	"github.com/diffeo/go-counter/counter"
)

func main() {
	var err error

	httpBind := flag.String("http", ":5980",
		"[ip]:port for HTTP REST interface")
	backend := backend.Backend{Implementation: "memory", Address: ""}
	flag.Var(&backend, "backend", "impl[:address] of the storage backend")
	configFile := flag.String("config", "", "global configuration YAML file")
	logRequests := flag.Bool("log-requests", false, "log all requests")
	debug := flag.Bool("debug", false, "serve the /debug endpoint")
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		cfg, err = config.Load(*configFile)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"err":  err,
				"file": *configFile,
			}).Fatal("Could not load YAML configuration")
			return
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http":
			cfg.HTTP = *httpBind
		case "backend":
			cfg.Backend = backend.String()
		case "log-requests":
			cfg.LogRequests = *logRequests
		case "debug":
			cfg.Debug = *debug
		}
	})

	level, err := cfg.Level()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"err": err,
		}).Fatal("Invalid log level")
		return
	}
	logrus.SetLevel(level)

	err = backend.Set(cfg.Backend)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"err": err,
		}).Fatal("Invalid counter backend")
		return
	}
	store, err := backend.Store()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"err":     err,
			"backend": backend.Redacted(),
		}).Fatal("Could not create counter backend")
		return
	}
	defer store.Close()

	authenticator, err := auth.New(cfg.Auth)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"err":  err,
			"mode": cfg.Auth.Mode,
		}).Fatal("Could not set up authentication")
		return
	}
	if closer, ok := authenticator.(io.Closer); ok {
		defer closer.Close()
	}

	var reqLogger *logrus.Logger
	if cfg.LogRequests {
		stdlog := logrus.StandardLogger()
		reqLogger = &logrus.Logger{
			Out:       stdlog.Out,
			Formatter: stdlog.Formatter,
			Hooks:     stdlog.Hooks,
			Level:     logrus.DebugLevel,
		}
	}

	h := HTTP{
		Counters:  observed{counter.NewService(store)},
		Auth:      authenticator,
		Config:    cfg,
		Backend:   backend.Redacted(),
		ReqLogger: reqLogger,
	}
	logrus.WithFields(logrus.Fields{
		"http":    cfg.HTTP,
		"backend": h.Backend,
		"auth":    authenticator.Mode(),
	}).Info("Starting counterd")
	err = h.Serve()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"err": err,
		}).Error("HTTP server failed")
	}
}
