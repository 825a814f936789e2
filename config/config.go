// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package config reads the counter server's YAML configuration file.
//
// A typical file looks like
//
//	http: ":5980"
//	backend: "postgres:postgres://localhost/counter?sslmode=disable"
//	log_level: info
//	log_requests: true
//	debug: false
//	auth:
//	  mode: function
//	  keys:
//	    default: "a-long-random-string"
//	cors:
//	  allowed_origins: ["https://example.com"]
//
// Every key is optional; command-line flags override the file.
package config

import (
	"io/ioutil"
	"net/http"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/diffeo/go-counter/auth"
)

// Config is the complete server configuration.
type Config struct {
	// HTTP is the [ip]:port the server listens on.
	HTTP string `mapstructure:"http"`

	// Backend is the impl[:address] of the counter store.
	Backend string `mapstructure:"backend"`

	// LogLevel is a logrus level name.
	LogLevel string `mapstructure:"log_level"`

	// LogRequests enables logging of every HTTP request.
	LogRequests bool `mapstructure:"log_requests"`

	// Debug enables the /debug endpoint.
	Debug bool `mapstructure:"debug"`

	Auth auth.Config `mapstructure:"auth"`
	CORS CORS        `mapstructure:"cors"`
}

// CORS configures cross-origin request handling.
type CORS struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// Default returns the configuration used when there is no file.
func Default() Config {
	return Config{
		HTTP:     ":5980",
		Backend:  "memory",
		LogLevel: "info",
		Auth:     auth.Config{Mode: auth.ModeAnonymous},
		CORS: CORS{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{
				http.MethodGet,
				http.MethodHead,
				http.MethodPost,
				http.MethodPut,
				http.MethodDelete,
			},
			AllowedHeaders: []string{
				"Accept",
				"Authorization",
				"Content-Type",
				"If-Match",
				auth.KeyHeader,
				auth.TokenHeader,
			},
			ExposedHeaders: []string{"ETag"},
			MaxAge:         300,
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(filename string) (Config, error) {
	bytes, err := ioutil.ReadFile(filename)
	if err != nil {
		return Config{}, err
	}
	var raw map[string]interface{}
	if err = yaml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, errors.Wrapf(err, "parsing %s", filename)
	}
	cfg, err := Decode(raw)
	return cfg, errors.Wrapf(err, "reading %s", filename)
}

// Decode overlays a generic map, as produced by a YAML or JSON
// parser, onto the defaults.  Unknown keys are an error.
func Decode(raw map[string]interface{}) (Config, error) {
	cfg := Default()
	if len(raw) == 0 {
		return cfg, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		ZeroFields:       true,
		Result:           &cfg,
	})
	if err != nil {
		return cfg, err
	}
	err = decoder.Decode(raw)
	return cfg, err
}

// Level returns the configured logrus level.
func (c Config) Level() (logrus.Level, error) {
	if c.LogLevel == "" {
		return logrus.InfoLevel, nil
	}
	return logrus.ParseLevel(c.LogLevel)
}

// Options converts to rs/cors options.
func (c CORS) Options() cors.Options {
	return cors.Options{
		AllowedOrigins:   c.AllowedOrigins,
		AllowedMethods:   c.AllowedMethods,
		AllowedHeaders:   c.AllowedHeaders,
		ExposedHeaders:   c.ExposedHeaders,
		AllowCredentials: c.AllowCredentials,
		MaxAge:           c.MaxAge,
	}
}
