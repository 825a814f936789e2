package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diffeo/go-counter/auth"
)

const sample = `
http: "127.0.0.1:8080"
backend: "sqlite:/var/lib/counter.db"
log_level: debug
log_requests: true
debug: true
auth:
  mode: bearer
  issuer: https://login.example.com/tenant/v2.0
  audience: api://counter
  refresh_interval: 15m
cors:
  allowed_origins: ["https://example.com"]
  allowed_methods: [GET, POST]
  allow_credentials: true
`

func writeFile(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "counterd.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeFile(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.HTTP)
	assert.Equal(t, "sqlite:/var/lib/counter.db", cfg.Backend)
	assert.True(t, cfg.LogRequests)
	assert.True(t, cfg.Debug)
	assert.Equal(t, auth.Config{
		Mode:            auth.ModeBearer,
		Issuer:          "https://login.example.com/tenant/v2.0",
		Audience:        "api://counter",
		RefreshInterval: 15 * time.Minute,
	}, cfg.Auth)

	assert.Equal(t, []string{"https://example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, []string{"GET", "POST"}, cfg.CORS.AllowedMethods)
	assert.True(t, cfg.CORS.AllowCredentials)
	// not in the file, so defaulted
	assert.Equal(t, Default().CORS.AllowedHeaders, cfg.CORS.AllowedHeaders)
	assert.Equal(t, 300, cfg.CORS.MaxAge)

	level, err := cfg.Level()
	if assert.NoError(t, err) {
		assert.Equal(t, logrus.DebugLevel, level)
	}
}

func TestLoadFunctionKeys(t *testing.T) {
	cfg, err := Load(writeFile(t, `
auth:
  mode: function
  keys:
    default: abc123
    ops: def456
`))
	require.NoError(t, err)
	assert.Equal(t, auth.ModeFunction, cfg.Auth.Mode)
	assert.Equal(t, map[string]string{"default": "abc123", "ops": "def456"}, cfg.Auth.Keys)
	assert.Equal(t, Default().HTTP, cfg.HTTP)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "http: [unterminated"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "htttp: \":80\"\n"))
	assert.Error(t, err, "unknown keys are rejected")
}

func TestDefault(t *testing.T) {
	cfg, err := Decode(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	level, err := Config{}.Level()
	if assert.NoError(t, err) {
		assert.Equal(t, logrus.InfoLevel, level)
	}
	_, err = Config{LogLevel: "chatty"}.Level()
	assert.Error(t, err)
}

func TestCORSOptions(t *testing.T) {
	opts := Default().CORS.Options()
	assert.Equal(t, []string{"*"}, opts.AllowedOrigins)
	assert.Contains(t, opts.AllowedHeaders, "If-Match")
	assert.Equal(t, []string{"ETag"}, opts.ExposedHeaders)
}
