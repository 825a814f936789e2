package main

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diffeo/go-counter/auth"
	"github.com/diffeo/go-counter/config"
	"github.com/diffeo/go-counter/counter"
	"github.com/diffeo/go-counter/memory"
)

func newTestHTTP(t *testing.T, cfg config.Config) *HTTP {
	a, err := auth.New(cfg.Auth)
	require.NoError(t, err)
	return &HTTP{
		Counters: observed{counter.NewService(memory.New())},
		Auth:     a,
		Config:   cfg,
		Backend:  "memory",
	}
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestPreflight(t *testing.T) {
	h := newTestHTTP(t, config.Default()).Handler()
	req := httptest.NewRequest(http.MethodOptions, "/counter", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "If-Match")
	resp := serve(h, req)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestCORSDisallowedOrigin(t *testing.T) {
	cfg := config.Default()
	cfg.CORS.AllowedOrigins = []string{"https://good.example.com"}
	h := newTestHTTP(t, cfg).Handler()

	req := httptest.NewRequest(http.MethodGet, "/counter", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp := serve(h, req)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/counter", nil)
	req.Header.Set("Origin", "https://good.example.com")
	resp = serve(h, req)
	assert.Equal(t, "https://good.example.com", resp.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, resp.Header().Get("Access-Control-Expose-Headers"))
}

func TestRequestID(t *testing.T) {
	h := newTestHTTP(t, config.Default()).Handler()

	resp := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, resp.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc123")
	resp = serve(h, req)
	assert.Equal(t, "abc123", resp.Header().Get(RequestIDHeader))
}

func TestRequestLogging(t *testing.T) {
	h := newTestHTTP(t, config.Default())
	logger := logrus.New()
	logger.Level = logrus.DebugLevel
	logger.Out = ioutil.Discard
	h.ReqLogger = logger
	resp := serve(h.Handler(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHTTP(t, config.Default()).Handler()
	serve(h, httptest.NewRequest(http.MethodGet, "/counter", nil))

	resp := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "diffeo_counter_http_requests_total")
	assert.Contains(t, resp.Body.String(), "diffeo_counter_value")
}

func TestDebugDisabled(t *testing.T) {
	h := newTestHTTP(t, config.Default()).Handler()
	resp := serve(h, httptest.NewRequest(http.MethodGet, "/debug", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	cfg := config.Default()
	cfg.Debug = true
	h = newTestHTTP(t, cfg).Handler()
	resp = serve(h, httptest.NewRequest(http.MethodGet, "/debug", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.NotContains(t, resp.Body.String(), "hunter2")
}

func TestAuthChain(t *testing.T) {
	cfg := config.Default()
	cfg.Auth = auth.Config{Mode: auth.ModeFunction, Keys: map[string]string{"ops": "k1"}}
	h := newTestHTTP(t, cfg).Handler()

	resp := serve(h, httptest.NewRequest(http.MethodGet, "/counter", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = serve(h, httptest.NewRequest(http.MethodGet, "/counter?code=k1", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestObserved(t *testing.T) {
	ctx := context.Background()
	c := observed{counter.NewService(memory.New())}
	id := "observed-test"

	before := testutil.ToFloat64(counterOperations.WithLabelValues("increment", "ok"))
	_, err := c.Apply(ctx, id, counter.Operation{Action: counter.Increment}, "alice")
	require.NoError(t, err)
	_, err = c.Apply(ctx, id, counter.Operation{Action: counter.Increment}, "alice")
	require.NoError(t, err)
	assert.Equal(t, before+2, testutil.ToFloat64(counterOperations.WithLabelValues("increment", "ok")))
	assert.Equal(t, float64(2), testutil.ToFloat64(counterValue.WithLabelValues(id)))

	_, err = c.Apply(ctx, id, counter.Operation{Action: counter.Set, Value: -7}, "alice")
	require.NoError(t, err)
	assert.Equal(t, float64(-7), testutil.ToFloat64(counterValue.WithLabelValues(id)))

	before = testutil.ToFloat64(counterOperations.WithLabelValues("delete", "404"))
	require.NoError(t, c.Delete(ctx, id))
	assert.Equal(t, counter.ErrNoSuchCounter{ID: id}, c.Delete(ctx, id))
	assert.Equal(t, before+1, testutil.ToFloat64(counterOperations.WithLabelValues("delete", "404")))
}
