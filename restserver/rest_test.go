// Tests for the REST server's HTTP behavior.
//
// Counter semantics are tested end-to-end by running the countertest
// suite through restclient.  This covers status codes, headers, and
// special cases the client hides.
//
// Copyright 2016-2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restserver

import (
	gocontext "context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diffeo/go-counter/auth"
	"github.com/diffeo/go-counter/counter"
	"github.com/diffeo/go-counter/memory"
	"github.com/diffeo/go-counter/restdata"
)

var epoch = time.Date(2017, 3, 14, 15, 9, 26, 0, time.UTC)

func newTestRouter(t *testing.T, opts Options) http.Handler {
	mock := clock.NewMock()
	mock.Set(epoch)
	service := &counter.Service{Store: memory.New(), Clock: mock}
	if opts.Clock == nil {
		opts.Clock = mock
	}
	return NewRouter(service, opts)
}

type request struct {
	Method  string
	Path    string
	Body    string
	Headers map[string]string
}

func (r request) do(h http.Handler) *httptest.ResponseRecorder {
	var req *http.Request
	if r.Body == "" {
		req = httptest.NewRequest(r.Method, r.Path, nil)
	} else {
		req = httptest.NewRequest(r.Method, r.Path, strings.NewReader(r.Body))
		req.Header.Set("Content-Type", "application/json")
	}
	for name, value := range r.Headers {
		req.Header.Set(name, value)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func decodeCounter(t *testing.T, resp *httptest.ResponseRecorder) restdata.Counter {
	var c restdata.Counter
	require.NoError(t, restdata.Decode(resp.Header().Get("Content-Type"), resp.Body, &c))
	return c
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) restdata.ErrorResponse {
	var e restdata.ErrorResponse
	require.NoError(t, restdata.Decode(resp.Header().Get("Content-Type"), resp.Body, &e))
	return e
}

func TestGetCreatesZero(t *testing.T) {
	router := newTestRouter(t, Options{})
	resp := request{Method: "GET", Path: "/counter"}.do(router)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, restdata.V1JSONMediaType, resp.Header().Get("Content-Type"))
	assert.Equal(t, `"1"`, resp.Header().Get("ETag"))

	c := decodeCounter(t, resp)
	assert.Equal(t, counter.DefaultID, c.ID)
	assert.Equal(t, int64(0), c.Count)
	assert.Equal(t, restdata.GetAction, c.Action)
	assert.Equal(t, "/counter", c.URL)
	assert.True(t, epoch.Equal(c.CreatedAt))

	// Reading again does not write again
	resp = request{Method: "GET", Path: "/counter"}.do(router)
	assert.Equal(t, `"1"`, resp.Header().Get("ETag"))
}

func TestHead(t *testing.T) {
	router := newTestRouter(t, Options{})
	resp := request{Method: "HEAD", Path: "/counter"}.do(router)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, `"1"`, resp.Header().Get("ETag"))
	assert.Empty(t, resp.Body.String())
}

func TestPostActions(t *testing.T) {
	router := newTestRouter(t, Options{})
	steps := []struct {
		Body  string
		Count int64
	}{
		{`{"action":"increment"}`, 1},
		{`{"action":"increment"}`, 2},
		{`{"action":"decrement"}`, 1},
		{`{"action":"set","value":40}`, 40},
		{`{"value":-2}`, -2},
		{`{"action":"reset"}`, 0},
	}
	for _, step := range steps {
		resp := request{Method: "POST", Path: "/counter", Body: step.Body}.do(router)
		if assert.Equal(t, http.StatusOK, resp.Code, step.Body) {
			c := decodeCounter(t, resp)
			assert.Equal(t, step.Count, c.Count, step.Body)
			assert.Equal(t, auth.Anonymous, c.LastUser)
		}
	}
}

func TestPostBadRequests(t *testing.T) {
	router := newTestRouter(t, Options{})
	tests := []struct {
		Body  string
		Error string
	}{
		{``, "ErrMissingAction"},
		{`{}`, "ErrMissingAction"},
		{`{"action":"multiply"}`, "ErrBadAction"},
		{`{"action":"set"}`, "ErrMissingValue"},
	}
	for _, test := range tests {
		resp := request{Method: "POST", Path: "/counter/c", Body: test.Body}.do(router)
		if assert.Equal(t, http.StatusBadRequest, resp.Code, test.Body) {
			assert.Equal(t, test.Error, decodeError(t, resp).Error, test.Body)
		}
	}

	resp := request{Method: "POST", Path: "/counter/c", Body: `{"action":`}.do(router)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	// None of that created the counter
	resp = request{Method: "DELETE", Path: "/counter/c"}.do(router)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestUnsupportedMediaType(t *testing.T) {
	router := newTestRouter(t, Options{})
	resp := request{
		Method:  "POST",
		Path:    "/counter",
		Body:    "action=increment",
		Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
	}.do(router)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.Code)
}

func TestPut(t *testing.T) {
	router := newTestRouter(t, Options{})
	resp := request{Method: "PUT", Path: "/counter/hits", Body: `{"value":100}`}.do(router)
	if assert.Equal(t, http.StatusOK, resp.Code) {
		c := decodeCounter(t, resp)
		assert.Equal(t, "hits", c.ID)
		assert.Equal(t, int64(100), c.Count)
		assert.Equal(t, "set", c.Action)
		assert.Equal(t, "/counter/hits", c.URL)
	}

	resp = request{Method: "PUT", Path: "/counter/hits", Body: `{}`}.do(router)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "ErrMissingValue", decodeError(t, resp).Error)

	// No body at all is the same as an empty object
	resp = request{Method: "PUT", Path: "/counter/hits"}.do(router)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "ErrMissingValue", decodeError(t, resp).Error)
}

func TestDelete(t *testing.T) {
	router := newTestRouter(t, Options{})
	resp := request{Method: "DELETE", Path: "/counter"}.do(router)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	e := decodeError(t, resp)
	assert.Equal(t, "ErrNoSuchCounter", e.Error)
	assert.Equal(t, counter.DefaultID, e.Value)

	request{Method: "POST", Path: "/counter", Body: `{"action":"increment"}`}.do(router)
	resp = request{Method: "DELETE", Path: "/counter"}.do(router)
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = request{Method: "GET", Path: "/counter"}.do(router)
	assert.Equal(t, int64(0), decodeCounter(t, resp).Count)
}

func TestIfMatch(t *testing.T) {
	router := newTestRouter(t, Options{})
	resp := request{Method: "GET", Path: "/counter"}.do(router)
	tag := resp.Header().Get("ETag")

	resp = request{
		Method:  "POST",
		Path:    "/counter",
		Body:    `{"action":"increment"}`,
		Headers: map[string]string{"If-Match": tag},
	}.do(router)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, `"2"`, resp.Header().Get("ETag"))

	// The old tag is now stale
	resp = request{
		Method:  "POST",
		Path:    "/counter",
		Body:    `{"action":"increment"}`,
		Headers: map[string]string{"If-Match": tag},
	}.do(router)
	assert.Equal(t, http.StatusPreconditionFailed, resp.Code)
	assert.Equal(t, "ErrPrecondition", decodeError(t, resp).Error)

	resp = request{
		Method:  "PUT",
		Path:    "/counter",
		Body:    `{"value":1}`,
		Headers: map[string]string{"If-Match": "bogus"},
	}.do(router)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = request{
		Method:  "PUT",
		Path:    "/counter",
		Body:    `{"value":1}`,
		Headers: map[string]string{"If-Match": "*"},
	}.do(router)
	assert.Equal(t, http.StatusOK, resp.Code)

	// Version 0 is never current, so this cannot match
	resp = request{
		Method:  "PUT",
		Path:    "/counter",
		Body:    `{"value":7}`,
		Headers: map[string]string{"If-Match": `"0"`},
	}.do(router)
	assert.Equal(t, http.StatusPreconditionFailed, resp.Code)
	assert.Equal(t, "ErrPrecondition", decodeError(t, resp).Error)
	resp = request{Method: "GET", Path: "/counter"}.do(router)
	assert.Equal(t, int64(1), decodeCounter(t, resp).Count)
}

func TestEncodedID(t *testing.T) {
	router := newTestRouter(t, Options{})
	path := "/counter/" + restdata.EncodeID("a/b c")
	resp := request{Method: "POST", Path: path, Body: `{"action":"increment"}`}.do(router)
	if assert.Equal(t, http.StatusOK, resp.Code) {
		c := decodeCounter(t, resp)
		assert.Equal(t, "a/b c", c.ID)
		assert.Equal(t, path, c.URL)
	}

	// "-" alone decodes to the empty ID
	resp = request{Method: "GET", Path: "/counter/-"}.do(router)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "ErrBadCounterID", decodeError(t, resp).Error)
}

func TestMethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, Options{})
	resp := request{Method: "PATCH", Path: "/counter", Body: `{"value":1}`}.do(router)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Code)
}

func TestFunctionKeyAuth(t *testing.T) {
	a, err := auth.New(auth.Config{
		Mode: auth.ModeFunction,
		Keys: map[string]string{"ops": "k1"},
	})
	require.NoError(t, err)
	router := newTestRouter(t, Options{Auth: a})

	resp := request{Method: "GET", Path: "/counter"}.do(router)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "ErrUnauthorized", decodeError(t, resp).Error)

	resp = request{Method: "POST", Path: "/counter?code=nope", Body: `{"action":"increment"}`}.do(router)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = request{
		Method:  "POST",
		Path:    "/counter",
		Body:    `{"action":"increment"}`,
		Headers: map[string]string{auth.KeyHeader: "k1"},
	}.do(router)
	if assert.Equal(t, http.StatusOK, resp.Code) {
		assert.Equal(t, "ops", decodeCounter(t, resp).LastUser)
	}

	// The root and health check are open
	resp = request{Method: "GET", Path: "/"}.do(router)
	assert.Equal(t, http.StatusOK, resp.Code)
	resp = request{Method: "GET", Path: "/healthz"}.do(router)
	assert.Equal(t, http.StatusOK, resp.Code)
}

// brokenAuth fails the way an unreachable identity provider does.
type brokenAuth struct{}

func (brokenAuth) Mode() string { return "broken" }

func (brokenAuth) Authenticate(*http.Request) (auth.User, error) {
	return auth.User{}, errors.New("fetching key set: connection refused")
}

func TestAuthenticatorFailure(t *testing.T) {
	router := newTestRouter(t, Options{Auth: brokenAuth{}})
	resp := request{Method: "POST", Path: "/counter", Body: `{"action":"increment"}`}.do(router)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	e := decodeError(t, resp)
	assert.Equal(t, "error", e.Error)
	assert.Contains(t, e.Message, "fetching key set")

	// Client mistakes found before authentication keep their status
	resp = request{Method: "GET", Path: "/counter/-"}.do(router)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestRoot(t *testing.T) {
	router := newTestRouter(t, Options{})
	resp := request{Method: "GET", Path: "/"}.do(router)
	require.Equal(t, http.StatusOK, resp.Code)
	var root restdata.RootData
	require.NoError(t, restdata.Decode(resp.Header().Get("Content-Type"), resp.Body, &root))
	assert.Equal(t, restdata.RootData{
		DefaultCounterURL: "/counter",
		CounterURL:        "/counter/{id}",
		HealthURL:         "/healthz",
	}, root)

	router = newTestRouter(t, Options{Debug: true})
	resp = request{Method: "GET", Path: "/"}.do(router)
	root = restdata.RootData{}
	require.NoError(t, restdata.Decode(resp.Header().Get("Content-Type"), resp.Body, &root))
	assert.Equal(t, "/debug", root.DebugURL)
}

func TestDebug(t *testing.T) {
	router := newTestRouter(t, Options{})
	resp := request{Method: "GET", Path: "/debug"}.do(router)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	router = newTestRouter(t, Options{Debug: true, Backend: "memory"})
	resp = request{
		Method:  "GET",
		Path:    "/debug",
		Headers: map[string]string{"Authorization": "Bearer secret"},
	}.do(router)
	require.Equal(t, http.StatusOK, resp.Code)
	var debug restdata.DebugData
	require.NoError(t, restdata.Decode(resp.Header().Get("Content-Type"), resp.Body, &debug))
	assert.Equal(t, "memory", debug.Backend)
	assert.Equal(t, auth.ModeAnonymous, debug.AuthMode)
	assert.Equal(t, auth.Anonymous, debug.User)
	assert.Equal(t, []string{"REDACTED"}, debug.Headers["Authorization"])
	assert.True(t, epoch.Equal(debug.ServerTime))
}

func TestNotAcceptable(t *testing.T) {
	router := newTestRouter(t, Options{})
	// Negotiation failures still produce a JSON error
	resp := request{
		Method:  "GET",
		Path:    "/counter",
		Headers: map[string]string{"Accept": "text/html"},
	}.do(router)
	assert.Equal(t, http.StatusNotAcceptable, resp.Code)
	assert.Equal(t, restdata.V1JSONMediaType, resp.Header().Get("Content-Type"))

	resp = request{
		Method:  "GET",
		Path:    "/counter",
		Headers: map[string]string{"Accept": "text/html, application/json;q=0.5"},
	}.do(router)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))
}

// panicCounters panics on every call.
type panicCounters struct{}

func (panicCounters) Counter(gocontext.Context, string) (counter.Record, error) {
	panic("boom")
}

func (panicCounters) Apply(gocontext.Context, string, counter.Operation, string) (counter.Record, error) {
	panic("boom")
}

func (panicCounters) Delete(gocontext.Context, string) error {
	panic("boom")
}

func TestPanic(t *testing.T) {
	router := NewRouter(panicCounters{}, Options{})
	resp := request{Method: "GET", Path: "/counter"}.do(router)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	e := decodeError(t, resp)
	assert.Equal(t, "panic", e.Error)
	assert.Equal(t, "boom", e.Message)
	assert.NotEmpty(t, e.Stack)
}

// failingStore fails every operation.
type failingStore struct{}

var errStoreDown = errors.New("store is down")

func (failingStore) Get(gocontext.Context, string) (counter.Record, error) {
	return counter.Record{}, errStoreDown
}

func (failingStore) Put(gocontext.Context, counter.Record) (counter.Record, error) {
	return counter.Record{}, errStoreDown
}

func (failingStore) Delete(gocontext.Context, string) error { return errStoreDown }
func (failingStore) Close() error                           { return nil }

func TestStoreFailure(t *testing.T) {
	router := NewRouter(counter.NewService(failingStore{}), Options{})
	resp := request{Method: "POST", Path: "/counter", Body: `{"action":"increment"}`}.do(router)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	e := decodeError(t, resp)
	assert.Equal(t, "error", e.Error)
	assert.Contains(t, e.Message, "store is down")
}

type failResponseWriter struct {
	Headers    http.Header
	StatusCode int
}

func (rw *failResponseWriter) Header() http.Header {
	if rw.Headers == nil {
		rw.Headers = make(http.Header)
	}
	return rw.Headers
}

func (rw *failResponseWriter) Write([]byte) (int, error) {
	return 0, errors.New("foo")
}

func (rw *failResponseWriter) WriteHeader(code int) {
	rw.StatusCode = code
}

// TestDoubleFault checks that, if there is an error serializing a JSON
// response, it doesn't actually panic the process.
func TestDoubleFault(t *testing.T) {
	router := newTestRouter(t, Options{})
	req := &http.Request{
		Method: http.MethodGet,
		URL: &url.URL{
			Path: "/counter",
		},
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{},
		Close:      true,
		Host:       "localhost",
	}
	resp := &failResponseWriter{}
	router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNegotiateResponse(t *testing.T) {
	tests := []struct {
		accept string
		out    string
		status int
	}{
		{"", restdata.V1JSONMediaType, 0},
		{"*/*", restdata.V1JSONMediaType, 0},
		{"application/*", restdata.V1JSONMediaType, 0},
		{"text/*", "text/json", 0},
		{"application/json", "application/json", 0},
		{"*/*, application/json", "application/json", 0},
		{"text/*, application/*", "text/json", 0},
		{"application/json;q=0.5, text/json", "text/json", 0},
		{"application/json;q=0.5, */*;q=0.9", restdata.V1JSONMediaType, 0},
		{"application/json;q=0", "", http.StatusNotAcceptable},
		{"image/png", "", http.StatusNotAcceptable},
		{"application/json;q=2", "", http.StatusInternalServerError},
		{"application/json;q=high", "", http.StatusInternalServerError},
		{"/", "", http.StatusInternalServerError},
	}
	for _, test := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		if test.accept != "" {
			req.Header.Set("Accept", test.accept)
		}
		out, err := negotiateResponse(req)
		if test.status == 0 {
			if assert.NoError(t, err, test.accept) {
				assert.Equal(t, test.out, out, test.accept)
			}
		} else if assert.Error(t, err, test.accept) {
			assert.Equal(t, test.status, restdata.Status(err), test.accept)
		}
	}
}
