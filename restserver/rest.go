// Copyright 2015-2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restserver

// This file contains the generic resource handler every route uses.
//
// A request goes through four steps: pick a response media type from
// the Accept: header, build a context from the URL and headers
// (authenticating if the route wants it), decode the body for PUT and
// POST, and call the per-method handler function.  A failure at any
// step becomes an ErrorResponse, with a status chosen by
// restdata.Status() or by the step that failed.

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/diffeo/go-counter/restdata"
)

// typeMap lists the media types we can produce, and the codec each
// uses.
var typeMap = map[string]string{
	"text/json":              restdata.V1JSONMediaType,
	"application/json":       restdata.V1JSONMediaType,
	restdata.JSONMediaType:   restdata.V1JSONMediaType,
	restdata.V1JSONMediaType: restdata.V1JSONMediaType,
}

// wildcardTypes maps Accept: wildcards to the type actually sent.
var wildcardTypes = map[string]string{
	"*/*":           restdata.V1JSONMediaType,
	"application/*": restdata.V1JSONMediaType,
	"text/*":        "text/json",
}

// errBadAccept is returned from negotiateResponse() if the Accept:
// header is malformed (and no more specific error applies).
var errBadAccept = errors.New("Invalid Accept: header")

// errNotAcceptable is returned from negotiateResponse() if the Accept:
// header does not mention any media types we can actually return.
type errNotAcceptable struct{}

func (e errNotAcceptable) Error() string {
	return "No acceptable representation for response"
}

func (e errNotAcceptable) HTTPStatus() int {
	return http.StatusNotAcceptable
}

// errMethodNotAllowed is returned if a resource has no handler for
// the request method.
type errMethodNotAllowed struct {
	Method string
}

func (e errMethodNotAllowed) Error() string {
	return fmt.Sprintf("Method %v not allowed", e.Method)
}

func (e errMethodNotAllowed) HTTPStatus() int {
	return http.StatusMethodNotAllowed
}

// responseTagged is returned as a value response from handler
// functions that want to send an ETag: header with the body.
type responseTagged struct {
	// ETag is the entity tag for the response.
	ETag string

	// Body contains the object sent in the body of the response.
	Body interface{}
}

// resourceHandler serves one REST resource.  Handler functions that
// return a nil body produce 204 No Content.
type resourceHandler struct {
	// Representation is a zero value of the request body type for
	// PUT and POST.  Handlers receive a decoded value of this
	// type.
	Representation interface{}

	// Context reads an HTTP request and produces a context object.
	Context func(req *http.Request) (*context, error)

	// Get, if non-nil, returns a representation of the object.
	// It also serves HEAD.
	Get func(*context) (interface{}, error)

	// Put, if non-nil, replaces the object.
	Put func(*context, interface{}) (interface{}, error)

	// Post, if non-nil, takes some action on the object.
	Post func(*context, interface{}) (interface{}, error)

	// Delete, if non-nil, deletes the object.
	Delete func(*context) (interface{}, error)
}

func (h *resourceHandler) ServeHTTP(resp http.ResponseWriter, req *http.Request) {
	defer recoverPanic(resp, req)

	mediaType, err := negotiateResponse(req)
	if err != nil {
		writeError(resp, req, restdata.V1JSONMediaType, err, http.StatusBadRequest)
		return
	}
	if !h.allows(req.Method) {
		writeError(resp, req, mediaType, errMethodNotAllowed{Method: req.Method}, http.StatusMethodNotAllowed)
		return
	}
	// Client mistakes here are already typed errors; anything
	// else, such as an unreachable identity provider, is ours.
	ctx, in, err := h.prepare(req)
	if err != nil {
		writeError(resp, req, mediaType, err, http.StatusInternalServerError)
		return
	}
	out, err := h.dispatch(ctx, req.Method, in)
	if err != nil {
		writeError(resp, req, mediaType, err, http.StatusInternalServerError)
		return
	}

	if out == nil {
		resp.WriteHeader(http.StatusNoContent)
		return
	}
	if tagged, isTagged := out.(responseTagged); isTagged {
		resp.Header().Set("ETag", tagged.ETag)
		out = tagged.Body
	}
	if req.Method == http.MethodHead {
		resp.WriteHeader(http.StatusOK)
		return
	}
	writeBody(resp, mediaType, http.StatusOK, out)
}

// allows says whether there is a handler function for method.
func (h *resourceHandler) allows(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead:
		return h.Get != nil
	case http.MethodPut:
		return h.Put != nil
	case http.MethodPost:
		return h.Post != nil
	case http.MethodDelete:
		return h.Delete != nil
	}
	return false
}

// prepare builds the request context and decodes the body, if the
// method has one.  An empty untyped body decodes as the zero
// Representation.
func (h *resourceHandler) prepare(req *http.Request) (*context, interface{}, error) {
	ctx, err := h.Context(req)
	if err != nil {
		return nil, nil, err
	}
	if req.Method != http.MethodPut && req.Method != http.MethodPost {
		return ctx, nil, nil
	}
	in := reflect.New(reflect.TypeOf(h.Representation))
	if req.ContentLength == 0 && req.Header.Get("Content-Type") == "" {
		return ctx, in.Elem().Interface(), nil
	}
	err = restdata.Decode(req.Header.Get("Content-Type"), req.Body, in.Interface())
	if err != nil {
		return nil, nil, err
	}
	return ctx, in.Elem().Interface(), nil
}

// dispatch calls the handler function for method, which allows()
// must have accepted.
func (h *resourceHandler) dispatch(ctx *context, method string, in interface{}) (interface{}, error) {
	switch method {
	case http.MethodGet, http.MethodHead:
		return h.Get(ctx)
	case http.MethodPut:
		return h.Put(ctx, in)
	case http.MethodPost:
		return h.Post(ctx, in)
	case http.MethodDelete:
		return h.Delete(ctx)
	}
	return nil, errMethodNotAllowed{Method: method}
}

// writeError sends err as an ErrorResponse.  fallback is the status
// used if err does not map to a more specific one.
func writeError(resp http.ResponseWriter, req *http.Request, mediaType string, err error, fallback int) {
	status := restdata.Status(err)
	if status == http.StatusInternalServerError {
		status = fallback
	}
	if status >= http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"method": req.Method,
			"url":    req.URL.Path,
		}).WithError(err).Error("Request failed")
	}
	body := restdata.ErrorResponse{Error: "error", Message: err.Error()}
	body.FromError(err)
	writeBody(resp, mediaType, status, body)
}

// writeBody sends a response with a body.  Once the status line is
// out an encoding failure can only be logged.
func writeBody(resp http.ResponseWriter, mediaType string, status int, body interface{}) {
	resp.Header().Set("Content-Type", mediaType)
	resp.WriteHeader(status)
	if err := restdata.Encode(resp, body); err != nil {
		logrus.WithError(err).Debug("Could not write response")
	}
}

// recoverPanic turns a panic in a handler into a 500 response.
func recoverPanic(resp http.ResponseWriter, req *http.Request) {
	recovered := recover()
	if recovered == nil {
		return
	}
	body := restdata.ErrorResponse{}
	body.FromPanic(recovered)
	logrus.WithFields(logrus.Fields{
		"method": req.Method,
		"url":    req.URL.Path,
		"panic":  body.Message,
	}).Error("Recovered from panic in request handler")
	writeBody(resp, restdata.V1JSONMediaType, http.StatusInternalServerError, body)
}

// mediaRange is one parsed element of an Accept: header.
type mediaRange struct {
	Type string
	Q    float64
}

// specificity ranks a media range: a type we produce beats a partial
// wildcard, which beats "*/*".  Types we cannot produce rank -1.
func (m mediaRange) specificity() int {
	if _, known := typeMap[m.Type]; known {
		return 2
	}
	switch m.Type {
	case "*/*":
		return 0
	case "application/*", "text/*":
		return 1
	}
	return -1
}

func parseAccept(accept string) ([]mediaRange, error) {
	var ranges []mediaRange
	for _, part := range strings.Split(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		q := 1.0
		if qStr, haveQ := params["q"]; haveQ {
			q, err = strconv.ParseFloat(qStr, 64)
			if err != nil {
				return nil, err
			}
			if q < 0.0 || q > 1.0 {
				return nil, errBadAccept
			}
		}
		ranges = append(ranges, mediaRange{Type: mediaType, Q: q})
	}
	return ranges, nil
}

// negotiateResponse returns a supported MIME type for the response
// body, following RFC 7231 section 5.3.2.  The highest quality wins;
// at equal quality the more specific range wins, and then the first
// listed.  Type parameters other than q are ignored.
func negotiateResponse(req *http.Request) (string, error) {
	accept := req.Header.Get("Accept")
	if accept == "" {
		return restdata.V1JSONMediaType, nil
	}
	ranges, err := parseAccept(accept)
	if err != nil {
		return "", err
	}
	var best *mediaRange
	for i := range ranges {
		r := &ranges[i]
		if r.Q <= 0.0 || r.specificity() < 0 {
			continue
		}
		if best == nil || r.Q > best.Q || (r.Q == best.Q && r.specificity() > best.specificity()) {
			best = r
		}
	}
	if best == nil {
		return "", errNotAcceptable{}
	}
	if actual, wildcard := wildcardTypes[best.Type]; wildcard {
		return actual, nil
	}
	return best.Type, nil
}
