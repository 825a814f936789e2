// Copyright 2015-2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package restdata defines common data structures shared between the
// restserver and restclient packages.  Generally JSON encodings of
// these are passed across the wire as the
// application/vnd.diffeo.counter.v1+json MIME type.
//
// API Usage
//
// HTTP GET the root document at its specified URL.  This will return
// a JSON serialization of the RootData object.  That serialization
// has links to other resources; follow these links, possibly filling
// in template values, to get to other resources.
//
// Some of the URL fields are RFC 6570 URI templates.  If the system
// is rooted at /, a JSON serialization of RootData will look like
//
//	{
//	    "default_counter_url": "/counter",
//	    "counter_url": "/counter/{id}",
//	    "health_url": "/healthz"
//	}
//
// While the URL structure is predictable and formulaic, it is not
// actually part of the API contract.  The only specific guarantee is
// that retrieving the root resource will return a serialization of
// RootData.
//
// Counters
//
// GET (or HEAD) on a counter URL returns a Counter, creating the
// counter with a count of 0 if it did not exist.  POST a
// CounterRequest naming an action ("increment", "decrement", "reset",
// or "set" with a value) to change it; a request with only a value
// is a "set".  PUT a CounterRequest with a value to set the counter
// outright.  DELETE removes the counter, returning 404 if it did not
// exist.
//
// Counter responses carry an ETag header holding the counter's
// version.  A POST or PUT with an If-Match header only succeeds if
// the counter is still at that version, and otherwise fails with
// 412 Precondition Failed.
//
// Encoding Considerations
//
// A counter ID that appears in a URL must be made of ASCII characters
// that can be represented unescaped.  Other IDs are escaped by
// encoding their byte representations using the base64 URL-safe
// encoding with no padding, and prepending a hyphen to the name.  IDs
// that would be otherwise safe and begin with hyphens are also
// encoded.  /counter/-LQ is the counter named "-".
//
// Timestamps are represented in JSON as RFC 3339 strings,
// "2012-03-04T05:06:07.890Z".
//
// Errors
//
// Errors are returned as encodings of the ErrorResponse type with a
// failing HTTP status.  This can round-trip all of the counter
// package's errors but may return most other errors as plain strings.
// If Go server code panics, this is captured and returned as an
// ErrorResponse with error code "panic".
package restdata

import (
	"strconv"
	"time"

	"github.com/diffeo/go-counter/counter"
)

// V1JSONMediaType is the preferred, most specific MIME type for the
// JSON representation of this content.
const V1JSONMediaType = "application/vnd.diffeo.counter.v1+json"

// JSONMediaType requests the most recent version of the JSON
// representation of this content.
const JSONMediaType = "application/vnd.diffeo.counter+json"

// Resource is a base type for all resources in this module.
type Resource struct {
	// URL points at this resource.
	URL string `json:"url"`
}

// RootData is the root document.  It has links to all other
// resources.
type RootData struct {
	// DefaultCounterURL is the URL of the default counter.
	// Supports GET, HEAD, POST, PUT, and DELETE.
	DefaultCounterURL string `json:"default_counter_url"`

	// CounterURL is a URL template with a parameter "id" naming
	// a counter.  Supports the same methods as DefaultCounterURL.
	CounterURL string `json:"counter_url"`

	// HealthURL reports whether the service is up.  GET only.
	HealthURL string `json:"health_url"`

	// DebugURL describes the server and the request.  It is
	// absent unless the server enables it.  GET only.
	DebugURL string `json:"debug_url,omitempty"`
}

// CounterRequest is the body of a POST or PUT to a counter.
type CounterRequest struct {
	// Action names the change to make.
	Action string `json:"action,omitempty"`

	// Value is the new count for a "set" action.
	Value *int64 `json:"value,omitempty"`
}

// Post converts a POST body to an operation.  A body with a value
// and no action is a "set".
func (r CounterRequest) Post() (counter.Operation, error) {
	op := counter.Operation{}
	if r.Action == "" && r.Value != nil {
		op.Action = counter.Set
	} else {
		action, err := counter.ParseAction(r.Action)
		if err != nil {
			return op, err
		}
		op.Action = action
	}
	if op.Action == counter.Set {
		if r.Value == nil {
			return op, counter.ErrMissingValue
		}
		op.Value = *r.Value
	}
	return op, nil
}

// Put converts a PUT body to an operation.  The body must have a
// value; an action, if present, must be "set".
func (r CounterRequest) Put() (counter.Operation, error) {
	if r.Action != "" {
		action, err := counter.ParseAction(r.Action)
		if err != nil {
			return counter.Operation{}, err
		}
		if action != counter.Set {
			return counter.Operation{}, counter.ErrBadAction
		}
	}
	if r.Value == nil {
		return counter.Operation{}, counter.ErrMissingValue
	}
	return counter.Operation{Action: counter.Set, Value: *r.Value}, nil
}

// GetAction is the action reported in the response to a plain read.
const GetAction = "get"

// Counter is the representation of a single counter.
type Counter struct {
	Resource

	// ID is the name of the counter.
	ID string `json:"id"`

	// Count is the current value.
	Count int64 `json:"count"`

	// Action is the operation that produced this response, or
	// "get" for a read.
	Action string `json:"action"`

	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
	LastUser    string    `json:"last_user,omitempty"`

	// Version changes on every write, and is also sent as the
	// response's ETag.
	Version int64 `json:"version"`
}

// FromRecord fills in c from a stored record.
func (c *Counter) FromRecord(rec counter.Record, action string) {
	c.ID = rec.ID
	c.Count = rec.Value
	c.Action = action
	c.CreatedAt = rec.CreatedAt
	c.LastUpdated = rec.LastUpdated
	c.LastUser = rec.LastUser
	c.Version = rec.Version
}

// Record converts c back to a record.
func (c *Counter) Record() counter.Record {
	return counter.Record{
		ID:          c.ID,
		Value:       c.Count,
		CreatedAt:   c.CreatedAt,
		LastUpdated: c.LastUpdated,
		LastUser:    c.LastUser,
		Version:     c.Version,
	}
}

// ETag formats a version as a strong entity tag.
func ETag(version int64) string {
	return strconv.Quote(strconv.FormatInt(version, 10))
}

// ParseETag reverses ETag.  Weak tags ("W/...") are accepted, and
// quotes are optional.
func ParseETag(tag string) (int64, error) {
	if len(tag) > 2 && tag[:2] == "W/" {
		tag = tag[2:]
	}
	if unquoted, err := strconv.Unquote(tag); err == nil {
		tag = unquoted
	}
	version, err := strconv.ParseInt(tag, 10, 64)
	if err != nil || version < 0 {
		return 0, ErrBadRequest{Err: errBadETag{Tag: tag}}
	}
	return version, nil
}

// DebugData describes the server and the request that retrieved it.
type DebugData struct {
	// Backend is the impl[:address] of the store, with any
	// address credentials removed.
	Backend string `json:"backend"`

	// AuthMode is the name of the authentication mode.
	AuthMode string `json:"auth_mode"`

	// User is the authenticated caller.
	User string `json:"user"`

	Method     string              `json:"method"`
	URL        string              `json:"url"`
	RemoteAddr string              `json:"remote_addr"`
	Headers    map[string][]string `json:"headers"`

	// ServerTime is the server's current time.
	ServerTime time.Time `json:"server_time"`
}

// Health is the response from the health check.
type Health struct {
	Status string `json:"status"`
}

// ErrorResponse can be a response to any method, generally accompanied
// by a failing HTTP status code.
type ErrorResponse struct {
	// Error is a short description of the failure.  This may be
	// the name or type of a counter API error, the string
	// "panic", or the string "error" for some other kind of
	// error.
	Error string `json:"error"`

	// Message is a human-readable description of the failure.
	Message string `json:"message"`

	// Value is an extra parameter to the error if applicable.
	Value string `json:"value,omitempty"`

	// Stack holds a formatted backtrace, if the method failed
	// due to a panic.
	Stack string `json:"stack,omitempty"`
}
