// Copyright 2015-2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restdata

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"

	pkgerrors "github.com/pkg/errors"

	"github.com/diffeo/go-counter/auth"
	"github.com/diffeo/go-counter/counter"
)

// ErrorStatus describes errors that correspond to specific HTTP status
// codes.
type ErrorStatus interface {
	// HTTPStatus returns the HTTP status code for this error.
	HTTPStatus() int
}

// ErrUnsupportedMediaType is returned from Decode() if the provided
// Content-Type: is unrecognized.  This translates directly into the
// equivalent HTTP 415 error.
type ErrUnsupportedMediaType struct {
	Type string
}

func (e ErrUnsupportedMediaType) Error() string {
	return fmt.Sprintf("Unsupported media type %q", e.Type)
}

// HTTPStatus returns a fixed 415 Unsupported Media Type error code.
func (e ErrUnsupportedMediaType) HTTPStatus() int {
	return http.StatusUnsupportedMediaType
}

// ErrNotFound is a wrapper error that indicates that, due to the
// embedded error, a REST service should return a 404 Not Found error.
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return e.Err.Error()
}

// HTTPStatus returns a fixed 404 Not Found error code.
func (e ErrNotFound) HTTPStatus() int {
	return http.StatusNotFound
}

// ErrBadRequest is returned as an error when there is an error decoding
// HTTP headers or the request body.
type ErrBadRequest struct {
	Err error
}

func (e ErrBadRequest) Error() string {
	return e.Err.Error()
}

// HTTPStatus returns a fixed 400 Bad Request HTTP status code.
func (e ErrBadRequest) HTTPStatus() int {
	return http.StatusBadRequest
}

type errBadETag struct {
	Tag string
}

func (e errBadETag) Error() string {
	return fmt.Sprintf("Invalid entity tag %q", e.Tag)
}

// Status picks the HTTP status code for an error.  Errors that
// implement ErrorStatus choose their own; the counter package's
// errors have fixed codes; anything else is 500 Internal Server
// Error.
func Status(err error) int {
	if errS, hasStatus := err.(ErrorStatus); hasStatus {
		return errS.HTTPStatus()
	}
	cause := pkgerrors.Cause(err)
	if errS, hasStatus := cause.(ErrorStatus); hasStatus {
		return errS.HTTPStatus()
	}
	switch cause {
	case counter.ErrMissingAction, counter.ErrBadAction,
		counter.ErrMissingValue, counter.ErrOverflow:
		return http.StatusBadRequest
	case counter.ErrConflict:
		return http.StatusConflict
	case counter.ErrPrecondition:
		return http.StatusPreconditionFailed
	}
	switch cause.(type) {
	case counter.ErrNoSuchCounter:
		return http.StatusNotFound
	case counter.ErrBadCounterID:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// FromError populates an ErrorResponse to fill in its fields based
// on an error value.  This remaps the well-known counter errors
// to specific e.Error codes.
func (e *ErrorResponse) FromError(err error) {
	cause := pkgerrors.Cause(err)
	switch cause {
	case counter.ErrMissingAction:
		e.Error = "ErrMissingAction"
	case counter.ErrBadAction:
		e.Error = "ErrBadAction"
	case counter.ErrMissingValue:
		e.Error = "ErrMissingValue"
	case counter.ErrConflict:
		e.Error = "ErrConflict"
	case counter.ErrPrecondition:
		e.Error = "ErrPrecondition"
	case counter.ErrOverflow:
		e.Error = "ErrOverflow"
	}
	switch et := cause.(type) {
	case counter.ErrNoSuchCounter:
		e.Error = "ErrNoSuchCounter"
		e.Value = et.ID
	case counter.ErrBadCounterID:
		e.Error = "ErrBadCounterID"
		e.Value = et.ID
	case auth.ErrUnauthorized:
		e.Error = "ErrUnauthorized"
		e.Value = et.Reason
	case ErrNotFound:
		// Discard this wrapper and return the embedded error
		e.FromError(et.Err)
	case ErrBadRequest:
		e.FromError(et.Err)
	}
}

// ToError converts e back to a counter error, if that is possible.
// If not, returns a plain error with e.Message text.
func (e *ErrorResponse) ToError() error {
	switch e.Error {
	case "ErrMissingAction":
		return counter.ErrMissingAction
	case "ErrBadAction":
		return counter.ErrBadAction
	case "ErrMissingValue":
		return counter.ErrMissingValue
	case "ErrConflict":
		return counter.ErrConflict
	case "ErrPrecondition":
		return counter.ErrPrecondition
	case "ErrOverflow":
		return counter.ErrOverflow
	case "ErrNoSuchCounter":
		return counter.ErrNoSuchCounter{ID: e.Value}
	case "ErrBadCounterID":
		return counter.ErrBadCounterID{ID: e.Value}
	case "ErrUnauthorized":
		return auth.ErrUnauthorized{Reason: e.Value}
	default:
		return errors.New(e.Message)
	}
}

// FromPanic populates an error response based on a panic.  Typical use
// is:
//
//	defer func() {
//	    if obj := recover(); obj != nil {
//	        resp := restdata.ErrorResponse{}
//	        resp.FromPanic(obj)
//	        // write resp out as makes sense
//	    }
//	}()
func (e *ErrorResponse) FromPanic(obj interface{}) {
	e.Error = "panic"
	if recoveredError, isError := obj.(error); isError {
		e.Message = recoveredError.Error()
	} else {
		e.Message = fmt.Sprintf("%+v", obj)
	}
	var stack [4096]byte
	len := runtime.Stack(stack[:], false)
	e.Stack = string(stack[:len])
}
