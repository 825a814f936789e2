// Copyright 2015 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restserver

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/diffeo/go-counter/auth"
	"github.com/diffeo/go-counter/counter"
	"github.com/diffeo/go-counter/restdata"
)

// errUnmarshal is returned if the put/post contract is violated and
// a handler function is passed the wrong type.
var errUnmarshal = restdata.ErrBadRequest{
	Err: errors.New("Invalid input format"),
}

// context holds all of the information and objects that can be extracted
// from the request URL and headers.
type context struct {
	// Request is the original HTTP request.  Its context bounds
	// calls to the counter system.
	Request *http.Request

	// ID is the counter named in the URL, if any.
	ID string

	// User is the authenticated caller, if the route requires
	// authentication.
	User auth.User

	// IfMatch is the version from an If-Match: header, or 0.
	IfMatch int64

	QueryParams url.Values
}

// Context builds a context for routes that do not require
// authentication.
func (api *restAPI) Context(req *http.Request) (ctx *context, err error) {
	ctx = &context{Request: req}
	ctx.QueryParams = req.URL.Query()
	vars := mux.Vars(req)

	if id, present := vars["id"]; present {
		ctx.ID, err = restdata.DecodeID(id)
	} else if api.Router.Get("defaultCounter") == mux.CurrentRoute(req) {
		ctx.ID = counter.DefaultID
	}

	if err == nil && ctx.ID != "" {
		err = counter.ValidID(ctx.ID)
	}

	if tag := req.Header.Get("If-Match"); err == nil && tag != "" && tag != "*" {
		ctx.IfMatch, err = restdata.ParseETag(tag)
		// No stored counter is ever at version 0
		if err == nil && ctx.IfMatch == 0 {
			err = counter.ErrPrecondition
		}
	}

	return
}

// AuthContext builds a context and also authenticates the caller.
func (api *restAPI) AuthContext(req *http.Request) (*context, error) {
	ctx, err := api.Context(req)
	if err != nil {
		return nil, err
	}
	ctx.User, err = api.Auth.Authenticate(req)
	if err != nil {
		return nil, err
	}
	return ctx, nil
}
