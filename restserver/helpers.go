// Copyright 2015 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restserver

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"github.com/diffeo/go-counter/restdata"
)

// templateMarker stands in for a template variable while mux builds
// the URL, since mux would reject or escape "{id}".
const templateMarker = "---"

// urlBuilder fills in several URLs from named routes, keeping the
// first error.
type urlBuilder struct {
	Router *mux.Router
	Params []string
	Error  error
}

// buildURLs starts building URLs from router, with params as
// alternating route variable names and values.  Values are counter
// IDs and are encoded.
func buildURLs(router *mux.Router, params ...string) *urlBuilder {
	encoded := make([]string, len(params))
	for i, value := range params {
		if i%2 == 1 {
			value = restdata.EncodeID(value)
		}
		encoded[i] = value
	}
	return &urlBuilder{Router: router, Params: encoded}
}

// expand builds the URL for route with extra params ahead of the
// builder's own.
func (u *urlBuilder) expand(route string, extra ...string) *url.URL {
	if u.Error != nil {
		return nil
	}
	r := u.Router.Get(route)
	if r == nil {
		u.Error = fmt.Errorf("No such route %q", route)
		return nil
	}
	built, err := r.URL(append(extra, u.Params...)...)
	if err != nil {
		u.Error = err
		return nil
	}
	return built
}

// URL stores the URL of route in out.
func (u *urlBuilder) URL(out *string, route string) *urlBuilder {
	if built := u.expand(route); built != nil {
		*out = built.String()
	}
	return u
}

// OptionalURL is like URL, but leaves out empty if the route does not
// exist.
func (u *urlBuilder) OptionalURL(out *string, route string) *urlBuilder {
	if u.Router.Get(route) == nil {
		return u
	}
	return u.URL(out, route)
}

// Template stores a URI template for route in out, with param left
// as a template variable.
func (u *urlBuilder) Template(out *string, route, param string) *urlBuilder {
	if built := u.expand(route, param, templateMarker); built != nil {
		*out = strings.Replace(built.String(), templateMarker, "{"+param+"}", 1)
	}
	return u
}
