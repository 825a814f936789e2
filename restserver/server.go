// Copyright 2015-2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restserver

import (
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/mux"

	"github.com/diffeo/go-counter/auth"
	"github.com/diffeo/go-counter/counter"
	"github.com/diffeo/go-counter/restdata"
)

// Options control optional parts of the REST API.
type Options struct {
	// Auth identifies callers of the counter and debug routes.
	// If nil, every caller is anonymous.
	Auth auth.Authenticator

	// Debug enables the /debug route.
	Debug bool

	// Backend describes the store in the debug output.  It
	// should not contain credentials.
	Backend string

	// Clock provides the time in the debug output.  If nil, uses
	// the real wall clock.
	Clock clock.Clock
}

// NewRouter creates a new HTTP handler that processes all counter
// requests.  All resources are under the URL path root, e.g.
// /counter/foo.  For more control over this setup, create a
// mux.Router and call PopulateRouter instead.
func NewRouter(c counter.Counters, opts Options) http.Handler {
	r := mux.NewRouter()
	PopulateRouter(r, c, opts)
	return r
}

// PopulateRouter adds counter routes to an existing
// github.com/gorilla/mux router object.  This can be used, for
// instance, to place the counter interface under a subpath:
//
//	import "github.com/diffeo/go-counter/memory"
//	import "github.com/gorilla/mux"
//	r := mux.NewRouter()
//	s := r.PathPrefix("/api").Subrouter()
//	c := counter.NewService(memory.New())
//	PopulateRouter(s, c, Options{})
func PopulateRouter(r *mux.Router, c counter.Counters, opts Options) {
	if opts.Auth == nil {
		opts.Auth, _ = auth.New(auth.Config{Mode: auth.ModeAnonymous})
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	api := &restAPI{
		Counters: c,
		Router:   r,
		Auth:     opts.Auth,
		Options:  opts,
	}
	api.PopulateRouter(r)
}

// restAPI holds the persistent state for the counter REST API.
type restAPI struct {
	Counters counter.Counters
	Router   *mux.Router
	Auth     auth.Authenticator
	Options  Options
}

// PopulateRouter adds all counter URL paths to a router.
func (api *restAPI) PopulateRouter(r *mux.Router) {
	api.PopulateCounter(r)
	api.PopulateDebug(r)
	r.Path("/").Name("root").Handler(&resourceHandler{
		Representation: restdata.RootData{},
		Context:        api.Context,
		Get:            api.RootDocument,
	})
}

func (api *restAPI) RootDocument(ctx *context) (interface{}, error) {
	resp := restdata.RootData{}
	err := buildURLs(api.Router).
		URL(&resp.DefaultCounterURL, "defaultCounter").
		Template(&resp.CounterURL, "counter", "id").
		URL(&resp.HealthURL, "health").
		OptionalURL(&resp.DebugURL, "debug").
		Error
	return resp, err
}
