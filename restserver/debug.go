package restserver

import (
	"github.com/gorilla/mux"

	"github.com/diffeo/go-counter/auth"
	"github.com/diffeo/go-counter/restdata"
)

// PopulateDebug adds the health check, and the debug route if it is
// enabled.
func (api *restAPI) PopulateDebug(r *mux.Router) {
	r.Path("/healthz").Name("health").Handler(&resourceHandler{
		Representation: restdata.Health{},
		Context:        api.Context,
		Get:            api.Health,
	})
	if api.Options.Debug {
		r.Path("/debug").Name("debug").Handler(&resourceHandler{
			Representation: restdata.DebugData{},
			Context:        api.AuthContext,
			Get:            api.Debug,
		})
	}
}

// Health reports that the server is up.  It does not check the
// store.
func (api *restAPI) Health(ctx *context) (interface{}, error) {
	return restdata.Health{Status: "ok"}, nil
}

// Debug describes the server and echoes the request back.
func (api *restAPI) Debug(ctx *context) (interface{}, error) {
	req := ctx.Request
	return restdata.DebugData{
		Backend:    api.Options.Backend,
		AuthMode:   api.Auth.Mode(),
		User:       ctx.User.Name,
		Method:     req.Method,
		URL:        auth.RedactURL(req.URL),
		RemoteAddr: req.RemoteAddr,
		Headers:    auth.RedactHeaders(req.Header),
		ServerTime: api.Options.Clock.Now().UTC(),
	}, nil
}
