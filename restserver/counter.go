// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restserver

import (
	"github.com/gorilla/mux"

	"github.com/diffeo/go-counter/counter"
	"github.com/diffeo/go-counter/restdata"
)

// PopulateCounter adds the counter routes.
func (api *restAPI) PopulateCounter(r *mux.Router) {
	handler := &resourceHandler{
		Representation: restdata.CounterRequest{},
		Context:        api.AuthContext,
		Get:            api.CounterGet,
		Post:           api.CounterPost,
		Put:            api.CounterPut,
		Delete:         api.CounterDelete,
	}
	r.Path("/counter").Name("defaultCounter").Handler(handler)
	r.Path("/counter/{id}").Name("counter").Handler(handler)
}

// counterResponse builds the response body for a counter.
func (api *restAPI) counterResponse(rec counter.Record, action string) (interface{}, error) {
	result := restdata.Counter{}
	result.FromRecord(rec, action)
	builder := buildURLs(api.Router, "id", rec.ID).URL(&result.URL, "counter")
	if rec.ID == counter.DefaultID {
		builder = buildURLs(api.Router).URL(&result.URL, "defaultCounter")
	}
	err := builder.Error
	if err != nil {
		return nil, err
	}
	return responseTagged{ETag: restdata.ETag(rec.Version), Body: result}, nil
}

// CounterGet returns a counter, creating it at zero if needed.
func (api *restAPI) CounterGet(ctx *context) (interface{}, error) {
	rec, err := api.Counters.Counter(ctx.Request.Context(), ctx.ID)
	if err != nil {
		return nil, err
	}
	return api.counterResponse(rec, restdata.GetAction)
}

func (api *restAPI) apply(ctx *context, op counter.Operation) (interface{}, error) {
	op.IfMatch = ctx.IfMatch
	rec, err := api.Counters.Apply(ctx.Request.Context(), ctx.ID, op, ctx.User.Name)
	if err != nil {
		return nil, err
	}
	return api.counterResponse(rec, op.Action.String())
}

// CounterPost performs an action named in the request body.
func (api *restAPI) CounterPost(ctx *context, in interface{}) (interface{}, error) {
	req, valid := in.(restdata.CounterRequest)
	if !valid {
		return nil, errUnmarshal
	}
	op, err := req.Post()
	if err != nil {
		return nil, err
	}
	return api.apply(ctx, op)
}

// CounterPut sets the counter to the value in the request body.
func (api *restAPI) CounterPut(ctx *context, in interface{}) (interface{}, error) {
	req, valid := in.(restdata.CounterRequest)
	if !valid {
		return nil, errUnmarshal
	}
	op, err := req.Put()
	if err != nil {
		return nil, err
	}
	return api.apply(ctx, op)
}

// CounterDelete removes the counter.
func (api *restAPI) CounterDelete(ctx *context) (interface{}, error) {
	err := api.Counters.Delete(ctx.Request.Context(), ctx.ID)
	return nil, err
}
