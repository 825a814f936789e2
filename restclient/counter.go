// Copyright 2015-2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package restclient provides a counter.Counters HTTP REST client
// that talks to the matching server in the "restserver" package.
//
// The server in github.com/diffeo/go-counter/cmd/counterd runs a
// compatible REST server.  Call New() with the base URL of that
// service; for instance,
//
//	c, err := restclient.New("http://localhost:5980/")
//
// The server decides who the caller is from its credentials, so the
// user passed to Apply is only sent if WithUserHeader is given.
package restclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/diffeo/go-counter/auth"
	"github.com/diffeo/go-counter/counter"
	"github.com/diffeo/go-counter/restdata"
)

// Option configures a client.
type Option func(*restCounters)

// WithBearerToken sends token in an Authorization: Bearer header.
func WithBearerToken(token string) Option {
	return func(c *restCounters) {
		c.Header.Set("Authorization", "Bearer "+token)
	}
}

// WithFunctionKey sends a function key on every request.
func WithFunctionKey(key string) Option {
	return func(c *restCounters) {
		c.Header.Set(auth.KeyHeader, key)
	}
}

// WithUserHeader sends the user passed to Apply in the named header.
// This is only meaningful if the server trusts that header, as in
// managed authentication behind a proxy.
func WithUserHeader(header string) Option {
	return func(c *restCounters) {
		c.UserHeader = header
	}
}

// WithHTTPClient uses client instead of http.DefaultClient.
func WithHTTPClient(client *http.Client) Option {
	return func(c *restCounters) {
		c.Client = client
	}
}

// New creates a new Counters interface that speaks to an external
// REST server.  It retrieves the server's root document immediately.
func New(baseURL string, opts ...Option) (counter.Counters, error) {
	if baseURL == "" {
		return nil, errors.New("no server URL")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	c := &restCounters{
		resource: resource{URL: u, Header: make(http.Header)},
	}
	for _, opt := range opts {
		opt(c)
	}
	err = c.Refresh(context.Background())
	if err != nil {
		return nil, err
	}
	return c, nil
}

type restCounters struct {
	resource
	Representation restdata.RootData
	UserHeader     string
}

func (c *restCounters) Refresh(ctx context.Context) error {
	c.Representation = restdata.RootData{}
	return c.Get(ctx, &c.Representation)
}

func (c *restCounters) do(ctx context.Context, method, id string, header http.Header, in interface{}) (counter.Record, error) {
	if err := counter.ValidID(id); err != nil {
		return counter.Record{}, err
	}
	var resp restdata.Counter
	var out interface{} = &resp
	if method == http.MethodDelete {
		out = nil
	}
	err := c.DoAt(ctx, method, c.Representation.CounterURL, map[string]interface{}{"id": id}, header, in, out)
	if err != nil {
		return counter.Record{}, err
	}
	return resp.Record(), nil
}

func (c *restCounters) Counter(ctx context.Context, id string) (counter.Record, error) {
	return c.do(ctx, http.MethodGet, id, nil, nil)
}

func (c *restCounters) Apply(ctx context.Context, id string, op counter.Operation, user string) (counter.Record, error) {
	req := restdata.CounterRequest{}
	if op.Action != counter.NoAction {
		req.Action = op.Action.String()
	}
	if op.Action == counter.Set {
		value := op.Value
		req.Value = &value
	}
	header := make(http.Header)
	if op.IfMatch != 0 {
		header.Set("If-Match", restdata.ETag(op.IfMatch))
	}
	if c.UserHeader != "" && user != "" {
		header.Set(c.UserHeader, user)
	}
	return c.do(ctx, http.MethodPost, id, header, req)
}

func (c *restCounters) Delete(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, id, nil, nil)
	return err
}
