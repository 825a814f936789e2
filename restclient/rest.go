// Copyright 2015 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restclient

// This file provides generic REST client code.

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"

	"github.com/jtacoma/uritemplates"

	"github.com/diffeo/go-counter/restdata"
)

// resource is anything the client reaches at a URL.
type resource struct {
	URL *url.URL

	// Client performs HTTP requests.  If nil, uses
	// http.DefaultClient.
	Client *http.Client

	// Header is added to every request.
	Header http.Header
}

// Template expands a URI template from the server, encoding string
// variables as counter IDs, and resolves it against the resource URL.
func (r *resource) Template(template string, vars map[string]interface{}) (*url.URL, error) {
	tmpl, err := uritemplates.Parse(template)
	if err != nil {
		return nil, err
	}
	encoded := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		if s, isString := v.(string); isString {
			v = restdata.EncodeID(s)
		}
		encoded[k] = v
	}
	expanded, err := tmpl.Expand(encoded)
	if err != nil {
		return nil, err
	}
	return r.URL.Parse(expanded)
}

func (r *resource) client() *http.Client {
	if r.Client == nil {
		return http.DefaultClient
	}
	return r.Client
}

// newRequest builds a request with in, if non-nil, as its JSON body.
func (r *resource) newRequest(ctx context.Context, method string, u *url.URL, header http.Header, in interface{}) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		buf := &bytes.Buffer{}
		if err := restdata.Encode(buf, in); err != nil {
			return nil, err
		}
		body = buf
	}
	req, err := http.NewRequest(method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	for _, h := range []http.Header{r.Header, header} {
		for name, values := range h {
			req.Header[name] = values
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", restdata.V1JSONMediaType)
	}
	req.Header.Set("Accept", restdata.V1JSONMediaType)
	return req, nil
}

// Do performs some HTTP action.  If in is non-nil, it is sent as the
// request body.  If out is non-nil, the response body is decoded into
// it, and it must be of pointer type.  header, if non-nil, adds
// request headers.
func (r *resource) Do(ctx context.Context, method string, u *url.URL, header http.Header, in, out interface{}) error {
	req, err := r.newRequest(ctx, method, u, header, in)
	if err != nil {
		return err
	}
	resp, err := r.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkHTTPStatus(resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return restdata.Decode(resp.Header.Get("Content-Type"), resp.Body, out)
}

// Get retrieves the resource from its own URL into out, which must
// be of pointer type.
func (r *resource) Get(ctx context.Context, out interface{}) error {
	return r.Do(ctx, http.MethodGet, r.URL, nil, nil, out)
}

// DoAt performs an HTTP action on the URL produced by expanding a
// template from the server with vars.
func (r *resource) DoAt(ctx context.Context, method, template string, vars map[string]interface{}, header http.Header, in, out interface{}) error {
	u, err := r.Template(template, vars)
	if err != nil {
		return err
	}
	return r.Do(ctx, method, u, header, in, out)
}

// ErrorHTTP is returned for an unsuccessful response that does not
// carry a recognizable error document.
type ErrorHTTP struct {
	// Response holds a pointer to the failing HTTP response.
	Response *http.Response

	// Body holds the contents of the message body, presumed to
	// be text.
	Body string
}

func (e ErrorHTTP) Error() string {
	return e.Response.Status
}

// HTTPStatus returns the response's status code.
func (e ErrorHTTP) HTTPStatus() int {
	return e.Response.StatusCode
}

// checkHTTPStatus returns nil for a 2xx response.  Otherwise it reads
// the body and returns the server's error if it sent an
// ErrorResponse, or ErrorHTTP.
func checkHTTPStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var errResp restdata.ErrorResponse
	err = restdata.Decode(resp.Header.Get("Content-Type"), bytes.NewReader(body), &errResp)
	if err == nil && errResp.Error != "" {
		return errResp.ToError()
	}
	return ErrorHTTP{Response: resp, Body: string(body)}
}
