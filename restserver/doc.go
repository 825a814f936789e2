// Copyright 2015-2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package restserver publishes a counter.Counters interface as a REST
// service.  The restclient package is a matching client.
//
// The complete REST API is defined in the restdata package.  In
// particular, note that the URLs described here are not actually part
// of the API.
//
// HTTP Considerations
//
// Counter responses carry an ETag: header with the counter's version,
// and writes honor If-Match:.  Callers of the counter and debug
// routes are identified by the configured auth.Authenticator; a
// failure there is 401 Unauthorized.  CORS is left to middleware
// wrapped around the router.
//
// MIME Types
//
// This interface understands MIME types as follows:
//
//	application/vnd.diffeo.counter.v1+json
//
// JSON representation of version 1 of this interface.
//
//	application/vnd.diffeo.counter+json
//	application/json
//	text/json
//
// JSON representation of latest version of this interface.
//
// URL Scheme
//
// A counter ID that is not URL-safe printable ASCII must be base64
// encoded using the URL-safe alphabet (RFC 4648 section 5), with no
// padding, and adding an additional - at the front of the name:
// /counter/-Zm9v is the same resource as /counter/foo.
//
// The following URLs are defined:
//
//	/
//	/counter
//	/counter/{id}
//	/healthz
//	/debug          (only if enabled)
package restserver
