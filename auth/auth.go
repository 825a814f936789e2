// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package auth identifies the caller of an HTTP request.  Several
// modes are supported, chosen by configuration:
//
//	anonymous   everyone is "anonymous"
//	function    a shared key, as a hosted function platform would issue
//	hmac        a bearer JWT signed with a shared HS256 secret
//	bearer      a bearer JWT verified against an identity provider's JWKS
//	managed     a principal header injected by the hosting platform
//
// Every mode returns ErrUnauthorized for missing or bad credentials.
package auth

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Mode names, as used in configuration.
const (
	ModeAnonymous = "anonymous"
	ModeFunction  = "function"
	ModeHMAC      = "hmac"
	ModeBearer    = "bearer"
	ModeManaged   = "managed"
)

// Anonymous is the user name reported in anonymous mode.
const Anonymous = "anonymous"

// DefaultPrincipalHeader is the header trusted in managed mode if the
// configuration does not name one.
const DefaultPrincipalHeader = "X-MS-CLIENT-PRINCIPAL-NAME"

// Config selects and parameterizes an authentication mode.
type Config struct {
	// Mode is one of the Mode* constants; empty means anonymous.
	Mode string `mapstructure:"mode"`

	// Keys maps user names to their shared keys, in function mode.
	Keys map[string]string `mapstructure:"keys"`

	// Secret is the HS256 signing secret in hmac mode.
	Secret string `mapstructure:"secret"`

	// Issuer and Audience, if set, must match the token's "iss"
	// and "aud" claims in hmac and bearer modes.  In bearer mode
	// the issuer is also used to discover the key set.
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`

	// JWKSURL is the key set location in bearer mode.  If empty it
	// is discovered from the issuer's OpenID configuration.
	JWKSURL string `mapstructure:"jwks_url"`

	// RefreshInterval controls how often the key set is refetched.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`

	// PrincipalHeader names the trusted identity header in managed
	// mode.
	PrincipalHeader string `mapstructure:"principal_header"`
}

// User is an authenticated caller.
type User struct {
	// Name identifies the caller, and is recorded as the last
	// user of counters it changes.
	Name string

	// Mode is the authentication mode that identified the user.
	Mode string
}

// Authenticator identifies the caller of a request.
type Authenticator interface {
	// Mode returns the name of the authentication mode.
	Mode() string

	// Authenticate returns the caller of r, or ErrUnauthorized.
	Authenticate(r *http.Request) (User, error)
}

// ErrUnauthorized is returned when a request does not carry
// acceptable credentials.
type ErrUnauthorized struct {
	Reason string
}

func (e ErrUnauthorized) Error() string {
	if e.Reason == "" {
		return "unauthorized"
	}
	return "unauthorized: " + e.Reason
}

// HTTPStatus returns 401 Unauthorized.
func (e ErrUnauthorized) HTTPStatus() int {
	return http.StatusUnauthorized
}

// New creates an authenticator from its configuration.  In bearer
// mode this may fetch the identity provider's key set.
func New(cfg Config) (Authenticator, error) {
	switch cfg.Mode {
	case "", ModeAnonymous:
		return anonymous{}, nil
	case ModeFunction:
		return newKeyAuth(cfg.Keys)
	case ModeHMAC:
		return newHMACAuth(cfg)
	case ModeBearer:
		return newBearerAuth(cfg)
	case ModeManaged:
		return newManagedAuth(cfg.PrincipalHeader), nil
	default:
		return nil, fmt.Errorf("unknown authentication mode %q", cfg.Mode)
	}
}

type anonymous struct{}

func (anonymous) Mode() string { return ModeAnonymous }

func (anonymous) Authenticate(*http.Request) (User, error) {
	return User{Name: Anonymous, Mode: ModeAnonymous}, nil
}

// bearerToken extracts the token from an "Authorization: Bearer"
// header.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrUnauthorized{Reason: "no Authorization header"}
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrUnauthorized{Reason: "not a bearer token"}
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrUnauthorized{Reason: "empty bearer token"}
	}
	return token, nil
}

var credentialHeaders = []string{
	"Authorization",
	"Cookie",
	KeyHeader,
	TokenHeader,
}

// RedactHeaders returns a copy of h with credential-bearing values
// replaced.
func RedactHeaders(h http.Header) http.Header {
	result := make(http.Header, len(h))
	for name, values := range h {
		result[name] = append([]string(nil), values...)
	}
	for _, name := range credentialHeaders {
		if values, ok := result[http.CanonicalHeaderKey(name)]; ok {
			for i := range values {
				values[i] = "REDACTED"
			}
		}
	}
	return result
}

// RedactURL renders u with any function key query parameter replaced.
func RedactURL(u *url.URL) string {
	q := u.Query()
	if _, ok := q[KeyParam]; !ok {
		return u.String()
	}
	q.Set(KeyParam, "REDACTED")
	redacted := *u
	redacted.RawQuery = q.Encode()
	return redacted.String()
}
