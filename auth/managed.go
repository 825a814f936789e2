package auth

import (
	"net/http"
	"strings"
)

// managedAuth trusts an identity header set by a fronting platform.
// It must only be used where clients cannot reach the server directly.
type managedAuth struct {
	header string
}

func newManagedAuth(header string) *managedAuth {
	if header == "" {
		header = DefaultPrincipalHeader
	}
	return &managedAuth{header: header}
}

func (a *managedAuth) Mode() string { return ModeManaged }

func (a *managedAuth) Authenticate(r *http.Request) (User, error) {
	name := strings.TrimSpace(r.Header.Get(a.header))
	if name == "" {
		return User{}, ErrUnauthorized{Reason: "no " + a.header + " header"}
	}
	return User{Name: name, Mode: ModeManaged}, nil
}
