package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"sort"
)

const (
	// KeyHeader carries a function key.
	KeyHeader = "X-Functions-Key"

	// KeyParam is the query parameter that may carry a function key.
	KeyParam = "code"

	// TokenHeader is an alternate header carrying a function key.
	TokenHeader = "X-Auth-Token"
)

type keyAuth struct {
	names []string
	keys  map[string][]byte
}

func newKeyAuth(keys map[string]string) (*keyAuth, error) {
	if len(keys) == 0 {
		return nil, errors.New("function authentication requires at least one key")
	}
	a := &keyAuth{keys: make(map[string][]byte, len(keys))}
	for name, key := range keys {
		if key == "" {
			return nil, errors.New("empty function key for " + name)
		}
		a.names = append(a.names, name)
		a.keys[name] = []byte(key)
	}
	sort.Strings(a.names)
	return a, nil
}

func (a *keyAuth) Mode() string { return ModeFunction }

func (a *keyAuth) Authenticate(r *http.Request) (User, error) {
	presented := r.Header.Get(KeyHeader)
	if presented == "" {
		presented = r.URL.Query().Get(KeyParam)
	}
	if presented == "" {
		presented = r.Header.Get(TokenHeader)
	}
	if presented == "" {
		return User{}, ErrUnauthorized{Reason: "no function key"}
	}
	// Check every key so timing does not reveal which one matched
	var user string
	for _, name := range a.names {
		if subtle.ConstantTimeCompare([]byte(presented), a.keys[name]) == 1 {
			user = name
		}
	}
	if user == "" {
		return User{}, ErrUnauthorized{Reason: "invalid function key"}
	}
	return User{Name: user, Mode: ModeFunction}, nil
}
