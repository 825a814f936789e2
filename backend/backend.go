// Copyright 2015-2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package backend provides a standard way to construct a counter
// store based on command-line flags.
package backend

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/diffeo/go-counter/counter"
	"github.com/diffeo/go-counter/dynamo"
	"github.com/diffeo/go-counter/memory"
	"github.com/diffeo/go-counter/mongodb"
	"github.com/diffeo/go-counter/postgres"
	"github.com/diffeo/go-counter/redisdb"
	"github.com/diffeo/go-counter/sqlite"
)

// Backend describes user-visible parameters to store counter data.
// This implements the flag.Value interface, and so a typical use is
//
//	func main() {
//	    backend := backend.Backend{"memory", ""}
//	    flag.Var(&backend, "backend", "impl:address of counter storage")
//	    flag.Parse()
//	    store, err := backend.Store()
//	}
//
// It also implements the urfave/cli Generic interface.
type Backend struct {
	// Implementation holds the name of the implementation; for
	// instance, "memory".
	Implementation string

	// Address holds some backend-specific address, such as a
	// database connect string.
	Address string
}

var constructors = map[string]func(string) (counter.Store, error){
	"memory": func(string) (counter.Store, error) {
		return memory.New(), nil
	},
	"postgres": postgres.New,
	"sqlite":   sqlite.New,
	"mongodb":  mongodb.New,
	"redis":    redisdb.New,
	"dynamodb": dynamo.New,
}

// Implementations returns the sorted names of all known backends.
func Implementations() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Store creates a new counter store.  This generally should be only
// called once.  If the backend has in-process state, such as a
// database connection pool or an in-memory store, calling this
// multiple times will create multiple copies of that state.  In
// particular, if b.Implementation is "memory", multiple calls to this
// will create multiple independent sets of counters.
func (b *Backend) Store() (counter.Store, error) {
	ctor, ok := constructors[b.Implementation]
	if !ok {
		return nil, fmt.Errorf("unknown counter backend %q", b.Implementation)
	}
	return ctor(b.Address)
}

// String renders a backend description as a string.
func (b *Backend) String() string {
	if b.Address == "" {
		return b.Implementation
	}
	return b.Implementation + ":" + b.Address
}

// passwordParam matches a password in a key=value connection string
// or URL query.
var passwordParam = regexp.MustCompile(`(?i)(password=)[^&\s]*`)

// Redacted renders a backend description like String, but with any
// password in the address replaced, so that it can be logged.
func (b *Backend) Redacted() string {
	addr := b.Address
	if u, err := url.Parse(addr); err == nil && u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
			addr = u.String()
		}
	}
	addr = passwordParam.ReplaceAllString(addr, "${1}xxxxx")
	redacted := Backend{Implementation: b.Implementation, Address: addr}
	return redacted.String()
}

// Set parses a string into an existing backend description.  The
// string should be of the form "implementation:address", where
// address can be any string.  Set checks to see if the provided
// implementation is any of the known implementations, and returns an
// appropriate error if not.
//
// This is part of the flag.Value interface.  Note that neither this
// nor Store() attempts to validate the b.Address part of the string
// until a connection is made.
func (b *Backend) Set(param string) error {
	if param == "" {
		return errors.New("must specify a backend type")
	}
	parts := strings.SplitN(param, ":", 2)
	if _, ok := constructors[parts[0]]; !ok {
		return fmt.Errorf("unknown counter backend %q (want one of %s)",
			parts[0], strings.Join(Implementations(), ", "))
	}
	b.Implementation = parts[0]
	b.Address = ""
	if len(parts) == 2 {
		b.Address = parts[1]
	}
	return nil
}
