// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package counter defines an abstract API to a persistent counter
// service.
//
// There are two layers.  A Store is the thin read/write interface to
// some remote database; it knows nothing about counter semantics beyond
// a conditional write keyed on a record version.  Counters is the
// interface applications and the REST server consume; Service
// implements it on top of any Store, and the restclient package
// implements it over HTTP.
//
// In general, accessors here take a context.Context since every
// interesting implementation makes a network round trip.
package counter

import (
	"context"
	"time"
)

// DefaultID is the name of the counter addressed when a request does
// not name one.
const DefaultID = "default"

// MaxIDLength is the longest counter ID, in bytes, that any backend is
// required to store.
const MaxIDLength = 255

// Record is the single persisted document for one counter.
type Record struct {
	// ID is the immutable name of the counter.
	ID string

	// Value is the current value of the counter.
	Value int64

	// CreatedAt is the time the record was first stored.  It is
	// the zero time for a record that has never been stored.
	CreatedAt time.Time

	// LastUpdated is the time of the most recent write.
	LastUpdated time.Time

	// LastUser names the caller that performed the most recent
	// write.
	LastUser string

	// Version is a store-maintained write counter.  Zero means the
	// record does not exist in the store; every successful Put
	// stores Version+1.
	Version int64
}

// Exists returns true if this record has been stored at least once.
func (r Record) Exists() bool {
	return r.Version > 0
}

// Store is the persistence interface a backend implements.  A Store
// does not interpret Value at all.
type Store interface {
	// Get retrieves a record by its ID.  If no record exists,
	// returns ErrNoSuchCounter.
	Get(ctx context.Context, id string) (Record, error)

	// Put writes a record if and only if the stored version equals
	// rec.Version, where version 0 means "no record is stored".
	// On success the stored copy has Version rec.Version+1 and is
	// returned.  If the condition fails, returns ErrConflict and
	// changes nothing.
	Put(ctx context.Context, rec Record) (Record, error)

	// Delete removes a record.  If no record exists, returns
	// ErrNoSuchCounter.
	Delete(ctx context.Context, id string) error

	// Close releases any connections held by the store.
	Close() error
}

// Counters is the principal interface to the counter system.
type Counters interface {
	// Counter retrieves a counter by ID, creating it with value 0
	// if it does not exist yet.
	Counter(ctx context.Context, id string) (Record, error)

	// Apply performs a single operation on a counter, creating it
	// first if needed, on behalf of user.  Returns the record as
	// stored after the operation.
	Apply(ctx context.Context, id string, op Operation, user string) (Record, error)

	// Delete removes a counter.  If it does not exist, returns
	// ErrNoSuchCounter.
	Delete(ctx context.Context, id string) error
}

// ValidID checks that a counter ID can be stored.  It returns
// ErrBadCounterID if not.
func ValidID(id string) error {
	if id == "" || len(id) > MaxIDLength {
		return ErrBadCounterID{ID: id}
	}
	return nil
}
