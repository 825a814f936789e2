// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package counter

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultMaxRetries is the number of times Service retries a
// read-modify-write cycle that lost a race to another writer.
const DefaultMaxRetries = 32

// Service implements Counters on top of a Store.  Every operation is a
// read, an in-process update, and a conditional write; if the write
// loses a race it is retried from the read.
type Service struct {
	// Store is the underlying persistent storage.
	Store Store

	// Clock provides timestamps for records.  If nil, uses the
	// real wall clock.
	Clock clock.Clock

	// MaxRetries bounds the number of conflicting writes tolerated
	// for a single operation.  If zero, uses DefaultMaxRetries.
	MaxRetries int
}

// NewService creates a Service over a store with the real clock.
func NewService(store Store) *Service {
	return &Service{Store: store, Clock: clock.New()}
}

func (s *Service) now() clock.Clock {
	if s.Clock == nil {
		return clock.New()
	}
	return s.Clock
}

func (s *Service) maxRetries() int {
	if s.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return s.MaxRetries
}

// fetch gets a record, or a fresh unstored zero-valued record if
// the store does not have one.
func (s *Service) fetch(ctx context.Context, id string) (Record, error) {
	rec, err := s.Store.Get(ctx, id)
	if _, missing := errors.Cause(err).(ErrNoSuchCounter); missing {
		return Record{ID: id}, nil
	}
	return rec, err
}

// update runs one read-modify-write cycle, retrying on conflict.
// change returns the record to write, or write=false if the fetched
// record should be returned as is.
func (s *Service) update(ctx context.Context, id string, ifMatch int64, change func(Record) (rec Record, write bool, err error)) (Record, error) {
	if err := ValidID(id); err != nil {
		return Record{}, err
	}
	var (
		rec   Record
		err   error
		write bool
	)
	for try := 0; try <= s.maxRetries(); try++ {
		rec, err = s.fetch(ctx, id)
		if err != nil {
			return Record{}, err
		}
		if ifMatch != 0 && rec.Version != ifMatch {
			return rec, ErrPrecondition
		}
		rec, write, err = change(rec)
		if err != nil || !write {
			return rec, err
		}
		rec, err = s.Store.Put(ctx, rec)
		if errors.Cause(err) != ErrConflict {
			return rec, err
		}
		if ifMatch != 0 {
			return rec, ErrPrecondition
		}
		logrus.WithFields(logrus.Fields{
			"counter": id,
			"try":     try,
		}).Debug("Conflicting counter write, retrying")
	}
	return Record{}, err
}

// Counter retrieves a counter, creating it at zero if needed.
func (s *Service) Counter(ctx context.Context, id string) (Record, error) {
	return s.update(ctx, id, 0, func(rec Record) (Record, bool, error) {
		if rec.Exists() {
			return rec, false, nil
		}
		now := s.now().Now()
		rec.CreatedAt = now
		rec.LastUpdated = now
		return rec, true, nil
	})
}

// Apply performs an operation on a counter.
func (s *Service) Apply(ctx context.Context, id string, op Operation, user string) (Record, error) {
	return s.update(ctx, id, op.IfMatch, func(rec Record) (Record, bool, error) {
		rec, err := op.Apply(rec)
		if err != nil {
			return rec, false, err
		}
		now := s.now().Now()
		if !rec.Exists() {
			rec.CreatedAt = now
		}
		rec.LastUpdated = now
		rec.LastUser = user
		return rec, true, nil
	})
}

// Delete removes a counter from the store.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := ValidID(id); err != nil {
		return err
	}
	return s.Store.Delete(ctx, id)
}
