// Package memory provides an in-process, in-memory implementation of
// a counter store.  There is no persistence on this store, nor is
// there any automatic sharing.  The entire store is behind a single
// lock to protect against concurrent updates.
//
// This is mostly intended as a simple reference implementation of
// counter.Store that can be used for testing, including in-process
// testing of higher-level components such as the REST server.
package memory

import (
	"context"
	"sync"

	"github.com/diffeo/go-counter/counter"
)

// This is the only external entry point to this package:

// New creates a new counter store that operates purely in memory.
func New() counter.Store {
	return &memStore{
		records: make(map[string]counter.Record),
	}
}

type memStore struct {
	records map[string]counter.Record
	sem     sync.Mutex
}

// do runs f under the global lock.  If the context is already done,
// does not run f and returns the context's error.
func (s *memStore) do(ctx context.Context, f func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.sem.Lock()
	defer s.sem.Unlock()
	return f()
}

func (s *memStore) Get(ctx context.Context, id string) (rec counter.Record, err error) {
	err = s.do(ctx, func() error {
		var present bool
		rec, present = s.records[id]
		if !present {
			return counter.ErrNoSuchCounter{ID: id}
		}
		return nil
	})
	return
}

func (s *memStore) Put(ctx context.Context, rec counter.Record) (stored counter.Record, err error) {
	err = s.do(ctx, func() error {
		if s.records[rec.ID].Version != rec.Version {
			return counter.ErrConflict
		}
		stored = rec
		stored.Version++
		s.records[rec.ID] = stored
		return nil
	})
	return
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	return s.do(ctx, func() error {
		if _, present := s.records[id]; !present {
			return counter.ErrNoSuchCounter{ID: id}
		}
		delete(s.records, id)
		return nil
	})
}

func (s *memStore) Close() error {
	return nil
}
