// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package countertest

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/diffeo/go-counter/counter"
)

// TestMissingCounterIsZero checks that reading a counter that was
// never written produces zero, and that doing so creates it.
func (s *Suite) TestMissingCounterIsZero() {
	id := s.NewID()
	rec, err := s.Counters.Counter(s.Context(), id)
	if s.NoError(err) {
		s.Equal(id, rec.ID)
		s.Equal(int64(0), rec.Value)
		s.Equal(int64(1), rec.Version)
		s.sameTime(s.Clock.Now(), rec.CreatedAt)
		s.sameTime(s.Clock.Now(), rec.LastUpdated)
	}

	// Reading it again does not write again
	s.Clock.Add(time.Minute)
	again, err := s.Counters.Counter(s.Context(), id)
	if s.NoError(err) {
		s.Equal(int64(0), again.Value)
		s.Equal(rec.Version, again.Version)
		s.sameTime(rec.CreatedAt, again.CreatedAt)
	}
}

// TestIncrementDecrement checks that an increment followed by a
// decrement returns to the original value.
func (s *Suite) TestIncrementDecrement() {
	id := s.NewID()
	s.apply(id, counter.Increment)
	s.apply(id, counter.Increment)
	before, err := s.Counters.Counter(s.Context(), id)
	s.Require().NoError(err)
	s.Equal(int64(2), before.Value)

	up := s.apply(id, counter.Increment)
	s.Equal(int64(3), up.Value)
	down := s.apply(id, counter.Decrement)
	s.Equal(before.Value, down.Value)
}

// TestDecrementBelowZero checks that counters can go negative.
func (s *Suite) TestDecrementBelowZero() {
	id := s.NewID()
	rec := s.apply(id, counter.Decrement)
	s.Equal(int64(-1), rec.Value)
}

// TestReset checks that reset always yields zero.
func (s *Suite) TestReset() {
	id := s.NewID()
	rec := s.apply(id, counter.Reset)
	s.Equal(int64(0), rec.Value)

	for i := 0; i < 5; i++ {
		s.apply(id, counter.Increment)
	}
	rec = s.apply(id, counter.Reset)
	s.Equal(int64(0), rec.Value)

	rec, err := s.Counters.Counter(s.Context(), id)
	if s.NoError(err) {
		s.Equal(int64(0), rec.Value)
	}
}

// TestSet checks that set stores an explicit value.
func (s *Suite) TestSet() {
	id := s.NewID()
	rec, err := s.Counters.Apply(s.Context(), id, counter.Operation{
		Action: counter.Set,
		Value:  1234567890123,
	}, "tester")
	if s.NoError(err) {
		s.Equal(int64(1234567890123), rec.Value)
	}
	rec = s.apply(id, counter.Increment)
	s.Equal(int64(1234567890124), rec.Value)
}

// TestInvalidAction checks that an unknown action is rejected and
// does not create the counter.
func (s *Suite) TestInvalidAction() {
	id := s.NewID()
	_, err := s.Counters.Apply(s.Context(), id, counter.Operation{Action: counter.Action(42)}, "tester")
	s.Equal(counter.ErrBadAction, errors.Cause(err))

	_, err = s.Counters.Apply(s.Context(), id, counter.Operation{}, "tester")
	s.Equal(counter.ErrMissingAction, errors.Cause(err))

	err = s.Counters.Delete(s.Context(), id)
	s.IsType(counter.ErrNoSuchCounter{}, errors.Cause(err))
}

// TestMetadata checks creation and update times and the last user.
func (s *Suite) TestMetadata() {
	id := s.NewID()
	start := s.Clock.Now()
	rec, err := s.Counters.Apply(s.Context(), id, counter.Operation{Action: counter.Increment}, "alice")
	s.Require().NoError(err)
	s.Equal("alice", rec.LastUser)
	s.sameTime(start, rec.CreatedAt)
	s.sameTime(start, rec.LastUpdated)
	s.Equal(int64(1), rec.Version)

	s.Clock.Add(time.Hour)
	rec, err = s.Counters.Apply(s.Context(), id, counter.Operation{Action: counter.Increment}, "bob")
	s.Require().NoError(err)
	s.Equal("bob", rec.LastUser)
	s.sameTime(start, rec.CreatedAt)
	s.sameTime(start.Add(time.Hour), rec.LastUpdated)
	s.Equal(int64(2), rec.Version)

	rec, err = s.Counters.Counter(s.Context(), id)
	if s.NoError(err) {
		s.Equal("bob", rec.LastUser)
		s.Equal(int64(2), rec.Value)
	}
}

// TestDelete checks that a deleted counter comes back at zero, and
// that deleting a missing counter fails.
func (s *Suite) TestDelete() {
	id := s.NewID()
	s.apply(id, counter.Increment)
	s.NoError(s.Counters.Delete(s.Context(), id))

	err := s.Counters.Delete(s.Context(), id)
	if s.IsType(counter.ErrNoSuchCounter{}, errors.Cause(err)) {
		s.Equal(id, errors.Cause(err).(counter.ErrNoSuchCounter).ID)
	}

	rec, err := s.Counters.Counter(s.Context(), id)
	if s.NoError(err) {
		s.Equal(int64(0), rec.Value)
		s.Equal(int64(1), rec.Version)
	}
}

// TestIfMatch checks that an explicit expected version is honored.
func (s *Suite) TestIfMatch() {
	id := s.NewID()
	rec := s.apply(id, counter.Increment)

	_, err := s.Counters.Apply(s.Context(), id, counter.Operation{
		Action:  counter.Increment,
		IfMatch: rec.Version + 1,
	}, "tester")
	s.Equal(counter.ErrPrecondition, errors.Cause(err))

	rec, err = s.Counters.Apply(s.Context(), id, counter.Operation{
		Action:  counter.Increment,
		IfMatch: rec.Version,
	}, "tester")
	if s.NoError(err) {
		s.Equal(int64(2), rec.Value)
	}
}

// TestConcurrentIncrements checks that many simultaneous increments
// do not lose updates.
func (s *Suite) TestConcurrentIncrements() {
	const workers = 4
	const each = 5
	id := s.NewID()
	var wg sync.WaitGroup
	errs := make(chan error, workers*each)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				_, err := s.Counters.Apply(s.Context(), id, counter.Operation{Action: counter.Increment}, "tester")
				if err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}
	rec, err := s.Counters.Counter(s.Context(), id)
	if s.NoError(err) {
		s.Equal(int64(workers*each), rec.Value)
	}
}

// TestIndependentCounters checks that counters do not share state.
func (s *Suite) TestIndependentCounters() {
	a, b := s.NewID(), s.NewID()
	s.apply(a, counter.Increment)
	s.apply(a, counter.Increment)
	rec := s.apply(b, counter.Decrement)
	s.Equal(int64(-1), rec.Value)
	rec, err := s.Counters.Counter(s.Context(), a)
	if s.NoError(err) {
		s.Equal(int64(2), rec.Value)
	}
}
