// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package countertest provides generic functional tests for the
// Counters interface.  A typical backend test module needs to wrap
// Suite to create its backend:
//
//     package mybackend
//
//     import (
//             "testing"
//             "github.com/diffeo/go-counter/counter"
//             "github.com/diffeo/go-counter/counter/countertest"
//             "github.com/stretchr/testify/suite"
//     )
//
//     // Suite is the per-backend generic test suite.
//     type Suite struct{
//             countertest.Suite
//     }
//
//     // SetupSuite does global setup for the test suite.
//     func (s *Suite) SetupSuite() {
//             s.Suite.SetupSuite()
//             s.Counters = &counter.Service{
//                     Store: New(),
//                     Clock: s.Clock,
//             }
//     }
//
//     // TestCounters runs the Counters generic tests.
//     func TestCounters(t *testing.T) {
//             suite.Run(t, &Suite{})
//     }
package countertest

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/satori/go.uuid"
	"github.com/stretchr/testify/suite"

	"github.com/diffeo/go-counter/counter"
)

// Suite is the generic Counters test suite.
type Suite struct {
	suite.Suite

	// Clock contains the alternate time source to be used in tests.  It
	// is pre-initialized to a mock clock.
	Clock *clock.Mock

	// Counters contains the top-level interface to the backend
	// under test.  It is set by importing packages.
	Counters counter.Counters

	// Store, if set, is closed at the end of the suite.
	Store counter.Store

	// SkipTimestamps disables assertions on exact timestamps, for
	// backends that do not use the mock clock or that round times.
	SkipTimestamps bool
}

// SetupSuite does one-time initialization for the test suite.
func (s *Suite) SetupSuite() {
	s.Clock = clock.NewMock()
	s.Clock.Set(time.Date(2017, 3, 14, 15, 9, 26, 0, time.UTC))
}

// TearDownSuite closes the store, if there is one.
func (s *Suite) TearDownSuite() {
	if s.Store != nil {
		s.NoError(s.Store.Close())
	}
}

// Context returns the context used for test calls.
func (s *Suite) Context() context.Context {
	return context.Background()
}

// NewID returns a counter ID that no other test uses, so that tests
// against persistent backends do not interfere with each other.
func (s *Suite) NewID() string {
	return "test-" + uuid.NewV4().String()
}

// apply performs an operation that is expected to succeed.
func (s *Suite) apply(id string, action counter.Action) counter.Record {
	rec, err := s.Counters.Apply(s.Context(), id, counter.Operation{Action: action}, "tester")
	s.Require().NoError(err)
	return rec
}

// sameTime checks that two times are the same instant, unless the
// backend opted out of exact timestamp checks.
func (s *Suite) sameTime(expected, actual time.Time, msgAndArgs ...interface{}) {
	if s.SkipTimestamps {
		s.False(actual.IsZero(), msgAndArgs...)
		return
	}
	s.True(expected.Equal(actual), "expected %v, got %v", expected, actual)
}
