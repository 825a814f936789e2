// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/diffeo/go-counter/counter"
	"github.com/diffeo/go-counter/counter/countertest"
	"github.com/diffeo/go-counter/sqlite"
)

// Suite runs the generic counter tests against an in-memory SQLite
// database.
type Suite struct {
	countertest.Suite
}

// SetupSuite creates the backend.
func (s *Suite) SetupSuite() {
	s.Suite.SetupSuite()
	store, err := sqlite.New(":memory:")
	s.Require().NoError(err)
	s.Store = store
	s.Counters = &counter.Service{Store: store, Clock: s.Clock}
}

// TestCounters runs the generic counter tests with SQLite.
func TestCounters(t *testing.T) {
	suite.Run(t, &Suite{})
}

// TestPersistence checks that a file database keeps its contents
// across reopening.
func TestPersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "counters.db")

	store, err := sqlite.New(path)
	require.NoError(t, err)
	_, err = store.Put(ctx, counter.Record{ID: "c", Value: 17, LastUser: "me"})
	require.NoError(t, err)
	// Write-ahead logging keeps its log beside the database while open
	assert.FileExists(t, path+"-wal")
	require.NoError(t, store.Close())

	store, err = sqlite.New(path)
	require.NoError(t, err)
	defer store.Close()
	rec, err := store.Get(ctx, "c")
	if assert.NoError(t, err) {
		assert.Equal(t, int64(17), rec.Value)
		assert.Equal(t, "me", rec.LastUser)
		assert.Equal(t, int64(1), rec.Version)
	}

	_, err = store.Put(ctx, counter.Record{ID: "c", Value: 18})
	assert.Equal(t, counter.ErrConflict, err)
}
