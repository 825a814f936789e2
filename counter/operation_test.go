// Unit tests for operation.go.
//
// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package counter_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/diffeo/go-counter/counter"
)

type ActionMatrix struct {
	Action      counter.Action
	JSON        string
	EncodeError string
}

var actions = []ActionMatrix{
	{counter.Increment, "increment", ""},
	{counter.Decrement, "decrement", ""},
	{counter.Reset, "reset", ""},
	{counter.Set, "set", ""},
	{counter.Action(17), "seventeen", "invalid action (marshal, 17)"},
}

func TestActionToJSON(t *testing.T) {
	for _, a := range actions {
		t.Run(a.JSON, func(tt *testing.T) {
			actual, err := json.Marshal(a.Action)
			if a.EncodeError == "" {
				if assert.NoError(tt, err) {
					assert.Equal(tt, "\""+a.JSON+"\"", string(actual))
				}
			} else {
				assert.Error(tt, err)
			}
		})
	}
}

func TestParseAction(t *testing.T) {
	for _, a := range actions {
		t.Run(a.JSON, func(tt *testing.T) {
			actual, err := counter.ParseAction(a.JSON)
			if a.EncodeError == "" {
				if assert.NoError(tt, err) {
					assert.Equal(tt, a.Action, actual)
				}
			} else {
				assert.Equal(tt, counter.ErrBadAction, err)
			}
		})
	}
}

func TestParseActionLoose(t *testing.T) {
	action, err := counter.ParseAction("  Increment ")
	if assert.NoError(t, err) {
		assert.Equal(t, counter.Increment, action)
	}

	_, err = counter.ParseAction("")
	assert.Equal(t, counter.ErrMissingAction, err)

	_, err = counter.ParseAction("explode")
	assert.Equal(t, counter.ErrBadAction, err)
}

func TestApply(t *testing.T) {
	rec := counter.Record{ID: "x", Value: 5}
	tests := []struct {
		Name  string
		Op    counter.Operation
		Value int64
		Err   error
	}{
		{"increment", counter.Operation{Action: counter.Increment}, 6, nil},
		{"decrement", counter.Operation{Action: counter.Decrement}, 4, nil},
		{"reset", counter.Operation{Action: counter.Reset}, 0, nil},
		{"set", counter.Operation{Action: counter.Set, Value: -12}, -12, nil},
		{"none", counter.Operation{}, 5, counter.ErrMissingAction},
		{"bogus", counter.Operation{Action: counter.Action(99)}, 5, counter.ErrBadAction},
	}
	for _, test := range tests {
		t.Run(test.Name, func(tt *testing.T) {
			actual, err := test.Op.Apply(rec)
			assert.Equal(tt, test.Err, err)
			assert.Equal(tt, test.Value, actual.Value)
			assert.Equal(tt, "x", actual.ID)
		})
	}
}

func TestApplyRoundTrip(t *testing.T) {
	rec := counter.Record{Value: 41}
	up, err := counter.Operation{Action: counter.Increment}.Apply(rec)
	assert.NoError(t, err)
	down, err := counter.Operation{Action: counter.Decrement}.Apply(up)
	assert.NoError(t, err)
	assert.Equal(t, rec.Value, down.Value)
}

func TestApplyOverflow(t *testing.T) {
	_, err := counter.Operation{Action: counter.Increment}.Apply(counter.Record{Value: math.MaxInt64})
	assert.Equal(t, counter.ErrOverflow, err)

	_, err = counter.Operation{Action: counter.Decrement}.Apply(counter.Record{Value: math.MinInt64})
	assert.Equal(t, counter.ErrOverflow, err)
}

func TestValidID(t *testing.T) {
	assert.NoError(t, counter.ValidID("default"))
	assert.Error(t, counter.ValidID(""))
	long := make([]byte, counter.MaxIDLength+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, counter.ValidID(string(long)))
	assert.NoError(t, counter.ValidID(string(long[1:])))
}
