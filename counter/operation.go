// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package counter

import (
	"fmt"
	"math"
	"strings"
)

// Action is one of the ways a counter value can change.
type Action int

const (
	// NoAction is the zero value, and is not a valid action to
	// apply.
	NoAction Action = iota

	// Increment adds one to the counter.
	Increment

	// Decrement subtracts one from the counter.
	Decrement

	// Reset sets the counter to zero.
	Reset

	// Set sets the counter to an explicit value.
	Set
)

// Actions lists all of the valid actions.
var Actions = []Action{Increment, Decrement, Reset, Set}

// ParseAction converts a user-provided action name to an Action.  An
// empty string returns ErrMissingAction, and anything else that is
// not an action name returns ErrBadAction.  Matching ignores case and
// surrounding whitespace.
func ParseAction(s string) (Action, error) {
	var action Action
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return NoAction, ErrMissingAction
	}
	err := action.UnmarshalText([]byte(s))
	return action, err
}

func (action Action) String() string {
	text, err := action.MarshalText()
	if err != nil {
		return fmt.Sprintf("Action(%d)", int(action))
	}
	return string(text)
}

// MarshalText returns a string representing an action.
func (action Action) MarshalText() ([]byte, error) {
	switch action {
	case Increment:
		return []byte("increment"), nil
	case Decrement:
		return []byte("decrement"), nil
	case Reset:
		return []byte("reset"), nil
	case Set:
		return []byte("set"), nil
	default:
		return nil, fmt.Errorf("invalid action (marshal, %+v)", int(action))
	}
}

// UnmarshalText populates an action from a string.  An empty string
// produces NoAction without error; ParseAction is stricter.
func (action *Action) UnmarshalText(text []byte) error {
	switch string(text) {
	case "":
		*action = NoAction
	case "increment":
		*action = Increment
	case "decrement":
		*action = Decrement
	case "reset":
		*action = Reset
	case "set":
		*action = Set
	default:
		return ErrBadAction
	}
	return nil
}

// Operation is a single change to a counter.
type Operation struct {
	// Action says what to do.
	Action Action

	// Value is the new value for a Set action, and is ignored
	// otherwise.
	Value int64

	// IfMatch, if nonzero, is the version the caller expects the
	// counter to be at.  If the counter is at a different version
	// the operation fails with ErrPrecondition instead of being
	// retried.
	IfMatch int64
}

// Apply computes the value of a record after this operation.  The
// metadata fields are not changed.
func (op Operation) Apply(rec Record) (Record, error) {
	switch op.Action {
	case Increment:
		if rec.Value == math.MaxInt64 {
			return rec, ErrOverflow
		}
		rec.Value++
	case Decrement:
		if rec.Value == math.MinInt64 {
			return rec, ErrOverflow
		}
		rec.Value--
	case Reset:
		rec.Value = 0
	case Set:
		rec.Value = op.Value
	case NoAction:
		return rec, ErrMissingAction
	default:
		return rec, ErrBadAction
	}
	return rec, nil
}
