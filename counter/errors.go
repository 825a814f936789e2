package counter

import (
	"errors"
	"fmt"
)

// ErrMissingAction is returned when a request to change a counter
// does not say what to do.
var ErrMissingAction = errors.New("No action specified")

// ErrBadAction is returned from ParseAction() and related functions if
// the action name is not one of the known actions.
var ErrBadAction = errors.New("Invalid action")

// ErrMissingValue is returned when a "set" operation has no value.
var ErrMissingValue = errors.New("No value specified")

// ErrConflict is returned from Store.Put() if the stored version does
// not match the version of the record being written.
var ErrConflict = errors.New("Counter was modified concurrently")

// ErrPrecondition is returned from Counters.Apply() if the caller
// supplied an expected version and the counter is at some other
// version.
var ErrPrecondition = errors.New("Counter version does not match")

// ErrOverflow is returned if incrementing or decrementing a counter
// would overflow its integer range.
var ErrOverflow = errors.New("Counter value out of range")

// ErrNoSuchCounter is returned by Store.Get() and Counters.Delete()
// when the named counter does not exist.
type ErrNoSuchCounter struct {
	ID string
}

func (err ErrNoSuchCounter) Error() string {
	return fmt.Sprintf("No such counter %v", err.ID)
}

// ErrBadCounterID is returned if a counter ID is empty or too long.
type ErrBadCounterID struct {
	ID string
}

func (err ErrBadCounterID) Error() string {
	if err.ID == "" {
		return "Empty counter ID"
	}
	return fmt.Sprintf("Invalid counter ID %q", err.ID)
}
