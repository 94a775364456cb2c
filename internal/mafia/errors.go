package mafia

import "errors"

// Error taxonomy. Components wrap these with fmt.Errorf("%w: ...") and
// callers classify with errors.Is.
var (
	// ErrValidation marks malformed scenario or stage data. Fatal at load.
	ErrValidation = errors.New("validation error")
	// ErrInvalidState marks an operation against the wrong room or stage status.
	ErrInvalidState = errors.New("invalid state")
	// ErrNotEligible marks a voter or target eligibility violation.
	ErrNotEligible = errors.New("not eligible")
	// ErrNotFound marks a room, player, scenario or stage lookup miss.
	ErrNotFound = errors.New("not found")
	// ErrConcurrencyConflict marks a store write collision.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrNoActiveVote marks a vote event for a room with no open window.
	ErrNoActiveVote = errors.New("no active vote")
)
