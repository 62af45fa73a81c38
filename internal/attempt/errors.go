package attempt

import "errors"

// All errors below are caller-recoverable; the HTTP layer maps them to user
// facing responses with errors.Is.
var (
	// ErrAttemptLimitExceeded: creating an attempt would pass MaxAttempts.
	ErrAttemptLimitExceeded = errors.New("attempt limit exceeded")
	// ErrNoActiveAttempt: no in-progress attempt exists for the pair.
	ErrNoActiveAttempt = errors.New("no active attempt")
	// ErrInvalidAttemptState: the attempt is not in a state permitting the
	// requested transition (e.g. saving into a submitted attempt).
	ErrInvalidAttemptState = errors.New("invalid attempt state")
	// ErrAttemptExpired: the time limit elapsed before the operation.
	ErrAttemptExpired = errors.New("attempt expired")
	// ErrInvalidAnswer: question or option index out of range.
	ErrInvalidAnswer = errors.New("invalid answer")

	ErrNotFound = errors.New("attempt not found")

	// errActiveAttemptExists is the store-level signal that the one-in-progress
	// uniqueness guard rejected a create. The service resolves it by returning
	// the winning attempt.
	errActiveAttemptExists = errors.New("active attempt exists")
)
