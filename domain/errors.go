package domain

import "errors"

var (
	// ErrNotFound indicates the task vanished before the write landed.
	ErrNotFound = errors.New("task not found")
	// ErrConflict indicates the task was changed concurrently by another actor.
	ErrConflict = errors.New("concurrency conflict")
	// ErrRemoteUnavailable indicates the board service could not be reached.
	ErrRemoteUnavailable = errors.New("remote unavailable")
	// ErrTimeout indicates a round trip exceeded its deadline.
	ErrTimeout = errors.New("remote timeout")
	// ErrInvalidStatus is returned for values outside the four board columns.
	ErrInvalidStatus = errors.New("invalid status")
)
