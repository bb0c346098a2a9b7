package repository

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrCapacityExceeded = errors.New("event capacity exceeded")
	ErrAlreadyUsed      = errors.New("ticket already used")
	ErrCancelled        = errors.New("ticket cancelled")
	ErrRetryable        = errors.New("retryable storage conflict")
)
