package chat

import "errors"

var (
	// ErrInvalidArgument marks malformed identifiers or empty required fields.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound marks a referenced conversation that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStorageUnavailable marks a store that cannot be reached at all.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrPersistenceFailed marks a write that could not be confirmed by
	// reading the record back.
	ErrPersistenceFailed = errors.New("persistence failed")
)
