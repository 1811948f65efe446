package types

import "errors"

var (
	// ErrNotFound is returned when no experiment carries the requested id.
	ErrNotFound = errors.New("experiment not found")

	// ErrReferenceColumnMissing is returned when no column looks like a reference column.
	ErrReferenceColumnMissing = errors.New("reference column missing")

	// ErrMalformedInput is returned for tables or values that cannot be accepted.
	ErrMalformedInput = errors.New("malformed input")

	// ErrStorageUnavailable is returned when the backing file exists but cannot be read or parsed.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrUnauthorized is returned when credentials do not match.
	ErrUnauthorized = errors.New("invalid credentials")
)
