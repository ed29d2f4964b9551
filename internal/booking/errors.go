package booking

import "errors"

var (
	// ErrLoginFailed marks an authentication rejection; terminal for one
	// pipeline run, retryable only through the global retry wrapper.
	ErrLoginFailed = errors.New("login failed")
	// ErrSeatNotFound marks a resolution miss (unmapped floor or a seat the
	// topology does not currently offer).
	ErrSeatNotFound = errors.New("seat not found or invalid seat number")
)
