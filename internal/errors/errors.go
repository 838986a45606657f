package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session client
var (
	// Session errors
	ErrNoSession         = errors.New("no session")
	ErrIncompleteSession = errors.New("incomplete session")
	ErrSessionEnded      = errors.New("session ended")
	ErrSessionReplaced   = errors.New("session replaced")

	// Token errors
	ErrRefreshFailed = errors.New("token refresh failed")
	ErrUnauthorized  = errors.New("unauthorized")

	// Storage errors
	ErrNotFound       = errors.New("not found")
	ErrStorageCorrupt = errors.New("stored session is corrupt")

	// General errors
	ErrInvalidRequest = errors.New("invalid request")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
