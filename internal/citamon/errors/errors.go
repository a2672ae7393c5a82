// Package errors holds the sentinel errors shared by the monitor packages and
// the mapping from those errors to process exit codes.
package errors

import (
	"errors"
	"fmt"
)

// Process exit codes of the control commands.
const (
	ExitOK             = 0
	ExitFailure        = 1
	ExitAlreadyRunning = 2
	ExitConfig         = 3
	ExitNotRunning     = 4
)

// Sentinel errors for common error conditions
var (
	// Configuration errors
	ErrMissingConfig = errors.New("missing required settings")
	ErrInvalidConfig = errors.New("invalid configuration")

	// Run state errors
	ErrAlreadyRunning = errors.New("monitor already running")
	ErrNotRunning     = errors.New("monitor not running")
	ErrMarkerCorrupt  = errors.New("run state marker is corrupt")

	// Notification errors
	ErrEmailFailed       = errors.New("email notification failed")
	ErrChannelDisabled   = errors.New("channel not configured")
	ErrAllChannelsFailed = errors.New("all notification channels failed")
)

// Wrap wraps an error with additional context
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is checks if the error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As checks if the error can be unwrapped to the target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// ExitCode maps an error returned by a control command to its exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrAlreadyRunning):
		return ExitAlreadyRunning
	case errors.Is(err, ErrMissingConfig), errors.Is(err, ErrInvalidConfig):
		return ExitConfig
	case errors.Is(err, ErrNotRunning):
		return ExitNotRunning
	default:
		return ExitFailure
	}
}
