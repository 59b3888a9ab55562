package detector

import (
	"errors"
	"fmt"
)

// Sentinel kinds for detector errors.
var (
	ErrDetectorFailed  = errors.New("detector failed")
	ErrMalformedOutput = errors.New("malformed detector output")
	ErrInvalidConfig   = errors.New("invalid detector config")
)

// ExitError reports a detector that exited with a non-zero status. Stderr is
// kept for server-side diagnostics only.
type ExitError struct {
	Code   int
	Stderr []byte
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("detector exited with code %d", e.Code)
}

// Is matches ErrDetectorFailed.
func (e *ExitError) Is(target error) bool { return target == ErrDetectorFailed }

// MalformedOutputError reports stdout that could not be parsed as detections.
type MalformedOutputError struct {
	Raw []byte
	Err error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("%s: %v", ErrMalformedOutput, e.Err)
}

// Is matches ErrMalformedOutput.
func (e *MalformedOutputError) Is(target error) bool { return target == ErrMalformedOutput }

func (e *MalformedOutputError) Unwrap() error { return e.Err }
