package service

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by Service matches exactly one of these
// with errors.Is.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNoImage         = errors.New("no image provided")
	ErrStorage         = errors.New("storage failure")
	ErrDetector        = errors.New("detector failure")
	ErrMalformedOutput = errors.New("malformed detector output")
	ErrUpload          = errors.New("upload failure")
	ErrPersistence     = errors.New("persistence failure")
	ErrNotification    = errors.New("notification failure")

	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnavailable   = errors.New("feature unavailable")
	ErrMisconfigured = errors.New("service misconfigured")
)

var kindCodes = map[error]string{
	ErrUnauthenticated: "unauthenticated",
	ErrNoImage:         "no_image",
	ErrStorage:         "storage_failure",
	ErrDetector:        "detector_failure",
	ErrMalformedOutput: "malformed_detector_output",
	ErrUpload:          "upload_failure",
	ErrPersistence:     "persistence_failure",
	ErrNotification:    "notification_failure",
	ErrNotFound:        "not_found",
	ErrInvalidInput:    "invalid_input",
	ErrUnavailable:     "unavailable",
}

// Stage names a pipeline state.
type Stage string

// Pipeline stages in execution order.
const (
	StageAuthenticating Stage = "authenticating"
	StageStaging        Stage = "staging"
	StageDetecting      Stage = "detecting"
	StageArchiving      Stage = "archiving"
	StagePersisting     Stage = "persisting"
	StageNotifying      Stage = "notifying"
)

// StageError reports which stage failed and how. Kind is one of the package
// sentinels; Err carries the underlying cause for server-side logs.
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

// Is matches the failure kind.
func (e *StageError) Is(target error) bool { return target == e.Kind }

// Unwrap returns the cause.
func (e *StageError) Unwrap() error { return e.Err }

func fail(stage Stage, kind, cause error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: cause}
}

// KindCode returns the stable code of err's failure kind, or "internal".
func KindCode(err error) string {
	if err == nil {
		return ""
	}
	for kind, code := range kindCodes {
		if errors.Is(err, kind) {
			return code
		}
	}
	return "internal"
}
