package session

import (
	"errors"
	"fmt"
)

// Sentinel kinds for session errors.
var (
	// ErrNotReady means a required capability is not loaded.
	ErrNotReady = errors.New("capability not ready")
	// ErrBadInput means the frame source cannot be used.
	ErrBadInput = errors.New("bad input")
	// ErrCancelled means the caller stopped the session; the partial analysis is still returned.
	ErrCancelled = errors.New("session cancelled")
	// ErrFrameDecode marks a frame the source could not decode. It is frame-local.
	ErrFrameDecode = errors.New("frame decode failed")
	// ErrTooManyFailures means consecutive frame failures exceeded the configured limit.
	ErrTooManyFailures = errors.New("too many consecutive frame failures")
)

// Stage names reported by FatalError.
const (
	StageDetectorReady  = "detector_ready"
	StageLandmarksReady = "landmarks_ready"
	StageOpenSource     = "open_source"
	StageSourceMetadata = "source_metadata"
	StageFrames         = "frames"
)

// FatalError aborts a session. It matches both its kind and its cause with errors.Is.
type FatalError struct {
	Stage string
	Kind  error
	Err   error
}

func (e *FatalError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap exposes the kind and the cause.
func (e *FatalError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func fatal(stage string, kind, err error) error {
	return &FatalError{Stage: stage, Kind: kind, Err: err}
}

// StageOf returns the stage of a fatal error, or "" when err is not one.
func StageOf(err error) string {
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe.Stage
	}
	return ""
}
