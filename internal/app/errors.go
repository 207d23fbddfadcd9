package service

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrNotStarted means jobs were submitted before Start or after Stop.
	ErrNotStarted = errors.New("service not started")
	// ErrDuplicateVideo means the same video is already being analyzed.
	ErrDuplicateVideo = errors.New("video already in flight")
	// ErrInvalidRequest means a request is missing a required field.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNoVideoIO means the service was built without a video reader.
	ErrNoVideoIO = errors.New("video io not configured")
)
