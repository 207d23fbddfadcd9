package fieldmap

import "errors"

// Sentinel kinds for field mapping errors.
var (
	// ErrLandmarksUnavailable means the landmark detector is not loaded or cannot be reached.
	ErrLandmarksUnavailable = errors.New("landmark detector unavailable")
	// ErrLandmarks means the landmark detector failed on this input.
	ErrLandmarks = errors.New("landmark detection failed")
)
