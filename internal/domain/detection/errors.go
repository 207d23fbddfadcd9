package detection

import "errors"

// Sentinel kinds for detection errors.
var (
	// ErrDetectorUnavailable means the detector model is not loaded or cannot be reached.
	ErrDetectorUnavailable = errors.New("detector unavailable")
	// ErrInference means the detector was reachable but failed on this input.
	ErrInference = errors.New("inference failed")
)
