package repository

import "errors"

// Sentinel kinds for job store errors.
var (
	ErrNotFound     = errors.New("job not found")
	ErrInvalidLimit = errors.New("invalid list limit")
	ErrDuplicateID  = errors.New("job id already exists")
	ErrTerminal     = errors.New("job already finished")
)
