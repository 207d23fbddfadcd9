// Package repository stores video analysis jobs.
package repository

import (
	"context"
	"time"

	"github.com/okian/pitchvision/internal/domain/types"
)

// Status is the lifecycle state of a job.
type Status string

// Job states. A job moves from queued to running and ends in exactly one terminal state.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is one video analysis request and its outcome.
type Job struct {
	ID                  string               `json:"id"`
	VideoPath           string               `json:"video_path"`
	OutputPath          string               `json:"output_path,omitempty"`
	ConfidenceThreshold float64              `json:"confidence_threshold"`
	Status              Status               `json:"status"`
	Progress            types.Progress       `json:"progress"`
	Analysis            *types.VideoAnalysis `json:"analysis,omitempty"`
	Error               string               `json:"error,omitempty"`
	Stage               string               `json:"stage,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
	StartedAt           *time.Time           `json:"started_at,omitempty"`
	FinishedAt          *time.Time           `json:"finished_at,omitempty"`
}

// Store provides read/write access to jobs.
type Store interface {
	// Create registers a queued job. An empty ID is replaced by a new UUID.
	Create(ctx context.Context, job Job) (Job, error)
	// Update applies fn to the stored job and returns the result.
	// Returns ErrNotFound for unknown ids and ErrTerminal when the job already finished.
	Update(ctx context.Context, id string, fn func(*Job)) (Job, error)
	// Get returns a job by id or ErrNotFound.
	Get(ctx context.Context, id string) (Job, error)
	// List returns up to limit jobs, newest first.
	List(ctx context.Context, limit int) ([]Job, error)
	// Count returns the number of stored jobs.
	Count(ctx context.Context) int
}
