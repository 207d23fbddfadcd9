// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"

	"github.com/okian/pitchvision/internal/adapters/repository"
	service "github.com/okian/pitchvision/internal/app"
	"github.com/okian/pitchvision/internal/domain/detection"
	"github.com/okian/pitchvision/internal/domain/fieldmap"
	"github.com/okian/pitchvision/internal/domain/types"
)

const defaultMaxUploadBytes = 32 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	FrameDependencies
	JobDependencies
	ModelStatusProvider
}

// FrameDependencies analyze single uploaded images.
type FrameDependencies interface {
	DetectPlayers(ctx context.Context, img image.Image, threshold float64) (types.DetectionResult, error)
	TrackBall(ctx context.Context, img image.Image, frameIndex int, prior []types.BallPosition) (*types.BallPosition, error)
	MapField(ctx context.Context, img image.Image) (types.FieldMapInfo, error)
	DefaultThreshold() float64
}

// JobDependencies run and report background video jobs.
type JobDependencies interface {
	SubmitVideo(ctx context.Context, req types.VideoRequest) (repository.Job, error)
	GetJob(ctx context.Context, id string) (repository.Job, error)
	ListJobs(ctx context.Context, limit int) ([]repository.Job, error)
	CancelJob(ctx context.Context, id string) (repository.Job, error)
}

// ModelStatusProvider reports detector readiness without blocking.
type ModelStatusProvider interface {
	ModelsLoaded() types.ModelStatus
}

// Option configures a Server.
type Option func(*Server)

// WithMaxUploadBytes caps the size of multipart image uploads.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	maxUploadBytes int64

	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	framesHandler *FramesHandler
	jobsHandler   *JobsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{maxUploadBytes: defaultMaxUploadBytes}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler(deps)
	s.statsHandler = NewStatsHandler(statsProvider)
	s.framesHandler = NewFramesHandler(deps, s.maxUploadBytes)
	s.jobsHandler = NewJobsHandler(deps)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleMetrics, "healthz"))
	mux.HandleFunc("/health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	mux.HandleFunc("/models/status", MetricsMiddleware(s.healthHandler.HandleModels, "models_status"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/detect-players", MetricsMiddleware(s.framesHandler.HandleDetectPlayers, "detect_players"))
	mux.HandleFunc("/track-ball", MetricsMiddleware(s.framesHandler.HandleTrackBall, "track_ball"))
	mux.HandleFunc("/map-field", MetricsMiddleware(s.framesHandler.HandleMapField, "map_field"))
	mux.HandleFunc("/process-video", MetricsMiddleware(s.jobsHandler.HandleProcessVideo, "process_video"))
	mux.HandleFunc("/jobs", MetricsMiddleware(s.jobsHandler.HandleListJobs, "jobs"))
	mux.HandleFunc("/jobs/{id}", MetricsMiddleware(s.jobsHandler.HandleJob, "job"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	if rec, ok := w.(*statusRecorder); ok {
		rec.code = code
	}
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure translates err from the service layer into a status and error code.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, ErrBadRequest), errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrDuplicateVideo):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, ErrConflict), errors.Is(err, repository.ErrTerminal):
		return http.StatusConflict, "conflict"
	case errors.Is(err, detection.ErrDetectorUnavailable),
		errors.Is(err, fieldmap.ErrLandmarksUnavailable),
		errors.Is(err, service.ErrNotStarted),
		errors.Is(err, service.ErrNoVideoIO),
		errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, detection.ErrInference), errors.Is(err, fieldmap.ErrLandmarks):
		return http.StatusBadGateway, "inference_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
