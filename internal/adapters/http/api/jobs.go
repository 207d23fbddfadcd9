package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/pitchvision/internal/domain/types"
)

const (
	defaultJobsLimit = 20
	maxJobsLimit     = 500
)

// JobsHandler serves background video jobs.
type JobsHandler struct {
	deps JobDependencies
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(deps JobDependencies) *JobsHandler {
	return &JobsHandler{deps: deps}
}

// HandleProcessVideo handles POST /process-video. The job runs in the background;
// poll GET /jobs/{id} for progress and the analysis.
func (h *JobsHandler) HandleProcessVideo(w http.ResponseWriter, r *http.Request) {
	const op = "api.process_video"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req types.VideoRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	job, err := h.deps.SubmitVideo(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	w.Header().Set("Location", "/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

// HandleListJobs handles GET /jobs?limit=.
func (h *JobsHandler) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_jobs"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	limit := defaultJobsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxJobsLimit {
			writeFailure(w, WrapKind(op, ErrBadRequest, errors.New("limit must be between 1 and 500")))
			return
		}
		limit = n
	}

	jobs, err := h.deps.ListJobs(r.Context(), limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// HandleJob handles GET and DELETE /jobs/{id}. DELETE cancels a queued or running job.
func (h *JobsHandler) HandleJob(w http.ResponseWriter, r *http.Request) {
	const op = "api.job"
	id := r.PathValue("id")
	if id == "" {
		writeFailure(w, NewKind(op, ErrBadRequest))
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, err := h.deps.GetJob(r.Context(), id)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	case http.MethodDelete:
		job, err := h.deps.CancelJob(r.Context(), id)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, job)
	default:
		http.NotFound(w, r)
	}
}
