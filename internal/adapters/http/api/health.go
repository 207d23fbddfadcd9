package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/pitchvision/internal/domain/types"
	"github.com/okian/pitchvision/pkg/metrics"
)

const serviceName = "pitchvision"

// HealthHandler serves liveness, model readiness and metrics.
type HealthHandler struct {
	models  ModelStatusProvider
	metrics http.Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(models ModelStatusProvider) *HealthHandler {
	return &HealthHandler{
		models:  models,
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

type healthResponse struct {
	Status       string `json:"status"`
	Service      string `json:"service"`
	ModelsLoaded bool   `json:"models_loaded"`
}

type modelsResponse struct {
	Models types.ModelStatus `json:"models"`
	Ready  bool              `json:"ready"`
}

// HandleMetrics handles GET /healthz with the Prometheus exposition.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

// HandleHealth handles GET /health. The process is healthy while it serves requests;
// models_loaded tells whether the object detector can answer.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:       "healthy",
		Service:      serviceName,
		ModelsLoaded: h.models.ModelsLoaded().Detector,
	})
}

// HandleModels handles GET /models/status.
func (h *HealthHandler) HandleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	status := h.models.ModelsLoaded()
	writeJSON(w, http.StatusOK, modelsResponse{Models: status, Ready: status.Ready()})
}
