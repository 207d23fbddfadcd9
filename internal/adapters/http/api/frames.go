package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // upload decoders
	_ "image/png"
	"net/http"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/okian/pitchvision/internal/domain/types"
)

// FramesHandler serves the single-image endpoints.
type FramesHandler struct {
	deps           FrameDependencies
	maxUploadBytes int64
}

// NewFramesHandler creates a frames handler that accepts uploads up to maxUploadBytes.
func NewFramesHandler(deps FrameDependencies, maxUploadBytes int64) *FramesHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &FramesHandler{deps: deps, maxUploadBytes: maxUploadBytes}
}

type trackBallResponse struct {
	Ball       *types.BallPosition `json:"ball"`
	FrameIndex int                 `json:"frame_index"`
}

// HandleDetectPlayers handles POST /detect-players?confidence_threshold=.
func (h *FramesHandler) HandleDetectPlayers(w http.ResponseWriter, r *http.Request) {
	const op = "api.detect_players"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	threshold, err := h.threshold(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	img, err := h.upload(w, r, op)
	if err != nil {
		writeFailure(w, err)
		return
	}

	res, err := h.deps.DetectPlayers(r.Context(), img, threshold)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleTrackBall handles POST /track-ball. The optional previous_positions form field
// is a JSON array of ball positions, most recent first.
func (h *FramesHandler) HandleTrackBall(w http.ResponseWriter, r *http.Request) {
	const op = "api.track_ball"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	img, err := h.upload(w, r, op)
	if err != nil {
		writeFailure(w, err)
		return
	}

	var prior []types.BallPosition
	if raw := strings.TrimSpace(r.FormValue("previous_positions")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &prior); err != nil {
			writeFailure(w, WrapKind(op, ErrBadRequest, fmt.Errorf("previous_positions: %w", err)))
			return
		}
	}
	frameIndex := 0
	if len(prior) > 0 {
		frameIndex = prior[0].FrameIndex + 1
	}
	if raw := strings.TrimSpace(r.FormValue("frame_index")); raw != "" {
		frameIndex, err = strconv.Atoi(raw)
		if err != nil {
			writeFailure(w, WrapKind(op, ErrBadRequest, fmt.Errorf("frame_index: %w", err)))
			return
		}
	}

	ball, err := h.deps.TrackBall(r.Context(), img, frameIndex, prior)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trackBallResponse{Ball: ball, FrameIndex: frameIndex})
}

// HandleMapField handles POST /map-field.
func (h *FramesHandler) HandleMapField(w http.ResponseWriter, r *http.Request) {
	const op = "api.map_field"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	img, err := h.upload(w, r, op)
	if err != nil {
		writeFailure(w, err)
		return
	}

	info, err := h.deps.MapField(r.Context(), img)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *FramesHandler) threshold(r *http.Request) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("confidence_threshold"))
	if raw == "" {
		return h.deps.DefaultThreshold(), nil
	}
	t, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("confidence_threshold: %w", err)
	}
	return t, nil
}

// upload decodes the multipart "file" field.
func (h *FramesHandler) upload(w http.ResponseWriter, r *http.Request, op string) (image.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, WrapKind(op, ErrTooLarge, err)
		}
		return nil, WrapKind(op, ErrBadRequest, err)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, WrapKind(op, ErrBadRequest, fmt.Errorf("file: %w", err))
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, WrapKind(op, ErrBadRequest, fmt.Errorf("decode image: %w", err))
	}
	return img, nil
}
