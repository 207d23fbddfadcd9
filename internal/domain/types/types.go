// Package types contains the result types returned to callers and serialized over HTTP.
package types

import "github.com/okian/pitchvision/internal/domain/model"

// Team labels produced by the team classifier.
const (
	TeamHome = 1
	TeamAway = 2
)

// FieldPoint is a position in canonical field units (meters from the top-left corner flag).
type FieldPoint struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	OnPitch bool    `json:"on_pitch"`
}

// PlayerCandidate is a person detection in center form.
// TeamID is nil when the classifier abstains; PlayerID is never assigned.
type PlayerCandidate struct {
	CenterX    float64     `json:"center_x"`
	CenterY    float64     `json:"center_y"`
	Width      float64     `json:"width"`
	Height     float64     `json:"height"`
	Confidence float64     `json:"confidence"`
	TeamID     *int        `json:"team_id"`
	PlayerID   *int        `json:"player_id"`
	Field      *FieldPoint `json:"field,omitempty"`
}

// Box returns the candidate as a corner box.
func (p PlayerCandidate) Box() model.Box {
	return model.BoxFromCenter(p.CenterX, p.CenterY, p.Width, p.Height)
}

// FootPoint is the bottom-center of the box, the pixel used for field projection.
func (p PlayerCandidate) FootPoint() (float64, float64) {
	return p.CenterX, p.CenterY + p.Height/2
}

// BallPosition is the selected ball for one frame.
type BallPosition struct {
	X          float64     `json:"x"`
	Y          float64     `json:"y"`
	Confidence float64     `json:"confidence"`
	FrameIndex int         `json:"frame_index"`
	Field      *FieldPoint `json:"field,omitempty"`
}

// DetectionResult is the per-frame output. It is immutable once emitted.
type DetectionResult struct {
	Players             []PlayerCandidate `json:"players"`
	Ball                *BallPosition     `json:"ball"`
	FrameIndex          int               `json:"frame_index"`
	FrameTimestamp      float64           `json:"frame_timestamp"`
	ConfidenceThreshold float64           `json:"confidence_threshold"`
	FieldMapped         bool              `json:"field_mapped"`
}

// VideoAnalysis aggregates a whole session. Results holds only successful frames, in frame order.
type VideoAnalysis struct {
	Results          []DetectionResult `json:"results"`
	FramesProcessed  int               `json:"frames_processed"`
	FramesFailed     int               `json:"frames_failed"`
	FramesTotal      int               `json:"frames_total"`
	BallFramesFound  int               `json:"ball_frames_found"`
	FieldMapUpdates  int               `json:"field_map_updates"`
	FieldMapRejected int               `json:"field_map_rejected"`
	FPS              float64           `json:"fps"`
	Cancelled        bool              `json:"cancelled"`
}

// FieldMapInfo describes a computed field mapping.
type FieldMapInfo struct {
	Homography      [9]float64 `json:"homography"`
	Quality         float64    `json:"quality"`
	Correspondences int        `json:"correspondences"`
	LowQuality      bool       `json:"low_quality"`
	ImageWidth      int        `json:"image_width"`
	ImageHeight     int        `json:"image_height"`
}

// ModelStatus reports which external capabilities are ready.
type ModelStatus struct {
	Detector  bool `json:"detector"`
	Landmarks bool `json:"landmarks"`
}

// Ready reports whether every capability required by mapping-enabled sessions is loaded.
func (s ModelStatus) Ready() bool {
	return s.Detector && s.Landmarks
}

// Progress is a running count emitted while a session advances.
type Progress struct {
	FramesRead      int `json:"frames_read"`
	FramesProcessed int `json:"frames_processed"`
	FramesFailed    int `json:"frames_failed"`
	FramesTotal     int `json:"frames_total"`
}

// VideoRequest asks for one video file to be analyzed in the background.
// A nil ConfidenceThreshold selects the configured default.
type VideoRequest struct {
	VideoPath           string   `json:"video_path"`
	OutputPath          string   `json:"output_path,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
}
