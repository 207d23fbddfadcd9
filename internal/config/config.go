// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`
	// MaxUploadBytes caps multipart image uploads.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// WorkerCount sets how many frames one session detects concurrently.
	WorkerCount int `koanf:"worker_count"`
	// QueueSize bounds decoded frames waiting for a worker.
	QueueSize int `koanf:"queue_size"`
	// MaxConcurrentJobs bounds video sessions running at once.
	MaxConcurrentJobs int `koanf:"max_concurrent_jobs"`
	// DedupeSize bounds how many in-flight video paths are tracked.
	DedupeSize int `koanf:"dedupe_size"`
	// JobRetention bounds how many jobs are kept for status queries.
	JobRetention int `koanf:"job_retention"`
	// MaxConsecutiveFailures aborts a session after that many failed frames in a row; 0 disables.
	MaxConsecutiveFailures int `koanf:"max_consecutive_failures"`

	// DetectorURL is the websocket address of the model server. Empty runs without models.
	DetectorURL string `koanf:"detector_url"`
	// DetectorTimeoutMS bounds each model call.
	DetectorTimeoutMS int `koanf:"detector_timeout_ms"`
	// DetectorConcurrency sets the model connection pool size.
	DetectorConcurrency int `koanf:"detector_concurrency"`
	// DetectorStatusIntervalMS sets how often model readiness is refreshed.
	DetectorStatusIntervalMS int `koanf:"detector_status_interval_ms"`

	// ConfidenceThreshold is the default player threshold.
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`
	// BallConfidenceThreshold is the ball candidate threshold.
	BallConfidenceThreshold float64 `koanf:"ball_confidence_threshold"`
	// PersonClassID and BallClassID select detector classes.
	PersonClassID int `koanf:"person_class_id"`
	BallClassID   int `koanf:"ball_class_id"`

	// Team bands as "h,s,v" in OpenCV scale (H 0-180, S and V 0-255).
	HomeBandLower string `koanf:"home_band_lower"`
	HomeBandUpper string `koanf:"home_band_upper"`
	AwayBandLower string `koanf:"away_band_lower"`
	AwayBandUpper string `koanf:"away_band_upper"`
	// TeamMinSupport is the pixel count a band needs to label a player.
	TeamMinSupport int `koanf:"team_min_support"`

	// BallMaxSpeedPxPerSec, when set, derives the per-frame bound from each video's frame rate.
	BallMaxSpeedPxPerSec float64 `koanf:"ball_max_speed_px_per_sec"`
	// BallMaxDisplacementPx is the per-frame bound used otherwise.
	BallMaxDisplacementPx float64 `koanf:"ball_max_displacement_px"`
	// BallWindow is the number of trailing positions kept per session.
	BallWindow int `koanf:"ball_window"`

	// FieldMappingEnabled turns on homography estimation during sessions.
	FieldMappingEnabled bool `koanf:"field_mapping_enabled"`
	// FieldQualityFloor is the minimum quality for a map to be used.
	FieldQualityFloor float64 `koanf:"field_quality_floor"`
	// FieldRemapInterval is the number of frames between map recomputations; 0 computes once.
	FieldRemapInterval int `koanf:"field_remap_interval"`
	// FieldErrorScale is the RMS reprojection error, in meters, that scores 0.5.
	FieldErrorScale float64 `koanf:"field_error_scale"`
	// PitchLength and PitchWidth size the canonical field in meters.
	PitchLength float64 `koanf:"pitch_length"`
	PitchWidth  float64 `koanf:"pitch_width"`

	// TracingEnabled installs an OpenTelemetry tracer provider.
	TracingEnabled bool `koanf:"tracing_enabled"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":8000",
		MaxUploadBytes:           32 << 20,
		WorkerCount:              runtime.NumCPU(),
		QueueSize:                32,
		MaxConcurrentJobs:        2,
		DedupeSize:               1024,
		JobRetention:             1000,
		DetectorTimeoutMS:        10_000,
		DetectorConcurrency:      4,
		DetectorStatusIntervalMS: 30_000,
		ConfidenceThreshold:      0.5,
		BallConfidenceThreshold:  0.3,
		PersonClassID:            0,
		BallClassID:              32,
		HomeBandLower:            "0,50,50",
		HomeBandUpper:            "10,255,255",
		AwayBandLower:            "100,50,50",
		AwayBandUpper:            "130,255,255",
		TeamMinSupport:           100,
		BallMaxDisplacementPx:    50,
		BallWindow:               10,
		FieldMappingEnabled:      true,
		FieldQualityFloor:        0.6,
		FieldRemapInterval:       150,
		FieldErrorScale:          1.0,
		PitchLength:              105,
		PitchWidth:               68,
	}
}

// Validate checks ranges and parses the team bands.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Addr != "", "addr must not be empty")
	check(c.LogFormat == "text" || c.LogFormat == "json", "log_format must be text or json, got %q", c.LogFormat)
	check(c.MaxUploadBytes > 0, "max_upload_bytes must be positive")
	check(c.WorkerCount > 0, "worker_count must be positive")
	check(c.QueueSize > 0, "queue_size must be positive")
	check(c.MaxConcurrentJobs > 0, "max_concurrent_jobs must be positive")
	check(c.DedupeSize > 0, "dedupe_size must be positive")
	check(c.JobRetention > 0, "job_retention must be positive")
	check(c.MaxConsecutiveFailures >= 0, "max_consecutive_failures must not be negative")
	check(c.DetectorTimeoutMS > 0, "detector_timeout_ms must be positive")
	check(c.DetectorConcurrency > 0, "detector_concurrency must be positive")
	check(c.DetectorStatusIntervalMS >= 0, "detector_status_interval_ms must not be negative")
	check(inUnit(c.ConfidenceThreshold), "confidence_threshold must be in [0,1]")
	check(inUnit(c.BallConfidenceThreshold), "ball_confidence_threshold must be in [0,1]")
	check(c.PersonClassID != c.BallClassID, "person_class_id and ball_class_id must differ")
	check(c.TeamMinSupport >= 0, "team_min_support must not be negative")
	check(c.BallMaxSpeedPxPerSec >= 0, "ball_max_speed_px_per_sec must not be negative")
	check(c.BallMaxDisplacementPx > 0, "ball_max_displacement_px must be positive")
	check(c.BallWindow > 0, "ball_window must be positive")
	check(inUnit(c.FieldQualityFloor), "field_quality_floor must be in [0,1]")
	check(c.FieldErrorScale > 0, "field_error_scale must be positive")
	check(c.PitchLength > 0 && c.PitchWidth > 0, "pitch_length and pitch_width must be positive")

	for key, val := range map[string]string{
		"home_band_lower": c.HomeBandLower,
		"home_band_upper": c.HomeBandUpper,
		"away_band_lower": c.AwayBandLower,
		"away_band_upper": c.AwayBandUpper,
	} {
		if _, err := ParseHSV(val); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", key, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ParseHSV parses "h,s,v" with H in [0,180] and S, V in [0,255].
func ParseHSV(s string) ([3]float64, error) {
	var out [3]float64
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return out, fmt.Errorf("want h,s,v, got %q", s)
	}
	limits := [3]float64{180, 255, 255}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, fmt.Errorf("component %d of %q: %w", i, s, err)
		}
		if v < 0 || v > limits[i] {
			return out, fmt.Errorf("component %d of %q out of range [0,%v]", i, s, limits[i])
		}
		out[i] = v
	}
	return out, nil
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }
