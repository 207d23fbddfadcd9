// Package fieldmap estimates the pixel-to-field homography from landmark correspondences
// and projects image points onto the canonical pitch.
package fieldmap

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/pitchvision/internal/domain/model"
	"github.com/okian/pitchvision/internal/domain/types"
	"github.com/okian/pitchvision/pkg/logger"
	"github.com/okian/pitchvision/pkg/metrics"
)

// LandmarkDetector finds known field landmarks in an image.
type LandmarkDetector interface {
	Find(ctx context.Context, img image.Image) ([]model.Correspondence, error)
	ModelLoaded() bool
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithErrorScale sets the RMS reprojection error, in field units, that scores 0.5.
func WithErrorScale(scale float64) Option {
	return func(m *Mapper) {
		if scale > 0 {
			m.errorScale = scale
		}
	}
}

// WithPitch sets the canonical field.
func WithPitch(p Pitch) Option {
	return func(m *Mapper) {
		if p.Length > 0 && p.Width > 0 {
			m.pitch = NewPitch(p.Length, p.Width)
		}
	}
}

// WithTimeout bounds every landmark call.
func WithTimeout(d time.Duration) Option {
	return func(m *Mapper) {
		if d >= 0 {
			m.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Mapper) {
		if l != nil {
			m.log = l
		}
	}
}

// Mapper computes field maps for frames.
type Mapper struct {
	det        LandmarkDetector
	errorScale float64
	pitch      Pitch
	timeout    time.Duration
	log        logger.Logger
}

// NewMapper creates a mapper over det.
func NewMapper(det LandmarkDetector, opts ...Option) *Mapper {
	m := &Mapper{
		det:        det,
		errorScale: defaultErrorScale,
		pitch:      NewPitch(DefaultPitchLength, DefaultPitchWidth),
		log:        logger.OrNop("fieldmap"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ready reports whether the landmark detector is loaded.
func (m *Mapper) Ready() bool {
	return m.det != nil && m.det.ModelLoaded()
}

// Pitch returns the canonical field used for projections.
func (m *Mapper) Pitch() Pitch { return m.pitch }

// MapField finds landmarks in frame and solves for its field map.
// Too few landmarks is not an error: the returned map has quality 0.
func (m *Mapper) MapField(ctx context.Context, frame model.Frame) (FieldMap, error) {
	ctx, span := otel.Tracer("pitchvision/fieldmap").Start(ctx, "fieldmap.map_field")
	defer span.End()
	span.SetAttributes(attribute.Int("frame.index", frame.Index))

	if !m.Ready() {
		return FieldMap{}, ErrLandmarksUnavailable
	}
	if frame.Image == nil {
		return FieldMap{}, fmt.Errorf("%w: nil image", ErrLandmarks)
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	start := time.Now()
	pairs, err := m.det.Find(ctx, frame.Image)
	metrics.RecordDetectionLatency("landmarks", float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrLandmarksUnavailable) {
			return FieldMap{}, err
		}
		return FieldMap{}, fmt.Errorf("%w: %w", ErrLandmarks, err)
	}

	fm := Solve(pairs, m.errorScale)
	b := frame.Image.Bounds()
	fm.ImageWidth, fm.ImageHeight = b.Dx(), b.Dy()
	fm.FrameIndex = frame.Index
	span.SetAttributes(attribute.Float64("fieldmap.quality", fm.Quality), attribute.Int("fieldmap.correspondences", fm.Correspondences))
	m.log.Debug(ctx, "field map solved",
		logger.Int("frame", frame.Index),
		logger.Int("correspondences", fm.Correspondences),
		logger.Float64("quality", fm.Quality),
	)
	return fm, nil
}

// Info describes m for callers, flagging it against floor.
func Info(m FieldMap, floor float64) types.FieldMapInfo {
	return types.FieldMapInfo{
		Homography:      m.H,
		Quality:         m.Quality,
		Correspondences: m.Correspondences,
		LowQuality:      m.LowQuality(floor),
		ImageWidth:      m.ImageWidth,
		ImageHeight:     m.ImageHeight,
	}
}

// StaticLandmarks is a LandmarkDetector returning fixed correspondences.
// It stands in for a landmark model in tests and when a camera is calibrated by hand.
type StaticLandmarks struct {
	Pairs  []model.Correspondence
	Err    error
	Loaded bool
}

// Find returns the fixed pairs or error.
func (s *StaticLandmarks) Find(ctx context.Context, _ image.Image) ([]model.Correspondence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]model.Correspondence, len(s.Pairs))
	copy(out, s.Pairs)
	return out, nil
}

// ModelLoaded reports the configured readiness.
func (s *StaticLandmarks) ModelLoaded() bool { return s.Loaded }
