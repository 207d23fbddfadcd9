// Package detection turns raw object detector output into player and ball candidates.
package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/okian/pitchvision/internal/domain/model"
	"github.com/okian/pitchvision/internal/domain/types"
	"github.com/okian/pitchvision/pkg/logger"
	"github.com/okian/pitchvision/pkg/metrics"
)

// DefaultThreshold is the player confidence threshold used when the caller gives none.
const DefaultThreshold = 0.5

// Detector is the external object detector. Implementations may ignore threshold;
// the normalizer filters again.
type Detector interface {
	Infer(ctx context.Context, img image.Image, threshold float64) ([]model.RawDetection, error)
	ModelLoaded() bool
}

// Bounded is implemented by detectors that limit concurrent calls.
type Bounded interface {
	MaxConcurrency() int
}

// BallCandidate is a ball-class detection reduced to its center.
type BallCandidate struct {
	X          float64
	Y          float64
	Confidence float64
}

// Normalizer filters detector output by class and confidence.
type Normalizer struct {
	det         Detector
	personClass int
	ballClass   int
	timeout     time.Duration
	log         logger.Logger
}

// NewNormalizer wraps det.
func NewNormalizer(det Detector, opts ...Option) *Normalizer {
	n := &Normalizer{
		det:         det,
		personClass: model.PersonClassID,
		ballClass:   model.BallClassID,
		log:         logger.OrNop("detection"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Ready reports whether the detector model is loaded.
func (n *Normalizer) Ready() bool {
	return n.det != nil && n.det.ModelLoaded()
}

// MaxConcurrency returns the detector's concurrency limit, or 0 when it has none.
func (n *Normalizer) MaxConcurrency() int {
	if b, ok := n.det.(Bounded); ok {
		return b.MaxConcurrency()
	}
	return 0
}

// ClampThreshold maps any threshold into [0,1]. NaN becomes DefaultThreshold.
func ClampThreshold(t float64) float64 {
	switch {
	case math.IsNaN(t):
		return DefaultThreshold
	case t < 0:
		return 0
	case t > 1:
		return 1
	}
	return t
}

// Players returns person-class detections with confidence >= threshold, in detector order.
func (n *Normalizer) Players(ctx context.Context, img image.Image, threshold float64) ([]types.PlayerCandidate, error) {
	threshold = ClampThreshold(threshold)
	raw, err := n.infer(ctx, "players", img, threshold)
	if err != nil {
		return nil, err
	}

	out := make([]types.PlayerCandidate, 0, len(raw))
	for _, d := range raw {
		if !keep(d, n.personClass, threshold) {
			continue
		}
		cx, cy := d.Box.Center()
		w, h := d.Box.Size()
		out = append(out, types.PlayerCandidate{
			CenterX:    cx,
			CenterY:    cy,
			Width:      w,
			Height:     h,
			Confidence: d.Confidence,
		})
	}
	return out, nil
}

// Balls returns ball-class detections with confidence >= threshold, in detector order.
func (n *Normalizer) Balls(ctx context.Context, img image.Image, threshold float64) ([]BallCandidate, error) {
	threshold = ClampThreshold(threshold)
	raw, err := n.infer(ctx, "ball", img, threshold)
	if err != nil {
		return nil, err
	}

	out := make([]BallCandidate, 0, 1)
	for _, d := range raw {
		if !keep(d, n.ballClass, threshold) {
			continue
		}
		cx, cy := d.Box.Center()
		out = append(out, BallCandidate{X: cx, Y: cy, Confidence: d.Confidence})
	}
	return out, nil
}

func keep(d model.RawDetection, class int, threshold float64) bool {
	return d.ClassID == class && !math.IsNaN(d.Confidence) && d.Confidence >= threshold
}

func (n *Normalizer) infer(ctx context.Context, task string, img image.Image, threshold float64) ([]model.RawDetection, error) {
	if !n.Ready() {
		return nil, fmt.Errorf("%s: %w", task, ErrDetectorUnavailable)
	}
	if img == nil {
		return nil, fmt.Errorf("%w: %s: nil image", ErrInference, task)
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := n.det.Infer(ctx, img, threshold)
	metrics.RecordDetectionLatency(task, float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		if errors.Is(err, ErrDetectorUnavailable) {
			return nil, fmt.Errorf("%s: %w", task, err)
		}
		n.log.Debug(ctx, "detector call failed", logger.String("task", task), logger.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrInference, task, err)
	}
	return raw, nil
}
