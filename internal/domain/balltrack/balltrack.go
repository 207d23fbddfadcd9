// Package balltrack picks the ball for a frame from detector candidates and recent history.
package balltrack

import (
	"context"
	"image"
	"math"

	"github.com/okian/pitchvision/internal/domain/detection"
	"github.com/okian/pitchvision/internal/domain/model"
	"github.com/okian/pitchvision/internal/domain/types"
)

const (
	// DefaultWindow is how many trailing positions the caller should keep.
	DefaultWindow = 10
	// DefaultThreshold is the ball confidence threshold.
	DefaultThreshold = 0.3
	// DefaultMaxDisplacement is the per-frame pixel bound when neither displacement nor speed is configured.
	DefaultMaxDisplacement = 50.0
)

// MaxDisplacementFor converts a pixel speed into a per-frame bound.
// It returns DefaultMaxDisplacement when fps or speed is not positive.
func MaxDisplacementFor(fps, maxSpeedPxPerSec float64) float64 {
	if fps <= 0 || maxSpeedPxPerSec <= 0 {
		return DefaultMaxDisplacement
	}
	return maxSpeedPxPerSec / fps
}

// Config holds tracking parameters.
type Config struct {
	MaxDisplacement float64 // pixels per elapsed frame
	Window          int     // prior positions older than this many frames are ignored
}

// Select chooses the ball position for frameIndex. It is pure.
//
// prior is most-recent-first. With a usable prior the candidate nearest to the last known
// position wins and is rejected when farther than MaxDisplacement times the frames elapsed.
// Without a usable prior the highest-confidence candidate wins. No candidates yields nil.
func Select(frameIndex int, candidates []detection.BallCandidate, prior []types.BallPosition, cfg Config) *types.BallPosition {
	if len(candidates) == 0 {
		return nil
	}

	last, ok := lastKnown(frameIndex, prior, cfg.Window)
	if !ok {
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.Confidence > best.Confidence {
				best = c
			}
		}
		return position(frameIndex, best)
	}

	elapsed := frameIndex - last.FrameIndex
	if elapsed < 1 {
		elapsed = 1
	}
	bound := cfg.MaxDisplacement * float64(elapsed)

	bestIdx, bestDist := -1, math.Inf(1)
	for i, c := range candidates {
		d := math.Hypot(c.X-last.X, c.Y-last.Y)
		if d < bestDist || (bestIdx >= 0 && d == bestDist && c.Confidence > candidates[bestIdx].Confidence) {
			bestIdx, bestDist = i, d
		}
	}
	if bestIdx < 0 || bestDist > bound {
		return nil
	}
	return position(frameIndex, candidates[bestIdx])
}

// Rejected reports whether Select dropped every candidate because of the displacement bound.
func Rejected(candidates []detection.BallCandidate, selected *types.BallPosition) bool {
	return len(candidates) > 0 && selected == nil
}

func lastKnown(frameIndex int, prior []types.BallPosition, window int) (types.BallPosition, bool) {
	if len(prior) == 0 {
		return types.BallPosition{}, false
	}
	last := prior[0]
	if window > 0 && frameIndex-last.FrameIndex > window {
		return types.BallPosition{}, false
	}
	return last, true
}

func position(frameIndex int, c detection.BallCandidate) *types.BallPosition {
	return &types.BallPosition{X: c.X, Y: c.Y, Confidence: c.Confidence, FrameIndex: frameIndex}
}

// Window is the trailing history of found positions, most-recent-first.
type Window struct {
	size      int
	positions []types.BallPosition
}

// NewWindow creates a history holding at most size positions.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindow
	}
	return &Window{size: size, positions: make([]types.BallPosition, 0, size)}
}

// Push records a found position.
func (w *Window) Push(p types.BallPosition) {
	if len(w.positions) < w.size {
		w.positions = append(w.positions, types.BallPosition{})
	}
	copy(w.positions[1:], w.positions[:len(w.positions)-1])
	w.positions[0] = p
}

// Positions returns a copy of the history, most-recent-first.
func (w *Window) Positions() []types.BallPosition {
	out := make([]types.BallPosition, len(w.positions))
	copy(out, w.positions)
	return out
}

// Len returns how many positions are held.
func (w *Window) Len() int { return len(w.positions) }

// Tracker runs ball detection for a frame and selects from the candidates.
type Tracker struct {
	norm      *detection.Normalizer
	cfg       Config
	threshold float64
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithMaxDisplacement sets the per-frame pixel bound.
func WithMaxDisplacement(px float64) Option {
	return func(t *Tracker) {
		if px > 0 {
			t.cfg.MaxDisplacement = px
		}
	}
}

// WithWindow sets how old the last known position may be.
func WithWindow(frames int) Option {
	return func(t *Tracker) {
		if frames > 0 {
			t.cfg.Window = frames
		}
	}
}

// WithThreshold sets the ball confidence threshold.
func WithThreshold(th float64) Option {
	return func(t *Tracker) {
		t.threshold = detection.ClampThreshold(th)
	}
}

// NewTracker creates a tracker issuing its own detector calls through norm.
func NewTracker(norm *detection.Normalizer, opts ...Option) *Tracker {
	t := &Tracker{
		norm:      norm,
		cfg:       Config{MaxDisplacement: DefaultMaxDisplacement, Window: DefaultWindow},
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Config returns the tracking parameters.
func (t *Tracker) Config() Config { return t.cfg }

// Threshold returns the ball confidence threshold.
func (t *Tracker) Threshold() float64 { return t.threshold }

// Candidates runs the ball detector on img.
func (t *Tracker) Candidates(ctx context.Context, img image.Image) ([]detection.BallCandidate, error) {
	return t.norm.Balls(ctx, img, t.threshold)
}

// Track detects and selects the ball for frame given the caller's trailing window.
func (t *Tracker) Track(ctx context.Context, frame model.Frame, prior []types.BallPosition) (*types.BallPosition, error) {
	candidates, err := t.Candidates(ctx, frame.Image)
	if err != nil {
		return nil, err
	}
	return Select(frame.Index, candidates, prior, t.cfg), nil
}
