package remote

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/okian/pitchvision/internal/domain/detection"
	"github.com/okian/pitchvision/internal/domain/fieldmap"
	"github.com/okian/pitchvision/internal/domain/model"
)

// Detector serves object detection from the model server.
type Detector struct{ c *Client }

// Detector returns the detection capability of c.
func (c *Client) Detector() *Detector { return &Detector{c: c} }

// Infer implements detection.Detector.
func (d *Detector) Infer(ctx context.Context, img image.Image, threshold float64) ([]model.RawDetection, error) {
	encoded, err := d.c.encodeImage(img)
	if err != nil {
		return nil, err
	}
	resp, err := d.c.do(ctx, Request{Task: TaskDetect, ConfidenceThreshold: threshold, Image: encoded})
	if err != nil {
		if errors.Is(err, errUnreachable) {
			return nil, fmt.Errorf("%w: %w", detection.ErrDetectorUnavailable, err)
		}
		return nil, err
	}
	out := make([]model.RawDetection, 0, len(resp.Detections))
	for _, det := range resp.Detections {
		out = append(out, model.RawDetection{
			Box:        model.Box{X1: det.Box[0], Y1: det.Box[1], X2: det.Box[2], Y2: det.Box[3]},
			Confidence: det.Confidence,
			ClassID:    det.ClassID,
		})
	}
	return out, nil
}

// ModelLoaded implements detection.Detector.
func (d *Detector) ModelLoaded() bool { return d.c.Ready(TaskDetect) }

// MaxConcurrency implements detection.Bounded.
func (d *Detector) MaxConcurrency() int { return d.c.Size() }

// Landmarks serves field landmark detection from the model server.
type Landmarks struct{ c *Client }

// Landmarks returns the landmark capability of c.
func (c *Client) Landmarks() *Landmarks { return &Landmarks{c: c} }

// Find implements fieldmap.LandmarkDetector.
func (l *Landmarks) Find(ctx context.Context, img image.Image) ([]model.Correspondence, error) {
	encoded, err := l.c.encodeImage(img)
	if err != nil {
		return nil, err
	}
	resp, err := l.c.do(ctx, Request{Task: TaskLandmarks, Image: encoded})
	if err != nil {
		if errors.Is(err, errUnreachable) {
			return nil, fmt.Errorf("%w: %w", fieldmap.ErrLandmarksUnavailable, err)
		}
		return nil, err
	}
	out := make([]model.Correspondence, 0, len(resp.Correspondences))
	for _, p := range resp.Correspondences {
		out = append(out, model.Correspondence{
			Image: model.Point{X: p.Image.X, Y: p.Image.Y},
			Field: model.Point{X: p.Field.X, Y: p.Field.Y},
		})
	}
	return out, nil
}

// ModelLoaded implements fieldmap.LandmarkDetector.
func (l *Landmarks) ModelLoaded() bool { return l.c.Ready(TaskLandmarks) }

var (
	_ detection.Detector        = (*Detector)(nil)
	_ detection.Bounded         = (*Detector)(nil)
	_ fieldmap.LandmarkDetector = (*Landmarks)(nil)
)
