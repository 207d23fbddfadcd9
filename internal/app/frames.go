package service

import (
	"context"
	"fmt"
	"image"

	"github.com/okian/pitchvision/internal/domain/detection"
	"github.com/okian/pitchvision/internal/domain/fieldmap"
	"github.com/okian/pitchvision/internal/domain/model"
	"github.com/okian/pitchvision/internal/domain/types"
)

// DetectPlayers detects and team-labels the players in one image. The ball is left absent.
func (s *Service) DetectPlayers(ctx context.Context, img image.Image, threshold float64) (types.DetectionResult, error) {
	if img == nil {
		return types.DetectionResult{}, fmt.Errorf("%w: no image", ErrInvalidRequest)
	}
	threshold = detection.ClampThreshold(threshold)

	players, err := s.norm.Players(ctx, img, threshold)
	if err != nil {
		return types.DetectionResult{}, err
	}
	labeled, err := s.classifier.ClassifyAll(ctx, img, players)
	if err != nil {
		return types.DetectionResult{}, err
	}

	return types.DetectionResult{
		Players:             labeled,
		ConfidenceThreshold: threshold,
	}, nil
}

// TrackBall selects the ball in one frame. prior is the caller's trailing window,
// most recent first. A nil position without error means no ball was accepted.
func (s *Service) TrackBall(ctx context.Context, img image.Image, frameIndex int, prior []types.BallPosition) (*types.BallPosition, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: no image", ErrInvalidRequest)
	}
	if frameIndex < 0 {
		return nil, fmt.Errorf("%w: negative frame index %d", ErrInvalidRequest, frameIndex)
	}
	return s.tracker.Track(ctx, model.Frame{Index: frameIndex, Image: img}, prior)
}

// MapField estimates the image-to-field mapping for one image. Too few landmarks is
// reported through a zero quality, not an error.
func (s *Service) MapField(ctx context.Context, img image.Image) (types.FieldMapInfo, error) {
	if img == nil {
		return types.FieldMapInfo{}, fmt.Errorf("%w: no image", ErrInvalidRequest)
	}
	fm, err := s.mapper.MapField(ctx, model.Frame{Image: img})
	if err != nil {
		return types.FieldMapInfo{}, err
	}
	return fieldmap.Info(fm, s.qualityFloor), nil
}
