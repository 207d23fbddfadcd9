package service

import (
	"context"
	"time"

	"github.com/okian/pitchvision/internal/adapters/remote"
	"github.com/okian/pitchvision/internal/domain/detection"
	"github.com/okian/pitchvision/internal/domain/fieldmap"
	"github.com/okian/pitchvision/internal/domain/model"
	"github.com/okian/pitchvision/internal/domain/team"
	"github.com/okian/pitchvision/internal/session"
	"github.com/okian/pitchvision/pkg/logger"
)

// SourceFactory opens the video at path for reading.
type SourceFactory func(ctx context.Context, path string) (session.Source, error)

// SinkFactory creates an annotated output video at path.
type SinkFactory func(ctx context.Context, path string, info model.VideoInfo) (session.Sink, error)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets how many frames a session detects concurrently.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets how many decoded frames may wait for a worker.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithMaxConcurrentJobs bounds how many video jobs run at once.
func WithMaxConcurrentJobs(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxConcurrentJobs = n
		}
	}
}

// WithDedupeSize sets the size of the in-flight video registry.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithJobRetention bounds how many finished jobs are kept.
func WithJobRetention(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.jobRetention = n
		}
	}
}

// WithMaxConsecutiveFailures aborts a session after n failed frames in a row. 0 disables.
func WithMaxConsecutiveFailures(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxConsecutiveFailures = n
		}
	}
}

// WithThresholds sets the default player threshold and the ball threshold.
func WithThresholds(player, ball float64) Option {
	return func(s *Service) {
		s.playerThreshold = detection.ClampThreshold(player)
		s.ballThreshold = detection.ClampThreshold(ball)
	}
}

// WithClassIDs sets the detector classes for people and the ball.
func WithClassIDs(person, ball int) Option {
	return func(s *Service) {
		if person != ball {
			s.personClassID = person
			s.ballClassID = ball
		}
	}
}

// WithTeamBands sets the home and away kit colors.
func WithTeamBands(home, away team.Band) Option {
	return func(s *Service) {
		s.homeBand = home
		s.awayBand = away
	}
}

// WithTeamMinSupport sets the pixel count a kit band needs to label a player.
func WithTeamMinSupport(pixels int) Option {
	return func(s *Service) {
		if pixels >= 0 {
			s.teamMinSupport = pixels
		}
	}
}

// WithBallLimits sets the per-frame displacement bound, the ball speed used to derive
// it per video (0 keeps the fixed bound), and the trailing window size.
func WithBallLimits(maxDisplacementPx, maxSpeedPxPerSec float64, window int) Option {
	return func(s *Service) {
		if maxDisplacementPx > 0 {
			s.ballMaxDisplacement = maxDisplacementPx
		}
		if maxSpeedPxPerSec >= 0 {
			s.ballSpeed = maxSpeedPxPerSec
		}
		if window > 0 {
			s.ballWindow = window
		}
	}
}

// WithFieldMapping turns field mapping on or off for video sessions.
func WithFieldMapping(enabled bool) Option {
	return func(s *Service) {
		s.fieldMapping = enabled
	}
}

// WithFieldQuality sets the quality floor, the remap interval in frames and the
// reprojection error scale.
func WithFieldQuality(floor float64, remapInterval int, errorScale float64) Option {
	return func(s *Service) {
		if floor >= 0 && floor <= 1 {
			s.qualityFloor = floor
		}
		if remapInterval >= 0 {
			s.remapInterval = remapInterval
		}
		if errorScale > 0 {
			s.errorScale = errorScale
		}
	}
}

// WithPitch sets the canonical field size in meters.
func WithPitch(length, width float64) Option {
	return func(s *Service) {
		if length > 0 && width > 0 {
			s.pitch = fieldmap.NewPitch(length, width)
		}
	}
}

// WithDetectorTimeout bounds each detector and landmark call.
func WithDetectorTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.detectorTimeout = d
		}
	}
}

// WithDetector sets the object detector.
func WithDetector(d detection.Detector) Option {
	return func(s *Service) {
		s.detector = d
	}
}

// WithLandmarks sets the landmark detector.
func WithLandmarks(l fieldmap.LandmarkDetector) Option {
	return func(s *Service) {
		s.landmarks = l
	}
}

// WithModelClient serves both detectors from a model server. Start performs the status
// handshake and refreshes it every interval; Stop closes the client.
func WithModelClient(c *remote.Client, interval time.Duration) Option {
	return func(s *Service) {
		if c == nil {
			return
		}
		s.client = c
		s.statusInterval = interval
		s.detector = c.Detector()
		s.landmarks = c.Landmarks()
	}
}

// WithVideoIO sets how job videos are opened and written.
func WithVideoIO(open SourceFactory, create SinkFactory) Option {
	return func(s *Service) {
		s.openSource = open
		s.createSink = create
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
