package session

import (
	"github.com/okian/pitchvision/internal/domain/fieldmap"
	"github.com/okian/pitchvision/internal/domain/types"
	"github.com/okian/pitchvision/pkg/logger"
)

const (
	defaultQueueSize        = 32
	defaultQualityFloor     = 0.6
	defaultRemapInterval    = 150
	defaultProgressInterval = 100
)

// Option configures a Session.
type Option func(*Session)

// WithWorkers sets how many frames are detected concurrently. The detector's own
// concurrency limit, when it reports one, caps this value.
func WithWorkers(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithQueueSize sets how many decoded frames may wait for a worker.
func WithQueueSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithFieldMapper enables field mapping through m.
func WithFieldMapper(m *fieldmap.Mapper) Option {
	return func(s *Session) {
		s.mapper = m
	}
}

// WithQualityFloor sets the minimum quality for a new field map to replace the cached one.
func WithQualityFloor(q float64) Option {
	return func(s *Session) {
		if q >= 0 && q <= 1 {
			s.qualityFloor = q
		}
	}
}

// WithRemapInterval sets how many frames pass between field map recomputations.
// Zero or negative computes the map only once.
func WithRemapInterval(frames int) Option {
	return func(s *Session) {
		s.remapInterval = frames
	}
}

// WithMaxConsecutiveFailures aborts the session after n frame failures in a row. Zero disables the limit.
func WithMaxConsecutiveFailures(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.maxConsecutiveFailures = n
		}
	}
}

// WithBallSpeed bounds ball movement in pixels per second. For each video it replaces the
// tracker's per-frame bound with speed divided by the frame rate.
func WithBallSpeed(pxPerSec float64) Option {
	return func(s *Session) {
		if pxPerSec > 0 {
			s.ballSpeed = pxPerSec
		}
	}
}

// WithProgress registers a callback invoked after every in-order frame.
func WithProgress(fn func(types.Progress)) Option {
	return func(s *Session) {
		s.progress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}
