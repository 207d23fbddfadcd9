package service

import (
	"fmt"
	"time"

	"github.com/okian/pitchvision/internal/adapters/remote"
	"github.com/okian/pitchvision/internal/config"
	"github.com/okian/pitchvision/internal/domain/team"
	"github.com/okian/pitchvision/internal/domain/types"
	"github.com/okian/pitchvision/pkg/logger"
)

// FromConfig translates cfg into service options. A non-empty detector_url adds a model
// server client; without one the service reports its detectors as not loaded.
func FromConfig(cfg *config.Config, l logger.Logger) ([]Option, error) {
	if l == nil {
		l = logger.OrNop("service")
	}
	home, err := band(types.TeamHome, cfg.HomeBandLower, cfg.HomeBandUpper)
	if err != nil {
		return nil, fmt.Errorf("home band: %w", err)
	}
	away, err := band(types.TeamAway, cfg.AwayBandLower, cfg.AwayBandUpper)
	if err != nil {
		return nil, fmt.Errorf("away band: %w", err)
	}

	timeout := time.Duration(cfg.DetectorTimeoutMS) * time.Millisecond
	opts := []Option{
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithMaxConcurrentJobs(cfg.MaxConcurrentJobs),
		WithDedupeSize(cfg.DedupeSize),
		WithJobRetention(cfg.JobRetention),
		WithMaxConsecutiveFailures(cfg.MaxConsecutiveFailures),
		WithThresholds(cfg.ConfidenceThreshold, cfg.BallConfidenceThreshold),
		WithClassIDs(cfg.PersonClassID, cfg.BallClassID),
		WithTeamBands(home, away),
		WithTeamMinSupport(cfg.TeamMinSupport),
		WithBallLimits(cfg.BallMaxDisplacementPx, cfg.BallMaxSpeedPxPerSec, cfg.BallWindow),
		WithFieldMapping(cfg.FieldMappingEnabled),
		WithFieldQuality(cfg.FieldQualityFloor, cfg.FieldRemapInterval, cfg.FieldErrorScale),
		WithPitch(cfg.PitchLength, cfg.PitchWidth),
		WithDetectorTimeout(timeout),
		WithLogger(l),
	}

	if cfg.DetectorURL != "" {
		client := remote.New(cfg.DetectorURL,
			remote.WithPoolSize(cfg.DetectorConcurrency),
			remote.WithTimeout(timeout),
			remote.WithLogger(l.Named("remote")),
		)
		opts = append(opts, WithModelClient(client, time.Duration(cfg.DetectorStatusIntervalMS)*time.Millisecond))
	}
	return opts, nil
}

func band(teamID int, lower, upper string) (team.Band, error) {
	lo, err := config.ParseHSV(lower)
	if err != nil {
		return team.Band{}, err
	}
	hi, err := config.ParseHSV(upper)
	if err != nil {
		return team.Band{}, err
	}
	b := team.Band{
		Team:  teamID,
		Lower: team.HSV{H: lo[0], S: lo[1], V: lo[2]},
		Upper: team.HSV{H: hi[0], S: hi[1], V: hi[2]},
	}
	if b.Lower.H > b.Upper.H || b.Lower.S > b.Upper.S || b.Lower.V > b.Upper.V {
		return team.Band{}, fmt.Errorf("lower %q exceeds upper %q", lower, upper)
	}
	return b, nil
}
