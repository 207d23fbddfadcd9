// Package service wires the detection components, video sessions and the job store
// into the operations served over HTTP and by the offline CLI.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/okian/pitchvision/internal/adapters/remote"
	"github.com/okian/pitchvision/internal/adapters/repository"
	"github.com/okian/pitchvision/internal/domain/balltrack"
	"github.com/okian/pitchvision/internal/domain/dedupe"
	"github.com/okian/pitchvision/internal/domain/detection"
	"github.com/okian/pitchvision/internal/domain/fieldmap"
	"github.com/okian/pitchvision/internal/domain/model"
	"github.com/okian/pitchvision/internal/domain/team"
	"github.com/okian/pitchvision/internal/domain/types"
	"github.com/okian/pitchvision/internal/session"
	"github.com/okian/pitchvision/pkg/logger"
	"github.com/okian/pitchvision/pkg/metrics"
)

// Service implements the API dependencies for frame and video analysis.
type Service struct {
	mu sync.RWMutex

	// Core components
	norm       *detection.Normalizer
	classifier *team.Classifier
	tracker    *balltrack.Tracker
	mapper     *fieldmap.Mapper
	jobs       *repository.MemoryStore
	deduper    dedupe.Deduper
	jobSlots   *semaphore.Weighted

	// Capabilities
	detector       detection.Detector
	landmarks      fieldmap.LandmarkDetector
	client         *remote.Client
	statusInterval time.Duration
	openSource     SourceFactory
	createSink     SinkFactory

	// Configuration
	workerCount            int
	queueSize              int
	maxConcurrentJobs      int
	dedupeSize             int
	jobRetention           int
	maxConsecutiveFailures int
	playerThreshold        float64
	ballThreshold          float64
	personClassID          int
	ballClassID            int
	homeBand               team.Band
	awayBand               team.Band
	teamMinSupport         int
	ballMaxDisplacement    float64
	ballSpeed              float64
	ballWindow             int
	fieldMapping           bool
	qualityFloor           float64
	remapInterval          int
	errorScale             float64
	pitch                  fieldmap.Pitch
	detectorTimeout        time.Duration

	// State
	started    bool
	jobsCtx    context.Context
	cancelJobs context.CancelFunc
	cancels    map[string]context.CancelFunc
	wg         sync.WaitGroup

	// Logging
	logger logger.Logger
}

// New constructs a Service. The detection components are ready for single-frame calls
// immediately; Start is needed before video jobs are accepted.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:         runtime.NumCPU(),
		queueSize:           32,
		maxConcurrentJobs:   2,
		dedupeSize:          1024,
		jobRetention:        1000,
		playerThreshold:     detection.DefaultThreshold,
		ballThreshold:       balltrack.DefaultThreshold,
		personClassID:       model.PersonClassID,
		ballClassID:         model.BallClassID,
		homeBand:            team.DefaultHome(),
		awayBand:            team.DefaultAway(),
		teamMinSupport:      100,
		ballMaxDisplacement: balltrack.DefaultMaxDisplacement,
		ballWindow:          balltrack.DefaultWindow,
		fieldMapping:        true,
		qualityFloor:        0.6,
		remapInterval:       150,
		errorScale:          1,
		pitch:               fieldmap.NewPitch(fieldmap.DefaultPitchLength, fieldmap.DefaultPitchWidth),
		detectorTimeout:     10 * time.Second,
		cancels:             make(map[string]context.CancelFunc),
		logger:              logger.OrNop("service"),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.norm = detection.NewNormalizer(s.detector,
		detection.WithPersonClassID(s.personClassID),
		detection.WithBallClassID(s.ballClassID),
		detection.WithTimeout(s.detectorTimeout),
		detection.WithLogger(s.logger.Named("detection")),
	)
	s.classifier = team.NewClassifier(
		team.WithBands(s.homeBand, s.awayBand),
		team.WithMinSupport(s.teamMinSupport),
	)
	s.tracker = balltrack.NewTracker(s.norm,
		balltrack.WithMaxDisplacement(s.ballMaxDisplacement),
		balltrack.WithWindow(s.ballWindow),
		balltrack.WithThreshold(s.ballThreshold),
	)
	s.mapper = fieldmap.NewMapper(s.landmarks,
		fieldmap.WithErrorScale(s.errorScale),
		fieldmap.WithPitch(s.pitch),
		fieldmap.WithTimeout(s.detectorTimeout),
		fieldmap.WithLogger(s.logger.Named("fieldmap")),
	)
	s.jobs = repository.NewMemoryStore(repository.WithRetention(s.jobRetention))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.jobSlots = semaphore.NewWeighted(int64(s.maxConcurrentJobs))

	return s
}

// Start begins accepting video jobs. With a model client it also performs the first
// status handshake; a failed handshake is logged and retried by the status watcher.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting analysis service...")

	s.jobsCtx, s.cancelJobs = context.WithCancel(context.WithoutCancel(ctx))

	if s.client != nil {
		if _, err := s.client.Status(ctx); err != nil {
			s.logger.Warn(ctx, "model server not ready", logger.Error(err))
		}
		s.client.Watch(s.jobsCtx, s.statusInterval)
	}

	s.started = true
	status := s.ModelsLoaded()
	s.logger.Info(ctx, "analysis service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("maxConcurrentJobs", s.maxConcurrentJobs),
		logger.Bool("detector", status.Detector),
		logger.Bool("landmarks", status.Landmarks),
		logger.Bool("fieldMapping", s.fieldMapping),
	)

	return nil
}

// Stop cancels running jobs, waits for them to record their partial results and
// closes the model client.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancelJobs
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping analysis service...")

	cancel()
	s.wg.Wait()

	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Warn(ctx, "closing model client", logger.Error(err))
		}
	}

	s.logger.Info(ctx, "analysis service stopped")
}

// ModelsLoaded reports which detectors are ready. It never blocks on the detectors.
func (s *Service) ModelsLoaded() types.ModelStatus {
	return types.ModelStatus{
		Detector:  s.norm.Ready(),
		Landmarks: s.mapper.Ready(),
	}
}

// FieldMappingEnabled reports whether video sessions compute field maps.
func (s *Service) FieldMappingEnabled() bool { return s.fieldMapping }

// DefaultThreshold is the player threshold used when a request gives none.
func (s *Service) DefaultThreshold() float64 { return s.playerThreshold }

// newSession builds a session that reports progress to fn.
func (s *Service) newSession(fn func(types.Progress)) *session.Session {
	opts := []session.Option{
		session.WithWorkers(s.workerCount),
		session.WithQueueSize(s.queueSize),
		session.WithQualityFloor(s.qualityFloor),
		session.WithRemapInterval(s.remapInterval),
		session.WithMaxConsecutiveFailures(s.maxConsecutiveFailures),
		session.WithBallSpeed(s.ballSpeed),
		session.WithProgress(fn),
		session.WithLogger(s.logger.Named("session")),
	}
	if s.fieldMapping {
		opts = append(opts, session.WithFieldMapper(s.mapper))
	}
	return session.New(s.norm, s.classifier, s.tracker, opts...)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	status := s.ModelsLoaded()
	stats := map[string]interface{}{
		"started":           s.started,
		"workerCount":       s.workerCount,
		"queueSize":         s.queueSize,
		"maxConcurrentJobs": s.maxConcurrentJobs,
		"fieldMapping":      s.fieldMapping,
		"detectorLoaded":    status.Detector,
		"landmarksLoaded":   status.Landmarks,
		"totalJobs":         s.jobs.Count(ctx),
		"activeJobs":        s.jobs.Active(),
		"inFlightVideos":    s.deduper.Size(),
	}

	metrics.UpdateWorkerCount(s.workerCount)

	return stats
}
