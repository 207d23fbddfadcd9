package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/pitchvision/internal/adapters/repository"
	"github.com/okian/pitchvision/internal/domain/dedupe"
	"github.com/okian/pitchvision/internal/domain/detection"
	"github.com/okian/pitchvision/internal/domain/model"
	"github.com/okian/pitchvision/internal/domain/types"
	"github.com/okian/pitchvision/internal/session"
	"github.com/okian/pitchvision/pkg/logger"
	"github.com/okian/pitchvision/pkg/metrics"
)

// ProcessVideo runs one session synchronously. sink and progress may be nil.
func (s *Service) ProcessVideo(ctx context.Context, src session.SourceOpener, threshold float64, sink session.SinkOpener, progress func(types.Progress)) (types.VideoAnalysis, error) {
	return s.newSession(progress).Run(ctx, src, threshold, sink)
}

// SubmitVideo queues req as a job and returns it. The same video cannot be in flight twice.
func (s *Service) SubmitVideo(ctx context.Context, req types.VideoRequest) (repository.Job, error) {
	path := strings.TrimSpace(req.VideoPath)
	if path == "" {
		return repository.Job{}, fmt.Errorf("%w: video_path is required", ErrInvalidRequest)
	}
	if s.openSource == nil {
		return repository.Job{}, ErrNoVideoIO
	}
	threshold := s.playerThreshold
	if req.ConfidenceThreshold != nil {
		threshold = detection.ClampThreshold(*req.ConfidenceThreshold)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return repository.Job{}, ErrNotStarted
	}

	key := dedupe.Key(path)
	if s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordJob("duplicate")
		return repository.Job{}, fmt.Errorf("%w: %s", ErrDuplicateVideo, path)
	}

	job, err := s.jobs.Create(ctx, repository.Job{
		VideoPath:           path,
		OutputPath:          strings.TrimSpace(req.OutputPath),
		ConfidenceThreshold: threshold,
	})
	if err != nil {
		s.deduper.Unrecord(ctx, key)
		return repository.Job{}, err
	}

	jobCtx, cancel := context.WithCancel(s.jobsCtx)
	s.cancels[job.ID] = cancel
	s.wg.Add(1)
	go s.runJob(jobCtx, job, key)

	s.logger.Info(ctx, "video job queued",
		logger.String("job", job.ID),
		logger.String("video", path),
		logger.Float64("threshold", threshold),
	)
	return job, nil
}

// runJob waits for a job slot, runs the session and records the outcome.
func (s *Service) runJob(ctx context.Context, job repository.Job, key string) { //nolint:gocritic // Job by value
	defer s.wg.Done()
	store := context.WithoutCancel(ctx)
	defer func() {
		s.mu.Lock()
		if cancel, ok := s.cancels[job.ID]; ok {
			cancel()
			delete(s.cancels, job.ID)
		}
		s.mu.Unlock()
		s.deduper.Unrecord(store, key)
	}()

	if err := s.jobSlots.Acquire(ctx, 1); err != nil {
		s.finishJob(store, job.ID, types.VideoAnalysis{}, fmt.Errorf("%w: %w", session.ErrCancelled, err))
		return
	}
	defer s.jobSlots.Release(1)

	if _, err := s.jobs.Update(store, job.ID, func(j *repository.Job) { j.Status = repository.StatusRunning }); err != nil {
		s.logger.Error(store, "job vanished before start", logger.String("job", job.ID), logger.Error(err))
		return
	}

	src := session.SourceFunc(func(ctx context.Context) (session.Source, error) {
		return s.openSource(ctx, job.VideoPath)
	})
	var sink session.SinkOpener
	if job.OutputPath != "" && s.createSink != nil {
		sink = session.SinkFunc(func(ctx context.Context, info model.VideoInfo) (session.Sink, error) {
			return s.createSink(ctx, job.OutputPath, info)
		})
	}
	progress := func(p types.Progress) {
		_, _ = s.jobs.Update(store, job.ID, func(j *repository.Job) { j.Progress = p })
	}

	start := time.Now()
	analysis, err := s.ProcessVideo(ctx, src, job.ConfidenceThreshold, sink, progress)
	s.finishJob(store, job.ID, analysis, err)
	s.logger.Info(store, "video job finished",
		logger.String("job", job.ID),
		logger.Int("processed", analysis.FramesProcessed),
		logger.Int("failed", analysis.FramesFailed),
		logger.Duration("elapsed", time.Since(start)),
		logger.Error(err),
	)
}

func (s *Service) finishJob(ctx context.Context, id string, analysis types.VideoAnalysis, err error) { //nolint:gocritic // analysis by value
	status := repository.StatusCompleted
	switch {
	case errors.Is(err, session.ErrCancelled):
		status = repository.StatusCancelled
	case err != nil:
		status = repository.StatusFailed
		metrics.RecordErrorByComponent("service", "job_failed")
	}

	_, uerr := s.jobs.Update(ctx, id, func(j *repository.Job) {
		j.Status = status
		if err == nil || analysis.FramesProcessed+analysis.FramesFailed > 0 {
			a := analysis
			j.Analysis = &a
			j.Progress.FramesProcessed = a.FramesProcessed
			j.Progress.FramesFailed = a.FramesFailed
			j.Progress.FramesTotal = a.FramesTotal
		}
		if err != nil {
			j.Error = err.Error()
			j.Stage = session.StageOf(err)
		}
	})
	if uerr != nil {
		s.logger.Error(ctx, "recording job outcome", logger.String("job", id), logger.Error(uerr))
	}
}

// CancelJob stops a queued or running job. The job records its partial analysis and
// moves to cancelled shortly after.
func (s *Service) CancelJob(ctx context.Context, id string) (repository.Job, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return repository.Job{}, err
	}

	s.mu.RLock()
	cancel, ok := s.cancels[id]
	s.mu.RUnlock()
	if !ok || job.Status.Terminal() {
		return job, repository.ErrTerminal
	}

	cancel()
	s.logger.Info(ctx, "video job cancel requested", logger.String("job", id))
	return job, nil
}

// GetJob returns a job by id.
func (s *Service) GetJob(ctx context.Context, id string) (repository.Job, error) {
	return s.jobs.Get(ctx, id)
}

// ListJobs returns up to limit jobs, newest first.
func (s *Service) ListJobs(ctx context.Context, limit int) ([]repository.Job, error) {
	return s.jobs.List(ctx, limit)
}
