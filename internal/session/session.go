// Package session runs the frame pipeline for one video. Frames are detected concurrently
// and out of order; ball tracking, field mapping and aggregation then consume them strictly
// in frame order.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/okian/pitchvision/internal/adapters/mq/queue"
	"github.com/okian/pitchvision/internal/adapters/mq/worker"
	"github.com/okian/pitchvision/internal/domain/annotate"
	"github.com/okian/pitchvision/internal/domain/balltrack"
	"github.com/okian/pitchvision/internal/domain/detection"
	"github.com/okian/pitchvision/internal/domain/fieldmap"
	"github.com/okian/pitchvision/internal/domain/model"
	"github.com/okian/pitchvision/internal/domain/team"
	"github.com/okian/pitchvision/internal/domain/types"
	"github.com/okian/pitchvision/pkg/logger"
	"github.com/okian/pitchvision/pkg/metrics"
)

const (
	tracerName = "pitchvision/session"

	// maxResultsHint caps the preallocation taken from the container's frame count.
	maxResultsHint = 4096
)

// Session holds the components shared by every run. It is safe for concurrent runs.
type Session struct {
	norm       *detection.Normalizer
	classifier *team.Classifier
	tracker    *balltrack.Tracker
	mapper     *fieldmap.Mapper

	workers                int
	queueSize              int
	qualityFloor           float64
	remapInterval          int
	maxConsecutiveFailures int
	ballSpeed              float64
	progress               func(types.Progress)
	log                    logger.Logger
}

// New creates a session over the detection components. Field mapping is off unless
// WithFieldMapper is given.
func New(norm *detection.Normalizer, classifier *team.Classifier, tracker *balltrack.Tracker, opts ...Option) *Session {
	s := &Session{
		norm:          norm,
		classifier:    classifier,
		tracker:       tracker,
		workers:       runtime.NumCPU(),
		queueSize:     defaultQueueSize,
		qualityFloor:  defaultQualityFloor,
		remapInterval: defaultRemapInterval,
		log:           logger.OrNop("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status reports which capabilities are loaded.
func (s *Session) Status() types.ModelStatus {
	return types.ModelStatus{
		Detector:  s.norm.Ready(),
		Landmarks: s.mapper != nil && s.mapper.Ready(),
	}
}

func (s *Session) workerCount() int {
	n := s.workers
	if limit := s.norm.MaxConcurrency(); limit > 0 && limit < n {
		n = limit
	}
	return n
}

// ballConfig derives the per-frame displacement bound from the ball speed when one is set.
func (s *Session) ballConfig(fps float64) balltrack.Config {
	cfg := s.tracker.Config()
	if s.ballSpeed > 0 {
		cfg.MaxDisplacement = balltrack.MaxDisplacementFor(fps, s.ballSpeed)
	}
	return cfg
}

// Run analyzes every frame of the source. sink may be nil.
//
// Readiness and source problems are fatal and returned as *FatalError. Frame-local failures
// are counted in FramesFailed and never abort the run. On cancellation the frames already
// read are drained and the partial analysis is returned with an error wrapping ErrCancelled.
func (s *Session) Run(ctx context.Context, src SourceOpener, threshold float64, sink SinkOpener) (types.VideoAnalysis, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "session.run")
	defer span.End()

	analysis, err := s.run(ctx, src, detection.ClampThreshold(threshold), sink)
	span.SetAttributes(
		attribute.Int("frames.processed", analysis.FramesProcessed),
		attribute.Int("frames.failed", analysis.FramesFailed),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return analysis, err
}

func (s *Session) run(ctx context.Context, src SourceOpener, threshold float64, sinkOpener SinkOpener) (types.VideoAnalysis, error) {
	if !s.norm.Ready() {
		return types.VideoAnalysis{}, fatal(StageDetectorReady, ErrNotReady, detection.ErrDetectorUnavailable)
	}
	if s.mapper != nil && !s.mapper.Ready() {
		return types.VideoAnalysis{}, fatal(StageLandmarksReady, ErrNotReady, fieldmap.ErrLandmarksUnavailable)
	}
	if src == nil {
		return types.VideoAnalysis{}, fatal(StageOpenSource, ErrBadInput, errors.New("no source"))
	}

	source, err := src.Open(ctx)
	if err != nil {
		return types.VideoAnalysis{}, fatal(StageOpenSource, ErrBadInput, err)
	}
	defer func() {
		if cerr := source.Close(); cerr != nil {
			s.log.Warn(ctx, "closing source", logger.Error(cerr))
		}
	}()

	info := source.Info().Normalized()
	if !info.Usable() {
		return types.VideoAnalysis{}, fatal(StageSourceMetadata, ErrBadInput,
			fmt.Errorf("fps=%v size=%dx%d frames=%d", info.FPS, info.Width, info.Height, info.FrameCount))
	}

	r := &run{
		s:         s,
		info:      info,
		threshold: threshold,
		ballCfg:   s.ballConfig(info.FPS),
		window:    balltrack.NewWindow(s.tracker.Config().Window),
		analysis:  types.VideoAnalysis{FPS: info.FPS, Results: make([]types.DetectionResult, 0, resultsHint(info.FrameCount))},
	}

	if sinkOpener != nil {
		sink, err := sinkOpener.Open(ctx, info)
		if err != nil {
			metrics.RecordErrorByComponent("session", "sink_open")
			s.log.Warn(ctx, "annotated output disabled", logger.Error(err))
		} else {
			r.sink = sink
			defer func() {
				if cerr := sink.Close(); cerr != nil {
					s.log.Warn(ctx, "closing sink", logger.Error(cerr))
				}
			}()
		}
	}

	s.log.Info(ctx, "session started",
		logger.Float64("fps", info.FPS),
		logger.Int("width", info.Width),
		logger.Int("height", info.Height),
		logger.Int("frames", info.FrameCount),
		logger.Float64("threshold", threshold),
		logger.Bool("field_mapping", s.mapper != nil),
	)
	start := time.Now()
	err = r.execute(ctx, source)

	a := r.analysis
	a.FramesTotal = info.FrameCount
	if read := int(r.framesRead.Load()); read > a.FramesTotal || (err == nil && !a.Cancelled) {
		a.FramesTotal = read
	}
	s.log.Info(ctx, "session finished",
		logger.Int("processed", a.FramesProcessed),
		logger.Int("failed", a.FramesFailed),
		logger.Int("ball_frames", a.BallFramesFound),
		logger.Int("field_map_updates", a.FieldMapUpdates),
		logger.Bool("cancelled", a.Cancelled),
		logger.Duration("elapsed", time.Since(start)),
	)
	return a, err
}

// run is the state of one Run, owned by the in-order consumer.
type run struct {
	s         *Session
	info      model.VideoInfo
	threshold float64
	sink      Sink
	ballCfg   balltrack.Config

	window         *balltrack.Window
	fieldMap       fieldmap.FieldMap
	mapAttempted   bool
	lastMapAttempt int
	consecutive    int

	analysis   types.VideoAnalysis
	framesRead atomic.Int64
}

func (r *run) execute(ctx context.Context, src Source) error {
	// Dispatched frames finish even when ctx is cancelled.
	detached := context.WithoutCancel(ctx)
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()

	workers := r.s.workerCount()
	q := queue.NewInMemoryQueue(queue.WithCapacity(r.s.queueSize))
	pool := worker.NewPool(workers, q, worker.ProcessorFunc(r.detect), worker.WithLogger(r.s.log.Named("worker")))
	pool.Start(detached)
	r.s.log.Debug(ctx, "frame pipeline started",
		logger.Int("workers", pool.Size()),
		logger.Int("queue_capacity", q.Capacity()),
	)

	sem := semaphore.NewWeighted(int64(r.s.queueSize + 2*workers))

	var (
		g       errgroup.Group
		stopped bool
	)
	g.Go(func() error {
		defer func() { _ = q.Close() }()
		var err error
		stopped, err = r.read(readCtx, detached, src, q, sem)
		return err
	})

	var abort error
	buf := &reorderBuffer{}
	for res := range pool.Results() {
		buf.push(res)
		for {
			next, ok := buf.pop()
			if !ok {
				break
			}
			if abort == nil {
				if err := r.handle(detached, next); err != nil {
					abort = err
					stopReading()
				}
			}
			sem.Release(1)
		}
		metrics.UpdateReorderDepth(buf.len())
	}
	metrics.UpdateReorderDepth(0)

	readErr := g.Wait()
	switch {
	case abort != nil:
		return abort
	case readErr != nil:
		return fatal(StageFrames, ErrBadInput, readErr)
	case stopped && ctx.Err() != nil:
		r.analysis.Cancelled = true
		return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
	return nil
}

// read feeds frames into q until EOF or ctx is done. stopped reports an early stop.
func (r *run) read(ctx, detached context.Context, src Source, q queue.Queue, sem *semaphore.Weighted) (bool, error) {
	for idx := 0; ; idx++ {
		if ctx.Err() != nil {
			return true, nil
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return true, nil
		}

		img, err := src.Next(detached)
		if errors.Is(err, io.EOF) {
			sem.Release(1)
			return false, nil
		}
		job := queue.Job{Frame: model.Frame{Index: idx, Timestamp: float64(idx) / r.info.FPS, Image: img}}
		if err != nil {
			job.Frame.Image = nil
			job.DecodeErr = fmt.Errorf("%w: %w", ErrFrameDecode, err)
		}
		if err := q.Enqueue(detached, job); err != nil {
			sem.Release(1)
			return true, err
		}
		r.framesRead.Add(1)
	}
}

// detect runs on a worker: players, teams and ball candidates for one frame.
func (r *run) detect(ctx context.Context, j queue.Job) worker.Result { //nolint:gocritic // Job by value
	ctx, span := otel.Tracer(tracerName).Start(ctx, "worker.detect_frame")
	defer span.End()
	span.SetAttributes(attribute.Int("frame.index", j.Frame.Index))

	img := j.Frame.Image
	players, err := r.s.norm.Players(ctx, img, r.threshold)
	if err != nil {
		span.RecordError(err)
		return worker.Result{Err: err, Reason: failureReason(err)}
	}
	players, err = r.s.classifier.ClassifyAll(ctx, img, players)
	if err != nil {
		span.RecordError(err)
		return worker.Result{Err: err, Reason: "classify"}
	}
	balls, err := r.s.tracker.Candidates(ctx, img)
	if err != nil {
		span.RecordError(err)
		return worker.Result{Err: err, Reason: failureReason(err)}
	}
	return worker.Result{Players: players, Balls: balls}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, detection.ErrDetectorUnavailable):
		return "detector_unavailable"
	case errors.Is(err, ErrFrameDecode):
		return "decode"
	}
	return "detector"
}

// handle consumes one result in frame order.
func (r *run) handle(ctx context.Context, res worker.Result) error { //nolint:gocritic // Result by value
	idx := res.Index()
	if res.Err != nil {
		r.analysis.FramesFailed++
		metrics.RecordFrameFailed(res.Reason)
		r.s.log.Warn(ctx, "frame skipped",
			logger.Int("frame", idx),
			logger.String("reason", res.Reason),
			logger.Error(res.Err),
		)
		r.consecutive++
		r.reportProgress(ctx)
		if limit := r.s.maxConsecutiveFailures; limit > 0 && r.consecutive > limit {
			return fatal(StageFrames, ErrTooManyFailures, res.Err)
		}
		return nil
	}
	r.consecutive = 0
	frame := res.Job.Frame

	ball := balltrack.Select(idx, res.Balls, r.window.Positions(), r.ballCfg)
	switch {
	case ball != nil:
		r.window.Push(*ball)
		r.analysis.BallFramesFound++
		metrics.RecordBallOutcome("found")
	case balltrack.Rejected(res.Balls, ball):
		metrics.RecordBallOutcome("rejected")
	default:
		metrics.RecordBallOutcome("missing")
	}

	r.refreshFieldMap(ctx, frame)
	players := res.Players
	mapped := r.fieldMap.Valid()
	if mapped {
		pitch := r.s.mapper.Pitch()
		for i := range players {
			fx, fy := players[i].FootPoint()
			players[i].Field = pitch.Project(r.fieldMap, fx, fy)
		}
		if ball != nil {
			ball.Field = pitch.Project(r.fieldMap, ball.X, ball.Y)
		}
	}

	result := types.DetectionResult{
		Players:             players,
		Ball:                ball,
		FrameIndex:          idx,
		FrameTimestamp:      frame.Timestamp,
		ConfidenceThreshold: r.threshold,
		FieldMapped:         mapped,
	}
	r.analysis.Results = append(r.analysis.Results, result)
	r.analysis.FramesProcessed++
	metrics.RecordFrameProcessed(len(players))
	for _, p := range players {
		metrics.RecordTeamAssignment(teamLabel(p.TeamID))
	}

	if r.sink != nil {
		if err := r.sink.Write(ctx, idx, annotate.Render(frame.Image, result)); err != nil {
			metrics.RecordErrorByComponent("session", "sink_write")
			r.s.log.Warn(ctx, "annotated frame not written", logger.Int("frame", idx), logger.Error(err))
		}
	}
	r.reportProgress(ctx)
	return nil
}

// refreshFieldMap recomputes the map on the first processed frame and then every remap interval.
// A failed or low-quality map never replaces the cached one.
func (r *run) refreshFieldMap(ctx context.Context, frame model.Frame) {
	m := r.s.mapper
	if m == nil {
		return
	}
	if r.mapAttempted && (r.s.remapInterval <= 0 || frame.Index-r.lastMapAttempt < r.s.remapInterval) {
		return
	}
	r.mapAttempted = true
	r.lastMapAttempt = frame.Index

	fm, err := m.MapField(ctx, frame)
	if err != nil {
		r.analysis.FieldMapRejected++
		metrics.RecordErrorByComponent("fieldmap", "landmarks")
		r.s.log.Warn(ctx, "field map failed, keeping previous", logger.Int("frame", frame.Index), logger.Error(err))
		return
	}

	accepted := fm.Valid() && !fm.LowQuality(r.s.qualityFloor)
	metrics.RecordFieldMap(fm.Quality, accepted)
	if !accepted {
		r.analysis.FieldMapRejected++
		r.s.log.Info(ctx, "low quality field map, keeping previous",
			logger.Int("frame", frame.Index),
			logger.Float64("quality", fm.Quality),
			logger.Float64("floor", r.s.qualityFloor),
			logger.Bool("has_previous", r.fieldMap.Valid()),
		)
		return
	}
	r.fieldMap = fm
	r.analysis.FieldMapUpdates++
}

func (r *run) reportProgress(ctx context.Context) {
	done := r.analysis.FramesProcessed + r.analysis.FramesFailed
	p := types.Progress{
		FramesRead:      int(r.framesRead.Load()),
		FramesProcessed: r.analysis.FramesProcessed,
		FramesFailed:    r.analysis.FramesFailed,
		FramesTotal:     r.info.FrameCount,
	}
	if r.s.progress != nil {
		r.s.progress(p)
	}
	if done%defaultProgressInterval == 0 {
		r.s.log.Info(ctx, "progress",
			logger.Int("frames", done),
			logger.Int("total", r.info.FrameCount),
			logger.Int("failed", r.analysis.FramesFailed),
		)
	}
}

func teamLabel(team *int) string {
	if team == nil {
		return "unknown"
	}
	return fmt.Sprint(*team)
}

// resultsHint sizes the results buffer from the reported frame count, which is only an estimate.
func resultsHint(frameCount int) int {
	return max(0, min(frameCount, maxResultsHint))
}

