package videocli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/pitchvision/internal/domain/model"
	"github.com/okian/pitchvision/internal/domain/types"
	"github.com/okian/pitchvision/internal/session"
	"github.com/okian/pitchvision/pkg/logger"
)

// Errors returned by Run.
var (
	ErrNoVideo          = errors.New("video path is required")
	ErrDetectorNotReady = errors.New("detector not ready")
)

// Run analyzes cfg.VideoPath with p and writes the analysis. A cancelled or aborted
// session still writes the frames that completed before the error is returned.
func Run(ctx context.Context, cfg *Config, p Processor, open SourceFactory, create SinkFactory) (*Stats, error) {
	if strings.TrimSpace(cfg.VideoPath) == "" {
		return nil, ErrNoVideo
	}
	log := logger.OrNop("videocli")
	stats := &Stats{StartTime: time.Now()}

	threshold := cfg.Threshold
	if threshold < 0 {
		threshold = p.DefaultThreshold()
	}
	log.Info(ctx, "starting video analysis",
		logger.String("video", cfg.VideoPath),
		logger.String("outputVideo", cfg.OutputVideo),
		logger.String("output", outputPath(cfg)),
		logger.Float64("threshold", threshold))

	// Step 1: Check the detector
	if status := p.ModelsLoaded(); !status.Detector {
		return nil, ErrDetectorNotReady
	}

	// Step 2: Run the session
	src := session.SourceFunc(func(ctx context.Context) (session.Source, error) {
		return open(ctx, cfg.VideoPath)
	})
	var sink session.SinkOpener
	if cfg.OutputVideo != "" && create != nil {
		sink = session.SinkFunc(func(ctx context.Context, info model.VideoInfo) (session.Sink, error) {
			return create(ctx, cfg.OutputVideo, info)
		})
	}
	analysis, runErr := p.ProcessVideo(ctx, src, threshold, sink, progressLogger(ctx, log, cfg))

	stats.FramesProcessed = analysis.FramesProcessed
	stats.FramesFailed = analysis.FramesFailed
	stats.FramesTotal = analysis.FramesTotal
	stats.BallFramesFound = analysis.BallFramesFound
	stats.FieldMapUpdates = analysis.FieldMapUpdates
	stats.Cancelled = analysis.Cancelled
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	// Step 3: Save the analysis
	if runErr == nil || analysis.FramesProcessed+analysis.FramesFailed > 0 {
		if err := saveAnalysis(ctx, cfg, analysis); err != nil {
			return stats, errors.Join(runErr, err)
		}
	}

	displayFinalStats(ctx, log, stats)
	if runErr != nil {
		return stats, fmt.Errorf("video analysis failed: %w", runErr)
	}
	log.Info(ctx, "video analysis completed")
	return stats, nil
}

// progressLogger logs every ProgressLog frames, or every update when verbose.
func progressLogger(ctx context.Context, log logger.Logger, cfg *Config) func(types.Progress) {
	every := cfg.ProgressLog
	if every <= 0 {
		every = DefaultProgressLog
	}
	next := 0
	return func(p types.Progress) {
		done := p.FramesProcessed + p.FramesFailed
		if !cfg.Verbose && done < next {
			return
		}
		next = done + every
		var pct float64
		if p.FramesTotal > 0 {
			pct = float64(done) / float64(p.FramesTotal) * PercentageMultiplier
		}
		log.Info(ctx, "progress",
			logger.Int("framesRead", p.FramesRead),
			logger.Int("framesProcessed", p.FramesProcessed),
			logger.Int("framesFailed", p.FramesFailed),
			logger.Int("framesTotal", p.FramesTotal),
			logger.Float64("percent", pct))
	}
}

func outputPath(cfg *Config) string {
	if cfg.OutputJSON != "" {
		return cfg.OutputJSON
	}
	base := strings.TrimSuffix(cfg.VideoPath, filepath.Ext(cfg.VideoPath))
	return base + analysisSuffix
}

// saveAnalysis writes the analysis as indented JSON.
func saveAnalysis(ctx context.Context, cfg *Config, analysis types.VideoAnalysis) error {
	filename := outputPath(cfg)
	if filename == StdoutPath {
		return writeAnalysis(os.Stdout, analysis)
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermission)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := writeAnalysis(file, analysis); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	logger.OrNop("videocli").Info(ctx, "analysis saved to file", logger.String("filename", filename))
	return nil
}

func writeAnalysis(w io.Writer, analysis types.VideoAnalysis) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(analysis); err != nil {
		return fmt.Errorf("failed to write analysis: %w", err)
	}
	return nil
}

// displayFinalStats logs the run summary.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var successRate, framesPerSecond float64
	done := stats.FramesProcessed + stats.FramesFailed
	if done > 0 {
		successRate = float64(stats.FramesProcessed) / float64(done) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		framesPerSecond = float64(done) / stats.Duration.Seconds()
	}

	log.Info(ctx, "final statistics",
		logger.Int("framesProcessed", stats.FramesProcessed),
		logger.Int("framesFailed", stats.FramesFailed),
		logger.Int("framesTotal", stats.FramesTotal),
		logger.Int("ballFramesFound", stats.BallFramesFound),
		logger.Int("fieldMapUpdates", stats.FieldMapUpdates),
		logger.Bool("cancelled", stats.Cancelled),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("framesPerSecond", framesPerSecond))
}
