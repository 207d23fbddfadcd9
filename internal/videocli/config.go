package videocli

import (
	"context"
	"time"

	"github.com/okian/pitchvision/internal/domain/model"
	"github.com/okian/pitchvision/internal/domain/types"
	"github.com/okian/pitchvision/internal/session"
)

// Config holds one offline analysis run.
type Config struct {
	VideoPath   string  // Input video file
	OutputVideo string  // Annotated video file; empty skips rendering
	OutputJSON  string  // Analysis file; "-" writes to stdout, empty derives a name from VideoPath
	Threshold   float64 // Player confidence threshold; negative selects the service default
	ProgressLog int     // Frames between progress log lines
	Verbose     bool    // Log every progress update
}

// Processor runs a video session. *service.Service satisfies it.
type Processor interface {
	ProcessVideo(ctx context.Context, src session.SourceOpener, threshold float64, sink session.SinkOpener, progress func(types.Progress)) (types.VideoAnalysis, error)
	DefaultThreshold() float64
	ModelsLoaded() types.ModelStatus
}

// SourceFactory opens the input video.
type SourceFactory func(ctx context.Context, path string) (session.Source, error)

// SinkFactory creates the annotated output video.
type SinkFactory func(ctx context.Context, path string, info model.VideoInfo) (session.Sink, error)

// Stats summarizes a run.
type Stats struct {
	FramesProcessed int
	FramesFailed    int
	FramesTotal     int
	BallFramesFound int
	FieldMapUpdates int
	Cancelled       bool
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
