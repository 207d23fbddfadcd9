package session

import (
	"context"
	"image"

	"github.com/okian/pitchvision/internal/domain/model"
)

// Source yields decoded frames in order.
type Source interface {
	Info() model.VideoInfo
	// Next returns the next frame, io.EOF at the end, or a frame-local error after
	// which the source has advanced past the bad frame.
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// Sink receives annotated frames in order.
type Sink interface {
	Write(ctx context.Context, frameIndex int, img image.Image) error
	Close() error
}

// SourceOpener opens a frame source.
type SourceOpener interface {
	Open(ctx context.Context) (Source, error)
}

// SinkOpener opens a frame sink sized from the source metadata.
type SinkOpener interface {
	Open(ctx context.Context, info model.VideoInfo) (Sink, error)
}

// SourceFunc adapts a function to SourceOpener.
type SourceFunc func(ctx context.Context) (Source, error)

// Open calls f.
func (f SourceFunc) Open(ctx context.Context) (Source, error) { return f(ctx) }

// SinkFunc adapts a function to SinkOpener.
type SinkFunc func(ctx context.Context, info model.VideoInfo) (Sink, error)

// Open calls f.
func (f SinkFunc) Open(ctx context.Context, info model.VideoInfo) (Sink, error) { return f(ctx, info) }
