// Package video reads and writes video files through OpenCV.
package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/okian/pitchvision/internal/domain/model"
	"github.com/okian/pitchvision/internal/session"
)

const (
	// DefaultCodec is the FourCC used when the output extension does not select one.
	DefaultCodec = "mp4v"

	// maxReadFailures ends the stream after this many failed reads in a row.
	maxReadFailures = 8
)

var (
	// ErrEmptyFrame marks a frame that decoded to nothing. The reader has moved past it.
	ErrEmptyFrame = errors.New("empty frame")
	// ErrReadFailed marks a frame that could not be read before the end of the stream.
	ErrReadFailed = errors.New("frame read failed")
)

// FileSource reads frames from a video file.
type FileSource struct {
	mu       sync.Mutex
	cap      *gocv.VideoCapture
	mat      gocv.Mat
	info     model.VideoInfo
	failures int
}

// OpenFile opens path for reading.
func OpenFile(_ context.Context, path string) (*FileSource, error) {
	c, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if !c.IsOpened() {
		_ = c.Close()
		return nil, fmt.Errorf("open %s: not a readable video", path)
	}
	return &FileSource{
		cap: c,
		mat: gocv.NewMat(),
		info: model.VideoInfo{
			FPS:        c.Get(gocv.VideoCaptureFPS),
			Width:      int(c.Get(gocv.VideoCaptureFrameWidth)),
			Height:     int(c.Get(gocv.VideoCaptureFrameHeight)),
			FrameCount: int(c.Get(gocv.VideoCaptureFrameCount)),
		}.Normalized(),
	}, nil
}

// Info returns the container metadata.
func (s *FileSource) Info() model.VideoInfo { return s.info }

// Next decodes the next frame. It returns io.EOF once the stream ends.
func (s *FileSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cap.Read(&s.mat) {
		pos := int(s.cap.Get(gocv.VideoCapturePosFrames))
		if !midStream(pos, s.info.FrameCount, s.failures) {
			return nil, io.EOF
		}
		s.failures++
		s.cap.Set(gocv.VideoCapturePosFrames, float64(pos+1))
		return nil, fmt.Errorf("%w: position %d of %d", ErrReadFailed, pos, s.info.FrameCount)
	}
	s.failures = 0
	if s.mat.Empty() {
		return nil, ErrEmptyFrame
	}
	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

// midStream reports whether a failed read at pos is a bad frame rather than the end of
// the stream. An unknown length or a run of failures counts as the end.
func midStream(pos, frameCount, failures int) bool {
	return frameCount > 0 && pos >= 0 && pos < frameCount && failures < maxReadFailures
}

// Close releases the capture.
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.mat.Close()
	return s.cap.Close()
}

// FileSink writes frames to a video file sized from the source.
type FileSink struct {
	mu     sync.Mutex
	writer *gocv.VideoWriter
	size   image.Point
}

// CreateFile opens path for writing at the source's frame rate and size.
func CreateFile(_ context.Context, path string, info model.VideoInfo) (*FileSink, error) {
	if !info.Usable() {
		return nil, fmt.Errorf("create %s: unusable metadata %+v", path, info)
	}
	w, err := gocv.VideoWriterFile(path, codecFor(path), info.FPS, info.Width, info.Height, true)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	if !w.IsOpened() {
		_ = w.Close()
		return nil, fmt.Errorf("create %s: writer not opened", path)
	}
	return &FileSink{writer: w, size: image.Pt(info.Width, info.Height)}, nil
}

// Write appends img, resizing it to the output size when needed.
func (s *FileSink) Write(_ context.Context, _ int, img image.Image) error {
	if img == nil {
		return errors.New("nil frame")
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()

	out := mat
	if img.Bounds().Size() != s.size {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(mat, &resized, s.size, 0, 0, gocv.InterpolationLinear)
		out = resized
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Write(out)
}

// Close finalizes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Close()
}

func codecFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".avi":
		return "XVID"
	case ".mkv":
		return "X264"
	}
	return DefaultCodec
}

// OpenSource opens path as a session source.
func OpenSource(ctx context.Context, path string) (session.Source, error) {
	src, err := OpenFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// CreateSink creates path as a session sink.
func CreateSink(ctx context.Context, path string, info model.VideoInfo) (session.Sink, error) {
	sink, err := CreateFile(ctx, path, info)
	if err != nil {
		return nil, err
	}
	return sink, nil
}
