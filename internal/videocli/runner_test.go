package videocli_test

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/pitchvision/internal/app"
	"github.com/okian/pitchvision/internal/domain/model"
	"github.com/okian/pitchvision/internal/domain/types"
	"github.com/okian/pitchvision/internal/session"
	"github.com/okian/pitchvision/internal/videocli"
)

var _ videocli.Processor = (*service.Service)(nil)

type stubSource struct{}

func (stubSource) Info() model.VideoInfo                     { return model.VideoInfo{FPS: 25, Width: 64, Height: 48, FrameCount: 3} }
func (stubSource) Next(context.Context) (image.Image, error) { return nil, io.EOF }
func (stubSource) Close() error                              { return nil }

type stubSink struct{}

func (stubSink) Write(context.Context, int, image.Image) error { return nil }
func (stubSink) Close() error                                  { return nil }

// stubProcessor opens the source and sink like a session and returns a fixed analysis.
type stubProcessor struct {
	detector  bool
	err       error
	threshold float64
	openedSrc bool
	openedOut bool
	updates   int
}

func (p *stubProcessor) ProcessVideo(ctx context.Context, src session.SourceOpener, threshold float64, sink session.SinkOpener, progress func(types.Progress)) (types.VideoAnalysis, error) {
	p.threshold = threshold
	s, err := src.Open(ctx)
	if err != nil {
		return types.VideoAnalysis{}, err
	}
	p.openedSrc = true
	if sink != nil {
		if _, err := sink.Open(ctx, s.Info()); err == nil {
			p.openedOut = true
		}
	}
	for i := 1; i <= 3; i++ {
		progress(types.Progress{FramesRead: i, FramesProcessed: i, FramesTotal: 3})
		p.updates++
	}
	return types.VideoAnalysis{
		Results:         []types.DetectionResult{{FrameIndex: 0}, {FrameIndex: 1}},
		FramesProcessed: 2,
		FramesFailed:    1,
		FramesTotal:     3,
		BallFramesFound: 1,
		FPS:             25,
		Cancelled:       errors.Is(p.err, context.Canceled),
	}, p.err
}

func (p *stubProcessor) DefaultThreshold() float64 { return 0.5 }

func (p *stubProcessor) ModelsLoaded() types.ModelStatus {
	return types.ModelStatus{Detector: p.detector}
}

func openStub(_ context.Context, path string) (session.Source, error) {
	if path == "missing.mp4" {
		return nil, errors.New("open missing.mp4: not a readable video")
	}
	return stubSource{}, nil
}

func createStub(context.Context, string, model.VideoInfo) (session.Sink, error) {
	return stubSink{}, nil
}

func readAnalysis(path string) types.VideoAnalysis {
	var a types.VideoAnalysis
	b, err := os.ReadFile(path)
	So(err, ShouldBeNil)
	So(json.Unmarshal(b, &a), ShouldBeNil)
	return a
}

func TestRun(t *testing.T) {
	Convey("Given a processor with a loaded detector", t, func() {
		dir := t.TempDir()
		p := &stubProcessor{detector: true}
		cfg := &videocli.Config{
			VideoPath:  "match.mp4",
			OutputJSON: filepath.Join(dir, "out", "analysis.json"),
			Threshold:  -1,
		}

		Convey("When the video is analyzed", func() {
			stats, err := videocli.Run(context.Background(), cfg, p, openStub, createStub)

			Convey("Then the analysis is written", func() {
				So(err, ShouldBeNil)
				So(p.threshold, ShouldEqual, 0.5)
				So(p.openedSrc, ShouldBeTrue)
				So(p.openedOut, ShouldBeFalse)
				So(stats.FramesProcessed, ShouldEqual, 2)
				So(stats.FramesFailed, ShouldEqual, 1)
				So(stats.BallFramesFound, ShouldEqual, 1)

				a := readAnalysis(cfg.OutputJSON)
				So(a.Results, ShouldHaveLength, 2)
				So(a.FramesTotal, ShouldEqual, 3)
			})
		})

		Convey("When an output video and threshold are given", func() {
			cfg.OutputVideo = filepath.Join(dir, "annotated.mp4")
			cfg.Threshold = 0.7
			_, err := videocli.Run(context.Background(), cfg, p, openStub, createStub)

			Convey("Then the sink is opened with the explicit threshold", func() {
				So(err, ShouldBeNil)
				So(p.openedOut, ShouldBeTrue)
				So(p.threshold, ShouldEqual, 0.7)
			})
		})

		Convey("When the session is cancelled", func() {
			p.err = context.Canceled
			stats, err := videocli.Run(context.Background(), cfg, p, openStub, createStub)

			Convey("Then the partial analysis is still written", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(stats.Cancelled, ShouldBeTrue)
				So(readAnalysis(cfg.OutputJSON).Cancelled, ShouldBeTrue)
			})
		})

		Convey("When the video cannot be opened", func() {
			cfg.VideoPath = "missing.mp4"
			_, err := videocli.Run(context.Background(), cfg, p, openStub, createStub)

			Convey("Then nothing is written", func() {
				So(err, ShouldNotBeNil)
				_, statErr := os.Stat(cfg.OutputJSON)
				So(os.IsNotExist(statErr), ShouldBeTrue)
			})
		})

		Convey("When no output file is named", func() {
			cfg.VideoPath = filepath.Join(dir, "clip.mp4")
			cfg.OutputJSON = ""
			_, err := videocli.Run(context.Background(), cfg, p, openStub, createStub)

			Convey("Then the name is derived from the video", func() {
				So(err, ShouldBeNil)
				_, statErr := os.Stat(filepath.Join(dir, "clip_analysis.json"))
				So(statErr, ShouldBeNil)
			})
		})
	})

	Convey("Given a processor without a detector", t, func() {
		p := &stubProcessor{}
		_, err := videocli.Run(context.Background(), &videocli.Config{VideoPath: "match.mp4", Threshold: -1}, p, openStub, createStub)

		Convey("Then the run is refused", func() {
			So(errors.Is(err, videocli.ErrDetectorNotReady), ShouldBeTrue)
			So(p.openedSrc, ShouldBeFalse)
		})
	})

	Convey("Given no video path", t, func() {
		_, err := videocli.Run(context.Background(), &videocli.Config{}, &stubProcessor{detector: true}, openStub, createStub)
		So(errors.Is(err, videocli.ErrNoVideo), ShouldBeTrue)
	})
}
