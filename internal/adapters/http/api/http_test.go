package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pitchvision/internal/adapters/http/api"
	"github.com/okian/pitchvision/internal/adapters/repository"
	service "github.com/okian/pitchvision/internal/app"
	"github.com/okian/pitchvision/internal/domain/detection"
	"github.com/okian/pitchvision/internal/domain/fieldmap"
	"github.com/okian/pitchvision/internal/domain/types"
)

var _ api.Dependencies = (*service.Service)(nil)

// mockDependencies records calls and answers from fixed values.
type mockDependencies struct {
	models    types.ModelStatus
	detectErr error
	mapErr    error
	submitErr error

	threshold  float64
	imageSize  image.Point
	prior      []types.BallPosition
	frameIndex int
	submitted  types.VideoRequest
	jobs       map[string]repository.Job
}

func (m *mockDependencies) DetectPlayers(_ context.Context, img image.Image, threshold float64) (types.DetectionResult, error) {
	m.threshold = threshold
	m.imageSize = img.Bounds().Size()
	if m.detectErr != nil {
		return types.DetectionResult{}, m.detectErr
	}
	team := types.TeamHome
	return types.DetectionResult{
		Players:             []types.PlayerCandidate{{CenterX: 20, CenterY: 25, Width: 20, Height: 30, Confidence: 0.9, TeamID: &team}},
		ConfidenceThreshold: threshold,
	}, nil
}

func (m *mockDependencies) TrackBall(_ context.Context, _ image.Image, frameIndex int, prior []types.BallPosition) (*types.BallPosition, error) {
	m.frameIndex = frameIndex
	m.prior = prior
	if len(prior) == 0 {
		return nil, nil
	}
	return &types.BallPosition{X: prior[0].X + 5, Y: prior[0].Y + 2, Confidence: 0.5, FrameIndex: frameIndex}, nil
}

func (m *mockDependencies) MapField(context.Context, image.Image) (types.FieldMapInfo, error) {
	if m.mapErr != nil {
		return types.FieldMapInfo{}, m.mapErr
	}
	return types.FieldMapInfo{Quality: 0.3, Correspondences: 5, LowQuality: true}, nil
}

func (m *mockDependencies) DefaultThreshold() float64 { return 0.5 }

func (m *mockDependencies) SubmitVideo(_ context.Context, req types.VideoRequest) (repository.Job, error) {
	m.submitted = req
	if m.submitErr != nil {
		return repository.Job{}, m.submitErr
	}
	job := repository.Job{ID: "job-1", VideoPath: req.VideoPath, Status: repository.StatusQueued}
	m.jobs[job.ID] = job
	return job, nil
}

func (m *mockDependencies) GetJob(_ context.Context, id string) (repository.Job, error) {
	job, ok := m.jobs[id]
	if !ok {
		return repository.Job{}, fmt.Errorf("job %s: %w", id, repository.ErrNotFound)
	}
	return job, nil
}

func (m *mockDependencies) ListJobs(_ context.Context, limit int) ([]repository.Job, error) {
	out := make([]repository.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockDependencies) CancelJob(_ context.Context, id string) (repository.Job, error) {
	job, ok := m.jobs[id]
	if !ok {
		return repository.Job{}, repository.ErrNotFound
	}
	if job.Status.Terminal() {
		return job, repository.ErrTerminal
	}
	return job, nil
}

func (m *mockDependencies) ModelsLoaded() types.ModelStatus { return m.models }

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps *mockDependencies, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}}, opts...).
		Register(context.Background(), mux)
	return mux
}

func newDeps() *mockDependencies {
	return &mockDependencies{
		models: types.ModelStatus{Detector: true},
		jobs: map[string]repository.Job{
			"done": {ID: "done", Status: repository.StatusCompleted},
		},
	}
}

// uploadRequest builds a multipart request with a PNG "file" and extra form fields.
func uploadRequest(path string, fields map[string]string) *http.Request {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "frame.png")
	_ = png.Encode(fw, image.NewRGBA(image.Rect(0, 0, 32, 24)))
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(mux *http.ServeMux, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, r io.Reader, v any) {
	t.Helper()
	if err := json.NewDecoder(r).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestServer_HealthRoutes(t *testing.T) {
	Convey("Given a server whose detector is loaded", t, func() {
		mux := newMux(newDeps())

		Convey("Then /healthz serves metrics", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then /health reports the models", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
			var body map[string]any
			decode(t, w.Body, &body)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(body["status"], ShouldEqual, "healthy")
			So(body["service"], ShouldEqual, "pitchvision")
			So(body["models_loaded"], ShouldEqual, true)
		})

		Convey("Then /models/status reports each capability", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/models/status", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"detector":true`)
			So(w.Body.String(), ShouldContainSubstring, `"landmarks":false`)
			So(w.Body.String(), ShouldContainSubstring, `"ready":false`)
		})

		Convey("Then /stats returns the provider's stats", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/stats", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("Then the wrong method is not found", func() {
			w := serve(mux, httptest.NewRequest(http.MethodPost, "/health", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestServer_DetectPlayers(t *testing.T) {
	Convey("Given a server", t, func() {
		deps := newDeps()
		mux := newMux(deps)

		Convey("When an image is posted with a threshold", func() {
			w := serve(mux, uploadRequest("/detect-players?confidence_threshold=0.7", nil))

			Convey("Then the detection result is returned", func() {
				var res types.DetectionResult
				decode(t, w.Body, &res)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.threshold, ShouldEqual, 0.7)
				So(deps.imageSize, ShouldResemble, image.Pt(32, 24))
				So(res.Players, ShouldHaveLength, 1)
				So(*res.Players[0].TeamID, ShouldEqual, types.TeamHome)
				So(res.Ball, ShouldBeNil)
			})
		})

		Convey("When no threshold is given", func() {
			serve(mux, uploadRequest("/detect-players", nil))
			So(deps.threshold, ShouldEqual, 0.5)
		})

		Convey("When the threshold is not a number", func() {
			w := serve(mux, uploadRequest("/detect-players?confidence_threshold=high", nil))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the file is missing", func() {
			req := httptest.NewRequest(http.MethodPost, "/detect-players", strings.NewReader("x"))
			req.Header.Set("Content-Type", "text/plain")
			w := serve(mux, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the upload is not an image", func() {
			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			fw, _ := mw.CreateFormFile("file", "frame.png")
			_, _ = fw.Write([]byte("not an image"))
			_ = mw.Close()
			req := httptest.NewRequest(http.MethodPost, "/detect-players", &body)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			w := serve(mux, req)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "decode image")
			})
		})

		Convey("When the detector is unavailable", func() {
			deps.detectErr = fmt.Errorf("players: %w", detection.ErrDetectorUnavailable)
			w := serve(mux, uploadRequest("/detect-players", nil))

			Convey("Then the service is unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(w.Body.String(), ShouldContainSubstring, `"code":"unavailable"`)
			})
		})

		Convey("When the detector times out", func() {
			deps.detectErr = fmt.Errorf("%w: %w", detection.ErrInference, context.DeadlineExceeded)
			w := serve(mux, uploadRequest("/detect-players", nil))
			So(w.Code, ShouldEqual, http.StatusGatewayTimeout)
		})

		Convey("When the upload exceeds the limit", func() {
			small := newMux(deps, api.WithMaxUploadBytes(64))
			w := serve(small, uploadRequest("/detect-players", map[string]string{"pad": strings.Repeat("x", 4096)}))
			So(w.Code, ShouldBeIn, []int{http.StatusRequestEntityTooLarge, http.StatusBadRequest})
		})
	})
}

func TestServer_TrackBall(t *testing.T) {
	Convey("Given a server", t, func() {
		deps := newDeps()
		mux := newMux(deps)

		Convey("When previous positions are posted", func() {
			prior := `[{"x":100,"y":50,"confidence":0.8,"frame_index":7}]`
			w := serve(mux, uploadRequest("/track-ball", map[string]string{"previous_positions": prior}))

			Convey("Then the frame index follows the most recent position", func() {
				var res map[string]any
				decode(t, w.Body, &res)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.frameIndex, ShouldEqual, 8)
				So(deps.prior, ShouldHaveLength, 1)
				So(res["frame_index"], ShouldEqual, float64(8))
				ball := res["ball"].(map[string]any)
				So(ball["x"], ShouldEqual, float64(105))
				So(ball["y"], ShouldEqual, float64(52))
			})
		})

		Convey("When an explicit frame index is given", func() {
			serve(mux, uploadRequest("/track-ball", map[string]string{"frame_index": "3"}))
			So(deps.frameIndex, ShouldEqual, 3)
		})

		Convey("When no ball is found", func() {
			w := serve(mux, uploadRequest("/track-ball", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ball":null`)
		})

		Convey("When previous positions are malformed", func() {
			w := serve(mux, uploadRequest("/track-ball", map[string]string{"previous_positions": "[{"}))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestServer_MapField(t *testing.T) {
	Convey("Given a server", t, func() {
		deps := newDeps()
		mux := newMux(deps)

		Convey("When a low quality view is mapped", func() {
			w := serve(mux, uploadRequest("/map-field", nil))

			Convey("Then the low quality flag is returned", func() {
				var info types.FieldMapInfo
				decode(t, w.Body, &info)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(info.LowQuality, ShouldBeTrue)
				So(info.Quality, ShouldEqual, 0.3)
			})
		})

		Convey("When the landmark detector is not loaded", func() {
			deps.mapErr = fieldmap.ErrLandmarksUnavailable
			w := serve(mux, uploadRequest("/map-field", nil))
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When landmark detection fails", func() {
			deps.mapErr = fmt.Errorf("%w: model crashed", fieldmap.ErrLandmarks)
			w := serve(mux, uploadRequest("/map-field", nil))
			So(w.Code, ShouldEqual, http.StatusBadGateway)
		})
	})
}

func TestServer_Jobs(t *testing.T) {
	Convey("Given a server", t, func() {
		deps := newDeps()
		mux := newMux(deps)

		Convey("When a video is submitted", func() {
			req := httptest.NewRequest(http.MethodPost, "/process-video",
				strings.NewReader(`{"video_path":"/videos/match.mp4","output_path":"/out/a.mp4","confidence_threshold":0.6}`))
			w := serve(mux, req)

			Convey("Then the job is accepted", func() {
				var job repository.Job
				decode(t, w.Body, &job)
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(w.Header().Get("Location"), ShouldEqual, "/jobs/job-1")
				So(job.Status, ShouldEqual, repository.StatusQueued)
				So(deps.submitted.OutputPath, ShouldEqual, "/out/a.mp4")
				So(*deps.submitted.ConfidenceThreshold, ShouldEqual, 0.6)
			})

			Convey("Then the job can be fetched", func() {
				w := serve(mux, httptest.NewRequest(http.MethodGet, "/jobs/job-1", http.NoBody))
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"video_path":"/videos/match.mp4"`)
			})

			Convey("Then the job can be cancelled", func() {
				w := serve(mux, httptest.NewRequest(http.MethodDelete, "/jobs/job-1", http.NoBody))
				So(w.Code, ShouldEqual, http.StatusAccepted)
			})
		})

		Convey("When the video is already in flight", func() {
			deps.submitErr = fmt.Errorf("%w: /videos/match.mp4", service.ErrDuplicateVideo)
			w := serve(mux, httptest.NewRequest(http.MethodPost, "/process-video", strings.NewReader(`{"video_path":"/videos/match.mp4"}`)))

			Convey("Then it is a conflict", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(w.Body.String(), ShouldContainSubstring, `"code":"duplicate"`)
			})
		})

		Convey("When the body is not valid JSON", func() {
			w := serve(mux, httptest.NewRequest(http.MethodPost, "/process-video", strings.NewReader(`{"video":`)))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the path is missing", func() {
			deps.submitErr = fmt.Errorf("%w: video_path is required", service.ErrInvalidRequest)
			w := serve(mux, httptest.NewRequest(http.MethodPost, "/process-video", strings.NewReader(`{}`)))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When an unknown job is fetched", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/jobs/nope", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When a finished job is cancelled", func() {
			w := serve(mux, httptest.NewRequest(http.MethodDelete, "/jobs/done", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusConflict)
		})

		Convey("When jobs are listed", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/jobs?limit=5", http.NoBody))
			var jobs []repository.Job
			decode(t, w.Body, &jobs)

			Convey("Then the stored jobs are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(jobs, ShouldHaveLength, 1)
			})
		})

		Convey("When the limit is invalid", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, "/jobs?limit=0", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestKindError(t *testing.T) {
	Convey("Given a wrapped API error", t, func() {
		cause := errors.New("boom")
		err := api.WrapKind("api.test", api.ErrBadRequest, cause)

		Convey("Then it matches the kind and the cause", func() {
			So(err.Error(), ShouldEqual, "api.test: bad request: boom")
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(api.NewKind("api.test", api.ErrConflict).Error(), ShouldEqual, "api.test: conflict")
		})
	})
}
