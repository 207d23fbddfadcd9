package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given a private registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithMetricPrefix("x_"),
				WithLatencyBuckets([]float64{1, 5, 10}),
				WithQualityBuckets([]float64{0.5, 1}),
				WithRefreshInterval(5*time.Second),
				WithConstLabels(map[string]string{"env": "test"}),
				WithRegistry(registry),
			)
			manager.framesProcessed.Inc()

			Convey("Then metric names carry the namespace, subsystem and prefix", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_unit_x_frames_processed_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
				So(manager.refreshInterval, ShouldEqual, 5*time.Second)
			})
		})

		Convey("When frame metrics are turned off", func() {
			manager := NewManager(WithFrameMetrics(false), WithRegistry(registry))

			Convey("Then the manager skips per-frame counters", func() {
				So(manager.frameMetrics, ShouldBeFalse)
				So(manager.qualityBuckets, ShouldResemble, defaultQualityBuckets)
			})
		})

		Convey("When empty options are passed", func() {
			manager := NewManager(WithNamespace(""), WithLatencyBuckets(nil), WithRegistry(registry))

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "pitchvision")
				So(manager.latencyBuckets, ShouldResemble, defaultLatencyBuckets)
				So(manager.frameMetrics, ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When frames are processed and failed", func() {
			before := testutil.ToFloat64(globalManager.framesProcessed)
			RecordFrameProcessed(11)
			RecordFrameProcessed(0)
			failedBefore := testutil.ToFloat64(globalManager.framesFailed.WithLabelValues("decode"))
			RecordFrameFailed("decode")

			Convey("Then the counters move", func() {
				So(testutil.ToFloat64(globalManager.framesProcessed), ShouldEqual, before+2)
				So(testutil.ToFloat64(globalManager.framesFailed.WithLabelValues("decode")), ShouldEqual, failedBefore+1)
			})
		})

		Convey("When field maps are recorded", func() {
			acc := testutil.ToFloat64(globalManager.fieldMapUpdates.WithLabelValues("accepted"))
			rej := testutil.ToFloat64(globalManager.fieldMapUpdates.WithLabelValues("rejected"))
			RecordFieldMap(0.9, true)
			RecordFieldMap(0.3, false)

			Convey("Then accepted and rejected are split", func() {
				So(testutil.ToFloat64(globalManager.fieldMapUpdates.WithLabelValues("accepted")), ShouldEqual, acc+1)
				So(testutil.ToFloat64(globalManager.fieldMapUpdates.WithLabelValues("rejected")), ShouldEqual, rej+1)
			})
		})

		Convey("When gauges are updated", func() {
			UpdateQueueSize(12)
			UpdateQueueCapacity(64)
			UpdateWorkerCount(4)
			UpdateActiveJobs(2)
			UpdateReorderDepth(3)

			Convey("Then they hold the last value", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 12.0)
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 64.0)
				So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 4.0)
				So(testutil.ToFloat64(globalManager.activeJobs), ShouldEqual, 2.0)
				So(testutil.ToFloat64(globalManager.reorderDepth), ShouldEqual, 3.0)
			})
		})

		Convey("When everything else is recorded", func() {
			So(func() {
				RecordDetectionLatency("players", 12.5)
				RecordTeamAssignment("1")
				RecordBallOutcome("found")
				RecordJob("completed")
				UpdateQueueUtilization(0.5)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				UpdateWorkerActiveCount(1)
				RecordWorkerProcessingLatency(3)
				RecordWorkerError()
				RecordHTTPRequest("/health", "GET", "200")
				RecordHTTPRequestDuration("/health", "GET", "200", 1.2)
				RecordErrorByComponent("session", "decode")
				RecordErrorByType("decode", "warning")
				RecordErrorByEndpoint("/map-field", "POST", "bad_request")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(10)
				RecordSystemGCPauseTime(0.2)
			}, ShouldNotPanic)
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordBallOutcome("missing")
		families, err := GetRegistry().Gather()
		So(err, ShouldBeNil)

		Convey("Then it exposes the pitchvision metrics", func() {
			names := make([]string, 0, len(families))
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(strings.Join(names, ","), ShouldContainSubstring, "pitchvision_analytics_ball_outcomes_total")
			So(RefreshInterval(), ShouldEqual, defaultRefreshInterval)
		})
	})
}
