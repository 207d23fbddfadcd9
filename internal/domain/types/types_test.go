package types

import (
	"encoding/json"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestPlayerCandidate(t *testing.T) {
	Convey("Given a player candidate", t, func() {
		p := PlayerCandidate{CenterX: 50, CenterY: 100, Width: 20, Height: 60, Confidence: 0.8}

		Convey("Then its box and foot point follow from center form", func() {
			b := p.Box()
			So(b.X1, ShouldEqual, 40.0)
			So(b.Y2, ShouldEqual, 130.0)
			x, y := p.FootPoint()
			So(x, ShouldEqual, 50.0)
			So(y, ShouldEqual, 130.0)
		})

		Convey("Then unknown team and player id serialize as null", func() {
			raw, err := json.Marshal(p)
			So(err, ShouldBeNil)
			So(string(raw), ShouldContainSubstring, `"team_id":null`)
			So(string(raw), ShouldContainSubstring, `"player_id":null`)
			So(string(raw), ShouldNotContainSubstring, `"field"`)
		})
	})
}

func TestModelStatus(t *testing.T) {
	Convey("Given model status values", t, func() {
		So(ModelStatus{Detector: true, Landmarks: true}.Ready(), ShouldBeTrue)
		So(ModelStatus{Detector: true}.Ready(), ShouldBeFalse)
	})
}

func TestDetectionResultAbsentBall(t *testing.T) {
	Convey("Given a result without a ball", t, func() {
		raw, err := json.Marshal(DetectionResult{FrameIndex: 3})

		Convey("Then the ball is null rather than omitted", func() {
			So(err, ShouldBeNil)
			So(string(raw), ShouldContainSubstring, `"ball":null`)
		})
	})
}
