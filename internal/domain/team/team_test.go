package team

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/okian/pitchvision/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

var (
	red   = color.RGBA{R: 220, G: 20, B: 20, A: 255}
	blue  = color.RGBA{R: 20, G: 40, B: 220, A: 255}
	grass = color.RGBA{R: 40, G: 160, B: 40, A: 255}
)

func pitch(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: grass}, image.Point{}, draw.Src)
	return img
}

func paint(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
}

func candidate(x1, y1, x2, y2 float64) types.PlayerCandidate {
	return types.PlayerCandidate{
		CenterX: (x1 + x2) / 2, CenterY: (y1 + y2) / 2,
		Width: x2 - x1, Height: y2 - y1, Confidence: 0.9,
	}
}

func TestToHSV(t *testing.T) {
	Convey("Given primary colors", t, func() {
		r := ToHSV(colorful.Color{R: 1})
		b := ToHSV(colorful.Color{B: 1})

		Convey("Then they land in OpenCV scale", func() {
			So(r.H, ShouldEqual, 0.0)
			So(r.S, ShouldEqual, 255.0)
			So(r.V, ShouldEqual, 255.0)
			So(b.H, ShouldEqual, 120.0)
		})
	})
}

func TestClassify(t *testing.T) {
	Convey("Given a pitch with a red and a blue player", t, func() {
		img := pitch(200, 100)
		paint(img, image.Rect(10, 10, 30, 40), red)   // 600 px
		paint(img, image.Rect(100, 10, 120, 40), blue) // 600 px
		c := NewClassifier()

		Convey("Then the red box is the home team", func() {
			team := c.Classify(img, candidate(10, 10, 30, 40))
			So(team, ShouldNotBeNil)
			So(*team, ShouldEqual, types.TeamHome)
		})

		Convey("Then the blue box is the away team", func() {
			team := c.Classify(img, candidate(100, 10, 120, 40))
			So(team, ShouldNotBeNil)
			So(*team, ShouldEqual, types.TeamAway)
		})

		Convey("Then a grass-only box is unknown", func() {
			So(c.Classify(img, candidate(150, 50, 190, 90)), ShouldBeNil)
		})

		Convey("Then classification is pure", func() {
			p := candidate(10, 10, 30, 40)
			a, b := c.Classify(img, p), c.Classify(img, p)
			So(*a, ShouldEqual, *b)
		})
	})

	Convey("Given too few kit pixels", t, func() {
		img := pitch(50, 50)
		paint(img, image.Rect(0, 0, 10, 10), red) // 100 px, not above 100

		Convey("Then the candidate is unknown", func() {
			So(NewClassifier().Classify(img, candidate(0, 0, 20, 20)), ShouldBeNil)
		})

		Convey("Then a lower support threshold accepts it", func() {
			team := NewClassifier(WithMinSupport(50)).Classify(img, candidate(0, 0, 20, 20))
			So(team, ShouldNotBeNil)
			So(*team, ShouldEqual, types.TeamHome)
		})
	})

	Convey("Given a tie between bands", t, func() {
		img := pitch(60, 60)
		paint(img, image.Rect(0, 0, 20, 20), red)
		paint(img, image.Rect(20, 0, 40, 20), blue)

		Convey("Then the candidate is unknown", func() {
			So(NewClassifier().Classify(img, candidate(0, 0, 40, 20)), ShouldBeNil)
		})
	})

	Convey("Given degenerate boxes", t, func() {
		img := pitch(60, 60)
		paint(img, img.Bounds(), red)
		c := NewClassifier()

		Convey("Then zero width is unknown", func() {
			So(c.Classify(img, candidate(10, 10, 10, 50)), ShouldBeNil)
		})

		Convey("Then a box outside the frame is unknown", func() {
			So(c.Classify(img, candidate(100, 100, 140, 140)), ShouldBeNil)
		})

		Convey("Then a box partly outside is clamped and still counted", func() {
			team := c.Classify(img, candidate(-20, -20, 20, 20))
			So(team, ShouldNotBeNil)
		})

		Convey("Then a nil image is unknown", func() {
			So(c.Classify(nil, candidate(0, 0, 10, 10)), ShouldBeNil)
		})
	})

	Convey("Given custom bands", t, func() {
		img := pitch(40, 40)
		c := NewClassifier(WithBands(
			Band{Team: 7, Lower: HSV{50, 100, 100}, Upper: HSV{70, 255, 255}},
			Band{Team: 8, Lower: HSV{0, 0, 0}, Upper: HSV{180, 30, 30}},
		))

		Convey("Then grass counts for the green band", func() {
			team := c.Classify(img, candidate(0, 0, 40, 40))
			So(team, ShouldNotBeNil)
			So(*team, ShouldEqual, 7)
		})
	})
}

func TestClassifyAll(t *testing.T) {
	Convey("Given several candidates", t, func() {
		img := pitch(200, 100)
		paint(img, image.Rect(10, 10, 30, 40), red)
		paint(img, image.Rect(100, 10, 120, 40), blue)
		players := []types.PlayerCandidate{
			candidate(100, 10, 120, 40),
			candidate(150, 50, 190, 90),
			candidate(10, 10, 30, 40),
		}

		out, err := NewClassifier(WithParallelism(2)).ClassifyAll(context.Background(), img, players)

		Convey("Then labels follow input order and the input is not mutated", func() {
			So(err, ShouldBeNil)
			So(len(out), ShouldEqual, 3)
			So(*out[0].TeamID, ShouldEqual, types.TeamAway)
			So(out[1].TeamID, ShouldBeNil)
			So(*out[2].TeamID, ShouldEqual, types.TeamHome)
			So(players[0].TeamID, ShouldBeNil)
		})
	})

	Convey("Given a cancelled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewClassifier().ClassifyAll(ctx, pitch(10, 10), []types.PlayerCandidate{candidate(0, 0, 5, 5)})

		Convey("Then the context error is returned", func() {
			So(err, ShouldEqual, context.Canceled)
		})
	})
}
