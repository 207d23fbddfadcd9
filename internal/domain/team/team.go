// Package team assigns player candidates to a team by counting kit-colored pixels.
//
// Colors are compared in HSV using the 8-bit OpenCV convention: hue in [0,180],
// saturation and value in [0,255]. Band bounds are inclusive.
package team

import (
	"context"
	"image"
	"runtime"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/sync/errgroup"

	"github.com/okian/pitchvision/internal/domain/types"
)

const defaultMinSupport = 100

// HSV is a color in OpenCV 8-bit scale.
type HSV struct {
	H float64
	S float64
	V float64
}

// Band is an inclusive HSV range mapped to a team label.
type Band struct {
	Team  int
	Lower HSV
	Upper HSV
}

func (b Band) valid() bool {
	return b.Team > 0 && b.Lower.H <= b.Upper.H && b.Lower.S <= b.Upper.S && b.Lower.V <= b.Upper.V
}

func (b Band) contains(c HSV) bool {
	return c.H >= b.Lower.H && c.H <= b.Upper.H &&
		c.S >= b.Lower.S && c.S <= b.Upper.S &&
		c.V >= b.Lower.V && c.V <= b.Upper.V
}

// DefaultHome is the red kit band.
func DefaultHome() Band {
	return Band{Team: types.TeamHome, Lower: HSV{0, 50, 50}, Upper: HSV{10, 255, 255}}
}

// DefaultAway is the blue kit band.
func DefaultAway() Band {
	return Band{Team: types.TeamAway, Lower: HSV{100, 50, 50}, Upper: HSV{130, 255, 255}}
}

// Classifier labels candidates from two color bands.
type Classifier struct {
	home        Band
	away        Band
	minSupport  int
	parallelism int
}

// NewClassifier creates a classifier with the default red/blue bands.
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		home:        DefaultHome(),
		away:        DefaultAway(),
		minSupport:  defaultMinSupport,
		parallelism: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ToHSV converts an RGB color to OpenCV-scale HSV.
func ToHSV(c colorful.Color) HSV {
	h, s, v := c.Hsv()
	return HSV{H: h / 2, S: s * 255, V: v * 255}
}

// Count returns how many pixels inside the candidate box fall in each band.
func (c *Classifier) Count(img image.Image, p types.PlayerCandidate) (home, away int) {
	if img == nil {
		return 0, 0
	}
	r := p.Box().Rect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			hsv := ToHSV(colorful.Color{R: float64(cr) / 0xffff, G: float64(cg) / 0xffff, B: float64(cb) / 0xffff})
			if c.home.contains(hsv) {
				home++
			}
			if c.away.contains(hsv) {
				away++
			}
		}
	}
	return home, away
}

// Classify returns the team for the candidate, or nil when neither band wins.
// A band wins when its count exceeds the minimum support and strictly exceeds the other band.
func (c *Classifier) Classify(img image.Image, p types.PlayerCandidate) *int {
	home, away := c.Count(img, p)
	var team int
	switch {
	case home > c.minSupport && home > away:
		team = c.home.Team
	case away > c.minSupport && away > home:
		team = c.away.Team
	default:
		return nil
	}
	return &team
}

// ClassifyAll returns a copy of players with TeamID set. Input order is preserved.
func (c *Classifier) ClassifyAll(ctx context.Context, img image.Image, players []types.PlayerCandidate) ([]types.PlayerCandidate, error) {
	out := make([]types.PlayerCandidate, len(players))
	copy(out, players)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for i := range out {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i].TeamID = c.Classify(img, out[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
