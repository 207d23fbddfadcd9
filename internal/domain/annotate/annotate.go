// Package annotate draws detection results onto frames for the annotated output video.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/okian/pitchvision/internal/domain/types"
)

const (
	boxThickness = 2
	ballRadius   = 6
	labelOffset  = 4
)

// Palette colors.
var (
	HomeColor    = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	AwayColor    = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	UnknownColor = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	BallColor    = color.RGBA{R: 255, G: 128, B: 0, A: 255}
)

// TeamColor returns the box color for a team label.
func TeamColor(team *int) color.RGBA {
	switch {
	case team == nil:
		return UnknownColor
	case *team == types.TeamHome:
		return HomeColor
	case *team == types.TeamAway:
		return AwayColor
	}
	return UnknownColor
}

// Render returns a copy of img with player boxes, confidence labels and the ball marker drawn.
// img is not modified.
func Render(img image.Image, res types.DetectionResult) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)

	for _, p := range res.Players {
		box := p.Box()
		col := TeamColor(p.TeamID)
		x1, y1 := int(math.Round(box.X1)), int(math.Round(box.Y1))
		x2, y2 := int(math.Round(box.X2)), int(math.Round(box.Y2))
		drawRect(out, x1, y1, x2, y2, col)
		drawLabel(out, x1, y1-labelOffset, fmt.Sprintf("%.2f", p.Confidence), col)
	}

	if res.Ball != nil {
		drawDisc(out, int(math.Round(res.Ball.X)), int(math.Round(res.Ball.Y)), ballRadius, BallColor)
	}
	return out
}

// drawRect outlines the inclusive box x1,y1..x2,y2. Each edge is clipped to
// the frame before drawing, so the cost is bounded by the frame size.
func drawRect(img *image.RGBA, x1, y1, x2, y2 int, col color.Color) {
	r := image.Rect(x1, y1, x2+1, y2+1)
	t := boxThickness
	edges := [4]image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	src := image.NewUniform(col)
	bounds := img.Bounds()
	for _, e := range edges {
		if e = e.Intersect(bounds); !e.Empty() {
			draw.Draw(img, e, src, image.Point{}, draw.Src)
		}
	}
}

func drawDisc(img *image.RGBA, cx, cy, r int, col color.Color) {
	area := image.Rect(cx-r, cy-r, cx+r+1, cy+r+1).Intersect(img.Bounds())
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				img.Set(x, y, col)
			}
		}
	}
}

// drawLabel writes text with its baseline at x,y. Labels anchored off the frame are skipped,
// which also keeps the anchor inside the range of fixed.Int26_6.
func drawLabel(img *image.RGBA, x, y int, text string, col color.Color) {
	face := basicfont.Face7x13
	if y < face.Ascent {
		y = face.Ascent
	}
	b := img.Bounds()
	if x >= b.Max.X || x+len(text)*face.Advance <= b.Min.X || y-face.Ascent >= b.Max.Y {
		return
	}
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
