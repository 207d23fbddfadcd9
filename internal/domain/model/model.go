// Package model contains domain models passed between layers.
package model

import (
	"image"
	"math"
)

// Default detector class ids (COCO).
const (
	PersonClassID = 0
	BallClassID   = 32
)

// Box is an axis-aligned pixel rectangle given by two corners.
type Box struct {
	X1, Y1 float64 // top-left
	X2, Y2 float64 // bottom-right
}

// Center returns the midpoint of the box.
func (b Box) Center() (float64, float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Size returns the box extents.
func (b Box) Size() (float64, float64) {
	return math.Abs(b.X2 - b.X1), math.Abs(b.Y2 - b.Y1)
}

// BoxFromCenter builds a box from a center point and extents.
func BoxFromCenter(cx, cy, w, h float64) Box {
	return Box{X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2}
}

// Rect converts the box to an integer rectangle clipped to bounds.
// Fractional edges are widened outward. An empty rectangle means no overlap.
func (b Box) Rect(bounds image.Rectangle) image.Rectangle {
	x1, x2 := math.Min(b.X1, b.X2), math.Max(b.X1, b.X2)
	y1, y2 := math.Min(b.Y1, b.Y2), math.Max(b.Y1, b.Y2)
	if math.IsNaN(x1+x2+y1+y2) || math.IsInf(x1+x2+y1+y2, 0) {
		return image.Rectangle{}
	}
	r := image.Rect(int(math.Floor(x1)), int(math.Floor(y1)), int(math.Ceil(x2)), int(math.Ceil(y2)))
	return r.Intersect(bounds)
}

// RawDetection is one detector output before normalization.
type RawDetection struct {
	Box        Box
	Confidence float64
	ClassID    int
}

// Frame is one decoded video frame.
type Frame struct {
	Index     int
	Timestamp float64 // seconds, Index / fps
	Image     image.Image
}

// Point is a 2-D coordinate in either pixel or field units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Correspondence pairs a landmark seen in the image with its known field location.
type Correspondence struct {
	Image Point `json:"image"`
	Field Point `json:"field"`
}

// VideoInfo is the metadata a frame source reports when opened.
type VideoInfo struct {
	FPS        float64
	Width      int
	Height     int
	FrameCount int // 0 when unknown
}

// Usable reports whether frames can be timestamped and sized from the metadata.
// The frame count is an estimate and plays no part.
func (v VideoInfo) Usable() bool {
	return v.FPS > 0 && !math.IsInf(v.FPS, 0) && v.Width > 0 && v.Height > 0
}

// Normalized returns v with a negative frame count reported as unknown.
func (v VideoInfo) Normalized() VideoInfo {
	if v.FrameCount < 0 {
		v.FrameCount = 0
	}
	return v
}
