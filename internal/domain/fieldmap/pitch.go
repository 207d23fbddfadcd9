package fieldmap

import (
	"math"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/okian/pitchvision/internal/domain/types"
)

// Default pitch dimensions in meters.
const (
	DefaultPitchLength = 105.0
	DefaultPitchWidth  = 68.0
)

// Pitch is the canonical top-down field: origin at one corner flag, X along the touchline.
type Pitch struct {
	Length float64
	Width  float64
	area   geom.Polygon
}

// NewPitch builds a pitch of the given size. Non-positive or non-finite sizes,
// or a size the geometry library rejects, fall back to the defaults.
func NewPitch(length, width float64) Pitch {
	if !(length > 0) || math.IsInf(length, 0) {
		length = DefaultPitchLength
	}
	if !(width > 0) || math.IsInf(width, 0) {
		width = DefaultPitchWidth
	}
	area, err := pitchArea(length, width)
	if err != nil {
		length, width = DefaultPitchLength, DefaultPitchWidth
		area, _ = pitchArea(length, width)
	}
	return Pitch{Length: length, Width: width, area: area}
}

func pitchArea(length, width float64) (geom.Polygon, error) {
	ring, err := geom.NewLineString(geom.NewSequence([]float64{
		0, 0,
		length, 0,
		length, width,
		0, width,
		0, 0,
	}, geom.DimXY))
	if err != nil {
		return geom.Polygon{}, err
	}
	return geom.NewPolygon([]geom.LineString{ring})
}

// Contains reports whether a field point lies on the pitch, lines included.
// Points the geometry library rejects, such as NaN coordinates, are off the pitch.
func (p Pitch) Contains(x, y float64) bool {
	pt, err := geom.NewPoint(geom.Coordinates{XY: geom.XY{X: x, Y: y}, Type: geom.DimXY})
	if err != nil {
		return false
	}
	return geom.Intersects(p.area.AsGeometry(), pt.AsGeometry())
}

// Project maps an image point through m and flags whether it lands on the pitch.
// It returns nil when m cannot project the point.
func (p Pitch) Project(m FieldMap, x, y float64) *types.FieldPoint {
	fx, fy, ok := m.Apply(x, y)
	if !ok {
		return nil
	}
	return &types.FieldPoint{X: fx, Y: fy, OnPitch: p.Contains(fx, fy)}
}

// Corners returns the four corner flags in field units, clockwise from the origin.
func (p Pitch) Corners() [4]types.FieldPoint {
	return [4]types.FieldPoint{
		{X: 0, Y: 0, OnPitch: true},
		{X: p.Length, Y: 0, OnPitch: true},
		{X: p.Length, Y: p.Width, OnPitch: true},
		{X: 0, Y: p.Width, OnPitch: true},
	}
}
