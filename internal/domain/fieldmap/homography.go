package fieldmap

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/okian/pitchvision/internal/domain/model"
)

const (
	minCorrespondences = 4
	rankTolerance      = 1e-9
	divisorEpsilon     = 1e-12
	defaultErrorScale  = 1.0 // meters of RMS reprojection error at which quality is 0.5
)

// FieldMap is a projective transform from image pixels to field units, with its fit quality.
// The zero value is an unmapped state with quality 0.
type FieldMap struct {
	H               [9]float64 // row-major 3x3
	Quality         float64    // in [0,1]; 0 means no usable mapping
	Correspondences int
	RMSE            float64
	ImageWidth      int
	ImageHeight     int
	FrameIndex      int
}

// Valid reports whether the map can project points.
func (m FieldMap) Valid() bool { return m.Quality > 0 }

// LowQuality reports whether the map should not replace an existing one.
func (m FieldMap) LowQuality(floor float64) bool { return m.Quality < floor }

// Apply projects an image point into field units. ok is false when the map is not valid
// or the point lies on the horizon line of the transform.
func (m FieldMap) Apply(x, y float64) (fx, fy float64, ok bool) {
	if !m.Valid() {
		return 0, 0, false
	}
	return project(m.H, x, y)
}

func project(h [9]float64, x, y float64) (float64, float64, bool) {
	w := h[6]*x + h[7]*y + h[8]
	if math.Abs(w) < divisorEpsilon {
		return 0, 0, false
	}
	return (h[0]*x + h[1]*y + h[2]) / w, (h[3]*x + h[4]*y + h[5]) / w, true
}

// Solve estimates the homography mapping each Image point to its Field point using the
// normalized direct linear transform, and scores it by reprojection error.
// Fewer than four correspondences or a degenerate configuration yields quality 0.
func Solve(pairs []model.Correspondence, errorScale float64) FieldMap {
	m := FieldMap{Correspondences: len(pairs)}
	if len(pairs) < minCorrespondences {
		return m
	}
	if errorScale <= 0 {
		errorScale = defaultErrorScale
	}

	src := make([]model.Point, len(pairs))
	dst := make([]model.Point, len(pairs))
	for i, p := range pairs {
		src[i], dst[i] = p.Image, p.Field
	}
	tSrc, okSrc := normalization(src)
	tDst, okDst := normalization(dst)
	if !okSrc || !okDst {
		return m
	}

	a := mat.NewDense(2*len(pairs), 9, nil)
	for i := range pairs {
		x, y := apply3(tSrc, src[i].X, src[i].Y)
		u, v := apply3(tDst, dst[i].X, dst[i].Y)
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return m
	}
	values := svd.Values(nil)
	if len(values) < 8 || values[0] == 0 || values[7]/values[0] < rankTolerance {
		return m
	}
	var v mat.Dense
	svd.VTo(&v)
	hn := mat.NewDense(3, 3, mat.Col(nil, 8, &v))

	var inv mat.Dense
	if err := inv.Inverse(tDst); err != nil {
		return m
	}
	var tmp, h mat.Dense
	tmp.Mul(&inv, hn)
	h.Mul(&tmp, tSrc)

	scale := h.At(2, 2)
	if math.Abs(scale) < divisorEpsilon {
		return m
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.H[r*3+c] = h.At(r, c) / scale
		}
	}
	if math.Abs(mat.Det(mat.NewDense(3, 3, m.H[:]))) < divisorEpsilon {
		m.H = [9]float64{}
		return m
	}

	var sq float64
	for i := range pairs {
		fx, fy, ok := project(m.H, src[i].X, src[i].Y)
		if !ok {
			m.H = [9]float64{}
			return m
		}
		sq += (fx-dst[i].X)*(fx-dst[i].X) + (fy-dst[i].Y)*(fy-dst[i].Y)
	}
	m.RMSE = math.Sqrt(sq / float64(len(pairs)))
	m.Quality = 1 / (1 + m.RMSE/errorScale)
	return m
}

// normalization returns the similarity that moves the centroid to the origin and
// sets the mean distance from it to sqrt(2).
func normalization(pts []model.Point) (*mat.Dense, bool) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	n := float64(len(pts))
	cx, cy = cx/n, cy/n

	var mean float64
	for _, p := range pts {
		mean += math.Hypot(p.X-cx, p.Y-cy)
	}
	mean /= n
	if mean < divisorEpsilon || math.IsNaN(mean) || math.IsInf(mean, 0) {
		return nil, false
	}
	s := math.Sqrt2 / mean
	return mat.NewDense(3, 3, []float64{
		s, 0, -s * cx,
		0, s, -s * cy,
		0, 0, 1,
	}), true
}

func apply3(t *mat.Dense, x, y float64) (float64, float64) {
	return t.At(0, 0)*x + t.At(0, 1)*y + t.At(0, 2), t.At(1, 0)*x + t.At(1, 1)*y + t.At(1, 2)
}
