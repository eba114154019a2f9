// Package interpolation smooths a closed control polygon with a
// centripetal Catmull-Rom spline.
package interpolation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// minKnotInterval replaces knot intervals of coincident control points so
// that the blending weights stay finite.
const minKnotInterval = 1e-4

// Params holds the spline parameters
type Params struct {
	Alpha      float64 // Knot parameterization: 0 uniform, 0.5 centripetal, 1 chordal
	Resolution int     // Points emitted per control-polygon segment
}

// DefaultParams returns the centripetal spline with 10 points per segment
func DefaultParams() Params {
	return Params{Alpha: 0.5, Resolution: 10}
}

// Validate checks that alpha lies in [0,1] and the resolution is positive
func (p Params) Validate() error {
	if math.IsNaN(p.Alpha) || p.Alpha < 0 || p.Alpha > 1 {
		return fmt.Errorf("spline alpha must be in [0,1], got %v", p.Alpha)
	}
	if p.Resolution < 1 {
		return fmt.Errorf("spline resolution must be at least 1, got %d", p.Resolution)
	}
	return nil
}

// CatmullRom treats points as a closed loop and returns a smoothed loop
// that passes through every control point. Each segment between
// consecutive control points, including the closing one, contributes
// Resolution points starting at its first control point, so the output
// has len(points)*Resolution vertices. With fewer than three control points
// a copy of the input is returned.
func CatmullRom(points []r2.Vec, params Params) ([]r2.Vec, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	n := len(points)
	if n < 3 {
		out := make([]r2.Vec, n)
		copy(out, points)
		return out, nil
	}

	out := make([]r2.Vec, 0, n*params.Resolution)
	for i := 0; i < n; i++ {
		p0 := points[(i-1+n)%n]
		p1 := points[i]
		p2 := points[(i+1)%n]
		p3 := points[(i+2)%n]

		seg := newSegment(p0, p1, p2, p3, params.Alpha)
		for j := 0; j < params.Resolution; j++ {
			if j == 0 {
				out = append(out, p1)
				continue
			}
			out = append(out, seg.at(float64(j)/float64(params.Resolution)))
		}
	}
	return out, nil
}

// segment is one Catmull-Rom span from p1 to p2 with its knot sequence
type segment struct {
	p0, p1, p2, p3 r2.Vec
	t0, t1, t2, t3 float64
}

func newSegment(p0, p1, p2, p3 r2.Vec, alpha float64) segment {
	s := segment{p0: p0, p1: p1, p2: p2, p3: p3}
	s.t1 = s.t0 + knotInterval(p0, p1, alpha)
	s.t2 = s.t1 + knotInterval(p1, p2, alpha)
	s.t3 = s.t2 + knotInterval(p2, p3, alpha)
	return s
}

func knotInterval(a, b r2.Vec, alpha float64) float64 {
	d := math.Pow(r2.Norm(r2.Sub(b, a)), alpha)
	if d < minKnotInterval {
		return 1
	}
	return d
}

// at evaluates the span at u in [0,1) using the Barry-Goldman pyramid.
func (s segment) at(u float64) r2.Vec {
	t := s.t1 + u*(s.t2-s.t1)

	a1 := blend(s.p0, s.p1, s.t0, s.t1, t)
	a2 := blend(s.p1, s.p2, s.t1, s.t2, t)
	a3 := blend(s.p2, s.p3, s.t2, s.t3, t)

	b1 := blend(a1, a2, s.t0, s.t2, t)
	b2 := blend(a2, a3, s.t1, s.t3, t)

	return blend(b1, b2, s.t1, s.t2, t)
}

// blend interpolates between a at ta and b at tb
func blend(a, b r2.Vec, ta, tb, t float64) r2.Vec {
	w := (t - ta) / (tb - ta)
	return r2.Add(r2.Scale(1-w, a), r2.Scale(w, b))
}
