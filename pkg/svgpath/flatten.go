// Package svgpath parses SVG path data and flattens it into polylines.
//
// Each subpath is replayed onto a gg.Path, which approximates curves by
// line segments within a tolerance. Arcs are converted to cubic Beziers
// first. Output coordinates are rounded to a fixed number of decimals.
package svgpath

import (
	"fmt"
	"math"

	"github.com/gogpu/gg"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r2"
)

// maxCoordinate bounds path coordinates so curve subdivision stays finite.
const maxCoordinate = 1e12

// Options controls flattening.
type Options struct {
	// Tolerance is the largest allowed distance between a curve and the
	// segments replacing it. Non-positive values use 0.1.
	Tolerance float64

	// Decimals is the number of decimals kept in output coordinates.
	// Negative values keep full precision.
	Decimals int
}

// DefaultOptions returns the flattening settings used for atlas graphics.
func DefaultOptions() Options {
	return Options{Tolerance: 1, Decimals: 3}
}

// Subpath is one flattened subpath. Closed subpaths do not repeat their
// first point at the end.
type Subpath struct {
	Points []r2.Vec
	Closed bool
}

// Flatten parses the path data and returns its flattened subpaths.
func Flatten(data string, opts Options) ([]Subpath, error) {
	if opts.Tolerance <= 0 {
		opts.Tolerance = 0.1
	}
	f := &flattener{opts: opts}
	if err := f.run(data); err != nil {
		return nil, err
	}
	return f.subpaths, nil
}

// FlattenFirst returns the points of the first non-empty subpath.
func FlattenFirst(data string, opts Options) ([]r2.Vec, error) {
	subpaths, err := Flatten(data, opts)
	if err != nil {
		return nil, err
	}
	for _, sp := range subpaths {
		if len(sp.Points) > 0 {
			return sp.Points, nil
		}
	}
	return nil, fmt.Errorf("path data contains no points")
}

type flattener struct {
	opts     Options
	subpaths []Subpath

	// path holds the open subpath, nil after a close
	path       *gg.Path
	cur, start r2.Vec

	// lastCtrl is the reflected control point source for S and T
	lastCtrl r2.Vec
	lastCmd  byte
}

func (f *flattener) run(data string) error {
	s := &scanner{data: data}
	var prev byte

	for !s.done() {
		cmd, explicit := s.command()
		if !explicit {
			switch prev {
			case 0:
				return fmt.Errorf("path data must start with a command, found %q", s.data[s.pos])
			case 'Z', 'z':
				return fmt.Errorf("unexpected number after close command at offset %d", s.pos)
			case 'M':
				cmd = 'L'
			case 'm':
				cmd = 'l'
			default:
				cmd = prev
			}
		}
		if err := f.apply(cmd, s); err != nil {
			return fmt.Errorf("command %q: %w", cmd, err)
		}
		if !inRange(f.cur) || !inRange(f.lastCtrl) {
			return fmt.Errorf("command %q: coordinate out of range at offset %d", cmd, s.pos)
		}
		prev = cmd
		f.lastCmd = cmd
	}
	f.finish(false)
	return nil
}

func (f *flattener) apply(cmd byte, s *scanner) error {
	relative := cmd >= 'a' && cmd <= 'z'
	offset := func(p r2.Vec) r2.Vec {
		if relative {
			return r2.Add(f.cur, p)
		}
		return p
	}

	switch cmd {
	case 'M', 'm':
		v, err := s.numbers(2)
		if err != nil {
			return err
		}
		f.moveTo(offset(r2.Vec{X: v[0], Y: v[1]}))
	case 'L', 'l':
		v, err := s.numbers(2)
		if err != nil {
			return err
		}
		f.lineTo(offset(r2.Vec{X: v[0], Y: v[1]}))
	case 'H', 'h':
		v, err := s.number()
		if err != nil {
			return err
		}
		x := v
		if relative {
			x += f.cur.X
		}
		f.lineTo(r2.Vec{X: x, Y: f.cur.Y})
	case 'V', 'v':
		v, err := s.number()
		if err != nil {
			return err
		}
		y := v
		if relative {
			y += f.cur.Y
		}
		f.lineTo(r2.Vec{X: f.cur.X, Y: y})
	case 'C', 'c':
		v, err := s.numbers(6)
		if err != nil {
			return err
		}
		c1 := offset(r2.Vec{X: v[0], Y: v[1]})
		c2 := offset(r2.Vec{X: v[2], Y: v[3]})
		end := offset(r2.Vec{X: v[4], Y: v[5]})
		f.cubicTo(c1, c2, end)
	case 'S', 's':
		v, err := s.numbers(4)
		if err != nil {
			return err
		}
		c1 := f.cur
		switch f.lastCmd {
		case 'C', 'c', 'S', 's':
			c1 = r2.Sub(r2.Scale(2, f.cur), f.lastCtrl)
		}
		c2 := offset(r2.Vec{X: v[0], Y: v[1]})
		end := offset(r2.Vec{X: v[2], Y: v[3]})
		f.cubicTo(c1, c2, end)
	case 'Q', 'q':
		v, err := s.numbers(4)
		if err != nil {
			return err
		}
		c := offset(r2.Vec{X: v[0], Y: v[1]})
		end := offset(r2.Vec{X: v[2], Y: v[3]})
		f.quadTo(c, end)
	case 'T', 't':
		v, err := s.numbers(2)
		if err != nil {
			return err
		}
		c := f.cur
		switch f.lastCmd {
		case 'Q', 'q', 'T', 't':
			c = r2.Sub(r2.Scale(2, f.cur), f.lastCtrl)
		}
		f.quadTo(c, offset(r2.Vec{X: v[0], Y: v[1]}))
	case 'A', 'a':
		radii, err := s.numbers(3)
		if err != nil {
			return err
		}
		large, err := s.flag()
		if err != nil {
			return err
		}
		sweep, err := s.flag()
		if err != nil {
			return err
		}
		v, err := s.numbers(2)
		if err != nil {
			return err
		}
		f.arcTo(radii[0], radii[1], radii[2], large, sweep, offset(r2.Vec{X: v[0], Y: v[1]}))
	case 'Z', 'z':
		f.closePath()
	default:
		return fmt.Errorf("unsupported command")
	}
	return nil
}

func inRange(p r2.Vec) bool {
	return math.Abs(p.X) <= maxCoordinate && math.Abs(p.Y) <= maxCoordinate
}

func (f *flattener) round(p r2.Vec) r2.Vec {
	if f.opts.Decimals < 0 {
		return p
	}
	return r2.Vec{X: scalar.Round(p.X, f.opts.Decimals), Y: scalar.Round(p.Y, f.opts.Decimals)}
}

// ensureStarted opens a subpath at the current point after a close.
func (f *flattener) ensureStarted() {
	if f.path == nil {
		f.path = gg.NewPath()
		f.path.MoveTo(f.cur.X, f.cur.Y)
		f.start = f.cur
	}
}

// finish flattens the open subpath. Consecutive points that round to the
// same value are merged.
func (f *flattener) finish(closed bool) {
	if f.path == nil {
		return
	}
	flat := f.path.Flatten(f.opts.Tolerance)
	f.path = nil

	pts := make([]r2.Vec, 0, len(flat))
	for _, q := range flat {
		p := f.round(r2.Vec{X: q.X, Y: q.Y})
		if n := len(pts); n > 0 && pts[n-1] == p {
			continue
		}
		pts = append(pts, p)
	}
	if len(pts) == 0 {
		return
	}
	if closed && len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	f.subpaths = append(f.subpaths, Subpath{Points: pts, Closed: closed})
}

func (f *flattener) moveTo(p r2.Vec) {
	f.finish(false)
	f.path = gg.NewPath()
	f.path.MoveTo(p.X, p.Y)
	f.cur, f.start, f.lastCtrl = p, p, p
}

func (f *flattener) lineTo(p r2.Vec) {
	f.ensureStarted()
	f.path.LineTo(p.X, p.Y)
	f.cur, f.lastCtrl = p, p
}

func (f *flattener) closePath() {
	f.ensureStarted()
	f.path.Close()
	f.finish(true)
	f.cur, f.lastCtrl = f.start, f.start
}

func (f *flattener) quadTo(c, end r2.Vec) {
	f.ensureStarted()
	f.path.QuadraticTo(c.X, c.Y, end.X, end.Y)
	f.cur, f.lastCtrl = end, c
}

func (f *flattener) cubicTo(c1, c2, end r2.Vec) {
	f.ensureStarted()
	f.path.CubicTo(c1.X, c1.Y, c2.X, c2.Y, end.X, end.Y)
	f.cur, f.lastCtrl = end, c2
}

// arcTo adds an elliptical arc given in SVG endpoint form as a chain of
// cubics, each spanning at most a quarter turn.
func (f *flattener) arcTo(rx, ry, rotation float64, large, sweep bool, end r2.Vec) {
	f.ensureStarted()
	start := f.cur
	defer func() { f.cur, f.lastCtrl = end, end }()

	if start == end {
		return
	}
	rx, ry = math.Abs(rx), math.Abs(ry)
	if rx == 0 || ry == 0 {
		f.path.LineTo(end.X, end.Y)
		return
	}

	phi := rotation * math.Pi / 180
	cosPhi, sinPhi := math.Cos(phi), math.Sin(phi)
	dx2 := (start.X - end.X) / 2
	dy2 := (start.Y - end.Y) / 2
	x1p := cosPhi*dx2 + sinPhi*dy2
	y1p := -sinPhi*dx2 + cosPhi*dy2

	// Scale radii up when the end point is out of reach
	if lambda := x1p*x1p/(rx*rx) + y1p*y1p/(ry*ry); lambda > 1 {
		s := math.Sqrt(lambda)
		rx *= s
		ry *= s
	}

	num := rx*rx*ry*ry - rx*rx*y1p*y1p - ry*ry*x1p*x1p
	den := rx*rx*y1p*y1p + ry*ry*x1p*x1p
	coef := 0.0
	if den > 0 {
		coef = math.Sqrt(math.Max(0, num/den))
	}
	if large == sweep {
		coef = -coef
	}
	cxp := coef * rx * y1p / ry
	cyp := -coef * ry * x1p / rx
	cx := cosPhi*cxp - sinPhi*cyp + (start.X+end.X)/2
	cy := sinPhi*cxp + cosPhi*cyp + (start.Y+end.Y)/2

	u := r2.Vec{X: (x1p - cxp) / rx, Y: (y1p - cyp) / ry}
	v := r2.Vec{X: (-x1p - cxp) / rx, Y: (-y1p - cyp) / ry}
	theta := vectorAngle(r2.Vec{X: 1}, u)
	delta := vectorAngle(u, v)
	if !sweep && delta > 0 {
		delta -= 2 * math.Pi
	} else if sweep && delta < 0 {
		delta += 2 * math.Pi
	}

	// point and tangent of the ellipse at angle a
	at := func(a float64) (r2.Vec, r2.Vec) {
		ex, ey := rx*math.Cos(a), ry*math.Sin(a)
		tx, ty := -rx*math.Sin(a), ry*math.Cos(a)
		p := r2.Vec{X: cx + cosPhi*ex - sinPhi*ey, Y: cy + sinPhi*ex + cosPhi*ey}
		d := r2.Vec{X: cosPhi*tx - sinPhi*ty, Y: sinPhi*tx + cosPhi*ty}
		return p, d
	}

	n := int(math.Ceil(math.Abs(delta) / (math.Pi / 2)))
	if n < 1 {
		n = 1
	}
	step := delta / float64(n)
	k := 4.0 / 3.0 * math.Tan(step/4)

	a0 := theta
	p0, d0 := at(a0)
	for i := 1; i <= n; i++ {
		a1 := theta + step*float64(i)
		p1, d1 := at(a1)
		if i == n {
			p1 = end
		}
		c1 := r2.Add(p0, r2.Scale(k, d0))
		c2 := r2.Sub(p1, r2.Scale(k, d1))
		f.path.CubicTo(c1.X, c1.Y, c2.X, c2.Y, p1.X, p1.Y)
		p0, d0 = p1, d1
	}
}

func vectorAngle(u, v r2.Vec) float64 {
	return math.Atan2(r2.Cross(u, v), r2.Dot(u, v))
}
