package geometry

import (
	"math"

	clipper "github.com/ctessum/go.clipper"
)

// DefaultClipScale is the fixed-point scale applied to vertices before
// clipping.
const DefaultClipScale = 100.0

// maxGridCoordinate keeps snapped vertices exact in float64 and inside the
// clipper's integer range.
const maxGridCoordinate = 1 << 52

// Clipper computes intersection areas on an integer grid. Vertices are
// multiplied by Scale and rounded before clipping, and areas are divided by
// Scale² afterwards.
type Clipper struct {
	Scale float64
}

// NewClipper returns a clipper using the given scale, or DefaultClipScale
// when scale is not positive.
func NewClipper(scale float64) Clipper {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		scale = DefaultClipScale
	}
	return Clipper{Scale: scale}
}

// IntersectionArea returns the area, in unscaled units, of the boolean
// intersection of two closed polygons. Both polygons are filled with the
// non-zero winding rule, so self-intersecting outlines count every lobe.
// A polygon with fewer than three vertices, or with a vertex that does not
// fit the grid, has no area.
func (c Clipper) IntersectionArea(a, b []Point) float64 {
	scale := c.Scale
	if scale <= 0 {
		scale = DefaultClipScale
	}

	subject, ok := snap(a, scale)
	if !ok {
		return 0
	}
	clip, ok := snap(b, scale)
	if !ok {
		return 0
	}
	if !boxesOverlap(Bounds(a), Bounds(b)) {
		return 0
	}

	cl := clipper.NewClipper(clipper.IoNone)
	cl.AddPath(subject, clipper.PtSubject, true)
	cl.AddPath(clip, clipper.PtClip, true)
	solution, ok := cl.Execute1(clipper.CtIntersection, clipper.PftNonZero, clipper.PftNonZero)
	if !ok {
		return 0
	}

	// Outer rings and holes come back with opposite orientations
	var total float64
	for _, path := range solution {
		total += SignedArea(fromGrid(path))
	}
	return math.Abs(total) / (scale * scale)
}

// snap scales the points onto the integer grid, dropping repeated
// consecutive vertices.
func snap(points []Point, scale float64) (clipper.Path, bool) {
	path := make(clipper.Path, 0, len(points))
	for _, p := range points {
		x, y := math.Round(p.X*scale), math.Round(p.Y*scale)
		if !(math.Abs(x) <= maxGridCoordinate && math.Abs(y) <= maxGridCoordinate) {
			return nil, false
		}
		ip := &clipper.IntPoint{X: clipper.CInt(x), Y: clipper.CInt(y)}
		if n := len(path); n > 0 && *path[n-1] == *ip {
			continue
		}
		path = append(path, ip)
	}
	if n := len(path); n > 1 && *path[0] == *path[n-1] {
		path = path[:n-1]
	}
	return path, len(path) >= 3
}

func fromGrid(path clipper.Path) []Point {
	points := make([]Point, len(path))
	for i, ip := range path {
		points[i] = Point{X: float64(ip.X), Y: float64(ip.Y)}
	}
	return points
}
