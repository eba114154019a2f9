// Package geometry provides the planar polygon operations used to map
// measurements onto an atlas: shoelace areas, scan-line intersection and
// polygon intersection areas.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Point is a position in the plane.
type Point = r2.Vec

// Bounds returns the axis-aligned bounding box of the points.
func Bounds(points []Point) r2.Box {
	if len(points) == 0 {
		return r2.Box{}
	}
	box := r2.Box{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		box.Min.X = math.Min(box.Min.X, p.X)
		box.Min.Y = math.Min(box.Min.Y, p.Y)
		box.Max.X = math.Max(box.Max.X, p.X)
		box.Max.Y = math.Max(box.Max.Y, p.Y)
	}
	return box
}

// boxesOverlap reports whether two boxes share any point.
func boxesOverlap(a, b r2.Box) bool {
	return a.Min.X <= b.Max.X && b.Min.X <= a.Max.X &&
		a.Min.Y <= b.Max.Y && b.Min.Y <= a.Max.Y
}
