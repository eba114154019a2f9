package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// SignedArea returns the shoelace area of the closed polygon. The sign
// follows the vertex order: positive when the vertices turn from +x towards
// +y.
func SignedArea(polygon []Point) float64 {
	n := len(polygon)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += r2.Cross(polygon[i], polygon[(i+1)%n])
	}
	return sum / 2
}

// Area returns the absolute shoelace area of the closed polygon.
func Area(polygon []Point) float64 {
	return math.Abs(SignedArea(polygon))
}
