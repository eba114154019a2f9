package geometry

import "gonum.org/v1/gonum/floats"

// HorizontalIntersections returns the x coordinates where the horizontal
// line at y meets the open polyline. A polyline segment lying on the line
// contributes both of its end points. The result is in polyline order.
func HorizontalIntersections(polyline []Point, y float64) []float64 {
	var xs []float64
	if len(polyline) == 1 {
		if polyline[0].Y == y {
			xs = append(xs, polyline[0].X)
		}
		return xs
	}
	for i := 0; i+1 < len(polyline); i++ {
		p, q := polyline[i], polyline[i+1]
		if (p.Y-y)*(q.Y-y) > 0 {
			continue
		}
		if p.Y == q.Y {
			// Segment lies on the scan-line
			xs = append(xs, p.X, q.X)
			continue
		}
		xs = append(xs, p.X+(y-p.Y)*(q.X-p.X)/(q.Y-p.Y))
	}
	return xs
}

// RightmostIntersection returns the largest x where the horizontal line at
// y meets the polyline, and false when it does not meet it at all.
func RightmostIntersection(polyline []Point, y float64) (float64, bool) {
	xs := HorizontalIntersections(polyline, y)
	if len(xs) == 0 {
		return 0, false
	}
	return floats.Max(xs), true
}
