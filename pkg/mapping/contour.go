package mapping

import (
	"cortexmap/internal/models"
	"cortexmap/pkg/interpolation"
)

// minContourVertices is the smallest closed polygon
const minContourVertices = 3

// BuildContour joins the left boundary (descending y) and the right
// boundary (ascending y) into one closed polygon. With interpolation
// settings the joined points become the control loop of a closed
// Catmull-Rom spline.
func BuildContour(left, right []models.BoundaryPoint, settings *models.InterpolationSettings) ([]models.Point, error) {
	points := concat(left, right)
	if len(points) < minContourVertices {
		return nil, models.NewMappingError("contour needs at least %d vertices, got %d", minContourVertices, len(points))
	}
	if settings == nil {
		return points, nil
	}

	smoothed, err := interpolation.CatmullRom(points, toParams(*settings))
	if err != nil {
		return nil, models.WrapError(models.MappingError, err, "interpolating contour")
	}
	return smoothed, nil
}

func concat(left, right []models.BoundaryPoint) []models.Point {
	points := make([]models.Point, 0, len(left)+len(right))
	for _, p := range left {
		points = append(points, p.Point())
	}
	for _, p := range right {
		points = append(points, p.Point())
	}
	return points
}

func toParams(s models.InterpolationSettings) interpolation.Params {
	return interpolation.Params{Alpha: s.Alpha, Resolution: s.Resolution}
}
