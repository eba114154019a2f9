// Package accounting measures how much of every atlas region a lesion
// contour covers.
package accounting

import (
	"gonum.org/v1/gonum/floats/scalar"

	"cortexmap/internal/models"
	"cortexmap/pkg/geometry"
)

const (
	percentDecimals      = 1
	totalPercentDecimals = 0
	areaDecimals         = 2
)

// Accountant computes region results. It only reads the atlas and is safe
// for concurrent use.
type Accountant struct {
	clipper geometry.Clipper
}

// New creates an Accountant that clips on a grid of the given scale. A
// non-positive scale selects geometry.DefaultClipScale.
func New(clipScale float64) *Accountant {
	return &Accountant{clipper: geometry.NewClipper(clipScale)}
}

// Compute returns one result per atlas region in document order, followed
// by the Total entry. Percentages are relative to the region area and, for
// Total, to the atlas total area; areas are converted to square
// millimetres with the horizontal calibration marker.
func (a *Accountant) Compute(contour []models.Point, atlas *models.AtlasModel) []models.RegionResult {
	regions := atlas.OrderedRegions()
	results := make([]models.RegionResult, 0, len(regions)+1)

	mmSquared := atlas.Calibration.UnitsPerMMX * atlas.Calibration.UnitsPerMMX

	var total float64
	for _, region := range regions {
		raw := a.clipper.IntersectionArea(contour, region.Polygon)
		total += raw

		results = append(results, models.RegionResult{
			Name:    region.Name,
			Percent: percentOf(raw, region.Area, percentDecimals),
			AreaMM2: toMM2(raw, mmSquared),
			RawArea: raw,
		})
	}

	results = append(results, models.RegionResult{
		Name:    models.TotalLabel,
		Percent: percentOf(total, atlas.TotalArea, totalPercentDecimals),
		AreaMM2: toMM2(total, mmSquared),
		RawArea: total,
	})
	return results
}

func percentOf(part, whole float64, decimals int) float64 {
	if whole <= 0 {
		return 0
	}
	return scalar.Round(part/whole*100, decimals)
}

func toMM2(area, mmSquared float64) float64 {
	if mmSquared <= 0 {
		return 0
	}
	return scalar.Round(area/mmSquared, areaDecimals)
}
