package models

// TotalLabel names the aggregate entry of a result set
const TotalLabel = "Total"

// InterpolationSettings enables spline smoothing of the lesion contour.
type InterpolationSettings struct {
	// Alpha is the knot parameterisation exponent in [0,1]
	Alpha float64 `json:"alpha" yaml:"alpha"`

	// Resolution is the number of points emitted per contour segment
	Resolution int `json:"resolution" yaml:"resolution"`
}

// BoundaryPoint is one side of a mapped measurement row
type BoundaryPoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label,omitempty"`
}

// Point drops the label.
func (b BoundaryPoint) Point() Point {
	return Point{X: b.X, Y: b.Y}
}

// LesionContour is the closed polygon of a mapped measurement set.
type LesionContour struct {
	Points        []Point                `json:"points"`
	Interpolation *InterpolationSettings `json:"interpolation,omitempty"`
}

// RegionResult reports how much of one region the contour covers
type RegionResult struct {
	Name string `json:"name"`

	// Percent of the region area, rounded to one decimal (no decimals
	// for the Total entry)
	Percent float64 `json:"percent"`

	// AreaMM2 is the covered area in square millimetres, two decimals
	AreaMM2 float64 `json:"areaMM2"`

	// RawArea is the unrounded covered area in atlas units
	RawArea float64 `json:"rawArea"`
}

// DroppedRow records a measurement row left out of the contour
type DroppedRow struct {
	Index  int     `json:"index"`
	Plane  float64 `json:"plane"`
	Y      float64 `json:"y"`
	Reason string  `json:"reason"`
}

// Border is the calibrated slice width drawn at a mapped row
type Border struct {
	From Point `json:"from"`
	To   Point `json:"to"`
}

// ShrinkageSummary describes the per-row shrinkage factors of a request
type ShrinkageSummary struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
}

// MappingResult is the response of one mapping request. It belongs to the
// request that produced it.
type MappingResult struct {
	Atlas  string `json:"atlas"`
	Time   int    `json:"time"`
	Format string `json:"format"`

	Contour LesionContour `json:"contour"`

	// MeasurementTable echoes each mapped row as plane, d1, d2, d3 and
	// the measured width sum
	MeasurementTable [][]float64 `json:"measurementTable"`

	// Regions lists one entry per atlas region in document order followed
	// by the Total entry. Empty for electrode measurements.
	Regions []RegionResult `json:"regions"`

	Electrodes []BoundaryPoint  `json:"electrodes,omitempty"`
	Borders    []Border         `json:"borders"`
	Dropped    []DroppedRow     `json:"dropped"`
	Shrinkage  ShrinkageSummary `json:"shrinkage"`
}

// DroppedCount returns the number of rows missing from the contour.
func (r *MappingResult) DroppedCount() int {
	return len(r.Dropped)
}

// Region looks up a result entry by name, including TotalLabel.
func (r *MappingResult) Region(name string) (RegionResult, bool) {
	for _, rr := range r.Regions {
		if rr.Name == name {
			return rr, true
		}
	}
	return RegionResult{}, false
}
