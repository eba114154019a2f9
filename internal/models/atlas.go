package models

import "gonum.org/v1/gonum/spatial/r2"

// Point is a position in atlas coordinate space.
type Point = r2.Vec

// AtlasRegion is a named anatomical area of the atlas
type AtlasRegion struct {
	// Name is the region identifier with the atlas prefix removed
	Name string `json:"name"`

	// Polygon is the flattened closed outline; the closing edge is implicit
	Polygon []Point `json:"polygon"`

	// Area is the absolute shoelace area of Polygon in atlas units
	Area float64 `json:"area"`
}

// Calibration holds the linear markers embedded in the atlas graphic.
type Calibration struct {
	// UnitsPerMMX is the length of one millimetre along x in atlas units
	UnitsPerMMX float64 `json:"unitsPerMMX"`

	// UnitsPerMMY is the length of one millimetre along y in atlas units
	UnitsPerMMY float64 `json:"unitsPerMMY"`

	// YZero is the atlas y coordinate of plane coordinate zero
	YZero float64 `json:"yZero"`
}

// AtlasModel is the preprocessed form of one atlas. It is built once per
// atlas selection and must not be modified afterwards; any number of
// mapping requests may read it concurrently.
type AtlasModel struct {
	Name string `json:"name"`

	// Width and Height are the dimensions declared by the graphic, zero
	// when it declares none.
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	Regions map[string]*AtlasRegion `json:"-"`

	// RegionOrder lists region names in document order
	RegionOrder []string `json:"regionOrder"`

	ReferenceCurve []Point `json:"referenceCurve"`

	// TotalArea is the sum of all region areas. Overlapping regions are
	// counted more than once.
	TotalArea float64 `json:"totalArea"`

	Calibration Calibration `json:"calibration"`
}

// Region returns the region with the given name.
func (m *AtlasModel) Region(name string) (*AtlasRegion, bool) {
	r, ok := m.Regions[name]
	return r, ok
}

// OrderedRegions returns the regions in document order.
func (m *AtlasModel) OrderedRegions() []*AtlasRegion {
	regions := make([]*AtlasRegion, 0, len(m.RegionOrder))
	for _, name := range m.RegionOrder {
		if r, ok := m.Regions[name]; ok {
			regions = append(regions, r)
		}
	}
	return regions
}

// CalibrationEntry is the expected tissue width at one reference plane
type CalibrationEntry struct {
	Plane         float64 `json:"plane"`
	ExpectedWidth float64 `json:"expectedWidth"`
}
