package models

import (
	"fmt"
	"strings"
)

// Format selects how the fields of a measurement row are interpreted.
type Format int

const (
	// FormatLesion rows carry a plane coordinate and three distances.
	FormatLesion Format = iota

	// FormatElectrode rows carry a plane coordinate, two distances and a
	// channel label.
	FormatElectrode
)

// String returns the lower-case name used in files and requests
func (f Format) String() string {
	switch f {
	case FormatLesion:
		return "lesion"
	case FormatElectrode:
		return "electrode"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat converts a format name to a Format. An empty name means lesion.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lesion":
		return FormatLesion, nil
	case "electrode":
		return FormatElectrode, nil
	default:
		return FormatLesion, fmt.Errorf("unknown measurement format %q", name)
	}
}

// MeasurementRow is one measured tissue slice, taken at a single reference
// plane. The concrete types are LesionRow and ElectrodeRow.
type MeasurementRow interface {
	// PlaneCoordinate is the reference-plane (bregma) position in mm
	PlaneCoordinate() float64

	// Distances returns the row in the lesion convention (d1, d2, d3)
	Distances() (d1, d2, d3 float64)

	// RowLabel is the channel label or optional tag carried by the row
	RowLabel() string

	// WithPlane returns a copy of the row moved to another plane
	WithPlane(plane float64) MeasurementRow
}

// LesionRow holds the distances measured across a lesion on one slice.
//
// D3 selects the input convention: when D3 is non-negative the three
// distances span the whole slice width, when it is negative only D1 and D2
// do and D3 is an offset from the reference curve.
type LesionRow struct {
	Plane float64 `json:"plane"`
	D1    float64 `json:"d1"`
	D2    float64 `json:"d2"`
	D3    float64 `json:"d3"`
	Label string  `json:"label,omitempty"`
}

func (r LesionRow) PlaneCoordinate() float64 { return r.Plane }

func (r LesionRow) Distances() (float64, float64, float64) { return r.D1, r.D2, r.D3 }

func (r LesionRow) RowLabel() string { return r.Label }

func (r LesionRow) WithPlane(plane float64) MeasurementRow {
	r.Plane = plane
	return r
}

// ElectrodeRow holds an electrode position on one slice. It maps to the
// lesion convention as (D1, 0, D2), which collapses both boundary points
// onto the electrode.
type ElectrodeRow struct {
	Plane float64 `json:"plane"`
	D1    float64 `json:"d1"`
	D2    float64 `json:"d2"`
	Label string  `json:"label"`
}

func (r ElectrodeRow) PlaneCoordinate() float64 { return r.Plane }

func (r ElectrodeRow) Distances() (float64, float64, float64) { return r.D1, 0, r.D2 }

func (r ElectrodeRow) RowLabel() string { return r.Label }

func (r ElectrodeRow) WithPlane(plane float64) MeasurementRow {
	r.Plane = plane
	return r
}
