package atlas

import (
	"context"
	"math"
	"strings"
	"testing"

	"cortexmap/internal/models"
)

const testSVG = `<?xml version="1.0" encoding="utf-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="200px" height="100">
  <rect id="MMperX" x="0" y="0" width="10" height="1"/>
  <rect id="MMperY_1_" x="0" y="0" width="1" height="10"/>
  <rect id="YZero" x="0" y="50" width="1" height="1"/>
  <path id="RhinalFissure" d="M10,0 L10,100"/>
  <g id="regions">
    <path id="A_Motor" d="M0,0 H100 V100 H0 Z"/>
    <path id="A_Visual" d="M100,0 L200,0 L200,100 L100,100 L100,0"/>
  </g>
</svg>`

func TestParse(t *testing.T) {
	model, err := Parse(context.Background(), "test", strings.NewReader(testSVG), DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if model.Name != "test" {
		t.Errorf("Expected name test, got %s", model.Name)
	}
	if model.Width != 200 || model.Height != 100 {
		t.Errorf("Expected size 200x100, got %vx%v", model.Width, model.Height)
	}

	cal := model.Calibration
	if cal.UnitsPerMMX != 10 || cal.UnitsPerMMY != 10 || cal.YZero != 50 {
		t.Errorf("Unexpected calibration %+v", cal)
	}

	if len(model.RegionOrder) != 2 || model.RegionOrder[0] != "Motor" || model.RegionOrder[1] != "Visual" {
		t.Fatalf("Unexpected region order %v", model.RegionOrder)
	}

	motor, ok := model.Region("Motor")
	if !ok {
		t.Fatal("Missing region Motor")
	}
	if len(motor.Polygon) != 4 {
		t.Errorf("Expected 4 vertices, got %d", len(motor.Polygon))
	}
	if motor.Area != 10000 {
		t.Errorf("Expected area 10000, got %v", motor.Area)
	}

	visual, _ := model.Region("Visual")
	if len(visual.Polygon) != 4 {
		t.Errorf("Expected the repeated closing vertex to be dropped, got %d vertices", len(visual.Polygon))
	}

	if model.TotalArea != 20000 {
		t.Errorf("Expected total area 20000, got %v", model.TotalArea)
	}
	if len(model.ReferenceCurve) != 2 {
		t.Errorf("Expected 2 reference curve points, got %d", len(model.ReferenceCurve))
	}
}

func TestParseErrors(t *testing.T) {
	valid := testSVG

	tests := []struct {
		name string
		svg  string
	}{
		{"missing x marker", strings.Replace(valid, `id="MMperX"`, `id="other"`, 1)},
		{"missing y marker", strings.Replace(valid, `id="MMperY_1_"`, `id="other"`, 1)},
		{"missing zero marker", strings.Replace(valid, `id="YZero"`, `id="other"`, 1)},
		{"zero unit", strings.Replace(valid, `width="10"`, `width="0"`, 1)},
		{"missing curve", strings.Replace(valid, `id="RhinalFissure"`, `id="other"`, 1)},
		{"degenerate region", strings.Replace(valid, `d="M0,0 H100 V100 H0 Z"`, `d="M0,0 L5,5 Z"`, 1)},
		{"bad path data", strings.Replace(valid, `d="M0,0 H100 V100 H0 Z"`, `d="0,0 H100"`, 1)},
		{"region without path", strings.Replace(valid, `<path id="A_Motor" d="M0,0 H100 V100 H0 Z"/>`, `<rect id="A_Motor"/>`, 1)},
		{"duplicate region", strings.Replace(valid, `id="A_Visual"`, `id="A_Motor"`, 1)},
		{"no regions", strings.Replace(strings.Replace(valid, `id="A_Visual"`, `id="v"`, 1), `id="A_Motor"`, `id="m"`, 1)},
		{"not svg", `<html><body/></html>`},
		{"empty", ``},
		{"malformed xml", `<svg><rect id="MMperX"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(context.Background(), "test", strings.NewReader(tt.svg), DefaultOptions(), nil)
			if !models.IsKind(err, models.AtlasParseError) {
				t.Errorf("Expected AtlasParseError, got %v", err)
			}
		})
	}
}

func TestParseLength(t *testing.T) {
	tests := map[string]float64{
		"10":      10,
		" 12.5px": 12.5,
		"100%":    100,
		"-3e1":    -30,
	}
	for in, want := range tests {
		if got := parseLength(in); got != want {
			t.Errorf("parseLength(%q): expected %v, got %v", in, want, got)
		}
	}
	if got := parseLength("px"); !math.IsNaN(got) {
		t.Errorf("Expected NaN for a missing number, got %v", got)
	}
}
