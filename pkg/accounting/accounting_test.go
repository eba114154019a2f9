package accounting

import (
	"bytes"
	"reflect"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"

	"cortexmap/internal/models"
)

func rect(x0, y0, x1, y1 float64) []models.Point {
	return []models.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

// testAtlas has two disjoint 10x10 regions and ten atlas units per mm.
func testAtlas() *models.AtlasModel {
	return &models.AtlasModel{
		Name: "test",
		Regions: map[string]*models.AtlasRegion{
			"A": {Name: "A", Polygon: rect(0, 0, 10, 10), Area: 100},
			"B": {Name: "B", Polygon: rect(20, 0, 30, 10), Area: 100},
		},
		RegionOrder: []string{"A", "B"},
		TotalArea:   200,
		Calibration: models.Calibration{UnitsPerMMX: 10, UnitsPerMMY: 10},
	}
}

func resultByName(t *testing.T, results []models.RegionResult, name string) models.RegionResult {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("No result for region %q", name)
	return models.RegionResult{}
}

func TestComputeConcreteScenario(t *testing.T) {
	results := New(100).Compute(rect(0, 0, 10, 10), testAtlas())

	a := resultByName(t, results, "A")
	if a.Percent != 100.0 {
		t.Errorf("Expected 100.0%%, got %v", a.Percent)
	}
	if a.AreaMM2 != 1.0 {
		t.Errorf("Expected 1.0 mm², got %v", a.AreaMM2)
	}
}

func TestComputeFullContainment(t *testing.T) {
	results := New(100).Compute(rect(2, 2, 6, 6), testAtlas())

	a := resultByName(t, results, "A")
	if a.Percent != 16.0 {
		t.Errorf("Expected 16.0%%, got %v", a.Percent)
	}
	if a.AreaMM2 != 0.16 {
		t.Errorf("Expected 0.16 mm², got %v", a.AreaMM2)
	}

	b := resultByName(t, results, "B")
	if b.Percent != 0 || b.AreaMM2 != 0 {
		t.Errorf("Expected disjoint region to be zero, got %+v", b)
	}
}

func TestComputeOrderAndTotal(t *testing.T) {
	results := New(100).Compute(rect(5, 2, 25, 8), testAtlas())

	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	if results[0].Name != "A" || results[1].Name != "B" || results[2].Name != models.TotalLabel {
		t.Errorf("Unexpected result order: %s, %s, %s", results[0].Name, results[1].Name, results[2].Name)
	}

	total := results[2]
	sum := results[0].RawArea + results[1].RawArea
	if !scalar.EqualWithinAbs(total.RawArea, sum, 1e-9) {
		t.Errorf("Expected total raw area %v, got %v", sum, total.RawArea)
	}
	if !scalar.EqualWithinAbs(sum, 60, 1e-6) {
		t.Errorf("Expected covered area 60, got %v", sum)
	}
	if total.Percent != 30 {
		t.Errorf("Expected total 30%%, got %v", total.Percent)
	}
	if total.AreaMM2 != 0.6 {
		t.Errorf("Expected total 0.6 mm², got %v", total.AreaMM2)
	}
}

func TestComputeTotalPercentHasNoDecimals(t *testing.T) {
	// 12.6 of 200 atlas units is 6.3%, reported as 6
	results := New(100).Compute(rect(1, 1, 4, 5.2), testAtlas())
	total := resultByName(t, results, models.TotalLabel)
	if total.Percent != 6 {
		t.Errorf("Expected total percent 6, got %v", total.Percent)
	}
	if a := resultByName(t, results, "A"); a.Percent != 12.6 {
		t.Errorf("Expected 12.6%% of A, got %v", a.Percent)
	}
}

func TestTable(t *testing.T) {
	rows := Table([]models.RegionResult{
		{Name: "A", Percent: 12.5, AreaMM2: 0.25},
		{Name: models.TotalLabel, Percent: 6, AreaMM2: 0.25},
	})

	want := [][]string{
		{"area", "%", "mm"},
		{"A", "12.5", "0.25"},
		{"Total", "6", "0.25"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("Expected %v, got %v", want, rows)
	}
}

func TestCombineSeries(t *testing.T) {
	results := []*models.MappingResult{
		{Time: 1, Regions: []models.RegionResult{
			{Name: "A", Percent: 10, AreaMM2: 0.1},
			{Name: "B", Percent: 0, AreaMM2: 0},
			{Name: "C", Percent: 0, AreaMM2: 0},
			{Name: models.TotalLabel, Percent: 3, AreaMM2: 0.1},
		}},
		{Time: 2, Regions: []models.RegionResult{
			{Name: "A", Percent: 20.5, AreaMM2: 0.2},
			{Name: "B", Percent: 5, AreaMM2: 0.05},
			{Name: "C", Percent: 0, AreaMM2: 0},
			{Name: models.TotalLabel, Percent: 8, AreaMM2: 0.25},
		}},
	}

	want := [][]string{
		{"Area", "%_1", "mm_1", "%_2", "mm_2"},
		{"A", "10", "0.1", "20.5", "0.2"},
		{"B", "0", "0", "5", "0.05"},
		{"Total", "3", "0.1", "8", "0.25"},
	}
	got := CombineSeries(results)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, [][]string{{"area", "%", "mm"}, {"A", "1", "2"}}); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	if got := buf.String(); got != "area,%,mm\nA,1,2\n" {
		t.Errorf("Unexpected CSV output %q", got)
	}
}
