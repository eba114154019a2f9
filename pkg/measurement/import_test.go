package measurement

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cortexmap/internal/models"
)

func TestParseLesion(t *testing.T) {
	input := "-1.5,1.2,0.8,2.0\n\n-2.0, 1.0, 0.5, -0.3\r\n,,,\n"

	rows, format, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if format != models.FormatLesion {
		t.Errorf("Expected lesion format, got %s", format)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}

	row, ok := rows[1].(models.LesionRow)
	if !ok {
		t.Fatalf("Expected a LesionRow, got %T", rows[1])
	}
	if row.Plane != -2 || row.D1 != 1 || row.D2 != 0.5 || row.D3 != -0.3 {
		t.Errorf("Unexpected row %+v", row)
	}
}

func TestParseSkipsPartlyEmptyLesionRows(t *testing.T) {
	input := "0,1,1,1\n0.5,,1,1\n1,1,1,\n1.5,2,2,2\n"

	rows, format, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if format != models.FormatLesion {
		t.Errorf("Expected lesion format, got %s", format)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0].PlaneCoordinate() != 0 || rows[1].PlaneCoordinate() != 1.5 {
		t.Errorf("Expected planes 0 and 1.5, got %v and %v", rows[0].PlaneCoordinate(), rows[1].PlaneCoordinate())
	}
}

func TestParseElectrode(t *testing.T) {
	input := "0.5,1.0,2.0,ch1\n1.0,1.5,2.5,ch2\n"

	rows, format, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if format != models.FormatElectrode {
		t.Errorf("Expected electrode format, got %s", format)
	}

	row, ok := rows[1].(models.ElectrodeRow)
	if !ok {
		t.Fatalf("Expected an ElectrodeRow, got %T", rows[1])
	}
	if row.Plane != 1 || row.D1 != 1.5 || row.D2 != 2.5 || row.Label != "ch2" {
		t.Errorf("Unexpected row %+v", row)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"three columns", "1,2,3\n"},
		{"five columns", "1,2,3,4,5\n"},
		{"non-numeric distance", "1,x,3,4\n"},
		{"partly empty electrode row", "1,,3,ch1\n"},
		{"only partly empty lesion rows", "1,,3,4\n1,2,3,\n"},
		{"mixed formats", "1,2,3,4\n1,2,3,ch1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse(strings.NewReader(tt.input))
			if !models.IsKind(err, models.MappingError) {
				t.Errorf("Expected MappingError, got %v", err)
			}
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lesion.csv")
	if err := os.WriteFile(path, []byte("0,1,1,1\n"), 0644); err != nil {
		t.Fatalf("Failed to write measurements: %v", err)
	}

	rows, _, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("Expected 1 row, got %d", len(rows))
	}
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"rat2_t10.csv", "rat2_t2.csv", "rat2_t1.CSV", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("0,1,1,1\n"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	files, err := ListFiles(dir)
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}

	want := []string{"rat2_t1.CSV", "rat2_t2.csv", "rat2_t10.csv"}
	if len(files) != len(want) {
		t.Fatalf("Expected %d files, got %d", len(want), len(files))
	}
	for i, name := range want {
		if filepath.Base(files[i]) != name {
			t.Errorf("File %d: expected %s, got %s", i, name, filepath.Base(files[i]))
		}
	}

	if _, err := ListFiles(t.TempDir()); err == nil {
		t.Error("Expected an error for a directory without CSV files")
	}
}

func TestNumberFromName(t *testing.T) {
	tests := map[string]int{
		"slice_12.csv":     12,
		"/data/t3/rat.csv": 0,
		"rat.csv":          0,
		"a1b2.csv":         2,
		"rat2_t12.csv":     12,
		"t007_final.csv":   7,
		"day3.v2.csv":      2,
	}
	for name, want := range tests {
		if got := NumberFromName(name); got != want {
			t.Errorf("NumberFromName(%q): expected %d, got %d", name, want, got)
		}
	}
}
