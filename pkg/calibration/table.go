// Package calibration holds the expected tissue width at each reference
// plane, used to correct measured distances for preparation shrinkage.
package calibration

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"cortexmap/internal/models"
)

// TieBreak decides between calibration entries at the same distance from a
// measured plane.
type TieBreak int

const (
	// TieBreakFirst keeps the entry that comes first in table order
	TieBreakFirst TieBreak = iota

	// TieBreakLast keeps the entry that comes last in table order
	TieBreakLast
)

func (tb TieBreak) String() string {
	if tb == TieBreakLast {
		return "last"
	}
	return "first"
}

// ParseTieBreak converts "first" or "last" to a TieBreak. An empty name
// means first.
func ParseTieBreak(name string) (TieBreak, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "first":
		return TieBreakFirst, nil
	case "last":
		return TieBreakLast, nil
	default:
		return TieBreakFirst, fmt.Errorf("unknown calibration tie-break %q", name)
	}
}

// Table is an ordered list of calibration entries. Entries need not be
// sorted; lookup is by nearest plane coordinate. A Table is read-only after
// construction.
type Table struct {
	entries  []models.CalibrationEntry
	tieBreak TieBreak
}

// New creates a table from the entries in the given order.
func New(entries []models.CalibrationEntry, tieBreak TieBreak) *Table {
	copied := make([]models.CalibrationEntry, len(entries))
	copy(copied, entries)
	return &Table{entries: copied, tieBreak: tieBreak}
}

// Load reads a table written as a list of [plane, expectedWidth] pairs, in
// JSON or YAML.
func Load(r io.Reader, tieBreak TieBreak) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading calibration table: %w", err)
	}

	var pairs [][]float64
	if err := yaml.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("error parsing calibration table: %w", err)
	}

	entries := make([]models.CalibrationEntry, 0, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("calibration entry %d has %d values, expected 2", i, len(pair))
		}
		if math.IsNaN(pair[0]) || math.IsNaN(pair[1]) {
			return nil, fmt.Errorf("calibration entry %d is not a number", i)
		}
		entries = append(entries, models.CalibrationEntry{Plane: pair[0], ExpectedWidth: pair[1]})
	}
	return New(entries, tieBreak), nil
}

// LoadFile reads a table from a file.
func LoadFile(path string, tieBreak TieBreak) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening calibration table: %w", err)
	}
	defer f.Close()
	return Load(f, tieBreak)
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// TieBreak returns the tie-break rule of the table.
func (t *Table) TieBreak() TieBreak {
	return t.tieBreak
}

// Entries returns a copy of the entries in table order.
func (t *Table) Entries() []models.CalibrationEntry {
	out := make([]models.CalibrationEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Nearest returns the entry whose plane coordinate is closest to plane,
// and its index. It fails with a MappingError when the table is empty.
func (t *Table) Nearest(plane float64) (models.CalibrationEntry, int, error) {
	if len(t.entries) == 0 {
		return models.CalibrationEntry{}, -1, models.NewMappingError("calibration table is empty")
	}

	nearest := 0
	smallest := math.Inf(1)
	for i, e := range t.entries {
		d := math.Abs(plane - e.Plane)
		if d < smallest || (t.tieBreak == TieBreakLast && d == smallest) {
			nearest = i
			smallest = d
		}
	}
	return t.entries[nearest], nearest, nil
}
