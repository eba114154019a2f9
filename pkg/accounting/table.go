package accounting

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"cortexmap/internal/models"
)

// Table renders one result set as rows of area, percent and square
// millimetres under a header row. Total stays last.
func Table(results []models.RegionResult) [][]string {
	rows := make([][]string, 0, len(results)+1)
	rows = append(rows, []string{"area", "%", "mm"})
	for _, r := range results {
		rows = append(rows, []string{r.Name, formatValue(r.Percent), formatValue(r.AreaMM2)})
	}
	return rows
}

// CombineSeries renders the results of a time series as one table with a
// percent and an area column per time point. It lists every region that
// has a non-zero percentage at some time point, in order of first
// appearance, with zeros where a time point does not cover it. The Total
// row comes last.
func CombineSeries(results []*models.MappingResult) [][]string {
	header := []string{"Area"}
	for _, res := range results {
		header = append(header, fmt.Sprintf("%%_%d", res.Time), fmt.Sprintf("mm_%d", res.Time))
	}

	var names []string
	seen := make(map[string]bool)
	for _, res := range results {
		for _, r := range res.Regions {
			if r.Name == models.TotalLabel || r.Percent == 0 || seen[r.Name] {
				continue
			}
			seen[r.Name] = true
			names = append(names, r.Name)
		}
	}
	names = append(names, models.TotalLabel)

	rows := make([][]string, 0, len(names)+1)
	rows = append(rows, header)
	for _, name := range names {
		row := []string{name}
		for _, res := range results {
			r, ok := res.Region(name)
			if !ok || r.Percent == 0 {
				row = append(row, "0", "0")
				continue
			}
			row = append(row, formatValue(r.Percent), formatValue(r.AreaMM2))
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteCSV writes rows as comma separated values.
func WriteCSV(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("error writing result table: %w", err)
	}
	return nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
