// Package measurement imports measurement tables from CSV text.
package measurement

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"cortexmap/internal/models"
)

// ExpectedColumns is the number of fields in every measurement row: the
// plane coordinate, two distances, and a third distance or channel label.
const ExpectedColumns = 4

// Parse reads a measurement table and detects its format.
//
// The format is electrode when the last column contains a letter and lesion
// otherwise; every row must agree. Blank lines and rows whose fields are all
// empty are skipped, as are lesion rows with any empty field.
//
// Parameters:
//   - r: CSV text with ExpectedColumns fields per row
//
// Returns:
//   - The rows in file order, as models.LesionRow or models.ElectrodeRow
//   - The detected format
//   - A MappingError for a wrong column count, a non-numeric distance, a
//     partly empty electrode row, mixed formats or an empty table
func Parse(r io.Reader) ([]models.MeasurementRow, models.Format, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		rows     []models.MeasurementRow
		format   models.Format
		detected bool
	)

	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, format, models.WrapError(models.MappingError, err, "reading measurement line %d", line)
		}
		if isEmpty(record) {
			continue
		}
		if len(record) != ExpectedColumns {
			return nil, format, models.NewMappingError("line %d has %d columns, expected %d", line, len(record), ExpectedColumns)
		}

		rowFormat := detectFormat(record)
		if rowFormat == models.FormatLesion && hasEmpty(record) {
			continue
		}
		if !detected {
			format, detected = rowFormat, true
		} else if rowFormat != format {
			return nil, format, models.NewMappingError("line %d is in %s format but earlier lines are %s", line, rowFormat, format)
		}

		row, err := parseRow(record, rowFormat)
		if err != nil {
			return nil, format, models.WrapError(models.MappingError, err, "parsing measurement line %d", line)
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, format, models.NewMappingError("measurement table has no rows")
	}
	return rows, format, nil
}

// ParseFile reads a measurement table from a file.
func ParseFile(path string) ([]models.MeasurementRow, models.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.FormatLesion, fmt.Errorf("error opening measurements: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func isEmpty(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func hasEmpty(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) == "" {
			return true
		}
	}
	return false
}

func detectFormat(record []string) models.Format {
	for _, c := range record[ExpectedColumns-1] {
		if unicode.IsLetter(c) {
			return models.FormatElectrode
		}
	}
	return models.FormatLesion
}

func parseRow(record []string, format models.Format) (models.MeasurementRow, error) {
	numeric := ExpectedColumns
	if format == models.FormatElectrode {
		numeric--
	}

	values := make([]float64, numeric)
	for i := 0; i < numeric; i++ {
		field := strings.TrimSpace(record[i])
		if field == "" {
			return nil, fmt.Errorf("column %d is empty", i+1)
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i+1, err)
		}
		values[i] = v
	}

	if format == models.FormatElectrode {
		return models.ElectrodeRow{
			Plane: values[0],
			D1:    values[1],
			D2:    values[2],
			Label: strings.TrimSpace(record[ExpectedColumns-1]),
		}, nil
	}
	return models.LesionRow{Plane: values[0], D1: values[1], D2: values[2], D3: values[3]}, nil
}

// ListFiles returns the CSV files of a directory ordered by the number in
// their names, so that a directory of time points is read in time order.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) == ".csv" {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no CSV measurement files found in %s", dir)
	}

	sort.SliceStable(files, func(i, j int) bool {
		ni, nj := NumberFromName(files[i]), NumberFromName(files[j])
		if ni != nj {
			return ni < nj
		}
		return files[i] < files[j]
	})
	return files, nil
}

// NumberFromName returns the last run of digits in a file's base name as
// an integer, or 0 when there is none. "rat2_t12.csv" yields 12.
func NumberFromName(filename string) int {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	end := strings.LastIndexFunc(base, unicode.IsDigit)
	if end < 0 {
		return 0
	}
	start := end
	for start > 0 && base[start-1] >= '0' && base[start-1] <= '9' {
		start--
	}

	num, err := strconv.Atoi(base[start : end+1])
	if err != nil {
		return 0
	}
	return num
}
