// Package mapping turns per-plane measurements into a lesion contour in
// atlas coordinates and accounts the contour against the atlas regions.
package mapping

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"cortexmap/internal/models"
	"cortexmap/pkg/accounting"
	"cortexmap/pkg/calibration"
	"cortexmap/pkg/geometry"
)

// Options tunes a mapping Context.
type Options struct {
	// FailOnDroppedRows turns a row missing the reference curve into a
	// MappingError instead of a reported drop.
	FailOnDroppedRows bool

	// ClipScale is the fixed-point scale used for intersection areas; zero
	// selects geometry.DefaultClipScale.
	ClipScale float64
}

// Request is one measurement set to map.
type Request struct {
	Rows   []models.MeasurementRow
	Format models.Format

	// Time tags the request within a time series
	Time int

	// SliceDepth, when positive, duplicates every row at plane+SliceDepth
	SliceDepth float64

	// Interpolation enables spline smoothing of the contour
	Interpolation *models.InterpolationSettings
}

// Boundaries holds the per-row output of the mapper. Left is sorted by
// descending y and Right by ascending y.
type Boundaries struct {
	Left  []models.BoundaryPoint
	Right []models.BoundaryPoint

	// MeasurementTable echoes each mapped row in input order
	MeasurementTable [][]float64

	Borders []models.Border
	Dropped []models.DroppedRow

	// Shrinkage holds the shrinkage factor of each mapped row
	Shrinkage []float64
}

// Context maps requests against one atlas and calibration table. It holds
// no per-request state and is safe for concurrent use.
type Context struct {
	atlas      *models.AtlasModel
	table      *calibration.Table
	opts       Options
	accountant *accounting.Accountant
	logger     *zap.Logger
}

// NewContext creates a mapping context. The atlas and table are only read.
func NewContext(atlas *models.AtlasModel, table *calibration.Table, opts Options, logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{
		atlas:      atlas,
		table:      table,
		opts:       opts,
		accountant: accounting.New(opts.ClipScale),
		logger:     logger.With(zap.String("atlas", atlas.Name)),
	}
}

// Atlas returns the atlas the context maps onto.
func (c *Context) Atlas() *models.AtlasModel {
	return c.atlas
}

// MeasuredWidth returns the slice width spanned by the row's distances.
// With a non-negative third distance all three count; otherwise the third
// distance is an offset and only the first two count.
func MeasuredWidth(row models.MeasurementRow) float64 {
	d1, d2, d3 := row.Distances()
	if d3 >= 0 {
		return d1 + d2 + d3
	}
	return d1 + d2
}

// ExpandSliceDepth returns the rows with a copy of each row at
// plane+depth inserted right after it. A non-positive depth returns the
// rows unchanged.
func ExpandSliceDepth(rows []models.MeasurementRow, depth float64) []models.MeasurementRow {
	if depth <= 0 {
		return rows
	}
	expanded := make([]models.MeasurementRow, 0, 2*len(rows))
	for _, row := range rows {
		expanded = append(expanded, row, row.WithPlane(row.PlaneCoordinate()+depth))
	}
	return expanded
}

// MapBoundaries maps every row to a left and a right boundary point. Rows
// whose scan-line misses the reference curve are recorded in Dropped.
func (c *Context) MapBoundaries(ctx context.Context, rows []models.MeasurementRow) (*Boundaries, error) {
	cal := c.atlas.Calibration
	b := &Boundaries{}

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		plane := row.PlaneCoordinate()
		d1, d2, d3 := row.Distances()
		if !finite(plane, d1, d2, d3) {
			return nil, models.NewMappingError("row %d has a non-numeric value", i)
		}

		entry, _, err := c.table.Nearest(plane)
		if err != nil {
			return nil, err
		}

		y := cal.YZero - cal.UnitsPerMMY*plane
		anchor, ok := geometry.RightmostIntersection(c.atlas.ReferenceCurve, y)
		if !ok {
			if c.opts.FailOnDroppedRows {
				return nil, models.NewMappingError("row %d at plane %g does not meet the reference curve", i, plane)
			}
			c.logger.Warn("Dropping measurement row",
				zap.Int("row", i),
				zap.Float64("plane", plane),
				zap.Float64("y", y))
			b.Dropped = append(b.Dropped, models.DroppedRow{
				Index:  i,
				Plane:  plane,
				Y:      y,
				Reason: "scan-line does not intersect the reference curve",
			})
			continue
		}

		sum := MeasuredWidth(row)
		shrinkage := sum / entry.ExpectedWidth
		if sum == 0 || shrinkage == 0 || !finite(shrinkage) {
			return nil, models.NewMappingError("row %d at plane %g has a degenerate shrinkage factor (width %g, expected %g)",
				i, plane, sum, entry.ExpectedWidth)
		}

		left := anchor + d3*cal.UnitsPerMMX/shrinkage
		right := left + d2*cal.UnitsPerMMX/shrinkage
		label := row.RowLabel()

		c.logger.Debug("Mapped measurement row",
			zap.Int("row", i),
			zap.Float64("plane", plane),
			zap.Float64("calibrationPlane", entry.Plane),
			zap.Float64("shrinkage", shrinkage),
			zap.Float64("left", left),
			zap.Float64("right", right))

		b.MeasurementTable = append(b.MeasurementTable, []float64{plane, d1, d2, d3, sum})
		b.Left = append(b.Left, models.BoundaryPoint{X: left, Y: y, Label: label})
		b.Right = append(b.Right, models.BoundaryPoint{X: right, Y: y, Label: label})
		b.Borders = append(b.Borders, models.Border{
			From: models.Point{X: anchor, Y: y},
			To:   models.Point{X: anchor + entry.ExpectedWidth*cal.UnitsPerMMX, Y: y},
		})
		b.Shrinkage = append(b.Shrinkage, shrinkage)
	}

	sort.SliceStable(b.Right, func(i, j int) bool { return b.Right[i].Y < b.Right[j].Y })
	sort.SliceStable(b.Left, func(i, j int) bool { return b.Left[i].Y > b.Left[j].Y })

	return b, nil
}

// Run maps one request and, for lesion measurements, accounts the contour
// against every atlas region. A failed request returns no partial result.
func (c *Context) Run(ctx context.Context, req Request) (*models.MappingResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	rows := ExpandSliceDepth(req.Rows, req.SliceDepth)
	b, err := c.MapBoundaries(ctx, rows)
	if err != nil {
		return nil, err
	}

	result := &models.MappingResult{
		Atlas:            c.atlas.Name,
		Time:             req.Time,
		Format:           req.Format.String(),
		MeasurementTable: b.MeasurementTable,
		Borders:          b.Borders,
		Dropped:          b.Dropped,
		Shrinkage:        summarize(b.Shrinkage),
	}

	if req.Format == models.FormatElectrode {
		result.Contour = models.LesionContour{Points: concat(b.Left, b.Right)}
		result.Electrodes = b.Left
		result.Regions = []models.RegionResult{}
		c.logger.Info("Mapped electrodes",
			zap.Int("time", req.Time),
			zap.Int("electrodes", len(b.Left)),
			zap.Int("dropped", len(b.Dropped)))
		return result, nil
	}

	points, err := BuildContour(b.Left, b.Right, req.Interpolation)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.Contour = models.LesionContour{Points: points, Interpolation: req.Interpolation}
	result.Regions = c.accountant.Compute(points, c.atlas)

	total, _ := result.Region(models.TotalLabel)
	c.logger.Info("Mapped lesion",
		zap.Int("time", req.Time),
		zap.Int("rows", len(rows)),
		zap.Int("dropped", len(b.Dropped)),
		zap.Int("vertices", len(points)),
		zap.Float64("totalPercent", total.Percent))
	return result, nil
}

func validateRequest(req Request) error {
	if len(req.Rows) == 0 {
		return models.NewMappingError("request has no measurement rows")
	}
	if req.SliceDepth < 0 || req.SliceDepth > 1 || math.IsNaN(req.SliceDepth) {
		return models.NewMappingError("slice depth must be in [0,1], got %g", req.SliceDepth)
	}
	for i, row := range req.Rows {
		switch row.(type) {
		case models.LesionRow:
			if req.Format != models.FormatLesion {
				return models.NewMappingError("row %d is a lesion row but the request format is %s", i, req.Format)
			}
		case models.ElectrodeRow:
			if req.Format != models.FormatElectrode {
				return models.NewMappingError("row %d is an electrode row but the request format is %s", i, req.Format)
			}
		default:
			return models.NewMappingError("row %d has unsupported type %T", i, row)
		}
	}
	if req.Interpolation != nil && req.Format == models.FormatLesion {
		if err := toParams(*req.Interpolation).Validate(); err != nil {
			return models.WrapError(models.MappingError, err, "invalid interpolation settings")
		}
	}
	return nil
}

// summarize reports the mean and sample standard deviation of the factors
func summarize(factors []float64) models.ShrinkageSummary {
	switch len(factors) {
	case 0:
		return models.ShrinkageSummary{}
	case 1:
		return models.ShrinkageSummary{Mean: factors[0]}
	}
	mean, std := stat.MeanStdDev(factors, nil)
	return models.ShrinkageSummary{Mean: mean, StdDev: std}
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// String describes the request for logs.
func (r Request) String() string {
	return fmt.Sprintf("%s request at time %d with %d rows", r.Format, r.Time, len(r.Rows))
}
