// Package atlas turns an atlas graphic into an AtlasModel and caches the
// models by atlas name.
package atlas

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cortexmap/internal/models"
	"cortexmap/pkg/geometry"
	"cortexmap/pkg/svgpath"
)

// Options names the elements of an atlas graphic and controls flattening.
// Elements are matched by id prefix.
type Options struct {
	RegionPrefix     string
	ReferenceCurveID string
	UnitsPerMMXID    string
	UnitsPerMMYID    string
	YZeroID          string

	Flatten svgpath.Options

	// Workers bounds concurrent region flattening; zero means NumCPU
	Workers int
}

// DefaultOptions returns the element ids used by the bundled atlases.
func DefaultOptions() Options {
	return Options{
		RegionPrefix:     "A_",
		ReferenceCurveID: "RhinalFissure",
		UnitsPerMMXID:    "MMperX",
		UnitsPerMMYID:    "MMperY",
		YZeroID:          "YZero",
		Flatten:          svgpath.DefaultOptions(),
	}
}

// element is the part of an SVG element the preprocessor reads
type element struct {
	id     string
	d      string
	hasD   bool
	width  string
	height string
	y      string
}

type regionPath struct {
	name string
	id   string
	d    string
}

// document collects the elements of interest in document order
type document struct {
	width, height float64

	regions []regionPath
	curve   *element
	markerX *element
	markerY *element
	yZero   *element
}

// Parse reads an atlas graphic and builds its AtlasModel. Every failure is
// an AtlasParseError.
func Parse(ctx context.Context, name string, r io.Reader, opts Options, logger *zap.Logger) (*models.AtlasModel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("atlas", name))

	doc, err := scan(r, opts)
	if err != nil {
		return nil, err
	}

	cal, err := doc.calibration(opts)
	if err != nil {
		return nil, err
	}

	if doc.curve == nil {
		return nil, models.NewAtlasParseError("reference curve %q not found", opts.ReferenceCurveID)
	}
	if !doc.curve.hasD {
		return nil, models.NewAtlasParseError("reference curve %q has no path data", doc.curve.id)
	}
	curve, err := svgpath.FlattenFirst(doc.curve.d, opts.Flatten)
	if err != nil {
		return nil, models.WrapError(models.AtlasParseError, err, "flattening reference curve %q", doc.curve.id)
	}

	if len(doc.regions) == 0 {
		return nil, models.NewAtlasParseError("no regions with prefix %q found", opts.RegionPrefix)
	}

	regions, err := flattenRegions(ctx, doc.regions, opts)
	if err != nil {
		return nil, err
	}

	model := &models.AtlasModel{
		Name:           name,
		Width:          doc.width,
		Height:         doc.height,
		Regions:        make(map[string]*models.AtlasRegion, len(regions)),
		RegionOrder:    make([]string, 0, len(regions)),
		ReferenceCurve: curve,
		Calibration:    cal,
	}
	for _, region := range regions {
		model.Regions[region.Name] = region
		model.RegionOrder = append(model.RegionOrder, region.Name)
		model.TotalArea += region.Area
	}

	logger.Info("Built atlas",
		zap.Int("regions", len(model.RegionOrder)),
		zap.Int("referenceCurvePoints", len(curve)),
		zap.Float64("totalArea", model.TotalArea),
		zap.Float64("unitsPerMMX", cal.UnitsPerMMX),
		zap.Float64("unitsPerMMY", cal.UnitsPerMMY))
	return model, nil
}

// scan walks the XML tokens and keeps the first element matching each
// marker prefix and every region element.
func scan(r io.Reader, opts Options) (*document, error) {
	decoder := xml.NewDecoder(r)
	doc := &document{}
	seen := make(map[string]string)
	root := true

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, models.WrapError(models.AtlasParseError, err, "reading atlas graphic")
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		el := readElement(start)

		if root {
			root = false
			if start.Name.Local != "svg" {
				return nil, models.NewAtlasParseError("root element is %q, expected svg", start.Name.Local)
			}
			doc.width = parseLength(el.width)
			doc.height = parseLength(el.height)
		}

		if el.id == "" {
			continue
		}

		switch {
		case opts.RegionPrefix != "" && strings.HasPrefix(el.id, opts.RegionPrefix):
			regionName := strings.TrimPrefix(el.id, opts.RegionPrefix)
			if regionName == "" {
				return nil, models.NewAtlasParseError("region element %q has an empty name", el.id)
			}
			if prev, dup := seen[regionName]; dup {
				return nil, models.NewAtlasParseError("region %q is defined by both %q and %q", regionName, prev, el.id)
			}
			if !el.hasD {
				return nil, models.NewAtlasParseError("region %q has no path data", el.id)
			}
			seen[regionName] = el.id
			doc.regions = append(doc.regions, regionPath{name: regionName, id: el.id, d: el.d})
		case doc.curve == nil && strings.HasPrefix(el.id, opts.ReferenceCurveID):
			doc.curve = el
		case doc.markerX == nil && strings.HasPrefix(el.id, opts.UnitsPerMMXID):
			doc.markerX = el
		case doc.markerY == nil && strings.HasPrefix(el.id, opts.UnitsPerMMYID):
			doc.markerY = el
		case doc.yZero == nil && strings.HasPrefix(el.id, opts.YZeroID):
			doc.yZero = el
		}
	}

	if root {
		return nil, models.NewAtlasParseError("atlas graphic is empty")
	}
	return doc, nil
}

func readElement(start xml.StartElement) *element {
	el := &element{}
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "id":
			el.id = attr.Value
		case "d":
			el.d, el.hasD = attr.Value, true
		case "width":
			el.width = attr.Value
		case "height":
			el.height = attr.Value
		case "y":
			el.y = attr.Value
		}
	}
	return el
}

// calibration reads the three markers. Both unit lengths must be positive.
func (doc *document) calibration(opts Options) (models.Calibration, error) {
	var cal models.Calibration

	unitX, err := markerValue(doc.markerX, opts.UnitsPerMMXID, "width")
	if err != nil {
		return cal, err
	}
	unitY, err := markerValue(doc.markerY, opts.UnitsPerMMYID, "height")
	if err != nil {
		return cal, err
	}
	yZero, err := markerValue(doc.yZero, opts.YZeroID, "y")
	if err != nil {
		return cal, err
	}

	if unitX <= 0 || unitY <= 0 {
		return cal, models.NewAtlasParseError("unit markers must be positive, got %g x %g", unitX, unitY)
	}

	cal.UnitsPerMMX = unitX
	cal.UnitsPerMMY = unitY
	cal.YZero = yZero
	return cal, nil
}

func markerValue(el *element, id, attr string) (float64, error) {
	if el == nil {
		return 0, models.NewAtlasParseError("calibration marker %q not found", id)
	}

	var raw string
	switch attr {
	case "width":
		raw = el.width
	case "height":
		raw = el.height
	case "y":
		raw = el.y
	}

	v := parseLength(raw)
	if math.IsNaN(v) {
		return 0, models.NewAtlasParseError("calibration marker %q has no numeric %s", el.id, attr)
	}
	return v, nil
}

// parseLength reads a number with an optional unit suffix such as "px".
// It returns NaN for a missing or malformed value.
func parseLength(s string) float64 {
	s = strings.TrimSpace(s)
	end := len(s)
	for end > 0 {
		c := s[end-1]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '%' {
			end--
			continue
		}
		break
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s[:end]), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// flattenRegions converts every region path into a polygon, concurrently,
// and keeps document order.
func flattenRegions(ctx context.Context, paths []regionPath, opts Options) ([]*models.AtlasRegion, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	regions := make([]*models.AtlasRegion, len(paths))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for i, p := range paths {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			region, err := flattenRegion(p, opts.Flatten)
			if err != nil {
				return err
			}
			regions[i] = region
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return regions, nil
}

func flattenRegion(p regionPath, opts svgpath.Options) (*models.AtlasRegion, error) {
	points, err := svgpath.FlattenFirst(p.d, opts)
	if err != nil {
		return nil, models.WrapError(models.AtlasParseError, err, "flattening region %q", p.id)
	}
	if n := len(points); n > 1 && points[0] == points[n-1] {
		points = points[:n-1]
	}
	if len(points) < 3 {
		return nil, models.NewAtlasParseError("region %q has %d vertices, need at least 3", p.id, len(points))
	}
	return &models.AtlasRegion{
		Name:    p.name,
		Polygon: points,
		Area:    geometry.Area(points),
	}, nil
}

// String summarizes the options for logs.
func (o Options) String() string {
	return fmt.Sprintf("regions %q, curve %q, markers %q/%q/%q, tolerance %g, decimals %d",
		o.RegionPrefix, o.ReferenceCurveID, o.UnitsPerMMXID, o.UnitsPerMMYID, o.YZeroID,
		o.Flatten.Tolerance, o.Flatten.Decimals)
}
