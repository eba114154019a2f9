// Package server exposes atlases and mapping requests over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"cortexmap/internal/models"
	"cortexmap/pkg/accounting"
	"cortexmap/pkg/atlas"
	"cortexmap/pkg/engine"
	"cortexmap/pkg/mapping"
)

// Options configures a Server.
type Options struct {
	// Mode is the gin mode: debug, release or test
	Mode string

	Mapping mapping.Options

	// SliceDepth and Interpolation apply to requests that do not set them
	SliceDepth    float64
	Interpolation *models.InterpolationSettings

	// RequestsPerSecond limits the mapping endpoints; zero disables the limit
	RequestsPerSecond float64
	Burst             int
}

// Server answers atlas and mapping requests. Atlases come from the store and
// every mapping request runs on the engine.
type Server struct {
	store   *atlas.Store
	engine  *engine.Engine
	opts    Options
	logger  *zap.Logger
	limiter *rate.Limiter
}

// New creates a server.
func New(store *atlas.Store, eng *engine.Engine, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{store: store, engine: eng, opts: opts, logger: logger}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	if s.opts.Mode != "" {
		gin.SetMode(s.opts.Mode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		api.GET("/atlases", s.listAtlases)
		api.GET("/atlases/:name", s.getAtlas)

		limited := api.Group("", rateLimit(s.limiter))
		limited.POST("/atlases/:name/map", s.mapMeasurements)
		limited.POST("/atlases/:name/series", s.mapSeries)
	}
	return r
}

// Run serves on addr until ctx ends.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("server shutting down")
		return srv.Shutdown(context.WithoutCancel(ctx))
	}
}

func (s *Server) listAtlases(c *gin.Context) {
	names, err := s.store.Names()
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"atlases": names})
}

func (s *Server) getAtlas(c *gin.Context) {
	entry, err := s.store.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	m := entry.Atlas
	regions := make([]regionSummary, 0, len(m.RegionOrder))
	for _, r := range m.OrderedRegions() {
		regions = append(regions, regionSummary{Name: r.Name, Area: r.Area, Vertices: len(r.Polygon)})
	}

	c.JSON(http.StatusOK, atlasResponse{
		Name:               m.Name,
		Width:              m.Width,
		Height:             m.Height,
		TotalArea:          m.TotalArea,
		Calibration:        m.Calibration,
		Regions:            regions,
		CalibrationEntries: entry.Table.Entries(),
	})
}

func (s *Server) mapMeasurements(c *gin.Context) {
	var payload mapPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Kind: "BadRequest", Message: err.Error()})
		return
	}

	mc, ok := s.mappingContext(c)
	if !ok {
		return
	}

	req, err := s.toRequest(payload)
	if err != nil {
		s.writeError(c, err)
		return
	}

	result, err := s.engine.Map(c.Request.Context(), mc, req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) mapSeries(c *gin.Context) {
	var payload seriesPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Kind: "BadRequest", Message: err.Error()})
		return
	}

	mc, ok := s.mappingContext(c)
	if !ok {
		return
	}

	reqs := make([]mapping.Request, 0, len(payload.Requests))
	for _, p := range payload.Requests {
		req, err := s.toRequest(p)
		if err != nil {
			s.writeError(c, err)
			return
		}
		reqs = append(reqs, req)
	}

	results, err := s.engine.Series(c.Request.Context(), mc, reqs)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, seriesResponse{
		Results:  results,
		Combined: accounting.CombineSeries(results),
	})
}

func (s *Server) mappingContext(c *gin.Context) (*mapping.Context, bool) {
	entry, err := s.store.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	return mapping.NewContext(entry.Atlas, entry.Table, s.opts.Mapping, s.logger), true
}

func (s *Server) toRequest(p mapPayload) (mapping.Request, error) {
	format, err := models.ParseFormat(p.Format)
	if err != nil {
		return mapping.Request{}, models.WrapError(models.MappingError, err, "invalid request")
	}

	req := mapping.Request{
		Rows:          make([]models.MeasurementRow, 0, len(p.Rows)),
		Format:        format,
		Time:          p.Time,
		SliceDepth:    s.opts.SliceDepth,
		Interpolation: s.opts.Interpolation,
	}
	if p.SliceDepth != nil {
		req.SliceDepth = *p.SliceDepth
	}
	if p.Interpolation != nil {
		req.Interpolation = p.Interpolation
	}

	for _, r := range p.Rows {
		if format == models.FormatElectrode {
			req.Rows = append(req.Rows, models.ElectrodeRow{Plane: r.Plane, D1: r.D1, D2: r.D2, Label: r.Label})
			continue
		}
		req.Rows = append(req.Rows, models.LesionRow{Plane: r.Plane, D1: r.D1, D2: r.D2, D3: r.D3, Label: r.Label})
	}
	return req, nil
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	kind := "InternalError"

	switch {
	case errors.Is(err, atlas.ErrNotFound):
		status, kind = http.StatusNotFound, "NotFound"
	case models.IsTransient(err):
		status, kind = http.StatusGatewayTimeout, models.MappingError.String()
	case models.IsKind(err, models.MappingError):
		status, kind = http.StatusUnprocessableEntity, models.MappingError.String()
	case models.IsKind(err, models.AtlasParseError):
		status, kind = http.StatusInternalServerError, models.AtlasParseError.String()
	case errors.Is(err, context.Canceled):
		status, kind = 499, "Canceled"
	default:
		var nameErr *atlas.NameError
		if errors.As(err, &nameErr) {
			status, kind = http.StatusBadRequest, "BadRequest"
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, errorResponse{Kind: kind, Message: err.Error()})
}
