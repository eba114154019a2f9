package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"cortexmap/internal/logging"
	"cortexmap/internal/models"
	"cortexmap/pkg/accounting"
	"cortexmap/pkg/atlas"
	"cortexmap/pkg/config"
	"cortexmap/pkg/engine"
	"cortexmap/pkg/mapping"
	"cortexmap/pkg/measurement"
	"cortexmap/pkg/server"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "config.yaml", "Configuration file (defaults are used when it does not exist)")
	initConfig := flag.Bool("init-config", false, "Write the default configuration to -config and exit")
	atlasName := flag.String("atlas", "", "Atlas name (default from config)")
	dataDir := flag.String("data-dir", "", "Directory holding the atlases (default from config)")
	measurements := flag.String("measurements", "", "Measurement CSV file or directory of files")
	outputDir := flag.String("output", "output", "Directory for the result tables")
	timePoint := flag.Int("time", 0, "Time point of a single measurement file")
	sliceDepth := flag.Float64("slice-depth", -1, "Slice depth in mm, 0 to 1 (default from config)")
	spline := flag.Bool("spline", false, "Smooth the lesion contour with a Catmull-Rom spline")
	alpha := flag.Float64("alpha", -1, "Spline alpha, 0 to 1 (default from config)")
	resolution := flag.Int("resolution", 0, "Spline points per contour segment (default from config)")
	series := flag.Bool("series", false, "Treat a measurement directory as a time series ordered by the numbers in the file names")
	serve := flag.Bool("serve", false, "Serve the HTTP API instead of processing files")
	addr := flag.String("addr", "", "HTTP listen address (default from config)")
	workers := flag.Int("workers", 0, "Number of concurrent mapping requests (default from config)")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Command line flags override the configuration file
	if *atlasName != "" {
		cfg.Atlas.DefaultAtlas = *atlasName
	}
	if *dataDir != "" {
		cfg.Atlas.DataDir = *dataDir
	}
	if *sliceDepth >= 0 {
		cfg.Mapping.SliceDepth = *sliceDepth
	}
	if *spline {
		cfg.Interpolation.Enabled = true
	}
	if *alpha >= 0 {
		cfg.Interpolation.Alpha = *alpha
	}
	if *resolution > 0 {
		cfg.Interpolation.Resolution = *resolution
	}
	if *workers > 0 {
		cfg.Processing.NumWorkers = *workers
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Mode, cfg.Output.Verbose)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logging.Sync(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := atlas.NewStore(cfg.Atlas.DataDir, cfg.AtlasOptions(), cfg.TieBreak(), cfg.Atlas.CacheTTL, logger)
	eng := engine.New(cfg.Processing.NumWorkers, cfg.Mapping.Timeout, logger)

	if *serve {
		srv := server.New(store, eng, server.Options{
			Mode:              cfg.Server.Mode,
			Mapping:           cfg.MappingOptions(),
			SliceDepth:        cfg.Mapping.SliceDepth,
			Interpolation:     interpolationSettings(cfg),
			RequestsPerSecond: cfg.Server.RequestsPerSecond,
			Burst:             cfg.Server.Burst,
		}, logger)
		if err := srv.Run(ctx, cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
		return
	}

	if *measurements == "" {
		fmt.Println("No measurements provided.")
		flag.Usage()
		os.Exit(1)
	}

	fmt.Println("================================")
	fmt.Println("CORTEXMAP LESION-TO-ATLAS MAPPING")
	fmt.Println("================================")

	startTime := time.Now()
	entry, err := store.Get(ctx, cfg.Atlas.DefaultAtlas)
	if err != nil {
		log.Fatalf("Failed to load atlas %s: %v", cfg.Atlas.DefaultAtlas, err)
	}
	fmt.Printf("Atlas %s: %d regions, %d calibration planes\n",
		entry.Atlas.Name, len(entry.Atlas.RegionOrder), entry.Table.Len())

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	r := &runner{
		cfg:       cfg,
		engine:    eng,
		mc:        mapping.NewContext(entry.Atlas, entry.Table, cfg.MappingOptions(), logger),
		outputDir: *outputDir,
		logger:    logger,
	}

	info, err := os.Stat(*measurements)
	if err != nil {
		log.Fatalf("Invalid path: %s", *measurements)
	}

	switch {
	case !info.IsDir():
		err = r.processFile(ctx, *measurements, *timePoint)
	case *series:
		err = r.processSeries(ctx, *measurements)
	default:
		err = r.processBatch(ctx, *measurements)
	}
	if err != nil {
		log.Fatalf("Mapping failed: %v", err)
	}

	fmt.Printf("\nCompleted in %.2f seconds. Results saved to: %s\n", time.Since(startTime).Seconds(), *outputDir)
}

// interpolationSettings returns nil when smoothing is disabled
func interpolationSettings(cfg *config.Config) *models.InterpolationSettings {
	if !cfg.Interpolation.Enabled {
		return nil
	}
	return &models.InterpolationSettings{Alpha: cfg.Interpolation.Alpha, Resolution: cfg.Interpolation.Resolution}
}

type runner struct {
	cfg       *config.Config
	engine    *engine.Engine
	mc        *mapping.Context
	outputDir string
	logger    *zap.Logger
}

func (r *runner) request(path string, timePoint int) (mapping.Request, error) {
	rows, format, err := measurement.ParseFile(path)
	if err != nil {
		return mapping.Request{}, err
	}
	return mapping.Request{
		Rows:          rows,
		Format:        format,
		Time:          timePoint,
		SliceDepth:    r.cfg.Mapping.SliceDepth,
		Interpolation: interpolationSettings(r.cfg),
	}, nil
}

func (r *runner) processFile(ctx context.Context, path string, timePoint int) error {
	fmt.Printf("\t%s\n", path)
	req, err := r.request(path, timePoint)
	if err != nil {
		return err
	}
	result, err := r.engine.Map(ctx, r.mc, req)
	if err != nil {
		return err
	}
	return r.writeResult(path, result)
}

// processBatch maps every file of a directory independently. A failed file
// is reported and skipped.
func (r *runner) processBatch(ctx context.Context, dir string) error {
	files, err := measurement.ListFiles(dir)
	if err != nil {
		return err
	}

	jobs := make([]engine.Job, 0, len(files))
	for _, path := range files {
		req, err := r.request(path, 0)
		if err != nil {
			fmt.Printf("Warning: Failed to read %s: %v\n", path, err)
			continue
		}
		jobs = append(jobs, engine.Job{Name: path, Context: r.mc, Request: req})
	}

	failed := len(files) - len(jobs)
	for _, res := range r.engine.Batch(ctx, jobs, r.cfg.Processing.BatchConcurrency) {
		fmt.Printf("\t%s\n", res.Name)
		if res.Err != nil {
			fmt.Printf("Warning: Failed to map %s: %v\n", res.Name, res.Err)
			failed++
			continue
		}
		if err := r.writeResult(res.Name, res.Result); err != nil {
			return err
		}
	}

	if failed > 0 {
		fmt.Printf("%d of %d files failed\n", failed, len(files))
	}
	return nil
}

// processSeries maps a directory as one time series and writes the
// combined table next to the per-file tables.
func (r *runner) processSeries(ctx context.Context, dir string) error {
	files, err := measurement.ListFiles(dir)
	if err != nil {
		return err
	}

	reqs := make([]mapping.Request, 0, len(files))
	names := make(map[int]string, len(files))
	for _, path := range files {
		t := measurement.NumberFromName(path)
		req, err := r.request(path, t)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		reqs = append(reqs, req)
		names[t] = path
	}

	results, err := r.engine.Series(ctx, r.mc, reqs)
	if err != nil {
		return err
	}

	for _, result := range results {
		fmt.Printf("\t%s (t=%d)\n", names[result.Time], result.Time)
		if err := r.writeResult(names[result.Time], result); err != nil {
			return err
		}
	}
	return writeTable(filepath.Join(r.outputDir, "combined.csv"), accounting.CombineSeries(results))
}

func (r *runner) writeResult(inputPath string, result *models.MappingResult) error {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	out := filepath.Join(r.outputDir, base+".csv")

	if n := result.DroppedCount(); n > 0 {
		fmt.Printf("Warning: %d rows of %s do not meet the reference curve\n", n, inputPath)
	}

	if result.Format == models.FormatElectrode.String() {
		return writeTable(out, electrodeTable(result.Electrodes))
	}

	total, _ := result.Region(models.TotalLabel)
	fmt.Printf("\t  total: %v%% of the atlas, %v mm²\n", total.Percent, total.AreaMM2)
	return writeTable(out, accounting.Table(result.Regions))
}

func electrodeTable(electrodes []models.BoundaryPoint) [][]string {
	rows := [][]string{{"channel", "x", "y"}}
	for _, e := range electrodes {
		rows = append(rows, []string{
			e.Label,
			strconv.FormatFloat(e.X, 'f', 3, 64),
			strconv.FormatFloat(e.Y, 'f', 3, 64),
		})
	}
	return rows
}

func writeTable(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := accounting.WriteCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
