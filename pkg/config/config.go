// Package config provides configuration loading and management for cortexmap.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"cortexmap/pkg/atlas"
	"cortexmap/pkg/calibration"
	"cortexmap/pkg/interpolation"
	"cortexmap/pkg/mapping"
	"cortexmap/pkg/svgpath"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Atlas location and element naming
	Atlas struct {
		// DataDir holds one directory per atlas
		DataDir string `yaml:"dataDir"`

		// DefaultAtlas is used when no atlas is named
		DefaultAtlas string `yaml:"defaultAtlas"`

		// Element id prefixes of the atlas graphic
		RegionPrefix     string `yaml:"regionPrefix"`
		ReferenceCurveID string `yaml:"referenceCurveID"`
		UnitsPerMMXID    string `yaml:"unitsPerMMXID"`
		UnitsPerMMYID    string `yaml:"unitsPerMMYID"`
		YZeroID          string `yaml:"yZeroID"`

		// FlattenTolerance bounds the distance between a curve and its segments
		FlattenTolerance float64 `yaml:"flattenTolerance"`

		// FlattenDecimals is the precision kept in flattened coordinates
		FlattenDecimals int `yaml:"flattenDecimals"`

		// CacheTTL is how long a built atlas stays cached; zero keeps it
		CacheTTL time.Duration `yaml:"cacheTTL"`
	} `yaml:"atlas"`

	// Mapping parameters
	Mapping struct {
		// TieBreak selects the calibration entry between equally near ones: first or last
		TieBreak string `yaml:"tieBreak"`

		// FailOnDroppedRows rejects requests with rows outside the reference curve
		FailOnDroppedRows bool `yaml:"failOnDroppedRows"`

		// ClipScale is the fixed-point scale used for intersection areas
		ClipScale float64 `yaml:"clipScale"`

		// Timeout bounds a single mapping request; zero disables it
		Timeout time.Duration `yaml:"timeout"`

		// SliceDepth duplicates every row this far behind its plane, in mm
		SliceDepth float64 `yaml:"sliceDepth"`
	} `yaml:"mapping"`

	// Contour smoothing
	Interpolation struct {
		Enabled    bool    `yaml:"enabled"`
		Alpha      float64 `yaml:"alpha"`
		Resolution int     `yaml:"resolution"`
	} `yaml:"interpolation"`

	// Processing parameters
	Processing struct {
		// NumWorkers bounds the mapping requests computing at once
		NumWorkers int `yaml:"numWorkers"`

		// BatchConcurrency is how many files of a directory batch run at once
		BatchConcurrency int `yaml:"batchConcurrency"`
	} `yaml:"processing"`

	// HTTP server parameters
	Server struct {
		Addr string `yaml:"addr"`

		// Mode is debug or release; it also selects the log format
		Mode string `yaml:"mode"`

		// RequestsPerSecond and Burst limit the mapping endpoints
		RequestsPerSecond float64 `yaml:"requestsPerSecond"`
		Burst             int     `yaml:"burst"`
	} `yaml:"server"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	opts := atlas.DefaultOptions()
	cfg.Atlas.DataDir = "data"
	cfg.Atlas.DefaultAtlas = "mouse"
	cfg.Atlas.RegionPrefix = opts.RegionPrefix
	cfg.Atlas.ReferenceCurveID = opts.ReferenceCurveID
	cfg.Atlas.UnitsPerMMXID = opts.UnitsPerMMXID
	cfg.Atlas.UnitsPerMMYID = opts.UnitsPerMMYID
	cfg.Atlas.YZeroID = opts.YZeroID
	cfg.Atlas.FlattenTolerance = opts.Flatten.Tolerance
	cfg.Atlas.FlattenDecimals = opts.Flatten.Decimals

	cfg.Mapping.TieBreak = calibration.TieBreakFirst.String()
	cfg.Mapping.ClipScale = 100

	params := interpolation.DefaultParams()
	cfg.Interpolation.Alpha = params.Alpha
	cfg.Interpolation.Resolution = params.Resolution

	cfg.Processing.NumWorkers = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.BatchConcurrency = 1

	cfg.Server.Addr = ":8080"
	cfg.Server.Mode = "debug"
	cfg.Server.RequestsPerSecond = 10
	cfg.Server.Burst = 20

	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Atlas.DataDir == "" {
		return fmt.Errorf("atlas.dataDir must be set")
	}
	if _, err := atlas.NormalizeName(c.Atlas.DefaultAtlas); err != nil {
		return fmt.Errorf("atlas.defaultAtlas: %w", err)
	}
	if c.Atlas.RegionPrefix == "" {
		return fmt.Errorf("atlas.regionPrefix must be set")
	}
	if c.Atlas.CacheTTL < 0 {
		return fmt.Errorf("atlas.cacheTTL must not be negative")
	}
	if _, err := calibration.ParseTieBreak(c.Mapping.TieBreak); err != nil {
		return fmt.Errorf("mapping.tieBreak: %w", err)
	}
	if c.Mapping.ClipScale < 0 {
		return fmt.Errorf("mapping.clipScale must not be negative")
	}
	if c.Mapping.Timeout < 0 {
		return fmt.Errorf("mapping.timeout must not be negative")
	}
	if c.Mapping.SliceDepth < 0 || c.Mapping.SliceDepth > 1 {
		return fmt.Errorf("mapping.sliceDepth must be in [0,1], got %g", c.Mapping.SliceDepth)
	}
	if err := c.InterpolationParams().Validate(); err != nil {
		return fmt.Errorf("interpolation: %w", err)
	}
	if c.Processing.BatchConcurrency < 0 {
		return fmt.Errorf("processing.batchConcurrency must not be negative")
	}
	if c.Server.RequestsPerSecond < 0 || c.Server.Burst < 0 {
		return fmt.Errorf("server rate limit must not be negative")
	}
	return nil
}

// AtlasOptions converts the atlas section for the atlas package.
func (c *Config) AtlasOptions() atlas.Options {
	return atlas.Options{
		RegionPrefix:     c.Atlas.RegionPrefix,
		ReferenceCurveID: c.Atlas.ReferenceCurveID,
		UnitsPerMMXID:    c.Atlas.UnitsPerMMXID,
		UnitsPerMMYID:    c.Atlas.UnitsPerMMYID,
		YZeroID:          c.Atlas.YZeroID,
		Flatten: svgpath.Options{
			Tolerance: c.Atlas.FlattenTolerance,
			Decimals:  c.Atlas.FlattenDecimals,
		},
		Workers: c.Processing.NumWorkers,
	}
}

// TieBreak returns the configured calibration tie-break.
func (c *Config) TieBreak() calibration.TieBreak {
	tb, _ := calibration.ParseTieBreak(c.Mapping.TieBreak)
	return tb
}

// MappingOptions converts the mapping section for the mapping package.
func (c *Config) MappingOptions() mapping.Options {
	return mapping.Options{
		FailOnDroppedRows: c.Mapping.FailOnDroppedRows,
		ClipScale:         c.Mapping.ClipScale,
	}
}

// InterpolationParams returns the configured spline parameters.
func (c *Config) InterpolationParams() interpolation.Params {
	return interpolation.Params{Alpha: c.Interpolation.Alpha, Resolution: c.Interpolation.Resolution}
}
