// Package config loads the gdalframe command line defaults from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/tingold/gdalframe/frame"
)

// Config holds the defaults of every gdalframe command. Flags given on the
// command line override them.
type Config struct {
	Read    ReadConfig    `yaml:"read"`
	Write   WriteConfig   `yaml:"write"`
	Convert ConvertConfig `yaml:"convert"`
	Logging LoggingConfig `yaml:"logging"`
}

// ReadConfig configures how resources are opened and mapped.
type ReadConfig struct {
	Drivers        []string             `yaml:"drivers,omitempty"`
	OpenOptions    []string             `yaml:"open_options,omitempty"`
	ConfigOptions  []string             `yaml:"config_options,omitempty"`
	Layer          string               `yaml:"layer"`
	FIDColumn      string               `yaml:"fid_column"`
	GeometryColumn string               `yaml:"geometry_column"`
	GeometryFormat frame.GeometryFormat `yaml:"geometry_format"` // wkb, wkt, geojson
	Limit          int                  `yaml:"limit"`
	MaxFeatures    int                  `yaml:"max_features"`
	Offset         int                  `yaml:"offset"`
}

// WriteConfig configures how records are written through GDAL.
type WriteConfig struct {
	Driver          string   `yaml:"driver"`
	LayerName       string   `yaml:"layer_name"`
	EPSG            int      `yaml:"epsg"`
	CreationOptions []string `yaml:"creation_options,omitempty"`
	LayerOptions    []string `yaml:"layer_options,omitempty"`
}

// ConvertConfig configures batch conversion.
type ConvertConfig struct {
	Concurrency int    `yaml:"concurrency"`
	OutDir      string `yaml:"out_dir"`
	Extension   string `yaml:"extension"` // Output file extension (default: from driver)
}

// LoggingConfig configures the command line logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Read: ReadConfig{
			GeometryColumn: frame.DefaultGeometryColumn,
			GeometryFormat: frame.WKB,
		},
		Write: WriteConfig{
			Driver: "GPKG",
		},
		Convert: ConvertConfig{
			Concurrency: 4,
			OutDir:      ".",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from a YAML file on top of the defaults. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("GDALFRAME_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if dir := os.Getenv("GDALFRAME_OUT_DIR"); dir != "" {
		c.Convert.OutDir = dir
	}
}

// Validate checks values the commands cannot work with.
func (c *Config) Validate() error {
	if c.Read.Limit < 0 || c.Read.MaxFeatures < 0 || c.Read.Offset < 0 {
		return fmt.Errorf("config: read limit, max_features and offset must not be negative")
	}
	if c.Convert.Concurrency < 1 {
		return fmt.Errorf("config: convert concurrency must be at least 1, got %d", c.Convert.Concurrency)
	}
	if _, err := c.Logging.ZapLevel(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("config: unknown log format %q (valid: json, console)", c.Logging.Format)
	}
	return nil
}

// ZapLevel parses the configured log level.
func (c LoggingConfig) ZapLevel() (zapcore.Level, error) {
	if c.Level == "" {
		return zapcore.InfoLevel, nil
	}
	l, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return l, fmt.Errorf("config: %w", err)
	}
	return l, nil
}
