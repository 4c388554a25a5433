// Package config loads rectification job descriptions from YAML files.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config describes one rectification job: where to read the source cube,
// how to lay out the target grid, and where to write results.
type Config struct {
	// Input is the source Zarr group directory.
	Input string `yaml:"input"`

	// Output is the target Zarr group directory.
	Output string `yaml:"output"`

	// Variables restricts processing to the named data variables.
	// Empty means all spatially resolved variables.
	Variables []string `yaml:"variables,omitempty"`

	// TileWidth and TileHeight set the target chunking. Zero means
	// untiled.
	TileWidth  int `yaml:"tile_width,omitempty"`
	TileHeight int `yaml:"tile_height,omitempty"`

	// Workers bounds all worker pools. Zero means one per CPU.
	Workers int `yaml:"workers,omitempty"`

	// Target pins the output grid. Nil means the best-fit regular grid
	// covering the source.
	Target *TargetConfig `yaml:"target,omitempty"`

	// Quicklook, when set, renders one variable of the result to an
	// image file.
	Quicklook *QuicklookConfig `yaml:"quicklook,omitempty"`
}

// TargetConfig is an explicit regular target grid.
type TargetConfig struct {
	Width   int     `yaml:"width"`
	Height  int     `yaml:"height"`
	XMin    float64 `yaml:"x_min"`
	YMin    float64 `yaml:"y_min"`
	XRes    float64 `yaml:"x_res"`
	YRes    float64 `yaml:"y_res"`
	CRS     string  `yaml:"crs,omitempty"`
	JAxisUp bool    `yaml:"j_axis_up,omitempty"`
}

// QuicklookConfig describes the optional preview image.
type QuicklookConfig struct {
	Path     string `yaml:"path"`
	Variable string `yaml:"variable,omitempty"`
	Format   string `yaml:"format,omitempty"`
	Quality  int    `yaml:"quality,omitempty"`
	MaxSize  int    `yaml:"max_size,omitempty"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{}
}

// Load reads and validates a YAML job file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Quicklook != nil {
		if c.Quicklook.Format == "" {
			c.Quicklook.Format = "png"
		}
		if c.Quicklook.Quality == 0 {
			c.Quicklook.Quality = 85
		}
		if c.Quicklook.MaxSize == 0 {
			c.Quicklook.MaxSize = 1024
		}
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("input is required")
	}
	if c.Output == "" {
		return fmt.Errorf("output is required")
	}
	if c.TileWidth < 0 || c.TileHeight < 0 {
		return fmt.Errorf("tile size must not be negative")
	}
	if (c.TileWidth == 0) != (c.TileHeight == 0) {
		return fmt.Errorf("tile_width and tile_height must be set together")
	}
	if t := c.Target; t != nil {
		if t.Width <= 0 || t.Height <= 0 {
			return fmt.Errorf("target size must be positive")
		}
		if t.XRes <= 0 || t.YRes <= 0 {
			return fmt.Errorf("target resolution must be positive")
		}
	}
	if q := c.Quicklook; q != nil {
		if q.Path == "" {
			return fmt.Errorf("quicklook path is required")
		}
		switch q.Format {
		case "png", "jpeg", "jpg", "webp":
		default:
			return fmt.Errorf("unsupported quicklook format %q", q.Format)
		}
	}
	return nil
}
