// Package config provides configuration loading and management for latticevol.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"latticevol/pkg/interpolation"
	"latticevol/pkg/stats"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores extraction and resampling use
		NumCores int `yaml:"numCores"`

		// TargetSamples is the approximate size of the strided sample set
		// used to pick isosurface levels
		TargetSamples int `yaml:"targetSamples"`
	} `yaml:"processing"`

	// Interpolation parameters
	Interpolation struct {
		// Frames is the number of frames generated between consecutive files
		Frames int `yaml:"frames"`

		// Resample is the target grid, e.g. "10x10x10"; empty disables it
		Resample string `yaml:"resample"`
	} `yaml:"interpolation"`

	// Surface extraction parameters
	Surface struct {
		// UseGeometry places vertices using the file's origin and spacing
		UseGeometry bool `yaml:"useGeometry"`

		// Grouped writes STL files through model3d instead of as a plain soup
		Grouped bool `yaml:"grouped"`

		// WriteLow and WriteHigh select which of the two suggested levels
		// are extracted
		WriteLow  bool `yaml:"writeLow"`
		WriteHigh bool `yaml:"writeHigh"`
	} `yaml:"surface"`

	// Output parameters
	Output struct {
		// Dir is where derived files are written; empty means next to the input
		Dir string `yaml:"dir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.TargetSamples = stats.TargetSamples

	cfg.Interpolation.Frames = 0
	cfg.Interpolation.Resample = ""

	cfg.Surface.UseGeometry = false
	cfg.Surface.Grouped = false
	cfg.Surface.WriteLow = true
	cfg.Surface.WriteHigh = true

	cfg.Output.Dir = ""
	cfg.Output.Verbose = false

	return cfg
}

// Validate checks that values are in range
func (c *Config) Validate() error {
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("processing.numCores must be at least 1, got %d", c.Processing.NumCores)
	}
	if c.Processing.TargetSamples < 1 {
		return fmt.Errorf("processing.targetSamples must be at least 1, got %d", c.Processing.TargetSamples)
	}
	if c.Interpolation.Frames < 0 {
		return fmt.Errorf("interpolation.frames must not be negative, got %d", c.Interpolation.Frames)
	}
	if c.Interpolation.Resample != "" {
		if _, err := interpolation.ParseDims(c.Interpolation.Resample); err != nil {
			return fmt.Errorf("interpolation.resample: %v", err)
		}
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}
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
	return SaveConfig(DefaultConfig(), configPath)
}
