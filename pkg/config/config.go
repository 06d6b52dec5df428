// Package config provides configuration loading and management for pdbtomrc.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file looked up in the working directory
// when no -config flag is given.
const DefaultPath = "pdbtomrc.yaml"

// Config represents the application configuration loaded from YAML
type Config struct {
	// External programs invoked by the pipeline
	Tools struct {
		// ModelToMap converts an atomic model into a density map
		ModelToMap string `yaml:"modelToMap"`

		// ImageHandler shifts and re-boxes density maps
		ImageHandler string `yaml:"imageHandler"`
	} `yaml:"tools"`

	// Processing parameters
	Processing struct {
		// Resolution is the resolution cutoff in Ångström handed to the
		// model-to-map converter
		Resolution float64 `yaml:"resolution"`

		// IntermediateMap is the file written by the model-to-map step
		IntermediateMap string `yaml:"intermediateMap"`

		// ShiftedMap is the file written by the shift step
		ShiftedMap string `yaml:"shiftedMap"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Verbose echoes every command line before it runs
		Verbose bool `yaml:"verbose"`

		// Strict stops at the first failed step and keeps intermediates
		Strict bool `yaml:"strict"`

		// Summarize reads the final map back and prints its statistics
		Summarize bool `yaml:"summarize"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Tools.ModelToMap = "e2pdb2mrc.py"
	cfg.Tools.ImageHandler = "relion_image_handler"

	cfg.Processing.Resolution = 10
	cfg.Processing.IntermediateMap = "intermediate.mrc"
	cfg.Processing.ShiftedMap = "intermediate2.mrc"

	cfg.Output.Verbose = false
	cfg.Output.Strict = false
	cfg.Output.Summarize = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

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

// Validate checks that the fields the pipeline cannot run without are set
func (c *Config) Validate() error {
	switch {
	case c.Tools.ModelToMap == "":
		return fmt.Errorf("tools.modelToMap must not be empty")
	case c.Tools.ImageHandler == "":
		return fmt.Errorf("tools.imageHandler must not be empty")
	case c.Processing.IntermediateMap == "" || c.Processing.ShiftedMap == "":
		return fmt.Errorf("intermediate file names must not be empty")
	case c.Processing.IntermediateMap == c.Processing.ShiftedMap:
		return fmt.Errorf("intermediateMap and shiftedMap must differ")
	}
	return nil
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
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
