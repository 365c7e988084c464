// Package config provides configuration loading and management for eggsplit.
// It handles loading configuration from YAML (or TOML) files and provides default values.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"eggsplit/internal/models"
	"eggsplit/pkg/export"
	"eggsplit/pkg/logging"
	"eggsplit/pkg/pipeline"
)

// Config represents the application configuration loaded from a file
type Config struct {
	// Paths locates the scan and the output/log directories
	Paths struct {
		// InputPath is the tray scan (.nii or .nii.gz)
		InputPath string `yaml:"input_path" toml:"input_path"`

		// OutputDir receives one file per egg
		OutputDir string `yaml:"output_dir" toml:"output_dir"`

		// LogDir receives the rotated pipeline.log
		LogDir string `yaml:"log_dir" toml:"log_dir"`
	} `yaml:"paths" toml:"paths"`

	// Algorithm parameters
	Parameters struct {
		// Sigma is the Gaussian smoothing scale in voxels
		Sigma float64 `yaml:"sigma" toml:"sigma"`

		// ExpectedEggCount is the number of eggs the tray holds
		ExpectedEggCount int `yaml:"expected_egg_count" toml:"expected_egg_count"`

		// RowTolerance is the largest row-axis deviation, in voxels, for two eggs to share a row.
		// It depends on the tray geometry and has no universally safe value.
		RowTolerance float64 `yaml:"row_tolerance" toml:"row_tolerance"`

		// Padding is the margin in voxels kept around each egg when cropping
		Padding int `yaml:"padding" toml:"padding"`
	} `yaml:"parameters" toml:"parameters"`

	// Logging parameters
	Logging struct {
		Level      string `yaml:"level" toml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
		Console    bool   `yaml:"console" toml:"console"`
	} `yaml:"logging" toml:"logging"`

	// Output parameters
	Output struct {
		// Compress writes .nii.gz instead of .nii
		Compress bool `yaml:"compress" toml:"compress"`

		// Previews writes a PNG of the three mid-planes next to each egg
		Previews bool `yaml:"previews" toml:"previews"`

		// Slices writes every depth plane of each egg as an image
		Slices bool `yaml:"slices" toml:"slices"`

		// Manifest writes manifest.yaml describing the run
		Manifest bool `yaml:"manifest" toml:"manifest"`

		// SaveIntermediaryResults determines whether to save snapshots of the pipeline stages
		SaveIntermediaryResults bool `yaml:"save_intermediary_results" toml:"save_intermediary_results"`

		// IntermediaryDir is where the snapshots go
		IntermediaryDir string `yaml:"intermediary_dir" toml:"intermediary_dir"`
	} `yaml:"output" toml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default paths
	cfg.Paths.InputPath = filepath.Join("data", "tray.nii")
	cfg.Paths.OutputDir = filepath.Join("results", "eggs")
	cfg.Paths.LogDir = filepath.Join("results", "logs")

	// Set default algorithm parameters
	params := pipeline.DefaultParams()
	cfg.Parameters.Sigma = params.Sigma
	cfg.Parameters.ExpectedEggCount = params.ExpectedEggCount
	cfg.Parameters.RowTolerance = params.RowTolerance
	cfg.Parameters.Padding = params.Padding

	// Set default logging parameters
	logOpts := logging.DefaultOptions()
	cfg.Logging.Level = logOpts.Level
	cfg.Logging.MaxSizeMB = logOpts.MaxSizeMB
	cfg.Logging.MaxBackups = logOpts.MaxBackups
	cfg.Logging.Console = logOpts.Console

	// Set default output parameters
	cfg.Output.Compress = false
	cfg.Output.Previews = false
	cfg.Output.Slices = false
	cfg.Output.Manifest = true
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = filepath.Join("results", "intermediary")

	return cfg
}

// LoadConfig loads configuration from a YAML file, or TOML when the name ends in .toml.
// Values missing from the file keep their defaults. A missing file is a NotFound error.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.Errorf(models.KindNotFound, "load config", "config file not found: %s", configPath)
		}
		return nil, models.WrapError(models.KindIO, "load config", errors.Wrap(err, "error reading config file"))
	}

	// Parse
	if isTOML(configPath) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, models.WrapError(models.KindValidation, "load config", errors.Wrap(err, "error parsing config file"))
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, models.WrapError(models.KindValidation, "load config", errors.Wrap(err, "error parsing config file"))
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML or TOML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	var data []byte
	if isTOML(configPath) {
		var sb strings.Builder
		if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
			return errors.Wrap(err, "error marshaling config")
		}
		data = []byte(sb.String())
	} else {
		var err error
		if data, err = yaml.Marshal(cfg); err != nil {
			return errors.Wrap(err, "error marshaling config")
		}
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks that every required value is present and in range.
func (c *Config) Validate() error {
	const op = "validate config"
	switch {
	case c.Paths.InputPath == "":
		return models.Errorf(models.KindValidation, op, "paths.input_path is required")
	case c.Paths.OutputDir == "":
		return models.Errorf(models.KindValidation, op, "paths.output_dir is required")
	case c.Parameters.Sigma < 0:
		return models.Errorf(models.KindValidation, op, "parameters.sigma must not be negative, got %g", c.Parameters.Sigma)
	case c.Parameters.ExpectedEggCount <= 0:
		return models.Errorf(models.KindValidation, op, "parameters.expected_egg_count must be positive, got %d", c.Parameters.ExpectedEggCount)
	case c.Parameters.RowTolerance <= 0:
		return models.Errorf(models.KindValidation, op, "parameters.row_tolerance must be positive, got %g", c.Parameters.RowTolerance)
	case c.Parameters.Padding < 0:
		return models.Errorf(models.KindValidation, op, "parameters.padding must not be negative, got %d", c.Parameters.Padding)
	case c.Output.SaveIntermediaryResults && c.Output.IntermediaryDir == "":
		return models.Errorf(models.KindValidation, op, "output.intermediary_dir is required when saving intermediary results")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return models.WrapError(models.KindValidation, op, err)
	}
	return nil
}

// LogOptions converts the logging section into logging.Options.
func (c *Config) LogOptions() logging.Options {
	opts := logging.DefaultOptions()
	opts.Dir = c.Paths.LogDir
	opts.Level = c.Logging.Level
	opts.MaxSizeMB = c.Logging.MaxSizeMB
	opts.MaxBackups = c.Logging.MaxBackups
	opts.Console = c.Logging.Console
	return opts
}

// PipelineParams converts the parameters section into pipeline.Params.
func (c *Config) PipelineParams() *pipeline.Params {
	return &pipeline.Params{
		Sigma:                   c.Parameters.Sigma,
		ExpectedEggCount:        c.Parameters.ExpectedEggCount,
		RowTolerance:            c.Parameters.RowTolerance,
		Padding:                 c.Parameters.Padding,
		SaveIntermediaryResults: c.Output.SaveIntermediaryResults,
		IntermediaryDir:         c.Output.IntermediaryDir,
	}
}

// ExportOptions converts the output section into export.Options.
func (c *Config) ExportOptions() export.Options {
	return export.Options{
		Compress: c.Output.Compress,
		Previews: c.Output.Previews,
		Slices:   c.Output.Slices,
		Manifest: c.Output.Manifest,
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
