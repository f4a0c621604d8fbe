package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	defaults "github.com/mcuadros/go-defaults"

	"cardcheck/comparison"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Paths    PathsConfig    `toml:"paths"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
}

// ServerConfig configures the HTTP upload service
type ServerConfig struct {
	Addr           string `toml:"addr" default:":8080"`
	MaxUploadBytes int64  `toml:"max_upload_bytes" default:"16777216"` // 16MB
}

// PathsConfig locates working directories and the reference card
type PathsConfig struct {
	Uploads         string `toml:"uploads" default:"static/uploads"`
	Original        string `toml:"original" default:"static/original"`
	Generated       string `toml:"generated" default:"static/generated"`
	ReferenceSource string `toml:"reference_source" default:"sample_data/image/original.png"`
}

// PipelineConfig sets the canonical size and output file names
type PipelineConfig struct {
	CanonicalWidth  int    `toml:"canonical_width" default:"250"`
	CanonicalHeight int    `toml:"canonical_height" default:"160"`
	OriginalFile    string `toml:"original_file" default:"image_original.jpg"`
	UploadedFile    string `toml:"uploaded_file" default:"image_uploaded.jpg"`
	DiffFile        string `toml:"diff_file" default:"image_diff.jpg"`
	ThreshFile      string `toml:"thresh_file" default:"image_thresh.jpg"`
}

// DatabaseConfig locates the comparison history database
type DatabaseConfig struct {
	Path string `toml:"path" default:"comparisons.db"`
}

// LoggingConfig configures the rotating log file
type LoggingConfig struct {
	File          string `toml:"file" default:"cardcheck.log"`
	Debug         bool   `toml:"debug" default:"false"`
	MaxAgeDays    int    `toml:"max_age_days" default:"7"`
	RotationHours int    `toml:"rotation_hours" default:"24"`
}

// NewDefaultConfig returns a Config populated from the struct defaults
func NewDefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load builds the configuration: defaults, then the TOML file at path (if
// path is non-empty), then CARDCHECK_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Pipeline.CanonicalWidth < 7 || c.Pipeline.CanonicalHeight < 7 {
		return fmt.Errorf("canonical size must be at least 7x7, got %dx%d",
			c.Pipeline.CanonicalWidth, c.Pipeline.CanonicalHeight)
	}

	names := []string{c.Pipeline.OriginalFile, c.Pipeline.UploadedFile, c.Pipeline.DiffFile, c.Pipeline.ThreshFile}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" {
			return fmt.Errorf("output file names must not be empty")
		}
		if filepath.Base(name) != name {
			return fmt.Errorf("output file name %q must not contain a directory", name)
		}
		if seen[name] {
			return fmt.Errorf("output file name %q is used twice", name)
		}
		seen[name] = true
	}

	if c.Server.MaxUploadBytes < 1024 {
		return fmt.Errorf("max_upload_bytes must be at least 1KB, got %d", c.Server.MaxUploadBytes)
	}

	if c.Paths.Uploads == "" || c.Paths.Original == "" || c.Paths.Generated == "" {
		return fmt.Errorf("uploads, original and generated paths are required")
	}

	return nil
}

// PipelineConfig returns the immutable pipeline settings
func (c *Config) PipelineConfig() comparison.Config {
	return comparison.Config{
		CanonicalWidth:  c.Pipeline.CanonicalWidth,
		CanonicalHeight: c.Pipeline.CanonicalHeight,
		OutputFilenames: comparison.OutputFilenames{
			Original: c.Pipeline.OriginalFile,
			Uploaded: c.Pipeline.UploadedFile,
			Diff:     c.Pipeline.DiffFile,
			Thresh:   c.Pipeline.ThreshFile,
		},
	}
}

// LogMaxAge returns the retention of rotated log files
func (c *Config) LogMaxAge() time.Duration {
	return time.Duration(c.Logging.MaxAgeDays) * 24 * time.Hour
}

// LogRotationTime returns the rotation interval of the log file
func (c *Config) LogRotationTime() time.Duration {
	return time.Duration(c.Logging.RotationHours) * time.Hour
}

func (c *Config) applyEnv() error {
	c.Server.Addr = getEnvOrDefault("CARDCHECK_ADDR", c.Server.Addr)
	c.Paths.Uploads = getEnvOrDefault("CARDCHECK_UPLOADS_DIR", c.Paths.Uploads)
	c.Paths.Original = getEnvOrDefault("CARDCHECK_ORIGINAL_DIR", c.Paths.Original)
	c.Paths.Generated = getEnvOrDefault("CARDCHECK_GENERATED_DIR", c.Paths.Generated)
	c.Paths.ReferenceSource = getEnvOrDefault("CARDCHECK_REFERENCE_IMAGE", c.Paths.ReferenceSource)
	c.Database.Path = getEnvOrDefault("CARDCHECK_DB_PATH", c.Database.Path)
	c.Logging.File = getEnvOrDefault("CARDCHECK_LOG_FILE", c.Logging.File)

	var err error
	if c.Server.MaxUploadBytes, err = getEnvAsInt64OrDefault("CARDCHECK_MAX_CONTENT_LENGTH", c.Server.MaxUploadBytes); err != nil {
		return err
	}
	if c.Pipeline.CanonicalWidth, err = getEnvAsIntOrDefault("CARDCHECK_CANONICAL_WIDTH", c.Pipeline.CanonicalWidth); err != nil {
		return err
	}
	if c.Pipeline.CanonicalHeight, err = getEnvAsIntOrDefault("CARDCHECK_CANONICAL_HEIGHT", c.Pipeline.CanonicalHeight); err != nil {
		return err
	}
	if value := os.Getenv("CARDCHECK_DEBUG"); value != "" {
		debug, parseErr := strconv.ParseBool(value)
		if parseErr != nil {
			return fmt.Errorf("CARDCHECK_DEBUG must be a boolean, got %q", value)
		}
		c.Logging.Debug = debug
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue, fmt.Errorf("%s must be an integer, got %q", key, valueStr)
	}
	return value, nil
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) (int64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue, fmt.Errorf("%s must be an integer, got %q", key, valueStr)
	}
	return value, nil
}
