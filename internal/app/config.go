package app

import (
	"errors"
	"fmt"

	"github.com/vk/sweeptrack/internal/backend"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigDir  string // directory holding the HCL config files
	ConfigName string // primary config file, without extension
	Overrides  []string
	Multirun   bool
	Jobs       int // parallel jobs in multirun mode

	BaseDir         string
	Backend         string
	TrackingURI     string
	ArtifactURI     string
	LogDirArtifacts bool

	// Argv is the full invocation, logged on every run.
	Argv []string

	LogFormat string
	LogLevel  string

	// UI serves the tracking API instead of running jobs.
	UI     bool
	UIAddr string
}

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	var errs []error
	if !cfg.UI && cfg.ConfigDir == "" {
		errs = append(errs, errors.New("config directory is required"))
	}
	if !cfg.UI && cfg.ConfigName == "" {
		errs = append(errs, errors.New("config name is required"))
	}
	if cfg.Jobs < 0 {
		errs = append(errs, fmt.Errorf("jobs must be >= 0, got %d", cfg.Jobs))
	}
	switch backend.Kind(cfg.Backend) {
	case "", backend.KindFile, backend.KindSQLite:
	default:
		errs = append(errs, fmt.Errorf("backend must be 'file' or 'sqlite', got %q", cfg.Backend))
	}
	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log level must be one of debug, info, warn, error, got %q", cfg.LogLevel))
	}
	switch cfg.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format must be 'text' or 'json', got %q", cfg.LogFormat))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if cfg.Jobs == 0 {
		cfg.Jobs = 1
	}
	if cfg.UIAddr == "" {
		cfg.UIAddr = "127.0.0.1:5000"
	}
	return &cfg, nil
}
