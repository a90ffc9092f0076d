package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/sweeptrack/internal/backend"
	"github.com/vk/sweeptrack/internal/config"
	"github.com/vk/sweeptrack/internal/ctxlog"
	"github.com/vk/sweeptrack/internal/tracking"
	"github.com/vk/sweeptrack/internal/workdir"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
	loader config.Loader
}

// NewApp is the constructor for the main application. It returns an App
// with its own isolated logger. loader may be nil in UI mode.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")
	return &App{
		outW:   outW,
		logger: logger,
		config: cfg,
		loader: loader,
	}
}

// Logger returns the application's logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// location resolves the tracking and artifact URIs: explicit values win,
// the rest is derived from the backend kind under base.
func (a *App) location(base string) (backend.Location, error) {
	loc := backend.Location{TrackingURI: a.config.TrackingURI, ArtifactURI: a.config.ArtifactURI}
	if loc.TrackingURI != "" && loc.ArtifactURI != "" {
		return loc, nil
	}
	def, err := backend.Locate(base, backend.Kind(a.config.Backend))
	if err != nil {
		return backend.Location{}, err
	}
	if loc.TrackingURI == "" {
		loc.TrackingURI = def.TrackingURI
	}
	if loc.ArtifactURI == "" {
		loc.ArtifactURI = def.ArtifactURI
	}
	return loc, nil
}

// openClient resolves the base directory and opens the tracking backend.
// The caller closes the returned client's store.
func (a *App) openClient(ctx context.Context) (*tracking.Client, string, error) {
	logger := ctxlog.FromContext(ctx)

	base, err := workdir.Resolve(a.config.BaseDir)
	if err != nil {
		return nil, "", err
	}
	loc, err := a.location(base)
	if err != nil {
		return nil, "", err
	}
	logger.Debug("Tracking backend located.", "base_dir", base, "tracking_uri", loc.TrackingURI, "artifact_uri", loc.ArtifactURI)

	store, err := backend.Open(ctx, loc.TrackingURI)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open tracking backend %s: %w", loc.TrackingURI, err)
	}
	return tracking.NewClient(store, loc.TrackingURI, loc.ArtifactURI), base, nil
}
