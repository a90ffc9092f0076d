package app

import (
	"context"

	"github.com/vk/sweeptrack/internal/ctxlog"
	"github.com/vk/sweeptrack/internal/server"
)

// Serve opens the tracking backend and serves the read-only tracking API
// on Config.UIAddr until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Serve method started.")

	client, _, err := a.openClient(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Store().Close(); err != nil {
			a.logger.Warn("Failed to close tracking store.", "error", err)
		}
	}()

	a.logger.Info("Serving tracking data.", "tracking_uri", client.TrackingURI())
	return server.New(client.Store(), a.logger).ListenAndServe(ctx, a.config.UIAddr)
}
