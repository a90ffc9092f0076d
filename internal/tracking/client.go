package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vk/sweeptrack/internal/artifact"
	"github.com/vk/sweeptrack/internal/ctxlog"
)

// Client is the explicit tracking context handed to orchestration code.
type Client struct {
	store       Store
	trackingURI string
	artifactURI string
	now         func() time.Time
}

// NewClient binds a store to the URIs it was opened from. artifactURI is the
// root under which new experiments get their artifact location.
func NewClient(store Store, trackingURI, artifactURI string) *Client {
	return &Client{
		store:       store,
		trackingURI: trackingURI,
		artifactURI: strings.TrimSuffix(artifactURI, "/"),
		now:         time.Now,
	}
}

// Store returns the underlying tracking store.
func (c *Client) Store() Store { return c.store }

// TrackingURI returns the URI the store was opened from.
func (c *Client) TrackingURI() string { return c.trackingURI }

// ArtifactURI returns the artifact root for new experiments.
func (c *Client) ArtifactURI() string { return c.artifactURI }

// EnsureExperiment returns the experiment with the given name, creating it
// when it does not exist yet. The artifact location of a new experiment is
// the client's artifact URI joined with the experiment name.
func (c *Client) EnsureExperiment(ctx context.Context, name string) (*Experiment, error) {
	logger := ctxlog.FromContext(ctx)

	exp, err := c.store.GetExperimentByName(ctx, name)
	if err == nil {
		logger.Debug("Experiment found.", "experiment_id", exp.ID)
		return exp, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to look up experiment '%s': %w", name, err)
	}

	location := c.artifactURI + "/" + name
	id, err := c.store.CreateExperiment(ctx, name, location)
	if errors.Is(err, ErrAlreadyExists) {
		// Another process created it between our lookup and create.
		logger.Debug("Experiment created concurrently, re-reading.")
		return c.store.GetExperimentByName(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create experiment '%s': %w", name, err)
	}
	logger.Info("Experiment created.", "experiment_id", id, "artifact_location", location)
	return c.store.GetExperiment(ctx, id)
}

// StartRun opens a new run under the experiment. The returned run is active
// and must be closed with End; prefer WithRun, which guarantees that.
func (c *Client) StartRun(ctx context.Context, experimentID, runName string) (*ActiveRun, error) {
	info, err := c.store.CreateRun(ctx, experimentID, runName, c.now())
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	repo, err := artifact.Open(info.ArtifactURI)
	if err != nil {
		// The run exists but can never store artifacts; close it right away.
		_ = c.store.CloseRun(ctx, info.RunID, StatusFailed, c.now())
		return nil, fmt.Errorf("run %s: %w", info.RunID, err)
	}

	ctxlog.FromContext(ctx).Debug("Run started.", "run_id", info.RunID, "run_name", info.RunName, "artifact_uri", info.ArtifactURI)
	return &ActiveRun{client: c, info: *info, artifacts: repo}, nil
}

// WithRun starts a run, calls fn with it and closes the run on every exit
// path. A nil error closes the run as FINISHED, a cancelled context as KILLED
// and any other error or panic as FAILED. A panic is re-raised after closing.
func (c *Client) WithRun(ctx context.Context, experimentID, runName string, fn func(context.Context, *ActiveRun) error) (err error) {
	run, err := c.StartRun(ctx, experimentID, runName)
	if err != nil {
		return err
	}
	closeCtx := context.WithoutCancel(ctx)
	runCtx, logger := ctxlog.With(ctx, "run_id", run.ID())

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Run panicked, marking it failed.", "panic", r)
			_ = run.End(closeCtx, StatusFailed)
			panic(r)
		}
	}()

	fnErr := fn(runCtx, run)
	if run.Closed() {
		return fnErr
	}

	status := StatusFinished
	switch {
	case fnErr == nil:
	case errors.Is(fnErr, context.Canceled), errors.Is(fnErr, context.DeadlineExceeded):
		status = StatusKilled
	default:
		status = StatusFailed
	}
	if fnErr != nil {
		logger.Warn("Run ended with an error.", "status", status, "error", fnErr)
	}
	return errors.Join(fnErr, run.End(closeCtx, status))
}
