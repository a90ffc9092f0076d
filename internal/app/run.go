package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/sweeptrack/internal/config"
	"github.com/vk/sweeptrack/internal/ctxlog"
	"github.com/vk/sweeptrack/internal/orchestrator"
	"github.com/vk/sweeptrack/internal/sweep"
	"golang.org/x/sync/errgroup"
)

// Run resolves every job's configuration, opens the tracking backend and
// executes the jobs. Configuration problems surface before the backend is
// touched.
func (a *App) Run(ctx context.Context) error {
	_, err := a.run(ctx)
	return err
}

func (a *App) run(ctx context.Context) ([]*orchestrator.Result, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.loader == nil {
		return nil, errors.New("no configuration loader")
	}
	jobs, err := a.jobs()
	if err != nil {
		return nil, err
	}

	resolved := make([]*config.Resolved, len(jobs))
	for i, job := range jobs {
		if resolved[i], err = a.loader.Resolve(ctx, job); err != nil {
			if len(jobs) > 1 {
				return nil, fmt.Errorf("job #%d: %w", i, err)
			}
			return nil, err
		}
	}
	a.logger.Debug("All job configurations resolved.", "jobs", len(resolved))

	client, base, err := a.openClient(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := client.Store().Close(); err != nil {
			a.logger.Warn("Failed to close tracking store.", "error", err)
		}
	}()

	orch := orchestrator.New(client, orchestrator.Options{
		BaseDir:         base,
		Argv:            a.config.Argv,
		LogDirArtifacts: a.config.LogDirArtifacts,
	})

	if a.config.Multirun {
		a.logger.Info("Launching sweep.", "jobs", len(resolved), "parallel", a.config.Jobs)
	}
	results, err := a.launch(ctx, orch, resolved)
	if err != nil {
		a.logger.Error("Execution failed.", "error", err)
		return results, err
	}
	a.logger.Info("Execution finished.", "runs", len(results))
	return results, nil
}

// jobs turns the override arguments into one override list per job.
func (a *App) jobs() ([][]config.Override, error) {
	params, err := sweep.Parse(a.config.Overrides)
	if err != nil {
		return nil, err
	}
	if a.config.Multirun {
		return sweep.Expand(params), nil
	}
	single, err := sweep.Single(params)
	if err != nil {
		return nil, err
	}
	return [][]config.Override{single}, nil
}

// launch runs the jobs with at most Config.Jobs of them in flight. The first
// failure stops jobs that have not started yet and is returned; results of
// jobs that never ran stay nil.
func (a *App) launch(ctx context.Context, orch *orchestrator.Orchestrator, resolved []*config.Resolved) ([]*orchestrator.Result, error) {
	results := make([]*orchestrator.Result, len(resolved))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(a.config.Jobs, 1))
	for i, job := range resolved {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			jobCtx, logger := ctxlog.With(gctx, "job", i)
			if len(resolved) > 1 {
				logger.Info("Launching job.", "overrides", job.OverrideStrings())
			}
			res, err := orch.Invoke(jobCtx, job)
			results[i] = res
			return err
		})
	}
	return results, g.Wait()
}
