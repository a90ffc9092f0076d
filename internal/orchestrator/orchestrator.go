package orchestrator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/vk/sweeptrack/internal/config"
	"github.com/vk/sweeptrack/internal/ctxlog"
	"github.com/vk/sweeptrack/internal/tracking"
	"github.com/vk/sweeptrack/internal/trainer"
	"github.com/vk/sweeptrack/internal/workdir"
)

// Names of the synthetic entries every run carries.
const (
	ParamArgv      = "argv"
	TagOverrides   = "sweep.overrides"
	ConfigArtifact = "config.yaml"
)

// Options configures an Orchestrator.
type Options struct {
	// BaseDir is the absolute base under which outputs/ lives.
	BaseDir string
	// Argv is the invocation command line, logged as the argv param.
	Argv []string
	// LogDirArtifacts uploads the whole output directory every epoch.
	LogDirArtifacts bool
	// Rand seeds the training loop's random metric. Nil uses the global source.
	Rand *rand.Rand
}

// Orchestrator executes jobs against a tracking client.
type Orchestrator struct {
	client *tracking.Client
	opts   Options
}

// Result describes a finished job.
type Result struct {
	ExperimentID string
	RunID        string
	OutputDir    string
	Status       tracking.RunStatus
}

// New creates an orchestrator bound to client.
func New(client *tracking.Client, opts Options) *Orchestrator {
	return &Orchestrator{client: client, opts: opts}
}

// Invoke runs one job. The run is closed on every path; when the job fails
// the returned Result still carries the run's identifiers if a run was
// opened.
func (o *Orchestrator) Invoke(ctx context.Context, resolved *config.Resolved) (*Result, error) {
	train := resolved.Train
	ctx, logger := ctxlog.With(ctx, "experiment", train.ExpName)

	exp, err := o.client.EnsureExperiment(ctx, train.ExpName)
	if err != nil {
		return nil, err
	}

	res := &Result{ExperimentID: exp.ID}
	var active *tracking.ActiveRun
	err = o.client.WithRun(ctx, exp.ID, train.RunName, func(ctx context.Context, run *tracking.ActiveRun) error {
		active = run
		res.RunID = run.ID()
		res.OutputDir = workdir.OutputDir(o.opts.BaseDir, train.ExpName, run.ID())
		logger.Info("Run started.", "run_id", run.ID(), "run_name", train.RunName, "output_dir", res.OutputDir)
		return o.execute(ctx, run, resolved, res.OutputDir)
	})
	if active != nil {
		res.Status = active.Info().Status
	}
	if err != nil {
		return res, fmt.Errorf("job %s failed: %w", strings.Join(resolved.OverrideStrings(), " "), err)
	}
	logger.Info("Run finished.", "run_id", res.RunID, "status", res.Status)
	return res, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *tracking.ActiveRun, resolved *config.Resolved, outDir string) error {
	logger := ctxlog.FromContext(ctx)

	created, err := workdir.Ensure(outDir)
	if err != nil {
		return err
	}
	logger.Debug("Output directory ready.", "path", outDir, "created", created)

	if err := run.LogParams(ctx, resolved.Tree.Flatten()); err != nil {
		return err
	}
	if err := run.LogParam(ctx, ParamArgv, strings.Join(o.opts.Argv, " ")); err != nil {
		return err
	}
	if overrides := resolved.OverrideStrings(); len(overrides) > 0 {
		if err := run.SetTag(ctx, TagOverrides, strings.Join(overrides, " ")); err != nil {
			return err
		}
	}
	if err := run.LogDict(ctx, resolved.Tree.Native(), ConfigArtifact); err != nil {
		return err
	}

	loop := &trainer.Loop{
		Epochs:    resolved.Train.NEpochs,
		OutputDir: outDir,
		LogDir:    o.opts.LogDirArtifacts,
		Rand:      o.opts.Rand,
	}
	return loop.Run(ctx, run)
}
