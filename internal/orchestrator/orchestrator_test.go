package orchestrator

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/sweeptrack/internal/artifact"
	"github.com/vk/sweeptrack/internal/backend"
	"github.com/vk/sweeptrack/internal/config"
	"github.com/vk/sweeptrack/internal/inmemorystore"
	"github.com/vk/sweeptrack/internal/tracking"
	"github.com/zclconf/go-cty/cty"
)

// resolve builds a job from the demo configuration plus raw overrides.
func resolve(t *testing.T, args ...string) *config.Resolved {
	t.Helper()
	tree, err := config.NewTree(cty.ObjectVal(map[string]cty.Value{
		"expname":    cty.StringVal("demo"),
		"runname":    cty.StringVal(""),
		"n_epochs":   cty.NumberIntVal(1),
		"lr":         cty.NumberFloatVal(0.01),
		"batch_size": cty.NumberIntVal(4),
	}))
	require.NoError(t, err)

	var overrides []config.Override
	for _, a := range args {
		o, err := config.ParseOverride(a)
		require.NoError(t, err)
		tree, err = tree.With(o.Key, config.ParseValue(o.Value))
		require.NoError(t, err)
		overrides = append(overrides, o)
	}
	train, err := config.DecodeTrain(tree)
	require.NoError(t, err)
	return &config.Resolved{Tree: tree, Train: train, Overrides: overrides}
}

type harness struct {
	base   string
	client *tracking.Client
	orch   *Orchestrator
}

func newFileHarness(t *testing.T) *harness {
	t.Helper()
	base := t.TempDir()
	loc, err := backend.Locate(base, backend.KindFile)
	require.NoError(t, err)
	store, err := backend.Open(context.Background(), loc.TrackingURI)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	client := tracking.NewClient(store, loc.TrackingURI, loc.ArtifactURI)
	orch := New(client, Options{
		BaseDir: base,
		Argv:    []string{"sweeptrack", "expname=demo"},
		Rand:    rand.New(rand.NewPCG(7, 7)),
	})
	return &harness{base: base, client: client, orch: orch}
}

func TestInvoke_EndToEnd(t *testing.T) {
	h := newFileHarness(t)
	ctx := context.Background()
	job := resolve(t, "expname=demo", "runname=trial1", "n_epochs=3", "lr=0.001", "batch_size=8")

	res, err := h.orch.Invoke(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, tracking.StatusFinished, res.Status)
	assert.Equal(t, filepath.Join(h.base, "outputs", "demo", res.RunID), res.OutputDir)

	store := h.client.Store()
	exps, err := store.ListExperiments(ctx)
	require.NoError(t, err)
	require.Len(t, exps, 1)
	assert.Equal(t, "demo", exps[0].Name)

	run, err := store.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "trial1", run.Info.RunName)
	assert.Equal(t, tracking.StatusFinished, run.Info.Status)
	assert.Equal(t, "0.001", run.Params["lr"])
	assert.Equal(t, "8", run.Params["batch_size"])
	assert.Equal(t, "sweeptrack expname=demo", run.Params[ParamArgv])
	assert.Contains(t, run.Tags[TagOverrides], "runname=trial1")

	history, err := store.GetMetricHistory(ctx, res.RunID, "acc")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, want := range []float64{0, 0.333, 0.667} {
		assert.Equal(t, int64(i), history[i].Step)
		assert.InDelta(t, want, history[i].Value, 1e-3)
	}

	for _, name := range []string{"00.csv", "01.csv", "02.csv"} {
		assert.FileExists(t, filepath.Join(res.OutputDir, name))
	}

	root, err := artifact.LocalPath(run.Info.ArtifactURI)
	require.NoError(t, err)
	for _, name := range []string{"00.csv", "02.csv", "00.png", "02.png", ConfigArtifact} {
		assert.FileExists(t, filepath.Join(root, name))
	}
}

func TestInvoke_ZeroEpochs(t *testing.T) {
	h := newFileHarness(t)
	ctx := context.Background()

	res, err := h.orch.Invoke(ctx, resolve(t, "n_epochs=0"))
	require.NoError(t, err)
	assert.Equal(t, tracking.StatusFinished, res.Status)

	history, err := h.client.Store().GetMetricHistory(ctx, res.RunID, "acc")
	require.NoError(t, err)
	assert.Empty(t, history)

	entries, err := os.ReadDir(res.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInvoke_SweepSharesExperiment(t *testing.T) {
	h := newFileHarness(t)
	ctx := context.Background()

	first, err := h.orch.Invoke(ctx, resolve(t, "lr=1e-4"))
	require.NoError(t, err)
	second, err := h.orch.Invoke(ctx, resolve(t, "lr=5e-5"))
	require.NoError(t, err)

	assert.Equal(t, first.ExperimentID, second.ExperimentID)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.NotEqual(t, first.OutputDir, second.OutputDir)

	exps, err := h.client.Store().ListExperiments(ctx)
	require.NoError(t, err)
	assert.Len(t, exps, 1)

	for run, lr := range map[string]string{first.RunID: "0.0001", second.RunID: "5e-05"} {
		got, err := h.client.Store().GetRun(ctx, run)
		require.NoError(t, err)
		assert.Equal(t, lr, got.Params["lr"])
		assert.Len(t, got.Params, 6, "five config keys plus argv")
	}
}

func TestInvoke_CancelledRunIsKilled(t *testing.T) {
	h := newFileHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.orch.Invoke(ctx, resolve(t, "n_epochs=2"))
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, res)
	assert.Equal(t, tracking.StatusKilled, res.Status)
}

func TestInvoke_ParamCollisionFailsRun(t *testing.T) {
	store := inmemorystore.New()
	base := t.TempDir()
	client := tracking.NewClient(store, "memory://", "file://"+filepath.ToSlash(filepath.Join(base, "mlruns")))
	orch := New(client, Options{BaseDir: base, Argv: []string{"sweeptrack"}})

	job := resolve(t)
	tree, err := job.Tree.With(ParamArgv, cty.StringVal("from config"))
	require.NoError(t, err)
	job.Tree = tree

	res, err := orch.Invoke(context.Background(), job)
	require.ErrorIs(t, err, tracking.ErrParamOverwrite)
	assert.Equal(t, tracking.StatusFailed, res.Status)

	run, err := store.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, tracking.StatusFailed, run.Info.Status)
}
