package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/sweeptrack/internal/tracking"
)

// StoreFactory creates a fresh, empty store for one subtest.
type StoreFactory func(t *testing.T) tracking.Store

// RunStoreSuite exercises the behavior every tracking.Store must share.
func RunStoreSuite(t *testing.T, newStore StoreFactory) {
	t.Helper()

	t.Run("experiment get-or-create", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetExperimentByName(ctx, "demo")
		require.ErrorIs(t, err, tracking.ErrNotFound)

		id, err := s.CreateExperiment(ctx, "demo", "file:///tmp/mlruns/demo")
		require.NoError(t, err)
		require.NotEmpty(t, id)

		_, err = s.CreateExperiment(ctx, "demo", "file:///tmp/mlruns/demo")
		require.ErrorIs(t, err, tracking.ErrAlreadyExists)

		exp, err := s.GetExperimentByName(ctx, "demo")
		require.NoError(t, err)
		assert.Equal(t, id, exp.ID)
		assert.Equal(t, "demo", exp.Name)
		assert.Equal(t, "file:///tmp/mlruns/demo", exp.ArtifactLocation)

		byID, err := s.GetExperiment(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "demo", byID.Name)

		exps, err := s.ListExperiments(ctx)
		require.NoError(t, err)
		require.Len(t, exps, 1)
	})

	t.Run("run lifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		expID := mustExperiment(t, s, "lifecycle")

		start := time.Now()
		info, err := s.CreateRun(ctx, expID, "trial1", start)
		require.NoError(t, err)
		assert.Len(t, info.RunID, 32)
		assert.Equal(t, tracking.StatusRunning, info.Status)
		assert.Equal(t, "trial1", info.RunName)
		assert.Equal(t, "file:///tmp/mlruns/lifecycle/"+info.RunID+"/artifacts", info.ArtifactURI)

		other, err := s.CreateRun(ctx, expID, "trial1", start)
		require.NoError(t, err)
		assert.NotEqual(t, info.RunID, other.RunID, "run ids must be unique even when names collide")

		require.NoError(t, s.CloseRun(ctx, info.RunID, tracking.StatusFinished, time.Now()))
		run, err := s.GetRun(ctx, info.RunID)
		require.NoError(t, err)
		assert.Equal(t, tracking.StatusFinished, run.Info.Status)
		assert.False(t, run.Info.EndTime.IsZero())

		err = s.CloseRun(ctx, info.RunID, tracking.StatusFailed, time.Now())
		require.ErrorIs(t, err, tracking.ErrRunNotActive)
		err = s.LogParam(ctx, info.RunID, tracking.Param{Key: "late", Value: "1"})
		require.ErrorIs(t, err, tracking.ErrRunNotActive)
		err = s.LogMetric(ctx, info.RunID, tracking.Metric{Key: "late", Value: 1, Timestamp: time.Now()})
		require.ErrorIs(t, err, tracking.ErrRunNotActive)

		runs, err := s.ListRuns(ctx, expID)
		require.NoError(t, err)
		assert.Len(t, runs, 2)
	})

	t.Run("unknown ids", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetRun(ctx, "0123456789abcdef0123456789abcdef")
		require.ErrorIs(t, err, tracking.ErrNotFound)
		_, err = s.GetExperiment(ctx, "424242")
		require.ErrorIs(t, err, tracking.ErrNotFound)
		_, err = s.CreateRun(ctx, "424242", "", time.Now())
		require.ErrorIs(t, err, tracking.ErrNotFound)
	})

	t.Run("params are write-once", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		runID := mustRun(t, s, "params")

		require.NoError(t, s.LogParam(ctx, runID, tracking.Param{Key: "lr", Value: "0.001"}))
		require.NoError(t, s.LogParam(ctx, runID, tracking.Param{Key: "batch_size", Value: "8"}))

		err := s.LogParam(ctx, runID, tracking.Param{Key: "lr", Value: "0.001"})
		require.ErrorIs(t, err, tracking.ErrParamOverwrite)
		err = s.LogParam(ctx, runID, tracking.Param{Key: "lr", Value: "0.1"})
		require.ErrorIs(t, err, tracking.ErrParamOverwrite)

		require.NoError(t, s.LogParam(ctx, runID, tracking.Param{Key: "runname", Value: ""}))

		run, err := s.GetRun(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"lr": "0.001", "batch_size": "8", "runname": ""}, run.Params)
	})

	t.Run("metrics are a time series", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		runID := mustRun(t, s, "metrics")

		now := time.Now()
		require.NoError(t, s.LogMetric(ctx, runID, tracking.Metric{Key: "acc", Value: 0.5, Step: 0, Timestamp: now}))
		require.NoError(t, s.LogMetric(ctx, runID, tracking.Metric{Key: "acc", Value: 0.75, Step: 1, Timestamp: now}))
		require.NoError(t, s.LogMetric(ctx, runID, tracking.Metric{Key: "loss", Value: 2, Step: 0, Timestamp: now}))

		history, err := s.GetMetricHistory(ctx, runID, "acc")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, int64(0), history[0].Step)
		assert.Equal(t, 0.5, history[0].Value)
		assert.Equal(t, int64(1), history[1].Step)
		assert.Equal(t, 0.75, history[1].Value)

		run, err := s.GetRun(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, 0.75, run.Metrics["acc"].Value)
		assert.Equal(t, 2.0, run.Metrics["loss"].Value)

		empty, err := s.GetMetricHistory(ctx, runID, "missing")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("tags are mutable", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		runID := mustRun(t, s, "tags")

		require.NoError(t, s.SetTag(ctx, runID, "note", "first"))
		require.NoError(t, s.SetTag(ctx, runID, "note", "second"))

		run, err := s.GetRun(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, "second", run.Tags["note"])
	})

	t.Run("concurrent param logging keeps one winner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		runID := mustRun(t, s, "race")

		const writers = 16
		var wins atomic.Int32
		var wg sync.WaitGroup
		wg.Add(writers)
		for i := 0; i < writers; i++ {
			go func(i int) {
				defer wg.Done()
				err := s.LogParam(ctx, runID, tracking.Param{Key: "seed", Value: fmt.Sprint(i)})
				if err == nil {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}

func mustExperiment(t *testing.T, s tracking.Store, name string) string {
	t.Helper()
	id, err := s.CreateExperiment(context.Background(), name, "file:///tmp/mlruns/"+name)
	require.NoError(t, err)
	return id
}

func mustRun(t *testing.T, s tracking.Store, experiment string) string {
	t.Helper()
	expID := mustExperiment(t, s, experiment)
	info, err := s.CreateRun(context.Background(), expID, "", time.Now())
	require.NoError(t, err)
	return info.RunID
}
