package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/sweeptrack/internal/testutil"
	"github.com/vk/sweeptrack/internal/tracking"
)

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreSuite(t *testing.T) {
	testutil.RunStoreSuite(t, func(t *testing.T) tracking.Store {
		return newTestStore(t, filepath.Join(t.TempDir(), "mlruns.sqlite"))
	})
}

func TestOpenSQLite_RejectsRelativePath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "mlruns.sqlite")
	require.Error(t, err)
}

func TestDataSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "mlruns.sqlite")
	ctx := context.Background()

	s := newTestStore(t, path)
	expID, err := s.CreateExperiment(ctx, "demo", "file:///tmp/mlruns/demo")
	require.NoError(t, err)
	info, err := s.CreateRun(ctx, expID, "trial1", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.LogParam(ctx, info.RunID, tracking.Param{Key: "lr", Value: "0.001"}))
	require.NoError(t, s.CloseRun(ctx, info.RunID, tracking.StatusFinished, time.Now()))
	require.NoError(t, s.Close())

	reopened := newTestStore(t, path)
	exp, err := reopened.GetExperimentByName(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, expID, exp.ID)

	run, err := reopened.GetRun(ctx, info.RunID)
	require.NoError(t, err)
	assert.Equal(t, tracking.StatusFinished, run.Info.Status)
	assert.Equal(t, "0.001", run.Params["lr"])
}

func TestGetExperiment_NonNumericID(t *testing.T) {
	s := newTestStore(t, filepath.Join(t.TempDir(), "mlruns.sqlite"))
	_, err := s.GetExperiment(context.Background(), "abc")
	require.ErrorIs(t, err, tracking.ErrNotFound)
}
