package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/sweeptrack/internal/inmemorystore"
	"github.com/vk/sweeptrack/internal/testutil"
	"github.com/vk/sweeptrack/internal/tracking"
)

type fixture struct {
	srv   *Server
	expID string
	runID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := inmemorystore.New()
	root := "file://" + filepath.ToSlash(filepath.Join(t.TempDir(), "mlruns"))
	client := tracking.NewClient(store, "memory://", root)

	exp, err := client.EnsureExperiment(ctx, "demo")
	require.NoError(t, err)

	var runID string
	err = client.WithRun(ctx, exp.ID, "trial1", func(ctx context.Context, run *tracking.ActiveRun) error {
		runID = run.ID()
		require.NoError(t, run.LogParam(ctx, "lr", "0.001"))
		for step := range int64(3) {
			require.NoError(t, run.LogMetric(ctx, "acc", float64(step)/3, step))
		}
		return run.LogFigure(ctx, bytes.NewBufferString("png"), "00.png")
	})
	require.NoError(t, err)

	return &fixture{srv: New(store, testutil.NewLogger(&testutil.SafeBuffer{})), expID: exp.ID, runID: runID}
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	f.srv.Handler().ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK\n", rec.Body.String())
}

func TestServer_Experiments(t *testing.T) {
	f := newFixture(t)

	var list struct {
		Experiments []tracking.Experiment `json:"experiments"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/experiments", &list))
	require.Len(t, list.Experiments, 1)
	assert.Equal(t, "demo", list.Experiments[0].Name)

	var one struct {
		Experiment tracking.Experiment `json:"experiment"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/experiments/"+f.expID, &one))
	assert.Equal(t, f.expID, one.Experiment.ID)

	var runs struct {
		Runs []tracking.RunInfo `json:"runs"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/experiments/"+f.expID+"/runs?status=FINISHED", &runs))
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, "trial1", runs.Runs[0].RunName)

	require.Equal(t, http.StatusOK, f.get(t, "/api/experiments/"+f.expID+"/runs?status=RUNNING", &runs))
	assert.Empty(t, runs.Runs)
}

func TestServer_Runs(t *testing.T) {
	f := newFixture(t)

	var run struct {
		Run tracking.Run `json:"run"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/runs/"+f.runID, &run))
	assert.Equal(t, tracking.StatusFinished, run.Run.Info.Status)
	assert.Equal(t, "0.001", run.Run.Params["lr"])

	var history struct {
		Metrics []tracking.Metric `json:"metrics"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/runs/"+f.runID+"/metrics/acc", &history))
	require.Len(t, history.Metrics, 3)
	assert.Equal(t, int64(2), history.Metrics[2].Step)

	var artifacts struct {
		Files []struct {
			Path string `json:"path"`
		} `json:"files"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/runs/"+f.runID+"/artifacts", &artifacts))
	require.Len(t, artifacts.Files, 1)
	assert.Equal(t, "00.png", artifacts.Files[0].Path)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/runs/"+f.runID+"/artifacts?path=../..", nil))
}

func TestServer_NotFound(t *testing.T) {
	f := newFixture(t)
	testCases := []string{
		"/api/experiments/999",
		"/api/runs/0123456789abcdef0123456789abcdef",
		"/api/runs/0123456789abcdef0123456789abcdef/metrics/acc",
	}
	for _, path := range testCases {
		t.Run(path, func(t *testing.T) {
			var body struct {
				Error string `json:"error"`
			}
			assert.Equal(t, http.StatusNotFound, f.get(t, path, &body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestServer_GracefulShutdown(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}
