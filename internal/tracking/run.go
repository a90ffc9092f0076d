package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"sync"

	"github.com/vk/sweeptrack/internal/artifact"
	"github.com/vk/sweeptrack/internal/ctxlog"
	"gopkg.in/yaml.v3"
)

// ActiveRun is a handle on an open run. It is safe for concurrent use.
type ActiveRun struct {
	client    *Client
	artifacts artifact.Repository

	mu     sync.Mutex
	info   RunInfo
	closed bool
}

// ID returns the backend-assigned run identifier.
func (r *ActiveRun) ID() string { return r.info.RunID }

// Info returns a snapshot of the run metadata.
func (r *ActiveRun) Info() RunInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info
}

// Closed reports whether End has been called successfully.
func (r *ActiveRun) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *ActiveRun) checkActive() error {
	if r.Closed() {
		return fmt.Errorf("run %s: %w", r.info.RunID, ErrRunNotActive)
	}
	return nil
}

// LogParam logs a single write-once parameter.
func (r *ActiveRun) LogParam(ctx context.Context, key, value string) error {
	if err := r.checkActive(); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := r.client.store.LogParam(ctx, r.info.RunID, Param{Key: key, Value: value}); err != nil {
		return fmt.Errorf("failed to log param '%s': %w", key, err)
	}
	return nil
}

// LogParams logs every entry of params in key order, stopping at the first
// failure.
func (r *ActiveRun) LogParams(ctx context.Context, params map[string]string) error {
	for _, key := range sortedKeys(params) {
		if err := r.LogParam(ctx, key, params[key]); err != nil {
			return err
		}
	}
	ctxlog.FromContext(ctx).Debug("Params logged.", "count", len(params))
	return nil
}

// LogMetric appends one point to a metric series.
func (r *ActiveRun) LogMetric(ctx context.Context, key string, value float64, step int64) error {
	if err := r.checkActive(); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	m := Metric{Key: key, Value: value, Step: step, Timestamp: r.client.now()}
	if err := r.client.store.LogMetric(ctx, r.info.RunID, m); err != nil {
		return fmt.Errorf("failed to log metric '%s': %w", key, err)
	}
	return nil
}

// LogMetrics logs every metric at the same step.
func (r *ActiveRun) LogMetrics(ctx context.Context, metrics map[string]float64, step int64) error {
	for _, key := range sortedKeys(metrics) {
		if err := r.LogMetric(ctx, key, metrics[key], step); err != nil {
			return err
		}
	}
	return nil
}

// SetTag sets a mutable tag on the run.
func (r *ActiveRun) SetTag(ctx context.Context, key, value string) error {
	if err := r.checkActive(); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	return r.client.store.SetTag(ctx, r.info.RunID, key, value)
}

// LogArtifact copies a local file into the run's artifacts under artifactDir.
func (r *ActiveRun) LogArtifact(ctx context.Context, localPath, artifactDir string) error {
	if err := r.checkActive(); err != nil {
		return err
	}
	if err := r.artifacts.LogFile(ctx, localPath, artifactDir); err != nil {
		return fmt.Errorf("failed to log artifact: %w", err)
	}
	return nil
}

// LogArtifacts copies the contents of a local directory into the run's
// artifacts under artifactDir.
func (r *ActiveRun) LogArtifacts(ctx context.Context, localDir, artifactDir string) error {
	if err := r.checkActive(); err != nil {
		return err
	}
	if err := r.artifacts.LogDir(ctx, localDir, artifactDir); err != nil {
		return fmt.Errorf("failed to log artifacts: %w", err)
	}
	return nil
}

// LogFigure renders fig and stores it as artifactFile.
func (r *ActiveRun) LogFigure(ctx context.Context, fig io.WriterTo, artifactFile string) error {
	if err := r.checkActive(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := fig.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to render figure '%s': %w", artifactFile, err)
	}
	return r.artifacts.Put(ctx, artifactFile, &buf)
}

// LogDict serializes v and stores it as artifactFile. Files ending in .json
// are written as JSON, everything else as YAML.
func (r *ActiveRun) LogDict(ctx context.Context, v any, artifactFile string) error {
	if err := r.checkActive(); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if path.Ext(artifactFile) == ".json" {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = yaml.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("failed to serialize '%s': %w", artifactFile, err)
	}
	return r.artifacts.Put(ctx, artifactFile, bytes.NewReader(data))
}

// ListArtifacts lists the run's artifacts under dir.
func (r *ActiveRun) ListArtifacts(ctx context.Context, dir string) ([]artifact.FileInfo, error) {
	return r.artifacts.List(ctx, dir)
}

// End closes the run with a terminal status. Closing twice fails with
// ErrRunNotActive.
func (r *ActiveRun) End(ctx context.Context, status RunStatus) error {
	if !status.IsTerminal() {
		return fmt.Errorf("cannot end run with non-terminal status %q", status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("run %s: %w", r.info.RunID, ErrRunNotActive)
	}

	end := r.client.now()
	if err := r.client.store.CloseRun(ctx, r.info.RunID, status, end); err != nil {
		return fmt.Errorf("failed to close run %s: %w", r.info.RunID, err)
	}
	r.closed = true
	r.info.Status = status
	r.info.EndTime = end
	ctxlog.FromContext(ctx).Debug("Run closed.", "run_id", r.info.RunID, "status", status)
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
