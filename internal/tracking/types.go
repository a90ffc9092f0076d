package tracking

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle status of a run as recorded by a store.
type RunStatus string

const (
	StatusRunning  RunStatus = "RUNNING"
	StatusFinished RunStatus = "FINISHED"
	StatusFailed   RunStatus = "FAILED"
	StatusKilled   RunStatus = "KILLED"
)

// IsTerminal reports whether the status closes a run.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusKilled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known statuses.
func (s RunStatus) Valid() bool {
	return s == StatusRunning || s.IsTerminal()
}

// Experiment is a named, persistent grouping of runs.
type Experiment struct {
	ID               string    `json:"experiment_id" yaml:"experiment_id"`
	Name             string    `json:"name" yaml:"name"`
	ArtifactLocation string    `json:"artifact_location" yaml:"artifact_location"`
	CreationTime     time.Time `json:"creation_time" yaml:"creation_time"`
}

// RunInfo is the metadata of a single run.
type RunInfo struct {
	RunID        string    `json:"run_id" yaml:"run_id"`
	ExperimentID string    `json:"experiment_id" yaml:"experiment_id"`
	RunName      string    `json:"run_name" yaml:"run_name"`
	Status       RunStatus `json:"status" yaml:"status"`
	StartTime    time.Time `json:"start_time" yaml:"start_time"`
	EndTime      time.Time `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	ArtifactURI  string    `json:"artifact_uri" yaml:"artifact_uri"`
}

// Param is a single write-once key/value pair logged on a run.
type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Metric is one point of a metric time series.
type Metric struct {
	Key       string    `json:"key"`
	Value     float64   `json:"value"`
	Step      int64     `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}

// Run bundles a run's metadata with everything logged on it. Metrics holds
// the latest point per key; use Store.GetMetricHistory for full series.
type Run struct {
	Info    RunInfo           `json:"info"`
	Params  map[string]string `json:"params"`
	Metrics map[string]Metric `json:"metrics"`
	Tags    map[string]string `json:"tags"`
}

const maxKeyLength = 250

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_\-. /]+$`)

// ValidateKey checks that a parameter, metric or tag key can be stored by
// every backend. File-based stores map keys to paths, so absolute paths and
// parent references are rejected.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	case len(key) > maxKeyLength:
		return fmt.Errorf("%w: key %q longer than %d characters", ErrInvalidKey, key, maxKeyLength)
	case !keyPattern.MatchString(key):
		return fmt.Errorf("%w: key %q contains unsupported characters", ErrInvalidKey, key)
	case strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/"):
		return fmt.Errorf("%w: key %q must not start or end with '/'", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "." || part == ".." || part == "" {
			return fmt.Errorf("%w: key %q contains an invalid path segment", ErrInvalidKey, key)
		}
	}
	return nil
}

// NewRunID returns a fresh run identifier: a random UUID in 32 hex digits.
func NewRunID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// RunArtifactURI returns where a run stores its artifacts given the artifact
// location of its experiment.
func RunArtifactURI(experimentLocation, runID string) string {
	return strings.TrimSuffix(experimentLocation, "/") + "/" + runID + "/artifacts"
}
