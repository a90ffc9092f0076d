package tracking

import (
	"context"
	"time"
)

// Store is the interface for a tracking backend. Implementations must be safe
// for concurrent use by multiple goroutines; cross-process safety is whatever
// the underlying medium provides.
type Store interface {
	// GetExperimentByName returns ErrNotFound when no experiment has the name.
	GetExperimentByName(ctx context.Context, name string) (*Experiment, error)
	GetExperiment(ctx context.Context, id string) (*Experiment, error)
	// CreateExperiment returns the new experiment's id, or ErrAlreadyExists.
	CreateExperiment(ctx context.Context, name, artifactLocation string) (string, error)
	ListExperiments(ctx context.Context) ([]*Experiment, error)

	// CreateRun allocates a unique run id and records the run as RUNNING.
	CreateRun(ctx context.Context, experimentID, runName string, startTime time.Time) (*RunInfo, error)
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, experimentID string) ([]*RunInfo, error)
	// CloseRun moves an active run into a terminal status.
	CloseRun(ctx context.Context, runID string, status RunStatus, endTime time.Time) error

	// LogParam stores a write-once parameter; a repeated key is ErrParamOverwrite.
	LogParam(ctx context.Context, runID string, param Param) error
	// LogMetric appends a point to the metric's time series.
	LogMetric(ctx context.Context, runID string, metric Metric) error
	GetMetricHistory(ctx context.Context, runID, key string) ([]Metric, error)
	SetTag(ctx context.Context, runID, key, value string) error

	Close() error
}
