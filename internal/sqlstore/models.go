package sqlstore

import (
	"strconv"
	"time"

	"github.com/vk/sweeptrack/internal/tracking"
)

// experimentRow is one tracked experiment.
type experimentRow struct {
	ID               uint      `gorm:"primarykey"`
	CreatedAt        time.Time `gorm:"not null"`
	Name             string    `gorm:"type:varchar(256);not null;uniqueIndex"`
	ArtifactLocation string    `gorm:"type:varchar(1000)"`
	LifecycleStage   string    `gorm:"type:varchar(32);not null;default:active"`
}

func (experimentRow) TableName() string { return "experiments" }

func (r *experimentRow) toExperiment() *tracking.Experiment {
	return &tracking.Experiment{
		ID:               strconv.FormatUint(uint64(r.ID), 10),
		Name:             r.Name,
		ArtifactLocation: r.ArtifactLocation,
		CreationTime:     r.CreatedAt,
	}
}

// runRow is one execution of an experiment. Times are unix milliseconds.
type runRow struct {
	RunUUID        string `gorm:"column:run_uuid;primaryKey;type:varchar(32)"`
	ExperimentID   uint   `gorm:"not null;index"`
	Name           string `gorm:"type:varchar(250)"`
	Status         string `gorm:"type:varchar(20);not null;index"`
	StartTime      int64  `gorm:"not null"`
	EndTime        *int64
	ArtifactURI    string `gorm:"type:varchar(1000)"`
	LifecycleStage string `gorm:"type:varchar(32);not null;default:active"`
}

func (runRow) TableName() string { return "runs" }

func (r *runRow) toRunInfo() tracking.RunInfo {
	info := tracking.RunInfo{
		RunID:        r.RunUUID,
		ExperimentID: strconv.FormatUint(uint64(r.ExperimentID), 10),
		RunName:      r.Name,
		Status:       tracking.RunStatus(r.Status),
		StartTime:    time.UnixMilli(r.StartTime),
		ArtifactURI:  r.ArtifactURI,
	}
	if r.EndTime != nil {
		info.EndTime = time.UnixMilli(*r.EndTime)
	}
	return info
}

// paramRow is a write-once parameter; the composite primary key enforces it.
type paramRow struct {
	RunUUID string `gorm:"column:run_uuid;primaryKey;type:varchar(32)"`
	Key     string `gorm:"column:key;primaryKey;type:varchar(250)"`
	Value   string `gorm:"type:text"`
}

func (paramRow) TableName() string { return "params" }

// metricRow is one point of a metric series.
type metricRow struct {
	ID        uint    `gorm:"primarykey"`
	RunUUID   string  `gorm:"column:run_uuid;type:varchar(32);not null;index:idx_metrics_run_key"`
	Key       string  `gorm:"column:key;type:varchar(250);not null;index:idx_metrics_run_key"`
	Value     float64 `gorm:"not null"`
	Step      int64   `gorm:"not null;default:0"`
	Timestamp int64   `gorm:"not null"`
}

func (metricRow) TableName() string { return "metrics" }

func (r *metricRow) toMetric() tracking.Metric {
	return tracking.Metric{Key: r.Key, Value: r.Value, Step: r.Step, Timestamp: time.UnixMilli(r.Timestamp)}
}

// tagRow is a mutable key/value label on a run.
type tagRow struct {
	RunUUID string `gorm:"column:run_uuid;primaryKey;type:varchar(32)"`
	Key     string `gorm:"column:key;primaryKey;type:varchar(250)"`
	Value   string `gorm:"type:text"`
}

func (tagRow) TableName() string { return "tags" }
