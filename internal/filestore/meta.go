package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/sweeptrack/internal/tracking"
	"gopkg.in/yaml.v3"
)

const metaFile = "meta.yaml"

type experimentMeta struct {
	ExperimentID     string `yaml:"experiment_id"`
	Name             string `yaml:"name"`
	ArtifactLocation string `yaml:"artifact_location"`
	LifecycleStage   string `yaml:"lifecycle_stage"`
	CreationTime     int64  `yaml:"creation_time"`
}

func (m *experimentMeta) toExperiment() *tracking.Experiment {
	return &tracking.Experiment{
		ID:               m.ExperimentID,
		Name:             m.Name,
		ArtifactLocation: m.ArtifactLocation,
		CreationTime:     time.UnixMilli(m.CreationTime),
	}
}

type runMeta struct {
	RunID          string `yaml:"run_id"`
	RunName        string `yaml:"run_name"`
	ExperimentID   string `yaml:"experiment_id"`
	Status         string `yaml:"status"`
	StartTime      int64  `yaml:"start_time"`
	EndTime        int64  `yaml:"end_time,omitempty"`
	ArtifactURI    string `yaml:"artifact_uri"`
	LifecycleStage string `yaml:"lifecycle_stage"`
}

func (m *runMeta) toRunInfo() tracking.RunInfo {
	info := tracking.RunInfo{
		RunID:        m.RunID,
		ExperimentID: m.ExperimentID,
		RunName:      m.RunName,
		Status:       tracking.RunStatus(m.Status),
		StartTime:    time.UnixMilli(m.StartTime),
		ArtifactURI:  m.ArtifactURI,
	}
	if m.EndTime != 0 {
		info.EndTime = time.UnixMilli(m.EndTime)
	}
	return info
}

// readMeta decodes the meta.yaml inside dir into out.
func readMeta(dir string, out any) error {
	data, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Join(dir, metaFile), err)
	}
	return nil
}

// writeMeta replaces dir/meta.yaml atomically.
func writeMeta(dir string, in any) error {
	data, err := yaml.Marshal(in)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".meta-*.yaml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, metaFile))
}
