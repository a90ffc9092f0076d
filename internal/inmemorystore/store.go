package inmemorystore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/vk/sweeptrack/internal/tracking"
)

type runState struct {
	info    tracking.RunInfo
	params  map[string]string
	metrics map[string][]tracking.Metric
	tags    map[string]string
}

// Store is an in-memory implementation of tracking.Store.
type Store struct {
	mu          sync.RWMutex
	experiments map[string]*tracking.Experiment // Key: experiment ID
	byName      map[string]string               // Key: experiment name, Value: experiment ID
	runs        map[string]*runState            // Key: run ID
	nextID      int
}

// New creates a new, empty in-memory tracking store.
func New() *Store {
	return &Store{
		experiments: make(map[string]*tracking.Experiment),
		byName:      make(map[string]string),
		runs:        make(map[string]*runState),
	}
}

// GetExperimentByName implements tracking.Store.
func (s *Store) GetExperimentByName(ctx context.Context, name string) (*tracking.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("experiment '%s': %w", name, tracking.ErrNotFound)
	}
	exp := *s.experiments[id]
	return &exp, nil
}

// GetExperiment implements tracking.Store.
func (s *Store) GetExperiment(ctx context.Context, id string) (*tracking.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exp, ok := s.experiments[id]
	if !ok {
		return nil, fmt.Errorf("experiment id %s: %w", id, tracking.ErrNotFound)
	}
	cp := *exp
	return &cp, nil
}

// CreateExperiment implements tracking.Store.
func (s *Store) CreateExperiment(ctx context.Context, name, artifactLocation string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("experiment name must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[name]; exists {
		return "", fmt.Errorf("experiment '%s': %w", name, tracking.ErrAlreadyExists)
	}
	s.nextID++
	id := strconv.Itoa(s.nextID)
	s.experiments[id] = &tracking.Experiment{
		ID:               id,
		Name:             name,
		ArtifactLocation: artifactLocation,
		CreationTime:     time.Now(),
	}
	s.byName[name] = id
	return id, nil
}

// ListExperiments implements tracking.Store.
func (s *Store) ListExperiments(ctx context.Context) ([]*tracking.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*tracking.Experiment, 0, len(s.experiments))
	for _, exp := range s.experiments {
		cp := *exp
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateRun implements tracking.Store.
func (s *Store) CreateRun(ctx context.Context, experimentID, runName string, startTime time.Time) (*tracking.RunInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.experiments[experimentID]
	if !ok {
		return nil, fmt.Errorf("experiment id %s: %w", experimentID, tracking.ErrNotFound)
	}
	id := tracking.NewRunID()
	state := &runState{
		info: tracking.RunInfo{
			RunID:        id,
			ExperimentID: experimentID,
			RunName:      runName,
			Status:       tracking.StatusRunning,
			StartTime:    startTime,
			ArtifactURI:  tracking.RunArtifactURI(exp.ArtifactLocation, id),
		},
		params:  make(map[string]string),
		metrics: make(map[string][]tracking.Metric),
		tags:    make(map[string]string),
	}
	s.runs[id] = state
	info := state.info
	return &info, nil
}

// GetRun implements tracking.Store.
func (s *Store) GetRun(ctx context.Context, runID string) (*tracking.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, tracking.ErrNotFound)
	}
	run := &tracking.Run{
		Info:    state.info,
		Params:  make(map[string]string, len(state.params)),
		Metrics: make(map[string]tracking.Metric, len(state.metrics)),
		Tags:    make(map[string]string, len(state.tags)),
	}
	for k, v := range state.params {
		run.Params[k] = v
	}
	for k, series := range state.metrics {
		run.Metrics[k] = series[len(series)-1]
	}
	for k, v := range state.tags {
		run.Tags[k] = v
	}
	return run, nil
}

// ListRuns implements tracking.Store.
func (s *Store) ListRuns(ctx context.Context, experimentID string) ([]*tracking.RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.experiments[experimentID]; !ok {
		return nil, fmt.Errorf("experiment id %s: %w", experimentID, tracking.ErrNotFound)
	}
	var out []*tracking.RunInfo
	for _, state := range s.runs {
		if state.info.ExperimentID == experimentID {
			info := state.info
			out = append(out, &info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// activeRun returns the run's state if it exists and is still running.
// Callers must hold the write lock.
func (s *Store) activeRun(runID string) (*runState, error) {
	state, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, tracking.ErrNotFound)
	}
	if state.info.Status.IsTerminal() {
		return nil, fmt.Errorf("run %s is %s: %w", runID, state.info.Status, tracking.ErrRunNotActive)
	}
	return state, nil
}

// CloseRun implements tracking.Store.
func (s *Store) CloseRun(ctx context.Context, runID string, status tracking.RunStatus, endTime time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("status %q does not close a run", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.activeRun(runID)
	if err != nil {
		return err
	}
	state.info.Status = status
	state.info.EndTime = endTime
	return nil
}

// LogParam implements tracking.Store.
func (s *Store) LogParam(ctx context.Context, runID string, param tracking.Param) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.activeRun(runID)
	if err != nil {
		return err
	}
	if _, exists := state.params[param.Key]; exists {
		return fmt.Errorf("param '%s' on run %s: %w", param.Key, runID, tracking.ErrParamOverwrite)
	}
	state.params[param.Key] = param.Value
	return nil
}

// LogMetric implements tracking.Store.
func (s *Store) LogMetric(ctx context.Context, runID string, metric tracking.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.activeRun(runID)
	if err != nil {
		return err
	}
	state.metrics[metric.Key] = append(state.metrics[metric.Key], metric)
	return nil
}

// GetMetricHistory implements tracking.Store.
func (s *Store) GetMetricHistory(ctx context.Context, runID, key string) ([]tracking.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, tracking.ErrNotFound)
	}
	series := state.metrics[key]
	out := make([]tracking.Metric, len(series))
	copy(out, series)
	return out, nil
}

// SetTag implements tracking.Store.
func (s *Store) SetTag(ctx context.Context, runID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.activeRun(runID)
	if err != nil {
		return err
	}
	state.tags[key] = value
	return nil
}

// Close implements tracking.Store. The in-memory store holds no resources.
func (s *Store) Close() error {
	return nil
}

var _ tracking.Store = (*Store)(nil)
