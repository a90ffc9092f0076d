package filestore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vk/sweeptrack/internal/ctxlog"
	"github.com/vk/sweeptrack/internal/tracking"
)

const (
	namesDir   = ".names"
	paramsDir  = "params"
	metricsDir = "metrics"
	tagsDir    = "tags"

	stageActive = "active"
)

// Store is a tracking.Store persisted under a root directory.
type Store struct {
	root string

	mu       sync.Mutex
	runIndex sync.Map // Key: run ID, Value: experiment ID
}

// New opens (creating if needed) a file store rooted at root.
func New(ctx context.Context, root string) (*Store, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("file store root %q must be absolute", root)
	}
	if err := os.MkdirAll(filepath.Join(root, namesDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create file store at '%s': %w", root, err)
	}
	ctxlog.FromContext(ctx).Debug("File store opened.", "root", root)
	return &Store{root: root}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

func (s *Store) experimentDir(id string) string {
	return filepath.Join(s.root, id)
}

func (s *Store) nameFile(name string) string {
	return filepath.Join(s.root, namesDir, url.PathEscape(name))
}

// GetExperimentByName implements tracking.Store.
func (s *Store) GetExperimentByName(ctx context.Context, name string) (*tracking.Experiment, error) {
	data, err := os.ReadFile(s.nameFile(name))
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(data) == 0) {
		return nil, fmt.Errorf("experiment '%s': %w", name, tracking.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s.GetExperiment(ctx, strings.TrimSpace(string(data)))
}

// GetExperiment implements tracking.Store.
func (s *Store) GetExperiment(ctx context.Context, id string) (*tracking.Experiment, error) {
	if !isExperimentID(id) {
		return nil, fmt.Errorf("experiment id %s: %w", id, tracking.ErrNotFound)
	}
	var meta experimentMeta
	if err := readMeta(s.experimentDir(id), &meta); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("experiment id %s: %w", id, tracking.ErrNotFound)
		}
		return nil, err
	}
	return meta.toExperiment(), nil
}

// CreateExperiment implements tracking.Store. The id directory is allocated
// first, then the name is claimed; losing the name claim rolls the directory
// back and reports ErrAlreadyExists.
func (s *Store) CreateExperiment(ctx context.Context, name, artifactLocation string) (string, error) {
	if name == "" {
		return "", errors.New("experiment name must not be empty")
	}
	if _, err := os.Stat(s.nameFile(name)); err == nil {
		return "", fmt.Errorf("experiment '%s': %w", name, tracking.ErrAlreadyExists)
	}

	id, err := s.allocateExperimentDir()
	if err != nil {
		return "", err
	}
	dir := s.experimentDir(id)
	meta := experimentMeta{
		ExperimentID:     id,
		Name:             name,
		ArtifactLocation: artifactLocation,
		LifecycleStage:   stageActive,
		CreationTime:     time.Now().UnixMilli(),
	}
	if err := writeMeta(dir, &meta); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("failed to write experiment meta: %w", err)
	}

	claimed, err := writeExclusive(s.nameFile(name), id)
	if err != nil || !claimed {
		os.RemoveAll(dir)
		if err != nil {
			return "", fmt.Errorf("failed to claim experiment name '%s': %w", name, err)
		}
		return "", fmt.Errorf("experiment '%s': %w", name, tracking.ErrAlreadyExists)
	}
	ctxlog.FromContext(ctx).Debug("Experiment directory created.", "experiment", name, "dir", dir)
	return id, nil
}

// allocateExperimentDir creates the next free numeric experiment directory.
func (s *Store) allocateExperimentDir() (string, error) {
	ids, err := s.experimentIDs()
	if err != nil {
		return "", err
	}
	next := 1
	if len(ids) > 0 {
		next = ids[len(ids)-1] + 1
	}
	for attempt := 0; attempt < 100; attempt++ {
		id := strconv.Itoa(next + attempt)
		err := os.Mkdir(s.experimentDir(id), 0o755)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("failed to create experiment directory: %w", err)
		}
	}
	return "", errors.New("failed to allocate an experiment id after 100 attempts")
}

// experimentIDs lists the numeric experiment directories in ascending order.
func (s *Store) experimentIDs() ([]int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var ids []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(e.Name())
		if err != nil || !hasMeta(filepath.Join(s.root, e.Name())) {
			continue
		}
		ids = append(ids, n)
	}
	sort.Ints(ids)
	return ids, nil
}

// ListExperiments implements tracking.Store.
func (s *Store) ListExperiments(ctx context.Context) ([]*tracking.Experiment, error) {
	ids, err := s.experimentIDs()
	if err != nil {
		return nil, err
	}
	out := make([]*tracking.Experiment, 0, len(ids))
	for _, id := range ids {
		exp, err := s.GetExperiment(ctx, strconv.Itoa(id))
		if errors.Is(err, tracking.ErrNotFound) {
			continue // allocated but not yet written
		}
		if err != nil {
			return nil, err
		}
		out = append(out, exp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateRun implements tracking.Store.
func (s *Store) CreateRun(ctx context.Context, experimentID, runName string, startTime time.Time) (*tracking.RunInfo, error) {
	exp, err := s.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	id := tracking.NewRunID()
	dir := filepath.Join(s.experimentDir(experimentID), id)
	for _, sub := range []string{paramsDir, metricsDir, tagsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create run directory: %w", err)
		}
	}
	meta := runMeta{
		RunID:          id,
		RunName:        runName,
		ExperimentID:   experimentID,
		Status:         string(tracking.StatusRunning),
		StartTime:      startTime.UnixMilli(),
		ArtifactURI:    tracking.RunArtifactURI(exp.ArtifactLocation, id),
		LifecycleStage: stageActive,
	}
	if err := writeMeta(dir, &meta); err != nil {
		return nil, fmt.Errorf("failed to write run meta: %w", err)
	}
	s.runIndex.Store(id, experimentID)
	info := meta.toRunInfo()
	return &info, nil
}

// runDir locates a run's directory, scanning experiments on a cache miss.
func (s *Store) runDir(runID string) (string, error) {
	if !isRunID(runID) {
		return "", fmt.Errorf("run %s: %w", runID, tracking.ErrNotFound)
	}
	if expID, ok := s.runIndex.Load(runID); ok {
		return filepath.Join(s.experimentDir(expID.(string)), runID), nil
	}
	ids, err := s.experimentIDs()
	if err != nil {
		return "", err
	}
	for _, id := range ids {
		expID := strconv.Itoa(id)
		dir := filepath.Join(s.experimentDir(expID), runID)
		if hasMeta(dir) {
			s.runIndex.Store(runID, expID)
			return dir, nil
		}
	}
	return "", fmt.Errorf("run %s: %w", runID, tracking.ErrNotFound)
}

// activeRunDir returns the directory of a run that is still RUNNING.
func (s *Store) activeRunDir(runID string) (string, *runMeta, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return "", nil, err
	}
	var meta runMeta
	if err := readMeta(dir, &meta); err != nil {
		return "", nil, err
	}
	if tracking.RunStatus(meta.Status).IsTerminal() {
		return "", nil, fmt.Errorf("run %s is %s: %w", runID, meta.Status, tracking.ErrRunNotActive)
	}
	return dir, &meta, nil
}

// GetRun implements tracking.Store.
func (s *Store) GetRun(ctx context.Context, runID string) (*tracking.Run, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	var meta runMeta
	if err := readMeta(dir, &meta); err != nil {
		return nil, err
	}
	run := &tracking.Run{Info: meta.toRunInfo(), Metrics: make(map[string]tracking.Metric)}
	if run.Params, err = readKeyFiles(filepath.Join(dir, paramsDir)); err != nil {
		return nil, err
	}
	if run.Tags, err = readKeyFiles(filepath.Join(dir, tagsDir)); err != nil {
		return nil, err
	}
	metricKeys, err := listKeys(filepath.Join(dir, metricsDir))
	if err != nil {
		return nil, err
	}
	for _, key := range metricKeys {
		series, err := readMetricFile(filepath.Join(dir, metricsDir, filepath.FromSlash(key)), key)
		if err != nil {
			return nil, err
		}
		if len(series) > 0 {
			run.Metrics[key] = series[len(series)-1]
		}
	}
	return run, nil
}

// ListRuns implements tracking.Store.
func (s *Store) ListRuns(ctx context.Context, experimentID string) ([]*tracking.RunInfo, error) {
	if _, err := s.GetExperiment(ctx, experimentID); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.experimentDir(experimentID))
	if err != nil {
		return nil, err
	}
	var out []*tracking.RunInfo
	for _, e := range entries {
		if !e.IsDir() || !isRunID(e.Name()) {
			continue
		}
		var meta runMeta
		if err := readMeta(filepath.Join(s.experimentDir(experimentID), e.Name()), &meta); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		info := meta.toRunInfo()
		out = append(out, &info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// CloseRun implements tracking.Store.
func (s *Store) CloseRun(ctx context.Context, runID string, status tracking.RunStatus, endTime time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("status %q does not close a run", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, meta, err := s.activeRunDir(runID)
	if err != nil {
		return err
	}
	meta.Status = string(status)
	meta.EndTime = endTime.UnixMilli()
	return writeMeta(dir, meta)
}

// LogParam implements tracking.Store.
func (s *Store) LogParam(ctx context.Context, runID string, param tracking.Param) error {
	if err := tracking.ValidateKey(param.Key); err != nil {
		return err
	}
	dir, _, err := s.activeRunDir(runID)
	if err != nil {
		return err
	}
	claimed, err := writeExclusive(filepath.Join(dir, paramsDir, filepath.FromSlash(param.Key)), param.Value)
	if err != nil {
		return fmt.Errorf("failed to write param '%s': %w", param.Key, err)
	}
	if !claimed {
		return fmt.Errorf("param '%s' on run %s: %w", param.Key, runID, tracking.ErrParamOverwrite)
	}
	return nil
}

// LogMetric implements tracking.Store.
func (s *Store) LogMetric(ctx context.Context, runID string, metric tracking.Metric) error {
	if err := tracking.ValidateKey(metric.Key); err != nil {
		return err
	}
	dir, _, err := s.activeRunDir(runID)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, metricsDir, filepath.FromSlash(metric.Key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open metric file: %w", err)
	}
	line := fmt.Sprintf("%d %s %d\n", metric.Timestamp.UnixMilli(), strconv.FormatFloat(metric.Value, 'g', -1, 64), metric.Step)
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("failed to append metric '%s': %w", metric.Key, err)
	}
	return f.Close()
}

// GetMetricHistory implements tracking.Store.
func (s *Store) GetMetricHistory(ctx context.Context, runID, key string) ([]tracking.Metric, error) {
	if err := tracking.ValidateKey(key); err != nil {
		return nil, err
	}
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	return readMetricFile(filepath.Join(dir, metricsDir, filepath.FromSlash(key)), key)
}

// SetTag implements tracking.Store.
func (s *Store) SetTag(ctx context.Context, runID, key, value string) error {
	if err := tracking.ValidateKey(key); err != nil {
		return err
	}
	dir, _, err := s.activeRunDir(runID)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, tagsDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(value), 0o644)
}

// Close implements tracking.Store.
func (s *Store) Close() error {
	return nil
}

// writeExclusive creates path with content unless it already exists. It
// reports false, without error, when another writer got there first.
func writeExclusive(path, content string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return true, err
	}
	return true, f.Close()
}

// listKeys returns the slash-separated keys of all files below dir.
func listKeys(dir string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	sort.Strings(keys)
	return keys, err
}

func readKeyFiles(dir string) (map[string]string, error) {
	keys, err := listKeys(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
		if err != nil {
			return nil, err
		}
		out[key] = string(data)
	}
	return out, nil
}

func readMetricFile(path, key string) ([]tracking.Metric, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []tracking.Metric{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	series := []tracking.Metric{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed metric line in %s: %q", path, scanner.Text())
		}
		ts, err1 := strconv.ParseInt(fields[0], 10, 64)
		value, err2 := strconv.ParseFloat(fields[1], 64)
		step, err3 := strconv.ParseInt(fields[2], 10, 64)
		if err := errors.Join(err1, err2, err3); err != nil {
			return nil, fmt.Errorf("malformed metric line in %s: %w", path, err)
		}
		series = append(series, tracking.Metric{Key: key, Value: value, Step: step, Timestamp: time.UnixMilli(ts)})
	}
	return series, scanner.Err()
}

// hasMeta reports whether dir holds a meta.yaml. Artifact directories of an
// experiment with a numeric name share the root with metadata directories.
func hasMeta(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, metaFile))
	return err == nil && info.Mode().IsRegular()
}

func isExperimentID(id string) bool {
	_, err := strconv.Atoi(id)
	return err == nil && !strings.HasPrefix(id, "-")
}

func isRunID(id string) bool {
	if len(id) != 32 {
		return false
	}
	for _, r := range id {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

var _ tracking.Store = (*Store)(nil)
