// Package sqlstore implements tracking.Store on a relational database through
// gorm. SQLite (pure Go, no cgo) backs `sqlite:///` tracking URIs and MySQL
// backs `mysql://` ones; both share the same schema, migrated on open.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/vk/sweeptrack/internal/ctxlog"
	"github.com/vk/sweeptrack/internal/tracking"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store is a gorm-backed tracking.Store.
type Store struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) a SQLite database file.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("sqlite path %q must be absolute", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	dsn := path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	s, err := Open(ctx, sqlite.Open(dsn))
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer at a time; a single connection serialises
	// writes from this process instead of surfacing SQLITE_BUSY.
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return s, nil
}

// OpenMySQL opens a MySQL database from a go-sql-driver DSN.
func OpenMySQL(ctx context.Context, dsn string) (*Store, error) {
	return Open(ctx, mysql.Open(dsn))
}

// Open connects through an arbitrary gorm dialector and migrates the schema.
func Open(ctx context.Context, dialector gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to tracking database: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(
		&experimentRow{},
		&runRow{},
		&paramRow{},
		&metricRow{},
		&tagRow{},
	); err != nil {
		return nil, fmt.Errorf("tracking database migration failed: %w", err)
	}

	ctxlog.FromContext(ctx).Debug("Tracking database ready.", "dialect", dialector.Name())
	return &Store{db: db}, nil
}

// isDuplicate reports whether err is a unique-constraint violation. Dialects
// that do not translate errors are recognised by message.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}

func parseExperimentID(id string) (uint, error) {
	n, err := strconv.ParseUint(id, 10, 0)
	if err != nil {
		return 0, fmt.Errorf("experiment id %s: %w", id, tracking.ErrNotFound)
	}
	return uint(n), nil
}

// GetExperimentByName implements tracking.Store.
func (s *Store) GetExperimentByName(ctx context.Context, name string) (*tracking.Experiment, error) {
	var row experimentRow
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("experiment '%s': %w", name, tracking.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.toExperiment(), nil
}

// GetExperiment implements tracking.Store.
func (s *Store) GetExperiment(ctx context.Context, id string) (*tracking.Experiment, error) {
	n, err := parseExperimentID(id)
	if err != nil {
		return nil, err
	}
	var row experimentRow
	err = s.db.WithContext(ctx).First(&row, n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("experiment id %s: %w", id, tracking.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.toExperiment(), nil
}

// CreateExperiment implements tracking.Store.
func (s *Store) CreateExperiment(ctx context.Context, name, artifactLocation string) (string, error) {
	if name == "" {
		return "", errors.New("experiment name must not be empty")
	}
	row := experimentRow{Name: name, ArtifactLocation: artifactLocation, LifecycleStage: "active"}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return "", fmt.Errorf("experiment '%s': %w", name, tracking.ErrAlreadyExists)
		}
		return "", fmt.Errorf("failed to create experiment: %w", err)
	}
	return strconv.FormatUint(uint64(row.ID), 10), nil
}

// ListExperiments implements tracking.Store.
func (s *Store) ListExperiments(ctx context.Context) ([]*tracking.Experiment, error) {
	var rows []experimentRow
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*tracking.Experiment, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toExperiment())
	}
	return out, nil
}

// CreateRun implements tracking.Store.
func (s *Store) CreateRun(ctx context.Context, experimentID, runName string, startTime time.Time) (*tracking.RunInfo, error) {
	exp, err := s.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	expID, _ := parseExperimentID(exp.ID)
	id := tracking.NewRunID()
	row := runRow{
		RunUUID:        id,
		ExperimentID:   expID,
		Name:           runName,
		Status:         string(tracking.StatusRunning),
		StartTime:      startTime.UnixMilli(),
		ArtifactURI:    tracking.RunArtifactURI(exp.ArtifactLocation, id),
		LifecycleStage: "active",
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	info := row.toRunInfo()
	return &info, nil
}

func (s *Store) getRunRow(ctx context.Context, runID string) (*runRow, error) {
	var row runRow
	err := s.db.WithContext(ctx).Where("run_uuid = ?", runID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("run %s: %w", runID, tracking.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// checkActive fails unless the run exists and is RUNNING.
func (s *Store) checkActive(ctx context.Context, runID string) error {
	row, err := s.getRunRow(ctx, runID)
	if err != nil {
		return err
	}
	if tracking.RunStatus(row.Status).IsTerminal() {
		return fmt.Errorf("run %s is %s: %w", runID, row.Status, tracking.ErrRunNotActive)
	}
	return nil
}

// GetRun implements tracking.Store.
func (s *Store) GetRun(ctx context.Context, runID string) (*tracking.Run, error) {
	row, err := s.getRunRow(ctx, runID)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var params []paramRow
	if err := db.Where("run_uuid = ?", runID).Find(&params).Error; err != nil {
		return nil, err
	}
	var tags []tagRow
	if err := db.Where("run_uuid = ?", runID).Find(&tags).Error; err != nil {
		return nil, err
	}
	var metrics []metricRow
	if err := db.Where("run_uuid = ?", runID).Order("id").Find(&metrics).Error; err != nil {
		return nil, err
	}

	run := &tracking.Run{
		Info:    row.toRunInfo(),
		Params:  make(map[string]string, len(params)),
		Metrics: make(map[string]tracking.Metric),
		Tags:    make(map[string]string, len(tags)),
	}
	for _, p := range params {
		run.Params[p.Key] = p.Value
	}
	for _, t := range tags {
		run.Tags[t.Key] = t.Value
	}
	for i := range metrics {
		run.Metrics[metrics[i].Key] = metrics[i].toMetric() // ordered by id, so the last write wins
	}
	return run, nil
}

// ListRuns implements tracking.Store.
func (s *Store) ListRuns(ctx context.Context, experimentID string) ([]*tracking.RunInfo, error) {
	exp, err := s.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	expID, _ := parseExperimentID(exp.ID)
	var rows []runRow
	if err := s.db.WithContext(ctx).Where("experiment_id = ?", expID).Order("start_time").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*tracking.RunInfo, 0, len(rows))
	for i := range rows {
		info := rows[i].toRunInfo()
		out = append(out, &info)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// CloseRun implements tracking.Store. The status guard lives in the UPDATE so
// two closers cannot both succeed.
func (s *Store) CloseRun(ctx context.Context, runID string, status tracking.RunStatus, endTime time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("status %q does not close a run", status)
	}
	end := endTime.UnixMilli()
	res := s.db.WithContext(ctx).Model(&runRow{}).
		Where("run_uuid = ? AND status = ?", runID, string(tracking.StatusRunning)).
		Updates(map[string]interface{}{
			"status":   string(status),
			"end_time": end,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to close run %s: %w", runID, res.Error)
	}
	if res.RowsAffected == 0 {
		if err := s.checkActive(ctx, runID); err != nil {
			return err
		}
		return fmt.Errorf("run %s: %w", runID, tracking.ErrRunNotActive)
	}
	return nil
}

// LogParam implements tracking.Store. The composite primary key rejects a
// second insert of the same key.
func (s *Store) LogParam(ctx context.Context, runID string, param tracking.Param) error {
	if err := s.checkActive(ctx, runID); err != nil {
		return err
	}
	row := paramRow{RunUUID: runID, Key: param.Key, Value: param.Value}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("param '%s' on run %s: %w", param.Key, runID, tracking.ErrParamOverwrite)
		}
		return err
	}
	return nil
}

// LogMetric implements tracking.Store.
func (s *Store) LogMetric(ctx context.Context, runID string, metric tracking.Metric) error {
	if err := s.checkActive(ctx, runID); err != nil {
		return err
	}
	row := metricRow{
		RunUUID:   runID,
		Key:       metric.Key,
		Value:     metric.Value,
		Step:      metric.Step,
		Timestamp: metric.Timestamp.UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// GetMetricHistory implements tracking.Store.
func (s *Store) GetMetricHistory(ctx context.Context, runID, key string) ([]tracking.Metric, error) {
	if _, err := s.getRunRow(ctx, runID); err != nil {
		return nil, err
	}
	var rows []metricRow
	err := s.db.WithContext(ctx).
		Where(map[string]interface{}{"run_uuid": runID, "key": key}).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]tracking.Metric, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toMetric())
	}
	return out, nil
}

// SetTag implements tracking.Store.
func (s *Store) SetTag(ctx context.Context, runID, key, value string) error {
	if err := s.checkActive(ctx, runID); err != nil {
		return err
	}
	row := tagRow{RunUUID: runID, Key: key, Value: value}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_uuid"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row).Error
}

// Close implements tracking.Store.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ tracking.Store = (*Store)(nil)
