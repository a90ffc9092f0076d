// Package trainer holds the training loop. It computes placeholder metrics;
// model code plugs in where the loop body says so.
package trainer

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/vk/sweeptrack/internal/ctxlog"
	"github.com/vk/sweeptrack/internal/plot"
)

// Recorder receives what the loop produces. *tracking.ActiveRun implements it.
type Recorder interface {
	LogMetrics(ctx context.Context, metrics map[string]float64, step int64) error
	LogMetric(ctx context.Context, key string, value float64, step int64) error
	LogArtifact(ctx context.Context, localPath, artifactDir string) error
	LogArtifacts(ctx context.Context, localDir, artifactDir string) error
	LogFigure(ctx context.Context, fig io.WriterTo, artifactFile string) error
}

// Loop runs a fixed number of epochs.
type Loop struct {
	Epochs    int
	OutputDir string
	// LogDir also uploads the whole output directory after every epoch.
	LogDir bool
	// Rand drives the "luck" metric. Nil uses the global source.
	Rand *rand.Rand
}

// FileName is the per-epoch artifact name with the given extension.
func FileName(epoch int, ext string) string {
	return fmt.Sprintf("%02d.%s", epoch, ext)
}

// Run executes the loop. Cancellation is checked between epochs.
func (l *Loop) Run(ctx context.Context, rec Recorder) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Training started.", "epochs", l.Epochs)

	steps := make([]float64, 0, l.Epochs)
	accs := make([]float64, 0, l.Epochs)
	for epoch := range l.Epochs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("training stopped at epoch %d: %w", epoch, err)
		}
		logger.Debug("Calculating metrics.", "step", epoch, "epochs", l.Epochs)

		// Model training goes here.

		acc := float64(epoch) / float64(l.Epochs)
		step := int64(epoch)
		if err := rec.LogMetrics(ctx, map[string]float64{"acc": acc}, step); err != nil {
			return err
		}
		if err := rec.LogMetric(ctx, "luck", l.luck(), step); err != nil {
			return err
		}

		csvPath := filepath.Join(l.OutputDir, FileName(epoch, "csv"))
		if err := touch(csvPath); err != nil {
			return err
		}
		if err := rec.LogArtifact(ctx, csvPath, ""); err != nil {
			return err
		}
		if l.LogDir {
			if err := rec.LogArtifacts(ctx, l.OutputDir, ""); err != nil {
				return err
			}
		}

		steps = append(steps, float64(epoch))
		accs = append(accs, acc)
		fig, err := plot.Line("acc", steps, accs)
		if err != nil {
			return err
		}
		if err := rec.LogFigure(ctx, fig, FileName(epoch, "png")); err != nil {
			return err
		}
	}

	logger.Info("Training finished.", "epochs", l.Epochs)
	return nil
}

func (l *Loop) luck() float64 {
	if l.Rand != nil {
		return l.Rand.Float64()
	}
	return rand.Float64()
}

// touch creates path if missing without truncating existing content.
func touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f.Close()
}
