// Package workdir resolves the base directory everything else hangs off and
// derives per-run output directories from it.
package workdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// EnvHome overrides the base directory when no explicit one is given.
const EnvHome = "SWEEPTRACK_HOME"

// OutputsDir is the directory under the base holding run outputs.
const OutputsDir = "outputs"

// Resolve returns an absolute base directory: explicit if set, else
// $SWEEPTRACK_HOME, else the current working directory. Call it once at
// startup; the result does not follow later changes of the working directory.
func Resolve(explicit string) (string, error) {
	base := explicit
	if base == "" {
		base = os.Getenv(EnvHome)
	}
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to determine working directory: %w", err)
		}
		base = wd
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory %q: %w", base, err)
	}
	return abs, nil
}

// OutputDir is <base>/outputs/<experiment>/<runID>.
func OutputDir(base, experiment, runID string) string {
	return filepath.Join(base, OutputsDir, experiment, runID)
}

// Ensure creates dir and its parents if missing and reports whether it had
// to. Existing content is left alone.
func Ensure(dir string) (bool, error) {
	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		return false, nil
	case err == nil:
		return false, fmt.Errorf("output path %s exists and is not a directory", dir)
	case !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return true, nil
}
