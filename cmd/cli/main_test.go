package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	args := []string{"-h"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	args := []string{"--this-is-not-a-valid-flag"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_ConfigError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A primary config file with a syntax error.
	tempDir := t.TempDir()
	err := os.WriteFile(filepath.Join(tempDir, "train.hcl"), []byte("expname = \n"), 0o600)
	require.NoError(t, err, "failed to set up test file")
	out := &bytes.Buffer{}

	// --- Act ---
	runErr := run(context.Background(), out, []string{"-config-dir", tempDir, "-base-dir", tempDir})

	// --- Assert ---
	require.Error(t, runErr)
	require.Contains(t, runErr.Error(), "failed to parse config file")
	require.NoDirExists(t, filepath.Join(tempDir, "mlruns"))
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	tempDir := t.TempDir()
	conf := `
expname    = "demo"
runname    = ""
n_epochs   = 3
lr         = 0.01
batch_size = 4
`
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "train.hcl"), []byte(conf), 0o600))
	out := &bytes.Buffer{}
	args := []string{"-config-dir", tempDir, "-base-dir", tempDir,
		"expname=demo", "runname=trial1", "n_epochs=3", "lr=0.001", "batch_size=8"}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.NoError(t, err)
	require.Contains(t, out.String(), "Execution finished.")
	entries, err := os.ReadDir(filepath.Join(tempDir, "outputs", "demo"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	for _, name := range []string{"00.csv", "01.csv", "02.csv"} {
		require.FileExists(t, filepath.Join(tempDir, "outputs", "demo", entries[0].Name(), name))
	}
}
