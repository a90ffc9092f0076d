package workdir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Run("explicit wins", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv(EnvHome, "/somewhere/else")
		got, err := Resolve(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, got)
	})

	t.Run("environment", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv(EnvHome, dir)
		got, err := Resolve("")
		require.NoError(t, err)
		assert.Equal(t, dir, got)
	})

	t.Run("working directory", func(t *testing.T) {
		t.Setenv(EnvHome, "")
		wd, err := os.Getwd()
		require.NoError(t, err)
		got, err := Resolve("")
		require.NoError(t, err)
		assert.Equal(t, wd, got)
	})

	t.Run("relative is made absolute", func(t *testing.T) {
		got, err := Resolve("runs")
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(got))
		assert.Equal(t, "runs", filepath.Base(got))
	})
}

func TestOutputDir(t *testing.T) {
	assert.Equal(t, filepath.Join("/base", "outputs", "demo", "abc123"), OutputDir("/base", "demo", "abc123"))
	assert.Equal(t, OutputDir("/base", "demo", "abc123"), OutputDir("/base", "demo", "abc123"))
}

func TestEnsure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "outputs", "demo", "run")

	created, err := Ensure(dir)
	require.NoError(t, err)
	assert.True(t, created)

	marker := filepath.Join(dir, "keep.txt")
	require.NoError(t, os.WriteFile(marker, []byte("x"), 0o644))

	created, err = Ensure(dir)
	require.NoError(t, err)
	assert.False(t, created)
	assert.FileExists(t, marker)

	_, err = Ensure(marker)
	require.Error(t, err)
}
