package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/sweeptrack/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// confDir lays out a primary file with one optimizer group.
func confDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "train.hcl"), `
defaults = {
  optimizer = "adam"
}

expname    = "demo"
runname    = null
n_epochs   = 3
lr         = 0.001
batch_size = 8

optimizer = {
  weight_decay = 0
}
`)
	writeFile(t, filepath.Join(dir, "optimizer", "adam.hcl"), `
name  = "adam"
betas = [0.9, 0.999]
weight_decay = 0.01
`)
	writeFile(t, filepath.Join(dir, "optimizer", "sgd.hcl"), `
name     = "sgd"
momentum = 0.9
`)
	writeFile(t, filepath.Join(dir, "scheduler", "step.hcl"), `
gamma = 0.1
`)
	return dir
}

func mustOverrides(t *testing.T, args ...string) []config.Override {
	t.Helper()
	out := make([]config.Override, 0, len(args))
	for _, a := range args {
		o, err := config.ParseOverride(a)
		require.NoError(t, err)
		out = append(out, o)
	}
	return out
}

func TestLoader_ComposesDefaults(t *testing.T) {
	loader := NewLoader(confDir(t), "train")

	resolved, err := loader.Resolve(context.Background(), nil)
	require.NoError(t, err)

	flat := resolved.Tree.Flatten()
	assert.Equal(t, "adam", flat["optimizer.name"])
	assert.Equal(t, "0", flat["optimizer.weight_decay"], "primary file wins over group content")
	assert.Equal(t, "[0.9,0.999]", flat["optimizer.betas"])
	assert.NotContains(t, flat, "defaults")
	assert.Equal(t, &config.Train{ExpName: "demo", NEpochs: 3, LR: 0.001, BatchSize: 8}, resolved.Train)
}

func TestLoader_Overrides(t *testing.T) {
	loader := NewLoader(confDir(t), "train.hcl")

	resolved, err := loader.Resolve(context.Background(),
		mustOverrides(t, "optimizer=sgd", "runname=trial1", "lr=5e-5", "+seed=7", "~optimizer.weight_decay", "+scheduler=step"))
	require.NoError(t, err)

	flat := resolved.Tree.Flatten()
	assert.Equal(t, "sgd", flat["optimizer.name"])
	assert.Equal(t, "0.9", flat["optimizer.momentum"])
	assert.NotContains(t, flat, "optimizer.weight_decay")
	assert.Equal(t, "7", flat["seed"])
	assert.Equal(t, "0.1", flat["scheduler.gamma"])
	assert.Equal(t, "trial1", resolved.Train.RunName)
	assert.InDelta(t, 5e-5, resolved.Train.LR, 1e-15)
	assert.Len(t, resolved.Overrides, 6)
}

func TestLoader_DeleteGroup(t *testing.T) {
	loader := NewLoader(confDir(t), "train")

	resolved, err := loader.Resolve(context.Background(), mustOverrides(t, "~optimizer"))
	require.NoError(t, err)

	flat := resolved.Tree.Flatten()
	assert.NotContains(t, flat, "optimizer.name")
	assert.Equal(t, "0", flat["optimizer.weight_decay"])
}

func TestLoader_Errors(t *testing.T) {
	testCases := []struct {
		name      string
		overrides []string
		errSubstr string
	}{
		{name: "set unknown key", overrides: []string{"epochs=3"}, errSubstr: "key not in config"},
		{name: "add existing key", overrides: []string{"+lr=0.1"}, errSubstr: "key already in config"},
		{name: "delete unknown key", overrides: []string{"~nope"}, errSubstr: "key not in config"},
		{name: "unknown option", overrides: []string{"optimizer=rmsprop"}, errSubstr: "available options: adam, sgd"},
		{name: "invalid value", overrides: []string{"batch_size=0"}, errSubstr: "'batch_size' must be > 0"},
		{name: "missing required", overrides: []string{"~expname"}, errSubstr: "missing required key 'expname'"},
	}
	dir := confDir(t)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLoader(dir, "train").Resolve(context.Background(), mustOverrides(t, tc.overrides...))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errSubstr)
		})
	}
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := NewLoader(t.TempDir(), "train").Resolve(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoader_RejectsBlocks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "train.hcl"), `
model "resnet" {
  depth = 18
}
`)
	_, err := NewLoader(dir, "train").Resolve(context.Background(), nil)
	require.Error(t, err)
}
