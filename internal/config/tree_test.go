package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func sampleTree(t *testing.T) Tree {
	t.Helper()
	tree, err := NewTree(cty.ObjectVal(map[string]cty.Value{
		"expname":  cty.StringVal("demo"),
		"n_epochs": cty.NumberIntVal(3),
		"lr":       cty.NumberFloatVal(0.001),
		"optimizer": cty.ObjectVal(map[string]cty.Value{
			"name":     cty.StringVal("adam"),
			"momentum": cty.NumberFloatVal(0.9),
		}),
		"layers": cty.TupleVal([]cty.Value{cty.NumberIntVal(64), cty.NumberIntVal(32)}),
	}))
	require.NoError(t, err)
	return tree
}

func TestTree_GetAndHas(t *testing.T) {
	tree := sampleTree(t)

	v, ok := tree.Get("optimizer.name")
	require.True(t, ok)
	assert.Equal(t, "adam", v.AsString())

	assert.True(t, tree.Has("lr"))
	assert.False(t, tree.Has("optimizer.missing"))
	assert.False(t, tree.Has("lr.sub"), "scalars have no children")
}

func TestTree_WithIsImmutable(t *testing.T) {
	tree := sampleTree(t)

	updated, err := tree.With("optimizer.momentum", cty.NumberFloatVal(0.5))
	require.NoError(t, err)

	before, _ := tree.Get("optimizer.momentum")
	after, _ := updated.Get("optimizer.momentum")
	assert.Equal(t, "0.9", FormatValue(before))
	assert.Equal(t, "0.5", FormatValue(after))

	created, err := tree.With("scheduler.gamma", cty.NumberFloatVal(0.1))
	require.NoError(t, err)
	assert.True(t, created.Has("scheduler.gamma"))

	_, err = tree.With("lr.sub", cty.True)
	require.Error(t, err)
}

func TestTree_Without(t *testing.T) {
	tree := sampleTree(t)

	out, err := tree.Without("optimizer.momentum")
	require.NoError(t, err)
	assert.False(t, out.Has("optimizer.momentum"))
	assert.True(t, out.Has("optimizer.name"))

	_, err = tree.Without("nope")
	require.Error(t, err)
}

func TestTree_Merge(t *testing.T) {
	base := sampleTree(t)
	over, err := NewTree(cty.ObjectVal(map[string]cty.Value{
		"optimizer": cty.ObjectVal(map[string]cty.Value{"momentum": cty.NumberFloatVal(0.95)}),
		"seed":      cty.NumberIntVal(7),
	}))
	require.NoError(t, err)

	merged := base.Merge(over)
	flat := merged.Flatten()
	assert.Equal(t, "adam", flat["optimizer.name"])
	assert.Equal(t, "0.95", flat["optimizer.momentum"])
	assert.Equal(t, "7", flat["seed"])
}

func TestTree_Flatten(t *testing.T) {
	flat := sampleTree(t).Flatten()
	assert.Equal(t, map[string]string{
		"expname":            "demo",
		"n_epochs":           "3",
		"lr":                 "0.001",
		"optimizer.name":     "adam",
		"optimizer.momentum": "0.9",
		"layers":             "[64,32]",
	}, flat)
}

func TestTree_YAML(t *testing.T) {
	data, err := sampleTree(t).YAML()
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "n_epochs: 3\n")
	assert.Contains(t, out, "lr: 0.001\n")
	assert.Contains(t, out, "optimizer:\n")
}

func TestNewTree_RejectsScalarRoot(t *testing.T) {
	_, err := NewTree(cty.StringVal("x"))
	require.Error(t, err)
}

func TestFormatValue(t *testing.T) {
	testCases := []struct {
		name     string
		value    cty.Value
		expected string
	}{
		{"string", cty.StringVal("trial1"), "trial1"},
		{"integer", cty.NumberIntVal(8), "8"},
		{"small float", cty.NumberFloatVal(1e-4), "0.0001"},
		{"exponent float", cty.NumberFloatVal(5e-5), "5e-05"},
		{"bool", cty.True, "true"},
		{"null", cty.NullVal(cty.String), "null"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, FormatValue(tc.value))
		})
	}
}
