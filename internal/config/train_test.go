package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func trainTree(t *testing.T, attrs map[string]cty.Value) Tree {
	t.Helper()
	tree, err := NewTree(cty.ObjectVal(attrs))
	require.NoError(t, err)
	return tree
}

func TestDecodeTrain(t *testing.T) {
	tree := trainTree(t, map[string]cty.Value{
		"expname":    cty.StringVal("demo"),
		"runname":    cty.StringVal("trial1"),
		"n_epochs":   cty.NumberIntVal(3),
		"lr":         cty.NumberFloatVal(0.001),
		"batch_size": cty.NumberIntVal(8),
	})

	train, err := DecodeTrain(tree)
	require.NoError(t, err)
	assert.Equal(t, &Train{ExpName: "demo", RunName: "trial1", NEpochs: 3, LR: 0.001, BatchSize: 8}, train)
}

func TestDecodeTrain_OptionalRunName(t *testing.T) {
	tree := trainTree(t, map[string]cty.Value{
		"expname":    cty.StringVal("demo"),
		"runname":    cty.NullVal(cty.String),
		"n_epochs":   cty.NumberIntVal(0),
		"lr":         cty.NumberFloatVal(0.1),
		"batch_size": cty.NumberIntVal(1),
	})

	train, err := DecodeTrain(tree)
	require.NoError(t, err)
	assert.Equal(t, "", train.RunName)
	assert.Equal(t, 0, train.NEpochs)
}

func TestDecodeTrain_ReportsEveryProblem(t *testing.T) {
	tree := trainTree(t, map[string]cty.Value{
		"expname":    cty.StringVal(""),
		"n_epochs":   cty.NumberFloatVal(2.5),
		"batch_size": cty.NumberIntVal(0),
	})

	_, err := DecodeTrain(tree)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "'expname' must not be empty")
	assert.Contains(t, msg, "n_epochs")
	assert.Contains(t, msg, "missing required key 'lr'")
	assert.Contains(t, msg, "'batch_size' must be > 0")
}

func TestDecodeTrain_ExpNameMustBeOneDirectory(t *testing.T) {
	testCases := []struct {
		name    string
		expname string
		wantErr bool
	}{
		{name: "plain", expname: "demo"},
		{name: "dotted", expname: "demo.v2"},
		{name: "parent escape", expname: "../../escaped", wantErr: true},
		{name: "nested", expname: "a/b", wantErr: true},
		{name: "backslash", expname: `a\b`, wantErr: true},
		{name: "dot", expname: ".", wantErr: true},
		{name: "dot dot", expname: "..", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tree := trainTree(t, map[string]cty.Value{
				"expname":    cty.StringVal(tc.expname),
				"n_epochs":   cty.NumberIntVal(1),
				"lr":         cty.NumberFloatVal(0.1),
				"batch_size": cty.NumberIntVal(1),
			})

			train, err := DecodeTrain(tree)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "'expname' must be a plain name")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expname, train.ExpName)
		})
	}
}

func TestDecodeTrain_ConvertsStrings(t *testing.T) {
	tree := trainTree(t, map[string]cty.Value{
		"expname":    cty.StringVal("demo"),
		"n_epochs":   cty.StringVal("4"),
		"lr":         cty.StringVal("1e-3"),
		"batch_size": cty.NumberIntVal(16),
	})

	train, err := DecodeTrain(tree)
	require.NoError(t, err)
	assert.Equal(t, 4, train.NEpochs)
	assert.InDelta(t, 0.001, train.LR, 1e-12)
}
