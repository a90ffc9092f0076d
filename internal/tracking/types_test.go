package tracking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKey(t *testing.T) {
	testCases := []struct {
		key   string
		valid bool
	}{
		{"lr", true},
		{"optimizer.betas", true},
		{"eval/acc top-1", true},
		{"", false},
		{strings.Repeat("k", 251), false},
		{"/abs", false},
		{"trailing/", false},
		{"a/../b", false},
		{"a//b", false},
		{"semi;colon", false},
	}
	for _, tc := range testCases {
		t.Run(tc.key, func(t *testing.T) {
			err := ValidateKey(tc.key)
			if tc.valid {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestRunStatus(t *testing.T) {
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusRunning.Valid())
	for _, s := range []RunStatus{StatusFinished, StatusFailed, StatusKilled} {
		assert.True(t, s.IsTerminal(), s)
	}
	assert.False(t, RunStatus("PAUSED").Valid())
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "-")
}

func TestRunArtifactURI(t *testing.T) {
	assert.Equal(t, "file:///base/mlruns/demo/abc/artifacts", RunArtifactURI("file:///base/mlruns/demo/", "abc"))
}
