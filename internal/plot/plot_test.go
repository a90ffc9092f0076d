package plot

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestLine(t *testing.T) {
	w, err := Line("acc", []float64{0, 1, 2}, []float64{0, 0.333, 0.667})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := w.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

func TestLine_Empty(t *testing.T) {
	w, err := Line("empty", nil, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = w.WriteTo(&buf)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

func TestLine_LengthMismatch(t *testing.T) {
	_, err := Line("bad", []float64{1}, nil)
	require.Error(t, err)
}
