package render

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ipd-simulator/pkg/errors"
)

func TestNewFrameRenderer_Invalid(t *testing.T) {
	_, err := NewFrameRenderer(0, 5)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetErrorCode(err))
}

func TestEncode_SizeAndDeterminism(t *testing.T) {
	r, err := NewFrameRenderer(4, 3)
	require.NoError(t, err)
	assert.Equal(t, 4*3*3, r.FrameSize())

	gens := []uint32{1, 1, 2, 3, 1, 1, 4, 12, 1, 2, 2, 1}
	f1, err := r.Encode(gens)
	require.NoError(t, err)
	require.Len(t, f1, r.FrameSize())

	copy1 := append([]byte(nil), f1...)
	f2, err := r.Encode(gens)
	require.NoError(t, err)
	assert.Equal(t, copy1, f2, "same view encodes identically")
}

func TestEncode_WrongLength(t *testing.T) {
	r, err := NewFrameRenderer(2, 2)
	require.NoError(t, err)

	_, err = r.Encode([]uint32{1, 1, 1})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeRenderError, apperrors.GetErrorCode(err))
}

func TestEncode_ColorRamp(t *testing.T) {
	r, err := NewFrameRenderer(10, 10)
	require.NoError(t, err)

	small := r.colorForSize(1)
	large := r.colorForSize(100)
	assert.NotEqual(t, small, large)

	// Cool end is blue-dominant, warm end red-dominant.
	assert.Greater(t, small[2], small[0], "unicellular color should be cool")
	assert.Greater(t, large[0], large[2], "grid-spanning color should be warm")

	assert.Equal(t, Background, r.colorForSize(0))
}

func TestEncodeTo(t *testing.T) {
	r, err := NewFrameRenderer(2, 1)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.EncodeTo(&buf, []uint32{1, 2}))
	assert.Equal(t, r.FrameSize(), buf.Len())
}

func TestHSVToRGB_Primaries(t *testing.T) {
	assert.Equal(t, [3]byte{255, 0, 0}, hsvToRGB(0, 1, 1))
	assert.Equal(t, [3]byte{0, 255, 0}, hsvToRGB(120, 1, 1))
	assert.Equal(t, [3]byte{0, 0, 255}, hsvToRGB(240, 1, 1))
}

func TestFFmpegCommand(t *testing.T) {
	cmd := FFmpegCommand("frames.rgb", 64, 48, 30)
	assert.Contains(t, cmd, "64x48")
	assert.Contains(t, cmd, "-framerate 30")
	assert.Contains(t, cmd, "frames.rgb")
}
