package yuv

import (
	"image"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFrameAlignment(t *testing.T) {
	f, err := NewFrame(17, 9)
	require.NoError(t, err)
	defer f.Release()
	assert.Equal(t, 2, f.MBCols)
	assert.Equal(t, 1, f.MBRows)
	assert.Equal(t, 32, f.AlignedWidth)
	assert.Equal(t, 16, f.AlignedHeight)
	assert.Equal(t, 32+2*Border, f.YStride)
}

func TestNewFrameInvalid(t *testing.T) {
	_, err := NewFrame(0, 10)
	require.Error(t, err)
	assert.Equal(t, ErrFrameSize, errors.Cause(err))
}

func TestImportYCbCrPadsAndExtends(t *testing.T) {
	img := image.NewYCbCr(image.Rect(0, 0, 10, 6), image.YCbCrSubsampleRatio420)
	for y := 0; y < 6; y++ {
		for x := 0; x < 10; x++ {
			img.Y[img.YOffset(x, y)] = byte(x + 10*y)
		}
	}
	for i := range img.Cb {
		img.Cb[i] = 50
		img.Cr[i] = 200
	}
	f, err := NewFrame(10, 6)
	require.NoError(t, err)
	defer f.Release()
	require.NoError(t, f.ImportYCbCr(img))

	assert.Equal(t, byte(9+10*5), f.Y[f.YOff(15, 15)], "padding replicates last pixel")
	assert.Equal(t, byte(0), f.Y[f.YOff(-Border, -Border)], "apron corner")
	assert.Equal(t, byte(9), f.Y[f.YOff(15+Border, -3)], "apron top-right")
	assert.Equal(t, byte(50), f.U[f.UVOff(-4, 9)])
	assert.Equal(t, byte(200), f.V[f.UVOff(7, 7)])
}

func TestImportRawShort(t *testing.T) {
	f, err := NewFrame(16, 16)
	require.NoError(t, err)
	defer f.Release()
	err = f.ImportRaw(make([]byte, 10))
	assert.Equal(t, ErrFrameSize, errors.Cause(err))
	assert.NoError(t, f.ImportRaw(make([]byte, RawSize(16, 16))))
}

func TestRawRoundTrip(t *testing.T) {
	f, err := NewFrame(7, 5)
	require.NoError(t, err)
	defer f.Release()
	raw := make([]byte, RawSize(7, 5))
	for i := range raw {
		raw[i] = byte(i * 7)
	}
	require.NoError(t, f.ImportRaw(raw))
	out := f.AppendRaw(nil)
	assert.Equal(t, raw, out)
	assert.Len(t, f.AppendRaw(out), 2*len(raw))
}
