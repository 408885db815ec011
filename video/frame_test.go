package video

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradient builds a frame whose pixel values encode their coordinates,
// so crops can be verified by content.
func gradient(w, h, channels int) *Frame {
	data := make([]byte, w*h*channels)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < channels; c++ {
				data[(y*w+x)*channels+c] = byte((x + y*3 + c) % 251)
			}
		}
	}
	return &Frame{Data: data, Width: w, Height: h, Channels: channels, Index: 7, TraceID: "t"}
}

func TestCropDimensions(t *testing.T) {
	f := gradient(100, 100, 3)

	out, err := f.Crop(image.Rect(10, 10, 60, 60))
	require.NoError(t, err)

	assert.Equal(t, 50, out.Width)
	assert.Equal(t, 50, out.Height)
	assert.Equal(t, 3, out.Channels)
	assert.Len(t, out.Data, 50*50*3)

	// position metadata travels with the crop
	assert.Equal(t, int64(7), out.Index)
	assert.Equal(t, "t", out.TraceID)
}

func TestCropContent(t *testing.T) {
	f := gradient(20, 10, 3)

	out, err := f.Crop(image.Rect(5, 2, 9, 6))
	require.NoError(t, err)

	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			for c := 0; c < 3; c++ {
				want := f.Data[((y+2)*20+(x+5))*3+c]
				got := out.Data[(y*out.Width+x)*3+c]
				require.Equal(t, want, got, "pixel (%d,%d) channel %d", x, y, c)
			}
		}
	}
}

func TestCropGrayscale(t *testing.T) {
	f := gradient(16, 16, 1)

	out, err := f.Crop(image.Rect(0, 0, 8, 8))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Channels)
	assert.Len(t, out.Data, 64)
}

func TestCropOutOfBounds(t *testing.T) {
	f := gradient(100, 100, 3)

	for _, r := range []image.Rectangle{
		image.Rect(60, 60, 120, 120), // exceeds both axes
		image.Rect(-5, 0, 10, 10),    // negative origin
		image.Rect(10, 10, 10, 40),   // empty
	} {
		_, err := f.Crop(r)
		assert.Error(t, err, "rect %v", r)
	}
}

func TestCropDoesNotAliasSource(t *testing.T) {
	f := gradient(10, 10, 3)
	out, err := f.Crop(image.Rect(0, 0, 5, 5))
	require.NoError(t, err)

	orig := f.Data[0]
	out.Data[0] ^= 0xFF
	assert.Equal(t, orig, f.Data[0])
}
