// Package video defines the decoded frame value type and the contracts
// for the underlying decode/encode bindings.
//
// Frame indices are 1-based everywhere in this module: the first frame
// of a file is index 1. Bindings translate to whatever base their codec
// library uses.
package video

import (
	"fmt"
	"image"
)

// Frame is one decoded image at a specific position in playback order.
//
// IMMUTABILITY CONTRACT:
//   - Producers MUST NOT modify Data after handing the frame off
//   - Consumers MUST NOT modify Data (read-only access)
//
// Ownership moves with the frame: whichever queue slot currently holds
// it owns it, and transfer is by reference, never by copy.
type Frame struct {
	// Data holds packed row-major pixels (Width*Channels bytes per row).
	Data []byte

	// Width of the frame in pixels
	Width int

	// Height of the frame in pixels
	Height int

	// Channels per pixel (3 for BGR color, 1 for grayscale)
	Channels int

	// Index is the 1-based position at which the frame was decoded.
	// Strictly increasing along a stream.
	Index int64

	// TraceID uniquely identifies the frame for log correlation.
	TraceID string
}

// Crop extracts a rectangular region as a new Frame.
//
// The rectangle must lie within the frame bounds; callers are expected
// to have validated it (sinks do so at construction time).
func (f *Frame) Crop(r image.Rectangle) (*Frame, error) {
	bounds := image.Rect(0, 0, f.Width, f.Height)
	if r.Empty() || !r.In(bounds) {
		return nil, fmt.Errorf("video: crop %v outside frame bounds %v", r, bounds)
	}

	stride := f.Width * f.Channels
	w := r.Dx()
	h := r.Dy()
	out := make([]byte, w*h*f.Channels)

	for row := 0; row < h; row++ {
		src := (r.Min.Y+row)*stride + r.Min.X*f.Channels
		copy(out[row*w*f.Channels:(row+1)*w*f.Channels], f.Data[src:src+w*f.Channels])
	}

	return &Frame{
		Data:     out,
		Width:    w,
		Height:   h,
		Channels: f.Channels,
		Index:    f.Index,
		TraceID:  f.TraceID,
	}, nil
}
