package timecode

import (
	"errors"
	"fmt"
	"math"
)

// ErrIncompatibleRate is returned when arithmetic mixes FrameTime values
// with different frame rates.
var ErrIncompatibleRate = errors.New("incompatible frame rate")

// FrameTime is a Timestamp bound to a frame rate, with the derived frame
// index at that rate. Frame indices are 1-based: the first frame of a
// file is index 1.
type FrameTime struct {
	ts    Timestamp
	fps   float64
	index int64
}

// NewFrameTime binds a timestamp to a frame rate.
//
// The frame index is derived as floor(seconds*fps) + 1, so 0:00:00 maps
// to frame 1 and, at 25 fps, 0:00:02 maps to frame 51 (the first frame
// of the third second).
func NewFrameTime(ts Timestamp, fps float64) (FrameTime, error) {
	if fps <= 0 {
		return FrameTime{}, fmt.Errorf("timecode: fps must be positive, got %g", fps)
	}
	return FrameTime{
		ts:    ts,
		fps:   fps,
		index: int64(math.Floor(ts.Seconds()*fps)) + 1,
	}, nil
}

// AtFrame is the inverse of NewFrameTime: it builds the FrameTime of a
// given 1-based frame index (seconds = index/fps).
//
// The index is carried explicitly rather than re-derived from the
// seconds value, so AtFrame(idx, fps).FrameIndex() == idx holds exactly
// for every index. Used to report positions.
func AtFrame(index int64, fps float64) (FrameTime, error) {
	if fps <= 0 {
		return FrameTime{}, fmt.Errorf("timecode: fps must be positive, got %g", fps)
	}
	if index < 1 {
		return FrameTime{}, fmt.Errorf("timecode: frame index must be >= 1, got %d", index)
	}
	return FrameTime{
		ts:    FromSeconds(float64(index) / fps),
		fps:   fps,
		index: index,
	}, nil
}

// Timestamp returns the wall-clock part of the frame time.
func (f FrameTime) Timestamp() Timestamp {
	return f.ts
}

// Seconds returns the canonical seconds value.
func (f FrameTime) Seconds() float64 {
	return f.ts.Seconds()
}

// FPS returns the frame rate the index was derived at.
func (f FrameTime) FPS() float64 {
	return f.fps
}

// FrameIndex returns the 1-based frame index.
func (f FrameTime) FrameIndex() int64 {
	return f.index
}

// Add returns the sum of two frame times at the same rate.
func (f FrameTime) Add(o FrameTime) (FrameTime, error) {
	if err := f.compatible(o); err != nil {
		return FrameTime{}, err
	}
	return NewFrameTime(f.ts.Add(o.ts), f.fps)
}

// Sub returns the difference of two frame times at the same rate.
func (f FrameTime) Sub(o FrameTime) (FrameTime, error) {
	if err := f.compatible(o); err != nil {
		return FrameTime{}, err
	}
	return NewFrameTime(f.ts.Sub(o.ts), f.fps)
}

func (f FrameTime) compatible(o FrameTime) error {
	if f.fps != o.fps {
		return fmt.Errorf("%w: %g vs %g fps", ErrIncompatibleRate, f.fps, o.fps)
	}
	return nil
}

// String formats the frame time as "H:MM:SS.mmm (N frame/s)".
func (f FrameTime) String() string {
	return fmt.Sprintf("%s (%g frame/s)", f.ts, f.fps)
}
