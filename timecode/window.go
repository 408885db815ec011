package timecode

import "fmt"

// Window is the playback range a frame source will emit: an inclusive
// begin frame and an optional exclusive end frame. A nil End means
// "until the source is exhausted".
type Window struct {
	Begin FrameTime
	End   *FrameTime
}

// NewWindow validates and builds a playback window.
//
// Invariants: Begin.FrameIndex() >= 1; when End is set it must share
// Begin's frame rate and satisfy End.FrameIndex() >= Begin.FrameIndex().
func NewWindow(begin FrameTime, end *FrameTime) (Window, error) {
	if begin.FrameIndex() < 1 {
		return Window{}, fmt.Errorf("timecode: window begin index must be >= 1, got %d", begin.FrameIndex())
	}
	if end != nil {
		if end.FPS() != begin.FPS() {
			return Window{}, fmt.Errorf("timecode: window bounds: %w: %g vs %g fps",
				ErrIncompatibleRate, begin.FPS(), end.FPS())
		}
		if end.FrameIndex() < begin.FrameIndex() {
			return Window{}, fmt.Errorf("timecode: window end index %d before begin index %d",
				end.FrameIndex(), begin.FrameIndex())
		}
	}
	return Window{Begin: begin, End: end}, nil
}

// Before reports whether a frame index falls before the window begins.
func (w Window) Before(index int64) bool {
	return index < w.Begin.FrameIndex()
}

// After reports whether a frame index falls at or past the window end.
// Always false for open-ended windows.
func (w Window) After(index int64) bool {
	return w.End != nil && index >= w.End.FrameIndex()
}

// Contains reports whether a frame index is inside the window.
func (w Window) Contains(index int64) bool {
	return !w.Before(index) && !w.After(index)
}
