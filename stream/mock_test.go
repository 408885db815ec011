package stream

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/visiona/framestream/video"
)

// fakeDecoder is a deterministic in-memory decoder: frame i carries a
// payload whose first byte is i%256, so tests can check ordering and
// windowing by content.
type fakeDecoder struct {
	fps        float64
	frameCount int64
	width      int
	height     int

	// pos is the 1-based index of the next frame to decode.
	pos int64

	// failGrabAt maps a frame index to the number of consecutive grab
	// failures to inject before it succeeds. A negative count fails
	// forever.
	failGrabAt map[int64]int

	// ignoreSeek makes Seek a no-op, forcing the worker to decode
	// forward and discard up to the window begin.
	ignoreSeek bool

	grabbed  bool
	released atomic.Bool
	releases atomic.Int32

	mu       sync.Mutex
	failures map[int64]int
}

func newFakeDecoder(frameCount int64, fps float64) *fakeDecoder {
	return &fakeDecoder{
		fps:        fps,
		frameCount: frameCount,
		width:      8,
		height:     4,
		pos:        1,
		failures:   map[int64]int{},
	}
}

func (d *fakeDecoder) FPS() float64      { return d.fps }
func (d *fakeDecoder) FrameCount() int64 { return d.frameCount }
func (d *fakeDecoder) Width() int        { return d.width }
func (d *fakeDecoder) Height() int       { return d.height }
func (d *fakeDecoder) Position() int64   { return d.pos }

func (d *fakeDecoder) Seek(index int64) error {
	if d.ignoreSeek {
		return nil
	}
	if index < 1 {
		return fmt.Errorf("fake: seek to %d", index)
	}
	d.pos = index
	return nil
}

func (d *fakeDecoder) Grab() bool {
	if d.pos > d.frameCount {
		return false
	}
	if budget, ok := d.failGrabAt[d.pos]; ok {
		d.mu.Lock()
		seen := d.failures[d.pos]
		if budget < 0 || seen < budget {
			d.failures[d.pos] = seen + 1
			d.mu.Unlock()
			return false
		}
		d.mu.Unlock()
	}
	d.grabbed = true
	return true
}

func (d *fakeDecoder) Retrieve() (*video.Frame, error) {
	if !d.grabbed {
		return nil, fmt.Errorf("fake: retrieve without grab")
	}
	d.grabbed = false

	data := make([]byte, d.width*d.height*3)
	data[0] = byte(d.pos % 256)
	f := &video.Frame{
		Data:     data,
		Width:    d.width,
		Height:   d.height,
		Channels: 3,
		Index:    d.pos,
	}
	d.pos++
	return f, nil
}

func (d *fakeDecoder) Release() error {
	d.released.Store(true)
	d.releases.Add(1)
	return nil
}

// fakeEncoder records every frame it is given. An optional failAfter
// threshold makes Write fail terminally from that count on; an optional
// gate channel blocks Write until the test releases it, to exercise
// queue backpressure.
type fakeEncoder struct {
	mu     sync.Mutex
	frames []*video.Frame

	failAfter int // fail once this many frames were accepted; 0 disables
	gate      chan struct{}

	released atomic.Bool
	releases atomic.Int32
}

func newFakeEncoder() *fakeEncoder {
	return &fakeEncoder{}
}

func (e *fakeEncoder) Write(f *video.Frame) error {
	if e.gate != nil {
		<-e.gate
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failAfter > 0 && len(e.frames) >= e.failAfter {
		return fmt.Errorf("fake: encoder full")
	}
	e.frames = append(e.frames, f)
	return nil
}

func (e *fakeEncoder) Release() error {
	e.released.Store(true)
	e.releases.Add(1)
	return nil
}

func (e *fakeEncoder) written() []*video.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*video.Frame, len(e.frames))
	copy(out, e.frames)
	return out
}
