package stream

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/visiona/framestream/video"
)

func testFrame(width, height int, index int64) *video.Frame {
	data := make([]byte, width*height*3)
	for i := range data {
		data[i] = byte(i + int(index))
	}
	return &video.Frame{
		Data:     data,
		Width:    width,
		Height:   height,
		Channels: 3,
		Index:    index,
	}
}

func TestSinkWritesAllFramesBeforeStop(t *testing.T) {
	enc := newFakeEncoder()
	sink, err := NewSink(enc, SinkConfig{
		Path: "out.avi", FourCC: "MJPG", FPS: 25,
		SourceWidth: 8, SourceHeight: 4, Color: true,
	})
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	if err := sink.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	const n = 300
	for i := 1; i <= n; i++ {
		if err := sink.Write(testFrame(8, 4, int64(i))); err != nil {
			t.Fatalf("Write frame %d: %v", i, err)
		}
	}
	if err := sink.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// Stop drains the queue: every accepted frame reaches the encoder,
	// in submission order.
	got := enc.written()
	if len(got) != n {
		t.Fatalf("encoder saw %d frames, want %d", len(got), n)
	}
	for i, f := range got {
		if f.Index != int64(i+1) {
			t.Fatalf("frame %d has index %d, want %d", i, f.Index, i+1)
		}
	}
	if !enc.released.Load() {
		t.Fatal("encoder not released after Stop")
	}
	if got := sink.Stats().FramesWritten; got != n {
		t.Fatalf("FramesWritten = %d, want %d", got, n)
	}
}

func TestSinkWriteAfterStop(t *testing.T) {
	enc := newFakeEncoder()
	sink, err := NewSink(enc, SinkConfig{
		Path: "out.avi", FourCC: "MJPG", FPS: 25,
		SourceWidth: 8, SourceHeight: 4,
	})
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	if err := sink.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sink.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if err := sink.Write(testFrame(8, 4, 1)); !errors.Is(err, ErrWriterNotReady) {
		t.Fatalf("Write after Stop = %v, want ErrWriterNotReady", err)
	}
}

func TestSinkCropsEveryFrame(t *testing.T) {
	enc := newFakeEncoder()
	crop := image.Rect(2, 1, 6, 3)
	sink, err := NewSink(enc, SinkConfig{
		Path: "out.avi", FourCC: "MJPG", FPS: 25,
		SourceWidth: 8, SourceHeight: 4, Color: true,
		Crop: &crop,
	})
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	if err := sink.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sink.Write(testFrame(8, 4, 1)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := sink.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	got := enc.written()
	if len(got) != 1 {
		t.Fatalf("encoder saw %d frames, want 1", len(got))
	}
	if got[0].Width != 4 || got[0].Height != 2 {
		t.Fatalf("cropped frame is %dx%d, want 4x2", got[0].Width, got[0].Height)
	}
}

func TestSinkRejectsCropOutOfBounds(t *testing.T) {
	crop := image.Rect(4, 0, 12, 4)
	_, err := NewSink(newFakeEncoder(), SinkConfig{
		Path: "out.avi", FourCC: "MJPG", FPS: 25,
		SourceWidth: 8, SourceHeight: 4,
		Crop: &crop,
	})
	if !errors.Is(err, ErrCropOutOfBounds) {
		t.Fatalf("NewSink = %v, want ErrCropOutOfBounds", err)
	}
}

func TestSinkBackpressureBlocksWriter(t *testing.T) {
	enc := newFakeEncoder()
	enc.gate = make(chan struct{})
	sink, err := NewSink(enc, SinkConfig{
		Path: "out.avi", FourCC: "MJPG", FPS: 25,
		SourceWidth: 8, SourceHeight: 4,
	})
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	if err := sink.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The worker pulls one frame and parks on the gated encoder, so the
	// queue plus that in-flight frame absorb writes without blocking.
	// One more write must block until the gate opens.
	blocked := make(chan struct{})
	go func() {
		for i := 1; i <= queueCapacity+2; i++ {
			sink.Write(testFrame(8, 4, int64(i)))
		}
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatal("writer finished with the encoder gated")
	case <-time.After(50 * time.Millisecond):
	}

	close(enc.gate)
	select {
	case <-blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("writer still blocked after the gate opened")
	}

	if err := sink.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := len(enc.written()); got != queueCapacity+2 {
		t.Fatalf("encoder saw %d frames, want %d", got, queueCapacity+2)
	}
}

func TestSinkDrainsAfterEncodeFailure(t *testing.T) {
	enc := newFakeEncoder()
	enc.failAfter = 2
	sink, err := NewSink(enc, SinkConfig{
		Path: "out.avi", FourCC: "MJPG", FPS: 25,
		SourceWidth: 8, SourceHeight: 4,
	})
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	if err := sink.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Even with the encoder dead, writes must never deadlock: the worker
	// keeps draining. Write more than a queue's worth.
	for i := 1; i <= queueCapacity*2; i++ {
		if err := sink.Write(testFrame(8, 4, int64(i))); err != nil {
			if !errors.Is(err, ErrWriterNotReady) {
				t.Fatalf("Write frame %d: %v", i, err)
			}
			break
		}
	}

	if err := sink.Stop(); err == nil {
		t.Fatal("Stop returned nil after a terminal encode failure")
	}
	if got := len(enc.written()); got != 2 {
		t.Fatalf("encoder saw %d frames, want 2", got)
	}
	if !enc.released.Load() {
		t.Fatal("encoder not released after failure")
	}
}

func TestSinkStopIdempotent(t *testing.T) {
	enc := newFakeEncoder()
	sink, err := NewSink(enc, SinkConfig{
		Path: "out.avi", FourCC: "MJPG", FPS: 25,
		SourceWidth: 8, SourceHeight: 4,
	})
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	if err := sink.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sink.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := sink.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if got := enc.releases.Load(); got != 1 {
		t.Fatalf("encoder released %d times, want exactly 1", got)
	}
}
