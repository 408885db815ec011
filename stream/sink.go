package stream

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/visiona/framestream/video"
)

var (
	// ErrWriterNotReady is returned by Write when the encode worker is
	// not running (not started, already stopped, or dead after a
	// terminal encode failure).
	ErrWriterNotReady = errors.New("writer not ready")

	// ErrCropOutOfBounds is returned at sink construction when the
	// crop rectangle does not lie within the source geometry.
	ErrCropOutOfBounds = errors.New("crop outside source bounds")
)

// SinkConfig configures a frame sink.
type SinkConfig struct {
	// Path of the output file.
	Path string

	// FourCC is the four-character codec tag (e.g. "MJPG").
	FourCC string

	// FPS is the output frame rate.
	FPS float64

	// SourceWidth and SourceHeight are the dimensions of the frames
	// that will be written. The crop rectangle is validated against
	// them; without a crop they are also the output dimensions.
	SourceWidth  int
	SourceHeight int

	// Color selects color output (false for grayscale).
	Color bool

	// Crop, when set, is extracted from every frame before it is
	// queued for encoding. Must lie within SourceWidth×SourceHeight.
	Crop *image.Rectangle
}

// validate applies the fail-fast construction checks.
func (c SinkConfig) validate() error {
	if c.FPS <= 0 {
		return fmt.Errorf("stream: sink %q: fps must be positive, got %g", c.Path, c.FPS)
	}
	if c.SourceWidth <= 0 || c.SourceHeight <= 0 {
		return fmt.Errorf("stream: sink %q: invalid source geometry %dx%d",
			c.Path, c.SourceWidth, c.SourceHeight)
	}
	if c.Crop != nil {
		bounds := image.Rect(0, 0, c.SourceWidth, c.SourceHeight)
		if c.Crop.Empty() || !c.Crop.In(bounds) {
			return fmt.Errorf("stream: sink %q: %w: %v not in %v",
				c.Path, ErrCropOutOfBounds, *c.Crop, bounds)
		}
	}
	return nil
}

// outputSize returns the encoded frame dimensions.
func (c SinkConfig) outputSize() (w, h int) {
	if c.Crop != nil {
		return c.Crop.Dx(), c.Crop.Dy()
	}
	return c.SourceWidth, c.SourceHeight
}

// Sink owns an encode handle and a background worker that drains a
// bounded queue and writes frames to it, optionally cropping each frame
// first.
//
// Lifecycle: Open/New → Start → Write... → Stop. Stop drains every
// frame accepted before it was called (graceful drain, not discard) and
// then releases the encode handle.
//
// Write and Stop are driven by one foreground goroutine; they are not
// safe to call concurrently with each other.
type Sink struct {
	enc  video.Encoder
	cfg  SinkConfig
	crop *image.Rectangle

	in chan *video.Frame
	wg sync.WaitGroup

	started  atomic.Bool
	alive    atomic.Bool
	failed   atomic.Bool
	stopOnce sync.Once

	releaseOnce sync.Once

	mu         sync.Mutex
	encodeErr  error
	releaseErr error

	framesWritten   atomic.Uint64
	framesDiscarded atomic.Uint64
}

// SinkStats is a snapshot of a sink's operational state.
type SinkStats struct {
	// Path of the output file.
	Path string
	// FramesWritten counts frames handed to the encoder.
	FramesWritten uint64
	// FramesDiscarded counts frames drained after a terminal encode
	// failure (kept off the dead encoder so the producer never
	// deadlocks on a full queue).
	FramesDiscarded uint64
}

// OpenSink opens the output file through the default encoder binding
// and wraps it in a Sink.
func OpenSink(cfg SinkConfig) (*Sink, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	w, h := cfg.outputSize()
	enc, err := video.OpenEncoder(cfg.Path, cfg.FourCC, cfg.FPS, w, h, cfg.Color)
	if err != nil {
		return nil, err
	}
	return NewSink(enc, cfg)
}

// NewSink wraps an already-open encoder in a Sink. The crop rectangle,
// when present, is validated here — a bad region fails at construction,
// never at write time.
func NewSink(enc video.Encoder, cfg SinkConfig) (*Sink, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Sink{
		enc:  enc,
		cfg:  cfg,
		crop: cfg.Crop,
		in:   make(chan *video.Frame, queueCapacity),
	}, nil
}

// Path returns the output file path.
func (s *Sink) Path() string { return s.cfg.Path }

// Start spawns the encode worker. A second call fails with
// ErrAlreadyStarted.
func (s *Sink) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("stream: sink %q: %w", s.cfg.Path, ErrAlreadyStarted)
	}
	s.alive.Store(true)

	s.wg.Add(1)
	go s.encodeLoop()

	slog.Debug("stream: sink started", "path", s.cfg.Path, "crop", s.crop != nil)
	return nil
}

// Write crops the frame if a crop region is configured, then enqueues
// it for encoding, blocking while the queue is full (backpressure).
// Fails with ErrWriterNotReady if the worker is not running.
func (s *Sink) Write(f *video.Frame) error {
	if !s.alive.Load() || s.failed.Load() {
		return fmt.Errorf("stream: sink %q: %w", s.cfg.Path, ErrWriterNotReady)
	}

	if s.crop != nil {
		cropped, err := f.Crop(*s.crop)
		if err != nil {
			return fmt.Errorf("stream: sink %q: %w", s.cfg.Path, err)
		}
		f = cropped
	}

	s.in <- f
	return nil
}

// Stop signals the worker to stop, blocks until every frame already
// queued has been encoded, and releases the encode handle. Idempotent.
// Returns the worker's terminal encode error, if any.
func (s *Sink) Stop() error {
	s.stopOnce.Do(func() { close(s.in) })
	s.wg.Wait()

	// Never started: no worker owns the handle, release it here.
	if !s.started.Load() {
		s.release()
	}
	return s.Err()
}

// Err returns the terminal encode or release error. Meaningful once
// Stop has returned.
func (s *Sink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.encodeErr, s.releaseErr)
}

// Stats returns a snapshot of the sink counters.
func (s *Sink) Stats() SinkStats {
	return SinkStats{
		Path:            s.cfg.Path,
		FramesWritten:   s.framesWritten.Load(),
		FramesDiscarded: s.framesDiscarded.Load(),
	}
}

// encodeLoop drains the queue and writes frames in submission order.
// After a terminal encode failure it keeps draining (discarding) so a
// producer blocked on the full queue can always make progress; the
// failure surfaces through Write (ErrWriterNotReady) and Err.
func (s *Sink) encodeLoop() {
	defer s.wg.Done()
	defer s.alive.Store(false)
	defer s.release()

	for f := range s.in {
		if s.failed.Load() {
			s.framesDiscarded.Add(1)
			continue
		}
		if err := s.enc.Write(f); err != nil {
			s.failed.Store(true)
			s.mu.Lock()
			s.encodeErr = err
			s.mu.Unlock()
			s.framesDiscarded.Add(1)
			slog.Error("stream: sink dead, draining remaining frames",
				"path", s.cfg.Path,
				"frame", f.Index,
				"error", err,
			)
			continue
		}
		s.framesWritten.Add(1)
	}
}

// release frees the encode handle exactly once, on every exit path.
func (s *Sink) release() {
	s.releaseOnce.Do(func() {
		if err := s.enc.Release(); err != nil {
			s.mu.Lock()
			s.releaseErr = fmt.Errorf("stream: release encoder %q: %w", s.cfg.Path, err)
			s.mu.Unlock()
		}
	})
}
