// Package stream implements the bounded, threaded frame-streaming
// engine: a Source that decodes a video file in a background goroutine
// and exposes frames through a backpressured queue with time-windowing,
// a Sink that accepts frames for encoding through a symmetric bounded
// queue, and an Orchestrator that fans frames out to rotating groups of
// sinks.
//
// Scheduling model: one background goroutine per Source and per Sink;
// the caller drives blocking Read()/Write() from a single foreground
// goroutine. The bounded channel is the only data shared across the
// goroutine boundary.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/visiona/framestream/timecode"
	"github.com/visiona/framestream/video"
)

// queueCapacity is the FIFO depth between a worker and the foreground.
// Full queue blocks the producer (backpressure); frames are never
// dropped or reordered.
const queueCapacity = 128

var (
	// ErrAlreadyStarted is returned by Start when called twice.
	ErrAlreadyStarted = errors.New("already started")

	// ErrDecodeFailed is the terminal error of a source whose decoder
	// kept failing past the retry budget. It stops that source only.
	ErrDecodeFailed = errors.New("decode failed")
)

// SourceConfig configures a frame source.
type SourceConfig struct {
	// Begin is the first timestamp to emit. Zero value means the start
	// of the file.
	Begin timecode.Timestamp

	// End, when set, is the exclusive end of the playback window. Nil
	// means "until the source is exhausted".
	End *timecode.Timestamp

	// Retry bounds the grab retry loop. Zero value uses defaults.
	Retry GrabRetryConfig
}

// Source owns a decode handle and a background worker that publishes
// decoded frames into a bounded queue.
//
// Lifecycle: Open/New → Start → Read... → Stop. The decode handle is
// released exactly once, whether the worker stops because the window is
// exhausted, the media ends, decoding fails terminally, or the caller
// requests stop.
type Source struct {
	dec    video.Decoder
	window timecode.Window
	retry  GrabRetryConfig
	path   string

	frames chan *video.Frame

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	releaseOnce sync.Once

	mu         sync.Mutex
	started    bool
	workerErr  error
	releaseErr error

	framesEmitted atomic.Uint64
	framesSkipped atomic.Uint64
	grabRetries   atomic.Uint64
}

// SourceStats is a snapshot of a source's operational state.
type SourceStats struct {
	// FramesEmitted counts frames delivered into the queue.
	FramesEmitted uint64
	// FramesSkipped counts frames decoded then discarded before the
	// window begin (sequential decode from an earlier seek point).
	FramesSkipped uint64
	// GrabRetries counts transient grab failures that were retried.
	GrabRetries uint64
}

// OpenSource opens the file at path through the default decoder binding
// and wraps it in a Source.
func OpenSource(path string, cfg SourceConfig) (*Source, error) {
	dec, err := video.OpenDecoder(path)
	if err != nil {
		return nil, err
	}
	s, err := NewSource(dec, cfg)
	if err != nil {
		dec.Release()
		return nil, err
	}
	s.path = path
	return s, nil
}

// NewSource wraps an already-open decoder in a Source.
//
// The playback window is translated into frame-index bounds at the
// decoder's frame rate; an open end is bounded by the container's frame
// count when it is known. The decoder is seeked to the window begin,
// but frames are still decoded sequentially and discarded up to the
// begin index, because index seeks are unreliable on some compressed
// formats.
func NewSource(dec video.Decoder, cfg SourceConfig) (*Source, error) {
	fps := dec.FPS()
	if fps <= 0 {
		return nil, fmt.Errorf("stream: decoder reports invalid frame rate %g", fps)
	}

	begin, err := timecode.NewFrameTime(cfg.Begin, fps)
	if err != nil {
		return nil, fmt.Errorf("stream: window begin: %w", err)
	}

	var end *timecode.FrameTime
	switch {
	case cfg.End != nil:
		ft, err := timecode.NewFrameTime(*cfg.End, fps)
		if err != nil {
			return nil, fmt.Errorf("stream: window end: %w", err)
		}
		end = &ft
	case dec.FrameCount() > 0:
		// Open-ended window on a file with known length: bound it one
		// past the last frame so the worker stops without burning the
		// grab retry budget at EOF.
		ft, err := timecode.AtFrame(dec.FrameCount()+1, fps)
		if err != nil {
			return nil, fmt.Errorf("stream: window end: %w", err)
		}
		end = &ft
	}

	window, err := timecode.NewWindow(begin, end)
	if err != nil {
		return nil, err
	}

	if err := dec.Seek(window.Begin.FrameIndex()); err != nil {
		return nil, fmt.Errorf("stream: seek to frame %d: %w", window.Begin.FrameIndex(), err)
	}

	return &Source{
		dec:    dec,
		window: window,
		retry:  cfg.Retry.withDefaults(),
		frames: make(chan *video.Frame, queueCapacity),
	}, nil
}

// FPS returns the source frame rate.
func (s *Source) FPS() float64 { return s.dec.FPS() }

// FrameCount returns the container frame count (0 when unknown).
func (s *Source) FrameCount() int64 { return s.dec.FrameCount() }

// Width returns the frame width in pixels.
func (s *Source) Width() int { return s.dec.Width() }

// Height returns the frame height in pixels.
func (s *Source) Height() int { return s.dec.Height() }

// Window returns the playback window in frame-index bounds.
func (s *Source) Window() timecode.Window { return s.window }

// Start spawns the decode worker. A second call fails with
// ErrAlreadyStarted.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("stream: source %q: %w", s.path, ErrAlreadyStarted)
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.decodeLoop()

	slog.Debug("stream: source started",
		"path", s.path,
		"begin_frame", s.window.Begin.FrameIndex(),
		"fps", s.dec.FPS(),
	)
	return nil
}

// Read pulls the next frame, blocking while the queue is empty and the
// worker is alive. Returns nil once the worker has stopped and the
// queue is drained; after that point it returns nil immediately on
// every call, it never blocks again.
func (s *Source) Read() *video.Frame {
	f, ok := <-s.frames
	if !ok {
		return nil
	}
	return f
}

// Stop signals the worker and blocks until it has exited and the decode
// handle is released. Idempotent and safe before Start. Returns the
// worker's terminal error, if any.
func (s *Source) Stop() error {
	s.mu.Lock()
	started := s.started
	cancel := s.cancel
	s.mu.Unlock()

	if !started {
		// No worker owns the handle yet; release it here.
		s.release()
		return s.Err()
	}

	cancel()
	s.wg.Wait()
	return s.Err()
}

// Err returns the terminal worker error (ErrDecodeFailed after the
// retry budget is exhausted) or the handle release error. Meaningful
// once Read has returned nil or Stop has returned.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.workerErr, s.releaseErr)
}

// Stats returns a snapshot of the source counters.
func (s *Source) Stats() SourceStats {
	return SourceStats{
		FramesEmitted: s.framesEmitted.Load(),
		FramesSkipped: s.framesSkipped.Load(),
		GrabRetries:   s.grabRetries.Load(),
	}
}

// decodeLoop is the background worker: it decodes sequentially,
// discards frames before the window begin, stops at the window end and
// publishes everything in between, blocking when the queue is full.
func (s *Source) decodeLoop() {
	defer s.wg.Done()
	defer s.release()
	defer close(s.frames)

	for {
		if s.ctx.Err() != nil {
			return
		}

		// Index of the frame about to be decoded.
		pos := s.dec.Position()

		if s.window.After(pos) {
			slog.Debug("stream: window exhausted",
				"path", s.path,
				"frame", pos,
				"emitted", s.framesEmitted.Load(),
			)
			return
		}

		if !s.grabWithRetry(pos) {
			return
		}

		frame, err := s.dec.Retrieve()
		if err != nil {
			s.setWorkerErr(fmt.Errorf("stream: %w: retrieve frame %d: %v", ErrDecodeFailed, pos, err))
			return
		}

		if s.window.Before(pos) {
			// Decode-then-discard up to the window begin: seeking by
			// index lands short on some compressed formats, decoding
			// forward from the seek point guarantees correctness.
			s.framesSkipped.Add(1)
			continue
		}

		frame.Index = pos

		select {
		case s.frames <- frame:
			s.framesEmitted.Add(1)
		case <-s.ctx.Done():
			return
		}
	}
}

// grabWithRetry attempts a grab with bounded exponential backoff.
// Returns false when cancelled or when the budget is exhausted (the
// terminal error is recorded for Err).
func (s *Source) grabWithRetry(pos int64) bool {
	delay := s.retry.InitialDelay

	for attempt := 0; ; attempt++ {
		if s.ctx.Err() != nil {
			return false
		}
		if s.dec.Grab() {
			return true
		}
		if attempt >= s.retry.MaxRetries {
			err := fmt.Errorf("stream: %w: grab frame %d failed %d times",
				ErrDecodeFailed, pos, attempt+1)
			s.setWorkerErr(err)
			slog.Error("stream: giving up on source",
				"path", s.path,
				"frame", pos,
				"attempts", attempt+1,
			)
			return false
		}

		s.grabRetries.Add(1)
		slog.Warn("stream: grab failed, retrying",
			"path", s.path,
			"frame", pos,
			"attempt", attempt+1,
			"delay", delay,
		)

		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return false
		}
		delay = s.retry.nextDelay(delay)
	}
}

// release frees the decode handle exactly once, on every exit path.
func (s *Source) release() {
	s.releaseOnce.Do(func() {
		if err := s.dec.Release(); err != nil {
			s.mu.Lock()
			s.releaseErr = fmt.Errorf("stream: release decoder %q: %w", s.path, err)
			s.mu.Unlock()
		}
	})
}

func (s *Source) setWorkerErr(err error) {
	s.mu.Lock()
	if s.workerErr == nil {
		s.workerErr = err
	}
	s.mu.Unlock()
}
