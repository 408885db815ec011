package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/visiona/framestream/timecode"
	"github.com/visiona/framestream/video"
)

// DecoderOpener opens a decode handle; it exists so tests and callers
// can substitute the codec binding.
type DecoderOpener func(path string) (video.Decoder, error)

// OrchestratorConfig configures a streaming run.
type OrchestratorConfig struct {
	// Regions define the per-output crop rectangles, in write order.
	Regions []CropRegion

	// FourCC, FPS and Color configure every output file.
	FourCC string
	FPS    float64
	Color  bool

	// Splits are the timestamps at which output rotates to a new sink
	// group. Must be in ascending order. Elapsed time is accumulated
	// as 1/fps per consumed frame, so split placement is robust to
	// frame drops in the container.
	Splits []timecode.Timestamp

	// Retry bounds each source's grab retry loop. Zero value uses
	// defaults.
	Retry GrabRetryConfig

	// OpenDecoder and OpenEncoder default to the OpenCV binding when
	// nil.
	OpenDecoder DecoderOpener
	OpenEncoder EncoderOpener

	// OnInput, when set, is called as each input file starts streaming.
	OnInput func(input string)

	// OnSegment, when set, is called after each rotation with the new
	// segment number and the elapsed position at the boundary.
	OnSegment func(segment int, at timecode.Timestamp)
}

// Orchestrator drives one source at a time across a sequence of input
// files, fans every decoded frame out to the active sink group, and
// rotates the group when elapsed playback time crosses the next split.
//
// The old group is fully stopped (workers exited, handles released)
// before the next one is opened, so two writers never target the same
// output naming scheme.
type Orchestrator struct {
	cfg OrchestratorConfig

	framesProcessed atomic.Uint64
	segments        atomic.Uint32
}

// OrchestratorStats is a snapshot of a run's progress.
type OrchestratorStats struct {
	// FramesProcessed counts frames forwarded to the active group.
	FramesProcessed uint64
	// Segments is the number of sink groups opened so far.
	Segments int
}

// NewOrchestrator validates the run configuration.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if len(cfg.Regions) == 0 {
		return nil, errors.New("stream: orchestrator needs at least one crop region")
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("stream: orchestrator: fps must be positive, got %g", cfg.FPS)
	}
	for i := 1; i < len(cfg.Splits); i++ {
		if cfg.Splits[i].Seconds() <= cfg.Splits[i-1].Seconds() {
			return nil, fmt.Errorf("stream: splits must be ascending, got %s after %s",
				cfg.Splits[i], cfg.Splits[i-1])
		}
	}
	return &Orchestrator{cfg: cfg}, nil
}

// Stats returns a snapshot of the run counters.
func (o *Orchestrator) Stats() OrchestratorStats {
	return OrchestratorStats{
		FramesProcessed: o.framesProcessed.Load(),
		Segments:        int(o.segments.Load()),
	}
}

// Run streams the input files in sequence. The begin timestamp applies
// to the first input, the end timestamp to the last one; in between,
// files are consumed whole.
//
// A source that fails terminally (ErrDecodeFailed) aborts its input
// only: the error is collected, and streaming continues with the next
// file. Sink failures abort the run. On every exit path, including
// cancellation and errors, the active sink group and source are
// stopped and their handles released.
func (o *Orchestrator) Run(ctx context.Context, inputs []string, begin timecode.Timestamp, end *timecode.Timestamp) (err error) {
	if len(inputs) == 0 {
		return errors.New("stream: no input files")
	}

	splits := append([]timecode.Timestamp(nil), o.cfg.Splits...)
	segment := 1
	prefix := ""
	if len(splits) > 0 {
		prefix = segmentPrefix(segment)
	}

	var group *SinkGroup
	defer func() {
		if group != nil {
			err = errors.Join(err, group.Stop())
		}
	}()

	elapsed := begin.Seconds()
	var inputErrs []error
	sourceWidth, sourceHeight := 0, 0

	for i, path := range inputs {
		srcBegin := timecode.Timestamp{}
		if i == 0 {
			srcBegin = begin
		}
		var srcEnd *timecode.Timestamp
		if i == len(inputs)-1 {
			srcEnd = end
		}

		src, err := o.openSource(path, srcBegin, srcEnd)
		if err != nil {
			return errors.Join(append(inputErrs, err)...)
		}

		// The first source's geometry fixes the group layout; later
		// inputs must match it.
		if group == nil {
			sourceWidth, sourceHeight = src.Width(), src.Height()
			group, err = o.openGroup(prefix, sourceWidth, sourceHeight)
			if err != nil {
				src.Stop()
				return errors.Join(append(inputErrs, err)...)
			}
		} else if src.Width() != sourceWidth || src.Height() != sourceHeight {
			src.Stop()
			err = fmt.Errorf("stream: input %q geometry %dx%d does not match %dx%d",
				path, src.Width(), src.Height(), sourceWidth, sourceHeight)
			return errors.Join(append(inputErrs, err)...)
		}

		if err := src.Start(ctx); err != nil {
			src.Stop()
			return errors.Join(append(inputErrs, err)...)
		}

		slog.Info("stream: input opened",
			"path", path,
			"fps", src.FPS(),
			"frames", src.FrameCount(),
			"segment", segment,
		)
		if o.cfg.OnInput != nil {
			o.cfg.OnInput(path)
		}

		group, segment, splits, elapsed, err = o.streamFrames(ctx, src, group, segment, splits, elapsed, sourceWidth, sourceHeight)

		stopErr := src.Stop()
		if err != nil {
			return errors.Join(append(inputErrs, err)...)
		}
		if stopErr != nil {
			if !errors.Is(stopErr, ErrDecodeFailed) {
				return errors.Join(append(inputErrs, stopErr)...)
			}
			// Terminal decode failure kills this input only.
			slog.Error("stream: input abandoned", "path", path, "error", stopErr)
			inputErrs = append(inputErrs, fmt.Errorf("input %q: %w", path, stopErr))
		}

		if ctx.Err() != nil {
			slog.Info("stream: run cancelled", "frames_processed", o.framesProcessed.Load())
			break
		}
	}

	return errors.Join(inputErrs...)
}

// streamFrames forwards one source's frames to the active group,
// rotating at split boundaries. The rotation lands on the first frame
// whose accumulated elapsed time reaches the split, and that frame is
// written to the new group.
func (o *Orchestrator) streamFrames(
	ctx context.Context,
	src *Source,
	group *SinkGroup,
	segment int,
	splits []timecode.Timestamp,
	elapsed float64,
	sourceWidth, sourceHeight int,
) (*SinkGroup, int, []timecode.Timestamp, float64, error) {
	perFrame := 1.0 / src.FPS()

	for {
		if ctx.Err() != nil {
			return group, segment, splits, elapsed, nil
		}

		frame := src.Read()
		if frame == nil {
			return group, segment, splits, elapsed, nil
		}

		elapsed += perFrame

		if len(splits) > 0 && elapsed >= splits[0].Seconds() {
			// Drain and release the old group before the new one
			// exists; both must never be open at once.
			if err := group.Stop(); err != nil {
				return group, segment, splits, elapsed, err
			}

			segment++
			at := splits[0]
			splits = splits[1:]

			next, err := o.openGroup(segmentPrefix(segment), sourceWidth, sourceHeight)
			if err != nil {
				return nil, segment, splits, elapsed, err
			}
			group = next

			slog.Info("stream: rotated sink group",
				"segment", segment,
				"at", at.String(),
				"elapsed", timecode.FromSeconds(elapsed).String(),
			)
			if o.cfg.OnSegment != nil {
				o.cfg.OnSegment(segment, at)
			}
		}

		if err := group.Write(frame); err != nil {
			return group, segment, splits, elapsed, err
		}
		o.framesProcessed.Add(1)
	}
}

// openSource opens one input through the configured decoder binding.
func (o *Orchestrator) openSource(path string, begin timecode.Timestamp, end *timecode.Timestamp) (*Source, error) {
	cfg := SourceConfig{Begin: begin, End: end, Retry: o.cfg.Retry}

	if o.cfg.OpenDecoder == nil {
		return OpenSource(path, cfg)
	}

	dec, err := o.cfg.OpenDecoder(path)
	if err != nil {
		return nil, err
	}
	src, err := NewSource(dec, cfg)
	if err != nil {
		dec.Release()
		return nil, err
	}
	src.path = path
	return src, nil
}

// openGroup opens and starts a sink group for one segment.
func (o *Orchestrator) openGroup(prefix string, sourceWidth, sourceHeight int) (*SinkGroup, error) {
	group, err := NewSinkGroup(o.cfg.Regions, GroupConfig{
		FourCC:       o.cfg.FourCC,
		FPS:          o.cfg.FPS,
		Color:        o.cfg.Color,
		SourceWidth:  sourceWidth,
		SourceHeight: sourceHeight,
		Prefix:       prefix,
		OpenEncoder:  o.cfg.OpenEncoder,
	})
	if err != nil {
		return nil, err
	}
	if err := group.Start(); err != nil {
		group.Stop()
		return nil, err
	}
	o.segments.Add(1)
	return group, nil
}

func segmentPrefix(segment int) string {
	return fmt.Sprintf("part%d_", segment)
}
