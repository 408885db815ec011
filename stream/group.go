package stream

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"

	"github.com/visiona/framestream/video"
)

// CropRegion binds one output file to the rectangle extracted for it.
type CropRegion struct {
	// Output is the file the region is written to. The group's
	// filename prefix is applied to its base name.
	Output string

	// Rect is the region extracted from every input frame.
	Rect image.Rectangle
}

// EncoderOpener opens an encode handle; it exists so tests and callers
// can substitute the codec binding.
type EncoderOpener func(path, fourcc string, fps float64, width, height int, color bool) (video.Encoder, error)

// GroupConfig configures a sink group.
type GroupConfig struct {
	FourCC string
	FPS    float64
	Color  bool

	// SourceWidth and SourceHeight are the input frame dimensions the
	// crop regions are validated against.
	SourceWidth  int
	SourceHeight int

	// Prefix is prepended to every output base name ("part2_"). Empty
	// for unsplit runs.
	Prefix string

	// OpenEncoder defaults to the OpenCV binding when nil.
	OpenEncoder EncoderOpener
}

// SinkGroup is the ordered set of per-region sinks active for one
// output segment. Every input frame is fanned out to all members in
// region order; rotation (closing one group, opening the next) is the
// orchestrator's job.
type SinkGroup struct {
	sinks []*Sink
}

// NewSinkGroup opens one sink per region. All crop rectangles are
// validated against the source geometry before any frame flows; a
// failure on any member releases the handles already opened.
func NewSinkGroup(regions []CropRegion, cfg GroupConfig) (*SinkGroup, error) {
	if len(regions) == 0 {
		return nil, errors.New("stream: sink group needs at least one region")
	}

	open := cfg.OpenEncoder
	if open == nil {
		open = video.OpenEncoder
	}

	g := &SinkGroup{sinks: make([]*Sink, 0, len(regions))}
	for _, region := range regions {
		rect := region.Rect
		sinkCfg := SinkConfig{
			Path:         prefixedPath(region.Output, cfg.Prefix),
			FourCC:       cfg.FourCC,
			FPS:          cfg.FPS,
			SourceWidth:  cfg.SourceWidth,
			SourceHeight: cfg.SourceHeight,
			Color:        cfg.Color,
			Crop:         &rect,
		}
		if err := sinkCfg.validate(); err != nil {
			g.Stop()
			return nil, err
		}

		w, h := sinkCfg.outputSize()
		enc, err := open(sinkCfg.Path, cfg.FourCC, cfg.FPS, w, h, cfg.Color)
		if err != nil {
			g.Stop()
			return nil, fmt.Errorf("stream: open sink %q: %w", sinkCfg.Path, err)
		}

		sink, err := NewSink(enc, sinkCfg)
		if err != nil {
			enc.Release()
			g.Stop()
			return nil, err
		}
		g.sinks = append(g.sinks, sink)
	}

	return g, nil
}

// Start spawns every member's encode worker. On failure the members
// already started are stopped.
func (g *SinkGroup) Start() error {
	for i, s := range g.sinks {
		if err := s.Start(); err != nil {
			for _, started := range g.sinks[:i] {
				started.Stop()
			}
			return err
		}
	}
	return nil
}

// Write fans one frame out to every member in order. Each member crops
// its own region; the frame itself is shared read-only.
func (g *SinkGroup) Write(f *video.Frame) error {
	for _, s := range g.sinks {
		if err := s.Write(f); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops every member, draining all queued frames and releasing all
// encode handles, and joins their terminal errors. Idempotent.
func (g *SinkGroup) Stop() error {
	errs := make([]error, 0, len(g.sinks))
	for _, s := range g.sinks {
		if err := s.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	for _, s := range g.sinks {
		st := s.Stats()
		slog.Debug("stream: sink drained",
			"path", st.Path,
			"frames_written", st.FramesWritten,
		)
	}
	return nil
}

// Len returns the number of member sinks.
func (g *SinkGroup) Len() int { return len(g.sinks) }

// Stats returns per-member snapshots in region order.
func (g *SinkGroup) Stats() []SinkStats {
	stats := make([]SinkStats, len(g.sinks))
	for i, s := range g.sinks {
		stats[i] = s.Stats()
	}
	return stats
}

// prefixedPath applies the segment prefix to the base name, leaving any
// directory part untouched.
func prefixedPath(output, prefix string) string {
	if prefix == "" {
		return output
	}
	dir, base := filepath.Split(output)
	return filepath.Join(dir, prefix+base)
}
