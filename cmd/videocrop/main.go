// Command videocrop extracts cropped regions from one or more video
// files into separate output files, optionally restricted to a time
// window and split into sequentially numbered parts.
//
// Usage:
//
//	videocrop [flags] CROPS_FILE INPUT [INPUT...]
//
// CROPS_FILE is a tab-separated table, one region per line:
//
//	X:Y:W:H<TAB>output_file
//
// Multiple inputs are streamed back to back as one continuous
// recording.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/visiona/framestream/internal/config"
	"github.com/visiona/framestream/internal/croptable"
	"github.com/visiona/framestream/internal/emitter"
	"github.com/visiona/framestream/stream"
	"github.com/visiona/framestream/timecode"
)

func main() {
	start := flag.String("start", "", "start of the playback window (H:MM:SS.mmm)")
	end := flag.String("end", "", "end of the playback window, exclusive (H:MM:SS.mmm)")
	splits := flag.String("splits", "", "comma-separated timestamps at which output rotates to a new part")
	fourcc := flag.String("fourcc", "", "four-character output codec tag (overrides config)")
	fps := flag.Float64("fps", 0, "output frame rate (overrides config)")
	bw := flag.Bool("bw", false, "write grayscale output")
	configPath := flag.String("config", "", "path to configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if flag.NArg() < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] CROPS_FILE INPUT [INPUT...]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	cropsPath := flag.Arg(0)
	inputs := flag.Args()[1:]

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *fourcc != "" {
		cfg.Output.FourCC = *fourcc
	}
	if *fps > 0 {
		cfg.Output.FPS = *fps
	}
	if *bw {
		cfg.Output.Grayscale = true
	}

	regions, err := croptable.Load(cropsPath)
	if err != nil {
		slog.Error("failed to load crop table", "path", cropsPath, "error", err)
		os.Exit(1)
	}

	begin, endTS, splitTS, err := parseWindow(*start, *end, *splits)
	if err != nil {
		slog.Error("invalid time window", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	runID := uuid.NewString()
	slog.Info("starting videocrop run",
		"run_id", runID,
		"instance", cfg.InstanceID,
		"crops", cropsPath,
		"inputs", inputs,
		"regions", len(regions),
	)

	telemetry := newTelemetry(cfg, runID)
	defer telemetry.close()

	orch, err := stream.NewOrchestrator(stream.OrchestratorConfig{
		Regions: regions,
		FourCC:  cfg.Output.FourCC,
		FPS:     cfg.Output.FPS,
		Color:   !cfg.Output.Grayscale,
		Splits:  splitTS,
		OnInput: func(input string) {
			telemetry.emit(emitter.Event{
				Type:  emitter.EventInputOpened,
				Input: input,
			})
		},
		OnSegment: func(segment int, at timecode.Timestamp) {
			telemetry.emit(emitter.Event{
				Type:    emitter.EventSegmentOpen,
				Segment: segment,
				Elapsed: at.Seconds(),
			})
		},
	})
	if err != nil {
		slog.Error("invalid run configuration", "error", err)
		os.Exit(1)
	}

	telemetry.emit(emitter.Event{Type: emitter.EventRunStarted})

	runErr := orch.Run(ctx, inputs, begin, endTS)
	st := orch.Stats()

	if runErr != nil {
		telemetry.emit(emitter.Event{
			Type:   emitter.EventRunFailed,
			Frames: st.FramesProcessed,
			Error:  runErr.Error(),
		})
		slog.Error("run failed",
			"run_id", runID,
			"frames_processed", st.FramesProcessed,
			"segments", st.Segments,
			"error", runErr,
		)
		os.Exit(1)
	}

	telemetry.emit(emitter.Event{
		Type:   emitter.EventRunCompleted,
		Frames: st.FramesProcessed,
	})
	slog.Info("run completed",
		"run_id", runID,
		"frames_processed", st.FramesProcessed,
		"segments", st.Segments,
	)
}

// parseWindow parses the -start, -end and -splits flags.
func parseWindow(start, end, splits string) (timecode.Timestamp, *timecode.Timestamp, []timecode.Timestamp, error) {
	var begin timecode.Timestamp
	if start != "" {
		ts, err := timecode.Parse(start)
		if err != nil {
			return begin, nil, nil, fmt.Errorf("-start: %w", err)
		}
		begin = ts
	}

	var endTS *timecode.Timestamp
	if end != "" {
		ts, err := timecode.Parse(end)
		if err != nil {
			return begin, nil, nil, fmt.Errorf("-end: %w", err)
		}
		endTS = &ts
	}

	var splitTS []timecode.Timestamp
	if splits != "" {
		for _, field := range strings.Split(splits, ",") {
			ts, err := timecode.Parse(strings.TrimSpace(field))
			if err != nil {
				return begin, nil, nil, fmt.Errorf("-splits: %w", err)
			}
			splitTS = append(splitTS, ts)
		}
	}

	return begin, endTS, splitTS, nil
}

// telemetry wraps the optional MQTT emitter; all methods are no-ops
// when no broker is configured or the connection failed.
type telemetry struct {
	em       *emitter.MQTTEmitter
	runID    string
	instance string
}

func newTelemetry(cfg *config.Config, runID string) *telemetry {
	t := &telemetry{runID: runID, instance: cfg.InstanceID}
	if cfg.MQTT.Broker == "" {
		return t
	}

	em := emitter.NewMQTTEmitter(cfg.MQTT, cfg.InstanceID+"-"+runID[:8])
	if err := em.Connect(); err != nil {
		slog.Warn("run telemetry disabled", "error", err)
		return t
	}
	t.em = em
	return t
}

func (t *telemetry) emit(ev emitter.Event) {
	if t.em == nil {
		return
	}
	ev.RunID = t.runID
	ev.Instance = t.instance
	ev.Timestamp = time.Now().UTC()
	if err := t.em.Publish(ev); err != nil {
		slog.Warn("failed to publish run event", "type", ev.Type, "error", err)
	}
}

func (t *telemetry) close() {
	if t.em == nil {
		return
	}
	st := t.em.Stats()
	slog.Debug("telemetry closed", "published", st.Published, "errors", st.Errors)
	t.em.Disconnect()
}
