// Package emitter publishes run telemetry to an MQTT broker.
package emitter

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Event types published over the run topic.
const (
	EventRunStarted   = "run_started"
	EventInputOpened  = "input_opened"
	EventSegmentOpen  = "segment_opened"
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
)

// Event is one run telemetry record. Encoded with msgpack on the wire.
type Event struct {
	RunID     string    `msgpack:"run_id"`
	Instance  string    `msgpack:"instance"`
	Type      string    `msgpack:"type"`
	Input     string    `msgpack:"input,omitempty"`
	Segment   int       `msgpack:"segment,omitempty"`
	Elapsed   float64   `msgpack:"elapsed,omitempty"` // seconds of output time
	Frames    uint64    `msgpack:"frames,omitempty"`
	Error     string    `msgpack:"error,omitempty"`
	Timestamp time.Time `msgpack:"timestamp"`
}

// Encode serializes the event for publishing.
func (ev Event) Encode() ([]byte, error) {
	return msgpack.Marshal(ev)
}

// DecodeEvent deserializes a published event.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	err := msgpack.Unmarshal(data, &ev)
	return ev, err
}
