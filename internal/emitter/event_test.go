package emitter

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visiona/framestream/internal/config"
)

func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{Broker: "localhost:1883", Topic: "videocrop/runs"}
}

func TestEventRoundTrip(t *testing.T) {
	ev := Event{
		RunID:     uuid.NewString(),
		Instance:  "cage-room-3",
		Type:      EventSegmentOpen,
		Input:     "session.avi",
		Segment:   2,
		Elapsed:   120.5,
		Frames:    3012,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}

	payload, err := ev.Encode()
	require.NoError(t, err)

	got, err := DecodeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	_, err := DecodeEvent([]byte{0xc1, 0xff, 0x00})
	assert.Error(t, err)
}

func TestPublishWhenDisconnected(t *testing.T) {
	e := NewMQTTEmitter(testMQTTConfig(), "test-client")
	err := e.Publish(Event{Type: EventRunStarted})
	require.Error(t, err)
	assert.Equal(t, uint64(1), e.Stats().Errors)
	assert.False(t, e.Stats().Connected)
}
