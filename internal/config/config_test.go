package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
instance_id: cage-room-3
output:
  fourcc: XVID
  fps: 30
  grayscale: true
mqtt:
  broker: localhost:1883
  topic: lab/videocrop
  qos: 1
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "cage-room-3", cfg.InstanceID)
	assert.Equal(t, "XVID", cfg.Output.FourCC)
	assert.Equal(t, 30.0, cfg.Output.FPS)
	assert.True(t, cfg.Output.Grayscale)
	assert.Equal(t, "localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "lab/videocrop", cfg.MQTT.Topic)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "instance_id: bench-a\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "MJPG", cfg.Output.FourCC)
	assert.Equal(t, 25.0, cfg.Output.FPS)
	assert.False(t, cfg.Output.Grayscale)
	assert.Empty(t, cfg.MQTT.Broker)
	assert.Equal(t, "videocrop/runs", cfg.MQTT.Topic)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad instance id", "instance_id: Cage Room 3\n"},
		{"bad fourcc", "instance_id: a\noutput:\n  fourcc: MJPEG\n"},
		{"negative fps", "instance_id: a\noutput:\n  fps: -1\n"},
		{"bad qos", "instance_id: a\nmqtt:\n  qos: 3\n"},
		{"not yaml", "{{{\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
