// Package config loads the videocrop YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete videocrop configuration
type Config struct {
	InstanceID string       `yaml:"instance_id"`
	Output     OutputConfig `yaml:"output"`
	MQTT       MQTTConfig   `yaml:"mqtt"`
}

// OutputConfig contains output encoding defaults. Command line flags
// override these.
type OutputConfig struct {
	FourCC    string  `yaml:"fourcc"`    // four-character codec tag (default: MJPG)
	FPS       float64 `yaml:"fps"`       // output frame rate (default: 25)
	Grayscale bool    `yaml:"grayscale"` // write single-channel output
}

// MQTTConfig contains MQTT broker settings for run telemetry. Telemetry
// is disabled when Broker is empty.
type MQTTConfig struct {
	Broker string `yaml:"broker"`
	Topic  string `yaml:"topic"` // run events topic (default: videocrop/runs)
	QoS    byte   `yaml:"qos"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		InstanceID: "videocrop",
		Output: OutputConfig{
			FourCC: "MJPG",
			FPS:    25,
		},
		MQTT: MQTTConfig{
			Topic: "videocrop/runs",
		},
	}
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills fields the file left empty.
func applyDefaults(cfg *Config) {
	d := Default()
	if cfg.InstanceID == "" {
		cfg.InstanceID = d.InstanceID
	}
	if cfg.Output.FourCC == "" {
		cfg.Output.FourCC = d.Output.FourCC
	}
	if cfg.Output.FPS == 0 {
		cfg.Output.FPS = d.Output.FPS
	}
	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = d.MQTT.Topic
	}
}
