package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks if the configuration is valid
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if len(cfg.Output.FourCC) != 4 {
		return fmt.Errorf("output.fourcc must be exactly 4 characters, got %q", cfg.Output.FourCC)
	}
	if cfg.Output.FPS <= 0 {
		return fmt.Errorf("output.fps must be positive, got %g", cfg.Output.FPS)
	}

	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
	}

	return nil
}
