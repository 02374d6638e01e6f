// Package config loads the YAML configuration for the pairdemo binary.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config describes one demo endpoint. A process either listens or connects;
// setting both (or neither) is a configuration error.
type Config struct {
	Name  string `yaml:"name"`
	Debug bool   `yaml:"debug"`

	// Exactly one of Listen/Connect must be set.
	Listen  string `yaml:"listen,omitempty"`
	Connect string `yaml:"connect,omitempty"`

	// Codec selects the stream encoding: "json" (newline-delimited,
	// default) or "msgpack".
	Codec string `yaml:"codec,omitempty"`

	CallTimeoutMs int `yaml:"call_timeout_ms,omitempty"`
	EmitTimeoutMs int `yaml:"emit_timeout_ms,omitempty"`
}

// Load reads and validates a config file.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults
	if config.Name == "" {
		config.Name = "pairdemo"
	}
	if config.Codec == "" {
		config.Codec = "json"
	}

	// Validate configuration values
	if config.Codec != "json" && config.Codec != "msgpack" {
		return nil, fmt.Errorf("unknown codec %q (want json or msgpack)", config.Codec)
	}
	if (config.Listen == "") == (config.Connect == "") {
		return nil, fmt.Errorf("exactly one of listen/connect must be set")
	}
	if config.CallTimeoutMs < 0 || config.EmitTimeoutMs < 0 {
		return nil, fmt.Errorf("timeouts cannot be negative")
	}

	return &config, nil
}

// CallTimeout returns the configured call timeout, or zero when the pair
// default should apply.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutMs) * time.Millisecond
}

// EmitTimeout returns the configured emit timeout, or zero when the pair
// default should apply.
func (c *Config) EmitTimeout() time.Duration {
	return time.Duration(c.EmitTimeoutMs) * time.Millisecond
}
