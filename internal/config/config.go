// Package config holds the process-wide server configuration, loaded once at
// startup from the environment and CLI flags and passed by shared reference.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// ServerConfig is the process-wide configuration for gst-switch-server.
// It is constructed once in cmd/gst-switch-server and passed by pointer to
// every component that needs it (mirrors helix's config.ServerConfig).
type ServerConfig struct {
	VideoInputPort int    `envconfig:"VIDEO_INPUT_PORT" default:"3000"`
	AudioInputPort int    `envconfig:"AUDIO_INPUT_PORT" default:"4000"`
	MinSinkPort    int    `envconfig:"MIN_SINK_PORT" default:"1"`
	MaxSinkPort    int    `envconfig:"MAX_SINK_PORT" default:"65535"`
	ControllerAddr string `envconfig:"CONTROLLER_ADDRESS" default:"nats://127.0.0.1:4222"`
	RecordTemplate string `envconfig:"RECORD" default:""`
	VideoCaps      string `envconfig:"VIDEO_CAPS" default:""`
	LowRes         bool   `envconfig:"LOW_RES" default:"false"`
	Verbose        bool   `envconfig:"VERBOSE" default:"false"`
	StatusAddr     string `envconfig:"STATUS_ADDR" default:"127.0.0.1:9091"`
}

// LoadServerConfig reads a ServerConfig from the environment, applying
// defaults for anything unset.
func LoadServerConfig() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := envconfig.Process("GST_SWITCH", &cfg); err != nil {
		return nil, fmt.Errorf("load server config: %w", err)
	}
	return &cfg, nil
}

// DefaultCapsAlias returns the format alias or caps string for the canvas:
// "debug" when --low-res is set, otherwise VideoCaps if given, otherwise
// "720p25". --low-res always wins over an explicit VideoCaps, matching the
// original gst-switch-server's --low-res override switch.
func (c *ServerConfig) DefaultCapsAlias() string {
	if c.LowRes {
		return "debug"
	}
	if c.VideoCaps != "" {
		return c.VideoCaps
	}
	return "720p25"
}

// UIConfig is the process-wide configuration for gst-switch-ui.
type UIConfig struct {
	Verbose          bool   `envconfig:"VERBOSE" default:"false"`
	RequestTimeoutMs int    `envconfig:"REQUEST_TIMEOUT" default:"5000"`
	Address          string `envconfig:"ADDRESS" default:"nats://127.0.0.1:4222"`
}

// LoadUIConfig reads a UIConfig from the environment.
func LoadUIConfig() (*UIConfig, error) {
	var cfg UIConfig
	if err := envconfig.Process("GST_SWITCH_UI", &cfg); err != nil {
		return nil, fmt.Errorf("load ui config: %w", err)
	}
	return &cfg, nil
}
