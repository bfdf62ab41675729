package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent relay configuration stored as config.toml
// in the .relay/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Gateway GatewayConfig `toml:"gateway"`
	Backend BackendConfig `toml:"backend"`
}

// GatewayConfig holds gateway server settings.
type GatewayConfig struct {
	Listen           string `toml:"listen,omitempty"`
	StreamTimeout    string `toml:"stream_timeout,omitempty"`
	TelemetryWorkers uint   `toml:"telemetry_workers,omitempty"`
}

// BackendConfig holds settings for the obrag backend the gateway fronts.
type BackendConfig struct {
	URL string `toml:"url,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"gateway.listen": {
		get: func(c *Config) string { return c.Gateway.Listen },
		set: func(c *Config, v string) error { c.Gateway.Listen = v; return nil },
	},
	"gateway.stream_timeout": {
		get: func(c *Config) string { return c.Gateway.StreamTimeout },
		set: func(c *Config, v string) error { c.Gateway.StreamTimeout = v; return nil },
	},
	"gateway.telemetry_workers": {
		get: func(c *Config) string {
			if c.Gateway.TelemetryWorkers == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Gateway.TelemetryWorkers), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for gateway.telemetry_workers: %w", err)
			}
			c.Gateway.TelemetryWorkers = uint(n)
			return nil
		},
	},
	"backend.url": {
		get: func(c *Config) string { return c.Backend.URL },
		set: func(c *Config, v string) error { c.Backend.URL = v; return nil },
	},
}
