package gateway

import "time"

// DefaultStreamTimeout is the hard wall-clock ceiling for one chat request,
// covering the upstream connect and the whole answer stream. Answer streams
// can be slow, especially with large retrieval contexts.
const DefaultStreamTimeout = 5 * time.Minute

// Config is the gateway server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// BackendURL is the obrag backend base URL (e.g., "http://localhost:8000")
	BackendURL string

	// StreamTimeout bounds one chat request end to end.
	// Zero means DefaultStreamTimeout.
	StreamTimeout time.Duration

	// TelemetryWorkers is the number of async telemetry workers.
	// Zero means the recorder's default.
	TelemetryWorkers uint
}

// streamTimeout returns the configured ceiling, defaulted.
func (c Config) streamTimeout() time.Duration {
	if c.StreamTimeout <= 0 {
		return DefaultStreamTimeout
	}
	return c.StreamTimeout
}
