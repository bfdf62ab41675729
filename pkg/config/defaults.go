package config

const (
	defaultListen           = ":8080"
	defaultBackendURL       = "http://localhost:8000"
	defaultStreamTimeout    = "5m"
	defaultTelemetryWorkers = 2
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Gateway: GatewayConfig{
			Listen:           defaultListen,
			StreamTimeout:    defaultStreamTimeout,
			TelemetryWorkers: defaultTelemetryWorkers,
		},
		Backend: BackendConfig{
			URL: defaultBackendURL,
		},
	}
}
