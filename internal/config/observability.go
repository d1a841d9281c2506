package config

// ObservabilityConfig holds observability configuration.
type ObservabilityConfig struct {
	OTelEnabled bool `env:"RIHANNA_OTEL_ENABLED"`
}
