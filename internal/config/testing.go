package config

import (
	"fmt"

	"github.com/rezkam/rihanna/internal/env"
)

// TestConfig holds configuration for integration tests that need a real
// PostgreSQL instance. Tests load this and t.Skipf when it's unavailable,
// rather than failing the suite outright.
type TestConfig struct {
	Database DatabaseConfig
	Lock     LockConfig
}

// LoadTestConfig loads and validates test configuration from environment.
func LoadTestConfig() (*TestConfig, error) {
	cfg := &TestConfig{}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load test config: %w", err)
	}

	return cfg, nil
}
