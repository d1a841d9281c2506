package config

import (
	"fmt"
	"time"

	"github.com/rezkam/rihanna/internal/env"
)

// WorkerConfig holds all configuration for the dispatcher binary.
type WorkerConfig struct {
	Database DatabaseConfig
	Lock     LockConfig

	// PollInterval is how often an idle poll loop retries Lock after an
	// empty claim.
	PollInterval time.Duration `env:"RIHANNA_WORKER_POLL_INTERVAL"`
	// Concurrency is the number of independent poll loops the dispatcher
	// runs, each on its own Session.
	Concurrency int `env:"RIHANNA_WORKER_CONCURRENCY"`
	// BatchSize is the n passed to Lock on each poll.
	BatchSize int `env:"RIHANNA_WORKER_BATCH_SIZE"`
	// OperationTimeout bounds every individual store call (Lock, a
	// terminal transition) the dispatcher makes.
	OperationTimeout time.Duration `env:"RIHANNA_WORKER_OPERATION_TIMEOUT"`
}

// LoadWorkerConfig loads and validates dispatcher configuration from the
// environment, applying defaults for anything left unset.
func LoadWorkerConfig() (*WorkerConfig, error) {
	cfg := &WorkerConfig{}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load worker config: %w", err)
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 30 * time.Second
	}

	return cfg, nil
}
