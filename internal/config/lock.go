package config

import "errors"

// ErrLockClassIDRequired is returned when the advisory-lock class id is
// unset or zero. A zero class id is indistinguishable from "unconfigured"
// and would silently collide with any other deployment that also forgot
// to set it, so it is rejected rather than defaulted.
var ErrLockClassIDRequired = errors.New("RIHANNA_LOCK_CLASS_ID is required and must be non-zero")

// LockConfig holds the advisory-lock namespace partition. Every worker
// cooperating on the same queue must load the identical ClassID, or
// mutual exclusion breaks silently across deployments sharing a database.
type LockConfig struct {
	ClassID int32 `env:"RIHANNA_LOCK_CLASS_ID"`
}

// Validate validates the lock configuration.
func (c *LockConfig) Validate() error {
	if c.ClassID == 0 {
		return ErrLockClassIDRequired
	}
	return nil
}
