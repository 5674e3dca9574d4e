package database

import "time"

// Run triggers
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// Query limits
const (
	DefaultRunLimit = 20
	MaxRunLimit     = 100
)

// StaleRunAge is how long a run may stay in running before it is considered abandoned.
const StaleRunAge = 6 * time.Hour
