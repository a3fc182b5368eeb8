package config

import "fmt"

// MaintenanceConfig controls the periodic queue tick and the daily reset of
// locations flagged with reset_queue_daily.
type MaintenanceConfig struct {
	// TickIntervalSeconds is how often every location queue is re-evaluated.
	TickIntervalSeconds int `json:"tick_interval_seconds"`
	// ResetHourUTC is the hour of day, UTC, at which flagged queues drain.
	ResetHourUTC int `json:"reset_hour_utc"`
}

// SetDefaults applies sane defaults.
func (c *MaintenanceConfig) SetDefaults() {
	if c.TickIntervalSeconds == 0 {
		c.TickIntervalSeconds = 60
	}
}

// Validate checks field ranges.
func (c MaintenanceConfig) Validate() error {
	if c.TickIntervalSeconds < 0 {
		return fmt.Errorf("tick_interval_seconds must not be negative")
	}
	if c.ResetHourUTC < 0 || c.ResetHourUTC > 23 {
		return fmt.Errorf("reset_hour_utc must be between 0 and 23")
	}
	return nil
}

// EngineConfig bounds the engine's external calls.
type EngineConfig struct {
	// OperationTimeoutMS bounds every persistence call.
	OperationTimeoutMS int `json:"operation_timeout_ms"`
}

// SetDefaults applies sane defaults.
func (c *EngineConfig) SetDefaults() {
	if c.OperationTimeoutMS == 0 {
		c.OperationTimeoutMS = 5000
	}
}
