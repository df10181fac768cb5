package config

// WorldConfig controls world stepping and simulated time.
type WorldConfig struct {
	// DefaultWorldName is loaded by run-world when no --name is given.
	DefaultWorldName string `yaml:"default_world_name"`

	// StepDurationSeconds is the hard deadline for one agent step. An agent
	// that blows the deadline is timed out and resumes next step.
	StepDurationSeconds int `yaml:"step_duration_seconds"`

	// SpeedMultiplier accelerates simulated time relative to wall time.
	// Recency decay in memory retrieval uses accelerated hours.
	SpeedMultiplier float64 `yaml:"speed_multiplier"`

	// PlanningWindow is the target time window handed to the planner.
	PlanningWindow string `yaml:"planning_window"`
}

// DefaultWorldConfig returns defaults for world stepping.
func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		DefaultWorldName:    "Smalltown",
		StepDurationSeconds: 120,
		SpeedMultiplier:     1.0,
		PlanningWindow:      "24 hours",
	}
}
