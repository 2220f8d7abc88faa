package recovery

import (
	"fmt"

	"github.com/crisisworks/lifeline/core/eventtable"
)

// Config defines the scheduling parameters loaded from configuration.
type Config struct {
	// SimStep is the base time-discretization unit in seconds. All emitted
	// timestamps are quantized to multiples of 2*SimStep.
	SimStep int64 `json:"sim_step"`
	// PrepMinutes is the fixed preparation overhead added to every crew
	// trip before the shortest-path travel time. A pointer so an explicit
	// zero in a scenario file is distinguishable from an unset field.
	PrepMinutes *float64 `json:"prep_minutes"`
	// RestoreBufferSeconds delays the settled sentinel row emitted after a
	// component is restored.
	RestoreBufferSeconds int64 `json:"restore_buffer_seconds"`
	// Pipes and Lines configure pre-repair isolation for water pipes and
	// power lines.
	Pipes eventtable.IsolationPolicy `json:"pipes"`
	Lines eventtable.IsolationPolicy `json:"lines"`
}

// SetDefaults fills unset fields with the reference values.
func (c *Config) SetDefaults() {
	if c.SimStep == 0 {
		c.SimStep = 60
	}
	if c.PrepMinutes == nil {
		prep := 10.0
		c.PrepMinutes = &prep
	}
	if c.RestoreBufferSeconds == 0 {
		c.RestoreBufferSeconds = 240
	}
	if c.Pipes.Mode == "" {
		c.Pipes.Mode = eventtable.IsolationRepair
	}
	if c.Lines.Mode == "" {
		c.Lines.Mode = eventtable.IsolationRepair
	}
}

// Validate rejects unusable configurations.
func (c Config) Validate() error {
	if c.SimStep <= 0 {
		return fmt.Errorf("recovery: sim step must be positive, got %d", c.SimStep)
	}
	if c.PrepMinutes == nil {
		return fmt.Errorf("recovery: prep minutes not set")
	}
	if *c.PrepMinutes < 0 {
		return fmt.Errorf("recovery: prep minutes must not be negative")
	}
	return c.eventTableConfig().Validate()
}

func (c Config) eventTableConfig() eventtable.Config {
	return eventtable.Config{
		SimStep:              c.SimStep,
		RestoreBufferSeconds: c.RestoreBufferSeconds,
		Pipes:                c.Pipes,
		Lines:                c.Lines,
	}
}
