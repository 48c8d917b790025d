package sim

import "fmt"

// Config groups the run parameters shared by the coordinator and every
// SimulationContext.
type Config struct {
	Threads     int         // worker goroutines (>= 1)
	MaxSubsteps int         // same-tick continuation passes per step (0 = none)
	Seed        int64       // master seed of the PartitionedRNG
	Label       string      // scenario label, used in logs
	Clock       ClockConfig // unit scaling
}

// DefaultConfig returns a single-threaded config with the default clock.
func DefaultConfig() Config {
	return Config{
		Threads: 1,
		Seed:    42,
		Label:   "default",
		Clock:   DefaultClockConfig(),
	}
}

// Validate reports configuration errors. A started coordinator assumes
// these hold.
func (c Config) Validate() error {
	if c.Threads < 1 {
		return fmt.Errorf("config: threads must be >= 1, got %d", c.Threads)
	}
	if c.MaxSubsteps < 0 {
		return fmt.Errorf("config: max substeps must be >= 0, got %d", c.MaxSubsteps)
	}
	return c.Clock.Validate()
}
