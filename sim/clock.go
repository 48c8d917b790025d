package sim

import (
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"
)

// TimeUnit selects the scale in which the clock is read or a delay is expressed.
type TimeUnit int

const (
	UnitOther TimeUnit = iota // raw ticks
	UnitYear
	UnitMonth
	UnitDay
)

// String returns the canonical unit name.
func (u TimeUnit) String() string {
	switch u {
	case UnitYear:
		return "year"
	case UnitMonth:
		return "month"
	case UnitDay:
		return "day"
	default:
		return "other"
	}
}

// ParseTimeUnit maps a unit name to a TimeUnit.
// Unrecognized names fall back to UnitOther (raw ticks) without an error.
func ParseTimeUnit(name string) TimeUnit {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), "s") {
	case "year":
		return UnitYear
	case "month":
		return UnitMonth
	case "day":
		return UnitDay
	case "other", "tick", "":
		return UnitOther
	}
	logrus.Debugf("ParseTimeUnit: unknown unit %q, using raw ticks", name)
	return UnitOther
}

// ClockConfig holds the number of ticks making up each calendar unit.
type ClockConfig struct {
	TicksPerYear  int64 `yaml:"ticks_per_year"`
	TicksPerMonth int64 `yaml:"ticks_per_month"`
	TicksPerDay   int64 `yaml:"ticks_per_day"`
}

// DefaultClockConfig uses one tick per day, 30-day months and 360-day years.
func DefaultClockConfig() ClockConfig {
	return ClockConfig{TicksPerYear: 360, TicksPerMonth: 30, TicksPerDay: 1}
}

// Validate checks that every unit spans at least one tick.
func (c ClockConfig) Validate() error {
	if c.TicksPerYear < 1 || c.TicksPerMonth < 1 || c.TicksPerDay < 1 {
		return fmt.Errorf("clock: ticks per unit must be >= 1, got year=%d month=%d day=%d",
			c.TicksPerYear, c.TicksPerMonth, c.TicksPerDay)
	}
	return nil
}

// Clock is the shared discrete time counter of a simulation run.
//
// Only the coordinator advances it, and only while no worker is running;
// during a step it is read concurrently and never written.
type Clock struct {
	tick   int64
	config ClockConfig
}

// NewClock creates a clock at tick 0. Panics on an invalid config.
func NewClock(config ClockConfig) *Clock {
	if err := config.Validate(); err != nil {
		panic(err.Error())
	}
	return &Clock{config: config}
}

// Advance moves the clock forward by exactly one tick.
func (c *Clock) Advance() {
	c.tick++
}

// Tick returns the raw tick counter.
func (c *Clock) Tick() int64 {
	return c.tick
}

// Config returns the unit scaling of this clock.
func (c *Clock) Config() ClockConfig {
	return c.config
}

func (c *Clock) ticksPer(unit TimeUnit) int64 {
	switch unit {
	case UnitYear:
		return c.config.TicksPerYear
	case UnitMonth:
		return c.config.TicksPerMonth
	case UnitDay:
		return c.config.TicksPerDay
	default:
		return 1
	}
}

// Value returns the current tick expressed in unit.
func (c *Clock) Value(unit TimeUnit) float64 {
	return float64(c.tick) / float64(c.ticksPer(unit))
}

// TickAt converts a value expressed in unit into an absolute tick,
// rounding to the nearest tick. It is the inverse of Value.
func (c *Clock) TickAt(value float64, unit TimeUnit) int64 {
	return int64(math.Round(value * float64(c.ticksPer(unit))))
}

// DueTick returns the absolute tick lying delay units after now.
// Negative delays are clamped so nothing is ever due in the past.
func (c *Clock) DueTick(delay float64, unit TimeUnit) int64 {
	due := c.TickAt(c.Value(unit)+delay, unit)
	if due < c.tick {
		return c.tick
	}
	return due
}
