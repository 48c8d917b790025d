package cmd

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/popsim/popsim/sim"
	_ "github.com/popsim/popsim/sim/process" // registers sim.NewProcessRegistryFunc
)

// ScenarioVersion is the only scenario file version understood.
const ScenarioVersion = "1"

// Scenario is the full scenario YAML structure.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Scenario struct {
	Version     string                  `yaml:"version"`
	Simulator   SimulatorSection        `yaml:"simulator"`
	Clock       *sim.ClockConfig        `yaml:"clock"`
	Population  PopulationSection       `yaml:"population"`
	Environment EnvironmentSection      `yaml:"environment"`
	Processes   []sim.ProcessDefinition `yaml:"processes"`
	Schedule    []ScheduleEntry         `yaml:"schedule"`
	Arrivals    []ArrivalEntry          `yaml:"arrivals"`
}

// SimulatorSection holds the run parameters. Zero values take defaults.
type SimulatorSection struct {
	Threads     int    `yaml:"threads"`
	Steps       int    `yaml:"steps"`
	MaxSubsteps int    `yaml:"max_substeps"`
	Seed        *int64 `yaml:"seed"` // nil = default seed; 0 is a valid seed
	Label       string `yaml:"label"`
}

type PopulationSection struct {
	Size      int           `yaml:"size"`
	Variables sim.Variables `yaml:"variables"`
}

type EnvironmentSection struct {
	Variables sim.Variables `yaml:"variables"`
}

// ScheduleEntry queues a process before the first step.
// At is expressed in Unit (raw ticks when empty).
type ScheduleEntry struct {
	Process string  `yaml:"process"`
	Target  string  `yaml:"target"` // environment, individuals (default) or individual
	At      float64 `yaml:"at"`
	Unit    string  `yaml:"unit"`
	ID      int     `yaml:"id"` // only for target individual
}

// ArrivalEntry adds Count individuals before the step at Tick and
// schedules Processes for each of them at that tick.
type ArrivalEntry struct {
	Tick      int64         `yaml:"tick"`
	Count     int           `yaml:"count"`
	Variables sim.Variables `yaml:"variables"`
	Processes []string      `yaml:"processes"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes a scenario with strict field checking (typos are
// errors) and validates it.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate reports every structural problem of the scenario. Process
// sources are checked later, when compiled.
func (sc *Scenario) Validate() error {
	var errs error
	if sc.Version != "" && sc.Version != ScenarioVersion {
		errs = multierr.Append(errs, fmt.Errorf("unsupported scenario version %q (want %q)", sc.Version, ScenarioVersion))
	}
	if sc.Simulator.Threads < 0 || sc.Simulator.Steps < 0 || sc.Simulator.MaxSubsteps < 0 {
		errs = multierr.Append(errs, fmt.Errorf("simulator: threads, steps and max_substeps must be >= 0"))
	}
	if sc.Population.Size < 0 {
		errs = multierr.Append(errs, fmt.Errorf("population: size must be >= 0, got %d", sc.Population.Size))
	}
	if sc.Clock != nil {
		errs = multierr.Append(errs, sc.Clock.Validate())
	}
	for i, e := range sc.Schedule {
		if e.Process == "" {
			errs = multierr.Append(errs, fmt.Errorf("schedule[%d]: process is required", i))
		}
		target, err := scheduleTarget(e.Target)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("schedule[%d]: %w", i, err))
		} else if target == sim.TargetIndividualByID && (e.ID < 0 || e.ID >= sc.Population.Size) {
			errs = multierr.Append(errs, fmt.Errorf("schedule[%d]: id %d outside initial population of %d", i, e.ID, sc.Population.Size))
		}
	}
	for i, a := range sc.Arrivals {
		if a.Tick < 0 || a.Count < 1 {
			errs = multierr.Append(errs, fmt.Errorf("arrivals[%d]: tick must be >= 0 and count >= 1", i))
		}
	}
	return errs
}

// scheduleTarget parses a schedule target. Current has no acting entity
// before the run starts, so an empty target means every individual.
func scheduleTarget(name string) (sim.Target, error) {
	if name == "" {
		return sim.TargetIndividuals, nil
	}
	t, err := sim.ParseTarget(name)
	if err != nil {
		return 0, err
	}
	if t == sim.TargetCurrent {
		return 0, fmt.Errorf("%w: %q cannot be scheduled before the run", sim.ErrInvalidTarget, name)
	}
	return t, nil
}

// SimConfig returns the run configuration with defaults filled in.
func (sc *Scenario) SimConfig() sim.Config {
	cfg := sim.DefaultConfig()
	if sc.Simulator.Threads > 0 {
		cfg.Threads = sc.Simulator.Threads
	}
	cfg.MaxSubsteps = sc.Simulator.MaxSubsteps
	if sc.Simulator.Seed != nil {
		cfg.Seed = *sc.Simulator.Seed
	}
	if sc.Simulator.Label != "" {
		cfg.Label = sc.Simulator.Label
	}
	if sc.Clock != nil {
		cfg.Clock = *sc.Clock
	}
	return cfg
}

// Build compiles the processes and wires a coordinator for cfg: initial
// population, environment, schedule and arrival hook. The threads are not
// started.
func (sc *Scenario) Build(cfg sim.Config, opts ...sim.Option) (*sim.Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	registry, err := sim.NewProcessRegistry(sc.Processes)
	if err != nil {
		return nil, fmt.Errorf("compile processes: %w", err)
	}
	for i, a := range sc.Arrivals {
		for _, label := range a.Processes {
			if _, err := registry.Process(label); err != nil {
				return nil, fmt.Errorf("arrivals[%d]: %w", i, err)
			}
		}
	}

	clock := sim.NewClock(cfg.Clock)
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))
	env := sim.NewEnvironment(sc.Environment.Variables, rng)
	population := sim.NewPopulation(sc.Population.Size, sc.Population.Variables, rng)

	if len(sc.Arrivals) > 0 {
		opts = append(opts, sim.WithStepHook(sc.arrivalHook()))
	}
	c, err := sim.NewCoordinator(cfg, clock, env, population, registry, opts...)
	if err != nil {
		return nil, err
	}

	for i, e := range sc.Schedule {
		target, _ := scheduleTarget(e.Target)
		due := clock.TickAt(e.At, sim.ParseTimeUnit(e.Unit))
		switch target {
		case sim.TargetEnvironment:
			err = c.ScheduleEnvironment(e.Process, due)
		case sim.TargetIndividuals:
			err = c.ScheduleAll(e.Process, due)
		case sim.TargetIndividualByID:
			err = c.Schedule(sim.IndividualID(e.ID), e.Process, due)
		}
		if err != nil {
			_ = c.End()
			return nil, fmt.Errorf("schedule[%d]: %w", i, err)
		}
	}
	return c, nil
}

// arrivalHook adds the individuals arriving at the coordinator's current
// tick and schedules their processes.
func (sc *Scenario) arrivalHook() func(*sim.Coordinator) error {
	byTick := make(map[int64][]ArrivalEntry)
	for _, a := range sc.Arrivals {
		byTick[a.Tick] = append(byTick[a.Tick], a)
	}
	return func(c *sim.Coordinator) error {
		tick := c.Clock().Tick()
		for _, a := range byTick[tick] {
			vars := make([]sim.Variables, a.Count)
			for i := range vars {
				vars[i] = a.Variables
			}
			lower, upper := c.AddIndividuals(vars...)
			for _, label := range a.Processes {
				for id := lower; id < upper; id++ {
					if err := c.Schedule(sim.IndividualID(id), label, tick); err != nil {
						return fmt.Errorf("arrival at tick %d: %w", tick, err)
					}
				}
			}
		}
		return nil
	}
}

// ArrivalTicks returns the distinct arrival ticks, sorted.
func (sc *Scenario) ArrivalTicks() []int64 {
	seen := make(map[int64]bool)
	var ticks []int64
	for _, a := range sc.Arrivals {
		if !seen[a.Tick] {
			seen[a.Tick] = true
			ticks = append(ticks, a.Tick)
		}
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
	return ticks
}
