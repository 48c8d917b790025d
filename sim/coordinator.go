package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/popsim/popsim/sim/trace"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCollector exports every step record to c.
func WithCollector(c *Collector) Option {
	return func(co *Coordinator) { co.collector = c }
}

// WithTrace records every drained push into st (if st is enabled).
func WithTrace(st *trace.SimulationTrace) Option {
	return func(co *Coordinator) { co.trace = st }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(co *Coordinator) { co.runID = id }
}

// WithStepHook registers fn to run before every step of Run, while all
// threads are parked. It may add individuals or schedule work.
func WithStepHook(fn func(*Coordinator) error) Option {
	return func(co *Coordinator) { co.hooks = append(co.hooks, fn) }
}

// Coordinator drives a run: it owns the clock, the blackboard, the waiting
// queues and a fixed pool of SimulationThreads, and alternates parallel
// passes with single-threaded drains.
//
// All methods must be called from one goroutine.
type Coordinator struct {
	config     Config
	clock      *Clock
	env        *Environment
	population *Population
	processes  ProcessRegistry

	blackboard *BlackBoard
	waiting    *WaitingQMaps
	barrier    *barrier
	threads    []*SimulationThread
	envCtx     *SimulationContext
	group      *errgroup.Group

	metrics   *Metrics
	collector *Collector
	trace     *trace.SimulationTrace
	hooks     []func(*Coordinator) error
	runID     string
	log       *logrus.Entry

	step    int
	started bool
	ended   bool
}

// NewCoordinator builds the thread pool around the shared run state.
// Threads are not started until Start (or the first Step).
func NewCoordinator(config Config, clock *Clock, env *Environment, population *Population,
	processes ProcessRegistry, opts ...Option) (*Coordinator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if clock == nil || env == nil || population == nil || processes == nil {
		return nil, errors.New("coordinator: clock, environment, population and processes are required")
	}

	c := &Coordinator{
		config:     config,
		clock:      clock,
		env:        env,
		population: population,
		processes:  processes,
		blackboard: NewBlackBoard(),
		waiting:    NewWaitingQMaps(),
		barrier:    newBarrier(),
		metrics:    NewMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runID == "" {
		c.runID = uuid.NewString()
	}
	c.log = logrus.WithFields(logrus.Fields{"run": c.runID, "scenario": config.Label})

	c.envCtx = NewSimulationContext(config, clock, env, population, processes)
	c.envCtx.envWritable = true

	c.threads = make([]*SimulationThread, config.Threads)
	for i := range c.threads {
		ctx := NewSimulationContext(config, clock, env, population, processes)
		t := newSimulationThread(i, config.Threads, ctx, c.blackboard, c.waiting, c.barrier)
		t.SetScenarioLabel(config.Label)
		t.log = t.log.WithField("run", c.runID)
		c.threads[i] = t
	}
	c.Partition()
	return c, nil
}

// Partition assigns population index i to thread i mod N.
func (c *Coordinator) Partition() {
	for _, t := range c.threads {
		t.ResetIndexes()
	}
	n := len(c.threads)
	for i := 0; i < c.population.Len(); i++ {
		c.threads[i%n].AddIndex(i)
	}
}

// Start launches the worker goroutines. They live until End.
func (c *Coordinator) Start() {
	if c.started {
		return
	}
	if c.ended {
		panic("Coordinator.Start called after End")
	}
	c.started = true
	c.group = new(errgroup.Group)
	for _, t := range c.threads {
		c.group.Go(t.run)
	}
	c.log.Infof("started %d simulation threads over %d individuals", len(c.threads), c.population.Len())
}

// AddIndividuals appends one individual per vars between steps and hands
// the new indexes [lower, upper) to the threads round-robin.
func (c *Coordinator) AddIndividuals(vars ...Variables) (lower, upper int) {
	if c.ended {
		panic("Coordinator.AddIndividuals called after End")
	}
	lower = c.population.Len()
	for _, v := range vars {
		c.population.Add(v)
	}
	upper = c.population.Len()
	for _, t := range c.threads {
		t.AddNewIndexes(lower, upper)
	}
	c.log.Debugf("[tick %07d] added individuals [%d,%d)", c.clock.Tick(), lower, upper)
	return lower, upper
}

// Schedule queues label for individual id (or EnvironmentID) at dueTick.
func (c *Coordinator) Schedule(id IndividualID, label string, dueTick int64) error {
	if _, err := c.processes.Process(label); err != nil {
		return err
	}
	if id != EnvironmentID && !c.population.Contains(id) {
		return fmt.Errorf("%w: schedule %q for %d", ErrUnknownIndividual, label, id)
	}
	c.waiting.ScheduleFor(id, label, dueTick)
	return nil
}

// ScheduleAll queues label for every current individual at dueTick.
func (c *Coordinator) ScheduleAll(label string, dueTick int64) error {
	if _, err := c.processes.Process(label); err != nil {
		return err
	}
	for i := 0; i < c.population.Len(); i++ {
		c.waiting.ScheduleFor(IndividualID(i), label, dueTick)
	}
	return nil
}

// ScheduleEnvironment queues label for the environment at dueTick.
func (c *Coordinator) ScheduleEnvironment(label string, dueTick int64) error {
	return c.Schedule(EnvironmentID, label, dueTick)
}

// Run starts the threads if needed, runs steps steps (calling the step
// hooks before each) and always ends the pool. It returns the first error.
func (c *Coordinator) Run(ctx context.Context, steps int) (err error) {
	c.Start()
	defer func() {
		err = multierr.Append(err, c.End())
	}()
	for i := 0; i < steps; i++ {
		for _, hook := range c.hooks {
			if err := hook(c); err != nil {
				return err
			}
		}
		if err := c.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Step runs one simulated tick: environment processes, a parallel Step
// pass, drain, optional same-tick Substep passes, then advances the clock.
// Cancellation is only observed before the step starts.
func (c *Coordinator) Step(ctx context.Context) error {
	if c.ended {
		panic("Coordinator.Step called after End")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Start()

	start := time.Now()
	c.step++
	tick := c.clock.Tick()
	rec := StepRecord{Step: c.step, Tick: tick}

	err := c.pass(ctx, PositionStep, &rec)
	for err == nil && rec.Substeps < c.config.MaxSubsteps && c.dueNow(tick) {
		rec.Substeps++
		err = c.pass(ctx, PositionSubstep, &rec)
	}

	rec.Pending = c.waiting.Pending()
	rec.Duration = time.Since(start)
	c.metrics.record(rec)
	if c.collector != nil {
		c.collector.Observe(rec)
	}
	if err != nil {
		c.log.Errorf("[tick %07d] step %d failed: %v", tick, c.step, err)
		return err
	}

	c.log.Infof("[tick %07d] step %d: %d processes, %d pushes, %d substeps, %d pending",
		tick, c.step, rec.Processes+rec.EnvProcesses, rec.Pushes, rec.Substeps, rec.Pending)
	c.clock.Advance()
	return nil
}

func (c *Coordinator) dueNow(tick int64) bool {
	if c.waiting.HasDue(tick) {
		return true
	}
	next, ok := c.waiting.NextDue(EnvironmentID)
	return ok && next <= tick
}

// pass runs the environment, releases every thread at pos, waits for all
// completion signals, then drains the blackboard.
func (c *Coordinator) pass(ctx context.Context, pos Position, rec *StepRecord) error {
	tick := c.clock.Tick()

	n, err := c.runEnvironment(ctx, tick)
	rec.EnvProcesses += n
	if err != nil {
		rec.Errors++
		return err
	}

	c.barrier.release(func() {
		for _, t := range c.threads {
			t.setPositionLocked(pos)
		}
	})

	var errs error
	for _, t := range c.threads {
		errs = multierr.Append(errs, <-t.done)
		s := t.Stats()
		rec.Individuals += s.Individuals
		rec.Processes += s.Processes
		rec.Pushes += s.Pushes
		rec.Errors += s.Errors
	}
	if errs != nil {
		return errs
	}

	drained, err := c.blackboard.DrainInto(c.waiting, c.population.Len())
	rec.Drained += len(drained)
	c.recordTrace(tick, drained)
	return err
}

// runEnvironment evaluates the environment's due processes on the
// coordinator's own context while every thread is parked.
func (c *Coordinator) runEnvironment(ctx context.Context, tick int64) (int, error) {
	due := c.waiting.PopDue(EnvironmentID, tick)
	if len(due) == 0 {
		return 0, nil
	}
	c.envCtx.SetEnvironmentOnly()
	for i, s := range due {
		if _, err := c.envCtx.RunProcess(s.Label); err != nil {
			c.envCtx.DiscardPushes()
			return i + 1, fmt.Errorf("environment: process %q: %w", s.Label, err)
		}
	}
	return len(due), c.blackboard.Append(ctx, c.envCtx.TakePushes()...)
}

func (c *Coordinator) recordTrace(tick int64, drained []Push) {
	if !c.trace.Enabled() {
		return
	}
	population := c.population.Len()
	for _, p := range drained {
		c.trace.RecordPush(trace.PushRecord{
			Step:         c.step,
			Clock:        tick,
			Label:        p.Label,
			Target:       p.Target.String(),
			DueTick:      p.DueTick,
			Origin:       int(p.Origin),
			IndividualID: int(p.IndividualID),
			Resolved:     p.Resolve(population) == nil,
		})
	}
}

// End sends every thread to End and joins them. Safe to call more than
// once; Step after End panics.
func (c *Coordinator) End() error {
	if c.ended {
		return nil
	}
	c.ended = true
	c.barrier.release(func() {
		for _, t := range c.threads {
			t.setPositionLocked(PositionEnd)
		}
	})
	var err error
	if c.started {
		err = c.group.Wait()
	}
	c.metrics.SimEndedTick = c.clock.Tick()
	c.metrics.PopulationSize = c.population.Len()
	c.log.Infof("[tick %07d] simulation ended after %d steps", c.clock.Tick(), c.step)
	return err
}

// Clock returns the run's clock.
func (c *Coordinator) Clock() *Clock { return c.clock }

// Environment returns the shared environment.
func (c *Coordinator) Environment() *Environment { return c.env }

// Population returns the population.
func (c *Coordinator) Population() *Population { return c.population }

// Threads returns the thread pool.
func (c *Coordinator) Threads() []*SimulationThread { return c.threads }

// Waiting returns the waiting queues.
func (c *Coordinator) Waiting() *WaitingQMaps { return c.waiting }

// BlackBoard returns the blackboard.
func (c *Coordinator) BlackBoard() *BlackBoard { return c.blackboard }

// Metrics returns the run metrics.
func (c *Coordinator) Metrics() *Metrics { return c.metrics }

// Trace returns the push trace, or nil.
func (c *Coordinator) Trace() *trace.SimulationTrace { return c.trace }

// RunID returns the run's unique id.
func (c *Coordinator) RunID() string { return c.runID }

// StepCount returns the number of steps started so far.
func (c *Coordinator) StepCount() int { return c.step }
