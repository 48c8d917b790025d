package sim

import (
	"fmt"
	"maps"
	"math/rand"
)

// SimulationContext is the execution state of one thread. It is owned by
// exactly one goroutine for its whole life and never locked.
//
// Clock, environment, population and processes are shared handles that
// stay unchanged while a step is running.
type SimulationContext struct {
	config      Config
	clock       *Clock
	environment *Environment
	population  *Population
	processes   ProcessRegistry

	individual *Individual
	// origin is the entity TargetCurrent resolves to.
	origin IndividualID
	// envWritable is only set on the coordinator's environment context.
	envWritable bool

	locals Variables
	tree   Tree
	pushes []Push

	evalState any
}

// NewSimulationContext creates a context around the shared run state.
func NewSimulationContext(config Config, clock *Clock, env *Environment,
	population *Population, processes ProcessRegistry) *SimulationContext {
	return &SimulationContext{
		config:      config,
		clock:       clock,
		environment: env,
		population:  population,
		processes:   processes,
		origin:      EnvironmentID,
		locals:      make(Variables),
	}
}

// Config returns the run configuration.
func (c *SimulationContext) Config() Config {
	return c.config
}

// Clock returns the shared clock.
func (c *SimulationContext) Clock() *Clock {
	if c.clock == nil {
		panic("SimulationContext: clock not set")
	}
	return c.clock
}

// Environment returns the shared environment.
func (c *SimulationContext) Environment() *Environment {
	if c.environment == nil {
		panic("SimulationContext: environment not set")
	}
	return c.environment
}

// PopulationSize returns the number of individuals visible to this context.
func (c *SimulationContext) PopulationSize() int {
	if c.population == nil {
		return 0
	}
	return c.population.Len()
}

// SetIndividualByIndex selects the individual processed next.
func (c *SimulationContext) SetIndividualByIndex(i int) error {
	ind := c.population.Get(i)
	if ind == nil {
		return fmt.Errorf("%w: index %d (population %d)", ErrUnknownIndividual, i, c.PopulationSize())
	}
	c.individual = ind
	c.origin = ind.ID
	return nil
}

// SetEnvironmentOnly deselects any individual; subsequent work acts on
// behalf of the environment.
func (c *SimulationContext) SetEnvironmentOnly() {
	c.individual = nil
	c.origin = EnvironmentID
}

// HasIndividual reports whether an individual is selected.
func (c *SimulationContext) HasIndividual() bool {
	return c.individual != nil
}

// Individual returns the selected individual. Panics if none is selected.
func (c *SimulationContext) Individual() *Individual {
	if c.individual == nil {
		panic("SimulationContext: no individual selected")
	}
	return c.individual
}

// IndividualID returns the acting entity: the selected individual, or
// EnvironmentID.
func (c *SimulationContext) IndividualID() IndividualID {
	return c.origin
}

// SetIndividualVariable writes a variable of the selected individual.
func (c *SimulationContext) SetIndividualVariable(name string, value any) error {
	if c.individual == nil {
		return fmt.Errorf("%w: no individual selected to set %q", ErrUnknownIndividual, name)
	}
	c.individual.Vars[name] = value
	return nil
}

// SetEnvironmentVariable writes an environment variable. Only the
// coordinator's environment context may do so.
func (c *SimulationContext) SetEnvironmentVariable(name string, value any) error {
	if !c.envWritable {
		return fmt.Errorf("%w: set %q", ErrEnvironmentReadOnly, name)
	}
	c.Environment().Vars[name] = value
	return nil
}

// Random draws from the acting entity's RNG stream.
func (c *SimulationContext) Random() float64 {
	return c.rand().Float64()
}

func (c *SimulationContext) rand() *rand.Rand {
	if c.individual != nil {
		return c.individual.rng
	}
	return c.Environment().rng
}

// === Local variables ===

// InsertLocalVariable binds name in the current process scope, replacing
// any existing binding.
func (c *SimulationContext) InsertLocalVariable(name string, value any) {
	c.locals[name] = value
}

// SetLocalVariable updates an existing binding. It does not create one.
func (c *SimulationContext) SetLocalVariable(name string, value any) error {
	if _, ok := c.locals[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLocalVariable, name)
	}
	c.locals[name] = value
	return nil
}

// LocalVariable returns the value bound to name.
func (c *SimulationContext) LocalVariable(name string) (any, error) {
	v, ok := c.locals[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLocalVariable, name)
	}
	return v, nil
}

// LocalVariableHandle returns a pointer to a copy of the binding.
// Writing through it has no effect until passed back to SetLocalVariable.
func (c *SimulationContext) LocalVariableHandle(name string) (*any, error) {
	v, err := c.LocalVariable(name)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ClearLocalVariables drops every binding.
func (c *SimulationContext) ClearLocalVariables() {
	clear(c.locals)
}

// LocalVariables returns the live binding map. Evaluators read it; writes
// go through the methods above.
func (c *SimulationContext) LocalVariables() Variables {
	return c.locals
}

// LocalVariablesSnapshot returns a copy of the bindings.
func (c *SimulationContext) LocalVariablesSnapshot() Variables {
	return maps.Clone(c.locals)
}

// === Expression trees and processes ===

// PrimitiveTree returns the tree currently under evaluation.
func (c *SimulationContext) PrimitiveTree() Tree {
	return c.tree
}

// SetPrimitiveTree replaces the tree under evaluation.
func (c *SimulationContext) SetPrimitiveTree(tree Tree) {
	c.tree = tree
}

// Processes returns the shared process registry.
func (c *SimulationContext) Processes() ProcessRegistry {
	return c.processes
}

// ProcessHandle looks a process up by label.
func (c *SimulationContext) ProcessHandle(label string) (Process, error) {
	if c.processes == nil {
		return nil, fmt.Errorf("%w: %q (no registry)", ErrUnknownProcess, label)
	}
	return c.processes.Process(label)
}

// RunProcess evaluates label as a new top-level process: local variables
// from a previous process never leak into it.
func (c *SimulationContext) RunProcess(label string) (any, error) {
	c.ClearLocalVariables()
	return c.CallProcess(label)
}

// CallProcess evaluates label nested inside the current evaluation. The
// caller's tree is restored afterwards, also on error. Locals are shared.
func (c *SimulationContext) CallProcess(label string) (any, error) {
	p, err := c.ProcessHandle(label)
	if err != nil {
		return nil, err
	}
	saved := c.tree
	defer func() { c.tree = saved }()
	return p.Execute(c)
}

// === Pushes ===

// Push records a request to run label delay units from now on target.
// id is only used for TargetIndividualByID.
func (c *SimulationContext) Push(label string, target Target, delay float64, unit TimeUnit, id IndividualID) (Push, error) {
	if !target.Valid() {
		return Push{}, fmt.Errorf("%w: %s", ErrInvalidTarget, target)
	}
	if target == TargetIndividualByID && !c.population.Contains(id) {
		return Push{}, fmt.Errorf("%w: push %q to %d", ErrUnknownIndividual, label, id)
	}
	if _, err := c.ProcessHandle(label); err != nil {
		return Push{}, err
	}
	p := Push{
		Label:   label,
		Target:  target,
		DueTick: c.Clock().DueTick(delay, unit),
		Origin:  c.origin,
	}
	if target == TargetIndividualByID {
		p.IndividualID = id
	}
	c.pushes = append(c.pushes, p)
	return p, nil
}

// PendingPushes returns the number of pushes not yet taken.
func (c *SimulationContext) PendingPushes() int {
	return len(c.pushes)
}

// TakePushes returns and forgets the pushes recorded since the last call.
func (c *SimulationContext) TakePushes() []Push {
	p := c.pushes
	c.pushes = nil
	return p
}

// DiscardPushes forgets the pushes recorded since the last TakePushes.
func (c *SimulationContext) DiscardPushes() {
	c.pushes = nil
}

// EvaluatorState returns the evaluator's per-context scratch state.
func (c *SimulationContext) EvaluatorState() any {
	return c.evalState
}

// SetEvaluatorState stores per-context scratch state for the evaluator.
func (c *SimulationContext) SetEvaluatorState(state any) {
	c.evalState = state
}
