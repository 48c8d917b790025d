package sim

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeTree and fakeProcess let package sim exercise the kernel with Go
// functions as processes, without importing sim/process.
type fakeTree struct{ label string }

func (t fakeTree) Label() string { return t.label }
func (t fakeTree) Len() int      { return 1 }

type fakeProcess struct {
	label string
	tree  fakeTree
	fn    func(ctx *SimulationContext) (any, error)
}

func (p *fakeProcess) Label() string { return p.label }
func (p *fakeProcess) Tree() Tree    { return p.tree }

func (p *fakeProcess) Execute(ctx *SimulationContext) (any, error) {
	ctx.SetPrimitiveTree(p.tree)
	return p.fn(ctx)
}

type fakeRegistry map[string]*fakeProcess

func (r fakeRegistry) Process(label string) (Process, error) {
	p, ok := r[label]
	if !ok {
		return nil, ErrUnknownProcess
	}
	return p, nil
}

func (r fakeRegistry) Labels() []string {
	labels := make([]string, 0, len(r))
	for l := range r {
		labels = append(labels, l)
	}
	slices.Sort(labels)
	return labels
}

// add registers fn under label and returns the registry for chaining.
func (r fakeRegistry) add(label string, fn func(ctx *SimulationContext) (any, error)) fakeRegistry {
	r[label] = &fakeProcess{label: label, tree: fakeTree{label: label}, fn: fn}
	return r
}

// noop is a process that does nothing.
func noop(*SimulationContext) (any, error) { return nil, nil }

// testRun holds the shared state behind a test coordinator.
type testRun struct {
	config     Config
	clock      *Clock
	env        *Environment
	population *Population
}

func newTestRunState(threads, size int) testRun {
	cfg := DefaultConfig()
	cfg.Threads = threads
	rng := NewPartitionedRNG(NewSimulationKey(cfg.Seed))
	return testRun{
		config:     cfg,
		clock:      NewClock(cfg.Clock),
		env:        NewEnvironment(Variables{"season": 0}, rng),
		population: NewPopulation(size, Variables{"count": 0}, rng),
	}
}

// newTestCoordinator builds a coordinator over size individuals.
func newTestCoordinator(t *testing.T, threads, size int, procs fakeRegistry, opts ...Option) *Coordinator {
	t.Helper()
	r := newTestRunState(threads, size)
	c, err := NewCoordinator(r.config, r.clock, r.env, r.population, procs, opts...)
	require.NoError(t, err)
	return c
}

// newTestContext builds a worker context over size individuals.
func newTestContext(size int, procs fakeRegistry) *SimulationContext {
	r := newTestRunState(1, size)
	return NewSimulationContext(r.config, r.clock, r.env, r.population, procs)
}
