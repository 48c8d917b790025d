package process

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/popsim/popsim/sim"
)

// newTestCoordinator wires a full run over size individuals with the given
// processes compiled by this package.
func newTestCoordinator(t *testing.T, threads, size, substeps int, defs ...sim.ProcessDefinition) *sim.Coordinator {
	t.Helper()
	reg, err := NewRegistry(defs)
	require.NoError(t, err)
	cfg := sim.DefaultConfig()
	cfg.Threads = threads
	cfg.MaxSubsteps = substeps
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))
	env := sim.NewEnvironment(sim.Variables{"season": 0}, rng)
	pop := sim.NewPopulation(size, sim.Variables{"age": 0, "wealth": 0.0}, rng)
	c, err := sim.NewCoordinator(cfg, sim.NewClock(cfg.Clock), env, pop, reg)
	require.NoError(t, err)
	return c
}

func TestRun_AgingPopulationWithSeasons(t *testing.T) {
	// GIVEN individuals aging once a day and an environment changing season monthly
	c := newTestCoordinator(t, 4, 20, 0,
		def("age", `set("age", ind.age + 1)`, `push("age", 1, "day")`),
		def("season", `setEnv("season", env.season + 1)`, `pushEnv("season", 1, "month")`),
	)
	require.NoError(t, c.ScheduleAll("age", 0))
	require.NoError(t, c.ScheduleEnvironment("season", 0))

	// WHEN run for 40 days
	require.NoError(t, c.Run(context.Background(), 40))

	// THEN every individual aged once per step and the season changed twice
	for i := 0; i < c.Population().Len(); i++ {
		assert.Equal(t, 40, c.Population().Get(i).Vars["age"], "individual %d", i)
	}
	assert.Equal(t, 2, c.Environment().Vars["season"])
	assert.Equal(t, int64(40), c.Clock().Tick())

	m := c.Metrics()
	assert.Equal(t, 40, m.Steps)
	assert.Equal(t, 40*20+2, m.ProcessesExecuted)
	assert.Equal(t, 0, m.EvaluationErrors)
	assert.Equal(t, int64(40), m.SimEndedTick)
}

func TestRun_ResultsIndependentOfThreadCount(t *testing.T) {
	defs := []sim.ProcessDefinition{
		def("earn", `set("wealth", ind.wealth + random())`, `push("earn", 1, "day")`),
	}
	run := func(threads int) []any {
		c := newTestCoordinator(t, threads, 13, 0, defs...)
		require.NoError(t, c.ScheduleAll("earn", 0))
		require.NoError(t, c.Run(context.Background(), 10))
		out := make([]any, c.Population().Len())
		for i := range out {
			out[i] = c.Population().Get(i).Vars["wealth"]
		}
		return out
	}

	// GIVEN the same seed, WHEN run with 1 and 5 threads, THEN states match exactly
	assert.Equal(t, run(1), run(5))
}

func TestRun_BroadcastReachesWholePopulation(t *testing.T) {
	// GIVEN individual 0 announcing an event to everyone
	c := newTestCoordinator(t, 3, 7, 0,
		def("announce", `pushAll("hear", 1, "day")`),
		def("hear", `set("heard", true)`),
	)
	require.NoError(t, c.Schedule(0, "announce", 0))

	// WHEN run for two steps (announce at tick 0, hear at tick 1)
	require.NoError(t, c.Run(context.Background(), 2))

	// THEN every individual heard it once
	for i := 0; i < 7; i++ {
		assert.Equal(t, true, c.Population().Get(i).Vars["heard"], "individual %d", i)
	}
	assert.Equal(t, 1+7, c.Metrics().ProcessesExecuted)
}

func TestRun_SubstepsRunSameTickWork(t *testing.T) {
	defs := []sim.ProcessDefinition{
		def("first", `push("second", 0, "day")`),
		def("second", `set("done", tick)`),
	}

	// GIVEN substeps enabled, WHEN one step runs, THEN zero-delay work runs in the same tick
	c := newTestCoordinator(t, 2, 4, 1, defs...)
	require.NoError(t, c.ScheduleAll("first", 0))
	require.NoError(t, c.Run(context.Background(), 1))
	for i := 0; i < 4; i++ {
		assert.Equal(t, int64(0), c.Population().Get(i).Vars["done"])
	}
	assert.Equal(t, 1, c.Metrics().Substeps)

	// GIVEN substeps disabled, THEN the same work waits for the next step
	c = newTestCoordinator(t, 2, 4, 0, defs...)
	require.NoError(t, c.ScheduleAll("first", 0))
	require.NoError(t, c.Run(context.Background(), 2))
	for i := 0; i < 4; i++ {
		assert.Equal(t, int64(1), c.Population().Get(i).Vars["done"])
	}
	assert.Equal(t, 0, c.Metrics().Substeps)
}

func TestRun_ArrivalsJoinBetweenSteps(t *testing.T) {
	// GIVEN a step hook adding one newborn per step, who then ages daily
	reg, err := NewRegistry([]sim.ProcessDefinition{
		def("age", `set("age", ind.age + 1)`, `push("age", 1, "day")`),
	})
	require.NoError(t, err)
	cfg := sim.DefaultConfig()
	cfg.Threads = 3
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))
	pop := sim.NewPopulation(2, sim.Variables{"age": 0}, rng)
	newborn := func(c *sim.Coordinator) error {
		lower, _ := c.AddIndividuals(sim.Variables{"age": 0})
		return c.Schedule(sim.IndividualID(lower), "age", c.Clock().Tick())
	}
	c, err := sim.NewCoordinator(cfg, sim.NewClock(cfg.Clock), sim.NewEnvironment(nil, rng), pop, reg,
		sim.WithStepHook(newborn))
	require.NoError(t, err)
	require.NoError(t, c.ScheduleAll("age", 0))

	// WHEN run for 3 steps
	require.NoError(t, c.Run(context.Background(), 3))

	// THEN founders aged every step and each newborn aged once per step since arrival
	require.Equal(t, 5, pop.Len())
	ages := make([]any, pop.Len())
	for i := range ages {
		ages[i] = pop.Get(i).Vars["age"]
	}
	assert.Equal(t, []any{3, 3, 3, 2, 1}, ages)
	assert.Equal(t, 5, c.Metrics().PopulationSize)
}

func TestRun_EvaluationErrorStopsRunCleanly(t *testing.T) {
	// GIVEN a process failing for individual 2 only
	c := newTestCoordinator(t, 2, 4, 0,
		def("risky", `id == 2 ? setEnv("x", 1) : set("ok", true)`, `push("risky", 1, "day")`),
	)
	require.NoError(t, c.ScheduleAll("risky", 0))

	// WHEN run
	err := c.Run(context.Background(), 5)

	// THEN the first step fails, the threads are joined and the clock did not advance
	require.Error(t, err)
	assert.Contains(t, err.Error(), sim.ErrEnvironmentReadOnly.Error())
	assert.Equal(t, int64(0), c.Clock().Tick())
	for _, th := range c.Threads() {
		assert.Equal(t, sim.StateEnd, th.State())
	}
	assert.Equal(t, 1, c.Metrics().EvaluationErrors)
	assert.Equal(t, true, c.Population().Get(3).Vars["ok"], "other individuals still ran")
	assert.Nil(t, c.Population().Get(2).Vars["ok"])
}

func TestRun_PushesFromDifferentOriginsAllRun(t *testing.T) {
	// GIVEN individuals 1 and 2 each hitting individual 0 once
	c := newTestCoordinator(t, 2, 3, 0,
		def("infect", `pushTo(0, "hit", 1, "")`),
		def("hit", `set("age", ind.age + 1)`),
	)
	require.NoError(t, c.Schedule(1, "infect", 0))
	require.NoError(t, c.Schedule(2, "infect", 0))

	// WHEN the pushes are drained after the first step
	require.NoError(t, c.Step(context.Background()))

	// THEN individual 0 has one queued hit per push
	assert.Equal(t, 2, c.Waiting().Len(0))

	// WHEN run on, THEN both hits executed
	require.NoError(t, c.Run(context.Background(), 2))
	assert.Equal(t, 2, c.Population().Get(0).Vars["age"])
	assert.Equal(t, 2+2, c.Metrics().ProcessesExecuted)
}
