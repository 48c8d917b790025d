package process

import (
	"context"
	"testing"

	"github.com/popsim/popsim/sim"
	"github.com/popsim/popsim/sim/internal/testutil"
)

// TestRun_GoldenDataset replays every run in testdata/goldendataset.json and
// checks its counters and final state exactly.
func TestRun_GoldenDataset(t *testing.T) {
	dataset := testutil.LoadGoldenDataset(t)
	if len(dataset.Tests) == 0 {
		t.Fatal("golden dataset is empty")
	}

	for _, tc := range dataset.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			c := goldenCoordinator(t, tc)

			if err := c.Run(context.Background(), tc.Steps); err != nil {
				t.Fatalf("Run: %v", err)
			}

			m := c.Metrics()
			want := tc.Metrics
			if m.Steps != want.Steps {
				t.Errorf("steps: got %d, want %d", m.Steps, want.Steps)
			}
			if m.Substeps != want.Substeps {
				t.Errorf("substeps: got %d, want %d", m.Substeps, want.Substeps)
			}
			if m.ProcessesExecuted != want.ProcessesExecuted {
				t.Errorf("processes_executed: got %d, want %d", m.ProcessesExecuted, want.ProcessesExecuted)
			}
			if m.EvaluationErrors != want.EvaluationErrors {
				t.Errorf("evaluation_errors: got %d, want %d", m.EvaluationErrors, want.EvaluationErrors)
			}
			if m.SimEndedTick != want.SimEndedTick {
				t.Errorf("sim_ended_tick: got %d, want %d", m.SimEndedTick, want.SimEndedTick)
			}
			if m.PopulationSize != want.PopulationSize {
				t.Errorf("population_size: got %d, want %d", m.PopulationSize, want.PopulationSize)
			}

			pop := c.Population()
			sum := 0.0
			for i := 0; i < pop.Len(); i++ {
				v, err := toFloat(pop.Get(i).Vars[want.MeanVariable])
				if err != nil {
					t.Fatalf("individual %d %s: %v", i, want.MeanVariable, err)
				}
				sum += v
			}
			testutil.AssertFloat64Equal(t, "mean "+want.MeanVariable, want.Mean, sum/float64(pop.Len()), 1e-9)

			for name, w := range tc.FinalEnv {
				got, err := toFloat(c.Environment().Vars[name])
				if err != nil {
					t.Fatalf("environment %s: %v", name, err)
				}
				testutil.AssertFloat64Equal(t, "environment "+name, w, got, 1e-9)
			}
		})
	}
}

// goldenCoordinator builds the coordinator described by tc with its
// schedule applied.
func goldenCoordinator(t *testing.T, tc testutil.GoldenTestCase) *sim.Coordinator {
	t.Helper()
	defs := make([]sim.ProcessDefinition, len(tc.Processes))
	for i, p := range tc.Processes {
		defs[i] = sim.ProcessDefinition{Label: p.Label, Nodes: p.Nodes}
	}
	reg, err := NewRegistry(defs)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	cfg := sim.DefaultConfig()
	cfg.Label = tc.Name
	cfg.Threads = tc.Threads
	cfg.MaxSubsteps = tc.MaxSubsteps
	cfg.Seed = tc.Seed
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))
	env := sim.NewEnvironment(sim.Variables(tc.Environment), rng)
	pop := sim.NewPopulation(tc.Population, sim.Variables(tc.Individual), rng)
	c, err := sim.NewCoordinator(cfg, sim.NewClock(cfg.Clock), env, pop, reg)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}

	for _, e := range tc.Schedule {
		switch e.Target {
		case "individuals":
			err = c.ScheduleAll(e.Process, e.At)
		case "environment":
			err = c.ScheduleEnvironment(e.Process, e.At)
		case "individual":
			err = c.Schedule(sim.IndividualID(e.ID), e.Process, e.At)
		default:
			t.Fatalf("unknown schedule target %q", e.Target)
		}
		if err != nil {
			t.Fatalf("schedule %s: %v", e.Process, err)
		}
	}
	return c
}
