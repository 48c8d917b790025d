package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/popsim/popsim/sim"
	"github.com/popsim/popsim/sim/trace"
)

// Results is the JSON document written by --results.
type Results struct {
	RunID       string              `json:"run_id"`
	Scenario    string              `json:"scenario"`
	Seed        int64               `json:"seed"`
	Threads     int                 `json:"threads"`
	Error       string              `json:"error,omitempty"`
	Metrics     *sim.Metrics        `json:"metrics"`
	Trace       *trace.TraceSummary `json:"trace,omitempty"`
	Environment sim.Variables       `json:"environment"`
	Population  []sim.Variables     `json:"population"`
}

// CollectResults snapshots a finished run. runErr is the error Run
// returned, if any.
func CollectResults(c *sim.Coordinator, cfg sim.Config, runErr error) *Results {
	r := &Results{
		RunID:       c.RunID(),
		Scenario:    cfg.Label,
		Seed:        cfg.Seed,
		Threads:     cfg.Threads,
		Metrics:     c.Metrics(),
		Environment: c.Environment().Vars,
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	if c.Trace().Enabled() {
		r.Trace = trace.Summarize(c.Trace())
	}
	pop := c.Population()
	r.Population = make([]sim.Variables, pop.Len())
	for i := range r.Population {
		r.Population[i] = pop.Get(i).Vars
	}
	return r
}

// Write saves the results as indented JSON.
func (r *Results) Write(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	logrus.Infof("Results written to %s", path)
	return nil
}
