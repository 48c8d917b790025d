// Tracks run-wide and per-step counters of the simulation.

package sim

import (
	"fmt"
	"time"
)

// StepRecord summarizes one completed step (including its substeps).
type StepRecord struct {
	Step         int           `json:"step"`
	Tick         int64         `json:"tick"`
	Substeps     int           `json:"substeps"`
	EnvProcesses int           `json:"environment_processes"`
	Individuals  int           `json:"individuals"`
	Processes    int           `json:"processes"`
	Pushes       int           `json:"pushes"`
	Drained      int           `json:"drained"`
	Errors       int           `json:"errors"`
	Pending      int           `json:"pending"`
	Duration     time.Duration `json:"duration_ns"`
}

// Metrics aggregates statistics about the run for final reporting.
type Metrics struct {
	Steps             int          `json:"steps"`
	Substeps          int          `json:"substeps"`
	ProcessesExecuted int          `json:"processes_executed"`
	PushesPosted      int          `json:"pushes_posted"`
	PushesDrained     int          `json:"pushes_drained"`
	EvaluationErrors  int          `json:"evaluation_errors"`
	PeakPending       int          `json:"peak_pending"`
	SimEndedTick      int64        `json:"sim_ended_tick"`
	PopulationSize    int          `json:"population_size"`
	StepRecords       []StepRecord `json:"step_records,omitempty"`
}

// NewMetrics creates zeroed metrics.
func NewMetrics() *Metrics {
	return &Metrics{StepRecords: make([]StepRecord, 0)}
}

func (m *Metrics) record(r StepRecord) {
	m.Steps++
	m.Substeps += r.Substeps
	m.ProcessesExecuted += r.Processes + r.EnvProcesses
	m.PushesPosted += r.Pushes
	m.PushesDrained += r.Drained
	m.EvaluationErrors += r.Errors
	m.PeakPending = max(m.PeakPending, r.Pending)
	m.StepRecords = append(m.StepRecords, r)
}

// Print displays aggregated metrics at the end of the run.
func (m *Metrics) Print(wall time.Duration) {
	fmt.Println("=== Simulation Metrics ===")
	fmt.Printf("Steps                : %d\n", m.Steps)
	fmt.Printf("Substeps             : %d\n", m.Substeps)
	fmt.Printf("Final Tick           : %d\n", m.SimEndedTick)
	fmt.Printf("Population           : %d\n", m.PopulationSize)
	fmt.Printf("Processes Executed   : %d\n", m.ProcessesExecuted)
	fmt.Printf("Pushes Posted        : %d\n", m.PushesPosted)
	fmt.Printf("Pushes Drained       : %d\n", m.PushesDrained)
	fmt.Printf("Peak Pending         : %d\n", m.PeakPending)
	fmt.Printf("Evaluation Errors    : %d\n", m.EvaluationErrors)
	if m.Steps > 0 {
		fmt.Printf("Processes / Step     : %.2f\n", float64(m.ProcessesExecuted)/float64(m.Steps))
	}
	fmt.Printf("Wall Time            : %s\n", wall.Round(time.Millisecond))
}
