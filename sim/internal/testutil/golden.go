// Package testutil provides shared test infrastructure for the simulator.
// It holds the golden dataset types and assertion helpers used by the
// sim/ test packages.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// GoldenDataset represents the structure of testdata/goldendataset.json.
type GoldenDataset struct {
	Tests []GoldenTestCase `json:"tests"`
}

// GoldenTestCase is one fully specified run and its expected outcome.
type GoldenTestCase struct {
	Name        string                `json:"name"`
	Threads     int                   `json:"threads"`
	Steps       int                   `json:"steps"`
	MaxSubsteps int                   `json:"max-substeps"`
	Seed        int64                 `json:"seed"`
	Population  int                   `json:"population"`
	Individual  map[string]any        `json:"individual"`
	Environment map[string]any        `json:"environment"`
	Processes   []GoldenProcess       `json:"processes"`
	Schedule    []GoldenScheduleEntry `json:"schedule"`
	Metrics     GoldenMetrics         `json:"metrics"`
	FinalEnv    map[string]float64    `json:"final-environment"`
}

// GoldenProcess is a process definition in the dataset.
type GoldenProcess struct {
	Label string   `json:"label"`
	Nodes []string `json:"nodes"`
}

// GoldenScheduleEntry queues Process at tick At for Target
// ("individuals", "environment" or "individual" with ID).
type GoldenScheduleEntry struct {
	Process string `json:"process"`
	Target  string `json:"target"`
	ID      int    `json:"id"`
	At      int64  `json:"at"`
}

// GoldenMetrics represents the expected metrics from a golden test case.
type GoldenMetrics struct {
	// Exact match metrics (integers)
	Steps             int   `json:"steps"`
	Substeps          int   `json:"substeps"`
	ProcessesExecuted int   `json:"processes_executed"`
	EvaluationErrors  int   `json:"evaluation_errors"`
	SimEndedTick      int64 `json:"sim_ended_tick"`
	PopulationSize    int   `json:"population_size"`

	// Mean of the named individual variable over the final population
	MeanVariable string  `json:"mean_variable"`
	Mean         float64 `json:"mean"`
}

// LoadGoldenDataset loads the golden dataset from the testdata directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	// Navigate from sim/internal/testutil/ to repo root testdata/
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "goldendataset.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read golden dataset: %v", err)
	}

	var dataset GoldenDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse golden dataset: %v", err)
	}

	return &dataset
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
