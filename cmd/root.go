package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/popsim/popsim/sim"
	"github.com/popsim/popsim/sim/trace"
)

var (
	// CLI flags for the run
	scenarioPath    string // Scenario YAML file
	threads         int    // Worker threads (overrides simulator.threads)
	steps           int    // Steps to run (overrides simulator.steps)
	seed            int64  // Master seed (overrides simulator.seed)
	maxSubsteps     int    // Same-tick passes per step (overrides simulator.max_substeps)
	logLevel        string // Log verbosity level
	traceLevel      string // Push trace level
	traceMaxRecords int    // Cap on stored push records
	resultsPath     string // JSON results output
	metricsAddr     string // Prometheus listen address
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "popsim",
	Short: "Multi-threaded discrete-event population simulator",
}

// runCmd executes a scenario using parameters from the file and CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if scenarioPath == "" {
			return errors.New("scenario file not provided, use --scenario")
		}
		if !trace.IsValidTraceLevel(traceLevel) {
			return fmt.Errorf("invalid trace level: %s (none, pushes)", traceLevel)
		}

		sc, err := LoadScenario(scenarioPath)
		if err != nil {
			return fmt.Errorf("load scenario %s: %w", scenarioPath, err)
		}
		cfg, nSteps := applyOverrides(cmd, sc)
		if nSteps < 1 {
			return errors.New("nothing to run: steps must be >= 1 (set simulator.steps or --steps)")
		}

		var st *trace.SimulationTrace
		if trace.TraceLevel(traceLevel) == trace.TraceLevelPushes {
			st = trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelPushes, MaxRecords: traceMaxRecords})
		}
		reg := prometheus.NewRegistry()
		collector := sim.NewCollector(reg)

		c, err := sc.Build(cfg, sim.WithCollector(collector), sim.WithTrace(st))
		if err != nil {
			return fmt.Errorf("build scenario: %w", err)
		}

		if metricsAddr != "" {
			srv := serveMetrics(metricsAddr, reg)
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()
		}

		logrus.Infof("Starting scenario %q (run %s): %d threads, %d steps, %d individuals, seed=%d",
			cfg.Label, c.RunID(), cfg.Threads, nSteps, c.Population().Len(), cfg.Seed)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		startTime := time.Now()
		runErr := c.Run(ctx, nSteps)
		c.Metrics().Print(time.Since(startTime))

		if resultsPath != "" {
			if err := CollectResults(c, cfg, runErr).Write(resultsPath); err != nil {
				logrus.Errorf("%v", err)
			}
		}
		if runErr != nil {
			return fmt.Errorf("simulation failed: %w", runErr)
		}
		logrus.Info("Simulation complete.")
		return nil
	},
}

// validateCmd loads a scenario and compiles its processes without running it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a scenario file and compile its processes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if scenarioPath == "" {
			return errors.New("scenario file not provided, use --scenario")
		}
		sc, err := LoadScenario(scenarioPath)
		if err != nil {
			return err
		}
		cfg, nSteps := applyOverrides(cmd, sc)
		c, err := sc.Build(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = c.End() }()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "scenario   : %s\n", cfg.Label)
		fmt.Fprintf(out, "threads    : %d\n", cfg.Threads)
		fmt.Fprintf(out, "steps      : %d\n", nSteps)
		fmt.Fprintf(out, "population : %d\n", c.Population().Len())
		fmt.Fprintf(out, "processes  : %d\n", len(sc.Processes))
		fmt.Fprintf(out, "scheduled  : %d\n", c.Waiting().Pending())
		fmt.Fprintf(out, "arrivals   : %v\n", sc.ArrivalTicks())
		return nil
	},
}

// applyOverrides merges explicitly set flags over the scenario's simulator
// section and returns the run config and step count.
func applyOverrides(cmd *cobra.Command, sc *Scenario) (sim.Config, int) {
	cfg := sc.SimConfig()
	nSteps := sc.Simulator.Steps
	flags := cmd.Flags()
	if flags.Changed("threads") {
		cfg.Threads = threads
	}
	if flags.Changed("steps") {
		nSteps = steps
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("max-substeps") {
		cfg.MaxSubsteps = maxSubsteps
	}
	return cfg, nSteps
}

// serveMetrics exposes reg on addr at /metrics until shut down.
func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("metrics server: %v", err)
		}
	}()
	logrus.Infof("Serving metrics on http://%s/metrics", addr)
	return srv
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// registerScenarioFlags adds the flags shared by run and validate.
func registerScenarioFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "Scenario YAML file")
	cmd.Flags().IntVar(&threads, "threads", 1, "Worker threads (overrides simulator.threads)")
	cmd.Flags().IntVar(&steps, "steps", 0, "Steps to run (overrides simulator.steps)")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Master seed (overrides simulator.seed)")
	cmd.Flags().IntVar(&maxSubsteps, "max-substeps", 0, "Same-tick continuation passes per step (overrides simulator.max_substeps)")
}

// init sets up CLI flags and subcommands
func init() {
	registerScenarioFlags(runCmd)
	registerScenarioFlags(validateCmd)

	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", "none", "Push trace level (none, pushes)")
	runCmd.Flags().IntVar(&traceMaxRecords, "trace-max-records", 0, "Maximum push records kept in the trace (0 = unbounded)")
	runCmd.Flags().StringVar(&resultsPath, "results", "", "Write run results as JSON to this file")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
