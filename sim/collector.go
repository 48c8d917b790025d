package sim

import "github.com/prometheus/client_golang/prometheus"

// Collector exports step records as prometheus metrics.
type Collector struct {
	steps        prometheus.Counter
	processes    prometheus.Counter
	pushes       *prometheus.CounterVec
	errors       prometheus.Counter
	pending      prometheus.Gauge
	tick         prometheus.Gauge
	stepDuration prometheus.Histogram
}

// NewCollector creates the collectors and registers them on reg.
// Panics on duplicate registration.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "popsim", Name: "steps_total",
			Help: "Completed simulation steps.",
		}),
		processes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "popsim", Name: "processes_executed_total",
			Help: "Process invocations evaluated, environment included.",
		}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "popsim", Name: "pushes_total",
			Help: "Pushes by stage (posted to the blackboard, drained into waiting queues).",
		}, []string{"stage"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "popsim", Name: "evaluation_errors_total",
			Help: "Process evaluations that failed.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "popsim", Name: "pending_invocations",
			Help: "Scheduled invocations waiting in all queues after the last step.",
		}),
		tick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "popsim", Name: "clock_tick",
			Help: "Tick of the last completed step.",
		}),
		stepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "popsim", Name: "step_duration_seconds",
			Help:    "Wall time of one step including substeps and drain.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
	reg.MustRegister(c.steps, c.processes, c.pushes, c.errors, c.pending, c.tick, c.stepDuration)
	return c
}

// Observe adds one step record.
func (c *Collector) Observe(r StepRecord) {
	c.steps.Inc()
	c.processes.Add(float64(r.Processes + r.EnvProcesses))
	c.pushes.WithLabelValues("posted").Add(float64(r.Pushes))
	c.pushes.WithLabelValues("drained").Add(float64(r.Drained))
	c.errors.Add(float64(r.Errors))
	c.pending.Set(float64(r.Pending))
	c.tick.Set(float64(r.Tick))
	c.stepDuration.Observe(r.Duration.Seconds())
}
