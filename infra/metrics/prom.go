package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/sectioner/core/metrics"
)

// PromSink records scheduling events in Prometheus metrics.
type PromSink struct {
	solves        *prometheus.CounterVec
	solveDuration prometheus.Histogram
	solveNodes    prometheus.Histogram
	satisfied     prometheus.Gauge
	missed        prometheus.Gauge
	violations    prometheus.Gauge
	utilization   prometheus.Gauge
	iterations    prometheus.Histogram
}

// NewPromSink registers scheduling metrics on the default Prometheus
// registerer. The Prometheus server should be started separately.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_solves_total",
			Help: "Total number of optimizer passes by outcome",
		}, []string{"status"}),
		solveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scheduler_solve_duration_seconds",
			Help:    "Wall-clock time of one optimizer pass",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
		solveNodes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scheduler_solve_nodes",
			Help:    "Branch and bound nodes explored per optimizer pass",
			Buckets: prometheus.ExponentialBuckets(1, 8, 8),
		}),
		satisfied: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_satisfied_requests",
			Help: "Course requests satisfied by the latest schedule",
		}),
		missed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_missed_requests",
			Help: "Course requests left unmet by the latest schedule",
		}),
		violations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_capacity_overage_seats",
			Help: "Seats assigned beyond section capacity in the latest schedule",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_mean_utilization_ratio",
			Help: "Mean seat utilization over placed sections",
		}),
		iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scheduler_run_iterations",
			Help:    "Pipeline iterations per run",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
	}

	collectors := []prometheus.Collector{
		s.solves, s.solveDuration, s.solveNodes,
		s.satisfied, s.missed, s.violations, s.utilization, s.iterations,
	}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			switch i {
			case 0:
				s.solves = are.ExistingCollector.(*prometheus.CounterVec)
			case 1:
				s.solveDuration = are.ExistingCollector.(prometheus.Histogram)
			case 2:
				s.solveNodes = are.ExistingCollector.(prometheus.Histogram)
			case 3:
				s.satisfied = are.ExistingCollector.(prometheus.Gauge)
			case 4:
				s.missed = are.ExistingCollector.(prometheus.Gauge)
			case 5:
				s.violations = are.ExistingCollector.(prometheus.Gauge)
			case 6:
				s.utilization = are.ExistingCollector.(prometheus.Gauge)
			case 7:
				s.iterations = are.ExistingCollector.(prometheus.Histogram)
			}
		}
	}
	return s, nil
}

// RecordSolve counts the pass and observes its cost.
func (s *PromSink) RecordSolve(ev coremetrics.SolveEvent) error {
	s.solves.WithLabelValues(ev.Status).Inc()
	s.solveDuration.Observe(ev.Duration.Seconds())
	s.solveNodes.Observe(float64(ev.Nodes))
	return nil
}

// RecordIteration updates the schedule quality gauges.
func (s *PromSink) RecordIteration(ev coremetrics.IterationEvent) error {
	s.satisfied.Set(float64(ev.Satisfied))
	s.missed.Set(float64(ev.Missed))
	s.violations.Set(float64(ev.Violations))
	s.utilization.Set(ev.MeanUtilization)
	return nil
}

// RecordRun observes the iteration count of the finished run.
func (s *PromSink) RecordRun(ev coremetrics.RunEvent) error {
	s.iterations.Observe(float64(ev.Iterations))
	return nil
}
