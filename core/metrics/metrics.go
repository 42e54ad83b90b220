package metrics

import "time"

// SolveEvent records one optimizer pass.
type SolveEvent struct {
	RunID     string
	Iteration int
	Status    string
	Objective float64
	Gap       float64
	Nodes     int64
	Fallback  bool
	Duration  time.Duration
	Time      time.Time
}

// IterationEvent is a snapshot of the schedule after one pipeline iteration.
type IterationEvent struct {
	RunID           string
	Iteration       int
	Satisfied       int
	Missed          int
	Violations      int
	Unplaced        int
	MeanUtilization float64
	Actions         int
	Time            time.Time
}

// RunEvent summarizes a finished pipeline run.
type RunEvent struct {
	RunID            string
	Iterations       int
	TotalRequests    int
	Satisfied        int
	SatisfactionRate float64
	Elapsed          time.Duration
	Time             time.Time
}

// MetricsSink records scheduling events for observability purposes.
type MetricsSink interface {
	RecordSolve(ev SolveEvent) error
	RecordIteration(ev IterationEvent) error
	RecordRun(ev RunEvent) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordSolve(SolveEvent) error         { return nil }
func (NopSink) RecordIteration(IterationEvent) error { return nil }
func (NopSink) RecordRun(RunEvent) error             { return nil }

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordSolve(ev SolveEvent) error {
	var firstErr error
	for _, s := range m.Sinks {
		if err := s.RecordSolve(ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiSink) RecordIteration(ev IterationEvent) error {
	var firstErr error
	for _, s := range m.Sinks {
		if err := s.RecordIteration(ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiSink) RecordRun(ev RunEvent) error {
	var firstErr error
	for _, s := range m.Sinks {
		if err := s.RecordRun(ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
