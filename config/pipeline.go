package config

import (
	"fmt"

	"github.com/kilianp07/sectioner/core/pipeline"
)

// PipelineConfig tunes the iteration loop.
type PipelineConfig struct {
	// MaxIterations caps the solve/adjust cycles per run.
	MaxIterations int `json:"max_iterations"`
	// UtilizationThreshold is the mean seat utilization at which the layout
	// is considered settled.
	UtilizationThreshold float64 `json:"utilization_threshold"`
	// DefaultCapacity seeds sections opened by advisory actions.
	DefaultCapacity int `json:"default_capacity"`
}

// SetDefaults applies the production loop settings where fields are unset.
func (c *PipelineConfig) SetDefaults() {
	if c.MaxIterations == 0 {
		c.MaxIterations = 5
	}
	if c.UtilizationThreshold == 0 {
		c.UtilizationThreshold = 0.75
	}
	if c.DefaultCapacity == 0 {
		c.DefaultCapacity = 30
	}
}

// Validate checks the loop settings.
func (c PipelineConfig) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("pipeline.max_iterations must be at least 1")
	}
	if c.UtilizationThreshold <= 0 || c.UtilizationThreshold > 1 {
		return fmt.Errorf("pipeline.utilization_threshold must be in (0, 1]")
	}
	if c.DefaultCapacity < 1 {
		return fmt.Errorf("pipeline.default_capacity must be positive")
	}
	return nil
}

// Options converts to controller options, combining the solver settings.
func (c PipelineConfig) Options(solver SolverConfig) pipeline.Options {
	return pipeline.Options{
		MaxIterations:        c.MaxIterations,
		UtilizationThreshold: c.UtilizationThreshold,
		DefaultCapacity:      c.DefaultCapacity,
		Weights:              solver.Weights(),
		Solver:               solver.Options(),
	}
}
