package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/sectioner/core/milp"
)

// SolverConfig tunes the optimizer budget and penalty weights.
type SolverConfig struct {
	// TimeLimitSeconds caps the wall-clock time of one solve.
	TimeLimitSeconds int `json:"time_limit_seconds"`
	// GapTolerance stops the search once the relative optimality gap is
	// proven below it.
	GapTolerance float64 `json:"gap_tolerance"`
	// MaxThreads caps the solver worker count; zero means all CPUs.
	MaxThreads int `json:"max_threads"`
	// MemoryFraction is the host memory watermark that triggers spilling
	// open nodes to disk.
	MemoryFraction float64 `json:"memory_fraction"`
	// SpillDir receives spilled node batches; empty means the OS temp dir.
	SpillDir string `json:"spill_dir"`

	MissedWeight   float64 `json:"missed_weight"`
	CapacityWeight float64 `json:"capacity_weight"`
	SPEDCap        int     `json:"sped_cap"`
}

// SetDefaults applies the production budget where fields are unset.
func (c *SolverConfig) SetDefaults() {
	if c.TimeLimitSeconds == 0 {
		c.TimeLimitSeconds = 900
	}
	if c.GapTolerance == 0 {
		c.GapTolerance = 0.02
	}
	if c.MemoryFraction == 0 {
		c.MemoryFraction = 0.85
	}
	if c.MissedWeight == 0 {
		c.MissedWeight = 1000
	}
	if c.CapacityWeight == 0 {
		c.CapacityWeight = 1
	}
	if c.SPEDCap == 0 {
		c.SPEDCap = 2
	}
}

// Validate checks the budget makes sense.
func (c SolverConfig) Validate() error {
	if c.TimeLimitSeconds < 0 {
		return fmt.Errorf("solver.time_limit_seconds must not be negative")
	}
	if c.GapTolerance < 0 || c.GapTolerance >= 1 {
		return fmt.Errorf("solver.gap_tolerance must be in [0, 1)")
	}
	if c.MemoryFraction <= 0 || c.MemoryFraction >= 1 {
		return fmt.Errorf("solver.memory_fraction must be in (0, 1)")
	}
	if c.MissedWeight <= c.CapacityWeight {
		return fmt.Errorf("solver.missed_weight must exceed capacity_weight")
	}
	return nil
}

// Options converts to the solver budget.
func (c SolverConfig) Options() milp.Options {
	return milp.Options{
		TimeLimit:      time.Duration(c.TimeLimitSeconds) * time.Second,
		GapTolerance:   c.GapTolerance,
		MaxThreads:     c.MaxThreads,
		MemoryFraction: c.MemoryFraction,
		SpillDir:       c.SpillDir,
	}
}

// Weights converts to the objective weights.
func (c SolverConfig) Weights() milp.Weights {
	return milp.Weights{
		MissedWeight:   c.MissedWeight,
		CapacityWeight: c.CapacityWeight,
		SPEDCap:        c.SPEDCap,
	}
}
