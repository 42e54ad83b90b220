package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/sectioner/config"
	"github.com/kilianp07/sectioner/core/greedy"
	"github.com/kilianp07/sectioner/core/pipeline"
	"github.com/kilianp07/sectioner/infra/csvio"
	"github.com/kilianp07/sectioner/infra/logger"
	"github.com/kilianp07/sectioner/pkg/export"
)

var greedyCmd = &cobra.Command{
	Use:   "greedy",
	Short: "Write the greedy baseline schedule without optimization",
	RunE:  runGreedy,
}

func init() {
	rootCmd.AddCommand(greedyCmd)
}

func runGreedy(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	loader := csvio.NewLoader(cfg.Input.Dir)
	loader.Restrict(cfg.Courses.Restrictions)
	roster, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load input: %w", err)
	}

	logg := logger.New("greedy-command")
	sched := greedy.Constructor{SPEDCap: cfg.Solver.SPEDCap}.Build(roster)
	logg.Infof("baseline: %d assignments, %d missed, %d unplaced",
		sched.SatisfiedRequests(), len(sched.Missed), len(sched.Unplaced))

	report := &pipeline.RunReport{
		Schedule:      sched,
		Roster:        roster,
		TotalRequests: roster.RequestCount(),
		Satisfied:     sched.SatisfiedRequests(),
	}
	if report.TotalRequests > 0 {
		report.SatisfactionRate = float64(report.Satisfied) / float64(report.TotalRequests)
	}
	return export.WriteAll(cfg.Output.Dir, report)
}
