package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/sectioner/config"
	"github.com/kilianp07/sectioner/infra/csvio"
	"github.com/kilianp07/sectioner/infra/logger"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the input tables without scheduling",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	loader := csvio.NewLoader(cfg.Input.Dir)
	loader.Restrict(cfg.Courses.Restrictions)
	roster, err := loader.Load()
	if err != nil {
		return err
	}

	logg := logger.New("validate-command")
	infeasible := 0
	for _, secID := range roster.SectionOrder() {
		if len(roster.FeasiblePeriods(secID)) == 0 {
			logg.Warnf("section %s has no feasible period", secID)
			infeasible++
		}
	}
	logg.Infof("input valid: %d students, %d sections, %d requests, %d sections without a feasible period",
		len(roster.Students), len(roster.Sections), roster.RequestCount(), infeasible)
	return nil
}
