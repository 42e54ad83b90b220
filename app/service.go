// Package app wires the configuration into a runnable scheduling service.
package app

import (
	"context"
	"fmt"

	"github.com/kilianp07/sectioner/config"
	coreadvisor "github.com/kilianp07/sectioner/core/advisor"
	coremetrics "github.com/kilianp07/sectioner/core/metrics"
	"github.com/kilianp07/sectioner/core/pipeline"
	"github.com/kilianp07/sectioner/infra/advisor"
	"github.com/kilianp07/sectioner/infra/csvio"
	"github.com/kilianp07/sectioner/infra/logger"
	_ "github.com/kilianp07/sectioner/infra/metrics" // register metrics sinks
	"github.com/kilianp07/sectioner/pkg/export"
)

// Service orchestrates one scheduling run: load, iterate, export.
type Service struct {
	cfg  *config.Config
	ctrl *pipeline.Controller
	log  logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	var adv coreadvisor.Advisor
	if cfg.Advisor.Enabled {
		adv = advisor.NewHTTPAdvisor(cfg.Advisor.ClientConfig())
	}

	return &Service{
		cfg:  cfg,
		ctrl: pipeline.New(cfg.Pipeline.Options(cfg.Solver), adv, sink),
		log:  logger.New("service"),
	}, nil
}

// Run loads the roster, drives the pipeline, and writes the outputs.
func (s *Service) Run(ctx context.Context) error {
	loader := csvio.NewLoader(s.cfg.Input.Dir)
	loader.Restrict(s.cfg.Courses.Restrictions)
	roster, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load input: %w", err)
	}

	events := s.ctrl.Events().Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			s.log.Infof("iteration %d: %d satisfied, %d missed, %d overage, utilization %.2f",
				ev.Iteration, ev.Satisfied, ev.Missed, ev.Violations, ev.MeanUtilization)
		}
	}()

	report, err := s.ctrl.Run(ctx, roster)
	s.ctrl.Events().Unsubscribe(events)
	<-done
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if report.Schedule == nil {
		return fmt.Errorf("pipeline produced no schedule")
	}

	if err := export.WriteAll(s.cfg.Output.Dir, report); err != nil {
		return err
	}
	s.log.Infof("run %s wrote outputs to %s", report.RunID, s.cfg.Output.Dir)
	return nil
}

// Close releases the event bus.
func (s *Service) Close() error {
	s.ctrl.Events().Close()
	return nil
}
