// Package pipeline drives the iterative scheduling loop: construct a greedy
// baseline, refine it with the optimizer, evaluate utilization, and adjust
// the section layout with advisory input until the schedule settles or the
// iteration cap is reached.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/sectioner/core/advisor"
	"github.com/kilianp07/sectioner/core/greedy"
	"github.com/kilianp07/sectioner/core/metrics"
	"github.com/kilianp07/sectioner/core/milp"
	"github.com/kilianp07/sectioner/core/model"
	"github.com/kilianp07/sectioner/infra/logger"
	"github.com/kilianp07/sectioner/internal/eventbus"
)

// Phase is the controller's position in the iteration state machine.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseEvaluate Phase = "evaluate"
	PhaseAdjust   Phase = "adjust"
	PhaseDone     Phase = "done"
)

// Options tune the iteration loop.
type Options struct {
	MaxIterations        int
	UtilizationThreshold float64
	DefaultCapacity      int
	Weights              milp.Weights
	Solver               milp.Options
}

// DefaultOptions mirrors the observed production loop.
func DefaultOptions() Options {
	return Options{
		MaxIterations:        5,
		UtilizationThreshold: 0.75,
		DefaultCapacity:      30,
		Weights:              milp.DefaultWeights(),
		Solver:               milp.DefaultOptions(),
	}
}

// IterationReport captures one loop pass.
type IterationReport struct {
	Number          int
	Status          string
	Fallback        bool
	Objective       float64
	Gap             float64
	Satisfied       int
	Missed          int
	Violations      int
	Unplaced        int
	MeanUtilization float64
	StdUtilization  float64
	BelowThreshold  []string
	Actions         []advisor.Action
	SolveDuration   time.Duration
}

// RunReport is the outcome of a full pipeline run. Converged is true only
// when the final schedule carries no capacity overage and every section
// reached the utilization threshold; BelowThreshold lists the sections that
// did not.
type RunReport struct {
	RunID            string
	Iterations       []IterationReport
	Schedule         *model.Schedule
	Roster           *model.Roster
	Converged        bool
	BelowThreshold   []string
	TotalRequests    int
	Satisfied        int
	SatisfactionRate float64
	Elapsed          time.Duration
}

// Controller owns one scheduling run.
type Controller struct {
	opts     Options
	adv      advisor.Advisor
	fallback advisor.RuleBased
	sink     metrics.MetricsSink
	events   *eventbus.TypedBus[metrics.IterationEvent]
	log      logger.Logger
	phase    Phase
}

// New builds a controller. adv may be nil, in which case only the rule-based
// fallback is consulted; sink may be nil to disable metrics.
func New(opts Options, adv advisor.Advisor, sink metrics.MetricsSink) *Controller {
	if opts.MaxIterations < 1 {
		opts.MaxIterations = 1
	}
	if opts.UtilizationThreshold <= 0 {
		opts.UtilizationThreshold = 0.75
	}
	if opts.DefaultCapacity <= 0 {
		opts.DefaultCapacity = 30
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Controller{
		opts:     opts,
		adv:      adv,
		fallback: advisor.NewRuleBased(),
		sink:     sink,
		events:   eventbus.NewTyped[metrics.IterationEvent](),
		log:      logger.New("pipeline"),
		phase:    PhaseInit,
	}
}

// Events exposes the per-iteration event stream.
func (c *Controller) Events() *eventbus.TypedBus[metrics.IterationEvent] { return c.events }

// Phase reports the controller's position in the loop.
func (c *Controller) Phase() Phase { return c.phase }

func (c *Controller) setPhase(p Phase) {
	c.phase = p
	c.log.Debugf("phase %s", p)
}

// Run executes the loop until every section meets the utilization threshold
// with no capacity overage, the advisor has nothing left to suggest, or the
// iteration cap is hit. Cancelling the context stops the loop between
// iterations and returns the best schedule so far.
func (c *Controller) Run(ctx context.Context, roster *model.Roster) (*RunReport, error) {
	start := time.Now()
	report := &RunReport{RunID: uuid.NewString()}
	c.setPhase(PhaseInit)
	c.log.Infof("run %s starting, %d sections, %d students", report.RunID, len(roster.Sections), len(roster.Students))

	for iter := 1; iter <= c.opts.MaxIterations; iter++ {
		if ctx.Err() != nil {
			c.log.Warnf("run %s cancelled after %d iterations", report.RunID, len(report.Iterations))
			break
		}

		sched, ir := c.iterate(ctx, roster, iter, report.RunID)
		c.setPhase(PhaseEvaluate)
		report.Schedule = sched
		report.Roster = roster

		// Settling is per section: one section below the threshold keeps the
		// loop adjusting even when the mean looks healthy.
		ir.BelowThreshold = belowThreshold(roster, sched, c.opts.UtilizationThreshold)
		settled := len(ir.BelowThreshold) == 0 && ir.Violations == 0
		last := iter == c.opts.MaxIterations

		if !settled && !last {
			c.setPhase(PhaseAdjust)
			actions := c.review(ctx, roster, sched, ir)
			ir.Actions = actions
			if len(actions) > 0 {
				next, applied, err := c.applyActions(roster, actions)
				if err != nil {
					return nil, err
				}
				if applied == 0 {
					settled = true
				}
				roster = next
			} else {
				settled = true
			}
		}

		report.Iterations = append(report.Iterations, ir)
		c.publishIteration(report.RunID, ir)
		if settled {
			break
		}
	}
	c.setPhase(PhaseDone)

	if n := len(report.Iterations); n > 0 {
		final := report.Iterations[n-1]
		report.BelowThreshold = final.BelowThreshold
		report.Converged = len(final.BelowThreshold) == 0 && final.Violations == 0
	}
	report.Elapsed = time.Since(start)
	report.TotalRequests = roster.RequestCount()
	if report.Schedule != nil {
		report.Satisfied = report.Schedule.SatisfiedRequests()
	}
	if report.TotalRequests > 0 {
		report.SatisfactionRate = float64(report.Satisfied) / float64(report.TotalRequests)
	}
	runEv := metrics.RunEvent{
		RunID:            report.RunID,
		Iterations:       len(report.Iterations),
		TotalRequests:    report.TotalRequests,
		Satisfied:        report.Satisfied,
		SatisfactionRate: report.SatisfactionRate,
		Elapsed:          report.Elapsed,
		Time:             time.Now(),
	}
	if err := c.sink.RecordRun(runEv); err != nil {
		c.log.Warnf("record run: %v", err)
	}
	c.log.Infof("run %s done: %d/%d requests satisfied (%.1f%%), converged=%t, %d sections below threshold, in %s",
		report.RunID, report.Satisfied, report.TotalRequests, report.SatisfactionRate*100,
		report.Converged, len(report.BelowThreshold), report.Elapsed)
	return report, nil
}

// iterate produces one schedule: greedy baseline, then the optimizer with the
// baseline as warm incumbent. Any solver failure degrades to the baseline.
func (c *Controller) iterate(ctx context.Context, roster *model.Roster, iter int, runID string) (*model.Schedule, IterationReport) {
	baseline := greedy.Constructor{SPEDCap: c.opts.Weights.SPEDCap}.Build(roster)

	f := milp.NewFormulation(roster, c.opts.Weights)
	solveStart := time.Now()
	sol, err := milp.NewSolver(c.opts.Solver).Solve(ctx, f, baseline)

	var sched *model.Schedule
	ir := IterationReport{Number: iter, SolveDuration: time.Since(solveStart)}
	if err != nil {
		c.log.Warnf("iteration %d: solver failed (%v), keeping greedy baseline", iter, err)
		sched = baseline
		ir.Status = "fallback"
		ir.Fallback = true
	} else {
		sched = sol.Schedule
		ir.Status = string(sol.Status)
		ir.Objective = sol.Objective
		ir.Gap = sol.Gap
	}

	ir.Satisfied = sched.SatisfiedRequests()
	ir.Missed = len(sched.Missed)
	ir.Unplaced = len(sched.Unplaced)
	for _, v := range sched.Violations {
		ir.Violations += v
	}
	ir.MeanUtilization, ir.StdUtilization = utilizationStats(roster, sched)

	ev := metrics.SolveEvent{
		RunID:     runID,
		Iteration: iter,
		Status:    ir.Status,
		Objective: ir.Objective,
		Gap:       ir.Gap,
		Fallback:  ir.Fallback,
		Duration:  ir.SolveDuration,
		Time:      time.Now(),
	}
	if sol != nil {
		ev.Nodes = sol.Nodes
	}
	if err := c.sink.RecordSolve(ev); err != nil {
		c.log.Warnf("record solve: %v", err)
	}
	return sched, ir
}

// review snapshots the sections needing attention and asks the advisor:
// those below the utilization threshold plus those carrying seat overage,
// since either blocks settling. Advisor errors degrade to the rule-based
// fallback.
func (c *Controller) review(ctx context.Context, roster *model.Roster, sched *model.Schedule, ir IterationReport) []advisor.Action {
	missedByCourse := make(map[string]int)
	for _, m := range sched.Missed {
		missedByCourse[m.CourseID]++
	}
	below := make(map[string]bool, len(ir.BelowThreshold))
	for _, id := range ir.BelowThreshold {
		below[id] = true
	}
	reviews := make([]advisor.SectionReview, 0, len(ir.BelowThreshold))
	for _, secID := range roster.SectionOrder() {
		sec := roster.Sections[secID]
		if !below[secID] && sched.Violations[secID] == 0 {
			continue
		}
		reviews = append(reviews, advisor.SectionReview{
			SectionID:   secID,
			CourseID:    sec.CourseID,
			Capacity:    sec.Capacity,
			Enrolled:    sched.Enrollment(secID),
			Overage:     sched.Violations[secID],
			Utilization: sched.Utilization(sec),
			Missed:      missedByCourse[sec.CourseID],
		})
	}

	if c.adv != nil {
		actions, err := c.adv.Review(ctx, reviews)
		if err == nil {
			return actions
		}
		c.log.Warnf("advisor unavailable (%v), using rule-based fallback", err)
	}
	actions, _ := c.fallback.Review(ctx, reviews)
	return actions
}

func (c *Controller) publishIteration(runID string, ir IterationReport) {
	ev := metrics.IterationEvent{
		RunID:           runID,
		Iteration:       ir.Number,
		Satisfied:       ir.Satisfied,
		Missed:          ir.Missed,
		Violations:      ir.Violations,
		Unplaced:        ir.Unplaced,
		MeanUtilization: ir.MeanUtilization,
		Actions:         len(ir.Actions),
		Time:            time.Now(),
	}
	c.events.Publish(ev)
	if err := c.sink.RecordIteration(ev); err != nil {
		c.log.Warnf("record iteration: %v", err)
	}
}

// belowThreshold lists the sections whose utilization falls short of the
// threshold, in stable order. Unplaced sections count as zero enrollment, so
// they stay on the list until an adjustment resolves them.
func belowThreshold(roster *model.Roster, sched *model.Schedule, threshold float64) []string {
	var out []string
	for _, secID := range roster.SectionOrder() {
		if sched.Utilization(roster.Sections[secID]) < threshold {
			out = append(out, secID)
		}
	}
	return out
}

// utilizationStats summarizes seat usage over the placed sections.
func utilizationStats(roster *model.Roster, sched *model.Schedule) (mean, std float64) {
	var utils []float64
	for _, secID := range roster.SectionOrder() {
		if _, placed := sched.Placements[secID]; !placed {
			continue
		}
		utils = append(utils, sched.Utilization(roster.Sections[secID]))
	}
	if len(utils) == 0 {
		return 0, 0
	}
	mean = stat.Mean(utils, nil)
	if len(utils) > 1 {
		std = stat.StdDev(utils, nil)
	}
	return mean, std
}
