package milp

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/sectioner/core/model"
	"github.com/kilianp07/sectioner/infra/logger"
)

// Status classifies the outcome of a solve.
type Status string

const (
	// StatusOptimal means the search closed the frontier or reached the gap
	// tolerance.
	StatusOptimal Status = "optimal"
	// StatusTimeLimit means the budget expired with a feasible incumbent in
	// hand.
	StatusTimeLimit Status = "time_limit"
)

// Options bound the search effort.
type Options struct {
	TimeLimit      time.Duration
	GapTolerance   float64
	MaxThreads     int
	MemoryFraction float64
	SpillDir       string
}

// DefaultOptions mirrors the observed production budget.
func DefaultOptions() Options {
	return Options{
		TimeLimit:      15 * time.Minute,
		GapTolerance:   0.02,
		MemoryFraction: 0.85,
	}
}

// Solution is the best integral point found within budget.
type Solution struct {
	Status    Status
	Objective float64
	Bound     float64
	Gap       float64
	Nodes     int64
	Elapsed   time.Duration
	Schedule  *model.Schedule
}

// Solver owns one branch and bound search over a formulation.
type Solver struct {
	opts Options
	log  logger.Logger
}

// NewSolver builds a solver with the given budget.
func NewSolver(opts Options) *Solver {
	if opts.GapTolerance < 0 {
		opts.GapTolerance = 0
	}
	return &Solver{opts: opts, log: logger.New("milp")}
}

type searchState struct {
	mu   sync.Mutex
	cond *sync.Cond

	store    *nodeStore
	inflight map[int]float64

	incumbent []float64
	incObj    float64
	hasInc    bool

	nodes    int64
	done     bool
	timedOut bool
	err      error
}

func (st *searchState) setIncumbent(values []float64, obj float64) bool {
	if st.hasInc && obj >= st.incObj-1e-9 {
		return false
	}
	st.incumbent = values
	st.incObj = obj
	st.hasInc = true
	return true
}

// lowerBound is the proven bound over all open work.
func (st *searchState) lowerBound() float64 {
	lb := st.store.minBound()
	for _, b := range st.inflight {
		if b < lb {
			lb = b
		}
	}
	return lb
}

func (st *searchState) gap() float64 {
	if !st.hasInc {
		return math.Inf(1)
	}
	lb := st.lowerBound()
	if math.IsInf(lb, 1) {
		return 0 // frontier closed, incumbent is optimal
	}
	return (st.incObj - lb) / math.Max(1, math.Abs(st.incObj))
}

// Solve runs the search, seeding the incumbent from warm when it covers every
// modeled section. A nil warm starts the search cold.
func (s *Solver) Solve(ctx context.Context, f *Formulation, warm *model.Schedule) (*Solution, error) {
	start := time.Now()
	if s.opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TimeLimit)
		defer cancel()
	}

	if len(f.modeled) == 0 {
		return s.emptyModelSolution(f, start), nil
	}

	st := &searchState{
		store:    newNodeStore(s.opts.SpillDir, s.opts.MemoryFraction),
		inflight: make(map[int]float64),
	}
	st.cond = sync.NewCond(&st.mu)
	defer st.store.close()

	if warm != nil {
		if values, ok := f.ValuesFromSchedule(warm); ok {
			st.setIncumbent(values, f.Objective(values))
			s.log.Debugf("warm incumbent installed, objective=%.1f", st.incObj)
		} else {
			s.log.Debugf("baseline leaves modeled sections unplaced, starting cold")
		}
	}

	rootObj, rootVals, err := lpSolve(f, nil)
	if err != nil {
		if relaxationInfeasible(err) {
			return nil, ErrInfeasible
		}
		return nil, fmt.Errorf("root relaxation: %w", err)
	}
	st.nodes++
	if _, ok := f.integral(rootVals); ok {
		st.setIncumbent(rootVals, rootObj)
		return s.finish(f, st, rootObj, start), nil
	}
	if err := st.store.push(node{Bound: rootObj}); err != nil {
		return nil, err
	}

	workers := runtime.NumCPU()
	if s.opts.MaxThreads > 0 && s.opts.MaxThreads < workers {
		workers = s.opts.MaxThreads
	}
	if workers < 1 {
		workers = 1
	}

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			st.mu.Lock()
			st.done = true
			st.timedOut = true
			st.cond.Broadcast()
			st.mu.Unlock()
		case <-stop:
		}
	}()

	g := &errgroup.Group{}
	for w := 0; w < workers; w++ {
		id := w
		g.Go(func() error { return s.worker(f, st, id) })
	}
	err = g.Wait()
	close(stop)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.hasInc {
		if st.timedOut {
			return nil, ErrNoIncumbent
		}
		return nil, ErrInfeasible
	}
	return s.finish(f, st, st.lowerBound(), start), nil
}

func (s *Solver) worker(f *Formulation, st *searchState, id int) error {
	for {
		st.mu.Lock()
		for !st.done && st.store.size() == 0 && len(st.inflight) > 0 {
			st.cond.Wait()
		}
		if st.done || (st.store.size() == 0 && len(st.inflight) == 0) {
			st.done = true
			st.cond.Broadcast()
			st.mu.Unlock()
			return st.err
		}
		n, ok, err := st.store.pop()
		if err != nil {
			st.err = err
			st.done = true
			st.cond.Broadcast()
			st.mu.Unlock()
			return err
		}
		if !ok {
			st.mu.Unlock()
			continue
		}
		if st.hasInc && n.Bound >= st.incObj-1e-9 {
			st.cond.Broadcast()
			st.mu.Unlock()
			continue
		}
		st.inflight[id] = n.Bound
		st.mu.Unlock()

		improved, children, obj, values, solveErr := s.processNode(f, st, n)

		st.mu.Lock()
		delete(st.inflight, id)
		st.nodes++
		if solveErr == nil && improved {
			if st.setIncumbent(values, obj) {
				s.log.Debugf("incumbent improved, objective=%.1f nodes=%d", obj, st.nodes)
			}
		}
		for _, c := range children {
			if st.hasInc && c.Bound >= st.incObj-1e-9 {
				continue
			}
			if err := st.store.push(c); err != nil {
				st.err = err
				st.done = true
			}
		}
		if st.hasInc && st.gap() <= s.opts.GapTolerance {
			st.done = true
		}
		st.cond.Broadcast()
		st.mu.Unlock()
	}
}

// processNode solves the node relaxation and either closes it with an
// integral point or splits it on the most fractional binary.
func (s *Solver) processNode(f *Formulation, st *searchState, n node) (improved bool, children []node, obj float64, values []float64, err error) {
	obj, values, err = lpSolve(f, n.Fixings)
	if err != nil {
		if !relaxationInfeasible(err) {
			s.log.Warnf("node relaxation failed, pruning: %v", err)
		}
		return false, nil, 0, nil, nil
	}

	st.mu.Lock()
	dominated := st.hasInc && obj >= st.incObj-1e-9
	st.mu.Unlock()
	if dominated {
		return false, nil, 0, nil, nil
	}

	branchIdx, isIntegral := f.integral(values)
	if isIntegral {
		return true, nil, obj, values, nil
	}
	lo := n.child(branchIdx, 0)
	hi := n.child(branchIdx, 1)
	lo.Bound, hi.Bound = obj, obj
	return false, []node{lo, hi}, 0, nil, nil
}

func (s *Solver) finish(f *Formulation, st *searchState, bound float64, start time.Time) *Solution {
	if math.IsInf(bound, 1) || bound > st.incObj {
		bound = st.incObj
	}
	gap := (st.incObj - bound) / math.Max(1, math.Abs(st.incObj))
	status := StatusOptimal
	if st.timedOut && gap > s.opts.GapTolerance {
		status = StatusTimeLimit
	}
	sol := &Solution{
		Status:    status,
		Objective: st.incObj,
		Bound:     bound,
		Gap:       gap,
		Nodes:     st.nodes,
		Elapsed:   time.Since(start),
		Schedule:  f.ScheduleFromValues(st.incumbent),
	}
	s.log.Infof("solve finished status=%s objective=%.1f gap=%.4f nodes=%d elapsed=%s",
		sol.Status, sol.Objective, sol.Gap, sol.Nodes, sol.Elapsed)
	return sol
}

// emptyModelSolution handles rosters where no section has a feasible period.
// Every request is missed and every section is reported unplaced.
func (s *Solver) emptyModelSolution(f *Formulation, start time.Time) *Solution {
	values := make([]float64, f.numVar)
	for _, mk := range f.missedKeys {
		values[f.missedIdx[mk]] = 1
	}
	return &Solution{
		Status:    StatusOptimal,
		Objective: f.Objective(values),
		Bound:     f.Objective(values),
		Nodes:     0,
		Elapsed:   time.Since(start),
		Schedule:  f.ScheduleFromValues(values),
	}
}
