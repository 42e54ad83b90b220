package milp

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// lpSolve is the relaxation hook. Tests override it to inject solver
// failures.
var lpSolve = solveRelaxation

// solveRelaxation solves the LP relaxation of f with the given 0/1 fixings
// imposed as extra rows, and returns the optimum and the point in the
// original variable space.
//
// The standard form is assembled directly: every variable is nonnegative by
// construction, so each inequality row only needs a slack column. Routing the
// program through lp.Convert instead would sign-split the variables into free
// pairs and leave the converted system degenerate.
func solveRelaxation(f *Formulation, fixings map[int]int8) (float64, []float64, error) {
	ineqRows := 0
	if f.g != nil {
		ineqRows, _ = f.g.Dims()
	}
	eqRows := 0
	if f.a != nil {
		eqRows, _ = f.a.Dims()
	}
	m := ineqRows + len(fixings)
	rows := m + eqRows
	cols := f.numVar + m

	aStd := mat.NewDense(rows, cols, nil)
	bStd := make([]float64, rows)
	if f.g != nil {
		aStd.Slice(0, ineqRows, 0, f.numVar).(*mat.Dense).Copy(f.g)
		copy(bStd, f.h)
	}
	r := ineqRows
	for _, idx := range sortedFixings(fixings) {
		if fixings[idx] == 0 {
			aStd.Set(r, idx, 1) // v <= 0
		} else {
			aStd.Set(r, idx, -1) // -v <= -1
			bStd[r] = -1
		}
		r++
	}
	for i := 0; i < m; i++ {
		aStd.Set(i, f.numVar+i, 1)
	}
	if f.a != nil {
		aStd.Slice(m, rows, 0, f.numVar).(*mat.Dense).Copy(f.a)
		copy(bStd[m:], f.b)
	}

	cStd := make([]float64, cols)
	copy(cStd, f.c)

	_, sol, err := lp.Simplex(cStd, aStd, bStd, 1e-7, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("relaxation: %w", err)
	}

	values := make([]float64, f.numVar)
	for i := range values {
		v := sol[i]
		switch {
		case v < 0 && v > -1e-9:
			v = 0
		case v > 1 && v-1 < 1e-9:
			v = 1
		}
		values[i] = v
	}
	return f.Objective(values), values, nil
}

// relaxationInfeasible reports whether the error proves the relaxation has no
// feasible point, as opposed to a numeric failure.
func relaxationInfeasible(err error) bool {
	return errors.Is(err, lp.ErrInfeasible)
}

func sortedFixings(fixings map[int]int8) []int {
	out := make([]int, 0, len(fixings))
	for idx := range fixings {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}
