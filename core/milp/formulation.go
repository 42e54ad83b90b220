// Package milp refines a baseline schedule by solving a weighted-penalty
// integer program: binary assignment and placement variables, an
// AND-linearization coupling them, and soft capacity/satisfaction terms in
// the objective. The search is a branch and bound over the simplex
// relaxation, warm-started from the greedy baseline.
package milp

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/sectioner/core/model"
)

var (
	// ErrInfeasible reports that no assignment satisfies the hard rows.
	ErrInfeasible = errors.New("milp: model infeasible")
	// ErrNoIncumbent reports that the budget expired before any feasible
	// point was found.
	ErrNoIncumbent = errors.New("milp: no incumbent within budget")
)

// Weights are the penalty coefficients of the objective. MissedWeight must
// dwarf CapacityWeight so preference satisfaction wins over strict seat
// limits.
type Weights struct {
	MissedWeight   float64
	CapacityWeight float64
	SPEDCap        int
}

// DefaultWeights mirrors the observed production configuration.
func DefaultWeights() Weights {
	return Weights{MissedWeight: 1000, CapacityWeight: 1, SPEDCap: 2}
}

type xKey struct{ student, section string }
type zKey struct{ section, period string }
type yKey struct{ student, section, period string }
type mKey struct{ student, course string }

// Formulation is the assembled integer program for one roster. Variables are
// laid out as one flat vector: z, x, y, missed, violation.
type Formulation struct {
	roster  *model.Roster
	weights Weights

	zIdx      map[zKey]int
	xIdx      map[xKey]int
	yIdx      map[yKey]int
	missedIdx map[mKey]int
	violIdx   map[string]int

	zKeys      []zKey
	xKeys      []xKey
	yKeys      []yKey
	missedKeys []mKey
	violKeys   []string

	numVar   int
	branchHi int // variables [0, branchHi) are the binary z/x branched on

	c []float64
	g *mat.Dense
	h []float64
	a *mat.Dense
	b []float64

	// Excluded sections have no period that is both course-allowed and
	// teacher-available; they are reported unplaced instead of making the
	// placement equality row unsatisfiable.
	Excluded []string

	modeled map[string]bool // section ID -> participates in the model
}

// NewFormulation indexes the variables and materializes every row of the
// program.
func NewFormulation(roster *model.Roster, w Weights) *Formulation {
	f := &Formulation{
		roster:    roster,
		weights:   w,
		zIdx:      make(map[zKey]int),
		xIdx:      make(map[xKey]int),
		yIdx:      make(map[yKey]int),
		missedIdx: make(map[mKey]int),
		violIdx:   make(map[string]int),
		modeled:   make(map[string]bool),
	}
	f.indexVariables()
	f.buildRows()
	return f
}

func (f *Formulation) indexVariables() {
	r := f.roster

	for _, secID := range r.SectionOrder() {
		feasible := r.FeasiblePeriods(secID)
		if len(feasible) == 0 {
			f.Excluded = append(f.Excluded, secID)
			continue
		}
		f.modeled[secID] = true
		for _, pid := range feasible {
			k := zKey{secID, pid}
			f.zIdx[k] = f.numVar
			f.zKeys = append(f.zKeys, k)
			f.numVar++
		}
	}

	for _, stID := range r.StudentOrder() {
		st := r.Students[stID]
		seen := make(map[string]bool, len(st.Preferences))
		for _, pref := range sortedPrefs(st.Preferences) {
			if seen[pref.CourseID] {
				continue
			}
			seen[pref.CourseID] = true
			for _, secID := range r.CourseSections[pref.CourseID] {
				if !f.modeled[secID] {
					continue
				}
				k := xKey{stID, secID}
				f.xIdx[k] = f.numVar
				f.xKeys = append(f.xKeys, k)
				f.numVar++
			}
		}
	}

	for _, xk := range f.xKeys {
		for _, pid := range r.FeasiblePeriods(xk.section) {
			k := yKey{xk.student, xk.section, pid}
			f.yIdx[k] = f.numVar
			f.yKeys = append(f.yKeys, k)
			f.numVar++
		}
	}
	f.branchHi = f.numVar - len(f.yKeys) // branch on z and x only

	for _, stID := range r.StudentOrder() {
		st := r.Students[stID]
		seen := make(map[string]bool, len(st.Preferences))
		for _, pref := range sortedPrefs(st.Preferences) {
			if seen[pref.CourseID] {
				continue
			}
			seen[pref.CourseID] = true
			k := mKey{stID, pref.CourseID}
			f.missedIdx[k] = f.numVar
			f.missedKeys = append(f.missedKeys, k)
			f.numVar++
		}
	}

	for _, secID := range r.SectionOrder() {
		if !f.modeled[secID] {
			continue
		}
		f.violIdx[secID] = f.numVar
		f.violKeys = append(f.violKeys, secID)
		f.numVar++
	}

	f.c = make([]float64, f.numVar)
	for _, k := range f.missedKeys {
		f.c[f.missedIdx[k]] = f.weights.MissedWeight
	}
	for _, secID := range f.violKeys {
		f.c[f.violIdx[secID]] = f.weights.CapacityWeight
	}
}

type row struct {
	coefs map[int]float64
	rhs   float64
}

func (f *Formulation) buildRows() {
	r := f.roster
	var ineq, eq []row

	addIneq := func(coefs map[int]float64, rhs float64) {
		ineq = append(ineq, row{coefs, rhs})
	}

	// One period per modeled section.
	for _, secID := range r.SectionOrder() {
		if !f.modeled[secID] {
			continue
		}
		coefs := make(map[int]float64)
		for _, pid := range r.FeasiblePeriods(secID) {
			coefs[f.zIdx[zKey{secID, pid}]] = 1
		}
		eq = append(eq, row{coefs, 1})
	}

	// Teachers teach at most one section per period.
	for _, teacherID := range sortedKeys(r.TeacherSections) {
		for _, pid := range r.PeriodOrder() {
			coefs := make(map[int]float64)
			for _, secID := range r.TeacherSections[teacherID] {
				if idx, ok := f.zIdx[zKey{secID, pid}]; ok {
					coefs[idx] = 1
				}
			}
			if len(coefs) > 1 {
				addIneq(coefs, 1)
			}
		}
	}

	// Students sit in at most one section per period.
	for _, stID := range r.StudentOrder() {
		for _, pid := range r.PeriodOrder() {
			coefs := make(map[int]float64)
			for _, yk := range f.yKeys {
				if yk.student == stID && yk.period == pid {
					coefs[f.yIdx[yk]] = 1
				}
			}
			if len(coefs) > 1 {
				addIneq(coefs, 1)
			}
		}
	}

	// SPED cap per course/period.
	if f.weights.SPEDCap > 0 {
		type cp struct{ course, period string }
		groups := make(map[cp][]int)
		for _, yk := range f.yKeys {
			if _, sped := r.SPEDStudents[yk.student]; !sped {
				continue
			}
			key := cp{r.Sections[yk.section].CourseID, yk.period}
			groups[key] = append(groups[key], f.yIdx[yk])
		}
		keys := make([]cp, 0, len(groups))
		for k := range groups {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].course != keys[j].course {
				return keys[i].course < keys[j].course
			}
			return keys[i].period < keys[j].period
		})
		for _, k := range keys {
			idxs := groups[k]
			if len(idxs) <= f.weights.SPEDCap {
				continue
			}
			coefs := make(map[int]float64, len(idxs))
			for _, idx := range idxs {
				coefs[idx] = 1
			}
			addIneq(coefs, float64(f.weights.SPEDCap))
		}
	}

	// AND-linearization: y <= x, y <= z, y >= x + z - 1.
	for _, yk := range f.yKeys {
		yi := f.yIdx[yk]
		xi := f.xIdx[xKey{yk.student, yk.section}]
		zi := f.zIdx[zKey{yk.section, yk.period}]
		addIneq(map[int]float64{yi: 1, xi: -1}, 0)
		addIneq(map[int]float64{yi: 1, zi: -1}, 0)
		addIneq(map[int]float64{xi: 1, zi: 1, yi: -1}, 1)
	}

	// Soft capacity: enrollment may exceed seats only through the violation
	// count.
	for _, secID := range f.violKeys {
		coefs := map[int]float64{f.violIdx[secID]: -1}
		for _, xk := range f.xKeys {
			if xk.section == secID {
				coefs[f.xIdx[xk]] = 1
			}
		}
		if len(coefs) > 1 {
			addIneq(coefs, float64(r.Sections[secID].Capacity))
		}
	}

	// Soft satisfaction: every request is served or its missed indicator
	// pays the penalty.
	for _, mk := range f.missedKeys {
		coefs := map[int]float64{f.missedIdx[mk]: -1}
		for _, secID := range r.CourseSections[mk.course] {
			if idx, ok := f.xIdx[xKey{mk.student, secID}]; ok {
				coefs[idx] = -1
			}
		}
		addIneq(coefs, -1)
	}

	// Upper bounds: binaries and missed are capped at one. The violation
	// counts at the tail have no upper bound, and nonnegativity is structural
	// in the standard-form relaxation.
	violLo := f.numVar - len(f.violKeys)
	for i := 0; i < violLo; i++ {
		addIneq(map[int]float64{i: 1}, 1)
	}

	f.g = denseFromRows(ineq, f.numVar)
	f.h = rhsFromRows(ineq)
	f.a = denseFromRows(eq, f.numVar)
	f.b = rhsFromRows(eq)
}

func denseFromRows(rows []row, n int) *mat.Dense {
	if len(rows) == 0 {
		return nil
	}
	d := mat.NewDense(len(rows), n, nil)
	for i, r := range rows {
		for j, v := range r.coefs {
			d.Set(i, j, v)
		}
	}
	return d
}

func rhsFromRows(rows []row) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.rhs
	}
	return out
}

// NumVars is the width of the variable vector.
func (f *Formulation) NumVars() int { return f.numVar }

// Objective evaluates the penalty objective at the given point.
func (f *Formulation) Objective(values []float64) float64 {
	obj := 0.0
	for i, v := range values {
		obj += f.c[i] * v
	}
	return obj
}

// ValuesFromSchedule converts a baseline schedule into a complete variable
// vector usable as the initial incumbent. ok is false when the baseline does
// not place every modeled section, in which case no warm incumbent is
// installed and the search starts cold.
func (f *Formulation) ValuesFromSchedule(s *model.Schedule) (values []float64, ok bool) {
	values = make([]float64, f.numVar)
	for secID := range f.modeled {
		pid, placed := s.Placements[secID]
		if !placed {
			return nil, false
		}
		idx, defined := f.zIdx[zKey{secID, pid}]
		if !defined {
			return nil, false
		}
		values[idx] = 1
	}
	assigned := make(map[mKey]bool)
	enrolled := make(map[string]int)
	for _, a := range s.Assignments {
		xi, defined := f.xIdx[xKey{a.StudentID, a.SectionID}]
		if !defined {
			continue
		}
		values[xi] = 1
		enrolled[a.SectionID]++
		assigned[mKey{a.StudentID, f.roster.Sections[a.SectionID].CourseID}] = true
	}
	for _, yk := range f.yKeys {
		xi := f.xIdx[xKey{yk.student, yk.section}]
		zi := f.zIdx[zKey{yk.section, yk.period}]
		if values[xi] > 0.5 && values[zi] > 0.5 {
			values[f.yIdx[yk]] = 1
		}
	}
	for _, mk := range f.missedKeys {
		if !assigned[mk] {
			values[f.missedIdx[mk]] = 1
		}
	}
	for _, secID := range f.violKeys {
		if over := enrolled[secID] - f.roster.Sections[secID].Capacity; over > 0 {
			values[f.violIdx[secID]] = float64(over)
		}
	}
	return values, true
}

// ScheduleFromValues extracts the concrete schedule encoded by an integral
// variable vector.
func (f *Formulation) ScheduleFromValues(values []float64) *model.Schedule {
	s := model.NewSchedule()
	s.Unplaced = append(s.Unplaced, f.Excluded...)
	for _, zk := range f.zKeys {
		if values[f.zIdx[zk]] > 0.5 {
			s.Placements[zk.section] = zk.period
		}
	}
	for _, xk := range f.xKeys {
		if values[f.xIdx[xk]] > 0.5 {
			s.Assignments = append(s.Assignments, model.Assignment{StudentID: xk.student, SectionID: xk.section})
		}
	}
	for _, mk := range f.missedKeys {
		if values[f.missedIdx[mk]] > 0.5 {
			s.Missed = append(s.Missed, model.MissedRequest{
				StudentID: mk.student,
				CourseID:  mk.course,
				Required:  f.requestRequired(mk),
			})
		}
	}
	for _, secID := range f.violKeys {
		if v := int(math.Round(values[f.violIdx[secID]])); v > 0 {
			s.Violations[secID] = v
		}
	}
	return s
}

func (f *Formulation) requestRequired(k mKey) bool {
	st, ok := f.roster.Students[k.student]
	if !ok {
		return false
	}
	for _, pref := range st.Preferences {
		if pref.CourseID == k.course {
			return pref.Required
		}
	}
	return false
}

// integral reports whether every branched binary sits on 0 or 1, and the most
// fractional index otherwise.
func (f *Formulation) integral(values []float64) (int, bool) {
	best, bestDist := -1, 0.0
	for i := 0; i < f.branchHi; i++ {
		frac := math.Abs(values[i] - math.Round(values[i]))
		if frac > 1e-6 && frac > bestDist {
			best, bestDist = i, frac
		}
	}
	return best, best == -1
}

func sortedPrefs(prefs []model.Preference) []model.Preference {
	out := make([]model.Preference, len(prefs))
	copy(out, prefs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
