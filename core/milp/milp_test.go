package milp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/sectioner/core/greedy"
	"github.com/kilianp07/sectioner/core/model"
)

func testRoster(t *testing.T, students []model.Student, teachers []model.Teacher, periods []model.Period, courses []model.Course, sections []model.Section) *model.Roster {
	t.Helper()
	r, err := model.NewRoster(students, teachers, periods, courses, sections)
	require.NoError(t, err)
	return r
}

func prefs(courses ...string) []model.Preference {
	out := make([]model.Preference, len(courses))
	for i, c := range courses {
		out[i] = model.Preference{CourseID: c, Rank: i + 1}
	}
	return out
}

func solveOpts() Options {
	return Options{TimeLimit: 30 * time.Second, GapTolerance: 0, MaxThreads: 2}
}

func TestSolveAssignsAllWhenSeatsSuffice(t *testing.T) {
	r := testRoster(t,
		[]model.Student{
			{ID: "ST001", Preferences: prefs("MATH")},
			{ID: "ST002", Preferences: prefs("MATH")},
		},
		[]model.Teacher{{ID: "T001", MaxSections: 5}},
		[]model.Period{{ID: "P1", Ordinal: 1}},
		[]model.Course{{ID: "MATH"}},
		[]model.Section{{ID: "S001", CourseID: "MATH", TeacherID: "T001", Capacity: 2}},
	)
	f := NewFormulation(r, DefaultWeights())

	sol, err := NewSolver(solveOpts()).Solve(context.Background(), f, nil)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	require.Len(t, sol.Schedule.Assignments, 2)
	require.Empty(t, sol.Schedule.Missed)
	require.Empty(t, sol.Schedule.Violations)
	require.Equal(t, "P1", sol.Schedule.Placements["S001"])
	require.Empty(t, sol.Schedule.CheckInvariants(r, DefaultWeights().SPEDCap))
}

func TestSolvePrefersOverageToMissedRequest(t *testing.T) {
	r := testRoster(t,
		[]model.Student{
			{ID: "ST001", Preferences: prefs("MATH")},
			{ID: "ST002", Preferences: prefs("MATH")},
			{ID: "ST003", Preferences: prefs("MATH")},
		},
		[]model.Teacher{{ID: "T001", MaxSections: 5}},
		[]model.Period{{ID: "P1", Ordinal: 1}},
		[]model.Course{{ID: "MATH"}},
		[]model.Section{{ID: "S001", CourseID: "MATH", TeacherID: "T001", Capacity: 2}},
	)
	f := NewFormulation(r, DefaultWeights())

	sol, err := NewSolver(solveOpts()).Solve(context.Background(), f, nil)
	require.NoError(t, err)
	require.Len(t, sol.Schedule.Assignments, 3)
	require.Empty(t, sol.Schedule.Missed)
	require.Equal(t, 1, sol.Schedule.Violations["S001"])
	require.InDelta(t, 1.0, sol.Objective, 1e-6)
}

func TestSolveSeparatesTeacherSections(t *testing.T) {
	r := testRoster(t,
		[]model.Student{
			{ID: "ST001", Preferences: prefs("MATH", "SCI")},
		},
		[]model.Teacher{{ID: "T001", MaxSections: 5}},
		[]model.Period{{ID: "P1", Ordinal: 1}, {ID: "P2", Ordinal: 2}},
		[]model.Course{{ID: "MATH"}, {ID: "SCI"}},
		[]model.Section{
			{ID: "S001", CourseID: "MATH", TeacherID: "T001", Capacity: 10},
			{ID: "S002", CourseID: "SCI", TeacherID: "T001", Capacity: 10},
		},
	)
	f := NewFormulation(r, DefaultWeights())

	sol, err := NewSolver(solveOpts()).Solve(context.Background(), f, nil)
	require.NoError(t, err)
	require.NotEqual(t, sol.Schedule.Placements["S001"], sol.Schedule.Placements["S002"])
	require.Len(t, sol.Schedule.Assignments, 2)
	require.Empty(t, sol.Schedule.CheckInvariants(r, DefaultWeights().SPEDCap))
}

func TestUnplaceableSectionIsExcluded(t *testing.T) {
	r := testRoster(t,
		[]model.Student{{ID: "ST001", Preferences: prefs("MATH")}},
		[]model.Teacher{{ID: "T001", MaxSections: 5, Unavailable: map[string]struct{}{"P1": {}}}},
		[]model.Period{{ID: "P1", Ordinal: 1}},
		[]model.Course{{ID: "MATH"}},
		[]model.Section{{ID: "S001", CourseID: "MATH", TeacherID: "T001", Capacity: 10}},
	)
	f := NewFormulation(r, DefaultWeights())
	require.Equal(t, []string{"S001"}, f.Excluded)

	sol, err := NewSolver(solveOpts()).Solve(context.Background(), f, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"S001"}, sol.Schedule.Unplaced)
	require.Empty(t, sol.Schedule.Assignments)
	require.Len(t, sol.Schedule.Missed, 1)
	require.Equal(t, "MATH", sol.Schedule.Missed[0].CourseID)
}

func TestSolveRespectsSPEDCap(t *testing.T) {
	r := testRoster(t,
		[]model.Student{
			{ID: "ST001", SPED: true, Preferences: prefs("MATH")},
			{ID: "ST002", SPED: true, Preferences: prefs("MATH")},
			{ID: "ST003", SPED: true, Preferences: prefs("MATH")},
		},
		[]model.Teacher{{ID: "T001", MaxSections: 5}},
		[]model.Period{{ID: "P1", Ordinal: 1}},
		[]model.Course{{ID: "MATH"}},
		[]model.Section{{ID: "S001", CourseID: "MATH", TeacherID: "T001", Capacity: 10}},
	)
	f := NewFormulation(r, DefaultWeights())

	sol, err := NewSolver(solveOpts()).Solve(context.Background(), f, nil)
	require.NoError(t, err)
	require.Len(t, sol.Schedule.Assignments, 2)
	require.Len(t, sol.Schedule.Missed, 1)
	require.Empty(t, sol.Schedule.CheckInvariants(r, DefaultWeights().SPEDCap))
}

func TestWarmStartNeverWorseThanBaseline(t *testing.T) {
	r := testRoster(t,
		[]model.Student{
			{ID: "ST001", Preferences: prefs("MATH", "SCI")},
			{ID: "ST002", Preferences: prefs("SCI", "MATH")},
		},
		[]model.Teacher{{ID: "T001", MaxSections: 5}, {ID: "T002", MaxSections: 5}},
		[]model.Period{{ID: "P1", Ordinal: 1}, {ID: "P2", Ordinal: 2}},
		[]model.Course{{ID: "MATH"}, {ID: "SCI"}},
		[]model.Section{
			{ID: "S001", CourseID: "MATH", TeacherID: "T001", Capacity: 5},
			{ID: "S002", CourseID: "SCI", TeacherID: "T002", Capacity: 5},
		},
	)
	baseline := greedy.New().Build(r)
	f := NewFormulation(r, DefaultWeights())
	warmVals, ok := f.ValuesFromSchedule(baseline)
	require.True(t, ok)
	baseObj := f.Objective(warmVals)

	sol, err := NewSolver(solveOpts()).Solve(context.Background(), f, baseline)
	require.NoError(t, err)
	require.LessOrEqual(t, sol.Objective, baseObj+1e-9)
	require.Empty(t, sol.Schedule.CheckInvariants(r, DefaultWeights().SPEDCap))
}

func TestHigherMissedWeightNeverSatisfiesFewer(t *testing.T) {
	build := func() *model.Roster {
		return testRoster(t,
			[]model.Student{
				{ID: "ST001", Preferences: prefs("MATH")},
				{ID: "ST002", Preferences: prefs("MATH")},
			},
			[]model.Teacher{{ID: "T001", MaxSections: 5}},
			[]model.Period{{ID: "P1", Ordinal: 1}},
			[]model.Course{{ID: "MATH"}},
			[]model.Section{{ID: "S001", CourseID: "MATH", TeacherID: "T001", Capacity: 1}},
		)
	}

	lowW := Weights{MissedWeight: 1, CapacityWeight: 1000, SPEDCap: 2}
	low, err := NewSolver(solveOpts()).Solve(context.Background(), NewFormulation(build(), lowW), nil)
	require.NoError(t, err)

	high, err := NewSolver(solveOpts()).Solve(context.Background(), NewFormulation(build(), DefaultWeights()), nil)
	require.NoError(t, err)

	require.GreaterOrEqual(t, high.Schedule.SatisfiedRequests(), low.Schedule.SatisfiedRequests())
	require.Len(t, high.Schedule.Assignments, 2)
	require.Len(t, low.Schedule.Assignments, 1)
}

func TestSolveMixedCapacitiesAllAssigned(t *testing.T) {
	// One tight section next to one loose section used to trip the
	// relaxation backend; the model is feasible and every request fits.
	students := []model.Student{
		{ID: "ST001", Preferences: prefs("MATH")},
		{ID: "ST002", Preferences: prefs("MATH")},
		{ID: "ST003", Preferences: prefs("MATH")},
		{ID: "ST004", Preferences: prefs("MATH")},
		{ID: "ST005", Preferences: prefs("SCI")},
		{ID: "ST006", Preferences: prefs("SCI")},
		{ID: "ST007", Preferences: prefs("SCI")},
		{ID: "ST008", Preferences: prefs("SCI")},
		{ID: "ST009", Preferences: prefs("SCI")},
	}
	r := testRoster(t,
		students,
		[]model.Teacher{{ID: "T001", MaxSections: 5}, {ID: "T002", MaxSections: 5}},
		[]model.Period{{ID: "P1", Ordinal: 1}},
		[]model.Course{{ID: "MATH"}, {ID: "SCI"}},
		[]model.Section{
			{ID: "S001", CourseID: "MATH", TeacherID: "T001", Capacity: 4},
			{ID: "S002", CourseID: "SCI", TeacherID: "T002", Capacity: 10},
		},
	)
	f := NewFormulation(r, DefaultWeights())

	sol, err := NewSolver(solveOpts()).Solve(context.Background(), f, nil)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	require.Len(t, sol.Schedule.Assignments, 9)
	require.Empty(t, sol.Schedule.Missed)
	require.Empty(t, sol.Schedule.Violations)
	require.Empty(t, sol.Schedule.CheckInvariants(r, DefaultWeights().SPEDCap))
}

func TestSolveReportsInfeasibleRoot(t *testing.T) {
	// Two sections of one teacher forced into a single period cannot satisfy
	// the placement equalities.
	r := testRoster(t,
		[]model.Student{{ID: "ST001", Preferences: prefs("MATH")}},
		[]model.Teacher{{ID: "T001", MaxSections: 5}},
		[]model.Period{{ID: "P1", Ordinal: 1}},
		[]model.Course{{ID: "MATH"}, {ID: "SCI"}},
		[]model.Section{
			{ID: "S001", CourseID: "MATH", TeacherID: "T001", Capacity: 10},
			{ID: "S002", CourseID: "SCI", TeacherID: "T001", Capacity: 10},
		},
	)
	f := NewFormulation(r, DefaultWeights())

	_, err := NewSolver(solveOpts()).Solve(context.Background(), f, nil)
	require.ErrorIs(t, err, ErrInfeasible)
}

func TestSolvePropagatesNumericFailure(t *testing.T) {
	orig := lpSolve
	lpSolve = func(*Formulation, map[int]int8) (float64, []float64, error) {
		return 0, nil, errors.New("singular basis")
	}
	defer func() { lpSolve = orig }()

	r := testRoster(t,
		[]model.Student{{ID: "ST001", Preferences: prefs("MATH")}},
		[]model.Teacher{{ID: "T001", MaxSections: 5}},
		[]model.Period{{ID: "P1", Ordinal: 1}},
		[]model.Course{{ID: "MATH"}},
		[]model.Section{{ID: "S001", CourseID: "MATH", TeacherID: "T001", Capacity: 10}},
	)
	f := NewFormulation(r, DefaultWeights())

	_, err := NewSolver(solveOpts()).Solve(context.Background(), f, nil)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInfeasible)
}

func TestValuesFromScheduleRoundTrip(t *testing.T) {
	r := testRoster(t,
		[]model.Student{
			{ID: "ST001", Preferences: prefs("MATH")},
			{ID: "ST002", Preferences: prefs("MATH")},
		},
		[]model.Teacher{{ID: "T001", MaxSections: 5}},
		[]model.Period{{ID: "P1", Ordinal: 1}},
		[]model.Course{{ID: "MATH"}},
		[]model.Section{{ID: "S001", CourseID: "MATH", TeacherID: "T001", Capacity: 2}},
	)
	baseline := greedy.New().Build(r)
	f := NewFormulation(r, DefaultWeights())

	values, ok := f.ValuesFromSchedule(baseline)
	require.True(t, ok)
	round := f.ScheduleFromValues(values)
	require.Equal(t, baseline.Placements, round.Placements)
	require.ElementsMatch(t, baseline.Assignments, round.Assignments)
}

func TestNodeStoreSpillRoundTrip(t *testing.T) {
	store := newNodeStore(t.TempDir(), 0.85)
	store.usedPct = func() (float64, error) { return 99, nil }

	for i := 0; i < 300; i++ {
		require.NoError(t, store.push(node{Bound: float64(300 - i), Fixings: map[int]int8{i: 1}}))
	}
	require.NotEmpty(t, store.spills)

	seen := 0
	for {
		_, ok, err := store.pop()
		require.NoError(t, err)
		if !ok {
			break
		}
		seen++
	}
	require.Equal(t, 300, seen)
	store.close()
}
