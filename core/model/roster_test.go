package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRosterValidatesReferences(t *testing.T) {
	periods := []Period{{ID: "P1", Ordinal: 1}}

	_, err := NewRoster(nil, nil, periods, nil, []Section{{ID: "S001", CourseID: "MATH", TeacherID: "T404"}})
	require.ErrorIs(t, err, ErrUnknownTeacher)

	_, err = NewRoster(
		[]Student{{ID: "ST001", Preferences: []Preference{{CourseID: "NOPE", Rank: 1}}}},
		[]Teacher{{ID: "T001"}}, periods, nil,
		[]Section{{ID: "S001", CourseID: "MATH", TeacherID: "T001"}},
	)
	require.ErrorIs(t, err, ErrUnknownCourse)

	_, err = NewRoster(nil, []Teacher{{ID: "T001", Unavailable: map[string]struct{}{"P9": {}}}}, periods, nil,
		[]Section{{ID: "S001", CourseID: "MATH", TeacherID: "T001"}})
	require.ErrorIs(t, err, ErrUnknownPeriod)

	_, err = NewRoster(nil, nil, periods, nil, nil)
	require.ErrorIs(t, err, ErrNoSections)
}

func TestFeasiblePeriodsIntersectsAvailability(t *testing.T) {
	r, err := NewRoster(
		nil,
		[]Teacher{{ID: "T001", Unavailable: map[string]struct{}{"P1": {}}}},
		[]Period{{ID: "P1", Ordinal: 1}, {ID: "P2", Ordinal: 2}, {ID: "P3", Ordinal: 3}},
		[]Course{{ID: "MATH", AllowedPeriods: []string{"P1", "P2"}}},
		[]Section{{ID: "S001", CourseID: "MATH", TeacherID: "T001"}},
	)
	require.NoError(t, err)
	require.Equal(t, []string{"P2"}, r.FeasiblePeriods("S001"))
}

func TestPeriodOrderFollowsOrdinals(t *testing.T) {
	r, err := NewRoster(
		nil,
		[]Teacher{{ID: "T001"}},
		[]Period{{ID: "P3", Ordinal: 3}, {ID: "P1", Ordinal: 1}, {ID: "P2", Ordinal: 2}},
		nil,
		[]Section{{ID: "S001", CourseID: "MATH", TeacherID: "T001"}},
	)
	require.NoError(t, err)
	require.Equal(t, []string{"P1", "P2", "P3"}, r.PeriodOrder())
}

func TestRequestCount(t *testing.T) {
	r, err := NewRoster(
		[]Student{
			{ID: "ST001", Preferences: []Preference{{CourseID: "MATH", Rank: 1}, {CourseID: "SCI", Rank: 2}}},
			{ID: "ST002", Preferences: []Preference{{CourseID: "MATH", Rank: 1}}},
		},
		[]Teacher{{ID: "T001"}},
		[]Period{{ID: "P1", Ordinal: 1}},
		[]Course{{ID: "SCI"}},
		[]Section{{ID: "S001", CourseID: "MATH", TeacherID: "T001"}},
	)
	require.NoError(t, err)
	require.Equal(t, 3, r.RequestCount())
}
