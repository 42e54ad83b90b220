package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func invariantFixture(t *testing.T) *Roster {
	t.Helper()
	r, err := NewRoster(
		[]Student{
			{ID: "ST001", SPED: true, Preferences: []Preference{{CourseID: "MATH", Rank: 1}}},
			{ID: "ST002", Preferences: []Preference{{CourseID: "MATH", Rank: 1}}},
		},
		[]Teacher{{ID: "T001", MaxSections: 5, Unavailable: map[string]struct{}{"P3": {}}}},
		[]Period{{ID: "P1", Ordinal: 1}, {ID: "P2", Ordinal: 2}, {ID: "P3", Ordinal: 3}},
		[]Course{{ID: "MATH"}, {ID: "SCI"}},
		[]Section{
			{ID: "S001", CourseID: "MATH", TeacherID: "T001", Capacity: 2},
			{ID: "S002", CourseID: "SCI", TeacherID: "T001", Capacity: 2},
		},
	)
	require.NoError(t, err)
	return r
}

func TestCheckInvariantsAcceptsSoundSchedule(t *testing.T) {
	r := invariantFixture(t)
	s := NewSchedule()
	s.Placements["S001"] = "P1"
	s.Placements["S002"] = "P2"
	s.Assignments = []Assignment{
		{StudentID: "ST001", SectionID: "S001"},
		{StudentID: "ST002", SectionID: "S001"},
	}
	require.Empty(t, s.CheckInvariants(r, 2))
}

func TestCheckInvariantsFlagsTeacherDoubleBooking(t *testing.T) {
	r := invariantFixture(t)
	s := NewSchedule()
	s.Placements["S001"] = "P1"
	s.Placements["S002"] = "P1"
	errs := s.CheckInvariants(r, 2)
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Error(), "double-booked")
}

func TestCheckInvariantsFlagsUnavailablePeriod(t *testing.T) {
	r := invariantFixture(t)
	s := NewSchedule()
	s.Placements["S001"] = "P3"
	errs := s.CheckInvariants(r, 2)
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Error(), "unavailable")
}

func TestCheckInvariantsFlagsStudentClash(t *testing.T) {
	r := invariantFixture(t)
	s := NewSchedule()
	s.Placements["S001"] = "P1"
	s.Placements["S002"] = "P1"
	s.Assignments = []Assignment{
		{StudentID: "ST002", SectionID: "S001"},
		{StudentID: "ST002", SectionID: "S002"},
	}
	errs := s.CheckInvariants(r, 2)
	found := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "student ST002 double-booked") {
			found = true
		}
	}
	require.True(t, found)
}

func TestCheckInvariantsFlagsUnrecordedOverbooking(t *testing.T) {
	r := invariantFixture(t)
	s := NewSchedule()
	s.Placements["S001"] = "P1"
	s.Assignments = []Assignment{
		{StudentID: "ST001", SectionID: "S001"},
		{StudentID: "ST002", SectionID: "S001"},
	}
	// Capacity 2 with 2 students is fine; shrink capacity to force overage.
	r.Sections["S001"].Capacity = 1
	errs := s.CheckInvariants(r, 2)
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Error(), "overbooked")

	s.Violations["S001"] = 1
	require.Empty(t, s.CheckInvariants(r, 2))
}

func TestUtilization(t *testing.T) {
	r := invariantFixture(t)
	s := NewSchedule()
	s.Placements["S001"] = "P1"
	s.Assignments = []Assignment{{StudentID: "ST001", SectionID: "S001"}}

	require.InDelta(t, 0.5, s.Utilization(r.Sections["S001"]), 1e-9)
	// S002 is unplaced, so its seats count for nothing.
	require.Zero(t, s.Utilization(r.Sections["S002"]))
}

func TestCloneIsIndependent(t *testing.T) {
	s := NewSchedule()
	s.Placements["S001"] = "P1"
	s.Assignments = []Assignment{{StudentID: "ST001", SectionID: "S001"}}
	s.Violations["S001"] = 1

	cp := s.Clone()
	cp.Placements["S001"] = "P2"
	cp.Assignments[0].StudentID = "ST999"
	cp.Violations["S001"] = 7

	require.Equal(t, "P1", s.Placements["S001"])
	require.Equal(t, "ST001", s.Assignments[0].StudentID)
	require.Equal(t, 1, s.Violations["S001"])
}

func TestSortedAssignments(t *testing.T) {
	s := NewSchedule()
	s.Assignments = []Assignment{
		{StudentID: "ST002", SectionID: "S001"},
		{StudentID: "ST001", SectionID: "S002"},
		{StudentID: "ST001", SectionID: "S001"},
	}
	sorted := s.SortedAssignments()
	require.Equal(t, []Assignment{
		{StudentID: "ST001", SectionID: "S001"},
		{StudentID: "ST001", SectionID: "S002"},
		{StudentID: "ST002", SectionID: "S001"},
	}, sorted)
}
