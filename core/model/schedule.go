package model

import (
	"fmt"
	"sort"
)

// Assignment places one student into one section.
type Assignment struct {
	StudentID string
	SectionID string
}

// MissedRequest is a course request no section could satisfy. Required misses
// carry a higher penalty weight downstream.
type MissedRequest struct {
	StudentID string
	CourseID  string
	Required  bool
}

// Schedule is the output of a constructor or solver pass: the section
// placements, the student assignments, and everything that could not be
// satisfied.
type Schedule struct {
	Placements  map[string]string // section ID -> period ID
	Assignments []Assignment
	Unplaced    []string
	Missed      []MissedRequest

	// Violations records per-section seat overage accepted by the solver.
	// The greedy constructor never overbooks, so it leaves this empty.
	Violations map[string]int
}

// NewSchedule returns an empty schedule.
func NewSchedule() *Schedule {
	return &Schedule{
		Placements: make(map[string]string),
		Violations: make(map[string]int),
	}
}

// Enrollment counts the students assigned to the section.
func (s *Schedule) Enrollment(sectionID string) int {
	n := 0
	for _, a := range s.Assignments {
		if a.SectionID == sectionID {
			n++
		}
	}
	return n
}

// EnrollmentCounts returns the enrollment of every section appearing in the
// assignment list.
func (s *Schedule) EnrollmentCounts() map[string]int {
	counts := make(map[string]int)
	for _, a := range s.Assignments {
		counts[a.SectionID]++
	}
	return counts
}

// Utilization is enrolled divided by capacity; zero for zero-capacity or
// unplaced sections.
func (s *Schedule) Utilization(sec *Section) float64 {
	if sec.Capacity <= 0 {
		return 0
	}
	if _, placed := s.Placements[sec.ID]; !placed {
		return 0
	}
	return float64(s.Enrollment(sec.ID)) / float64(sec.Capacity)
}

// StudentSections returns section IDs per student.
func (s *Schedule) StudentSections() map[string][]string {
	out := make(map[string][]string)
	for _, a := range s.Assignments {
		out[a.StudentID] = append(out[a.StudentID], a.SectionID)
	}
	return out
}

// SatisfiedRequests counts assignments; every assignment satisfies exactly one
// course request.
func (s *Schedule) SatisfiedRequests() int { return len(s.Assignments) }

// CheckInvariants verifies the structural rules against the roster:
// one allowed period per placed section, no teacher or student double-booked,
// and capacity only exceeded through the recorded violation counts. It
// returns every violation found, empty when the schedule is sound.
func (s *Schedule) CheckInvariants(r *Roster, spedCap int) []error {
	var errs []error

	teacherBusy := make(map[[2]string]string) // (teacher, period) -> section
	for secID, periodID := range s.Placements {
		sec, ok := r.Sections[secID]
		if !ok {
			errs = append(errs, fmt.Errorf("placement for unknown section %s", secID))
			continue
		}
		allowed := false
		for _, pid := range r.SectionPeriods[secID] {
			if pid == periodID {
				allowed = true
				break
			}
		}
		if !allowed {
			errs = append(errs, fmt.Errorf("section %s placed in disallowed period %s", secID, periodID))
		}
		if sec.TeacherID != "" {
			key := [2]string{sec.TeacherID, periodID}
			if other, clash := teacherBusy[key]; clash {
				errs = append(errs, fmt.Errorf("teacher %s double-booked in %s (%s, %s)", sec.TeacherID, periodID, other, secID))
			}
			teacherBusy[key] = secID
			if !r.Teachers[sec.TeacherID].Available(periodID) {
				errs = append(errs, fmt.Errorf("teacher %s unavailable in %s but teaches %s", sec.TeacherID, periodID, secID))
			}
		}
	}

	studentBusy := make(map[[2]string]string) // (student, period) -> section
	spedCount := make(map[[2]string]int)      // (course, period) -> SPED enrollment
	for _, a := range s.Assignments {
		periodID, placed := s.Placements[a.SectionID]
		if !placed {
			errs = append(errs, fmt.Errorf("student %s assigned to unplaced section %s", a.StudentID, a.SectionID))
			continue
		}
		key := [2]string{a.StudentID, periodID}
		if other, clash := studentBusy[key]; clash {
			errs = append(errs, fmt.Errorf("student %s double-booked in %s (%s, %s)", a.StudentID, periodID, other, a.SectionID))
		}
		studentBusy[key] = a.SectionID
		if _, sped := r.SPEDStudents[a.StudentID]; sped {
			sec := r.Sections[a.SectionID]
			spedCount[[2]string{sec.CourseID, periodID}]++
		}
	}
	if spedCap > 0 {
		for key, n := range spedCount {
			if n > spedCap {
				errs = append(errs, fmt.Errorf("SPED cap exceeded for course %s period %s: %d > %d", key[0], key[1], n, spedCap))
			}
		}
	}

	for secID, enrolled := range s.EnrollmentCounts() {
		sec, ok := r.Sections[secID]
		if !ok {
			continue
		}
		over := enrolled - sec.Capacity
		if over > s.Violations[secID] {
			errs = append(errs, fmt.Errorf("section %s overbooked by %d beyond recorded violation %d", secID, over, s.Violations[secID]))
		}
	}
	return errs
}

// Clone returns a deep copy. The pipeline hands copies across iteration
// boundaries so no iteration mutates another's result.
func (s *Schedule) Clone() *Schedule {
	cp := &Schedule{
		Placements:  make(map[string]string, len(s.Placements)),
		Assignments: make([]Assignment, len(s.Assignments)),
		Unplaced:    append([]string(nil), s.Unplaced...),
		Missed:      append([]MissedRequest(nil), s.Missed...),
		Violations:  make(map[string]int, len(s.Violations)),
	}
	for k, v := range s.Placements {
		cp.Placements[k] = v
	}
	copy(cp.Assignments, s.Assignments)
	for k, v := range s.Violations {
		cp.Violations[k] = v
	}
	return cp
}

// SortedAssignments returns assignments ordered by student then section, for
// deterministic export.
func (s *Schedule) SortedAssignments() []Assignment {
	out := make([]Assignment, len(s.Assignments))
	copy(out, s.Assignments)
	sort.Slice(out, func(i, j int) bool {
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].SectionID < out[j].SectionID
	})
	return out
}
