package model

import (
	"fmt"
	"sort"
)

// Referential integrity failures reject the run before any optimization
// starts.
var (
	ErrUnknownTeacher = fmt.Errorf("model: section references unknown teacher")
	ErrUnknownCourse  = fmt.Errorf("model: preference references unknown course")
	ErrUnknownPeriod  = fmt.Errorf("model: unknown period reference")
	ErrNoSections     = fmt.Errorf("model: roster has no sections")
)

// Roster is the read-only input of one optimization run: the entities plus
// the derived indices both algorithms consume. Build it with NewRoster and
// discard it when the run's results are serialized.
type Roster struct {
	Students map[string]*Student
	Teachers map[string]*Teacher
	Periods  map[string]*Period
	Courses  map[string]*Course
	Sections map[string]*Section

	// Derived indices.
	CourseSections  map[string][]string // course ID -> section IDs
	TeacherSections map[string][]string // teacher ID -> section IDs
	SectionPeriods  map[string][]string // section ID -> allowed period IDs
	SPEDStudents    map[string]struct{}

	periodOrder []string // period IDs by ordinal
}

// NewRoster wires the derived indices and validates every cross reference.
// A dangling reference returns a wrapped sentinel error and no roster.
func NewRoster(students []Student, teachers []Teacher, periods []Period, courses []Course, sections []Section) (*Roster, error) {
	r := &Roster{
		Students:        make(map[string]*Student, len(students)),
		Teachers:        make(map[string]*Teacher, len(teachers)),
		Periods:         make(map[string]*Period, len(periods)),
		Courses:         make(map[string]*Course, len(courses)),
		Sections:        make(map[string]*Section, len(sections)),
		CourseSections:  make(map[string][]string),
		TeacherSections: make(map[string][]string),
		SectionPeriods:  make(map[string][]string, len(sections)),
		SPEDStudents:    make(map[string]struct{}),
	}
	if len(sections) == 0 {
		return nil, ErrNoSections
	}

	for i := range periods {
		p := periods[i]
		r.Periods[p.ID] = &p
	}
	r.periodOrder = make([]string, 0, len(r.Periods))
	for id := range r.Periods {
		r.periodOrder = append(r.periodOrder, id)
	}
	sort.Slice(r.periodOrder, func(i, j int) bool {
		a, b := r.Periods[r.periodOrder[i]], r.Periods[r.periodOrder[j]]
		if a.Ordinal != b.Ordinal {
			return a.Ordinal < b.Ordinal
		}
		return a.ID < b.ID
	})

	for i := range teachers {
		t := teachers[i]
		for pid := range t.Unavailable {
			if _, ok := r.Periods[pid]; !ok {
				return nil, fmt.Errorf("%w: teacher %s unavailable in %q", ErrUnknownPeriod, t.ID, pid)
			}
		}
		r.Teachers[t.ID] = &t
	}

	for i := range courses {
		c := courses[i]
		for _, pid := range c.AllowedPeriods {
			if _, ok := r.Periods[pid]; !ok {
				return nil, fmt.Errorf("%w: course %s allows %q", ErrUnknownPeriod, c.ID, pid)
			}
		}
		r.Courses[c.ID] = &c
	}

	for i := range sections {
		s := sections[i]
		if s.TeacherID != "" {
			if _, ok := r.Teachers[s.TeacherID]; !ok {
				return nil, fmt.Errorf("%w: section %s -> %q", ErrUnknownTeacher, s.ID, s.TeacherID)
			}
			r.TeacherSections[s.TeacherID] = append(r.TeacherSections[s.TeacherID], s.ID)
		}
		// Courses appearing only through sections get the default (all
		// periods allowed).
		if _, ok := r.Courses[s.CourseID]; !ok {
			r.Courses[s.CourseID] = &Course{ID: s.CourseID}
		}
		r.Sections[s.ID] = &s
		r.CourseSections[s.CourseID] = append(r.CourseSections[s.CourseID], s.ID)
	}

	for i := range students {
		st := students[i]
		for _, pref := range st.Preferences {
			if _, ok := r.Courses[pref.CourseID]; !ok {
				return nil, fmt.Errorf("%w: student %s requests %q", ErrUnknownCourse, st.ID, pref.CourseID)
			}
		}
		r.Students[st.ID] = &st
		if st.SPED {
			r.SPEDStudents[st.ID] = struct{}{}
		}
	}

	for id, sec := range r.Sections {
		r.SectionPeriods[id] = r.allowedPeriods(sec)
	}
	for _, ids := range r.CourseSections {
		sort.Strings(ids)
	}
	for _, ids := range r.TeacherSections {
		sort.Strings(ids)
	}
	return r, nil
}

// allowedPeriods resolves a section's allowed-period set: the course
// restriction when present, every period otherwise. Order follows the period
// ordinals so iteration is deterministic.
func (r *Roster) allowedPeriods(sec *Section) []string {
	course := r.Courses[sec.CourseID]
	if len(course.AllowedPeriods) == 0 {
		out := make([]string, len(r.periodOrder))
		copy(out, r.periodOrder)
		return out
	}
	allowed := make(map[string]struct{}, len(course.AllowedPeriods))
	for _, pid := range course.AllowedPeriods {
		allowed[pid] = struct{}{}
	}
	out := make([]string, 0, len(allowed))
	for _, pid := range r.periodOrder {
		if _, ok := allowed[pid]; ok {
			out = append(out, pid)
		}
	}
	return out
}

// FeasiblePeriods returns the allowed periods in which the section's teacher
// (if any) is available. An empty result marks the section unplaceable.
func (r *Roster) FeasiblePeriods(sectionID string) []string {
	sec := r.Sections[sectionID]
	allowed := r.SectionPeriods[sectionID]
	if sec.TeacherID == "" {
		return allowed
	}
	teacher := r.Teachers[sec.TeacherID]
	out := make([]string, 0, len(allowed))
	for _, pid := range allowed {
		if teacher.Available(pid) {
			out = append(out, pid)
		}
	}
	return out
}

// PeriodOrder returns the period IDs sorted by ordinal.
func (r *Roster) PeriodOrder() []string {
	out := make([]string, len(r.periodOrder))
	copy(out, r.periodOrder)
	return out
}

// StudentOrder returns the student IDs in a stable order.
func (r *Roster) StudentOrder() []string {
	out := make([]string, 0, len(r.Students))
	for id := range r.Students {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SectionOrder returns the section IDs in a stable order.
func (r *Roster) SectionOrder() []string {
	out := make([]string, 0, len(r.Sections))
	for id := range r.Sections {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RequestCount is the total number of course requests across all students.
func (r *Roster) RequestCount() int {
	n := 0
	for _, st := range r.Students {
		n += len(st.Preferences)
	}
	return n
}
