package model

// Preference is a single course request of a student. Rank is the position in
// the student's request list, low rank meaning higher priority. Required
// requests form the higher-weight penalty class when they cannot be met.
type Preference struct {
	CourseID string
	Rank     int
	Required bool
}

// Student is a roster entry. Entities are built once per run and never mutated
// by the algorithms.
type Student struct {
	ID          string
	GradeLevel  int
	SPED        bool
	Preferences []Preference
}

// Teacher holds the load limit and the periods the teacher cannot teach in.
type Teacher struct {
	ID          string
	MaxSections int
	Unavailable map[string]struct{}
}

// Available reports whether the teacher can teach in the given period.
func (t Teacher) Available(periodID string) bool {
	_, blocked := t.Unavailable[periodID]
	return !blocked
}

// Period is a time slot. Ordinal is used for tie-breaks and reporting only;
// periods are otherwise unordered.
type Period struct {
	ID      string
	Ordinal int
}

// Course groups sections. AllowedPeriods restricts where its sections may be
// placed; empty means every period is allowed.
type Course struct {
	ID             string
	AllowedPeriods []string
}

// Section is one offering of a course with a fixed seat count. TeacherID may
// be empty when no teacher is pre-assigned.
type Section struct {
	ID        string
	CourseID  string
	TeacherID string
	Capacity  int
}
