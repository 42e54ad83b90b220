// Package csvio reads the registrar's CSV tables and assembles the roster
// consumed by the scheduling pipeline.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kilianp07/sectioner/core/model"
	"github.com/kilianp07/sectioner/infra/logger"
)

// Input file names as exported by the SIS.
const (
	StudentFile        = "Student_Info.csv"
	TeacherFile        = "Teacher_Info.csv"
	SectionFile        = "Sections_Information.csv"
	PeriodFile         = "Period.csv"
	PreferenceFile     = "Student_Preference_Info.csv"
	UnavailabilityFile = "Teacher_unavailability.csv"
)

// Defaults applied when a cell is blank.
const (
	DefaultCapacity    = 30
	DefaultMaxSections = 5
)

// ErrMissingColumn reports a header without a required column.
var ErrMissingColumn = errors.New("csvio: missing column")

// Loader reads one input directory.
type Loader struct {
	dir          string
	restrictions map[string][]string
	log          logger.Logger
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, log: logger.New("csvio")}
}

// Restrict limits the named courses to the given periods. Courses absent
// from the map keep the full period range.
func (l *Loader) Restrict(courses map[string][]string) {
	l.restrictions = courses
}

// Load reads every table and returns the validated roster. The
// unavailability table is optional; every other table must exist.
func (l *Loader) Load() (*model.Roster, error) {
	students, err := l.loadStudents()
	if err != nil {
		return nil, err
	}
	teachers, err := l.loadTeachers()
	if err != nil {
		return nil, err
	}
	periods, err := l.loadPeriods()
	if err != nil {
		return nil, err
	}
	sections, err := l.loadSections()
	if err != nil {
		return nil, err
	}
	if err := l.loadPreferences(students); err != nil {
		return nil, err
	}
	if err := l.loadUnavailability(teachers); err != nil {
		return nil, err
	}

	studentSlice := make([]model.Student, 0, len(students))
	for _, id := range sortedIDs(students) {
		studentSlice = append(studentSlice, *students[id])
	}
	teacherSlice := make([]model.Teacher, 0, len(teachers))
	for _, id := range sortedIDs(teachers) {
		teacherSlice = append(teacherSlice, *teachers[id])
	}
	var courses []model.Course
	for _, id := range sortedRestrictionIDs(l.restrictions) {
		courses = append(courses, model.Course{ID: id, AllowedPeriods: l.restrictions[id]})
	}

	l.log.Infof("loaded %d students, %d teachers, %d periods, %d sections",
		len(studentSlice), len(teacherSlice), len(periods), len(sections))
	return model.NewRoster(studentSlice, teacherSlice, periods, courses, sections)
}

func (l *Loader) loadStudents() (map[string]*model.Student, error) {
	students := make(map[string]*model.Student)
	err := l.forEachRow(StudentFile, []string{"Student ID"}, func(row fields) error {
		id := row.get("Student ID")
		if id == "" {
			return nil
		}
		grade, _ := strconv.Atoi(row.get("Grade Level"))
		students[id] = &model.Student{
			ID:         id,
			GradeLevel: grade,
			SPED:       parseBool(row.get("SPED")),
		}
		return nil
	})
	return students, err
}

func (l *Loader) loadTeachers() (map[string]*model.Teacher, error) {
	teachers := make(map[string]*model.Teacher)
	err := l.forEachRow(TeacherFile, []string{"Teacher ID"}, func(row fields) error {
		id := row.get("Teacher ID")
		if id == "" {
			return nil
		}
		max := DefaultMaxSections
		if raw := row.get("Max Sections"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("teacher %s: max sections %q: %w", id, raw, err)
			}
			max = v
		}
		teachers[id] = &model.Teacher{ID: id, MaxSections: max}
		return nil
	})
	return teachers, err
}

func (l *Loader) loadPeriods() ([]model.Period, error) {
	var periods []model.Period
	err := l.forEachRow(PeriodFile, []string{"Period ID"}, func(row fields) error {
		id := row.get("Period ID")
		if id == "" {
			return nil
		}
		periods = append(periods, model.Period{ID: id, Ordinal: len(periods) + 1})
		return nil
	})
	return periods, err
}

func (l *Loader) loadSections() ([]model.Section, error) {
	var sections []model.Section
	err := l.forEachRow(SectionFile, []string{"Section ID", "Course ID"}, func(row fields) error {
		id := row.get("Section ID")
		if id == "" {
			return nil
		}
		capacity := DefaultCapacity
		if raw := row.get("# of Seats Available"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("section %s: seats %q: %w", id, raw, err)
			}
			capacity = v
		}
		sections = append(sections, model.Section{
			ID:        id,
			CourseID:  row.get("Course ID"),
			TeacherID: row.get("Teacher Assigned"),
			Capacity:  capacity,
		})
		return nil
	})
	return sections, err
}

func (l *Loader) loadPreferences(students map[string]*model.Student) error {
	return l.forEachRow(PreferenceFile, []string{"Student ID"}, func(row fields) error {
		id := row.get("Student ID")
		st, ok := students[id]
		if !ok {
			l.log.Warnf("preferences for unknown student %q ignored", id)
			return nil
		}
		required := make(map[string]bool)
		for _, c := range splitList(row.get("Required Sections"), ";") {
			required[c] = true
		}
		// List order is the preference ranking.
		for i, c := range splitList(row.get("Preferred Sections"), ";") {
			st.Preferences = append(st.Preferences, model.Preference{
				CourseID: c,
				Rank:     i + 1,
				Required: required[c],
			})
			delete(required, c)
		}
		// Required courses missing from the preferred list still count as
		// requests, ranked after it.
		for _, c := range splitList(row.get("Required Sections"), ";") {
			if required[c] {
				st.Preferences = append(st.Preferences, model.Preference{
					CourseID: c,
					Rank:     len(st.Preferences) + 1,
					Required: true,
				})
				delete(required, c)
			}
		}
		return nil
	})
}

// loadUnavailability tolerates a missing file: full availability is assumed.
func (l *Loader) loadUnavailability(teachers map[string]*model.Teacher) error {
	path := filepath.Join(l.dir, UnavailabilityFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		l.log.Debugf("%s not present, assuming full availability", UnavailabilityFile)
		return nil
	}
	return l.forEachRow(UnavailabilityFile, []string{"Teacher ID"}, func(row fields) error {
		id := row.get("Teacher ID")
		t, ok := teachers[id]
		if !ok {
			l.log.Warnf("unavailability for unknown teacher %q ignored", id)
			return nil
		}
		for _, pid := range splitList(row.get("Unavailable Periods"), ",") {
			if t.Unavailable == nil {
				t.Unavailable = make(map[string]struct{})
			}
			t.Unavailable[pid] = struct{}{}
		}
		return nil
	})
}

type fields struct {
	cols map[string]int
	row  []string
}

func (f fields) get(name string) string {
	idx, ok := f.cols[name]
	if !ok || idx >= len(f.row) {
		return ""
	}
	return strings.TrimSpace(f.row[idx])
}

func (l *Loader) forEachRow(name string, required []string, fn func(fields) error) error {
	path := filepath.Join(l.dir, name)
	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read %s header: %w", name, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))] = i
	}
	for _, col := range required {
		if _, ok := cols[col]; !ok {
			return fmt.Errorf("%w: %s in %s", ErrMissingColumn, col, name)
		}
	}

	line := 1
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s line %d: %w", name, line+1, err)
		}
		line++
		if err := fn(fields{cols: cols, row: row}); err != nil {
			return fmt.Errorf("%s line %d: %w", name, line, err)
		}
	}
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "true", "1", "y":
		return true
	}
	return false
}

func splitList(raw, sep string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sortedRestrictionIDs(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func sortedIDs[T any](m map[string]*T) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
