package pipeline

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kilianp07/sectioner/core/advisor"
	"github.com/kilianp07/sectioner/core/model"
)

// applyActions rebuilds the roster with the advised structural changes.
// Actions that cannot be applied safely are skipped and reported back so the
// caller can log them; the remaining actions still take effect.
func (c *Controller) applyActions(roster *model.Roster, actions []advisor.Action) (*model.Roster, int, error) {
	sections := make(map[string]model.Section, len(roster.Sections))
	for id, sec := range roster.Sections {
		sections[id] = *sec
	}

	applied := 0
	for _, act := range actions {
		var err error
		switch a := act.(type) {
		case advisor.Split:
			err = c.splitSection(sections, a)
		case advisor.Add:
			err = c.addSection(roster, sections, a)
		case advisor.Remove:
			err = removeSection(sections, a)
		case advisor.Merge:
			err = mergeSections(sections, a)
		default:
			err = fmt.Errorf("unknown action %T", act)
		}
		if err != nil {
			c.log.Warnf("skipping action on %s: %v", act.Target(), err)
			continue
		}
		applied++
	}
	if applied == 0 {
		return roster, 0, nil
	}

	rebuilt, err := model.NewRoster(
		studentSlice(roster), teacherSlice(roster), periodSlice(roster), courseSlice(roster), sectionSlice(sections),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("rebuild roster: %w", err)
	}
	return rebuilt, applied, nil
}

// splitSection halves the capacity and clones the remainder into a sibling
// with a "_B" suffix.
func (c *Controller) splitSection(sections map[string]model.Section, a advisor.Split) error {
	sec, ok := sections[a.SectionID]
	if !ok {
		return fmt.Errorf("no such section")
	}
	if sec.Capacity < 2 {
		return fmt.Errorf("capacity %d too small to split", sec.Capacity)
	}
	sibling := sec
	sibling.ID = nextSuffix(sections, sec.ID)
	sibling.Capacity = sec.Capacity - sec.Capacity/2
	sec.Capacity /= 2
	sections[sec.ID] = sec
	sections[sibling.ID] = sibling
	return nil
}

// addSection opens a fresh section with the default capacity, taught by the
// least loaded teacher that still has room.
func (c *Controller) addSection(roster *model.Roster, sections map[string]model.Section, a advisor.Add) error {
	teacherID := a.TeacherID
	if teacherID == "" {
		teacherID = leastLoadedTeacher(roster, sections)
	}
	if teacherID == "" {
		return fmt.Errorf("no teacher with free load for course %s", a.CourseID)
	}
	if _, ok := roster.Teachers[teacherID]; !ok {
		return fmt.Errorf("no such teacher %s", teacherID)
	}
	id := nextSectionID(sections)
	sections[id] = model.Section{
		ID:        id,
		CourseID:  a.CourseID,
		TeacherID: teacherID,
		Capacity:  c.opts.DefaultCapacity,
	}
	return nil
}

func removeSection(sections map[string]model.Section, a advisor.Remove) error {
	sec, ok := sections[a.SectionID]
	if !ok {
		return fmt.Errorf("no such section")
	}
	peers := 0
	for _, other := range sections {
		if other.CourseID == sec.CourseID {
			peers++
		}
	}
	if peers < 2 {
		return fmt.Errorf("only section of course %s", sec.CourseID)
	}
	delete(sections, a.SectionID)
	return nil
}

// mergeSections folds SectionID into With, combining their capacities.
func mergeSections(sections map[string]model.Section, a advisor.Merge) error {
	from, ok := sections[a.SectionID]
	if !ok {
		return fmt.Errorf("no such section")
	}
	into, ok := sections[a.With]
	if !ok {
		return fmt.Errorf("no such merge target %s", a.With)
	}
	if a.With == a.SectionID {
		return fmt.Errorf("cannot merge into itself")
	}
	if from.CourseID != into.CourseID {
		return fmt.Errorf("course mismatch %s vs %s", from.CourseID, into.CourseID)
	}
	into.Capacity += from.Capacity
	sections[into.ID] = into
	delete(sections, from.ID)
	return nil
}

// nextSectionID returns the first unused ID in the S000 numbering.
func nextSectionID(sections map[string]model.Section) string {
	max := 0
	for id := range sections {
		if !strings.HasPrefix(id, "S") {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(id, "S")); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("S%03d", max+1)
}

// nextSuffix derives a free sibling ID: S001_B, then S001_C and so on.
func nextSuffix(sections map[string]model.Section, base string) string {
	for letter := 'B'; letter <= 'Z'; letter++ {
		id := fmt.Sprintf("%s_%c", base, letter)
		if _, taken := sections[id]; !taken {
			return id
		}
	}
	return fmt.Sprintf("%s_%s", base, nextSectionID(sections))
}

func leastLoadedTeacher(roster *model.Roster, sections map[string]model.Section) string {
	load := make(map[string]int)
	for _, sec := range sections {
		load[sec.TeacherID]++
	}
	best, bestLoad := "", 0
	for _, tid := range sortedTeacherIDs(roster) {
		t := roster.Teachers[tid]
		if t.MaxSections > 0 && load[tid] >= t.MaxSections {
			continue
		}
		if best == "" || load[tid] < bestLoad {
			best, bestLoad = tid, load[tid]
		}
	}
	return best
}

func sortedTeacherIDs(roster *model.Roster) []string {
	out := make([]string, 0, len(roster.Teachers))
	for id := range roster.Teachers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func studentSlice(r *model.Roster) []model.Student {
	out := make([]model.Student, 0, len(r.Students))
	for _, s := range r.Students {
		out = append(out, *s)
	}
	return out
}

func teacherSlice(r *model.Roster) []model.Teacher {
	out := make([]model.Teacher, 0, len(r.Teachers))
	for _, t := range r.Teachers {
		out = append(out, *t)
	}
	return out
}

func periodSlice(r *model.Roster) []model.Period {
	out := make([]model.Period, 0, len(r.Periods))
	for _, p := range r.Periods {
		out = append(out, *p)
	}
	return out
}

func courseSlice(r *model.Roster) []model.Course {
	out := make([]model.Course, 0, len(r.Courses))
	for _, c := range r.Courses {
		out = append(out, *c)
	}
	return out
}

func sectionSlice(sections map[string]model.Section) []model.Section {
	out := make([]model.Section, 0, len(sections))
	for _, s := range sections {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
