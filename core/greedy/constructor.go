// Package greedy builds a feasible baseline schedule in two deterministic
// passes, without search or backtracking. The result stands alone when the
// solver is unavailable and seeds the solver's warm start otherwise.
package greedy

import (
	"sort"

	"github.com/kilianp07/sectioner/core/model"
)

// Constructor holds the policy knobs of the baseline pass.
type Constructor struct {
	// SPEDCap bounds SPED enrollment per course/period combination. Zero
	// disables the check.
	SPEDCap int
}

// New returns a Constructor with the default SPED cap.
func New() Constructor { return Constructor{SPEDCap: 2} }

// Build produces a feasible (section->period, student->section) assignment
// plus the list of unmet requests. Sections are placed hardest-first: fewest
// feasible periods, then descending capacity, then ID. Students are served in
// ID order, preferences in rank order, first qualifying section wins.
func (c Constructor) Build(roster *model.Roster) *model.Schedule {
	sched := model.NewSchedule()
	c.placeSections(roster, sched)
	c.assignStudents(roster, sched)
	return sched
}

type sectionRank struct {
	id       string
	feasible []string
	capacity int
}

// placeSections is phase A: every section gets the first feasible period that
// does not double-book its teacher, or is reported unplaced.
func (c Constructor) placeSections(roster *model.Roster, sched *model.Schedule) {
	ranked := make([]sectionRank, 0, len(roster.Sections))
	for _, id := range roster.SectionOrder() {
		ranked = append(ranked, sectionRank{
			id:       id,
			feasible: roster.FeasiblePeriods(id),
			capacity: roster.Sections[id].Capacity,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if len(a.feasible) != len(b.feasible) {
			return len(a.feasible) < len(b.feasible)
		}
		if a.capacity != b.capacity {
			return a.capacity > b.capacity
		}
		return a.id < b.id
	})

	teacherBusy := make(map[[2]string]bool) // (teacher, period)
	for _, sr := range ranked {
		sec := roster.Sections[sr.id]
		placed := false
		for _, pid := range sr.feasible {
			if sec.TeacherID != "" && teacherBusy[[2]string{sec.TeacherID, pid}] {
				continue
			}
			sched.Placements[sr.id] = pid
			if sec.TeacherID != "" {
				teacherBusy[[2]string{sec.TeacherID, pid}] = true
			}
			placed = true
			break
		}
		if !placed {
			sched.Unplaced = append(sched.Unplaced, sr.id)
		}
	}
	sort.Strings(sched.Unplaced)
}

// assignStudents is phase B: rank-ordered first-fit into placed sections,
// honoring capacity, the student's own period occupancy, and the SPED cap.
func (c Constructor) assignStudents(roster *model.Roster, sched *model.Schedule) {
	enrolled := make(map[string]int)      // section -> seats taken
	spedCount := make(map[[2]string]int)  // (course, period) -> SPED seats
	busy := make(map[[2]string]bool)      // (student, period)

	for _, studentID := range roster.StudentOrder() {
		student := roster.Students[studentID]
		_, isSPED := roster.SPEDStudents[studentID]

		prefs := make([]model.Preference, len(student.Preferences))
		copy(prefs, student.Preferences)
		sort.SliceStable(prefs, func(i, j int) bool { return prefs[i].Rank < prefs[j].Rank })

		for _, pref := range prefs {
			assigned := false
			for _, secID := range roster.CourseSections[pref.CourseID] {
				periodID, placed := sched.Placements[secID]
				if !placed {
					continue
				}
				if enrolled[secID] >= roster.Sections[secID].Capacity {
					continue
				}
				if busy[[2]string{studentID, periodID}] {
					continue
				}
				if isSPED && c.SPEDCap > 0 && spedCount[[2]string{pref.CourseID, periodID}] >= c.SPEDCap {
					continue
				}
				sched.Assignments = append(sched.Assignments, model.Assignment{StudentID: studentID, SectionID: secID})
				enrolled[secID]++
				busy[[2]string{studentID, periodID}] = true
				if isSPED {
					spedCount[[2]string{pref.CourseID, periodID}]++
				}
				assigned = true
				break
			}
			if !assigned {
				sched.Missed = append(sched.Missed, model.MissedRequest{
					StudentID: studentID,
					CourseID:  pref.CourseID,
					Required:  pref.Required,
				})
			}
		}
	}
}
