package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/sectioner/core/model"
	"github.com/kilianp07/sectioner/core/pipeline"
)

func exportFixture(t *testing.T) (*model.Roster, *model.Schedule) {
	t.Helper()
	r, err := model.NewRoster(
		[]model.Student{
			{ID: "ST001", Preferences: []model.Preference{{CourseID: "MATH", Rank: 1}}},
			{ID: "ST002", Preferences: []model.Preference{{CourseID: "MATH", Rank: 1}}},
		},
		[]model.Teacher{{ID: "T001", MaxSections: 5}},
		[]model.Period{{ID: "P1", Ordinal: 1}, {ID: "P2", Ordinal: 2}},
		[]model.Course{{ID: "MATH"}},
		[]model.Section{
			{ID: "S001", CourseID: "MATH", TeacherID: "T001", Capacity: 2},
			{ID: "S002", CourseID: "MATH", TeacherID: "T001", Capacity: 30},
		},
	)
	require.NoError(t, err)

	s := model.NewSchedule()
	s.Placements["S001"] = "P1"
	s.Placements["S002"] = "P2"
	s.Assignments = []model.Assignment{
		{StudentID: "ST001", SectionID: "S001"},
		{StudentID: "ST002", SectionID: "S001"},
	}
	return r, s
}

func TestWriteMasterSchedule(t *testing.T) {
	r, s := exportFixture(t)
	var buf bytes.Buffer
	require.NoError(t, WriteMasterSchedule(&buf, r, s))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Equal(t, []string{"Section ID", "Course ID", "Teacher ID", "Period", "Capacity"}, rows[0])
	require.Equal(t, []string{"S001", "MATH", "T001", "P1", "2"}, rows[1])
	require.Len(t, rows, 3)
}

func TestWriteMasterScheduleMarksUnscheduled(t *testing.T) {
	r, s := exportFixture(t)
	delete(s.Placements, "S002")

	var buf bytes.Buffer
	require.NoError(t, WriteMasterSchedule(&buf, r, s))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Equal(t, []string{"S002", "MATH", "T001", "Unscheduled", "30"}, rows[2])
}

func TestWriteStudentAssignments(t *testing.T) {
	r, s := exportFixture(t)
	var buf bytes.Buffer
	require.NoError(t, WriteStudentAssignments(&buf, r, s))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Equal(t, []string{"Student ID", "Section ID"}, rows[0])
	require.Equal(t, []string{"ST001", "S001"}, rows[1])
	require.Equal(t, []string{"ST002", "S001"}, rows[2])
}

func TestWriteTeacherSchedule(t *testing.T) {
	r, s := exportFixture(t)
	var buf bytes.Buffer
	require.NoError(t, WriteTeacherSchedule(&buf, r, s))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Equal(t, []string{"Teacher ID", "Section ID", "Course ID", "Period"}, rows[0])
	require.Equal(t, []string{"T001", "S001", "MATH", "P1"}, rows[1])
	require.Equal(t, []string{"T001", "S002", "MATH", "P2"}, rows[2])
}

func TestWriteUtilizationReportBands(t *testing.T) {
	r, s := exportFixture(t)
	var buf bytes.Buffer
	require.NoError(t, WriteUtilizationReport(&buf, r, s))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "High", rows[1][5]) // S001: 2/2
	require.Equal(t, "Low", rows[2][5])  // S002: 0/30
}

func TestWriteSummary(t *testing.T) {
	r, s := exportFixture(t)
	report := &pipeline.RunReport{
		RunID:            "run-1",
		Iterations:       []pipeline.IterationReport{{Number: 1}},
		Schedule:         s,
		Roster:           r,
		TotalRequests:    2,
		Satisfied:        2,
		SatisfactionRate: 1,
		Elapsed:          1500 * time.Millisecond,
		Converged:        false,
		BelowThreshold:   []string{"S002"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, report))

	var sum Summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &sum))
	require.Equal(t, "run-1", sum.RunID)
	require.Equal(t, 1, sum.Iterations)
	require.Equal(t, 1.0, sum.SatisfactionRate)
	require.InDelta(t, 1.5, sum.ElapsedSeconds, 1e-9)
	require.False(t, sum.Converged)
	require.Equal(t, []string{"S002"}, sum.BelowThreshold)
}

func TestWriteAllProducesEveryFile(t *testing.T) {
	r, s := exportFixture(t)
	dir := filepath.Join(t.TempDir(), "out")
	report := &pipeline.RunReport{RunID: "run-1", Schedule: s, Roster: r}

	require.NoError(t, WriteAll(dir, report))
	for _, name := range []string{MasterScheduleFile, StudentAssignmentFile, TeacherScheduleFile, UtilizationReportFile, SummaryFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
	}
}
