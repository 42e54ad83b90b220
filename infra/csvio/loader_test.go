package csvio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeInput(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func fixtureDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeInput(t, dir, StudentFile, "Student ID,Grade Level,SPED\nST001,9,No\nST002,10,Yes\n")
	writeInput(t, dir, TeacherFile, "Teacher ID,Max Sections\nT001,4\nT002,\n")
	writeInput(t, dir, PeriodFile, "Period ID\nP1\nP2\n")
	writeInput(t, dir, SectionFile, "Section ID,Course ID,Teacher Assigned,# of Seats Available\nS001,MATH,T001,25\nS002,SCI,T002,\n")
	writeInput(t, dir, PreferenceFile, "Student ID,Preferred Sections,Required Sections\nST001,MATH;SCI,MATH\nST002,SCI,\n")
	writeInput(t, dir, UnavailabilityFile, "Teacher ID,Unavailable Periods\nT001,\"P1,P2\"\n")
	return dir
}

func TestLoadAssemblesRoster(t *testing.T) {
	r, err := NewLoader(fixtureDir(t)).Load()
	require.NoError(t, err)

	require.Len(t, r.Students, 2)
	require.True(t, r.Students["ST002"].SPED)
	require.False(t, r.Students["ST001"].SPED)

	require.Equal(t, 4, r.Teachers["T001"].MaxSections)
	require.Equal(t, DefaultMaxSections, r.Teachers["T002"].MaxSections)
	require.False(t, r.Teachers["T001"].Available("P1"))
	require.True(t, r.Teachers["T002"].Available("P1"))

	require.Equal(t, 25, r.Sections["S001"].Capacity)
	require.Equal(t, DefaultCapacity, r.Sections["S002"].Capacity)

	prefs := r.Students["ST001"].Preferences
	require.Len(t, prefs, 2)
	require.Equal(t, "MATH", prefs[0].CourseID)
	require.Equal(t, 1, prefs[0].Rank)
	require.True(t, prefs[0].Required)
	require.Equal(t, "SCI", prefs[1].CourseID)
	require.False(t, prefs[1].Required)
}

func TestLoadRequiredOnlyCourseBecomesRequest(t *testing.T) {
	dir := fixtureDir(t)
	writeInput(t, dir, PreferenceFile, "Student ID,Preferred Sections,Required Sections\nST001,SCI,MATH\n")

	r, err := NewLoader(dir).Load()
	require.NoError(t, err)
	prefs := r.Students["ST001"].Preferences
	require.Len(t, prefs, 2)
	require.Equal(t, "SCI", prefs[0].CourseID)
	require.Equal(t, "MATH", prefs[1].CourseID)
	require.True(t, prefs[1].Required)
	require.Equal(t, 2, prefs[1].Rank)
}

func TestLoadWithoutUnavailabilityFile(t *testing.T) {
	dir := fixtureDir(t)
	require.NoError(t, os.Remove(filepath.Join(dir, UnavailabilityFile)))

	r, err := NewLoader(dir).Load()
	require.NoError(t, err)
	require.True(t, r.Teachers["T001"].Available("P1"))
}

func TestLoadAppliesCourseRestrictions(t *testing.T) {
	l := NewLoader(fixtureDir(t))
	l.Restrict(map[string][]string{"MATH": {"P2"}})

	r, err := l.Load()
	require.NoError(t, err)
	require.Equal(t, []string{"P2"}, r.SectionPeriods["S001"])
	require.Equal(t, []string{"P1", "P2"}, r.SectionPeriods["S002"])
}

func TestLoadRejectsMissingColumn(t *testing.T) {
	dir := fixtureDir(t)
	writeInput(t, dir, StudentFile, "ID,Grade\nST001,9\n")

	_, err := NewLoader(dir).Load()
	require.ErrorIs(t, err, ErrMissingColumn)
}

func TestLoadRejectsBadCapacity(t *testing.T) {
	dir := fixtureDir(t)
	writeInput(t, dir, SectionFile, "Section ID,Course ID,Teacher Assigned,# of Seats Available\nS001,MATH,T001,lots\n")

	_, err := NewLoader(dir).Load()
	require.Error(t, err)
}
