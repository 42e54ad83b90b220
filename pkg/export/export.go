// Package export serializes finished schedules into the registrar's CSV
// outputs and a machine-readable run summary.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/kilianp07/sectioner/core/model"
	"github.com/kilianp07/sectioner/core/pipeline"
)

// Output file names.
const (
	MasterScheduleFile    = "Master_Schedule.csv"
	StudentAssignmentFile = "Student_Assignments.csv"
	TeacherScheduleFile   = "Teacher_Schedule.csv"
	UtilizationReportFile = "Utilization_Report.csv"
	SummaryFile           = "summary.json"
)

// Utilization bands used in the report's Status column.
const (
	lowUtilization  = 0.3
	highUtilization = 0.9
)

// WriteMasterSchedule writes one row per section. Sections without a teacher
// or a period keep their row with a placeholder so the registrar sees the gap.
func WriteMasterSchedule(w io.Writer, r *model.Roster, s *model.Schedule) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Section ID", "Course ID", "Teacher ID", "Period", "Capacity"}); err != nil {
		return err
	}
	for _, secID := range r.SectionOrder() {
		sec := r.Sections[secID]
		teacher := sec.TeacherID
		if teacher == "" {
			teacher = "Unassigned"
		}
		pid, placed := s.Placements[secID]
		if !placed {
			pid = "Unscheduled"
		}
		if err := cw.Write([]string{secID, sec.CourseID, teacher, pid, strconv.Itoa(sec.Capacity)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteStudentAssignments writes one row per student/section pairing.
func WriteStudentAssignments(w io.Writer, _ *model.Roster, s *model.Schedule) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Student ID", "Section ID"}); err != nil {
		return err
	}
	for _, a := range s.SortedAssignments() {
		if err := cw.Write([]string{a.StudentID, a.SectionID}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTeacherSchedule writes one row per teacher/period with the section
// taught in it.
func WriteTeacherSchedule(w io.Writer, r *model.Roster, s *model.Schedule) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Teacher ID", "Section ID", "Course ID", "Period"}); err != nil {
		return err
	}
	teacherIDs := make([]string, 0, len(r.Teachers))
	for id := range r.Teachers {
		teacherIDs = append(teacherIDs, id)
	}
	sort.Strings(teacherIDs)
	for _, tid := range teacherIDs {
		for _, secID := range r.TeacherSections[tid] {
			pid, placed := s.Placements[secID]
			if !placed {
				continue
			}
			if err := cw.Write([]string{tid, secID, r.Sections[secID].CourseID, pid}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteUtilizationReport writes per-section seat usage with a status band:
// Low below 30%, High above 90%, Good between.
func WriteUtilizationReport(w io.Writer, r *model.Roster, s *model.Schedule) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Section ID", "Course ID", "Capacity", "Enrollment", "Utilization", "Status"}); err != nil {
		return err
	}
	for _, secID := range r.SectionOrder() {
		sec := r.Sections[secID]
		util := s.Utilization(sec)
		rec := []string{
			secID,
			sec.CourseID,
			strconv.Itoa(sec.Capacity),
			strconv.Itoa(s.Enrollment(secID)),
			strconv.FormatFloat(util, 'f', 2, 64),
			utilizationStatus(util),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func utilizationStatus(util float64) string {
	switch {
	case util < lowUtilization:
		return "Low"
	case util > highUtilization:
		return "High"
	default:
		return "Good"
	}
}

// Summary is the JSON run summary.
type Summary struct {
	RunID            string    `json:"run_id"`
	GeneratedAt      time.Time `json:"generated_at"`
	Iterations       int       `json:"iterations"`
	Converged        bool      `json:"converged"`
	BelowThreshold   []string  `json:"below_threshold_sections,omitempty"`
	TotalRequests    int       `json:"total_requests"`
	Satisfied        int       `json:"satisfied_requests"`
	SatisfactionRate float64   `json:"satisfaction_rate"`
	MissedRequests   int       `json:"missed_requests"`
	UnplacedSections []string  `json:"unplaced_sections,omitempty"`
	OverageSeats     int       `json:"overage_seats"`
	ElapsedSeconds   float64   `json:"elapsed_seconds"`
}

// WriteSummary writes the run summary as indented JSON.
func WriteSummary(w io.Writer, report *pipeline.RunReport) error {
	overage := 0
	missed := 0
	var unplaced []string
	if report.Schedule != nil {
		for _, v := range report.Schedule.Violations {
			overage += v
		}
		missed = len(report.Schedule.Missed)
		unplaced = append(unplaced, report.Schedule.Unplaced...)
	}
	sort.Strings(unplaced)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Summary{
		RunID:            report.RunID,
		GeneratedAt:      time.Now().UTC(),
		Iterations:       len(report.Iterations),
		Converged:        report.Converged,
		BelowThreshold:   report.BelowThreshold,
		TotalRequests:    report.TotalRequests,
		Satisfied:        report.Satisfied,
		SatisfactionRate: report.SatisfactionRate,
		MissedRequests:   missed,
		UnplacedSections: unplaced,
		OverageSeats:     overage,
		ElapsedSeconds:   report.Elapsed.Seconds(),
	})
}

// WriteAll writes every output file into dir, creating it if needed.
func WriteAll(dir string, report *pipeline.RunReport) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	r, s := report.Roster, report.Schedule
	writers := []struct {
		name string
		fn   func(io.Writer) error
	}{
		{MasterScheduleFile, func(w io.Writer) error { return WriteMasterSchedule(w, r, s) }},
		{StudentAssignmentFile, func(w io.Writer) error { return WriteStudentAssignments(w, r, s) }},
		{TeacherScheduleFile, func(w io.Writer) error { return WriteTeacherSchedule(w, r, s) }},
		{UtilizationReportFile, func(w io.Writer) error { return WriteUtilizationReport(w, r, s) }},
		{SummaryFile, func(w io.Writer) error { return WriteSummary(w, report) }},
	}
	for _, out := range writers {
		fh, err := os.Create(filepath.Join(dir, out.name))
		if err != nil {
			return fmt.Errorf("create %s: %w", out.name, err)
		}
		if err := out.fn(fh); err != nil {
			fh.Close()
			return fmt.Errorf("write %s: %w", out.name, err)
		}
		if err := fh.Close(); err != nil {
			return fmt.Errorf("close %s: %w", out.name, err)
		}
	}
	return nil
}
