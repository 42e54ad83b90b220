// Package advisor defines the review contract used between scheduling
// iterations. An external collaborator inspects per-section enrollment and
// proposes structural changes; a rule-based fallback covers the case where no
// collaborator is reachable.
package advisor

import "context"

// SectionReview is the per-section snapshot sent out for review.
type SectionReview struct {
	SectionID   string  `json:"section_id"`
	CourseID    string  `json:"course_id"`
	Capacity    int     `json:"capacity"`
	Enrolled    int     `json:"enrolled"`
	Overage     int     `json:"overage"`
	Utilization float64 `json:"utilization"`
	Missed      int     `json:"missed_requests"`
}

// Action is a proposed structural change. The variants are closed: Split,
// Add, Remove and Merge.
type Action interface {
	// Target names the section (or course) the action applies to.
	Target() string
	isAction()
}

// Split halves a section's capacity and clones the remainder into a sibling.
type Split struct {
	SectionID string
}

func (a Split) Target() string { return a.SectionID }
func (Split) isAction()        {}

// Add opens a fresh section for a course that cannot seat its demand.
type Add struct {
	CourseID  string
	TeacherID string
}

func (a Add) Target() string { return a.CourseID }
func (Add) isAction()        {}

// Remove drops an underused section.
type Remove struct {
	SectionID string
}

func (a Remove) Target() string { return a.SectionID }
func (Remove) isAction()        {}

// Merge folds a section into another section of the same course, combining
// their capacities.
type Merge struct {
	SectionID string
	With      string
}

func (a Merge) Target() string { return a.SectionID }
func (Merge) isAction()        {}

// Advisor reviews a round of section snapshots and proposes actions. An empty
// slice means the layout should be left alone.
type Advisor interface {
	Review(ctx context.Context, reviews []SectionReview) ([]Action, error)
}
