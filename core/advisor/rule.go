package advisor

import (
	"context"
	"sort"
)

// Utilization bands shared with the reporting layer.
const (
	LowUtilization  = 0.3
	HighUtilization = 0.9
)

// RuleBased is the built-in fallback advisor. It splits oversubscribed
// sections, opens sections for courses with unmet demand, and merges or
// removes underused ones.
type RuleBased struct {
	Low  float64
	High float64
}

// NewRuleBased returns a fallback advisor using the standard bands.
func NewRuleBased() RuleBased {
	return RuleBased{Low: LowUtilization, High: HighUtilization}
}

// Review never fails; it exists so RuleBased satisfies Advisor.
func (a RuleBased) Review(_ context.Context, reviews []SectionReview) ([]Action, error) {
	sorted := make([]SectionReview, len(reviews))
	copy(sorted, reviews)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SectionID < sorted[j].SectionID })

	byCourse := make(map[string][]SectionReview)
	for _, r := range sorted {
		byCourse[r.CourseID] = append(byCourse[r.CourseID], r)
	}

	var actions []Action
	merged := make(map[string]bool)
	for _, r := range sorted {
		switch {
		case r.Overage > 0:
			actions = append(actions, Add{CourseID: r.CourseID})
		case r.Utilization > a.High && r.Capacity > 1:
			actions = append(actions, Split{SectionID: r.SectionID})
		case r.Utilization < a.Low && !merged[r.SectionID]:
			if partner, ok := a.mergePartner(r, byCourse[r.CourseID], merged); ok {
				merged[r.SectionID], merged[partner] = true, true
				actions = append(actions, Merge{SectionID: partner, With: r.SectionID})
			} else if len(byCourse[r.CourseID]) > 1 && r.Enrolled == 0 {
				actions = append(actions, Remove{SectionID: r.SectionID})
			}
		}
	}
	return actions, nil
}

// mergePartner finds another underused section of the same course whose
// students fit into the combined capacity.
func (a RuleBased) mergePartner(r SectionReview, peers []SectionReview, merged map[string]bool) (string, bool) {
	for _, p := range peers {
		if p.SectionID == r.SectionID || merged[p.SectionID] {
			continue
		}
		if p.Utilization < a.Low && p.Enrolled+r.Enrolled <= p.Capacity+r.Capacity {
			return p.SectionID, true
		}
	}
	return "", false
}
