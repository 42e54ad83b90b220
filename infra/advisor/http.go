// Package advisor provides the HTTP client for the external review service
// consulted between scheduling iterations.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	coreadvisor "github.com/kilianp07/sectioner/core/advisor"
	"github.com/kilianp07/sectioner/infra/logger"
)

// Config holds the review service endpoint settings.
type Config struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// HTTPAdvisor posts section snapshots to the review service and decodes the
// proposed actions. Transport or decode failures surface as errors so the
// pipeline can fall back to its rule-based advisor.
type HTTPAdvisor struct {
	url    string
	client *http.Client
	log    logger.Logger
}

// NewHTTPAdvisor creates a client for the configured endpoint.
func NewHTTPAdvisor(cfg Config) *HTTPAdvisor {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}
	return &HTTPAdvisor{
		url:    cfg.URL,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		log:    logger.New("advisor-client"),
	}
}

type reviewRequest struct {
	Sections []coreadvisor.SectionReview `json:"sections"`
}

type actionPayload struct {
	SectionID string `json:"section_id"`
	CourseID  string `json:"course_id,omitempty"`
	TeacherID string `json:"teacher_id,omitempty"`
	Action    string `json:"action"`
	MergeWith string `json:"merge_with,omitempty"`
}

type reviewResponse struct {
	Actions []actionPayload `json:"actions"`
}

// Review implements advisor.Advisor.
func (a *HTTPAdvisor) Review(ctx context.Context, reviews []coreadvisor.SectionReview) ([]coreadvisor.Action, error) {
	body, err := json.Marshal(reviewRequest{Sections: reviews})
	if err != nil {
		return nil, fmt.Errorf("encode review: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("review request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("review service returned %s", resp.Status)
	}

	var decoded reviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode review: %w", err)
	}

	actions := make([]coreadvisor.Action, 0, len(decoded.Actions))
	for _, p := range decoded.Actions {
		act, err := p.toAction()
		if err != nil {
			a.log.Warnf("ignoring advisory action: %v", err)
			continue
		}
		actions = append(actions, act)
	}
	a.log.Debugf("review returned %d actions for %d sections", len(actions), len(reviews))
	return actions, nil
}

func (p actionPayload) toAction() (coreadvisor.Action, error) {
	switch p.Action {
	case "split":
		return coreadvisor.Split{SectionID: p.SectionID}, nil
	case "add":
		return coreadvisor.Add{CourseID: p.CourseID, TeacherID: p.TeacherID}, nil
	case "remove":
		return coreadvisor.Remove{SectionID: p.SectionID}, nil
	case "merge":
		if p.MergeWith == "" {
			return nil, fmt.Errorf("merge for %s without merge_with", p.SectionID)
		}
		return coreadvisor.Merge{SectionID: p.SectionID, With: p.MergeWith}, nil
	default:
		return nil, fmt.Errorf("unknown action %q for %s", p.Action, p.SectionID)
	}
}
