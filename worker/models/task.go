package models

import (
	"errors"
	"strings"
)

var (
	ErrMissingDecisionID = errors.New("decision_id is required")
	ErrMissingDomain     = errors.New("domain is required")
)

type TaskStatus string

const (
	StatusPending   TaskStatus = "PENDING"
	StatusCompleted TaskStatus = "COMPLETED"
	StatusFailed    TaskStatus = "FAILED"
)

// AnalysisTask is the queue payload for one domain analysis request.
type AnalysisTask struct {
	DecisionID string `json:"decision_id"`
	Domain     string `json:"domain"`
	URL        string `json:"url,omitempty"`
}

func (t *AnalysisTask) Validate() error {
	if strings.TrimSpace(t.DecisionID) == "" {
		return ErrMissingDecisionID
	}
	if strings.TrimSpace(t.Domain) == "" {
		return ErrMissingDomain
	}
	return nil
}

// Normalize trims the task fields and fills URL from the domain when absent.
func (t *AnalysisTask) Normalize(scheme string) {
	t.DecisionID = strings.TrimSpace(t.DecisionID)
	t.Domain = strings.ToLower(strings.TrimSpace(t.Domain))
	t.URL = strings.TrimSpace(t.URL)
	if t.URL == "" {
		t.URL = DefaultURL(scheme, t.Domain)
	}
}

func DefaultURL(scheme, domain string) string {
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + domain
}
