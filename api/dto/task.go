package dto

import "errors"

var ErrTaskNotFound = errors.New("task not found")

type SubmitTaskRequest struct {
	DecisionID string `json:"decision_id"`
	Domain     string `json:"domain"`
	URL        string `json:"url,omitempty"`
}

type TaskResponse struct {
	DecisionID string `json:"decision_id"`
	TraceID    string `json:"trace_id,omitempty"`
	Domain     string `json:"domain,omitempty"`
	URL        string `json:"url,omitempty"`
	Status     string `json:"status"`
}

type RecordResponse struct {
	Timestamp        string   `json:"timestamp"`
	DecisionID       string   `json:"decision_id"`
	Domain           string   `json:"domain"`
	URL              string   `json:"url"`
	SnapshotPath     string   `json:"snapshot_path"`
	Summary          string   `json:"summary"`
	Label            string   `json:"label"`
	Confidence       float64  `json:"confidence"`
	IsThreat         bool     `json:"is_threat"`
	Categories       []string `json:"categories"`
	RiskLevel        string   `json:"risk_level"`
	ProcessingTimeMS int64    `json:"processing_time_ms"`
	ErrorMessage     string   `json:"error_message,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}
