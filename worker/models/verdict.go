package models

import (
	"math"
	"time"
	"unicode/utf8"
)

const (
	LabelMalicious  = "malicious"
	LabelSuspicious = "suspicious"
	LabelSafe       = "safe"
	LabelUnknown    = "unknown"
	LabelError      = "error"
)

// CaptureResult is owned by a single pipeline run and never persisted as is.
type CaptureResult struct {
	SnapshotPath string
	HTML         string
	Image        []byte
}

type Verdict struct {
	Summary    string
	Label      string
	Confidence float64
	IsThreat   bool
	Categories []string
	Indicators []string
	RiskLevel  string
}

// DegradedVerdict is substituted whenever judgment cannot produce an answer.
func DegradedVerdict(err error) Verdict {
	summary := "analysis failed"
	if err != nil {
		summary = "analysis failed: " + err.Error()
	}
	return Verdict{
		Summary:    summary,
		Label:      LabelError,
		Confidence: 0,
		IsThreat:   false,
		Categories: []string{},
	}
}

// ClampConfidence forces a model supplied score into [0, 1].
func ClampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

type AnalysisRecord struct {
	Timestamp        time.Time
	DecisionID       string
	Domain           string
	URL              string
	SnapshotPath     string
	HTML             string
	OCRText          string
	Verdict          Verdict
	ProcessingTimeMS int64
	ErrorMessage     string
}

func (r *AnalysisRecord) Status() TaskStatus {
	if r.ErrorMessage != "" {
		return StatusFailed
	}
	return StatusCompleted
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
