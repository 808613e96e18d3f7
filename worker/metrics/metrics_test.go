package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPipelineMetrics_Registered(t *testing.T) {
	TasksProcessed.WithLabelValues("COMPLETED").Inc()
	StageDuration.WithLabelValues("capture").Observe(1.2)
	StageFailures.WithLabelValues("ocr").Inc()
	FeedbackEmitted.WithLabelValues("ok").Inc()
	ThreatsDetected.Inc()
	QueueErrors.Inc()
	MalformedTasks.Inc()
	TasksActive.Set(1)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	expected := []string{
		"analyzer_tasks_processed_total",
		"analyzer_stage_duration_seconds",
		"analyzer_stage_failures_total",
		"analyzer_feedback_emitted_total",
		"analyzer_threats_detected_total",
		"analyzer_queue_errors_total",
		"analyzer_malformed_tasks_total",
		"analyzer_tasks_active",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("%s not found in gathered metrics", name)
		}
	}
}
