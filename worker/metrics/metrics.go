// Package metrics holds the Prometheus collectors for the analysis pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TasksProcessed counts finished tasks by final status.
var TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "analyzer",
	Name:      "tasks_processed_total",
	Help:      "Total tasks processed, by final status.",
}, []string{"status"})

// TasksActive tracks tasks currently in flight across all instances.
var TasksActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "analyzer",
	Name:      "tasks_active",
	Help:      "Number of tasks currently being processed.",
})

// StageDuration tracks per-stage latency.
var StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "analyzer",
	Name:      "stage_duration_seconds",
	Help:      "Duration of each pipeline stage in seconds.",
	Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
}, []string{"stage"})

// StageFailures counts failures per stage, including degraded ones.
var StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "analyzer",
	Name:      "stage_failures_total",
	Help:      "Total stage failures.",
}, []string{"stage"})

var ThreatsDetected = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "analyzer",
	Name:      "threats_detected_total",
	Help:      "Total tasks judged to be threats.",
})

var FeedbackEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "analyzer",
	Name:      "feedback_emitted_total",
	Help:      "Feedback emissions by result.",
}, []string{"result"})

var QueueErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "analyzer",
	Name:      "queue_errors_total",
	Help:      "Total queue read errors.",
})

var MalformedTasks = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "analyzer",
	Name:      "malformed_tasks_total",
	Help:      "Total dropped task payloads.",
})
