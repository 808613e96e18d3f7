package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"threatAnalyzer/api/dto"
	"threatAnalyzer/api/validation"
	"threatAnalyzer/worker/models"
	"threatAnalyzer/worker/queue"
	"threatAnalyzer/worker/repository"
)

// ErrRecordsUnavailable is returned when the configured store cannot be read back.
var ErrRecordsUnavailable = errors.New("record listing not supported by storage driver")

type StatusStore interface {
	Set(ctx context.Context, decisionID string, status models.TaskStatus) error
	Get(ctx context.Context, decisionID string) (models.TaskStatus, error)
}

type TaskService struct {
	queue   queue.Producer
	status  StatusStore
	records repository.RecordLister
	scheme  string
}

// NewTaskService wires submission and lookup. records may be nil.
func NewTaskService(q queue.Producer, status StatusStore, records repository.RecordLister, scheme string) *TaskService {
	return &TaskService{
		queue:   q,
		status:  status,
		records: records,
		scheme:  scheme,
	}
}

// SubmitTask validates the request, marks it PENDING and enqueues it. The
// status is written first so a fast worker never gets overwritten by it.
func (s *TaskService) SubmitTask(ctx context.Context, traceID string, req *dto.SubmitTaskRequest) (*dto.TaskResponse, error) {
	domain, err := validation.NormalizeDomain(req.Domain)
	if err != nil {
		return nil, err
	}
	if req.URL != "" {
		if err := validation.ValidateURL(req.URL); err != nil {
			return nil, err
		}
	}
	decisionID := req.DecisionID
	if decisionID == "" {
		decisionID = uuid.New().String()
	} else if err := validation.ValidateDecisionID(decisionID); err != nil {
		return nil, err
	}

	task := &models.AnalysisTask{
		DecisionID: decisionID,
		Domain:     domain,
		URL:        req.URL,
	}
	task.Normalize(s.scheme)

	if err := s.status.Set(ctx, task.DecisionID, models.StatusPending); err != nil {
		return nil, fmt.Errorf("set pending status: %w", err)
	}
	if err := s.queue.Push(ctx, task); err != nil {
		return nil, fmt.Errorf("enqueue task: %w", err)
	}

	return &dto.TaskResponse{
		DecisionID: task.DecisionID,
		TraceID:    traceID,
		Domain:     task.Domain,
		URL:        task.URL,
		Status:     string(models.StatusPending),
	}, nil
}

func (s *TaskService) GetTaskStatus(ctx context.Context, decisionID string) (*dto.TaskResponse, error) {
	status, err := s.status.Get(ctx, decisionID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, dto.ErrTaskNotFound
		}
		return nil, err
	}
	return &dto.TaskResponse{
		DecisionID: decisionID,
		Status:     string(status),
	}, nil
}

func (s *TaskService) GetRecords(ctx context.Context, decisionID string) ([]dto.RecordResponse, error) {
	if s.records == nil {
		return nil, ErrRecordsUnavailable
	}
	recs, err := s.records.ListByDecisionID(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, dto.ErrTaskNotFound
	}

	out := make([]dto.RecordResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, toRecordResponse(r))
	}
	return out, nil
}

func toRecordResponse(r models.AnalysisRecord) dto.RecordResponse {
	categories := r.Verdict.Categories
	if categories == nil {
		categories = []string{}
	}
	return dto.RecordResponse{
		Timestamp:        r.Timestamp.UTC().Format(time.RFC3339),
		DecisionID:       r.DecisionID,
		Domain:           r.Domain,
		URL:              r.URL,
		SnapshotPath:     r.SnapshotPath,
		Summary:          r.Verdict.Summary,
		Label:            r.Verdict.Label,
		Confidence:       r.Verdict.Confidence,
		IsThreat:         r.Verdict.IsThreat,
		Categories:       categories,
		RiskLevel:        r.Verdict.RiskLevel,
		ProcessingTimeMS: r.ProcessingTimeMS,
		ErrorMessage:     r.ErrorMessage,
	}
}
