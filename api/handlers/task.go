package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"threatAnalyzer/api/dto"
	"threatAnalyzer/api/middleware"
	"threatAnalyzer/api/service"
	"threatAnalyzer/api/validation"
)

const maxBodyBytes = 64 << 10

type TaskService interface {
	SubmitTask(ctx context.Context, traceID string, req *dto.SubmitTaskRequest) (*dto.TaskResponse, error)
	GetTaskStatus(ctx context.Context, decisionID string) (*dto.TaskResponse, error)
	GetRecords(ctx context.Context, decisionID string) ([]dto.RecordResponse, error)
}

type TaskHandler struct {
	service TaskService
	logger  *zap.Logger
}

func NewTaskHandler(service TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service: service,
		logger:  logger,
	}
}

func (h *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	var req dto.SubmitTaskRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.handleError(w, "Invalid request body", err, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.SubmitTask(r.Context(), traceID, &req)
	if err != nil {
		if isValidationError(err) {
			h.handleError(w, err.Error(), err, traceID, http.StatusBadRequest)
			return
		}
		h.handleError(w, "Failed to submit task", err, traceID, http.StatusInternalServerError)
		return
	}

	h.logger.Info("Task submitted",
		zap.String("trace_id", traceID),
		zap.String("decision_id", resp.DecisionID),
		zap.String("domain", resp.Domain),
	)

	h.respondJSON(w, http.StatusAccepted, resp)
}

func (h *TaskHandler) Status(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	decisionID := chi.URLParam(r, "decisionID")
	if decisionID == "" {
		h.handleError(w, "Decision ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.GetTaskStatus(r.Context(), decisionID)
	if err != nil {
		if errors.Is(err, dto.ErrTaskNotFound) {
			h.handleError(w, "Task not found", err, traceID, http.StatusNotFound)
			return
		}
		h.handleError(w, "Failed to get task status", err, traceID, http.StatusInternalServerError)
		return
	}
	resp.TraceID = traceID

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *TaskHandler) Records(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	decisionID := chi.URLParam(r, "decisionID")
	if decisionID == "" {
		h.handleError(w, "Decision ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	records, err := h.service.GetRecords(r.Context(), decisionID)
	if err != nil {
		switch {
		case errors.Is(err, dto.ErrTaskNotFound):
			h.handleError(w, "No records found", err, traceID, http.StatusNotFound)
		case errors.Is(err, service.ErrRecordsUnavailable):
			h.handleError(w, "Records are not available for this storage driver", err, traceID, http.StatusNotImplemented)
		default:
			h.handleError(w, "Failed to list records", err, traceID, http.StatusInternalServerError)
		}
		return
	}

	h.respondJSON(w, http.StatusOK, records)
}

func isValidationError(err error) bool {
	for _, target := range []error{
		validation.ErrInvalidDomain,
		validation.ErrDomainTooLong,
		validation.ErrNoPublicSuffix,
		validation.ErrInvalidURL,
		validation.ErrUnsupportedURL,
		validation.ErrInvalidDecision,
		validation.ErrDecisionTooLong,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (h *TaskHandler) handleError(w http.ResponseWriter, message string, err error, traceID string, status int) {
	log := h.logger.Error
	if status < http.StatusInternalServerError {
		log = h.logger.Warn
	}
	log(message,
		zap.String("trace_id", traceID),
		zap.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		TraceID: traceID,
	})
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *TaskHandler) Routes(r chi.Router) {
	r.Post("/tasks", h.Submit)
	r.Get("/status/{decisionID}", h.Status)
	r.Get("/records/{decisionID}", h.Records)
}
