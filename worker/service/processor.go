package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"threatAnalyzer/worker/cache"
	"threatAnalyzer/worker/capture"
	"threatAnalyzer/worker/config"
	"threatAnalyzer/worker/converter"
	"threatAnalyzer/worker/feedback"
	"threatAnalyzer/worker/judge"
	"threatAnalyzer/worker/metrics"
	"threatAnalyzer/worker/models"
	"threatAnalyzer/worker/ocr"
	"threatAnalyzer/worker/queue"
	"threatAnalyzer/worker/repository"
)

const (
	threatReward   = 1.0
	backoffBase    = 500 * time.Millisecond
	backoffCeiling = 30 * time.Second
)

// Deps are the collaborators one Processor owns or shares.
type Deps struct {
	Queue     queue.Consumer
	Capturer  capture.Capturer
	Converter *converter.Converter
	OCR       ocr.Extractor
	Judge     judge.Judge
	Repo      repository.Repository
	Status    cache.StatusStore
	Feedback  feedback.Emitter
}

// Processor runs the dequeue loop and one task at a time through
// capture, OCR and judgment.
type Processor struct {
	Deps
	cfg    *config.Config
	logger *zap.Logger
}

func NewProcessor(deps Deps, cfg *config.Config, logger *zap.Logger) *Processor {
	return &Processor{Deps: deps, cfg: cfg, logger: logger}
}

func newBackoff() retry.Backoff {
	return retry.WithCappedDuration(backoffCeiling, retry.NewExponential(backoffBase))
}

// Run pops and processes tasks until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	backoff := newBackoff()
	for {
		if ctx.Err() != nil {
			return nil
		}

		task, err := p.Queue.Pop(ctx, p.cfg.Worker.PopTimeout.Duration)
		if err == nil {
			backoff = newBackoff()
			p.Process(ctx, task)
			continue
		}
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		var malformed *queue.MalformedError
		if errors.As(err, &malformed) {
			p.dropMalformed(ctx, malformed)
			continue
		}

		metrics.QueueErrors.Inc()
		wait, _ := backoff.Next()
		p.logger.Error("Failed to pop task",
			zap.Error(err),
			zap.Duration("retry_in", wait),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (p *Processor) dropMalformed(ctx context.Context, malformed *queue.MalformedError) {
	metrics.MalformedTasks.Inc()
	p.logger.Warn("Dropping malformed task",
		zap.String("decision_id", malformed.DecisionID),
		zap.String("payload", models.Truncate(malformed.Payload, 200)),
		zap.Error(malformed.Err),
	)
	if malformed.DecisionID == "" {
		return
	}
	if err := p.sideEffect(ctx, func(ctx context.Context) error {
		return p.Status.Set(ctx, malformed.DecisionID, models.StatusFailed)
	}); err != nil {
		p.logger.Error("Failed to update status", zap.String("decision_id", malformed.DecisionID), zap.Error(err))
	}
}

// Process runs one task end to end. It always persists a record and writes
// a status; only a capture failure marks the task FAILED.
func (p *Processor) Process(ctx context.Context, task *models.AnalysisTask) *models.AnalysisRecord {
	start := time.Now()
	task.Normalize(p.cfg.Worker.DefaultScheme)
	logger := p.logger.With(
		zap.String("decision_id", task.DecisionID),
		zap.String("url", task.URL),
	)

	metrics.TasksActive.Inc()
	defer metrics.TasksActive.Dec()

	rec := &models.AnalysisRecord{
		Timestamp:  start.UTC(),
		DecisionID: task.DecisionID,
		Domain:     task.Domain,
		URL:        task.URL,
	}

	logger.Info("Processing task")
	if err := p.analyze(ctx, task, rec, logger); err != nil {
		rec.ErrorMessage = err.Error()
		rec.Verdict = models.DegradedVerdict(err)
		logger.Error("Capture failed", zap.Error(err))
	}
	rec.ProcessingTimeMS = time.Since(start).Milliseconds()

	p.finish(ctx, rec, logger)
	return rec
}

// analyze returns an error only when capture fails.
func (p *Processor) analyze(ctx context.Context, task *models.AnalysisTask, rec *models.AnalysisRecord, logger *zap.Logger) error {
	stage := time.Now()
	res, err := p.Capturer.Capture(ctx, task.URL)
	metrics.StageDuration.WithLabelValues("capture").Observe(time.Since(stage).Seconds())
	if err != nil {
		metrics.StageFailures.WithLabelValues("capture").Inc()
		return fmt.Errorf("capture %s: %w", task.URL, err)
	}
	if res == nil || res.SnapshotPath == "" {
		metrics.StageFailures.WithLabelValues("capture").Inc()
		return fmt.Errorf("capture %s: no snapshot produced", task.URL)
	}
	rec.SnapshotPath = res.SnapshotPath
	rec.HTML = models.Truncate(res.HTML, p.cfg.Worker.MaxStoredHTML)

	stage = time.Now()
	ocrCtx, cancel := context.WithTimeout(ctx, p.cfg.OCR.Timeout.Duration)
	text, err := ocr.Safe(ocrCtx, p.OCR, res.Image, logger)
	cancel()
	metrics.StageDuration.WithLabelValues("ocr").Observe(time.Since(stage).Seconds())
	if err != nil {
		metrics.StageFailures.WithLabelValues("ocr").Inc()
	}
	rec.OCRText = text

	in := judge.Input{
		URL:       task.URL,
		Domain:    task.Domain,
		HTML:      res.HTML,
		OCRText:   text,
		Image:     res.Image,
		ImageMIME: "image/png",
	}
	if p.Converter != nil && len(res.Image) > 0 {
		img, err := p.Converter.Prepare(res.Image)
		if err != nil {
			logger.Warn("Failed to prepare snapshot for judgment", zap.Error(err))
		} else {
			in.Image, in.ImageMIME = img.Data, img.MIMEType
		}
	}

	stage = time.Now()
	rec.Verdict = p.Judge.Judge(ctx, in)
	metrics.StageDuration.WithLabelValues("judge").Observe(time.Since(stage).Seconds())
	if rec.Verdict.Label == models.LabelError {
		metrics.StageFailures.WithLabelValues("judge").Inc()
	}
	return nil
}

func (p *Processor) finish(ctx context.Context, rec *models.AnalysisRecord, logger *zap.Logger) {
	if err := p.sideEffect(ctx, func(ctx context.Context) error {
		return p.Repo.SaveRecord(ctx, rec)
	}); err != nil {
		metrics.StageFailures.WithLabelValues("store").Inc()
		logger.Error("Failed to save analysis record", zap.Error(err))
	}

	status := rec.Status()
	if err := p.sideEffect(ctx, func(ctx context.Context) error {
		return p.Status.Set(ctx, rec.DecisionID, status)
	}); err != nil {
		metrics.StageFailures.WithLabelValues("status").Inc()
		logger.Error("Failed to update status", zap.Error(err))
	}
	metrics.TasksProcessed.WithLabelValues(string(status)).Inc()

	if rec.Verdict.IsThreat {
		metrics.ThreatsDetected.Inc()
		if err := p.sideEffect(ctx, func(ctx context.Context) error {
			return p.Feedback.Emit(ctx, rec.DecisionID, threatReward, true)
		}); err != nil {
			metrics.FeedbackEmitted.WithLabelValues("failed").Inc()
			logger.Warn("Failed to emit feedback", zap.Error(err))
		} else {
			metrics.FeedbackEmitted.WithLabelValues("ok").Inc()
		}
	}

	logger.Info("Task processed",
		zap.String("status", string(status)),
		zap.Bool("is_threat", rec.Verdict.IsThreat),
		zap.Float64("confidence", rec.Verdict.Confidence),
		zap.Int64("processing_time_ms", rec.ProcessingTimeMS),
	)
}

// sideEffect runs fn detached from ctx cancellation with its own deadline,
// so a shutdown mid-task still leaves the record and status behind.
func (p *Processor) sideEffect(ctx context.Context, fn func(context.Context) error) error {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.Worker.SideEffectWait.Duration)
	defer cancel()
	return fn(sctx)
}
