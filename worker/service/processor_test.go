package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"threatAnalyzer/worker/cache"
	"threatAnalyzer/worker/config"
	"threatAnalyzer/worker/converter"
	"threatAnalyzer/worker/judge"
	"threatAnalyzer/worker/models"
	"threatAnalyzer/worker/queue"
	"threatAnalyzer/worker/repository"
)

func testPNG(t *testing.T) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for x := 0; x < 40; x++ {
		for y := 0; y < 30; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

type fakeCapturer struct {
	mu    sync.Mutex
	calls int
	urls  []string
	res   *models.CaptureResult
	err   error
}

func (f *fakeCapturer) Capture(ctx context.Context, url string) (*models.CaptureResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type fakeOCR struct {
	calls int
	text  string
	err   error
}

func (f *fakeOCR) Extract(ctx context.Context, image []byte) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeJudge struct {
	calls   int
	verdict models.Verdict
	last    judge.Input
}

func (f *fakeJudge) Judge(ctx context.Context, in judge.Input) models.Verdict {
	f.calls++
	f.last = in
	return f.verdict
}

type fakeRepo struct {
	mu      sync.Mutex
	records []models.AnalysisRecord
	err     error
}

func (f *fakeRepo) SaveRecord(ctx context.Context, rec *models.AnalysisRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeRepo) Close() error { return nil }

type fakeStatus struct {
	mu     sync.Mutex
	status map[string]models.TaskStatus
	err    error
}

func (f *fakeStatus) Set(ctx context.Context, decisionID string, status models.TaskStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.status == nil {
		f.status = make(map[string]models.TaskStatus)
	}
	f.status[decisionID] = status
	return nil
}

func (f *fakeStatus) get(decisionID string) models.TaskStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status[decisionID]
}

type feedbackCall struct {
	decisionID string
	reward     float64
	isThreat   bool
}

type fakeFeedback struct {
	mu    sync.Mutex
	calls []feedbackCall
	err   error
}

func (f *fakeFeedback) Emit(ctx context.Context, decisionID string, reward float64, isThreat bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, feedbackCall{decisionID, reward, isThreat})
	return f.err
}

func (f *fakeFeedback) Close() error { return nil }

type fixture struct {
	capturer *fakeCapturer
	ocr      *fakeOCR
	judge    *fakeJudge
	repo     *fakeRepo
	status   *fakeStatus
	feedback *fakeFeedback
	cfg      *config.Config
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		capturer: &fakeCapturer{res: &models.CaptureResult{
			SnapshotPath: "screenshots/example_com_20261015_120000.png",
			HTML:         "<html><title>Sign in</title><form><input type=\"password\"></form></html>",
			Image:        testPNG(t),
		}},
		ocr: &fakeOCR{text: "Login\nVerify Account"},
		judge: &fakeJudge{verdict: models.Verdict{
			Summary:    "credential harvesting form",
			Label:      models.LabelMalicious,
			Confidence: 0.9,
			IsThreat:   true,
			Categories: []string{"phishing"},
		}},
		repo:     &fakeRepo{},
		status:   &fakeStatus{},
		feedback: &fakeFeedback{},
		cfg:      config.Default(),
	}
}

func (f *fixture) processor(t *testing.T, q queue.Consumer) *Processor {
	return NewProcessor(Deps{
		Queue:     q,
		Capturer:  f.capturer,
		Converter: converter.NewConverter(zaptest.NewLogger(t), 20, 0),
		OCR:       f.ocr,
		Judge:     f.judge,
		Repo:      f.repo,
		Status:    f.status,
		Feedback:  f.feedback,
	}, f.cfg, zaptest.NewLogger(t))
}

func TestProcess_EndToEndThreat(t *testing.T) {
	f := newFixture(t)
	p := f.processor(t, nil)

	rec := p.Process(context.Background(), &models.AnalysisTask{DecisionID: "d1", Domain: "Example.com"})

	if f.capturer.urls[0] != "https://example.com" {
		t.Errorf("Expected default URL, got %s", f.capturer.urls[0])
	}
	if len(f.repo.records) != 1 {
		t.Fatalf("Expected one record, got %d", len(f.repo.records))
	}
	saved := f.repo.records[0]
	if saved.DecisionID != "d1" || saved.ErrorMessage != "" || !saved.Verdict.IsThreat {
		t.Errorf("Unexpected record %+v", saved)
	}
	if saved.OCRText != "Login\nVerify Account" {
		t.Errorf("Expected OCR text in record, got %q", saved.OCRText)
	}
	if rec.ProcessingTimeMS < 0 {
		t.Errorf("Expected non-negative processing time, got %d", rec.ProcessingTimeMS)
	}
	if got := f.status.get("d1"); got != models.StatusCompleted {
		t.Errorf("Expected COMPLETED, got %s", got)
	}
	if len(f.feedback.calls) != 1 {
		t.Fatalf("Expected exactly one feedback emission, got %d", len(f.feedback.calls))
	}
	if c := f.feedback.calls[0]; c.decisionID != "d1" || c.reward != 1.0 || !c.isThreat {
		t.Errorf("Unexpected feedback %+v", c)
	}
}

func TestProcess_JudgeGetsPreparedImage(t *testing.T) {
	f := newFixture(t)
	p := f.processor(t, nil)

	p.Process(context.Background(), &models.AnalysisTask{DecisionID: "d1", Domain: "example.com"})

	if f.judge.last.ImageMIME != "image/png" || len(f.judge.last.Image) == 0 {
		t.Fatalf("Expected PNG image passed to judge, got %q", f.judge.last.ImageMIME)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(f.judge.last.Image))
	if err != nil {
		t.Fatalf("Failed to decode judged image: %v", err)
	}
	if cfg.Width != 20 {
		t.Errorf("Expected image downscaled to 20px wide, got %d", cfg.Width)
	}
	if f.judge.last.OCRText != "Login\nVerify Account" {
		t.Errorf("Expected OCR text in judgment input, got %q", f.judge.last.OCRText)
	}
}

func TestProcess_CaptureFailureSkipsStages(t *testing.T) {
	f := newFixture(t)
	f.capturer.err = context.DeadlineExceeded
	p := f.processor(t, nil)

	rec := p.Process(context.Background(), &models.AnalysisTask{DecisionID: "d2", Domain: "slow.example"})

	if f.ocr.calls != 0 || f.judge.calls != 0 {
		t.Errorf("Expected OCR and judge not invoked, got %d/%d calls", f.ocr.calls, f.judge.calls)
	}
	if rec.SnapshotPath != "" {
		t.Errorf("Expected empty snapshot path, got %s", rec.SnapshotPath)
	}
	if rec.ErrorMessage == "" {
		t.Error("Expected error message on capture failure")
	}
	if len(f.repo.records) != 1 {
		t.Errorf("Expected record persisted on failure, got %d", len(f.repo.records))
	}
	if got := f.status.get("d2"); got != models.StatusFailed {
		t.Errorf("Expected FAILED, got %s", got)
	}
	if len(f.feedback.calls) != 0 {
		t.Errorf("Expected no feedback, got %d", len(f.feedback.calls))
	}
}

func TestProcess_OCRFailureDegrades(t *testing.T) {
	f := newFixture(t)
	f.ocr.err = errors.New("tesseract crashed")
	p := f.processor(t, nil)

	rec := p.Process(context.Background(), &models.AnalysisTask{DecisionID: "d3", Domain: "example.com"})

	if f.judge.calls != 1 {
		t.Errorf("Expected judge to run once, got %d", f.judge.calls)
	}
	if rec.ErrorMessage != "" {
		t.Errorf("Expected empty error message, got %q", rec.ErrorMessage)
	}
	if rec.OCRText != "" {
		t.Errorf("Expected empty OCR text, got %q", rec.OCRText)
	}
	if got := f.status.get("d3"); got != models.StatusCompleted {
		t.Errorf("Expected COMPLETED, got %s", got)
	}
}

func TestProcess_SafeVerdictNoFeedback(t *testing.T) {
	f := newFixture(t)
	f.judge.verdict = models.Verdict{Summary: "ordinary page", Label: models.LabelSafe, Confidence: 0.95}
	p := f.processor(t, nil)

	p.Process(context.Background(), &models.AnalysisTask{DecisionID: "d4", Domain: "example.com"})

	if len(f.feedback.calls) != 0 {
		t.Errorf("Expected no feedback for safe verdict, got %d", len(f.feedback.calls))
	}
}

func TestProcess_SideEffectFailuresDoNotFailTask(t *testing.T) {
	f := newFixture(t)
	f.repo.err = errors.New("clickhouse down")
	f.feedback.err = errors.New("engine down")
	p := f.processor(t, nil)

	rec := p.Process(context.Background(), &models.AnalysisTask{DecisionID: "d5", Domain: "example.com"})

	if rec.ErrorMessage != "" {
		t.Errorf("Expected no error message, got %q", rec.ErrorMessage)
	}
	if got := f.status.get("d5"); got != models.StatusCompleted {
		t.Errorf("Expected status written despite store failure, got %s", got)
	}
	if len(f.feedback.calls) != 1 {
		t.Errorf("Expected one feedback attempt, got %d", len(f.feedback.calls))
	}
}

func TestProcess_CancelledContextStillPersists(t *testing.T) {
	f := newFixture(t)
	f.capturer.err = context.Canceled
	p := f.processor(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Process(ctx, &models.AnalysisTask{DecisionID: "d6", Domain: "example.com"})

	if len(f.repo.records) != 1 {
		t.Errorf("Expected record persisted after cancellation, got %d", len(f.repo.records))
	}
	if got := f.status.get("d6"); got != models.StatusFailed {
		t.Errorf("Expected FAILED, got %s", got)
	}
}

func TestProcess_DuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	repo, err := repository.NewSQLiteRepo(context.Background(), filepath.Join(t.TempDir(), "analyzer.db"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewSQLiteRepo failed: %v", err)
	}
	defer repo.Close()

	p := NewProcessor(Deps{
		Capturer: f.capturer,
		OCR:      f.ocr,
		Judge:    f.judge,
		Repo:     repo,
		Status:   cache.NewStatusCache(client, time.Hour),
		Feedback: f.feedback,
	}, f.cfg, zaptest.NewLogger(t))

	task := func() *models.AnalysisTask { return &models.AnalysisTask{DecisionID: "d7", Domain: "example.com"} }
	p.Process(context.Background(), task())
	p.Process(context.Background(), task())

	records, err := repo.ListByDecisionID(context.Background(), "d7")
	if err != nil {
		t.Fatalf("ListByDecisionID failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Expected two records for duplicate delivery, got %d", len(records))
	}
	got, err := mr.Get(cache.StatusKey("d7"))
	if err != nil {
		t.Fatalf("Status missing: %v", err)
	}
	if got != string(models.StatusCompleted) {
		t.Errorf("Expected COMPLETED, got %s", got)
	}
}

// scriptedQueue replays results, then blocks until cancelled.
type scriptedQueue struct {
	mu      sync.Mutex
	results []popResult
	done    chan struct{}
}

type popResult struct {
	task *models.AnalysisTask
	err  error
}

func (q *scriptedQueue) Pop(ctx context.Context, timeout time.Duration) (*models.AnalysisTask, error) {
	q.mu.Lock()
	if len(q.results) > 0 {
		r := q.results[0]
		q.results = q.results[1:]
		q.mu.Unlock()
		return r.task, r.err
	}
	q.mu.Unlock()

	select {
	case q.done <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRun_ProcessesAndSurvivesQueueErrors(t *testing.T) {
	f := newFixture(t)
	q := &scriptedQueue{
		done: make(chan struct{}, 1),
		results: []popResult{
			{err: queue.ErrEmpty},
			{err: errors.New("connection reset")},
			{err: &queue.MalformedError{Payload: `{"decision_id":"bad"}`, DecisionID: "bad", Err: models.ErrMissingDomain}},
			{err: &queue.MalformedError{Payload: `not json`, Err: errors.New("invalid character")}},
			{task: &models.AnalysisTask{DecisionID: "d8", Domain: "example.com"}},
		},
	}
	p := f.processor(t, q)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	select {
	case <-q.done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for queue to drain")
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Expected nil on cancellation, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if got := f.status.get("bad"); got != models.StatusFailed {
		t.Errorf("Expected FAILED for malformed task with id, got %s", got)
	}
	if got := f.status.get("d8"); got != models.StatusCompleted {
		t.Errorf("Expected COMPLETED for d8, got %s", got)
	}
	if f.capturer.calls != 1 {
		t.Errorf("Expected one capture, got %d", f.capturer.calls)
	}
}

func TestProcess_WithJudgeClientFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"This page is malicious, confidence 0.87."}}]}`))
	}))
	defer srv.Close()

	f := newFixture(t)
	f.cfg.VLM.Endpoint = srv.URL
	p := f.processor(t, nil)
	p.Judge = judge.NewClient(f.cfg.VLM, zaptest.NewLogger(t))

	rec := p.Process(context.Background(), &models.AnalysisTask{DecisionID: "d9", Domain: "example.com"})

	if rec.Verdict.Label != models.LabelMalicious || rec.Verdict.Confidence != 0.87 {
		t.Errorf("Expected malicious/0.87, got %+v", rec.Verdict)
	}
	if len(f.feedback.calls) != 1 {
		t.Errorf("Expected one feedback emission, got %d", len(f.feedback.calls))
	}
}
