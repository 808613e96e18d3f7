package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"threatAnalyzer/worker/config"
	"threatAnalyzer/worker/models"
)

func newTestSQLite(t *testing.T) *SQLiteRepo {
	repo, err := NewSQLiteRepo(context.Background(), filepath.Join(t.TempDir(), "analyzer.db"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewSQLiteRepo failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleRecord(decisionID string) *models.AnalysisRecord {
	return &models.AnalysisRecord{
		Timestamp:    time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
		DecisionID:   decisionID,
		Domain:       "example.com",
		URL:          "https://example.com",
		SnapshotPath: "screenshots/example_com_20261015_120000.png",
		HTML:         "<html></html>",
		OCRText:      "Login Verify Account",
		Verdict: models.Verdict{
			Summary:    "credential harvesting form",
			Label:      models.LabelMalicious,
			Confidence: 0.9,
			IsThreat:   true,
			Categories: []string{"phishing"},
		},
		ProcessingTimeMS: 1234,
	}
}

func TestSQLiteRepo_SaveAndList(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	if err := repo.SaveRecord(ctx, sampleRecord("d1")); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	records, err := repo.ListByDecisionID(ctx, "d1")
	if err != nil {
		t.Fatalf("ListByDecisionID failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	got := records[0]
	if !got.Verdict.IsThreat || got.Verdict.Confidence != 0.9 {
		t.Errorf("Unexpected verdict %+v", got.Verdict)
	}
	if len(got.Verdict.Categories) != 1 || got.Verdict.Categories[0] != "phishing" {
		t.Errorf("Expected phishing category, got %v", got.Verdict.Categories)
	}
	if len(got.Verdict.Indicators) != 0 {
		t.Errorf("Expected no indicators, got %v", got.Verdict.Indicators)
	}
	if got.ProcessingTimeMS != 1234 {
		t.Errorf("Expected 1234ms, got %d", got.ProcessingTimeMS)
	}
	if !got.Timestamp.Equal(time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected timestamp %s", got.Timestamp)
	}
}

func TestSQLiteRepo_DuplicateDeliveryAppends(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	first := sampleRecord("dup")
	second := sampleRecord("dup")
	second.ProcessingTimeMS = 99

	if err := repo.SaveRecord(ctx, first); err != nil {
		t.Fatalf("first SaveRecord failed: %v", err)
	}
	if err := repo.SaveRecord(ctx, second); err != nil {
		t.Fatalf("second SaveRecord failed: %v", err)
	}

	records, err := repo.ListByDecisionID(ctx, "dup")
	if err != nil {
		t.Fatalf("ListByDecisionID failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 independent records, got %d", len(records))
	}
	if records[1].ProcessingTimeMS != 99 {
		t.Errorf("Expected records in insertion order, got %d", records[1].ProcessingTimeMS)
	}
}

func TestSQLiteRepo_ReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analyzer.db")
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	repo, err := NewSQLiteRepo(ctx, path, logger)
	if err != nil {
		t.Fatalf("NewSQLiteRepo failed: %v", err)
	}
	if err := repo.SaveRecord(ctx, sampleRecord("d1")); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}
	repo.Close()

	repo, err = NewSQLiteRepo(ctx, path, logger)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer repo.Close()

	records, err := repo.ListByDecisionID(ctx, "d1")
	if err != nil {
		t.Fatalf("ListByDecisionID failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected record to survive reopen, got %d", len(records))
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StorageConfig{Driver: "mongo"}, zaptest.NewLogger(t))
	if !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("Expected ErrUnknownDriver, got %v", err)
	}
}

func TestOpen_SQLite(t *testing.T) {
	cfg := config.StorageConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "open.db")},
	}
	repo, err := Open(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer repo.Close()

	if _, ok := repo.(RecordLister); !ok {
		t.Error("Expected sqlite repository to support listing")
	}
}
