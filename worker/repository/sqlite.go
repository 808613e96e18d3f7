package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"threatAnalyzer/worker/models"
)

// SQLiteRepo stores records in a local file, for single node runs.
type SQLiteRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteRepo(ctx context.Context, path string, logger *zap.Logger) (*SQLiteRepo, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrate(ctx, db, goose.DialectSQLite3, "migrations/sqlite", logger); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteRepo{db: db, logger: logger}, nil
}

func (r *SQLiteRepo) SaveRecord(ctx context.Context, rec *models.AnalysisRecord) error {
	categories, err := json.Marshal(nonNil(rec.Verdict.Categories))
	if err != nil {
		return err
	}
	indicators, err := json.Marshal(nonNil(rec.Verdict.Indicators))
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO analysis_records (
			created_at, decision_id, domain, url, snapshot_path, html_content, ocr_text,
			vlm_verdict, vlm_label, vlm_confidence, is_threat, threat_categories,
			indicators, risk_level, processing_time_ms, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC(),
		rec.DecisionID,
		rec.Domain,
		rec.URL,
		rec.SnapshotPath,
		rec.HTML,
		rec.OCRText,
		rec.Verdict.Summary,
		rec.Verdict.Label,
		rec.Verdict.Confidence,
		rec.Verdict.IsThreat,
		string(categories),
		string(indicators),
		rec.Verdict.RiskLevel,
		rec.ProcessingTimeMS,
		rec.ErrorMessage,
	)
	return err
}

func (r *SQLiteRepo) ListByDecisionID(ctx context.Context, decisionID string) ([]models.AnalysisRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT created_at, decision_id, domain, url, snapshot_path, html_content, ocr_text,
			vlm_verdict, vlm_label, vlm_confidence, is_threat, threat_categories,
			indicators, risk_level, processing_time_ms, error_message
		FROM analysis_records
		WHERE decision_id = ?
		ORDER BY id`, decisionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AnalysisRecord
	for rows.Next() {
		var (
			rec        models.AnalysisRecord
			categories string
			indicators string
		)
		if err := rows.Scan(
			&rec.Timestamp,
			&rec.DecisionID,
			&rec.Domain,
			&rec.URL,
			&rec.SnapshotPath,
			&rec.HTML,
			&rec.OCRText,
			&rec.Verdict.Summary,
			&rec.Verdict.Label,
			&rec.Verdict.Confidence,
			&rec.Verdict.IsThreat,
			&categories,
			&indicators,
			&rec.Verdict.RiskLevel,
			&rec.ProcessingTimeMS,
			&rec.ErrorMessage,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(categories), &rec.Verdict.Categories); err != nil {
			return nil, fmt.Errorf("decode categories: %w", err)
		}
		if err := json.Unmarshal([]byte(indicators), &rec.Verdict.Indicators); err != nil {
			return nil, fmt.Errorf("decode indicators: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}
