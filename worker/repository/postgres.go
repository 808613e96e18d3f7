package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"threatAnalyzer/worker/config"
	"threatAnalyzer/worker/models"
)

type PostgresRepo struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresRepo(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*PostgresRepo, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	repo := &PostgresRepo{db: pool, logger: logger}
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *PostgresRepo) Migrate(ctx context.Context) error {
	sqlDB := stdlib.OpenDBFromPool(r.db)
	defer sqlDB.Close()
	return migrate(ctx, sqlDB, goose.DialectPostgres, "migrations/postgres", r.logger)
}

func (r *PostgresRepo) SaveRecord(ctx context.Context, rec *models.AnalysisRecord) error {
	query := `
		INSERT INTO analysis_records (
			created_at, decision_id, domain, url, snapshot_path, html_content, ocr_text,
			vlm_verdict, vlm_label, vlm_confidence, is_threat, threat_categories,
			indicators, risk_level, processing_time_ms, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.db.Exec(ctx, query,
		rec.Timestamp,
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
		nonNil(rec.Verdict.Categories),
		nonNil(rec.Verdict.Indicators),
		rec.Verdict.RiskLevel,
		rec.ProcessingTimeMS,
		rec.ErrorMessage,
	)
	return err
}

func (r *PostgresRepo) ListByDecisionID(ctx context.Context, decisionID string) ([]models.AnalysisRecord, error) {
	query := `
		SELECT created_at, decision_id, domain, url, snapshot_path, html_content, ocr_text,
			vlm_verdict, vlm_label, vlm_confidence, is_threat, threat_categories,
			indicators, risk_level, processing_time_ms, error_message
		FROM analysis_records
		WHERE decision_id = $1
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, decisionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AnalysisRecord
	for rows.Next() {
		var rec models.AnalysisRecord
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
			&rec.Verdict.Categories,
			&rec.Verdict.Indicators,
			&rec.Verdict.RiskLevel,
			&rec.ProcessingTimeMS,
			&rec.ErrorMessage,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Close() error {
	r.db.Close()
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
