package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"threatAnalyzer/worker/config"
	"threatAnalyzer/worker/models"
)

// ClickHouseRepo appends analysis rows to the analyzer table of the column store.
type ClickHouseRepo struct {
	conn   driver.Conn
	table  string
	logger *zap.Logger
}

func NewClickHouseRepo(ctx context.Context, cfg config.ClickHouseConfig, logger *zap.Logger) (*ClickHouseRepo, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout:     5 * time.Second,
		MaxOpenConns:    4,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	repo := &ClickHouseRepo{conn: conn, table: cfg.Table, logger: logger}
	if err := repo.EnsureSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return repo, nil
}

func (r *ClickHouseRepo) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			timestamp          DateTime64(3),
			decision_id        String,
			domain             String,
			url                String,
			screenshot_path    String,
			html_content       String,
			ocr_text           String,
			vlm_verdict        String,
			vlm_label          LowCardinality(String),
			vlm_confidence     Float32,
			is_threat          Bool,
			threat_categories  Array(String),
			indicators         Array(String),
			risk_level         LowCardinality(String),
			processing_time_ms UInt32,
			error_message      String
		) ENGINE = MergeTree
		ORDER BY (timestamp, decision_id)`, r.table)

	if err := r.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", r.table, err)
	}
	return nil
}

func (r *ClickHouseRepo) SaveRecord(ctx context.Context, rec *models.AnalysisRecord) error {
	batch, err := r.conn.PrepareBatch(ctx, "INSERT INTO "+r.table)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	if err := batch.Append(
		rec.Timestamp,
		rec.DecisionID,
		rec.Domain,
		rec.URL,
		rec.SnapshotPath,
		rec.HTML,
		rec.OCRText,
		rec.Verdict.Summary,
		rec.Verdict.Label,
		float32(rec.Verdict.Confidence),
		rec.Verdict.IsThreat,
		nonNil(rec.Verdict.Categories),
		nonNil(rec.Verdict.Indicators),
		rec.Verdict.RiskLevel,
		clampUint32(rec.ProcessingTimeMS),
		rec.ErrorMessage,
	); err != nil {
		batch.Abort()
		return fmt.Errorf("append row: %w", err)
	}
	return batch.Send()
}

func (r *ClickHouseRepo) Close() error {
	return r.conn.Close()
}

func clampUint32(v int64) uint32 {
	if v < 0 {
		return 0
	}
	if v > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(v)
}
