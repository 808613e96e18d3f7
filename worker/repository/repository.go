package repository

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"threatAnalyzer/worker/config"
	"threatAnalyzer/worker/models"
)

var ErrUnknownDriver = errors.New("unknown storage driver")

// Repository is the append-only result store. Every row carries the
// decision id, duplicates are expected under at-least-once delivery.
type Repository interface {
	SaveRecord(ctx context.Context, rec *models.AnalysisRecord) error
	Close() error
}

// RecordLister is implemented by backends that can read records back.
type RecordLister interface {
	ListByDecisionID(ctx context.Context, decisionID string) ([]models.AnalysisRecord, error)
}

func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Repository, error) {
	switch cfg.Driver {
	case "clickhouse":
		return NewClickHouseRepo(ctx, cfg.ClickHouse, logger)
	case "postgres":
		return NewPostgresRepo(ctx, cfg.Postgres, logger)
	case "sqlite":
		return NewSQLiteRepo(ctx, cfg.SQLite.Path, logger)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}
