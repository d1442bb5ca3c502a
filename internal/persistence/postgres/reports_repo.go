package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/quantfuse/quantfuse/internal/optimize"
	"github.com/quantfuse/quantfuse/internal/persistence"
	"github.com/quantfuse/quantfuse/internal/pipeline"
	"github.com/quantfuse/quantfuse/internal/validate"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	strategy   TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS runs_kind_created_idx ON runs (kind, created_at DESC);
`

// Store implements persistence.ReportStore on PostgreSQL. Reports are stored
// as JSONB payloads keyed by run id.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Connect opens the database, verifies connectivity, and ensures the schema.
func Connect(ctx context.Context, dsn string, maxOpenConns int, timeout time.Duration) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := db.ExecContext(pingCtx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	log.Debug().Int("max_open_conns", maxOpenConns).Msg("report store connected")
	return &Store{db: db, timeout: timeout}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) insert(ctx context.Context, runID string, kind persistence.RunKind, strategy, symbol string, payload interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s report: %w", kind, err)
	}

	query := `
		INSERT INTO runs (run_id, kind, strategy, symbol, payload)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.ExecContext(ctx, query, runID, kind, strategy, symbol, body); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate run %s: %w", runID, err)
		}
		return fmt.Errorf("failed to insert %s report: %w", kind, err)
	}
	return nil
}

// SaveBacktest persists a full backtest result.
func (s *Store) SaveBacktest(ctx context.Context, symbol string, result *pipeline.BacktestResult) error {
	return s.insert(ctx, result.RunID, persistence.KindBacktest, result.Strategy, symbol, result)
}

// SaveOptimization persists a grid-search report.
func (s *Store) SaveOptimization(ctx context.Context, runID, strategy, symbol string, report *optimize.Report) error {
	return s.insert(ctx, runID, persistence.KindOptimization, strategy, symbol, report)
}

// SaveValidation persists a validation report.
func (s *Store) SaveValidation(ctx context.Context, strategy, symbol string, report *validate.Report) error {
	return s.insert(ctx, report.RunID, persistence.KindValidation, strategy, symbol, report)
}

// ListRuns returns the most recent runs of one kind.
func (s *Store) ListRuns(ctx context.Context, kind persistence.RunKind, limit int) ([]persistence.RunSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT run_id, kind, strategy, symbol, created_at
		FROM runs
		WHERE kind = $1
		ORDER BY created_at DESC
		LIMIT $2`
	var rows []persistence.RunSummary
	if err := s.db.SelectContext(ctx, &rows, query, kind, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return rows, nil
}

// GetBacktest loads one stored backtest result by run id.
func (s *Store) GetBacktest(ctx context.Context, runID string) (*pipeline.BacktestResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var payload []byte
	query := `SELECT payload FROM runs WHERE run_id = $1 AND kind = $2`
	err := s.db.GetContext(ctx, &payload, query, runID, persistence.KindBacktest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	var result pipeline.BacktestResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", runID, err)
	}
	return &result, nil
}
