package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/quantfuse/quantfuse/internal/optimize"
	"github.com/quantfuse/quantfuse/internal/pipeline"
	"github.com/quantfuse/quantfuse/internal/validate"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunKind distinguishes stored report types.
type RunKind string

const (
	KindBacktest     RunKind = "backtest"
	KindOptimization RunKind = "optimization"
	KindValidation   RunKind = "validation"
)

// RunSummary is the listing row for a stored run.
type RunSummary struct {
	RunID     string    `db:"run_id" json:"run_id"`
	Kind      RunKind   `db:"kind" json:"kind"`
	Strategy  string    `db:"strategy" json:"strategy"`
	Symbol    string    `db:"symbol" json:"symbol"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ReportStore persists run reports for later comparison.
type ReportStore interface {
	SaveBacktest(ctx context.Context, symbol string, result *pipeline.BacktestResult) error
	SaveOptimization(ctx context.Context, runID, strategy, symbol string, report *optimize.Report) error
	SaveValidation(ctx context.Context, strategy, symbol string, report *validate.Report) error
	ListRuns(ctx context.Context, kind RunKind, limit int) ([]RunSummary, error)
	GetBacktest(ctx context.Context, runID string) (*pipeline.BacktestResult, error)
	Close() error
}
