package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quantfuse/quantfuse/internal/engine"
	"github.com/quantfuse/quantfuse/internal/market"
	"github.com/quantfuse/quantfuse/internal/metrics"
	"github.com/quantfuse/quantfuse/internal/optimize"
	"github.com/quantfuse/quantfuse/internal/signal"
	"github.com/quantfuse/quantfuse/internal/strategy"
	"github.com/quantfuse/quantfuse/internal/validate"
)

// Config bundles the component configs plus the rolling-window settings used
// to derive strategy contexts.
type Config struct {
	Engine    engine.Config   `yaml:"engine"`
	Metrics   metrics.Config  `yaml:"metrics"`
	Validator validate.Config `yaml:"validator"`
	Optimizer optimize.Config `yaml:"optimizer"`

	InitialCapital float64 `yaml:"initial_capital"`

	CorrelationWindow   int `yaml:"correlation_window"`
	CorrelationLookback int `yaml:"correlation_lookback"`
	ATRWindow           int `yaml:"atr_window"`
	MacroLookback       int `yaml:"macro_lookback"`
}

// DefaultConfig returns the standard window settings.
func DefaultConfig() Config {
	return Config{
		Engine:              engine.DefaultConfig(),
		Metrics:             metrics.DefaultConfig(),
		Validator:           validate.DefaultConfig(),
		Optimizer:           optimize.DefaultConfig(),
		InitialCapital:      100_000,
		CorrelationWindow:   30,
		CorrelationLookback: 90,
		ATRWindow:           14,
		MacroLookback:       60,
	}
}

// Validate checks window bounds.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive, got %.2f", c.InitialCapital)
	}
	if c.CorrelationWindow < 2 || c.CorrelationLookback < 2 || c.ATRWindow < 1 || c.MacroLookback < 2 {
		return fmt.Errorf("rolling windows too small")
	}
	return c.Engine.Validate()
}

// BacktestResult is the composite outcome of one run.
type BacktestResult struct {
	RunID       string                    `json:"run_id"`
	Strategy    string                    `json:"strategy"`
	StartedAt   time.Time                 `json:"started_at"`
	Ledger      *engine.Ledger            `json:"ledger"`
	Curve       *engine.EquityCurve       `json:"equity_curve"`
	Metrics     metrics.Snapshot          `json:"metrics"`
	Attribution metrics.AttributionReport `json:"attribution"`
}

// GenerateSignals evaluates the strategy at every timestamp and assembles
// the canonical signal series consumed by the engine. Timestamps the
// strategy declines (missing inputs, unfilled windows) become HOLD records.
func GenerateSignals(strat strategy.Strategy, data *Data, cfg Config) (*signal.Series, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	contexts := buildContexts(data, cfg)
	records := make([]signal.Record, len(contexts))
	for i, sctx := range contexts {
		if rec, ok := strat.Evaluate(sctx); ok {
			records[i] = *rec
			records[i].Timestamp = sctx.Timestamp
		} else {
			records[i] = signal.Record{Timestamp: sctx.Timestamp, Direction: signal.Hold, Source: signal.SourceCombined}
		}
	}
	return &signal.Series{Records: records}, nil
}

// RunBacktest executes adapter → engine → metrics → attribution for one
// strategy over one data set.
func RunBacktest(ctx context.Context, strat strategy.Strategy, data *Data, cfg Config) (*BacktestResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	signals, err := GenerateSignals(strat, data, cfg)
	if err != nil {
		return nil, fmt.Errorf("generate signals: %w", err)
	}

	eng, err := engine.New(cfg.Engine)
	if err != nil {
		return nil, err
	}
	ledger, curve, err := eng.Run(data.Prices, signals, cfg.InitialCapital)
	if err != nil {
		return nil, fmt.Errorf("backtest run: %w", err)
	}

	extractor := metrics.NewExtractor(cfg.Metrics)
	analyzer := metrics.NewAnalyzer(cfg.Metrics)

	result := &BacktestResult{
		RunID:       uuid.NewString(),
		Strategy:    strat.Name(),
		StartedAt:   time.Now().UTC(),
		Ledger:      ledger,
		Curve:       curve,
		Metrics:     extractor.Extract(curve, ledger),
		Attribution: analyzer.Analyze(ledger),
	}

	log.Info().
		Str("run_id", result.RunID).
		Str("strategy", result.Strategy).
		Int("trades", len(ledger.Trades)).
		Float64("total_return", result.Metrics.Performance.TotalReturn).
		Float64("sharpe", result.Metrics.Performance.Sharpe).
		Msg("backtest complete")
	return result, nil
}

// RunValidation splits the data chronologically, runs the strategy on both
// sides, and produces the validation report.
func RunValidation(ctx context.Context, strat strategy.Strategy, data *Data, cfg Config) (*validate.Report, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	validator, err := validate.New(cfg.Validator)
	if err != nil {
		return nil, err
	}

	cut := int(float64(data.Prices.Len()) * cfg.Validator.TrainRatio)
	train := data.Slice(0, cut)
	test := data.Slice(cut, data.Prices.Len())
	if train.Prices.Len() < 2 || test.Prices.Len() < 2 {
		return nil, fmt.Errorf("%w: %d bars cannot split at ratio %.2f",
			market.ErrInsufficientData, data.Prices.Len(), cfg.Validator.TrainRatio)
	}

	trainRes, err := RunBacktest(ctx, strat, train, cfg)
	if err != nil {
		return nil, fmt.Errorf("train run: %w", err)
	}
	testRes, err := RunBacktest(ctx, strat, test, cfg)
	if err != nil {
		return nil, fmt.Errorf("test run: %w", err)
	}

	return validator.Validate(trainRes.Metrics, testRes.Metrics, testRes.Ledger.Trades, testRes.Curve), nil
}

// RunWalkForward runs the walk-forward validation mode. The factory supplies
// a fresh strategy per window so no evaluation state leaks across windows.
func RunWalkForward(ctx context.Context, factory func() (strategy.Strategy, error), data *Data, cfg Config, wf validate.WalkForwardConfig) (*validate.WalkForwardResult, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	validator, err := validate.New(cfg.Validator)
	if err != nil {
		return nil, err
	}

	// Map window sub-series back to aligned aux-data ranges by timestamp.
	indexOf := make(map[time.Time]int, data.Prices.Len())
	for i, b := range data.Prices.Bars {
		indexOf[b.Timestamp] = i
	}

	run := func(train, test *market.Series) (metrics.Snapshot, metrics.Snapshot, []engine.Trade, *engine.EquityCurve, error) {
		strat, err := factory()
		if err != nil {
			return metrics.Snapshot{}, metrics.Snapshot{}, nil, nil, err
		}
		trainStart := indexOf[train.Bars[0].Timestamp]
		testStart := indexOf[test.Bars[0].Timestamp]
		trainData := data.Slice(trainStart, trainStart+train.Len())
		testData := data.Slice(testStart, testStart+test.Len())

		trainRes, err := RunBacktest(ctx, strat, trainData, cfg)
		if err != nil {
			return metrics.Snapshot{}, metrics.Snapshot{}, nil, nil, err
		}
		testRes, err := RunBacktest(ctx, strat, testData, cfg)
		if err != nil {
			return metrics.Snapshot{}, metrics.Snapshot{}, nil, nil, err
		}
		return trainRes.Metrics, testRes.Metrics, testRes.Ledger.Trades, testRes.Curve, nil
	}

	return validator.WalkForward(ctx, data.Prices, wf, run)
}

// StrategyFactory builds a strategy from one optimizer parameter
// combination.
type StrategyFactory func(params map[string]float64) (strategy.Strategy, error)

// RunOptimization drives the backtest pipeline across a parameter grid. Each
// evaluation owns an independent engine instance; the shared inputs are
// read-only and the result cache handles concurrent insert-if-absent.
func RunOptimization(ctx context.Context, factory StrategyFactory, grid *optimize.Grid, data *Data, cfg Config, cache optimize.ResultCache) (*optimize.Report, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	opt := optimize.New(cfg.Optimizer, cache)
	fingerprint := optimize.Fingerprint(data.Prices)

	fn := func(runCtx context.Context, params map[string]float64) (*metrics.Snapshot, error) {
		strat, err := factory(params)
		if err != nil {
			return nil, err
		}
		res, err := RunBacktest(runCtx, strat, data, cfg)
		if err != nil {
			return nil, err
		}
		return &res.Metrics, nil
	}

	return opt.Search(ctx, grid, fingerprint, fn)
}
