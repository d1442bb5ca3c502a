package validate

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/quantfuse/quantfuse/internal/engine"
	"github.com/quantfuse/quantfuse/internal/market"
	"github.com/quantfuse/quantfuse/internal/metrics"
)

// WalkForwardConfig controls the rolling re-split mode.
type WalkForwardConfig struct {
	Windows    int     `yaml:"windows" json:"windows"`
	TrainRatio float64 `yaml:"train_ratio" json:"train_ratio"`
}

// DefaultWalkForwardConfig uses four windows with the standard split.
func DefaultWalkForwardConfig() WalkForwardConfig {
	return WalkForwardConfig{Windows: 4, TrainRatio: 0.7}
}

// RunFunc executes the strategy pipeline over one train/test window pair and
// returns both metric snapshots plus the test-side trades and curve. The
// validator stays decoupled from the pipeline by accepting this callback.
type RunFunc func(train, test *market.Series) (trainMetrics, testMetrics metrics.Snapshot, testTrades []engine.Trade, testCurve *engine.EquityCurve, err error)

// WindowVerdict is one walk-forward window's outcome.
type WindowVerdict struct {
	Index       int          `json:"index"`
	Overfit     OverfitLevel `json:"overfit"`
	Stable      bool         `json:"stable"`
	TrainSharpe float64      `json:"train_sharpe"`
	TestSharpe  float64      `json:"test_sharpe"`
}

// WalkForwardResult aggregates per-window verdicts into one confidence score
// in [0, 1].
type WalkForwardResult struct {
	Windows         []WindowVerdict `json:"windows"`
	ConfidenceScore float64         `json:"confidence_score"`
	SkippedWindows  int             `json:"skipped_windows"`
}

// WalkForward re-splits the data into N rolling train/test windows and
// aggregates the per-window overfitting and stability verdicts. Cancellation
// is checked between windows; a window is an atomic unit of work.
func (v *Validator) WalkForward(ctx context.Context, prices *market.Series, cfg WalkForwardConfig, run RunFunc) (*WalkForwardResult, error) {
	if cfg.Windows < 2 {
		return nil, fmt.Errorf("walk-forward requires at least 2 windows, got %d", cfg.Windows)
	}
	if cfg.TrainRatio <= 0 || cfg.TrainRatio >= 1 {
		return nil, fmt.Errorf("train ratio %.4f outside (0,1)", cfg.TrainRatio)
	}

	// Rolling windows: each spans half the data advanced by equal strides,
	// so test segments tile the back half of the series.
	total := prices.Len()
	windowLen := total * 2 / (cfg.Windows + 1)
	if windowLen < 8 {
		return nil, fmt.Errorf("%w: %d bars across %d walk-forward windows", market.ErrInsufficientData, total, cfg.Windows)
	}
	stride := (total - windowLen) / (cfg.Windows - 1)

	result := &WalkForwardResult{}
	for i := 0; i < cfg.Windows; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		start := i * stride
		window := prices.Slice(start, start+windowLen)
		train, test, err := Split(window, cfg.TrainRatio)
		if err != nil {
			result.SkippedWindows++
			continue
		}

		trainM, testM, testTrades, testCurve, err := run(train, test)
		if err != nil {
			log.Warn().Err(err).Int("window", i).Msg("walk-forward window failed")
			result.SkippedWindows++
			continue
		}

		report := v.Validate(trainM, testM, testTrades, testCurve)
		result.Windows = append(result.Windows, WindowVerdict{
			Index:       i,
			Overfit:     report.Overfitting.Level,
			Stable:      report.Stability.Stable,
			TrainSharpe: trainM.Performance.Sharpe,
			TestSharpe:  testM.Performance.Sharpe,
		})
	}

	if len(result.Windows) == 0 {
		return result, fmt.Errorf("%w: no walk-forward window produced a verdict", market.ErrInsufficientData)
	}

	var overfitScore, stableCount float64
	for _, w := range result.Windows {
		overfitScore += w.Overfit.Score()
		if w.Stable {
			stableCount++
		}
	}
	n := float64(len(result.Windows))
	result.ConfidenceScore = 0.5*overfitScore/n + 0.5*stableCount/n
	return result, nil
}
