package validate

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/quantfuse/quantfuse/internal/engine"
	"github.com/quantfuse/quantfuse/internal/market"
	"github.com/quantfuse/quantfuse/internal/metrics"
)

// Config controls validation thresholds.
type Config struct {
	// TrainRatio splits data chronologically.
	TrainRatio float64 `yaml:"train_ratio" json:"train_ratio"`
	// MinTrades is the sample floor below which significance is flagged
	// insufficient instead of judged.
	MinTrades int `yaml:"min_trades" json:"min_trades"`
	// StabilityCVThreshold flags instability when the coefficient of
	// variation of per-period returns exceeds it.
	StabilityCVThreshold float64 `yaml:"stability_cv_threshold" json:"stability_cv_threshold"`
	// Granularity groups stability periods ("monthly" or "quarterly").
	Granularity Granularity `yaml:"granularity" json:"granularity"`
	// PeriodsPerYear annualizes per-period Sharpe ratios; zero means daily
	// bars.
	PeriodsPerYear float64 `yaml:"periods_per_year" json:"periods_per_year"`
}

// DefaultConfig returns the standard 70/30 split and 30-trade floor.
func DefaultConfig() Config {
	return Config{
		TrainRatio:           0.7,
		MinTrades:            30,
		StabilityCVThreshold: 2.0,
		Granularity:          Monthly,
		PeriodsPerYear:       252,
	}
}

// Validate checks config bounds.
func (c Config) Validate() error {
	if c.TrainRatio <= 0 || c.TrainRatio >= 1 {
		return fmt.Errorf("train_ratio %.4f outside (0,1)", c.TrainRatio)
	}
	if c.MinTrades < 2 {
		return fmt.Errorf("min_trades %d too small", c.MinTrades)
	}
	switch c.Granularity {
	case Monthly, Quarterly, "":
	default:
		return fmt.Errorf("unknown granularity %q", c.Granularity)
	}
	return nil
}

// Report is the immutable outcome of one validation run.
type Report struct {
	RunID        string                `json:"run_id"`
	TrainMetrics metrics.Snapshot      `json:"train_metrics"`
	TestMetrics  metrics.Snapshot      `json:"test_metrics"`
	Overfitting  OverfitClassification `json:"overfitting"`
	Significance SignificanceResult    `json:"significance"`
	Stability    StabilityResult       `json:"stability"`
}

// Flatten serializes the report's headline numbers as a self-describing map
// for downstream rendering.
func (r *Report) Flatten() map[string]float64 {
	return map[string]float64{
		"overfitting.sharpe_drop":   r.Overfitting.SharpeDrop,
		"overfitting.win_rate_drop": r.Overfitting.WinRateDrop,
		"significance.p_value":      r.Significance.PValue,
		"significance.effect_size":  r.Significance.EffectSize,
		"significance.power":        r.Significance.Power,
		"significance.sample_size":  float64(r.Significance.SampleSize),
		"stability.coef_variation":  r.Stability.CoefVariation,
		"stability.trend_slope":     r.Stability.TrendSlope,
		"train.sharpe":              r.TrainMetrics.Performance.Sharpe,
		"test.sharpe":               r.TestMetrics.Performance.Sharpe,
	}
}

// Validator detects overfitting, tests significance of realized PnL, and
// measures temporal stability of the edge.
type Validator struct {
	cfg Config
}

// New returns a validator or a config error.
func New(cfg Config) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Granularity == "" {
		cfg.Granularity = Monthly
	}
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = 252
	}
	return &Validator{cfg: cfg}, nil
}

// Split divides a price series chronologically. Shuffling is never applied:
// time-series causality requires the test window to strictly follow the
// train window.
func (v *Validator) Split(prices *market.Series) (train, test *market.Series, err error) {
	return Split(prices, v.cfg.TrainRatio)
}

// Split divides a series at ratio, chronologically. Either side shorter than
// two bars is an insufficient-data error.
func Split(prices *market.Series, ratio float64) (train, test *market.Series, err error) {
	if ratio <= 0 || ratio >= 1 {
		return nil, nil, fmt.Errorf("train ratio %.4f outside (0,1)", ratio)
	}
	cut := int(float64(prices.Len()) * ratio)
	if cut < 2 || prices.Len()-cut < 2 {
		return nil, nil, fmt.Errorf("%w: %d bars cannot split at ratio %.2f", market.ErrInsufficientData, prices.Len(), ratio)
	}
	return prices.Slice(0, cut), prices.Slice(cut, prices.Len()), nil
}

// Validate assembles the full report from train/test metrics and the test
// trade ledger and equity curve.
func (v *Validator) Validate(trainMetrics, testMetrics metrics.Snapshot, testTrades []engine.Trade, testCurve *engine.EquityCurve) *Report {
	pnls := make([]float64, len(testTrades))
	for i, t := range testTrades {
		pnls[i] = t.RealizedPnL
	}
	return &Report{
		RunID:        uuid.NewString(),
		TrainMetrics: trainMetrics,
		TestMetrics:  testMetrics,
		Overfitting:  ClassifyOverfitting(trainMetrics, testMetrics),
		Significance: TestPnLSignificance(pnls, v.cfg.MinTrades),
		Stability:    v.StabilityCheck(testCurve),
	}
}
