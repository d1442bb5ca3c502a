package validate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfuse/quantfuse/internal/engine"
	"github.com/quantfuse/quantfuse/internal/market"
)

func daySeries(t *testing.T, n int) *market.Series {
	t.Helper()
	bars := make([]market.Bar, n)
	for i := range bars {
		bars[i] = market.Bar{
			Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Open:      100, High: 101, Low: 99, Close: 100,
			Volume: 1000,
		}
	}
	s, err := market.NewSeries("BTC-USD", bars)
	require.NoError(t, err)
	return s
}

// monthlyCurve builds an equity curve with one point at the end of each month,
// compounding the given per-month returns from 100k.
func monthlyCurve(monthReturns []float64) *engine.EquityCurve {
	curve := &engine.EquityCurve{Initial: 100_000}
	value := curve.Initial
	for i, r := range monthReturns {
		value *= 1 + r
		curve.Points = append(curve.Points, engine.EquityPoint{
			Timestamp: time.Date(2024, time.Month(i+1), 28, 0, 0, 0, 0, time.UTC),
			Value:     value,
		})
	}
	return curve
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.TrainRatio = 1.0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MinTrades = 1
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Granularity = "weekly"
	assert.Error(t, bad.Validate())
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{TrainRatio: -1, MinTrades: 30})
	assert.Error(t, err)
}

func TestSplit_ChronologicalNoShuffle(t *testing.T) {
	prices := daySeries(t, 10)

	train, test, err := Split(prices, 0.7)
	require.NoError(t, err)

	assert.Equal(t, 7, train.Len())
	assert.Equal(t, 3, test.Len())
	// The test window strictly follows the train window in time.
	assert.True(t, train.Bars[train.Len()-1].Timestamp.Before(test.Bars[0].Timestamp))
	assert.Equal(t, prices.Bars[0].Timestamp, train.Bars[0].Timestamp)
	assert.Equal(t, prices.Bars[9].Timestamp, test.Bars[2].Timestamp)
}

func TestSplit_InsufficientData(t *testing.T) {
	_, _, err := Split(daySeries(t, 3), 0.7)
	require.ErrorIs(t, err, market.ErrInsufficientData)

	_, _, err = Split(daySeries(t, 10), 0.1)
	require.ErrorIs(t, err, market.ErrInsufficientData)
}

func TestSplit_RejectsRatioBounds(t *testing.T) {
	for _, ratio := range []float64{0, 1, -0.5, 1.5} {
		_, _, err := Split(daySeries(t, 10), ratio)
		assert.Error(t, err)
	}
}

func TestValidator_StabilityCheck_SteadyGrowthIsStable(t *testing.T) {
	v, err := New(DefaultConfig())
	require.NoError(t, err)

	res := v.StabilityCheck(monthlyCurve([]float64{0.02, 0.02, 0.02, 0.02}))

	assert.True(t, res.Stable)
	assert.Empty(t, res.Reasons)
	require.Len(t, res.Periods, 4)
	assert.Equal(t, "2024-01", res.Periods[0].Label)
	assert.InDelta(t, 0.02, res.Periods[0].Return, 1e-9)
	assert.InDelta(t, 0.0, res.CoefVariation, 1e-9)
}

func TestValidator_StabilityCheck_SharpeUsesConfiguredPeriodsPerYear(t *testing.T) {
	curve := &engine.EquityCurve{Initial: 100_000}
	value := curve.Initial
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			value *= 1.01
		} else {
			value *= 0.995
		}
		curve.Points = append(curve.Points, engine.EquityPoint{Timestamp: start.AddDate(0, 0, i), Value: value})
	}

	daily, err := New(DefaultConfig())
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.PeriodsPerYear = 12
	monthly, err := New(cfg)
	require.NoError(t, err)

	a := daily.StabilityCheck(curve)
	b := monthly.StabilityCheck(curve)
	require.NotEmpty(t, a.Periods)
	require.NotZero(t, b.Periods[0].Sharpe)
	assert.InDelta(t, math.Sqrt(252.0/12.0), a.Periods[0].Sharpe/b.Periods[0].Sharpe, 1e-9)
}

func TestValidator_StabilityCheck_WhipsawReturnsAreUnstable(t *testing.T) {
	v, err := New(DefaultConfig())
	require.NoError(t, err)

	res := v.StabilityCheck(monthlyCurve([]float64{0.10, -0.09, 0.10, -0.09}))

	assert.False(t, res.Stable)
	assert.Greater(t, res.CoefVariation, v.cfg.StabilityCVThreshold)
	require.NotEmpty(t, res.Reasons)
	assert.Contains(t, res.Reasons[0], "CV")
}

func TestValidator_StabilityCheck_DegradationTrendIsUnstable(t *testing.T) {
	v, err := New(DefaultConfig())
	require.NoError(t, err)

	// Monotone decay from strong to negative months.
	res := v.StabilityCheck(monthlyCurve([]float64{0.10, 0.05, 0.0, -0.05, -0.10}))

	assert.False(t, res.Stable)
	assert.Less(t, res.TrendSlope, 0.0)
	assert.Less(t, res.TrendPValue, 0.05)
}

func TestValidator_StabilityCheck_DegenerateCurves(t *testing.T) {
	v, err := New(DefaultConfig())
	require.NoError(t, err)

	t.Run("nil curve", func(t *testing.T) {
		res := v.StabilityCheck(nil)
		assert.False(t, res.Stable)
		assert.Contains(t, res.Reasons[0], "empty")
	})

	t.Run("single period is no verdict", func(t *testing.T) {
		res := v.StabilityCheck(monthlyCurve([]float64{0.02}))
		assert.True(t, res.Stable)
		assert.Contains(t, res.Reasons[0], "fewer than two")
	})
}

func TestValidator_StabilityCheck_QuarterlyBuckets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Granularity = Quarterly
	v, err := New(cfg)
	require.NoError(t, err)

	res := v.StabilityCheck(monthlyCurve([]float64{0.01, 0.01, 0.01, 0.01, 0.01, 0.01}))

	require.Len(t, res.Periods, 2)
	assert.Equal(t, "2024-Q1", res.Periods[0].Label)
	assert.Equal(t, "2024-Q2", res.Periods[1].Label)
}

func TestValidator_Validate_AssemblesReport(t *testing.T) {
	v, err := New(DefaultConfig())
	require.NoError(t, err)

	train := snapshotWith(1.0, 0.6, -100)
	test := snapshotWith(0.95, 0.58, -110)

	trades := make([]engine.Trade, 35)
	for i := range trades {
		if i%2 == 0 {
			trades[i].RealizedPnL = 100
		} else {
			trades[i].RealizedPnL = 120
		}
	}

	report := v.Validate(train, test, trades, monthlyCurve([]float64{0.02, 0.02, 0.02}))

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, OverfitNone, report.Overfitting.Level)
	assert.True(t, report.Significance.Sufficient)
	assert.Equal(t, 35, report.Significance.SampleSize)
	assert.True(t, report.Stability.Stable)
	assert.Equal(t, train, report.TrainMetrics)
	assert.Equal(t, test, report.TestMetrics)

	flat := report.Flatten()
	assert.InDelta(t, 0.05, flat["overfitting.sharpe_drop"], 1e-9)
	assert.Equal(t, 1.0, flat["train.sharpe"])
	assert.InDelta(t, 0.95, flat["test.sharpe"], 1e-9)
}
