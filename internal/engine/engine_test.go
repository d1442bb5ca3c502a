package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfuse/quantfuse/internal/market"
	"github.com/quantfuse/quantfuse/internal/signal"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// flatSeries builds bars where open=high=low=close, so intraday levels never
// trigger unless a test widens the range explicitly.
func flatSeries(t *testing.T, closes ...float64) *market.Series {
	t.Helper()
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{Timestamp: day(i), Open: c, High: c, Low: c, Close: c, Volume: 1000}
	}
	s, err := market.NewSeries("TEST", bars)
	require.NoError(t, err)
	return s
}

func signalsFor(prices *market.Series, recs ...signal.Record) *signal.Series {
	out := make([]signal.Record, prices.Len())
	for i, bar := range prices.Bars {
		out[i] = signal.Record{Timestamp: bar.Timestamp, Direction: signal.Hold, Source: signal.SourcePrice}
		if i < len(recs) {
			out[i] = recs[i]
			out[i].Timestamp = bar.Timestamp
			if out[i].Source == "" {
				out[i].Source = signal.SourcePrice
			}
		}
	}
	return &signal.Series{Records: out}
}

func buy(conf float64) signal.Record {
	return signal.Record{Direction: signal.Buy, Strength: 1, Confidence: conf}
}

func sell(conf float64) signal.Record {
	return signal.Record{Direction: signal.Sell, Strength: -1, Confidence: conf}
}

func hold() signal.Record {
	return signal.Record{Direction: signal.Hold}
}

func frictionless() Config {
	cfg := DefaultConfig()
	cfg.Costs = CostModel{}
	cfg.BaseSize = 0.5
	cfg.MaxLeverage = 1.0
	return cfg
}

func TestEngine_Run_LongRoundTrip(t *testing.T) {
	prices := flatSeries(t, 100, 110, 110)
	sigs := signalsFor(prices, buy(1), sell(1))

	eng, err := New(frictionless())
	require.NoError(t, err)

	ledger, curve, err := eng.Run(prices, sigs, 10_000)
	require.NoError(t, err)
	require.Len(t, ledger.Trades, 1)

	// fraction 0.5 of 10k at 100 = 50 units, +10/unit on exit.
	trade := ledger.Trades[0]
	assert.InDelta(t, 50.0, trade.Quantity, 1e-9)
	assert.InDelta(t, 500.0, trade.RealizedPnL, 1e-9)
	assert.Equal(t, ExitSignal, trade.ExitReason)
	assert.Equal(t, day(0), trade.EntryTime)
	assert.Equal(t, day(1), trade.ExitTime)
	assert.InDelta(t, 10_500.0, curve.Final(), 1e-9)
}

func TestEngine_Run_FinalEquityIdentity(t *testing.T) {
	// With every position force-closed, final equity must equal initial
	// capital plus total realized PnL, costs already netted.
	prices := flatSeries(t, 100, 104, 98, 103, 107, 101)
	sigs := signalsFor(prices, buy(0.9), hold(), sell(0.9), buy(0.8))

	cfg := DefaultConfig()
	cfg.Costs = CostModel{Fixed: 1, Proportional: 0.002}
	eng, err := New(cfg)
	require.NoError(t, err)

	ledger, curve, err := eng.Run(prices, sigs, 25_000)
	require.NoError(t, err)
	require.NotEmpty(t, ledger.Trades)

	assert.InDelta(t, 25_000+ledger.TotalRealizedPnL(), curve.Final(), 1e-6)
	assert.Greater(t, ledger.TotalCosts(), 0.0)
}

func TestEngine_Run_MinConfidenceGatesEntry(t *testing.T) {
	prices := flatSeries(t, 100, 110)
	sigs := signalsFor(prices, buy(0.1))

	eng, err := New(frictionless())
	require.NoError(t, err)

	ledger, curve, err := eng.Run(prices, sigs, 10_000)
	require.NoError(t, err)
	assert.Empty(t, ledger.Trades)
	assert.InDelta(t, 10_000.0, curve.Final(), 1e-9)
}

func TestEngine_Run_ShortsRequireAllowShort(t *testing.T) {
	prices := flatSeries(t, 100, 90, 90)

	// Without shorting the SELL is ignored and nothing ever opens.
	eng, err := New(frictionless())
	require.NoError(t, err)
	ledger, _, err := eng.Run(prices, signalsFor(prices, sell(1), hold()), 10_000)
	require.NoError(t, err)
	assert.Empty(t, ledger.Trades)

	cfg := frictionless()
	cfg.AllowShort = true
	eng, err = New(cfg)
	require.NoError(t, err)
	ledger, curve, err := eng.Run(prices, signalsFor(prices, sell(1), buy(1)), 10_000)
	require.NoError(t, err)
	require.Len(t, ledger.Trades, 1)

	trade := ledger.Trades[0]
	assert.Negative(t, trade.Quantity)
	// Short from 100 to 90: (90-100) * -50 = +500.
	assert.InDelta(t, 500.0, trade.RealizedPnL, 1e-9)
	assert.InDelta(t, 10_500.0, curve.Final(), 1e-9)
}

func TestEngine_Run_IntradayStopLoss(t *testing.T) {
	prices := flatSeries(t, 100, 100, 100)
	// Second bar dips through the stop intraday.
	prices.Bars[1].Low = 90
	prices.Bars[1].Open = 100
	sigs := signalsFor(prices, signal.Record{
		Direction: signal.Buy, Strength: 1, Confidence: 1, StopLoss: 95,
	})

	eng, err := New(frictionless())
	require.NoError(t, err)
	ledger, _, err := eng.Run(prices, sigs, 10_000)
	require.NoError(t, err)
	require.Len(t, ledger.Trades, 1)

	trade := ledger.Trades[0]
	assert.Equal(t, ExitStopLoss, trade.ExitReason)
	assert.InDelta(t, 95.0, trade.ExitPrice, 1e-9)
	assert.Equal(t, day(1), trade.ExitTime)
}

func TestEngine_Run_StopWinsWhenBothLevelsHit(t *testing.T) {
	prices := flatSeries(t, 100, 100, 100)
	// One wide bar that crosses both the stop and the target.
	prices.Bars[1].Low = 90
	prices.Bars[1].High = 115
	sigs := signalsFor(prices, signal.Record{
		Direction: signal.Buy, Strength: 1, Confidence: 1, StopLoss: 95, TakeProfit: 110,
	})

	eng, err := New(frictionless())
	require.NoError(t, err)
	ledger, _, err := eng.Run(prices, sigs, 10_000)
	require.NoError(t, err)
	require.Len(t, ledger.Trades, 1)
	assert.Equal(t, ExitStopLoss, ledger.Trades[0].ExitReason)
}

func TestEngine_Run_TakeProfitOnLong(t *testing.T) {
	prices := flatSeries(t, 100, 100, 100)
	prices.Bars[2].High = 112
	sigs := signalsFor(prices, signal.Record{
		Direction: signal.Buy, Strength: 1, Confidence: 1, TakeProfit: 110,
	})

	eng, err := New(frictionless())
	require.NoError(t, err)
	ledger, _, err := eng.Run(prices, sigs, 10_000)
	require.NoError(t, err)
	require.Len(t, ledger.Trades, 1)
	assert.Equal(t, ExitTarget, ledger.Trades[0].ExitReason)
	assert.InDelta(t, 110.0, ledger.Trades[0].ExitPrice, 1e-9)
}

func TestEngine_Run_OneTransitionPerTimestamp(t *testing.T) {
	// Reversal on bar 1 closes the long; the same SELL must not open a short
	// on the same bar even when shorting is allowed.
	prices := flatSeries(t, 100, 105, 105)
	sigs := signalsFor(prices, buy(1), sell(1), hold())

	cfg := frictionless()
	cfg.AllowShort = true
	eng, err := New(cfg)
	require.NoError(t, err)

	ledger, curve, err := eng.Run(prices, sigs, 10_000)
	require.NoError(t, err)
	require.Len(t, ledger.Trades, 1)
	assert.Equal(t, ExitSignal, ledger.Trades[0].ExitReason)
	// Flat after the reversal close: curve points carry no position.
	assert.Zero(t, curve.Points[1].Position)
	assert.Zero(t, curve.Points[2].Position)
}

func TestEngine_Run_ForceCloseAtEndOfData(t *testing.T) {
	prices := flatSeries(t, 100, 108)
	sigs := signalsFor(prices, buy(1))

	eng, err := New(frictionless())
	require.NoError(t, err)
	ledger, curve, err := eng.Run(prices, sigs, 10_000)
	require.NoError(t, err)
	require.Len(t, ledger.Trades, 1)
	assert.Equal(t, ExitEndOfData, ledger.Trades[0].ExitReason)

	last := curve.Points[len(curve.Points)-1]
	assert.Zero(t, last.Position)
	assert.Zero(t, last.UnrealizedPnL)
	assert.InDelta(t, 10_000+ledger.TotalRealizedPnL(), last.Value, 1e-9)
}

func TestEngine_Run_RejectsMisalignedSignals(t *testing.T) {
	prices := flatSeries(t, 100, 101, 102)
	short := signalsFor(flatSeries(t, 100, 101))

	eng, err := New(frictionless())
	require.NoError(t, err)
	_, _, err = eng.Run(prices, short, 10_000)
	require.ErrorIs(t, err, market.ErrDataAlignment)
}

func TestEngine_Run_RejectsNonPositiveCapital(t *testing.T) {
	prices := flatSeries(t, 100)
	sigs := signalsFor(prices)

	eng, err := New(frictionless())
	require.NoError(t, err)
	_, _, err = eng.Run(prices, sigs, 0)
	require.Error(t, err)
}

func TestEngine_Run_MaxLeverageCapsSizing(t *testing.T) {
	prices := flatSeries(t, 100, 100)
	sigs := signalsFor(prices, buy(1))

	cfg := frictionless()
	cfg.BaseSize = 3.0
	cfg.MaxLeverage = 1.0
	eng, err := New(cfg)
	require.NoError(t, err)

	ledger, _, err := eng.Run(prices, sigs, 10_000)
	require.NoError(t, err)
	require.Len(t, ledger.Trades, 1)
	// Capped at 1x: 10000/100 = 100 units.
	assert.InDelta(t, 100.0, ledger.Trades[0].Quantity, 1e-9)
}

func TestCostModel_Cost(t *testing.T) {
	c := CostModel{Fixed: 2, Proportional: 0.001}
	assert.InDelta(t, 2+0.001*50*100, c.Cost(100, 50), 1e-12)
	// Quantity sign does not matter.
	assert.InDelta(t, c.Cost(100, 50), c.Cost(100, -50), 1e-12)
}
