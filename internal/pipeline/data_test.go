package pipeline

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfuse/quantfuse/internal/market"
)

// vSeries builds n bars with closes falling from 100 for 30 bars, then rising
// two points per bar. The single trough yields exactly one fast/slow cross.
func vSeries(t *testing.T, n int) *Data {
	t.Helper()
	bars := make([]market.Bar, n)
	for i := range bars {
		var close float64
		if i < 30 {
			close = 100 - float64(i)
		} else {
			close = 71 + 2*float64(i-29)
		}
		bars[i] = market.Bar{
			Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Open:      close, High: close + 1, Low: close - 1, Close: close,
			Volume: 1000,
		}
	}
	s, err := market.NewSeries("BTC-USD", bars)
	require.NoError(t, err)
	return &Data{Prices: s}
}

// wavySignals builds two slightly phase-shifted sine signals whose rolling
// correlation varies over time without ever being degenerate.
func wavySignals(n int) (price, alt []float64) {
	price = make([]float64, n)
	alt = make([]float64, n)
	for i := 0; i < n; i++ {
		price[i] = 0.5 * math.Sin(2*math.Pi*float64(i)/7)
		alt[i] = 0.5 * math.Sin(2*math.Pi*float64(i+1)/7)
	}
	return price, alt
}

func flatAux(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestData_Validate(t *testing.T) {
	d := vSeries(t, 10)
	require.NoError(t, d.Validate())

	t.Run("nil prices", func(t *testing.T) {
		err := (&Data{}).Validate()
		require.ErrorIs(t, err, market.ErrInsufficientData)
	})

	t.Run("aligned aux data passes", func(t *testing.T) {
		d := vSeries(t, 10)
		d.PriceSignal = flatAux(10, 0.5)
		d.AltSignal = flatAux(10, -0.2)
		d.Macro = flatAux(10, 20)
		require.NoError(t, d.Validate())
	})

	t.Run("misaligned aux data fails", func(t *testing.T) {
		d := vSeries(t, 10)
		d.AltSignal = flatAux(9, 0.1)
		err := d.Validate()
		require.ErrorIs(t, err, market.ErrDataAlignment)
		assert.Contains(t, err.Error(), "alt_signal")
	})
}

func TestData_Slice_KeepsAlignment(t *testing.T) {
	d := vSeries(t, 10)
	d.AltSignal = []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	sub := d.Slice(3, 7)
	require.Equal(t, 4, sub.Prices.Len())
	assert.Equal(t, []float64{3, 4, 5, 6}, sub.AltSignal)
	assert.Nil(t, sub.PriceSignal)
	require.NoError(t, sub.Validate())
}

func TestBuildContexts_MissingInputsSurfaceAsNaN(t *testing.T) {
	d := vSeries(t, 20)
	cfg := DefaultConfig()

	contexts := buildContexts(d, cfg)
	require.Len(t, contexts, 20)

	// No aux series supplied: every derived field is NaN, price data intact.
	last := contexts[19]
	assert.Equal(t, d.Prices.Bars[19].Close, last.Price)
	assert.Len(t, last.Closes, 20)
	assert.True(t, isNaN(last.AltSignal))
	assert.True(t, isNaN(last.Correlation))
	assert.True(t, isNaN(last.MacroValue))
	assert.False(t, isNaN(last.ATR))
}

func TestBuildContexts_CorrelationStatsRecoverAfterWarmup(t *testing.T) {
	d := vSeries(t, 40)
	d.PriceSignal, d.AltSignal = wavySignals(40)
	cfg := DefaultConfig()
	cfg.CorrelationWindow = 5
	cfg.CorrelationLookback = 10

	contexts := buildContexts(d, cfg)
	require.Len(t, contexts, 40)

	// Correlation fills at window-1; its mean and std need a further full
	// lookback past the NaN head, so both fill at index 13.
	assert.True(t, isNaN(contexts[3].Correlation))
	assert.False(t, isNaN(contexts[4].Correlation))
	assert.True(t, isNaN(contexts[12].CorrMean))
	for i := 13; i < 40; i++ {
		assert.False(t, isNaN(contexts[i].CorrMean), "CorrMean at index %d", i)
		assert.False(t, isNaN(contexts[i].CorrStd), "CorrStd at index %d", i)
	}
}

func isNaN(v float64) bool { return v != v }
