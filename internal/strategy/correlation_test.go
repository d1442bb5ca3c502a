package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfuse/quantfuse/internal/signal"
)

func corrCtx(day int, corr, mean, std float64) Context {
	return Context{
		Timestamp:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day),
		Correlation: corr,
		CorrMean:    mean,
		CorrStd:     std,
	}
}

func TestClassify_Bands(t *testing.T) {
	mean, std := 0.5, 0.1
	assert.Equal(t, RegimeSurge, Classify(0.75, mean, std))     // z = 2.5
	assert.Equal(t, RegimeHigh, Classify(0.65, mean, std))      // z = 1.5
	assert.Equal(t, RegimeNormal, Classify(0.55, mean, std))    // z = 0.5
	assert.Equal(t, RegimeLow, Classify(0.35, mean, std))       // z = -1.5
	assert.Equal(t, RegimeBreakdown, Classify(0.25, mean, std)) // z = -2.5
	assert.Equal(t, RegimeNormal, Classify(0.9, mean, 0))
}

func TestCorrelationRegime_BreakdownEmitsMeanReversionBuy(t *testing.T) {
	s, err := NewCorrelationRegime(DefaultCorrelationRegimeConfig())
	require.NoError(t, err)

	// z = -3: breakdown, expect the reversal to point up.
	rec, ok := s.Evaluate(corrCtx(0, 0.1, 0.7, 0.2))
	require.True(t, ok)
	assert.Equal(t, signal.Buy, rec.Direction)
	assert.InDelta(t, 0.75, rec.Strength, 1e-9) // min(1, 3/4)
	assert.InDelta(t, 1.0, rec.Confidence, 1e-9)
	assert.Equal(t, signal.SourceCorrelation, rec.Source)
}

func TestCorrelationRegime_SurgeEmitsSell(t *testing.T) {
	s, err := NewCorrelationRegime(DefaultCorrelationRegimeConfig())
	require.NoError(t, err)

	// z = 2.5.
	rec, ok := s.Evaluate(corrCtx(0, 0.75, 0.5, 0.1))
	require.True(t, ok)
	assert.Equal(t, signal.Sell, rec.Direction)
	assert.InDelta(t, -0.625, rec.Strength, 1e-9)
	assert.InDelta(t, 2.5/3, rec.Confidence, 1e-9)
}

func TestCorrelationRegime_NonExtremeRegimesHold(t *testing.T) {
	s, err := NewCorrelationRegime(DefaultCorrelationRegimeConfig())
	require.NoError(t, err)

	for _, corr := range []float64{0.55, 0.65, 0.35} {
		rec, ok := s.Evaluate(corrCtx(0, corr, 0.5, 0.1))
		require.True(t, ok)
		assert.Equal(t, signal.Hold, rec.Direction, "corr %.2f", corr)
	}
}

func TestCorrelationRegime_RecordsTransitions(t *testing.T) {
	s, err := NewCorrelationRegime(DefaultCorrelationRegimeConfig())
	require.NoError(t, err)

	// First observation seeds the regime without an event.
	_, ok := s.Evaluate(corrCtx(0, 0.55, 0.5, 0.1))
	require.True(t, ok)
	assert.Empty(t, s.Transitions())

	// NORMAL -> SURGE.
	_, ok = s.Evaluate(corrCtx(1, 0.75, 0.5, 0.1))
	require.True(t, ok)
	// SURGE -> SURGE: no new event.
	_, ok = s.Evaluate(corrCtx(2, 0.8, 0.5, 0.1))
	require.True(t, ok)
	// SURGE -> BREAKDOWN.
	_, ok = s.Evaluate(corrCtx(3, 0.2, 0.5, 0.1))
	require.True(t, ok)

	transitions := s.Transitions()
	require.Len(t, transitions, 2)
	assert.Equal(t, RegimeNormal, transitions[0].From)
	assert.Equal(t, RegimeSurge, transitions[0].To)
	assert.Equal(t, RegimeSurge, transitions[1].From)
	assert.Equal(t, RegimeBreakdown, transitions[1].To)
	assert.Less(t, transitions[1].ZScore, -2.0)
}

func TestCorrelationRegime_DegenerateStdHolds(t *testing.T) {
	s, err := NewCorrelationRegime(DefaultCorrelationRegimeConfig())
	require.NoError(t, err)

	rec, ok := s.Evaluate(corrCtx(0, 0.9, 0.5, 0))
	require.True(t, ok)
	assert.Equal(t, signal.Hold, rec.Direction)
}

func TestCorrelationRegime_MissingInputsNoOpinion(t *testing.T) {
	s, err := NewCorrelationRegime(DefaultCorrelationRegimeConfig())
	require.NoError(t, err)

	_, ok := s.Evaluate(corrCtx(0, math.NaN(), 0.5, 0.1))
	assert.False(t, ok)
}
