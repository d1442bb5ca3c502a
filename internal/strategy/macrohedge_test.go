package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfuse/quantfuse/internal/signal"
)

func macroCtx(value, std float64) Context {
	return Context{
		Timestamp:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		MacroValue: value,
		MacroStd:   std,
	}
}

func instruments() []HedgeInstrument {
	return []HedgeInstrument{
		{Symbol: "PUT_SPREAD", Cost: 0.02, ProtectionPct: 0.6, CorrelationToPortfolio: -0.8},
		{Symbol: "VIX_CALL", Cost: 0.05, ProtectionPct: 0.9, CorrelationToPortfolio: -0.7},
		{Symbol: "CHEAP_PARTIAL", Cost: 0.01, ProtectionPct: 0.3, CorrelationToPortfolio: -0.5},
	}
}

func TestMacroHedge_ClassifyAlert_Ladder(t *testing.T) {
	s, err := NewMacroHedge(DefaultMacroHedgeConfig())
	require.NoError(t, err)

	level, dist := s.ClassifyAlert(-0.5, 1)
	assert.Equal(t, AlertGreen, level)
	assert.Zero(t, dist)

	level, dist = s.ClassifyAlert(0.5, 1)
	assert.Equal(t, AlertYellow, level)
	assert.InDelta(t, 0.5, dist, 1e-9)

	level, _ = s.ClassifyAlert(1.5, 1)
	assert.Equal(t, AlertOrange, level)

	level, dist = s.ClassifyAlert(2.5, 1)
	assert.Equal(t, AlertRed, level)
	assert.InDelta(t, 2.5, dist, 1e-9)

	// Degenerate std never alerts.
	level, _ = s.ClassifyAlert(10, 0)
	assert.Equal(t, AlertGreen, level)
}

func TestMacroHedge_SelectInstrument_CheapestMeetingFloor(t *testing.T) {
	cfg := DefaultMacroHedgeConfig()
	cfg.Instruments = instruments()
	s, err := NewMacroHedge(cfg)
	require.NoError(t, err)

	// CHEAP_PARTIAL is cheapest but misses the 0.5 protection floor.
	pick := s.SelectInstrument()
	require.NotNil(t, pick)
	assert.Equal(t, "PUT_SPREAD", pick.Symbol)
}

func TestMacroHedge_SelectInstrument_CorrelationBreaksTies(t *testing.T) {
	cfg := DefaultMacroHedgeConfig()
	cfg.Instruments = []HedgeInstrument{
		{Symbol: "WEAK_HEDGE", Cost: 0.02, ProtectionPct: 0.6, CorrelationToPortfolio: -0.2},
		{Symbol: "STRONG_HEDGE", Cost: 0.02, ProtectionPct: 0.6, CorrelationToPortfolio: -0.9},
	}
	s, err := NewMacroHedge(cfg)
	require.NoError(t, err)

	// Equal cost and protection: the more negatively correlated hedge wins.
	pick := s.SelectInstrument()
	require.NotNil(t, pick)
	assert.Equal(t, "STRONG_HEDGE", pick.Symbol)
}

func TestMacroHedge_SelectInstrument_NoneQualifies(t *testing.T) {
	cfg := DefaultMacroHedgeConfig()
	cfg.MinProtectionPct = 0.95
	cfg.Instruments = instruments()
	s, err := NewMacroHedge(cfg)
	require.NoError(t, err)

	assert.Nil(t, s.SelectInstrument())
}

func TestMacroHedge_Recommend_RedUsesTopRatio(t *testing.T) {
	cfg := DefaultMacroHedgeConfig()
	cfg.Instruments = instruments()
	s, err := NewMacroHedge(cfg)
	require.NoError(t, err)

	rec := s.Recommend(macroCtx(3, 1))
	assert.Equal(t, AlertRed, rec.Level)
	assert.InDelta(t, 0.8, rec.HedgeRatio, 1e-9)
	require.NotNil(t, rec.Instrument)
	assert.Equal(t, "PUT_SPREAD", rec.Instrument.Symbol)
}

func TestMacroHedge_Evaluate_RedEmitsSell(t *testing.T) {
	s, err := NewMacroHedge(DefaultMacroHedgeConfig())
	require.NoError(t, err)

	rec, ok := s.Evaluate(macroCtx(2.5, 1))
	require.True(t, ok)
	assert.Equal(t, signal.Sell, rec.Direction)
	assert.InDelta(t, -0.8, rec.Strength, 1e-9)
	assert.InDelta(t, 2.5/3, rec.Confidence, 1e-9)
	assert.InDelta(t, 0.8, rec.RecommendedSize, 1e-9)
	assert.Equal(t, signal.SourceMacroHedge, rec.Source)
}

func TestMacroHedge_Evaluate_GreenAndWeakAlertsHold(t *testing.T) {
	s, err := NewMacroHedge(DefaultMacroHedgeConfig())
	require.NoError(t, err)

	rec, ok := s.Evaluate(macroCtx(-1, 1))
	require.True(t, ok)
	assert.Equal(t, signal.Hold, rec.Direction)

	// YELLOW at 0.5 sigma: confidence 0.167 is below the 0.2 gate.
	rec, ok = s.Evaluate(macroCtx(0.5, 1))
	require.True(t, ok)
	assert.Equal(t, signal.Hold, rec.Direction)
}

func TestMacroHedge_Evaluate_MissingInputsNoOpinion(t *testing.T) {
	s, err := NewMacroHedge(DefaultMacroHedgeConfig())
	require.NoError(t, err)

	_, ok := s.Evaluate(macroCtx(math.NaN(), 1))
	assert.False(t, ok)
}

func TestMacroHedge_StressTest(t *testing.T) {
	s, err := NewMacroHedge(DefaultMacroHedgeConfig())
	require.NoError(t, err)

	scenarios := []MacroScenario{
		{Name: "rates_up", Shocks: map[string]float64{"rates": 0.02, "equities": -0.05}},
		{Name: "flight_to_quality", Shocks: map[string]float64{"equities": -0.10, "gold": 0.08}},
	}
	sensitivity := map[string]float64{"rates": -1000, "equities": 5000, "gold": 200}

	impacts := s.StressTest(scenarios, sensitivity)
	require.Len(t, impacts, 2)
	assert.InDelta(t, 0.02*-1000+(-0.05)*5000, impacts[0].Impact, 1e-9)
	assert.InDelta(t, -0.10*5000+0.08*200, impacts[1].Impact, 1e-9)
	// Unknown factors contribute nothing rather than failing.
	assert.Equal(t, "rates_up", impacts[0].Scenario)
}
