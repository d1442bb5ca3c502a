package validate

import (
	"math"

	"github.com/quantfuse/quantfuse/internal/metrics"
)

// OverfitLevel classifies out-of-sample degradation.
type OverfitLevel string

const (
	OverfitNone     OverfitLevel = "NONE"     // < 10% relative drop
	OverfitLow      OverfitLevel = "LOW"      // 10-25%
	OverfitModerate OverfitLevel = "MODERATE" // 25-50%
	OverfitHigh     OverfitLevel = "HIGH"     // 50-75%
	OverfitSevere   OverfitLevel = "SEVERE"   // > 75%
)

var levelOrder = []OverfitLevel{OverfitNone, OverfitLow, OverfitModerate, OverfitHigh, OverfitSevere}

// OverfitClassification is the degradation verdict with its inputs.
type OverfitClassification struct {
	Level        OverfitLevel `json:"level"`
	SharpeDrop   float64      `json:"sharpe_drop"`
	WinRateDrop  float64      `json:"win_rate_drop"`
	MaxLossRatio float64      `json:"max_loss_ratio"`
}

// ClassifyOverfitting compares train vs test Sharpe, win rate, and worst
// trade. The Sharpe drop is the primary signal; a corroborating win-rate
// collapse bumps the level one band.
func ClassifyOverfitting(train, test metrics.Snapshot) OverfitClassification {
	c := OverfitClassification{
		SharpeDrop:  relativeDrop(train.Performance.Sharpe, test.Performance.Sharpe),
		WinRateDrop: relativeDrop(train.Trades.WinRate, test.Trades.WinRate),
	}
	if train.Trades.WorstTrade < 0 && test.Trades.WorstTrade < 0 {
		c.MaxLossRatio = test.Trades.WorstTrade / train.Trades.WorstTrade
	}

	c.Level = dropLevel(c.SharpeDrop)
	if c.WinRateDrop >= 0.25 {
		c.Level = bumpLevel(c.Level)
	}
	return c
}

// relativeDrop returns (train - test) / |train|, clamped at 0 when the test
// side improved. A non-positive train value with a worse test value counts
// as a full drop.
func relativeDrop(train, test float64) float64 {
	if test >= train {
		return 0
	}
	if train <= 0 {
		return 1
	}
	drop := (train - test) / math.Abs(train)
	if drop > 1 {
		drop = 1
	}
	return drop
}

func dropLevel(drop float64) OverfitLevel {
	switch {
	case drop < 0.10:
		return OverfitNone
	case drop < 0.25:
		return OverfitLow
	case drop < 0.50:
		return OverfitModerate
	case drop < 0.75:
		return OverfitHigh
	default:
		return OverfitSevere
	}
}

func bumpLevel(level OverfitLevel) OverfitLevel {
	for i, l := range levelOrder {
		if l == level {
			if i+1 < len(levelOrder) {
				return levelOrder[i+1]
			}
			return level
		}
	}
	return level
}

// Score maps an overfitting level to [0, 1] for walk-forward aggregation
// (NONE = 1, SEVERE = 0).
func (l OverfitLevel) Score() float64 {
	for i, lv := range levelOrder {
		if lv == l {
			return 1 - float64(i)/float64(len(levelOrder)-1)
		}
	}
	return 0
}
