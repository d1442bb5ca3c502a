package strategy

import (
	"math"
	"time"

	"github.com/quantfuse/quantfuse/internal/signal"
)

// Context carries the per-timestamp inputs a strategy may evaluate. Fields a
// given strategy does not use are simply ignored; NaN marks values whose
// rolling window has not filled.
type Context struct {
	Timestamp time.Time
	Price     float64

	// Price-derived inputs.
	Closes []float64 // close history up to and including this timestamp
	ATR    float64

	// Independently-generated signal inputs in [-1, 1].
	PriceSignal float64
	AltSignal   float64

	// Rolling correlation between the price and alt series, with its
	// historical mean/std over the lookback window.
	Correlation float64
	CorrMean    float64
	CorrStd     float64

	// Macro stress indicator with its historical mean/std.
	MacroValue float64
	MacroMean  float64
	MacroStd   float64
}

// Strategy is a pure per-timestamp signal policy. Evaluate returns the
// emitted record and true, or nil and false when the strategy has no opinion
// for this timestamp (missing inputs). Suppressed candidates (confidence
// below threshold) are emitted as HOLD records, not dropped.
type Strategy interface {
	Name() string
	Evaluate(ctx Context) (*signal.Record, bool)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func isUsable(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
