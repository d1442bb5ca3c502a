package validate

import (
	"math"

	"github.com/quantfuse/quantfuse/internal/market"
)

// SignificanceResult reports the one-sample t-test of trade PnL against a
// null mean of zero. Sufficient is false below the minimum sample size, in
// which case the p-value is not a verdict.
type SignificanceResult struct {
	SampleSize int     `json:"sample_size"`
	Sufficient bool    `json:"sufficient"`
	TStat      float64 `json:"t_stat"`
	PValue     float64 `json:"p_value"`
	EffectSize float64 `json:"effect_size"` // Cohen's d
	Power      float64 `json:"power"`
}

// TestPnLSignificance runs the one-sample t-test on trade PnL. The two-sided
// p-value and post-hoc power use the normal approximation, which holds at
// and above the configured minimum sample size.
func TestPnLSignificance(pnls []float64, minSample int) SignificanceResult {
	r := SignificanceResult{SampleSize: len(pnls), PValue: 1}
	if len(pnls) < 2 {
		return r
	}
	mean := market.Mean(pnls)
	std := market.StdDev(pnls)
	if std == 0 {
		// Degenerate sample: identical PnL on every trade.
		r.Sufficient = len(pnls) >= minSample
		return r
	}

	n := float64(len(pnls))
	r.TStat = mean / (std / math.Sqrt(n))
	// Erfc form of 2*(1-CDF(|t|)); the subtraction would cancel to zero for
	// large t statistics.
	r.PValue = math.Erfc(math.Abs(r.TStat) / math.Sqrt2)
	r.EffectSize = mean / std
	r.Power = power(r.EffectSize, n, 0.05)
	r.Sufficient = len(pnls) >= minSample
	return r
}

// power is the post-hoc power of the two-sided test at significance alpha.
func power(effectSize, n, alpha float64) float64 {
	zAlpha := normalQuantile(1 - alpha/2)
	shift := math.Abs(effectSize) * math.Sqrt(n)
	p := normalCDF(shift-zAlpha) + normalCDF(-shift-zAlpha)
	if p > 1 {
		p = 1
	}
	return p
}

func normalCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}

// normalQuantile inverts the standard normal CDF by bisection. Accuracy is
// far beyond what the power estimate needs.
func normalQuantile(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}
	lo, hi := -10.0, 10.0
	for i := 0; i < 80; i++ {
		mid := (lo + hi) / 2
		if normalCDF(mid) < p {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}
