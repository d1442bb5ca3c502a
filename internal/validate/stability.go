package validate

import (
	"fmt"
	"math"
	"sort"

	"github.com/quantfuse/quantfuse/internal/engine"
	"github.com/quantfuse/quantfuse/internal/market"
)

// Granularity selects the calendar bucket for stability analysis.
type Granularity string

const (
	Monthly   Granularity = "monthly"
	Quarterly Granularity = "quarterly"
)

// PeriodStat is one calendar period's return and Sharpe.
type PeriodStat struct {
	Label  string  `json:"label"`
	Return float64 `json:"return"`
	Sharpe float64 `json:"sharpe"`
	Days   int     `json:"days"`
}

// StabilityResult measures the temporal consistency of the edge.
type StabilityResult struct {
	Periods       []PeriodStat `json:"periods"`
	CoefVariation float64      `json:"coef_variation"`
	TrendSlope    float64      `json:"trend_slope"`
	TrendPValue   float64      `json:"trend_p_value"`
	Stable        bool         `json:"stable"`
	Reasons       []string     `json:"reasons,omitempty"`
}

// StabilityCheck buckets the equity curve by calendar period and flags
// instability when the coefficient of variation of period returns exceeds
// the threshold or a significantly negative degradation trend exists.
func (v *Validator) StabilityCheck(curve *engine.EquityCurve) StabilityResult {
	res := StabilityResult{Stable: true}
	if curve == nil || len(curve.Points) == 0 {
		res.Stable = false
		res.Reasons = append(res.Reasons, "empty equity curve")
		return res
	}

	res.Periods = bucketPeriods(curve, v.cfg.Granularity, v.cfg.PeriodsPerYear)
	if len(res.Periods) < 2 {
		res.Reasons = append(res.Reasons, "fewer than two calendar periods")
		return res
	}

	rets := make([]float64, len(res.Periods))
	for i, p := range res.Periods {
		rets[i] = p.Return
	}

	mean := market.Mean(rets)
	std := market.StdDev(rets)
	if mean != 0 {
		res.CoefVariation = std / math.Abs(mean)
	}
	if res.CoefVariation > v.cfg.StabilityCVThreshold {
		res.Stable = false
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("period return CV %.2f exceeds threshold %.2f", res.CoefVariation, v.cfg.StabilityCVThreshold))
	}

	res.TrendSlope, res.TrendPValue = trend(rets)
	if res.TrendSlope < 0 && res.TrendPValue < 0.05 {
		res.Stable = false
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("significant degradation trend (slope %.6f, p %.4f)", res.TrendSlope, res.TrendPValue))
	}
	return res
}

func bucketPeriods(curve *engine.EquityCurve, g Granularity, periodsPerYear float64) []PeriodStat {
	type bucket struct {
		returns []float64
		start   float64
		end     float64
	}
	buckets := make(map[string]*bucket)
	var labels []string

	prev := curve.Initial
	for _, p := range curve.Points {
		label := periodLabel(p.Timestamp.Year(), int(p.Timestamp.Month()), g)
		b, ok := buckets[label]
		if !ok {
			b = &bucket{start: prev}
			buckets[label] = b
			labels = append(labels, label)
		}
		var r float64
		if prev != 0 {
			r = (p.Value - prev) / prev
		}
		b.returns = append(b.returns, r)
		b.end = p.Value
		prev = p.Value
	}
	sort.Strings(labels)

	out := make([]PeriodStat, 0, len(labels))
	for _, label := range labels {
		b := buckets[label]
		stat := PeriodStat{Label: label, Days: len(b.returns)}
		if b.start != 0 {
			stat.Return = (b.end - b.start) / b.start
		}
		if std := market.StdDev(b.returns); std > 0 {
			stat.Sharpe = market.Mean(b.returns) / std * math.Sqrt(periodsPerYear)
		}
		out = append(out, stat)
	}
	return out
}

func periodLabel(year, month int, g Granularity) string {
	if g == Quarterly {
		return fmt.Sprintf("%04d-Q%d", year, (month-1)/3+1)
	}
	return fmt.Sprintf("%04d-%02d", year, month)
}

// trend fits an OLS line to the period returns and returns the slope with
// the two-sided p-value of its t-statistic (normal approximation).
func trend(values []float64) (slope, pValue float64) {
	n := float64(len(values))
	if n < 3 {
		return 0, 1
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, 1
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	var sse, sxx float64
	meanX := sumX / n
	for i, v := range values {
		x := float64(i)
		resid := v - (intercept + slope*x)
		sse += resid * resid
		sxx += (x - meanX) * (x - meanX)
	}
	if sse == 0 || sxx == 0 {
		if slope == 0 {
			return slope, 1
		}
		return slope, 0
	}
	se := math.Sqrt(sse / (n - 2) / sxx)
	t := slope / se
	return slope, 2 * (1 - normalCDF(math.Abs(t)))
}
