package metrics

import (
	"math"
	"math/rand"
	"sort"

	"github.com/quantfuse/quantfuse/internal/engine"
	"github.com/quantfuse/quantfuse/internal/market"
)

// Config controls annualization and the Monte-Carlo VaR simulation.
type Config struct {
	PeriodsPerYear float64 `yaml:"periods_per_year" json:"periods_per_year"`
	RiskFreeRate   float64 `yaml:"risk_free_rate" json:"risk_free_rate"`
	MCIterations   int     `yaml:"mc_iterations" json:"mc_iterations"`
	MCSeed         int64   `yaml:"mc_seed" json:"mc_seed"`
}

// DefaultConfig assumes daily bars and a deterministic simulation seed.
func DefaultConfig() Config {
	return Config{
		PeriodsPerYear: 252,
		RiskFreeRate:   0,
		MCIterations:   10000,
		MCSeed:         42,
	}
}

// Extractor computes a full metrics snapshot from an equity curve and trade
// ledger.
type Extractor struct {
	cfg Config
}

// NewExtractor returns an extractor; a zero-value config gets defaults.
func NewExtractor(cfg Config) *Extractor {
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = 252
	}
	if cfg.MCIterations <= 0 {
		cfg.MCIterations = 10000
	}
	return &Extractor{cfg: cfg}
}

// Extract computes the full snapshot. Degenerate inputs (no trades, zero
// variance) produce 0-valued ratio metrics instead of errors.
func (x *Extractor) Extract(curve *engine.EquityCurve, ledger *engine.Ledger) Snapshot {
	returns := curve.Returns()
	return Snapshot{
		Performance: x.performance(curve, returns),
		Risk:        x.risk(returns),
		Trades:      x.tradeMetrics(ledger.Trades),
		Drawdown:    x.drawdown(curve),
		Equity:      x.equityCurve(curve, returns, ledger),
	}
}

func (x *Extractor) performance(curve *engine.EquityCurve, returns []float64) PerformanceMetrics {
	var p PerformanceMetrics
	if curve.Initial <= 0 || len(curve.Points) == 0 {
		return p
	}
	final := curve.Final()
	p.TotalReturn = (final - curve.Initial) / curve.Initial

	years := float64(len(curve.Points)) / x.cfg.PeriodsPerYear
	if years > 0 && final > 0 {
		p.CAGR = math.Pow(final/curve.Initial, 1/years) - 1
	}
	p.AnnualizedReturn = market.Mean(returns) * x.cfg.PeriodsPerYear

	std := market.StdDev(returns)
	p.Volatility = std * math.Sqrt(x.cfg.PeriodsPerYear)

	rfPerPeriod := x.cfg.RiskFreeRate / x.cfg.PeriodsPerYear
	excess := market.Mean(returns) - rfPerPeriod
	if std > 0 {
		p.Sharpe = excess / std * math.Sqrt(x.cfg.PeriodsPerYear)
	}
	dd := downsideDeviation(returns, rfPerPeriod)
	if dd > 0 {
		p.Sortino = excess / dd * math.Sqrt(x.cfg.PeriodsPerYear)
	}
	maxDD := maxDrawdown(curve)
	if maxDD > 0 {
		p.Calmar = p.CAGR / maxDD
	}
	return p
}

func (x *Extractor) risk(returns []float64) RiskMetrics {
	var r RiskMetrics
	if len(returns) == 0 {
		return r
	}
	r.VaR95Historical = historicalVaR(returns, 0.95)
	r.VaR99Historical = historicalVaR(returns, 0.99)
	r.ExpectedShortfall = expectedShortfall(returns, 0.95)
	r.Skewness = skewness(returns)
	r.Kurtosis = excessKurtosis(returns)
	r.DownsideDeviation = downsideDeviation(returns, 0)

	mu := market.Mean(returns)
	sigma := market.StdDev(returns)
	if sigma > 0 {
		mc95, mc99 := x.monteCarloVaR(mu, sigma)
		r.VaR95MonteCarlo = mc95
		r.VaR99MonteCarlo = mc99
	}
	return r
}

// monteCarloVaR simulates one-period returns from a normal fit and reads the
// loss quantiles. The seed is fixed in config so repeated extractions agree.
func (x *Extractor) monteCarloVaR(mu, sigma float64) (var95, var99 float64) {
	rng := rand.New(rand.NewSource(x.cfg.MCSeed))
	sims := make([]float64, x.cfg.MCIterations)
	for i := range sims {
		sims[i] = mu + sigma*rng.NormFloat64()
	}
	return historicalVaR(sims, 0.95), historicalVaR(sims, 0.99)
}

func (x *Extractor) tradeMetrics(trades []engine.Trade) TradeMetrics {
	var t TradeMetrics
	t.TotalTrades = len(trades)
	if len(trades) == 0 {
		return t
	}

	var grossWin, grossLoss, totalPnL, holdDays float64
	var curWins, curLosses int
	t.BestTrade = trades[0].RealizedPnL
	t.WorstTrade = trades[0].RealizedPnL

	for _, tr := range trades {
		pnl := tr.RealizedPnL
		totalPnL += pnl
		t.TotalCosts += tr.Costs
		holdDays += tr.Holding.Hours() / 24
		if pnl > t.BestTrade {
			t.BestTrade = pnl
		}
		if pnl < t.WorstTrade {
			t.WorstTrade = pnl
		}
		if pnl > 0 {
			t.WinningTrades++
			grossWin += pnl
			curWins++
			curLosses = 0
			if curWins > t.MaxConsecutiveWins {
				t.MaxConsecutiveWins = curWins
			}
		} else if pnl < 0 {
			t.LosingTrades++
			grossLoss += -pnl
			curLosses++
			curWins = 0
			if curLosses > t.MaxConsecutiveLosses {
				t.MaxConsecutiveLosses = curLosses
			}
		} else {
			curWins = 0
			curLosses = 0
		}
	}

	n := float64(len(trades))
	t.WinRate = float64(t.WinningTrades) / n
	t.Expectancy = totalPnL / n
	t.AvgHoldingDays = holdDays / n
	if t.WinningTrades > 0 {
		t.AvgWin = grossWin / float64(t.WinningTrades)
	}
	if t.LosingTrades > 0 {
		t.AvgLoss = -grossLoss / float64(t.LosingTrades)
	}
	if grossLoss > 0 {
		t.ProfitFactor = grossWin / grossLoss
	}
	return t
}

func (x *Extractor) drawdown(curve *engine.EquityCurve) DrawdownMetrics {
	var d DrawdownMetrics
	if len(curve.Points) == 0 {
		return d
	}

	peak := curve.Initial
	peakIdx := -1
	var ddSum float64
	var ddCount int

	for i, p := range curve.Points {
		if p.Value >= peak {
			peak = p.Value
			peakIdx = i
			continue
		}
		dd := (peak - p.Value) / peak
		ddSum += dd
		ddCount++
		if dd > d.MaxDrawdown {
			d.MaxDrawdown = dd
			d.MaxDrawdownDuration = i - peakIdx
		}
	}

	last := curve.Points[len(curve.Points)-1].Value
	if peak > 0 && last < peak {
		d.CurrentDrawdown = (peak - last) / peak
	}
	if ddCount > 0 {
		d.AvgDrawdown = ddSum / float64(ddCount)
	}
	d.RecoveryPeriods = recoveryPeriods(curve)
	return d
}

// recoveryPeriods counts bars from the max-drawdown trough back to the prior
// peak level, 0 when the curve never recovered.
func recoveryPeriods(curve *engine.EquityCurve) int {
	peak := curve.Initial
	peakVal := peak
	var maxDD float64
	troughIdx := -1
	troughPeakVal := 0.0
	for i, p := range curve.Points {
		if p.Value >= peakVal {
			peakVal = p.Value
			continue
		}
		dd := (peakVal - p.Value) / peakVal
		if dd > maxDD {
			maxDD = dd
			troughIdx = i
			troughPeakVal = peakVal
		}
	}
	if troughIdx < 0 {
		return 0
	}
	for i := troughIdx + 1; i < len(curve.Points); i++ {
		if curve.Points[i].Value >= troughPeakVal {
			return i - troughIdx
		}
	}
	return 0
}

func (x *Extractor) equityCurve(curve *engine.EquityCurve, returns []float64, ledger *engine.Ledger) EquityCurveMetrics {
	var e EquityCurveMetrics
	e.FinalEquity = curve.Final()
	e.TotalRealizedPnL = ledger.TotalRealizedPnL()
	if len(returns) == 0 {
		return e
	}
	e.BestPeriod = returns[0]
	e.WorstPeriod = returns[0]
	for _, r := range returns {
		switch {
		case r > 0:
			e.PositivePeriods++
		case r < 0:
			e.NegativePeriods++
		default:
			e.FlatPeriods++
		}
		if r > e.BestPeriod {
			e.BestPeriod = r
		}
		if r < e.WorstPeriod {
			e.WorstPeriod = r
		}
	}
	e.AvgPeriodReturn = market.Mean(returns)
	e.PositiveRate = float64(e.PositivePeriods) / float64(len(returns))
	return e
}

// historicalVaR returns the loss at the given confidence as a positive
// fraction (0 when the quantile is a gain).
func historicalVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	v := sorted[idx]
	if v >= 0 {
		return 0
	}
	return -v
}

// expectedShortfall averages the losses beyond the VaR quantile.
func expectedShortfall(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	cut := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if cut == 0 {
		cut = 1
	}
	var sum float64
	var n int
	for _, v := range sorted[:cut] {
		if v < 0 {
			sum += -v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func downsideDeviation(returns []float64, target float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var ss float64
	for _, r := range returns {
		if r < target {
			d := r - target
			ss += d * d
		}
	}
	return math.Sqrt(ss / float64(len(returns)))
}

func skewness(returns []float64) float64 {
	n := float64(len(returns))
	if n < 3 {
		return 0
	}
	m := market.Mean(returns)
	s := market.StdDev(returns)
	if s == 0 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += math.Pow((r-m)/s, 3)
	}
	return n / ((n - 1) * (n - 2)) * sum
}

func excessKurtosis(returns []float64) float64 {
	n := float64(len(returns))
	if n < 4 {
		return 0
	}
	m := market.Mean(returns)
	s := market.StdDev(returns)
	if s == 0 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += math.Pow((r-m)/s, 4)
	}
	return n*(n+1)/((n-1)*(n-2)*(n-3))*sum - 3*(n-1)*(n-1)/((n-2)*(n-3))
}

func maxDrawdown(curve *engine.EquityCurve) float64 {
	peak := curve.Initial
	var maxDD float64
	for _, p := range curve.Points {
		if p.Value > peak {
			peak = p.Value
		} else if peak > 0 {
			if dd := (peak - p.Value) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
