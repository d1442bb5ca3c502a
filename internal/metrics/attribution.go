package metrics

import (
	"sort"

	"github.com/quantfuse/quantfuse/internal/engine"
	"github.com/quantfuse/quantfuse/internal/market"
	"github.com/quantfuse/quantfuse/internal/signal"
)

// SourceAttribution is the performance contribution of one signal source.
// SharpeShare is the source's fraction of total trade-PnL variance explained,
// from a linear covariance decomposition (shares sum to 1 when any variance
// exists).
type SourceAttribution struct {
	Source      signal.Source `json:"source"`
	Trades      TradeMetrics  `json:"trades"`
	TotalPnL    float64       `json:"total_pnl"`
	PnLShare    float64       `json:"pnl_share"`
	SharpeShare float64       `json:"sharpe_share"`
}

// AttributionReport decomposes ledger performance by signal source.
type AttributionReport struct {
	Overall TradeMetrics        `json:"overall"`
	Sources []SourceAttribution `json:"sources"`
}

// Analyzer computes per-source attribution from an engine-annotated ledger.
// The engine stamps each trade with its originating source at creation time,
// so the analyzer consumes an already-enriched, immutable ledger.
type Analyzer struct {
	extractor *Extractor
}

// NewAnalyzer returns an attribution analyzer sharing the extractor's
// trade-metric definitions.
func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{extractor: NewExtractor(cfg)}
}

// Analyze groups trades by source, re-runs the trade metric set per group,
// and decomposes trade-level PnL variance into per-source shares.
func (a *Analyzer) Analyze(ledger *engine.Ledger) AttributionReport {
	report := AttributionReport{
		Overall: a.extractor.tradeMetrics(ledger.Trades),
	}
	if len(ledger.Trades) == 0 {
		return report
	}

	bySource := make(map[signal.Source][]engine.Trade)
	for _, t := range ledger.Trades {
		bySource[t.Source] = append(bySource[t.Source], t)
	}

	totalPnL := ledger.TotalRealizedPnL()
	shares := varianceShares(ledger.Trades, bySource)

	for src, trades := range bySource {
		attr := SourceAttribution{
			Source:      src,
			Trades:      a.extractor.tradeMetrics(trades),
			SharpeShare: shares[src],
		}
		for _, t := range trades {
			attr.TotalPnL += t.RealizedPnL
		}
		if totalPnL != 0 {
			attr.PnLShare = attr.TotalPnL / totalPnL
		}
		report.Sources = append(report.Sources, attr)
	}

	sort.Slice(report.Sources, func(i, j int) bool {
		return report.Sources[i].Source < report.Sources[j].Source
	})
	return report
}

// varianceShares computes cov(x_s, total)/var(total) where x_s is the trade
// PnL sequence masked to source s. The masked sequences sum to the total, so
// the shares form a linear decomposition of the total variance.
func varianceShares(trades []engine.Trade, bySource map[signal.Source][]engine.Trade) map[signal.Source]float64 {
	total := make([]float64, len(trades))
	for i, t := range trades {
		total[i] = t.RealizedPnL
	}
	totalVar := variance(total)
	shares := make(map[signal.Source]float64, len(bySource))
	if totalVar == 0 {
		return shares
	}
	for src := range bySource {
		masked := make([]float64, len(trades))
		for i, t := range trades {
			if t.Source == src {
				masked[i] = t.RealizedPnL
			}
		}
		shares[src] = covariance(masked, total) / totalVar
	}
	return shares
}

func variance(values []float64) float64 {
	s := market.StdDev(values)
	return s * s
}

func covariance(a, b []float64) float64 {
	n := len(a)
	if n < 2 || len(b) != n {
		return 0
	}
	ma, mb := market.Mean(a), market.Mean(b)
	var sum float64
	for i := 0; i < n; i++ {
		sum += (a[i] - ma) * (b[i] - mb)
	}
	return sum / float64(n-1)
}
