package metrics

// PerformanceMetrics covers return and risk-adjusted return figures.
// Annualized figures assume the configured periods-per-year.
type PerformanceMetrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	CAGR             float64 `json:"cagr"`
	Volatility       float64 `json:"volatility"`
	Sharpe           float64 `json:"sharpe"`
	Sortino          float64 `json:"sortino"`
	Calmar           float64 `json:"calmar"`
}

// RiskMetrics covers tail and distribution shape figures. VaR values are
// reported as positive loss fractions.
type RiskMetrics struct {
	VaR95Historical   float64 `json:"var_95_historical"`
	VaR99Historical   float64 `json:"var_99_historical"`
	VaR95MonteCarlo   float64 `json:"var_95_monte_carlo"`
	VaR99MonteCarlo   float64 `json:"var_99_monte_carlo"`
	ExpectedShortfall float64 `json:"expected_shortfall_95"`
	Skewness          float64 `json:"skewness"`
	Kurtosis          float64 `json:"kurtosis"`
	DownsideDeviation float64 `json:"downside_deviation"`
}

// TradeMetrics covers ledger-level statistics.
type TradeMetrics struct {
	TotalTrades          int     `json:"total_trades"`
	WinningTrades        int     `json:"winning_trades"`
	LosingTrades         int     `json:"losing_trades"`
	WinRate              float64 `json:"win_rate"`
	ProfitFactor         float64 `json:"profit_factor"`
	Expectancy           float64 `json:"expectancy"`
	AvgWin               float64 `json:"avg_win"`
	AvgLoss              float64 `json:"avg_loss"`
	BestTrade            float64 `json:"best_trade"`
	WorstTrade           float64 `json:"worst_trade"`
	MaxConsecutiveWins   int     `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	AvgHoldingDays       float64 `json:"avg_holding_days"`
	TotalCosts           float64 `json:"total_costs"`
}

// DrawdownMetrics covers peak-to-trough statistics. Drawdowns are positive
// fractions; durations are in periods (trading days).
type DrawdownMetrics struct {
	MaxDrawdown         float64 `json:"max_drawdown"`
	MaxDrawdownDuration int     `json:"max_drawdown_duration"`
	RecoveryPeriods     int     `json:"recovery_periods"`
	AvgDrawdown         float64 `json:"avg_drawdown"`
	CurrentDrawdown     float64 `json:"current_drawdown"`
}

// EquityCurveMetrics covers day-level curve statistics.
type EquityCurveMetrics struct {
	PositivePeriods  int     `json:"positive_periods"`
	NegativePeriods  int     `json:"negative_periods"`
	FlatPeriods      int     `json:"flat_periods"`
	BestPeriod       float64 `json:"best_period"`
	WorstPeriod      float64 `json:"worst_period"`
	AvgPeriodReturn  float64 `json:"avg_period_return"`
	PositiveRate     float64 `json:"positive_rate"`
	FinalEquity      float64 `json:"final_equity"`
	TotalRealizedPnL float64 `json:"total_realized_pnl"`
}

// Snapshot groups the full metric set by category. All ratio metrics return
// 0 for zero-variance or zero-trade inputs rather than raising.
type Snapshot struct {
	Performance PerformanceMetrics `json:"performance"`
	Risk        RiskMetrics        `json:"risk"`
	Trades      TradeMetrics       `json:"trades"`
	Drawdown    DrawdownMetrics    `json:"drawdown"`
	Equity      EquityCurveMetrics `json:"equity_curve"`
}

// Flatten serializes the snapshot as a self-describing map of
// "category.metric" to numeric value, for downstream rendering.
func (s Snapshot) Flatten() map[string]float64 {
	out := map[string]float64{
		"performance.total_return":        s.Performance.TotalReturn,
		"performance.annualized_return":   s.Performance.AnnualizedReturn,
		"performance.cagr":                s.Performance.CAGR,
		"performance.volatility":          s.Performance.Volatility,
		"performance.sharpe":              s.Performance.Sharpe,
		"performance.sortino":             s.Performance.Sortino,
		"performance.calmar":              s.Performance.Calmar,
		"risk.var_95_historical":          s.Risk.VaR95Historical,
		"risk.var_99_historical":          s.Risk.VaR99Historical,
		"risk.var_95_monte_carlo":         s.Risk.VaR95MonteCarlo,
		"risk.var_99_monte_carlo":         s.Risk.VaR99MonteCarlo,
		"risk.expected_shortfall_95":      s.Risk.ExpectedShortfall,
		"risk.skewness":                   s.Risk.Skewness,
		"risk.kurtosis":                   s.Risk.Kurtosis,
		"risk.downside_deviation":         s.Risk.DownsideDeviation,
		"trades.total_trades":             float64(s.Trades.TotalTrades),
		"trades.winning_trades":           float64(s.Trades.WinningTrades),
		"trades.losing_trades":            float64(s.Trades.LosingTrades),
		"trades.win_rate":                 s.Trades.WinRate,
		"trades.profit_factor":            s.Trades.ProfitFactor,
		"trades.expectancy":               s.Trades.Expectancy,
		"trades.avg_win":                  s.Trades.AvgWin,
		"trades.avg_loss":                 s.Trades.AvgLoss,
		"trades.best_trade":               s.Trades.BestTrade,
		"trades.worst_trade":              s.Trades.WorstTrade,
		"trades.max_consecutive_wins":     float64(s.Trades.MaxConsecutiveWins),
		"trades.max_consecutive_losses":   float64(s.Trades.MaxConsecutiveLosses),
		"trades.avg_holding_days":         s.Trades.AvgHoldingDays,
		"trades.total_costs":              s.Trades.TotalCosts,
		"drawdown.max_drawdown":           s.Drawdown.MaxDrawdown,
		"drawdown.max_drawdown_duration":  float64(s.Drawdown.MaxDrawdownDuration),
		"drawdown.recovery_periods":       float64(s.Drawdown.RecoveryPeriods),
		"drawdown.avg_drawdown":           s.Drawdown.AvgDrawdown,
		"drawdown.current_drawdown":       s.Drawdown.CurrentDrawdown,
		"equity_curve.positive_periods":   float64(s.Equity.PositivePeriods),
		"equity_curve.negative_periods":   float64(s.Equity.NegativePeriods),
		"equity_curve.flat_periods":       float64(s.Equity.FlatPeriods),
		"equity_curve.best_period":        s.Equity.BestPeriod,
		"equity_curve.worst_period":       s.Equity.WorstPeriod,
		"equity_curve.avg_period_return":  s.Equity.AvgPeriodReturn,
		"equity_curve.positive_rate":      s.Equity.PositiveRate,
		"equity_curve.final_equity":       s.Equity.FinalEquity,
		"equity_curve.total_realized_pnl": s.Equity.TotalRealizedPnL,
	}
	return out
}

// Categories lists the category grouping of the flattened metric names.
func Categories() []string {
	return []string{"performance", "risk", "trades", "drawdown", "equity_curve"}
}
