package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quantfuse/quantfuse/internal/market"
	"github.com/quantfuse/quantfuse/internal/signal"
)

// CostModel is a fixed-plus-proportional transaction cost, applied on both
// entry and exit.
type CostModel struct {
	Fixed        float64 `yaml:"fixed" json:"fixed"`
	Proportional float64 `yaml:"proportional" json:"proportional"`
}

// Cost returns the cost of transacting |quantity| units at price.
func (c CostModel) Cost(price, quantity float64) float64 {
	return c.Fixed + c.Proportional*math.Abs(quantity)*price
}

// ConfidenceFunc maps a signal confidence in [0,1] to a position-size
// multiplier. Implementations must be monotonic and never negative.
type ConfidenceFunc func(confidence float64) float64

// Config controls a backtest run.
type Config struct {
	// BaseSize is the fraction of current equity committed at a confidence
	// factor of 1.
	BaseSize float64 `yaml:"base_size" json:"base_size"`
	// MaxLeverage caps the effective size fraction (BaseSize scaled by the
	// confidence factor).
	MaxLeverage float64 `yaml:"max_leverage" json:"max_leverage"`
	// MinConfidence gates entries and reversal exits.
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`
	// AllowShort enables SELL entries while flat.
	AllowShort bool      `yaml:"allow_short" json:"allow_short"`
	Costs      CostModel `yaml:"costs" json:"costs"`

	// ConfidenceFactor sizes positions from signal confidence. Nil means
	// identity.
	ConfidenceFactor ConfidenceFunc `yaml:"-" json:"-"`
}

// DefaultConfig returns conservative engine defaults.
func DefaultConfig() Config {
	return Config{
		BaseSize:      0.95,
		MaxLeverage:   1.0,
		MinConfidence: 0.3,
		AllowShort:    false,
		Costs:         CostModel{Fixed: 0, Proportional: 0.001},
	}
}

// Validate checks config bounds.
func (c Config) Validate() error {
	if c.BaseSize <= 0 {
		return fmt.Errorf("base_size must be positive, got %.4f", c.BaseSize)
	}
	if c.MaxLeverage <= 0 {
		return fmt.Errorf("max_leverage must be positive, got %.4f", c.MaxLeverage)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence %.4f outside [0,1]", c.MinConfidence)
	}
	if c.Costs.Fixed < 0 || c.Costs.Proportional < 0 {
		return fmt.Errorf("transaction costs cannot be negative")
	}
	return nil
}

// ExitReason describes why a trade closed.
type ExitReason string

const (
	ExitSignal    ExitReason = "signal"
	ExitStopLoss  ExitReason = "stop_loss"
	ExitTarget    ExitReason = "take_profit"
	ExitEndOfData ExitReason = "end_of_data"
)

// Trade is one completed round trip. Quantity is signed (positive = long).
// Trades are owned by the ledger of the run that created them and never
// mutated after closing.
type Trade struct {
	ID          string        `json:"id"`
	EntryTime   time.Time     `json:"entry_time"`
	EntryPrice  float64       `json:"entry_price"`
	ExitTime    time.Time     `json:"exit_time"`
	ExitPrice   float64       `json:"exit_price"`
	Quantity    float64       `json:"quantity"`
	RealizedPnL float64       `json:"realized_pnl"`
	Costs       float64       `json:"costs"`
	Holding     time.Duration `json:"holding"`
	Source      signal.Source `json:"source"`
	StopLoss    *float64      `json:"stop_loss,omitempty"`
	TakeProfit  *float64      `json:"take_profit,omitempty"`
	ExitReason  ExitReason    `json:"exit_reason"`
}

// Ledger is the ordered record of completed trades for one run.
type Ledger struct {
	Trades []Trade `json:"trades"`
}

// TotalRealizedPnL sums realized PnL across the ledger.
func (l *Ledger) TotalRealizedPnL() float64 {
	var sum float64
	for _, t := range l.Trades {
		sum += t.RealizedPnL
	}
	return sum
}

// TotalCosts sums transaction costs across the ledger.
func (l *Ledger) TotalCosts() float64 {
	var sum float64
	for _, t := range l.Trades {
		sum += t.Costs
	}
	return sum
}

// BySource returns the trades attributed to one signal source.
func (l *Ledger) BySource(src signal.Source) []Trade {
	var out []Trade
	for _, t := range l.Trades {
		if t.Source == src {
			out = append(out, t)
		}
	}
	return out
}

// EquityPoint is one daily portfolio observation, produced append-only.
type EquityPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	Value         float64   `json:"value"`
	Cash          float64   `json:"cash"`
	Position      float64   `json:"position"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
}

// EquityCurve is the daily portfolio value series for one run.
type EquityCurve struct {
	Initial float64       `json:"initial"`
	Points  []EquityPoint `json:"points"`
}

// Final returns the last portfolio value (the initial capital for an empty
// curve).
func (c *EquityCurve) Final() float64 {
	if len(c.Points) == 0 {
		return c.Initial
	}
	return c.Points[len(c.Points)-1].Value
}

// Returns computes per-point simple returns of the curve, anchored at the
// initial capital.
func (c *EquityCurve) Returns() []float64 {
	out := make([]float64, len(c.Points))
	prev := c.Initial
	for i, p := range c.Points {
		if prev != 0 {
			out[i] = (p.Value - prev) / prev
		}
		prev = p.Value
	}
	return out
}

// Engine simulates trades from a canonical signal series over a price
// series. A run is strictly sequential; parallelism belongs across runs,
// each with its own Engine instance.
type Engine struct {
	cfg Config
}

// New returns an engine for the given config.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

type runState struct {
	cash       float64
	qty        float64
	entryPrice float64
	entryCost  float64
	entryTime  time.Time
	source     signal.Source
	stop       *float64
	target     *float64
}

func (st *runState) inPosition() bool { return st.qty != 0 }

// Run executes one backtest. Prices and signals must share a timestamp
// domain exactly; initialCapital must be positive. It returns the completed
// trade ledger and the daily equity curve.
func (e *Engine) Run(prices *market.Series, signals *signal.Series, initialCapital float64) (*Ledger, *EquityCurve, error) {
	if initialCapital <= 0 {
		return nil, nil, fmt.Errorf("initial capital must be positive, got %.2f", initialCapital)
	}
	if err := prices.Validate(); err != nil {
		return nil, nil, err
	}
	if err := signals.Validate(); err != nil {
		return nil, nil, err
	}
	if err := prices.CheckAligned(signals.Timestamps()); err != nil {
		return nil, nil, err
	}

	ledger := &Ledger{}
	curve := &EquityCurve{Initial: initialCapital, Points: make([]EquityPoint, 0, prices.Len())}
	st := &runState{cash: initialCapital}

	for i, bar := range prices.Bars {
		rec := signals.Records[i]
		transitioned := false

		if st.inPosition() {
			// Intraday stop/target checks use the bar's high/low. When both
			// levels fall inside one bar the stop wins (conservative fill).
			if exitPrice, reason, hit := e.checkExitLevels(st, bar); hit {
				e.closePosition(st, ledger, bar.Timestamp, exitPrice, reason)
				transitioned = true
			} else if e.isReversal(st, rec) {
				e.closePosition(st, ledger, bar.Timestamp, bar.Close, ExitSignal)
				transitioned = true
			}
		}

		// At most one trade-state transition per timestamp: a close above
		// blocks a same-bar reopen. Flat equity is all cash.
		if !transitioned && !st.inPosition() {
			e.maybeOpen(st, rec, bar, st.cash)
		}

		curve.Points = append(curve.Points, EquityPoint{
			Timestamp:     bar.Timestamp,
			Value:         st.cash + st.qty*bar.Close,
			Cash:          st.cash,
			Position:      st.qty,
			UnrealizedPnL: st.qty * (bar.Close - st.entryPrice),
		})
	}

	// Force-close any open position at the last available close.
	if st.inPosition() {
		last := prices.Bars[prices.Len()-1]
		e.closePosition(st, ledger, last.Timestamp, last.Close, ExitEndOfData)
		p := &curve.Points[len(curve.Points)-1]
		p.Value = st.cash
		p.Cash = st.cash
		p.Position = 0
		p.UnrealizedPnL = 0
	}

	log.Debug().
		Str("symbol", prices.Symbol).
		Int("bars", prices.Len()).
		Int("trades", len(ledger.Trades)).
		Float64("final_equity", curve.Final()).
		Msg("backtest run complete")

	return ledger, curve, nil
}

func (e *Engine) isReversal(st *runState, rec signal.Record) bool {
	if rec.Confidence < e.cfg.MinConfidence {
		return false
	}
	if st.qty > 0 {
		return rec.Direction == signal.Sell
	}
	return rec.Direction == signal.Buy
}

func (e *Engine) checkExitLevels(st *runState, bar market.Bar) (float64, ExitReason, bool) {
	if st.qty > 0 {
		if st.stop != nil && bar.Low <= *st.stop {
			return *st.stop, ExitStopLoss, true
		}
		if st.target != nil && bar.High >= *st.target {
			return *st.target, ExitTarget, true
		}
		return 0, "", false
	}
	if st.stop != nil && bar.High >= *st.stop {
		return *st.stop, ExitStopLoss, true
	}
	if st.target != nil && bar.Low <= *st.target {
		return *st.target, ExitTarget, true
	}
	return 0, "", false
}

func (e *Engine) maybeOpen(st *runState, rec signal.Record, bar market.Bar, equity float64) {
	if rec.Confidence < e.cfg.MinConfidence {
		return
	}
	var short bool
	switch rec.Direction {
	case signal.Buy:
	case signal.Sell:
		if !e.cfg.AllowShort {
			return
		}
		short = true
	default:
		return
	}

	factor := rec.Confidence
	if e.cfg.ConfidenceFactor != nil {
		factor = e.cfg.ConfidenceFactor(rec.Confidence)
	}
	if factor < 0 {
		factor = 0
	}
	fraction := math.Min(e.cfg.BaseSize*factor, e.cfg.MaxLeverage)
	qty := fraction * equity / bar.Close
	if qty <= 0 {
		return
	}
	if short {
		qty = -qty
	}

	cost := e.cfg.Costs.Cost(bar.Close, qty)
	st.cash -= qty*bar.Close + cost
	st.qty = qty
	st.entryPrice = bar.Close
	st.entryCost = cost
	st.entryTime = bar.Timestamp
	st.source = rec.Source
	st.stop = nil
	st.target = nil
	if rec.StopLoss > 0 {
		v := rec.StopLoss
		st.stop = &v
	}
	if rec.TakeProfit > 0 {
		v := rec.TakeProfit
		st.target = &v
	}
}

func (e *Engine) closePosition(st *runState, ledger *Ledger, ts time.Time, exitPrice float64, reason ExitReason) {
	exitCost := e.cfg.Costs.Cost(exitPrice, st.qty)
	totalCosts := st.entryCost + exitCost
	realized := (exitPrice-st.entryPrice)*st.qty - totalCosts

	ledger.Trades = append(ledger.Trades, Trade{
		ID:          uuid.NewString(),
		EntryTime:   st.entryTime,
		EntryPrice:  st.entryPrice,
		ExitTime:    ts,
		ExitPrice:   exitPrice,
		Quantity:    st.qty,
		RealizedPnL: realized,
		Costs:       totalCosts,
		Holding:     ts.Sub(st.entryTime),
		Source:      st.source,
		StopLoss:    st.stop,
		TakeProfit:  st.target,
		ExitReason:  reason,
	})

	st.cash += st.qty*exitPrice - exitCost
	st.qty = 0
	st.entryPrice = 0
	st.entryCost = 0
	st.stop = nil
	st.target = nil
}
