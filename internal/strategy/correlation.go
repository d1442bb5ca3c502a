package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantfuse/quantfuse/internal/signal"
)

// Regime is a discrete band of the rolling correlation relative to its
// historical mean and standard deviation.
type Regime string

const (
	RegimeSurge     Regime = "SURGE"     // > mean + 2σ
	RegimeHigh      Regime = "HIGH"      // > mean + 1σ
	RegimeNormal    Regime = "NORMAL"    // within ±1σ
	RegimeLow       Regime = "LOW"       // < mean − 1σ
	RegimeBreakdown Regime = "BREAKDOWN" // < mean − 2σ
)

// RegimeTransition is a discrete regime-change event, distinct from trade
// signals, usable for risk dashboards.
type RegimeTransition struct {
	Timestamp time.Time `json:"timestamp"`
	From      Regime    `json:"from"`
	To        Regime    `json:"to"`
	ZScore    float64   `json:"z_score"`
}

// CorrelationRegimeConfig controls regime classification and the
// mean-reversion signal emitted on extremes.
type CorrelationRegimeConfig struct {
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`
	// MinStd guards against degenerate lookback windows.
	MinStd float64 `yaml:"min_std" json:"min_std"`
}

// DefaultCorrelationRegimeConfig returns standard thresholds.
func DefaultCorrelationRegimeConfig() CorrelationRegimeConfig {
	return CorrelationRegimeConfig{MinConfidence: 0.3, MinStd: 1e-6}
}

// Validate checks config bounds.
func (c CorrelationRegimeConfig) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence %.4f outside [0,1]", c.MinConfidence)
	}
	return nil
}

// CorrelationRegime classifies the rolling correlation into bands and emits
// mean-reversion signals on SURGE and BREAKDOWN extremes. Regime transitions
// are recorded as discrete events and logged.
type CorrelationRegime struct {
	cfg         CorrelationRegimeConfig
	prev        Regime
	transitions []RegimeTransition
}

// NewCorrelationRegime returns the regime strategy or a config error.
func NewCorrelationRegime(cfg CorrelationRegimeConfig) (*CorrelationRegime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MinStd <= 0 {
		cfg.MinStd = 1e-6
	}
	return &CorrelationRegime{cfg: cfg}, nil
}

// Name identifies the strategy in reports and logs.
func (s *CorrelationRegime) Name() string { return "correlation_regime" }

// Classify maps a correlation observation to its regime band.
func Classify(corr, mean, std float64) Regime {
	if std <= 0 {
		return RegimeNormal
	}
	z := (corr - mean) / std
	switch {
	case z > 2:
		return RegimeSurge
	case z > 1:
		return RegimeHigh
	case z < -2:
		return RegimeBreakdown
	case z < -1:
		return RegimeLow
	default:
		return RegimeNormal
	}
}

// Transitions returns the regime-change events recorded so far.
func (s *CorrelationRegime) Transitions() []RegimeTransition { return s.transitions }

// Evaluate classifies the current correlation. Extremes (SURGE, BREAKDOWN)
// emit a mean-reversion signal opposing the deviation, with strength
// proportional to the z-score magnitude capped at 1. Other regimes emit HOLD.
func (s *CorrelationRegime) Evaluate(ctx Context) (*signal.Record, bool) {
	if !isUsable(ctx.Correlation, ctx.CorrMean, ctx.CorrStd) {
		return nil, false
	}
	if ctx.CorrStd < s.cfg.MinStd {
		return s.hold(ctx), true
	}

	z := (ctx.Correlation - ctx.CorrMean) / ctx.CorrStd
	regime := Classify(ctx.Correlation, ctx.CorrMean, ctx.CorrStd)
	s.recordTransition(ctx.Timestamp, regime, z)

	if regime != RegimeSurge && regime != RegimeBreakdown {
		return s.hold(ctx), true
	}

	// Mean reversion: oppose the deviation. A breakdown (z < -2) expects the
	// correlation move to snap back, so the signal points up; a surge points
	// down.
	dir := signal.Sell
	if z < 0 {
		dir = signal.Buy
	}
	strength := math.Min(1, math.Abs(z)/4)
	if dir == signal.Sell {
		strength = -strength
	}
	confidence := clamp01(math.Abs(z) / 3)
	if confidence < s.cfg.MinConfidence {
		return s.hold(ctx), true
	}

	return &signal.Record{
		Timestamp:  ctx.Timestamp,
		Direction:  dir,
		Strength:   strength,
		Confidence: confidence,
		Source:     signal.SourceCorrelation,
	}, true
}

func (s *CorrelationRegime) hold(ctx Context) *signal.Record {
	return &signal.Record{Timestamp: ctx.Timestamp, Direction: signal.Hold, Source: signal.SourceCorrelation}
}

func (s *CorrelationRegime) recordTransition(ts time.Time, regime Regime, z float64) {
	if s.prev == "" {
		s.prev = regime
		return
	}
	if regime == s.prev {
		return
	}
	ev := RegimeTransition{Timestamp: ts, From: s.prev, To: regime, ZScore: z}
	s.transitions = append(s.transitions, ev)
	s.prev = regime
	log.Info().
		Time("ts", ts).
		Str("from", string(ev.From)).
		Str("to", string(ev.To)).
		Float64("z_score", z).
		Msg("correlation regime transition")
}
