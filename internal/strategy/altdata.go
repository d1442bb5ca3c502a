package strategy

import (
	"fmt"
	"math"

	"github.com/quantfuse/quantfuse/internal/signal"
)

// MergeMode selects how the price and alt signals are combined.
type MergeMode string

const (
	MergeWeighted      MergeMode = "weighted"
	MergeVoting        MergeMode = "voting"
	MergeMaxConfidence MergeMode = "max_confidence"
)

// AltDataFusionConfig controls the fusion of a price signal with an
// alternative-data signal. PriceWeight and AltWeight must sum to 1.
type AltDataFusionConfig struct {
	Mode          MergeMode `yaml:"mode" json:"mode"`
	PriceWeight   float64   `yaml:"price_weight" json:"price_weight"`
	AltWeight     float64   `yaml:"alt_weight" json:"alt_weight"`
	MinConfidence float64   `yaml:"min_confidence" json:"min_confidence"`
	BaseSize      float64   `yaml:"base_size" json:"base_size"`
	MaxSize       float64   `yaml:"max_size" json:"max_size"`
	StopATRMult   float64   `yaml:"stop_atr_mult" json:"stop_atr_mult"`
	TargetATRMult float64   `yaml:"target_atr_mult" json:"target_atr_mult"`
}

// DefaultAltDataFusionConfig returns an even-weighted weighted-average merge.
func DefaultAltDataFusionConfig() AltDataFusionConfig {
	return AltDataFusionConfig{
		Mode:          MergeWeighted,
		PriceWeight:   0.5,
		AltWeight:     0.5,
		MinConfidence: 0.4,
		BaseSize:      1.0,
		MaxSize:       1.0,
		StopATRMult:   2.0,
		TargetATRMult: 3.0,
	}
}

// Validate checks weight and threshold bounds.
func (c AltDataFusionConfig) Validate() error {
	if math.Abs(c.PriceWeight+c.AltWeight-1) > 1e-9 {
		return fmt.Errorf("price_weight %.4f + alt_weight %.4f must sum to 1", c.PriceWeight, c.AltWeight)
	}
	if c.PriceWeight < 0 || c.AltWeight < 0 {
		return fmt.Errorf("merge weights cannot be negative")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence %.4f outside [0,1]", c.MinConfidence)
	}
	switch c.Mode {
	case MergeWeighted, MergeVoting, MergeMaxConfidence, "":
	default:
		return fmt.Errorf("unknown merge mode %q", c.Mode)
	}
	return nil
}

// AltDataFusion merges an independently-generated price signal with an
// alternative-data signal, scaling confidence by the correlation between the
// two series and by the agreement of their signs.
type AltDataFusion struct {
	cfg AltDataFusionConfig
}

// NewAltDataFusion returns the fusion strategy or a config error.
func NewAltDataFusion(cfg AltDataFusionConfig) (*AltDataFusion, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode == "" {
		cfg.Mode = MergeWeighted
	}
	return &AltDataFusion{cfg: cfg}, nil
}

// Name identifies the strategy in reports and logs.
func (f *AltDataFusion) Name() string { return "alt_data_fusion" }

// Evaluate merges the two signals for one timestamp. Equal votes and equal
// confidences are treated as HOLD.
func (f *AltDataFusion) Evaluate(ctx Context) (*signal.Record, bool) {
	if !isUsable(ctx.PriceSignal, ctx.AltSignal, ctx.Correlation) {
		return nil, false
	}

	merged, ok := f.merge(ctx.PriceSignal, ctx.AltSignal)
	if !ok || merged == 0 {
		return f.hold(ctx), true
	}

	agreement := agreementMultiplier(ctx.PriceSignal, ctx.AltSignal)
	confidence := clamp01(agreement * (math.Abs(merged) + math.Abs(ctx.Correlation)) / 2)

	if confidence < f.cfg.MinConfidence {
		return f.hold(ctx), true
	}

	dir := signal.Buy
	if merged < 0 {
		dir = signal.Sell
	}
	rec := &signal.Record{
		Timestamp:       ctx.Timestamp,
		Direction:       dir,
		Strength:        clamp(merged, -1, 1),
		Confidence:      confidence,
		Source:          signal.SourceCombined,
		RecommendedSize: math.Min(f.cfg.MaxSize, f.cfg.BaseSize*confidence),
	}
	f.applyExitLevels(rec, ctx, merged)
	return rec, true
}

func (f *AltDataFusion) hold(ctx Context) *signal.Record {
	return &signal.Record{Timestamp: ctx.Timestamp, Direction: signal.Hold, Source: signal.SourceCombined}
}

// merge returns the combined signal value; ok is false when the mode's
// tie-break resolves to HOLD.
func (f *AltDataFusion) merge(price, alt float64) (float64, bool) {
	switch f.cfg.Mode {
	case MergeVoting:
		ps, as := sign(price), sign(alt)
		if ps+as == 0 {
			// Opposing or absent votes: equal-vote ties resolve to HOLD.
			return 0, false
		}
		dir := sign(ps + as)
		magnitude := (math.Abs(price) + math.Abs(alt)) / 2
		return dir * magnitude, true
	case MergeMaxConfidence:
		pa, aa := math.Abs(price), math.Abs(alt)
		if pa == aa && sign(price) != sign(alt) {
			// Equal confidences with conflicting directions: HOLD.
			return 0, false
		}
		if pa >= aa {
			return price, true
		}
		return alt, true
	default:
		return f.cfg.PriceWeight*price + f.cfg.AltWeight*alt, true
	}
}

// agreementMultiplier is 1.0 when both signals agree in sign, 0.3 when they
// conflict, and 0.5 when one side is flat.
func agreementMultiplier(price, alt float64) float64 {
	ps, as := sign(price), sign(alt)
	switch {
	case ps == 0 || as == 0:
		return 0.5
	case ps == as:
		return 1.0
	default:
		return 0.3
	}
}

// applyExitLevels derives stop/target distances from the ATR, widening the
// stop for weaker signals and extending the target for stronger ones.
func (f *AltDataFusion) applyExitLevels(rec *signal.Record, ctx Context, merged float64) {
	if !isUsable(ctx.ATR) || ctx.ATR <= 0 || ctx.Price <= 0 {
		return
	}
	strength := math.Abs(merged)
	stopDist := f.cfg.StopATRMult * ctx.ATR * (2 - strength)
	targetDist := f.cfg.TargetATRMult * ctx.ATR * (1 + strength)
	if rec.Direction == signal.Buy {
		rec.StopLoss = math.Max(0, ctx.Price-stopDist)
		rec.TakeProfit = ctx.Price + targetDist
	} else {
		rec.StopLoss = ctx.Price + stopDist
		rec.TakeProfit = math.Max(0, ctx.Price-targetDist)
	}
}
