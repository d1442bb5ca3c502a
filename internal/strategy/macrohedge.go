package strategy

import (
	"fmt"
	"sort"

	"github.com/quantfuse/quantfuse/internal/signal"
)

// AlertLevel classifies macro stress by standard-deviation distance above the
// alert threshold.
type AlertLevel string

const (
	AlertGreen  AlertLevel = "GREEN"  // at or below threshold
	AlertYellow AlertLevel = "YELLOW" // within 1σ above threshold
	AlertOrange AlertLevel = "ORANGE" // within 2σ above threshold
	AlertRed    AlertLevel = "RED"    // beyond 2σ above threshold
)

// HedgeInstrument is a candidate hedge ranked by cost, protection, and
// correlation to the portfolio.
type HedgeInstrument struct {
	Symbol                 string  `yaml:"symbol" json:"symbol"`
	Cost                   float64 `yaml:"cost" json:"cost"`
	ProtectionPct          float64 `yaml:"protection_pct" json:"protection_pct"`
	CorrelationToPortfolio float64 `yaml:"correlation_to_portfolio" json:"correlation_to_portfolio"`
}

// HedgeRecommendation is the actionable output of one macro evaluation.
type HedgeRecommendation struct {
	Level      AlertLevel       `json:"level"`
	HedgeRatio float64          `json:"hedge_ratio"`
	Instrument *HedgeInstrument `json:"instrument,omitempty"`
	SigmaDist  float64          `json:"sigma_distance"`
}

// MacroScenario shocks named macro factors by fractional moves.
type MacroScenario struct {
	Name   string             `yaml:"name" json:"name"`
	Shocks map[string]float64 `yaml:"shocks" json:"shocks"`
}

// ScenarioImpact is the expected P&L impact of one scenario.
type ScenarioImpact struct {
	Scenario string  `json:"scenario"`
	Impact   float64 `json:"impact"`
}

// MacroHedgeConfig controls alert classification and hedge selection.
type MacroHedgeConfig struct {
	AlertThreshold   float64                `yaml:"alert_threshold" json:"alert_threshold"`
	MinProtectionPct float64                `yaml:"min_protection_pct" json:"min_protection_pct"`
	HedgeRatios      map[AlertLevel]float64 `yaml:"hedge_ratios" json:"hedge_ratios"`
	Instruments      []HedgeInstrument      `yaml:"instruments" json:"instruments"`
	MinConfidence    float64                `yaml:"min_confidence" json:"min_confidence"`
}

// DefaultMacroHedgeConfig returns a conventional ratio ladder.
func DefaultMacroHedgeConfig() MacroHedgeConfig {
	return MacroHedgeConfig{
		AlertThreshold:   0,
		MinProtectionPct: 0.5,
		HedgeRatios: map[AlertLevel]float64{
			AlertGreen:  0,
			AlertYellow: 0.25,
			AlertOrange: 0.5,
			AlertRed:    0.8,
		},
		MinConfidence: 0.2,
	}
}

// Validate checks ratio bounds.
func (c MacroHedgeConfig) Validate() error {
	for level, ratio := range c.HedgeRatios {
		if ratio < 0 || ratio > 1 {
			return fmt.Errorf("hedge ratio %.4f for %s outside [0,1]", ratio, level)
		}
	}
	if c.MinProtectionPct < 0 || c.MinProtectionPct > 1 {
		return fmt.Errorf("min_protection_pct %.4f outside [0,1]", c.MinProtectionPct)
	}
	return nil
}

// MacroHedge maps a macro stress indicator to an alert level, a hedge ratio,
// and a hedge instrument, and supports scenario stress testing.
type MacroHedge struct {
	cfg MacroHedgeConfig
}

// NewMacroHedge returns the hedge strategy or a config error.
func NewMacroHedge(cfg MacroHedgeConfig) (*MacroHedge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MacroHedge{cfg: cfg}, nil
}

// Name identifies the strategy in reports and logs.
func (s *MacroHedge) Name() string { return "macro_hedge" }

// ClassifyAlert maps the indicator value to an alert level given its
// historical standard deviation.
func (s *MacroHedge) ClassifyAlert(value, std float64) (AlertLevel, float64) {
	if value <= s.cfg.AlertThreshold || std <= 0 {
		return AlertGreen, 0
	}
	dist := (value - s.cfg.AlertThreshold) / std
	switch {
	case dist <= 1:
		return AlertYellow, dist
	case dist <= 2:
		return AlertOrange, dist
	default:
		return AlertRed, dist
	}
}

// SelectInstrument picks the lowest-cost instrument meeting the minimum
// protection floor. Returns nil when none qualifies.
func (s *MacroHedge) SelectInstrument() *HedgeInstrument {
	var candidates []HedgeInstrument
	for _, inst := range s.cfg.Instruments {
		if inst.ProtectionPct >= s.cfg.MinProtectionPct {
			candidates = append(candidates, inst)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Cost != candidates[j].Cost {
			return candidates[i].Cost < candidates[j].Cost
		}
		if candidates[i].ProtectionPct != candidates[j].ProtectionPct {
			return candidates[i].ProtectionPct > candidates[j].ProtectionPct
		}
		// More negative portfolio correlation hedges better.
		return candidates[i].CorrelationToPortfolio < candidates[j].CorrelationToPortfolio
	})
	pick := candidates[0]
	return &pick
}

// Recommend classifies the current macro reading and selects the hedge.
func (s *MacroHedge) Recommend(ctx Context) HedgeRecommendation {
	level, dist := s.ClassifyAlert(ctx.MacroValue, ctx.MacroStd)
	rec := HedgeRecommendation{Level: level, SigmaDist: dist, HedgeRatio: s.cfg.HedgeRatios[level]}
	if level != AlertGreen {
		rec.Instrument = s.SelectInstrument()
	}
	return rec
}

// Evaluate emits a hedge signal when the alert level is above GREEN. The
// signal direction is SELL (reduce exposure) with strength equal to the
// hedge ratio and confidence scaled by the sigma distance.
func (s *MacroHedge) Evaluate(ctx Context) (*signal.Record, bool) {
	if !isUsable(ctx.MacroValue, ctx.MacroStd) {
		return nil, false
	}
	rec := s.Recommend(ctx)
	if rec.Level == AlertGreen || rec.HedgeRatio == 0 {
		return &signal.Record{Timestamp: ctx.Timestamp, Direction: signal.Hold, Source: signal.SourceMacroHedge}, true
	}
	confidence := clamp01(rec.SigmaDist / 3)
	if confidence < s.cfg.MinConfidence {
		return &signal.Record{Timestamp: ctx.Timestamp, Direction: signal.Hold, Source: signal.SourceMacroHedge}, true
	}
	return &signal.Record{
		Timestamp:       ctx.Timestamp,
		Direction:       signal.Sell,
		Strength:        -rec.HedgeRatio,
		Confidence:      confidence,
		Source:          signal.SourceMacroHedge,
		RecommendedSize: rec.HedgeRatio,
	}, true
}

// StressTest computes the expected P&L impact of each scenario against a
// portfolio sensitivity mapping (factor name to P&L per unit shock). Live
// state is never mutated.
func (s *MacroHedge) StressTest(scenarios []MacroScenario, sensitivity map[string]float64) []ScenarioImpact {
	out := make([]ScenarioImpact, 0, len(scenarios))
	for _, sc := range scenarios {
		var impact float64
		for factor, shock := range sc.Shocks {
			impact += shock * sensitivity[factor]
		}
		out = append(out, ScenarioImpact{Scenario: sc.Name, Impact: impact})
	}
	return out
}
