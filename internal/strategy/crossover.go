package strategy

import (
	"fmt"

	"github.com/quantfuse/quantfuse/internal/market"
	"github.com/quantfuse/quantfuse/internal/signal"
)

// SMACrossoverConfig is the fast/slow window pair for the price-signal
// generator.
type SMACrossoverConfig struct {
	Fast int `yaml:"fast" json:"fast"`
	Slow int `yaml:"slow" json:"slow"`
}

// DefaultSMACrossoverConfig returns the classic 20/50 pair.
func DefaultSMACrossoverConfig() SMACrossoverConfig {
	return SMACrossoverConfig{Fast: 20, Slow: 50}
}

// Validate checks window ordering.
func (c SMACrossoverConfig) Validate() error {
	if c.Fast <= 0 || c.Slow <= 0 {
		return fmt.Errorf("crossover windows must be positive, got fast=%d slow=%d", c.Fast, c.Slow)
	}
	if c.Fast >= c.Slow {
		return fmt.Errorf("fast window %d must be shorter than slow window %d", c.Fast, c.Slow)
	}
	return nil
}

// SMACrossover is the PRICE-source signal generator: BUY when the fast
// average crosses above the slow, SELL when it crosses below.
type SMACrossover struct {
	cfg SMACrossoverConfig
}

// NewSMACrossover returns the crossover strategy or a config error.
func NewSMACrossover(cfg SMACrossoverConfig) (*SMACrossover, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SMACrossover{cfg: cfg}, nil
}

// Name identifies the strategy in reports and logs.
func (s *SMACrossover) Name() string { return "sma_crossover" }

// Evaluate detects a crossover on the final bar of the close history. Full
// confidence on a cross keeps the generated signal deterministic.
func (s *SMACrossover) Evaluate(ctx Context) (*signal.Record, bool) {
	n := len(ctx.Closes)
	if n < s.cfg.Slow+1 {
		return nil, false
	}
	fastNow := market.Mean(ctx.Closes[n-s.cfg.Fast:])
	slowNow := market.Mean(ctx.Closes[n-s.cfg.Slow:])
	fastPrev := market.Mean(ctx.Closes[n-1-s.cfg.Fast : n-1])
	slowPrev := market.Mean(ctx.Closes[n-1-s.cfg.Slow : n-1])

	switch {
	case fastPrev <= slowPrev && fastNow > slowNow:
		return &signal.Record{
			Timestamp:  ctx.Timestamp,
			Direction:  signal.Buy,
			Strength:   1,
			Confidence: 1,
			Source:     signal.SourcePrice,
		}, true
	case fastPrev >= slowPrev && fastNow < slowNow:
		return &signal.Record{
			Timestamp:  ctx.Timestamp,
			Direction:  signal.Sell,
			Strength:   -1,
			Confidence: 1,
			Source:     signal.SourcePrice,
		}, true
	default:
		return &signal.Record{Timestamp: ctx.Timestamp, Direction: signal.Hold, Source: signal.SourcePrice}, true
	}
}
