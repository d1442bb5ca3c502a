package main

import (
	"fmt"
	"math"

	"github.com/quantfuse/quantfuse/internal/config"
	"github.com/quantfuse/quantfuse/internal/pipeline"
	"github.com/quantfuse/quantfuse/internal/strategy"
)

// buildStrategy instantiates a named strategy from the loaded config.
func buildStrategy(name string, cfg config.App) (strategy.Strategy, error) {
	switch name {
	case "crossover":
		return strategy.NewSMACrossover(cfg.Strategies.Crossover)
	case "altdata":
		return strategy.NewAltDataFusion(cfg.Strategies.AltData)
	case "correlation":
		return strategy.NewCorrelationRegime(cfg.Strategies.Correlation)
	case "macrohedge":
		return strategy.NewMacroHedge(cfg.Strategies.MacroHedge)
	default:
		return nil, fmt.Errorf("unknown strategy %q (crossover, altdata, correlation, macrohedge)", name)
	}
}

// strategyFactory builds the optimizer factory for a named strategy. Grid
// parameters override the matching config fields per combination.
func strategyFactory(name string, cfg config.App) (pipeline.StrategyFactory, error) {
	switch name {
	case "crossover":
		return func(params map[string]float64) (strategy.Strategy, error) {
			sc := cfg.Strategies.Crossover
			if v, ok := params["fast"]; ok {
				sc.Fast = int(math.Round(v))
			}
			if v, ok := params["slow"]; ok {
				sc.Slow = int(math.Round(v))
			}
			return strategy.NewSMACrossover(sc)
		}, nil
	case "altdata":
		return func(params map[string]float64) (strategy.Strategy, error) {
			sc := cfg.Strategies.AltData
			if v, ok := params["price_weight"]; ok {
				sc.PriceWeight = v
				sc.AltWeight = 1 - v
			}
			if v, ok := params["min_confidence"]; ok {
				sc.MinConfidence = v
			}
			if v, ok := params["stop_atr_mult"]; ok {
				sc.StopATRMult = v
			}
			if v, ok := params["target_atr_mult"]; ok {
				sc.TargetATRMult = v
			}
			return strategy.NewAltDataFusion(sc)
		}, nil
	case "correlation":
		return func(params map[string]float64) (strategy.Strategy, error) {
			sc := cfg.Strategies.Correlation
			if v, ok := params["min_confidence"]; ok {
				sc.MinConfidence = v
			}
			return strategy.NewCorrelationRegime(sc)
		}, nil
	case "macrohedge":
		return func(params map[string]float64) (strategy.Strategy, error) {
			sc := cfg.Strategies.MacroHedge
			if v, ok := params["alert_threshold"]; ok {
				sc.AlertThreshold = v
			}
			if v, ok := params["min_protection_pct"]; ok {
				sc.MinProtectionPct = v
			}
			return strategy.NewMacroHedge(sc)
		}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (crossover, altdata, correlation, macrohedge)", name)
	}
}
