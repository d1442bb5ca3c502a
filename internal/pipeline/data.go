package pipeline

import (
	"fmt"
	"math"

	"github.com/quantfuse/quantfuse/internal/market"
	"github.com/quantfuse/quantfuse/internal/strategy"
)

// Data bundles the pre-materialized inputs of one pipeline run. Every
// auxiliary slice present must align element-for-element with the price
// series; the pipeline never resamples or fills gaps.
type Data struct {
	Prices *market.Series

	// PriceSignal is an optional pre-computed price-derived signal in
	// [-1, 1], one value per bar.
	PriceSignal []float64
	// AltSignal is an optional alternative-data signal in [-1, 1].
	AltSignal []float64
	// Macro is an optional macro stress indicator series.
	Macro []float64
}

// Validate checks price integrity and auxiliary alignment.
func (d *Data) Validate() error {
	if d.Prices == nil {
		return fmt.Errorf("%w: no price series", market.ErrInsufficientData)
	}
	if err := d.Prices.Validate(); err != nil {
		return err
	}
	n := d.Prices.Len()
	for name, s := range map[string][]float64{
		"price_signal": d.PriceSignal,
		"alt_signal":   d.AltSignal,
		"macro":        d.Macro,
	} {
		if s != nil && len(s) != n {
			return fmt.Errorf("%w: %s has %d values for %d bars", market.ErrDataAlignment, name, len(s), n)
		}
	}
	return nil
}

// Slice returns the aligned sub-range [from, to) of all present inputs.
func (d *Data) Slice(from, to int) *Data {
	out := &Data{Prices: d.Prices.Slice(from, to)}
	clampTo := func(s []float64) []float64 {
		if s == nil {
			return nil
		}
		f, t := from, to
		if f < 0 {
			f = 0
		}
		if t > len(s) {
			t = len(s)
		}
		if f >= t {
			return nil
		}
		return s[f:t]
	}
	out.PriceSignal = clampTo(d.PriceSignal)
	out.AltSignal = clampTo(d.AltSignal)
	out.Macro = clampTo(d.Macro)
	return out
}

// buildContexts precomputes per-timestamp strategy contexts: rolling
// correlation between the price and alt signals with its lookback mean/std,
// the ATR, and the rolling macro statistics. Missing inputs surface as NaN
// so strategies can decline to evaluate.
func buildContexts(d *Data, cfg Config) []strategy.Context {
	n := d.Prices.Len()
	closes := d.Prices.Closes()
	atr := market.ATR(d.Prices.Bars, cfg.ATRWindow)

	priceSig := orNaN(d.PriceSignal, n)
	altSig := orNaN(d.AltSignal, n)
	macro := orNaN(d.Macro, n)

	// Correlate the price-derived signal against the alt signal; fall back
	// to close-to-close returns when no explicit price signal was supplied.
	base := d.PriceSignal
	if base == nil {
		base = d.Prices.Returns()
	}
	corr := nanSlice(n)
	corrMean := nanSlice(n)
	corrStd := nanSlice(n)
	if d.AltSignal != nil {
		corr = market.RollingCorrelation(base, d.AltSignal, cfg.CorrelationWindow)
		corrMean = market.SMA(corr, cfg.CorrelationLookback)
		corrStd = market.RollingStd(corr, cfg.CorrelationLookback)
	}

	macroMean := nanSlice(n)
	macroStd := nanSlice(n)
	if d.Macro != nil {
		macroMean = market.SMA(d.Macro, cfg.MacroLookback)
		macroStd = market.RollingStd(d.Macro, cfg.MacroLookback)
	}

	contexts := make([]strategy.Context, n)
	for i := 0; i < n; i++ {
		contexts[i] = strategy.Context{
			Timestamp:   d.Prices.Bars[i].Timestamp,
			Price:       closes[i],
			Closes:      closes[:i+1],
			ATR:         atr[i],
			PriceSignal: priceSig[i],
			AltSignal:   altSig[i],
			Correlation: corr[i],
			CorrMean:    corrMean[i],
			CorrStd:     corrStd[i],
			MacroValue:  macro[i],
			MacroMean:   macroMean[i],
			MacroStd:    macroStd[i],
		}
	}
	return contexts
}

func orNaN(s []float64, n int) []float64 {
	if s != nil {
		return s
	}
	return nanSlice(n)
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
