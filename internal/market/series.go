package market

import (
	"errors"
	"fmt"
	"time"
)

// ErrDataAlignment indicates price and signal inputs do not share a common
// timestamp index. Alignment is the responsibility of the upstream data
// pipeline; this subsystem never resamples or fills gaps.
var ErrDataAlignment = errors.New("price/signal timestamp domains do not align")

// ErrInsufficientData indicates fewer observations than a component's minimum
// sample size.
var ErrInsufficientData = errors.New("insufficient observations")

// Bar is a single trading-day OHLCV observation.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// Validate checks the OHLC invariant for a single bar.
func (b Bar) Validate() error {
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("non-positive price at %s", b.Timestamp.Format("2006-01-02"))
	}
	if b.Volume < 0 {
		return fmt.Errorf("negative volume at %s", b.Timestamp.Format("2006-01-02"))
	}
	lo, hi := b.Open, b.Open
	if b.Close < lo {
		lo = b.Close
	}
	if b.Close > hi {
		hi = b.Close
	}
	if b.Low > lo || b.High < hi || b.Low > b.High {
		return fmt.Errorf("OHLC invariant violated at %s: low=%.6f open=%.6f close=%.6f high=%.6f",
			b.Timestamp.Format("2006-01-02"), b.Low, b.Open, b.Close, b.High)
	}
	return nil
}

// Series is an ordered price history for one instrument.
type Series struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// NewSeries validates the bars and returns a Series. Bars must be strictly
// ordered by timestamp with no duplicate dates.
func NewSeries(symbol string, bars []Bar) (*Series, error) {
	s := &Series{Symbol: symbol, Bars: bars}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks every bar's OHLC invariant and the strictly increasing
// timestamp ordering.
func (s *Series) Validate() error {
	if len(s.Bars) == 0 {
		return fmt.Errorf("%w: empty price series", ErrInsufficientData)
	}
	for i, b := range s.Bars {
		if err := b.Validate(); err != nil {
			return err
		}
		if i > 0 && !s.Bars[i-1].Timestamp.Before(b.Timestamp) {
			return fmt.Errorf("bars out of order at index %d: %s >= %s",
				i, s.Bars[i-1].Timestamp.Format("2006-01-02"), b.Timestamp.Format("2006-01-02"))
		}
	}
	return nil
}

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.Bars) }

// Timestamps returns the timestamp index of the series.
func (s *Series) Timestamps() []time.Time {
	ts := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		ts[i] = b.Timestamp
	}
	return ts
}

// Closes returns the close price column.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Returns computes simple per-bar close-to-close returns. The first element
// is zero.
func (s *Series) Returns() []float64 {
	out := make([]float64, len(s.Bars))
	for i := 1; i < len(s.Bars); i++ {
		prev := s.Bars[i-1].Close
		if prev != 0 {
			out[i] = (s.Bars[i].Close - prev) / prev
		}
	}
	return out
}

// Slice returns a sub-series covering bars [from, to). The underlying bar
// storage is shared; bars are treated as immutable.
func (s *Series) Slice(from, to int) *Series {
	if from < 0 {
		from = 0
	}
	if to > len(s.Bars) {
		to = len(s.Bars)
	}
	if from >= to {
		return &Series{Symbol: s.Symbol}
	}
	return &Series{Symbol: s.Symbol, Bars: s.Bars[from:to]}
}

// CheckAligned verifies that a companion timestamp index matches the series
// index exactly, element for element.
func (s *Series) CheckAligned(index []time.Time) error {
	if len(index) != len(s.Bars) {
		return fmt.Errorf("%w: %d bars vs %d signal timestamps", ErrDataAlignment, len(s.Bars), len(index))
	}
	for i, ts := range index {
		if !ts.Equal(s.Bars[i].Timestamp) {
			return fmt.Errorf("%w: mismatch at index %d (%s vs %s)",
				ErrDataAlignment, i, s.Bars[i].Timestamp.Format(time.RFC3339), ts.Format(time.RFC3339))
		}
	}
	return nil
}
