package signal

import (
	"fmt"
	"time"
)

// Direction is the trading recommendation carried by a signal.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
	Hold Direction = "HOLD"
)

// Source identifies the data source a signal is attributed to.
type Source string

const (
	SourcePrice       Source = "PRICE"
	SourceAltData     Source = "ALT_DATA"
	SourceCorrelation Source = "CORRELATION"
	SourceMacroHedge  Source = "MACRO_HEDGE"
	SourceCombined    Source = "COMBINED"
)

// Record is one immutable per-timestamp signal. Strength is in [-1, 1],
// confidence in [0, 1]. StopLoss/TakeProfit of zero mean no level was set.
type Record struct {
	Timestamp       time.Time `json:"timestamp"`
	Direction       Direction `json:"direction"`
	Strength        float64   `json:"strength"`
	Confidence      float64   `json:"confidence"`
	Source          Source    `json:"source"`
	StopLoss        float64   `json:"stop_loss,omitempty"`
	TakeProfit      float64   `json:"take_profit,omitempty"`
	RecommendedSize float64   `json:"recommended_size,omitempty"`
}

// Validate checks the strength and confidence bounds.
func (r Record) Validate() error {
	if r.Strength < -1 || r.Strength > 1 {
		return fmt.Errorf("signal strength %.4f outside [-1,1] at %s", r.Strength, r.Timestamp.Format("2006-01-02"))
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("signal confidence %.4f outside [0,1] at %s", r.Confidence, r.Timestamp.Format("2006-01-02"))
	}
	switch r.Direction {
	case Buy, Sell, Hold:
	default:
		return fmt.Errorf("unknown signal direction %q", r.Direction)
	}
	return nil
}

// Series is an ordered sequence of signal records, one per timestamp.
type Series struct {
	Records []Record `json:"records"`
}

// Len returns the number of records.
func (s *Series) Len() int { return len(s.Records) }

// Timestamps returns the timestamp index of the series.
func (s *Series) Timestamps() []time.Time {
	ts := make([]time.Time, len(s.Records))
	for i, r := range s.Records {
		ts[i] = r.Timestamp
	}
	return ts
}

// Validate checks every record and the timestamp ordering.
func (s *Series) Validate() error {
	for i, r := range s.Records {
		if err := r.Validate(); err != nil {
			return err
		}
		if i > 0 && !s.Records[i-1].Timestamp.Before(r.Timestamp) {
			return fmt.Errorf("signal records out of order at index %d", i)
		}
	}
	return nil
}

func holdRecord(ts time.Time, src Source) Record {
	return Record{Timestamp: ts, Direction: Hold, Source: src}
}
