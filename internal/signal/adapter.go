package signal

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidInput indicates a malformed raw signal input (ambiguous shape,
// bad thresholds, length mismatch).
var ErrInvalidInput = errors.New("invalid raw signal input")

// Pair is a discrete entry/exit timestamp pair. Short pairs enter with a
// SELL and exit with a BUY.
type Pair struct {
	Entry time.Time `json:"entry"`
	Exit  time.Time `json:"exit"`
	Short bool      `json:"short,omitempty"`
}

// RawInput is a tagged union of the four accepted signal shapes. Exactly one
// of Pairs, Weights, Indicator, or Records must be populated. Index supplies
// the full timestamp domain for the first three shapes.
type RawInput struct {
	Index  []time.Time
	Source Source

	// Shape (a): discrete entry/exit pairs.
	Pairs []Pair

	// Shape (b): continuous position weights in [-1, 1], aligned to Index.
	Weights []float64

	// Shape (c): raw indicator values with explicit thresholds. Values at or
	// above Upper map to BUY, at or below Lower map to SELL, between to HOLD.
	Indicator []float64
	Upper     float64
	Lower     float64

	// Shape (d): already-normalized records, passed through after validation.
	Records []Record
}

// Adapter normalizes heterogeneous signal representations into a canonical
// Series. It keeps no state across calls, so one instance can serve multiple
// strategies concurrently.
type Adapter struct{}

// NewAdapter returns a signal adapter.
func NewAdapter() *Adapter { return &Adapter{} }

// Normalize dispatches on the populated shape of raw and returns a canonical
// signal series covering the full timestamp index.
func (a *Adapter) Normalize(raw RawInput) (*Series, error) {
	populated := 0
	if len(raw.Pairs) > 0 {
		populated++
	}
	if len(raw.Weights) > 0 {
		populated++
	}
	if len(raw.Indicator) > 0 {
		populated++
	}
	if len(raw.Records) > 0 {
		populated++
	}
	if populated != 1 {
		return nil, fmt.Errorf("%w: exactly one shape must be populated, got %d", ErrInvalidInput, populated)
	}

	switch {
	case len(raw.Pairs) > 0:
		return a.FromPairs(raw.Index, raw.Pairs, raw.Source)
	case len(raw.Weights) > 0:
		return a.FromWeights(raw.Index, raw.Weights, raw.Source)
	case len(raw.Indicator) > 0:
		return a.FromIndicator(raw.Index, raw.Indicator, raw.Upper, raw.Lower, raw.Source)
	default:
		return a.FromRecords(raw.Records)
	}
}

// FromPairs expands discrete entry/exit pairs onto the timestamp index. The
// entry timestamp gets a full-strength directional record, the exit timestamp
// the opposing record, all other timestamps HOLD.
func (a *Adapter) FromPairs(index []time.Time, pairs []Pair, src Source) (*Series, error) {
	if len(index) == 0 {
		return nil, fmt.Errorf("%w: empty timestamp index", ErrInvalidInput)
	}
	byTS := make(map[time.Time]Record, len(pairs)*2)
	for _, p := range pairs {
		if !p.Entry.Before(p.Exit) {
			return nil, fmt.Errorf("%w: pair entry %s not before exit %s",
				ErrInvalidInput, p.Entry.Format("2006-01-02"), p.Exit.Format("2006-01-02"))
		}
		entryDir, exitDir := Buy, Sell
		strength := 1.0
		if p.Short {
			entryDir, exitDir = Sell, Buy
			strength = -1.0
		}
		byTS[p.Entry] = Record{Timestamp: p.Entry, Direction: entryDir, Strength: strength, Confidence: 1, Source: src}
		byTS[p.Exit] = Record{Timestamp: p.Exit, Direction: exitDir, Strength: -strength, Confidence: 1, Source: src}
	}

	recs := make([]Record, len(index))
	matched := 0
	for i, ts := range index {
		if r, ok := byTS[ts]; ok {
			recs[i] = r
			matched++
		} else {
			recs[i] = holdRecord(ts, src)
		}
	}
	if matched < len(byTS) {
		return nil, fmt.Errorf("%w: %d pair timestamps not present in index", ErrInvalidInput, len(byTS)-matched)
	}
	return &Series{Records: recs}, nil
}

// FromWeights converts a continuous position-weight series: direction comes
// from the sign, strength and confidence from the magnitude.
func (a *Adapter) FromWeights(index []time.Time, weights []float64, src Source) (*Series, error) {
	if len(weights) != len(index) {
		return nil, fmt.Errorf("%w: %d weights vs %d timestamps", ErrInvalidInput, len(weights), len(index))
	}
	recs := make([]Record, len(index))
	for i, w := range weights {
		if math.IsNaN(w) || w < -1 || w > 1 {
			return nil, fmt.Errorf("%w: weight %.4f outside [-1,1] at index %d", ErrInvalidInput, w, i)
		}
		switch {
		case w > 0:
			recs[i] = Record{Timestamp: index[i], Direction: Buy, Strength: w, Confidence: w, Source: src}
		case w < 0:
			recs[i] = Record{Timestamp: index[i], Direction: Sell, Strength: w, Confidence: -w, Source: src}
		default:
			recs[i] = holdRecord(index[i], src)
		}
	}
	return &Series{Records: recs}, nil
}

// indicatorFloor is the minimum strength of a threshold crossing. A value
// sitting exactly on a threshold must still be actionable downstream.
const indicatorFloor = 0.1

// FromIndicator derives directions from a raw indicator series using explicit
// thresholds. Strength scales with the distance beyond the threshold,
// normalized by the band width, floored at indicatorFloor and capped at 1.
func (a *Adapter) FromIndicator(index []time.Time, values []float64, upper, lower float64, src Source) (*Series, error) {
	if upper <= lower {
		return nil, fmt.Errorf("%w: upper threshold %.4f must exceed lower %.4f", ErrInvalidInput, upper, lower)
	}
	if len(values) != len(index) {
		return nil, fmt.Errorf("%w: %d values vs %d timestamps", ErrInvalidInput, len(values), len(index))
	}
	band := upper - lower
	recs := make([]Record, len(index))
	for i, v := range values {
		switch {
		case math.IsNaN(v):
			recs[i] = holdRecord(index[i], src)
		case v >= upper:
			s := bandStrength(v-upper, band)
			recs[i] = Record{Timestamp: index[i], Direction: Buy, Strength: s, Confidence: s, Source: src}
		case v <= lower:
			s := bandStrength(lower-v, band)
			recs[i] = Record{Timestamp: index[i], Direction: Sell, Strength: -s, Confidence: s, Source: src}
		default:
			recs[i] = holdRecord(index[i], src)
		}
	}
	return &Series{Records: recs}, nil
}

func bandStrength(excess, band float64) float64 {
	return math.Min(1, math.Max(indicatorFloor, excess/band))
}

// FromRecords validates and passes through an already-normalized sequence.
func (a *Adapter) FromRecords(recs []Record) (*Series, error) {
	out := &Series{Records: recs}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return out, nil
}
