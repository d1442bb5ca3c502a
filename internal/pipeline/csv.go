package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quantfuse/quantfuse/internal/market"
)

// LoadCSV reads a bar file into a Data set. The header row names the
// columns; timestamp, open, high, low, close, and volume are required, and
// price_signal, alt_signal, and macro are picked up when present.
// Timestamps are RFC 3339 or plain dates (2006-01-02).
func LoadCSV(path, symbol string) (*Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, symbol)
}

// ReadCSV parses bar data from a reader. See LoadCSV for the format.
func ReadCSV(r io.Reader, symbol string) (*Data, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"timestamp", "open", "high", "low", "close", "volume"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("csv missing required column %q", required)
		}
	}
	_, hasPrice := col["price_signal"]
	_, hasAlt := col["alt_signal"]
	_, hasMacro := col["macro"]

	var (
		bars     []market.Bar
		priceSig []float64
		altSig   []float64
		macro    []float64
	)
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}
		line++

		ts, err := parseTimestamp(record[col["timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bar := market.Bar{Timestamp: ts}
		for name, dst := range map[string]*float64{
			"open":  &bar.Open,
			"high":  &bar.High,
			"low":   &bar.Low,
			"close": &bar.Close,
		} {
			v, err := strconv.ParseFloat(record[col[name]], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad %s value %q", line, name, record[col[name]])
			}
			*dst = v
		}
		vol, err := strconv.ParseFloat(record[col["volume"]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad volume value %q", line, record[col["volume"]])
		}
		bar.Volume = int64(vol)
		bars = append(bars, bar)

		if hasPrice {
			v, err := strconv.ParseFloat(record[col["price_signal"]], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad price_signal value", line)
			}
			priceSig = append(priceSig, v)
		}
		if hasAlt {
			v, err := strconv.ParseFloat(record[col["alt_signal"]], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad alt_signal value", line)
			}
			altSig = append(altSig, v)
		}
		if hasMacro {
			v, err := strconv.ParseFloat(record[col["macro"]], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad macro value", line)
			}
			macro = append(macro, v)
		}
	}

	series, err := market.NewSeries(symbol, bars)
	if err != nil {
		return nil, err
	}
	data := &Data{Prices: series, PriceSignal: priceSig, AltSignal: altSig, Macro: macro}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return data, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
