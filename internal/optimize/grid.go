package optimize

import (
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/quantfuse/quantfuse/internal/market"
)

// ErrInvalidParameter indicates malformed grid bounds, raised at construction
// time before any backtest executes.
var ErrInvalidParameter = errors.New("invalid parameter range")

// ParamRange is an inclusive numeric range expanded by Step.
type ParamRange struct {
	Name string  `yaml:"name" json:"name"`
	Min  float64 `yaml:"min" json:"min"`
	Max  float64 `yaml:"max" json:"max"`
	Step float64 `yaml:"step" json:"step"`
}

// Values expands the range. Max is included when the step lands on it.
func (r ParamRange) Values() []float64 {
	var out []float64
	// Step in integer multiples to avoid drift accumulating across the range.
	for i := 0; ; i++ {
		v := r.Min + float64(i)*r.Step
		if v > r.Max+1e-12 {
			break
		}
		out = append(out, v)
	}
	return out
}

// Grid is an ordered set of parameter ranges.
type Grid struct {
	Ranges []ParamRange `yaml:"ranges" json:"ranges"`
}

// NewGrid validates ranges and returns a grid. Validation errors surface
// before any evaluation runs.
func NewGrid(ranges ...ParamRange) (*Grid, error) {
	if len(ranges) == 0 {
		return nil, fmt.Errorf("%w: empty grid", ErrInvalidParameter)
	}
	seen := make(map[string]bool, len(ranges))
	for _, r := range ranges {
		if r.Name == "" {
			return nil, fmt.Errorf("%w: unnamed parameter", ErrInvalidParameter)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("%w: duplicate parameter %q", ErrInvalidParameter, r.Name)
		}
		seen[r.Name] = true
		if r.Min > r.Max {
			return nil, fmt.Errorf("%w: %s min %.6g > max %.6g", ErrInvalidParameter, r.Name, r.Min, r.Max)
		}
		if r.Step <= 0 {
			return nil, fmt.Errorf("%w: %s step %.6g must be positive", ErrInvalidParameter, r.Name, r.Step)
		}
	}
	return &Grid{Ranges: ranges}, nil
}

// Combination is one point of the cartesian product. Key is a canonical
// string in grid range order, used for caching and deterministic sorting.
type Combination struct {
	Values map[string]float64 `json:"values"`
	Key    string             `json:"key"`
}

// Combinations expands the cartesian product in deterministic range order.
func (g *Grid) Combinations() []Combination {
	expanded := make([][]float64, len(g.Ranges))
	total := 1
	for i, r := range g.Ranges {
		expanded[i] = r.Values()
		total *= len(expanded[i])
	}

	out := make([]Combination, 0, total)
	idx := make([]int, len(g.Ranges))
	for {
		values := make(map[string]float64, len(g.Ranges))
		var sb strings.Builder
		for i, r := range g.Ranges {
			v := expanded[i][idx[i]]
			values[r.Name] = v
			if i > 0 {
				sb.WriteByte('|')
			}
			sb.WriteString(r.Name)
			sb.WriteByte('=')
			sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		out = append(out, Combination{Values: values, Key: sb.String()})

		// Advance the odometer.
		pos := len(idx) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(expanded[pos]) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			break
		}
	}
	return out
}

// Size returns the number of combinations the grid expands to.
func (g *Grid) Size() int {
	total := 1
	for _, r := range g.Ranges {
		total *= len(r.Values())
	}
	return total
}

// Fingerprint hashes the identifying content of a price series (symbol,
// timestamps, closes) so cached results are invalidated when the input data
// changes.
func Fingerprint(prices *market.Series) string {
	h := fnv.New64a()
	h.Write([]byte(prices.Symbol))
	for _, b := range prices.Bars {
		fmt.Fprintf(h, "|%d:%g", b.Timestamp.Unix(), b.Close)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// CacheKey combines a data fingerprint with a combination key.
func CacheKey(fingerprint string, comb Combination) string {
	h := fnv.New64a()
	h.Write([]byte(fingerprint))
	h.Write([]byte{'|'})
	h.Write([]byte(comb.Key))
	return strconv.FormatUint(h.Sum64(), 16)
}
