package market

import "math"

// SMA computes a simple moving average. Positions before the window has
// filled are NaN. Input NaNs reset the window, so a series with a NaN
// warm-up head produces valid averages once the window clears the head.
func SMA(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if window <= 0 || window > len(values) {
		return out
	}
	sum, run := 0.0, 0
	for i, v := range values {
		if math.IsNaN(v) {
			sum, run = 0, 0
			continue
		}
		sum += v
		if run < window {
			run++
		} else {
			sum -= values[i-window]
		}
		if run == window {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// RollingStd computes the rolling sample standard deviation over a window.
// Positions before the window has filled are NaN.
func RollingStd(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if window < 2 || window > len(values) {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		out[i] = stddev(values[i-window+1 : i+1])
	}
	return out
}

// RollingCorrelation computes the rolling Pearson correlation between two
// equal-length series. Degenerate windows (zero variance) yield 0.
func RollingCorrelation(a, b []float64, window int) []float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if window < 2 || window > n {
		return out
	}
	for i := window - 1; i < n; i++ {
		out[i] = Correlation(a[i-window+1:i+1], b[i-window+1:i+1])
	}
	return out
}

// Correlation computes the Pearson correlation of two equal-length slices.
// Returns 0 when either side has zero variance.
func Correlation(a, b []float64) float64 {
	n := len(a)
	if n == 0 || len(b) != n {
		return 0
	}
	var ma, mb float64
	for i := 0; i < n; i++ {
		ma += a[i]
		mb += b[i]
	}
	ma /= float64(n)
	mb /= float64(n)
	var cov, va, vb float64
	for i := 0; i < n; i++ {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		return 0
	}
	return cov / math.Sqrt(va*vb)
}

// ATR computes the average true range over a window. Positions before the
// window has filled are NaN. The first bar's true range is high-low.
func ATR(bars []Bar, window int) []float64 {
	out := make([]float64, len(bars))
	for i := range out {
		out[i] = math.NaN()
	}
	if window <= 0 || window > len(bars) {
		return out
	}
	tr := make([]float64, len(bars))
	for i, b := range bars {
		r := b.High - b.Low
		if i > 0 {
			prev := bars[i-1].Close
			if hc := math.Abs(b.High - prev); hc > r {
				r = hc
			}
			if lc := math.Abs(b.Low - prev); lc > r {
				r = lc
			}
		}
		tr[i] = r
	}
	sum := 0.0
	for i, v := range tr {
		sum += v
		if i >= window {
			sum -= tr[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

// Mean is the arithmetic mean of a slice (0 for empty input).
func Mean(values []float64) float64 { return mean(values) }

// StdDev is the sample standard deviation of a slice (0 below two elements).
func StdDev(values []float64) float64 { return stddev(values) }
