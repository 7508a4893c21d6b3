package indicators

import "math"

// SMA is the simple moving average over window values. A window containing a
// NaN is NaN.
func SMA(values []float64, window int) []float64 {
	out := nanSeries(len(values))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		sum := 0.0
		ok := true
		for _, v := range values[i-window+1 : i+1] {
			if math.IsNaN(v) {
				ok = false
				break
			}
			sum += v
		}
		if ok {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// RollingStd is the sample (n-1) standard deviation over window values.
func RollingStd(values []float64, window int) []float64 {
	out := nanSeries(len(values))
	if window < 2 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		out[i] = SampleStd(values[i-window+1 : i+1])
	}
	return out
}

// SampleStd returns the n-1 standard deviation, NaN for fewer than two values
// or when any value is NaN.
func SampleStd(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return math.NaN()
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)
	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// Mean returns the arithmetic mean, NaN when empty.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func rollingExtreme(values []float64, window int, better func(a, b float64) bool) []float64 {
	out := nanSeries(len(values))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		best := values[i-window+1]
		for _, v := range values[i-window+2 : i+1] {
			if better(v, best) {
				best = v
			}
		}
		out[i] = best
	}
	return out
}

// RollingMax is the highest value over the trailing window.
func RollingMax(values []float64, window int) []float64 {
	return rollingExtreme(values, window, func(a, b float64) bool { return a > b })
}

// RollingMin is the lowest value over the trailing window.
func RollingMin(values []float64, window int) []float64 {
	return rollingExtreme(values, window, func(a, b float64) bool { return a < b })
}

// EMA is an exponential moving average with alpha = 2/(span+1), seeded with
// the first value.
func EMA(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// TrueRange returns max(h-l, |h-prevClose|, |l-prevClose|); the first bar has
// no previous close and uses h-l.
func TrueRange(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		tr := b.High - b.Low
		if i > 0 {
			pc := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(b.High-pc), math.Abs(b.Low-pc)))
		}
		out[i] = tr
	}
	return out
}

func highs(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

func lows(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}
