package indicators

import "math"

// MACD returns the MACD line (fast EMA - slow EMA), its signal EMA and the
// histogram (MACD - signal).
func MACD(closes []float64, fast, slow, signal int) (macd, sig, hist []float64) {
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)

	macd = make([]float64, len(closes))
	for i := range closes {
		macd[i] = fastEMA[i] - slowEMA[i]
	}
	sig = EMA(macd, signal)

	hist = make([]float64, len(closes))
	for i := range closes {
		hist[i] = macd[i] - sig[i]
	}
	return macd, sig, hist
}

// WilderSmooth: NaN before index n-1, the plain sum of the first n values at
// n-1 (NaN values skipped), then prev - prev/n + x.
func WilderSmooth(values []float64, n int) []float64 {
	out := nanSeries(len(values))
	if n <= 0 || len(values) < n {
		return out
	}
	sum := 0.0
	for _, v := range values[:n] {
		if !math.IsNaN(v) {
			sum += v
		}
	}
	out[n-1] = sum
	for i := n; i < len(values); i++ {
		out[i] = out[i-1] - out[i-1]/float64(n) + values[i]
	}
	return out
}

// ADX returns the average directional index with its +DI and -DI lines.
// ADX is the Wilder smoothing of DX with indeterminate DX treated as 0, so it
// stays on the same accumulated scale as the smoothed inputs.
func ADX(bars []Bar, period int) (adx, plusDI, minusDI []float64) {
	n := len(bars)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		dh := bars[i].High - bars[i-1].High
		dl := bars[i-1].Low - bars[i].Low
		if dh > dl && dh > 0 {
			plusDM[i] = dh
		}
		if dl > dh && dl > 0 {
			minusDM[i] = dl
		}
	}

	sTR := WilderSmooth(TrueRange(bars), period)
	sPlus := WilderSmooth(plusDM, period)
	sMinus := WilderSmooth(minusDM, period)

	plusDI = nanSeries(n)
	minusDI = nanSeries(n)
	dx := make([]float64, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(sTR[i]) || sTR[i] == 0 {
			continue
		}
		plusDI[i] = 100 * sPlus[i] / sTR[i]
		minusDI[i] = 100 * sMinus[i] / sTR[i]
		if sum := plusDI[i] + minusDI[i]; sum != 0 && !math.IsNaN(sum) {
			dx[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / sum
		}
	}

	adx = WilderSmooth(dx, period)
	return adx, plusDI, minusDI
}

// Supertrend returns the supertrend line and direction (+1 bullish, -1
// bearish, 0 before the first computable bar). Bands carry forward from the
// previous bar unless price breaks through them, so the whole window is
// folded sequentially.
func Supertrend(bars []Bar, period int, multiplier float64) (line []float64, direction []int) {
	n := len(bars)
	line = nanSeries(n)
	direction = make([]int, n)
	if n == 0 {
		return line, direction
	}

	atr := SMA(TrueRange(bars), period)

	start := 0
	if period > 0 {
		start = period - 1
	}

	var prevUpper, prevLower float64
	for i := start; i < n; i++ {
		hl2 := (bars[i].High + bars[i].Low) / 2
		basicUpper := hl2 + multiplier*atr[i]
		basicLower := hl2 - multiplier*atr[i]

		upper, lower := basicUpper, basicLower
		if i > start {
			prevClose := bars[i-1].Close
			if !(basicUpper < prevUpper || prevClose > prevUpper) {
				upper = prevUpper
			}
			if !(basicLower > prevLower || prevClose < prevLower) {
				lower = prevLower
			}
		}

		close := bars[i].Close
		switch {
		case i == start:
			if close <= upper {
				line[i], direction[i] = upper, -1
			} else {
				line[i], direction[i] = lower, 1
			}
		case direction[i-1] == -1:
			if close > upper {
				line[i], direction[i] = lower, 1
			} else {
				line[i], direction[i] = upper, -1
			}
		default:
			if close < lower {
				line[i], direction[i] = upper, -1
			} else {
				line[i], direction[i] = lower, 1
			}
		}

		prevUpper, prevLower = upper, lower
	}
	return line, direction
}
