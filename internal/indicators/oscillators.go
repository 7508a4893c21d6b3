package indicators

import "math"

// RSI uses Wilder's exponential averaging (alpha = 1/period) of gains and
// losses. Values before index period-1 are NaN. A window with no losses is 100
// unless it also has no gains, in which case it is NaN.
func RSI(closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSeries(n)
	if n == 0 || period <= 0 {
		return out
	}
	alpha := 1.0 / float64(period)

	avgGain, avgLoss := 0.0, 0.0
	for i := 0; i < n; i++ {
		gain, loss := 0.0, 0.0
		if i > 0 {
			d := closes[i] - closes[i-1]
			if d > 0 {
				gain = d
			} else if d < 0 {
				loss = -d
			}
		}
		if i == 0 {
			avgGain, avgLoss = gain, loss
		} else {
			avgGain = alpha*gain + (1-alpha)*avgGain
			avgLoss = alpha*loss + (1-alpha)*avgLoss
		}
		if i < period-1 {
			continue
		}
		switch {
		case avgLoss == 0 && avgGain == 0:
			out[i] = math.NaN()
		case avgLoss == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+avgGain/avgLoss)
		}
	}
	return out
}

// Stochastic returns the slow %K (raw %K smoothed over smoothing bars) and %D
// (slow %K smoothed over dPeriod bars). A zero high-low range gives NaN.
func Stochastic(bars []Bar, kPeriod, dPeriod, smoothing int) (slowK, slowD []float64) {
	lowest := RollingMin(lows(bars), kPeriod)
	highest := RollingMax(highs(bars), kPeriod)

	rawK := nanSeries(len(bars))
	for i, b := range bars {
		rng := highest[i] - lowest[i]
		if math.IsNaN(rng) || rng == 0 {
			continue
		}
		rawK[i] = 100 * (b.Close - lowest[i]) / rng
	}

	slowK = SMA(rawK, smoothing)
	slowD = SMA(slowK, dPeriod)
	return slowK, slowD
}

// WilliamsR is (highestHigh - close) / (highestHigh - lowestLow) * -100.
func WilliamsR(bars []Bar, period int) []float64 {
	lowest := RollingMin(lows(bars), period)
	highest := RollingMax(highs(bars), period)

	out := nanSeries(len(bars))
	for i, b := range bars {
		rng := highest[i] - lowest[i]
		if math.IsNaN(rng) || rng == 0 {
			continue
		}
		out[i] = (highest[i] - b.Close) / rng * -100
	}
	return out
}
