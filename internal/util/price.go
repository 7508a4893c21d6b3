// Package util provides rounding helpers for strike and price grids.
package util

import "math"

// RoundToTick rounds x to the nearest tick increment, sending exact halves to
// the even multiple (1.25 with tick 0.5 becomes 1.0, 1.75 becomes 2.0).
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.RoundToEven(x/tick) * tick
}

// StrikeInterval returns the listed strike spacing for an underlying trading
// at spot.
func StrikeInterval(spot float64) float64 {
	switch {
	case spot < 100:
		return 2.5
	case spot < 500:
		return 5
	case spot < 1000:
		return 10
	case spot < 2500:
		return 25
	case spot < 5000:
		return 50
	default:
		return 100
	}
}

// StrikeLadder lists the strikes from 90% to 120% of spot, both ends snapped
// to the interval grid.
func StrikeLadder(spot float64) []float64 {
	interval := StrikeInterval(spot)
	lo := RoundToTick(spot*0.9, interval)
	hi := RoundToTick(spot*1.2, interval)

	var strikes []float64
	for k := lo; k <= hi; k += interval {
		strikes = append(strikes, k)
	}
	return strikes
}

// Contains reports whether strike is an exact member of ladder.
func Contains(ladder []float64, strike float64) bool {
	for _, k := range ladder {
		if k == strike {
			return true
		}
	}
	return false
}
