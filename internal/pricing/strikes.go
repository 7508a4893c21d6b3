package pricing

import "math"

// FindStrikeByDelta scans strikes in order and returns the one whose delta is
// closest to target, with that delta. For puts both deltas are compared in
// absolute value. Ties keep the earlier strike.
func (m Model) FindStrikeByDelta(spot float64, strikes []float64, t, sigma, target float64, typ OptionType) (float64, float64) {
	bestStrike := 0.0
	bestDelta := 0.0
	bestDiff := math.MaxFloat64

	for _, strike := range strikes {
		delta, err := m.Delta(spot, strike, t, sigma, typ)
		if err != nil {
			continue
		}

		var diff float64
		if typ == Put {
			diff = math.Abs(math.Abs(delta) - math.Abs(target))
		} else {
			diff = math.Abs(delta - target)
		}

		if diff < bestDiff {
			bestDiff = diff
			bestStrike = strike
			bestDelta = delta
		}
	}

	return bestStrike, bestDelta
}

// FindStrikeByOTMPercent returns the strike nearest to spot*(1+otm) for calls or
// spot*(1-otm) for puts. Ties keep the earlier strike.
func FindStrikeByOTMPercent(spot float64, strikes []float64, otm float64, typ OptionType) float64 {
	target := spot * (1 + otm)
	if typ == Put {
		target = spot * (1 - otm)
	}
	return NearestStrike(strikes, target)
}

// NearestStrike returns the first strike minimizing |strike-target|, or 0 for
// an empty list.
func NearestStrike(strikes []float64, target float64) float64 {
	best := 0.0
	bestDiff := math.MaxFloat64
	for _, strike := range strikes {
		if diff := math.Abs(strike - target); diff < bestDiff {
			bestDiff = diff
			best = strike
		}
	}
	return best
}
