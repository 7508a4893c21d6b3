package indicators

import "math"

// Bollinger returns SMA(period) plus/minus k sample standard deviations.
func Bollinger(closes []float64, period int, k float64) (upper, middle, lower []float64) {
	middle = SMA(closes, period)
	std := RollingStd(closes, period)

	upper = make([]float64, len(closes))
	lower = make([]float64, len(closes))
	for i := range closes {
		upper[i] = middle[i] + k*std[i]
		lower[i] = middle[i] - k*std[i]
	}
	return upper, middle, lower
}

// VWAP weights the typical price (H+L+C)/3 by volume over a trailing window.
// With no intraday data a one-day period is just the typical price. Longer
// periods use whatever bars are available at the start of the series. A
// window with zero volume is NaN.
func VWAP(bars []Bar, period int) []float64 {
	n := len(bars)
	tp := make([]float64, n)
	for i, b := range bars {
		tp[i] = (b.High + b.Low + b.Close) / 3
	}
	if period == 1 {
		return tp
	}

	out := nanSeries(n)
	if period <= 0 {
		return out
	}
	for i := 0; i < n; i++ {
		from := i - period + 1
		if from < 0 {
			from = 0
		}
		pv, vol := 0.0, 0.0
		for j := from; j <= i; j++ {
			v := float64(bars[j].Volume)
			pv += tp[j] * v
			vol += v
		}
		if vol != 0 {
			out[i] = pv / vol
		}
	}
	return out
}

// ATR is the mean true range of the last period bars, computed from the
// trailing period+1 bars so every range has a previous close. With fewer
// bars it falls back to 2% of the average close, or 0 when there are none.
func ATR(bars []Bar, period int) float64 {
	tail := Tail(bars, period+1)
	if len(tail) < period+1 {
		if len(tail) == 0 {
			return 0
		}
		return Mean(Closes(tail)) * 0.02
	}
	tr := TrueRange(tail)
	return Mean(tr[len(tr)-period:])
}

// PivotLevels holds the standard floor pivot and its support/resistance levels.
type PivotLevels struct {
	Pivot float64 `json:"pivot"`
	R1    float64 `json:"r1"`
	R2    float64 `json:"r2"`
	R3    float64 `json:"r3"`
	S1    float64 `json:"s1"`
	S2    float64 `json:"s2"`
	S3    float64 `json:"s3"`
}

// Pivots computes levels from the previous completed bar, or from the only bar
// when the window has just one. ok is false for an empty window.
func Pivots(bars []Bar) (PivotLevels, bool) {
	if len(bars) == 0 {
		return PivotLevels{}, false
	}
	ref := bars[len(bars)-1]
	if len(bars) >= 2 {
		ref = bars[len(bars)-2]
	}

	h, l, c := ref.High, ref.Low, ref.Close
	p := (h + l + c) / 3
	return PivotLevels{
		Pivot: p,
		R1:    2*p - l,
		R2:    p + (h - l),
		R3:    h + 2*(p-l),
		S1:    2*p - h,
		S2:    p - (h - l),
		S3:    l - 2*(h-p),
	}, true
}

// TrendMode names a relationship between the 20, 50 and 200 period EMAs.
type TrendMode string

const (
	TrendNone           TrendMode = "NONE"
	TrendBearish        TrendMode = "BEARISH"
	TrendBullish        TrendMode = "BULLISH"
	TrendGoldenCross    TrendMode = "GOLDEN_CROSS"
	TrendDeathCross     TrendMode = "DEATH_CROSS"
	TrendBullishAligned TrendMode = "BULLISH_ALIGNED"
)

// NeedsLongEMA reports whether mode compares against the 200 period EMA.
func (m TrendMode) NeedsLongEMA() bool {
	switch m {
	case TrendGoldenCross, TrendDeathCross, TrendBullishAligned:
		return true
	}
	return false
}

// EMATrend holds the latest 20/50/200 EMA values. EMA200 is NaN when it was
// not computed.
type EMATrend struct {
	EMA20  float64
	EMA50  float64
	EMA200 float64
}

// ComputeEMATrend evaluates the latest EMA values, including the 200 period
// EMA only when withLong is set.
func ComputeEMATrend(closes []float64, withLong bool) EMATrend {
	t := EMATrend{
		EMA20:  Last(EMA(closes, 20)),
		EMA50:  Last(EMA(closes, 50)),
		EMA200: math.NaN(),
	}
	if withLong {
		t.EMA200 = Last(EMA(closes, 200))
	}
	return t
}

// Matches reports whether the EMA relationship holds for mode. NONE and
// unrecognized modes always match.
func (t EMATrend) Matches(mode TrendMode) bool {
	switch mode {
	case TrendBearish:
		return t.EMA20 < t.EMA50
	case TrendBullish:
		return t.EMA20 > t.EMA50
	case TrendGoldenCross:
		return t.EMA50 > t.EMA200
	case TrendDeathCross:
		return t.EMA50 < t.EMA200
	case TrendBullishAligned:
		return t.EMA20 > t.EMA50 && t.EMA50 > t.EMA200
	default:
		return true
	}
}
