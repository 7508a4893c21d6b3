// Package volatility estimates implied volatility from realized volatility and
// classifies it into regimes that drive adaptive strike targeting.
package volatility

import (
	"math"
	"time"

	"github.com/eddiefleurent/covered_calls/internal/indicators"
)

// Regime is the volatility-percentile bucket.
type Regime string

const (
	RegimeLow      Regime = "LOW"
	RegimeNormal   Regime = "NORMAL"
	RegimeElevated Regime = "ELEVATED"
	RegimeHigh     Regime = "HIGH"
)

const (
	// DefaultLookback is one trading year.
	DefaultLookback = 252
	// DefaultIV is used when there is not enough history to estimate.
	DefaultIV = 0.20

	tradingDays  = 252
	ivPremium    = 1.2
	rollWindow   = 20
	minBars      = 30
	minRolling   = 10
	minIVReturns = 10
	minIV        = 0.10
	maxIV        = 0.80
	historyStart = 60
)

// TargetDelta returns the short call delta for the regime.
func (r Regime) TargetDelta() float64 {
	switch r {
	case RegimeLow:
		return 0.35
	case RegimeElevated:
		return 0.25
	case RegimeHigh:
		return 0.20
	default:
		return 0.30
	}
}

// TargetOTMPct returns the target out-of-the-money distance as a fraction of spot.
func (r Regime) TargetOTMPct() float64 {
	switch r {
	case RegimeLow:
		return 0.035
	case RegimeElevated:
		return 0.06
	case RegimeHigh:
		return 0.085
	default:
		return 0.045
	}
}

// Description returns a human readable hint for the regime.
func (r Regime) Description() string {
	switch r {
	case RegimeLow:
		return "Low IV - Sell closer to ATM for better premium"
	case RegimeNormal:
		return "Normal IV - Standard 0.30 delta strikes"
	case RegimeElevated:
		return "Elevated IV - Sell further OTM for safety"
	case RegimeHigh:
		return "High IV - Very OTM strikes, consider collar"
	default:
		return "Unknown regime"
	}
}

// RegimeFor buckets a percentile: <25 LOW, <50 NORMAL, <75 ELEVATED, else HIGH.
func RegimeFor(percentile float64) Regime {
	switch {
	case percentile < 25:
		return RegimeLow
	case percentile < 50:
		return RegimeNormal
	case percentile < 75:
		return RegimeElevated
	default:
		return RegimeHigh
	}
}

// Metrics is the volatility snapshot for one symbol on one date.
type Metrics struct {
	Symbol       string    `json:"symbol"`
	Date         time.Time `json:"date"`
	CurrentIV    float64   `json:"current_iv"`
	Percentile   float64   `json:"iv_percentile"`
	Rank         float64   `json:"iv_rank"`
	High52W      float64   `json:"iv_52w_high"`
	Low52W       float64   `json:"iv_52w_low"`
	TargetDelta  float64   `json:"target_delta"`
	TargetOTMPct float64   `json:"target_otm_pct"`
	Regime       Regime    `json:"regime"`
}

// Service computes volatility metrics. It holds no mutable state and is safe
// to share between goroutines.
type Service struct {
	lookback int
}

// NewService returns a service ranking IV over lookback bars. Non-positive
// values use DefaultLookback.
func NewService(lookback int) *Service {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Service{lookback: lookback}
}

// Lookback returns the ranking window length.
func (s *Service) Lookback() int {
	return s.lookback
}

func logReturns(bars []indicators.Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		out = append(out, math.Log(bars[i].Close/bars[i-1].Close))
	}
	return out
}

func clampIV(iv float64) float64 {
	return math.Max(minIV, math.Min(maxIV, iv))
}

// FloorIV raises iv to the 0.10 floor used for pricing. NaN also maps to the
// floor, so a flat or suspended series can still be priced.
func FloorIV(iv float64) float64 {
	if math.IsNaN(iv) || iv < minIV {
		return minIV
	}
	return iv
}

// IVFromReturns annualizes the sample stdev of log returns, applies the
// implied-over-realized premium and clamps to [0.10, 0.80]. Fewer than ten
// returns yield DefaultIV.
func IVFromReturns(returns []float64) float64 {
	if len(returns) < minIVReturns {
		return DefaultIV
	}
	return clampIV(indicators.SampleStd(returns) * math.Sqrt(tradingDays) * ivPremium)
}

// EstimateIV estimates IV from the last 30 bars on or before date. With fewer
// than ten bars it returns fallback.
func EstimateIV(bars []indicators.Bar, date time.Time, fallback float64) float64 {
	recent := indicators.Tail(indicators.Window(bars, date), minBars)
	if len(recent) < minIVReturns {
		return fallback
	}
	std := indicators.SampleStd(logReturns(recent))
	if math.IsNaN(std) {
		return fallback
	}
	return clampIV(std * math.Sqrt(tradingDays) * ivPremium)
}

func defaultMetrics(symbol string, date time.Time) Metrics {
	return Metrics{
		Symbol:       symbol,
		Date:         date,
		CurrentIV:    DefaultIV,
		Percentile:   50,
		Rank:         50,
		High52W:      0.30,
		Low52W:       0.15,
		TargetDelta:  RegimeNormal.TargetDelta(),
		TargetOTMPct: RegimeNormal.TargetOTMPct(),
		Regime:       RegimeNormal,
	}
}

// Metrics ranks the current IV estimate against its own trailing history.
// Short histories return fixed NORMAL-regime defaults instead of failing.
func (s *Service) Metrics(symbol string, bars []indicators.Bar, date time.Time) Metrics {
	data := indicators.Tail(indicators.Window(bars, date), s.lookback+minBars)
	if len(data) < minBars {
		return defaultMetrics(symbol, date)
	}

	returns := logReturns(data)

	// each estimate uses the 20 returns strictly before position i
	var rolling []float64
	for i := rollWindow; i < len(returns); i++ {
		hv := indicators.SampleStd(returns[i-rollWindow:i]) * math.Sqrt(tradingDays)
		rolling = append(rolling, hv*ivPremium)
	}

	if len(rolling) < minRolling {
		tail := returns
		if len(tail) > rollWindow {
			tail = tail[len(tail)-rollWindow:]
		}
		current := IVFromReturns(tail)
		m := defaultMetrics(symbol, date)
		m.CurrentIV = current
		m.High52W = current * 1.3
		m.Low52W = current * 0.7
		return m
	}

	current := rolling[len(rolling)-1]
	historical := rolling[:len(rolling)-1]

	percentile := Percentile(current, historical)

	window := rolling
	if len(window) > s.lookback {
		window = window[len(window)-s.lookback:]
	}
	high, low := window[0], window[0]
	for _, v := range window[1:] {
		high = math.Max(high, v)
		low = math.Min(low, v)
	}

	regime := RegimeFor(percentile)
	return Metrics{
		Symbol:       symbol,
		Date:         date,
		CurrentIV:    current,
		Percentile:   percentile,
		Rank:         Rank(current, high, low),
		High52W:      high,
		Low52W:       low,
		TargetDelta:  regime.TargetDelta(),
		TargetOTMPct: regime.TargetOTMPct(),
		Regime:       regime,
	}
}

// Percentile is the share of historical values strictly below current, x100.
// An empty history is the 50th percentile.
func Percentile(current float64, historical []float64) float64 {
	if len(historical) == 0 {
		return 50
	}
	below := 0
	for _, v := range historical {
		if v < current {
			below++
		}
	}
	return float64(below) / float64(len(historical)) * 100
}

// Rank is (current-low)/(high-low) x100 clamped to [0, 100], or 50 when the
// range is empty.
func Rank(current, high, low float64) float64 {
	if high == low {
		return 50
	}
	r := (current - low) / (high - low) * 100
	return math.Max(0, math.Min(100, r))
}

// BuildHistory computes metrics for every bar from the 60th onwards. progress,
// when non-nil, is called every 50 bars.
func (s *Service) BuildHistory(symbol string, bars []indicators.Bar, progress func(pct float64, msg string)) []Metrics {
	if len(bars) <= historyStart {
		return nil
	}
	out := make([]Metrics, 0, len(bars)-historyStart)
	for i := historyStart; i < len(bars); i++ {
		date := bars[i].Date
		if progress != nil && i%50 == 0 {
			progress(float64(i)/float64(len(bars))*100, "Calculating IV for "+date.Format("2006-01-02"))
		}
		out = append(out, s.Metrics(symbol, bars, date))
	}
	return out
}
