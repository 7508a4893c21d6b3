// Package strategy implements the covered call decision rules: strike
// selection, entry filters, early exits and roll-ups, and the expiry calendar.
package strategy

import (
	"math"
	"time"

	"github.com/eddiefleurent/covered_calls/internal/config"
	"github.com/eddiefleurent/covered_calls/internal/indicators"
	"github.com/eddiefleurent/covered_calls/internal/pricing"
	"github.com/eddiefleurent/covered_calls/internal/util"
	"github.com/eddiefleurent/covered_calls/internal/volatility"
)

const (
	atrPeriod          = 14
	defaultTargetDelta = 0.30
	fallbackOTM        = 1.02
	farFallbackOTM     = 1.05
)

// SelectionContext is everything known about one symbol on an entry date.
type SelectionContext struct {
	Date         time.Time
	Spot         float64
	Bars         []indicators.Bar    // history up to and including Date
	TimeToExpiry float64             // years
	IV           float64
	Regime       *volatility.Metrics // set for ADAPTIVE_DELTA
}

// Selector picks short call strikes. It is read-only after construction.
type Selector struct {
	model         pricing.Model
	method        config.StrikeMethod
	atrMultiplier float64
	bollPeriod    int
	bollStdDev    float64
}

// NewSelector builds a selector for the run's strike method.
func NewSelector(cfg config.RunConfig) *Selector {
	return &Selector{
		model:         pricing.NewModel(cfg.RiskFreeRate),
		method:        cfg.StrikeMethod,
		atrMultiplier: cfg.ATRMultiplier,
		bollPeriod:    cfg.Filters.Bollinger.Period,
		bollStdDev:    cfg.Filters.Bollinger.StdDev,
	}
}

// Method returns the configured strike method.
func (s *Selector) Method() config.StrikeMethod {
	return s.method
}

// Select returns a strike from the ladder around sc.Spot. Unknown methods and
// methods whose inputs are unavailable fall back to 2% (or 5% for R2) OTM.
func (s *Selector) Select(sc SelectionContext) float64 {
	ladder := util.StrikeLadder(sc.Spot)
	spot := sc.Spot

	switch s.method {
	case config.StrikeATRBased:
		atr := indicators.ATR(sc.Bars, atrPeriod)
		return pricing.NearestStrike(ladder, spot+atr*s.atrMultiplier)

	case config.StrikeAdaptiveDelta:
		target := defaultTargetDelta
		if sc.Regime != nil {
			target = sc.Regime.TargetDelta
		}
		return s.byDelta(ladder, sc, target)

	case config.StrikeDelta30:
		return s.byDelta(ladder, sc, 0.30)

	case config.StrikeDelta40:
		return s.byDelta(ladder, sc, 0.40)

	case config.StrikeOTM2Pct:
		return pricing.FindStrikeByOTMPercent(spot, ladder, 0.02, pricing.Call)

	case config.StrikeOTM5Pct:
		return pricing.FindStrikeByOTMPercent(spot, ladder, 0.05, pricing.Call)

	case config.StrikeATM:
		return pricing.NearestStrike(ladder, spot)

	case config.StrikePivotR1:
		return pricing.NearestStrike(ladder, s.pivotTarget(sc, func(p indicators.PivotLevels) float64 { return p.R1 }, fallbackOTM))

	case config.StrikePivotR2:
		return pricing.NearestStrike(ladder, s.pivotTarget(sc, func(p indicators.PivotLevels) float64 { return p.R2 }, farFallbackOTM))

	case config.StrikeBollingerUpper:
		return pricing.NearestStrike(ladder, s.bollingerTarget(sc))

	default:
		return pricing.NearestStrike(ladder, spot*fallbackOTM)
	}
}

// byDelta falls back to 2% OTM when no ladder strike can be priced.
func (s *Selector) byDelta(ladder []float64, sc SelectionContext, target float64) float64 {
	strike, _ := s.model.FindStrikeByDelta(sc.Spot, ladder, sc.TimeToExpiry, sc.IV, target, pricing.Call)
	if strike <= 0 {
		return pricing.NearestStrike(ladder, sc.Spot*fallbackOTM)
	}
	return strike
}

// pivotTarget uses the resistance level when it is above spot.
func (s *Selector) pivotTarget(sc SelectionContext, level func(indicators.PivotLevels) float64, fallback float64) float64 {
	p, ok := indicators.Pivots(sc.Bars)
	if !ok {
		return sc.Spot * fallback
	}
	if target := level(p); target > sc.Spot {
		return target
	}
	return sc.Spot * fallback
}

// bollingerTarget uses the upper band when there is enough history and the
// band sits above spot.
func (s *Selector) bollingerTarget(sc SelectionContext) float64 {
	if len(sc.Bars) >= s.bollPeriod+5 {
		upper, _, _ := indicators.Bollinger(indicators.Closes(sc.Bars), s.bollPeriod, s.bollStdDev)
		if u := indicators.Last(upper); !math.IsNaN(u) && u > sc.Spot {
			return u
		}
	}
	return sc.Spot * fallbackOTM
}
