package strategy

import (
	"math"

	"github.com/eddiefleurent/covered_calls/internal/config"
	"github.com/eddiefleurent/covered_calls/internal/indicators"
)

// Filter decides whether a new covered call may be written given the bars up
// to and including the entry date. Every filter allows the entry when the
// history is too short or the indicator is indeterminate.
type Filter interface {
	Name() string
	Allow(bars []indicators.Bar) bool
}

// FilterChain applies filters in order and stops at the first rejection.
type FilterChain []Filter

// BuildFilterChain returns the enabled filters in evaluation order: trend,
// RSI, stochastic, supertrend, VWAP, ADX, Bollinger, MACD, Williams %R.
func BuildFilterChain(cfg config.FilterConfig) FilterChain {
	var chain FilterChain
	if mode := cfg.Trend.EffectiveMode(); mode != indicators.TrendNone {
		chain = append(chain, TrendFilter{Mode: mode})
	}
	if cfg.RSI.Enabled {
		chain = append(chain, RSIFilter{cfg.RSI})
	}
	if cfg.Stochastic.Enabled {
		chain = append(chain, StochasticFilter{cfg.Stochastic})
	}
	if cfg.Supertrend.Enabled {
		chain = append(chain, SupertrendFilter{cfg.Supertrend})
	}
	if cfg.VWAP.Enabled {
		chain = append(chain, VWAPFilter{cfg.VWAP})
	}
	if cfg.ADX.Enabled {
		chain = append(chain, ADXFilter{cfg.ADX})
	}
	if cfg.Bollinger.Enabled {
		chain = append(chain, BollingerFilter{cfg.Bollinger})
	}
	if cfg.MACD.Enabled {
		chain = append(chain, MACDFilter{cfg.MACD})
	}
	if cfg.Williams.Enabled {
		chain = append(chain, WilliamsFilter{cfg.Williams})
	}
	return chain
}

// Allow returns false and the rejecting filter's name on the first rejection.
func (c FilterChain) Allow(bars []indicators.Bar) (bool, string) {
	for _, f := range c {
		if !f.Allow(bars) {
			return false, f.Name()
		}
	}
	return true, ""
}

// Names lists the filters in evaluation order.
func (c FilterChain) Names() []string {
	names := make([]string, len(c))
	for i, f := range c {
		names[i] = f.Name()
	}
	return names
}

func anyNaN(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// TrendFilter compares the 20, 50 and 200 period EMAs.
type TrendFilter struct {
	Mode indicators.TrendMode
}

func (f TrendFilter) Name() string { return "trend_" + string(f.Mode) }

func (f TrendFilter) Allow(bars []indicators.Bar) bool {
	if f.Mode == indicators.TrendNone {
		return true
	}
	long := f.Mode.NeedsLongEMA()
	if long && len(bars) < 200 {
		return true
	}
	if len(bars) < 50 {
		return true
	}
	return indicators.ComputeEMATrend(indicators.Closes(bars), long).Matches(f.Mode)
}

// RSIFilter admits entries while RSI sits inside [Min, Max].
type RSIFilter struct {
	cfg config.RSIFilterConfig
}

func (f RSIFilter) Name() string { return "rsi" }

func (f RSIFilter) Allow(bars []indicators.Bar) bool {
	if len(bars) < f.cfg.Period+10 {
		return true
	}
	rsi := indicators.Last(indicators.RSI(indicators.Closes(bars), f.cfg.Period))
	if math.IsNaN(rsi) {
		return true
	}
	return rsi >= f.cfg.Min && rsi <= f.cfg.Max
}

// StochasticFilter wants %K crossing below %D from the overbought zone.
type StochasticFilter struct {
	cfg config.StochasticFilterConfig
}

func (f StochasticFilter) Name() string { return "stochastic" }

func (f StochasticFilter) Allow(bars []indicators.Bar) bool {
	c := f.cfg
	if len(bars) < c.KPeriod+c.Smoothing+c.DPeriod+5 {
		return true
	}
	k, d := indicators.Stochastic(bars, c.KPeriod, c.DPeriod, c.Smoothing)
	if len(k) < 2 {
		return true
	}
	curK, prevK := indicators.Last(k), indicators.Prev(k)
	curD, prevD := indicators.Last(d), indicators.Prev(d)
	if anyNaN(curK, prevK, curD, prevD) {
		return true
	}

	fromOverbought := prevK > c.Overbought || curK > c.Overbought-10
	bearishCross := prevK >= prevD && curK < curD
	return fromOverbought && bearishCross
}

// SupertrendFilter requires the supertrend to be bullish.
type SupertrendFilter struct {
	cfg config.SupertrendFilterConfig
}

func (f SupertrendFilter) Name() string { return "supertrend" }

func (f SupertrendFilter) Allow(bars []indicators.Bar) bool {
	if len(bars) < f.cfg.Period+10 {
		return true
	}
	line, dir := indicators.Supertrend(bars, f.cfg.Period, f.cfg.Multiplier)
	if math.IsNaN(indicators.Last(line)) {
		return true
	}
	return dir[len(dir)-1] == 1
}

// VWAPFilter compares the close with VWAP.
type VWAPFilter struct {
	cfg config.VWAPFilterConfig
}

func (f VWAPFilter) Name() string { return "vwap" }

func (f VWAPFilter) Allow(bars []indicators.Bar) bool {
	if len(bars) < max(f.cfg.Period, 5) {
		return true
	}
	vwap := indicators.Last(indicators.VWAP(bars, f.cfg.Period))
	last := bars[len(bars)-1].Close
	if anyNaN(vwap, last) {
		return true
	}
	switch f.cfg.Mode {
	case config.VWAPAbove:
		return last > vwap
	case config.VWAPBelow:
		return last < vwap
	default:
		return true
	}
}

// ADXFilter requires a trending market and optionally +DI above -DI.
type ADXFilter struct {
	cfg config.ADXFilterConfig
}

func (f ADXFilter) Name() string { return "adx" }

func (f ADXFilter) Allow(bars []indicators.Bar) bool {
	if len(bars) < 2*f.cfg.Period+10 {
		return true
	}
	adx, plus, minus := indicators.ADX(bars, f.cfg.Period)
	a, p, m := indicators.Last(adx), indicators.Last(plus), indicators.Last(minus)
	if anyNaN(a, p, m) {
		return true
	}
	if f.cfg.RequireBullish {
		return a > f.cfg.Threshold && p > m
	}
	return a > f.cfg.Threshold
}

// BollingerFilter blocks entries at or above the upper band.
type BollingerFilter struct {
	cfg config.BollingerFilterConfig
}

func (f BollingerFilter) Name() string { return "bollinger" }

func (f BollingerFilter) Allow(bars []indicators.Bar) bool {
	if len(bars) < f.cfg.Period+5 {
		return true
	}
	upper, middle, _ := indicators.Bollinger(indicators.Closes(bars), f.cfg.Period, f.cfg.StdDev)
	u, m := indicators.Last(upper), indicators.Last(middle)
	if anyNaN(u, m) {
		return true
	}
	return bars[len(bars)-1].Close < u
}

// MACDFilter gates on MACD momentum.
type MACDFilter struct {
	cfg config.MACDFilterConfig
}

func (f MACDFilter) Name() string { return "macd" }

func (f MACDFilter) Allow(bars []indicators.Bar) bool {
	c := f.cfg
	if len(bars) < c.Slow+c.Signal+5 {
		return true
	}
	macd, signal, hist := indicators.MACD(indicators.Closes(bars), c.Fast, c.Slow, c.Signal)
	if len(hist) < 2 {
		return true
	}
	curM, curS := indicators.Last(macd), indicators.Last(signal)
	curH, prevH := indicators.Last(hist), indicators.Prev(hist)
	if anyNaN(curM, curS, curH) {
		return true
	}

	switch c.Mode {
	case config.MACDBullish:
		return curM > curS
	case config.MACDReversal:
		// fading positive momentum or a fresh cross below zero
		return (prevH > 0 && curH < prevH) || (curH < 0 && prevH >= 0)
	default:
		return true
	}
}

// WilliamsFilter wants %R turning down from the overbought zone.
type WilliamsFilter struct {
	cfg config.WilliamsFilterConfig
}

func (f WilliamsFilter) Name() string { return "williams_r" }

func (f WilliamsFilter) Allow(bars []indicators.Bar) bool {
	if len(bars) < f.cfg.Period+5 {
		return true
	}
	wr := indicators.WilliamsR(bars, f.cfg.Period)
	if len(wr) < 2 {
		return true
	}
	cur, prev := indicators.Last(wr), indicators.Prev(wr)
	if anyNaN(cur, prev) {
		return true
	}
	return (prev > f.cfg.Overbought || cur > f.cfg.Overbought-10) && cur < prev
}
