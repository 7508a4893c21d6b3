// Package mock generates synthetic daily OHLCV history for backtests run
// without a market data feed.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"

	"github.com/eddiefleurent/covered_calls/internal/indicators"
	"github.com/eddiefleurent/covered_calls/internal/marketdata"
)

const (
	tradingDaysPerYear = 252
	baseVolume         = 1_000_000
	meanReversion      = 0.02
	priceFloor         = 0.3 // fraction of the base price
)

// StockParams describe one simulated symbol.
type StockParams struct {
	Price      float64 // starting and mean-reversion level
	Volatility float64 // annualized
	Drift      float64 // annualized
}

// DefaultParams apply to symbols missing from KnownParams.
var DefaultParams = StockParams{Price: 1000, Volatility: 0.25, Drift: 0.10}

// KnownParams approximates large-cap NSE names.
var KnownParams = map[string]StockParams{
	"RELIANCE":   {2500, 0.25, 0.12},
	"TCS":        {3800, 0.22, 0.10},
	"HDFCBANK":   {1650, 0.20, 0.08},
	"INFY":       {1500, 0.24, 0.11},
	"ICICIBANK":  {1000, 0.22, 0.09},
	"HINDUNILVR": {2400, 0.18, 0.08},
	"SBIN":       {600, 0.28, 0.10},
	"BHARTIARTL": {950, 0.26, 0.14},
	"ITC":        {450, 0.20, 0.07},
	"AXISBANK":   {1100, 0.24, 0.08},
	"KOTAKBANK":  {1800, 0.21, 0.09},
	"LT":         {3000, 0.23, 0.11},
	"MARUTI":     {10000, 0.24, 0.10},
	"TITAN":      {3200, 0.26, 0.15},
	"BAJFINANCE": {7000, 0.30, 0.12},
}

// Regime is a market phase that scales drift and volatility.
type Regime string

const (
	RegimeNormal   Regime = "normal"
	RegimeBull     Regime = "bull"
	RegimeBear     Regime = "bear"
	RegimeVolatile Regime = "volatile"
)

var regimeWeights = []struct {
	regime Regime
	weight float64
}{
	{RegimeBull, 0.25},
	{RegimeBear, 0.20},
	{RegimeNormal, 0.40},
	{RegimeVolatile, 0.15},
}

// adjust returns the daily drift and volatility under r.
func (r Regime) adjust(drift, vol float64) (float64, float64) {
	switch r {
	case RegimeBull:
		return drift * 2, vol * 0.8
	case RegimeBear:
		return -drift * 1.5, vol * 1.2
	case RegimeVolatile:
		return drift * 0.5, vol * 1.8
	default:
		return drift, vol
	}
}

// Provider is a deterministic marketdata.Provider: the same seed, symbol and
// range always produce the same bars.
type Provider struct {
	seed uint64
}

var _ marketdata.Provider = (*Provider)(nil)

// NewProvider returns a generator seeded with seed.
func NewProvider(seed int64) *Provider {
	return &Provider{seed: uint64(seed)}
}

// LoadPrices generates bars for every weekday between from and to.
func (p *Provider) LoadPrices(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]indicators.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params, ok := KnownParams[symbol]
	if !ok {
		params = DefaultParams
	}
	bars := Generate(params, businessDays(from, to), p.rng(symbol))
	if len(bars) == 0 {
		return nil, marketdata.ErrNoData
	}
	return bars, nil
}

func (p *Provider) rng(symbol string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	return rand.New(rand.NewPCG(p.seed, h.Sum64()))
}

func businessDays(from, to time.Time) []time.Time {
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days = append(days, d)
		}
	}
	return days
}

// Generate builds a regime-switching geometric random walk with mean
// reversion toward params.Price, one bar per date.
func Generate(params StockParams, dates []time.Time, rng *rand.Rand) []indicators.Bar {
	if len(dates) == 0 {
		return nil
	}
	closes := closePath(params, len(dates), rng)

	bars := make([]indicators.Bar, len(dates))
	for i, date := range dates {
		c := closes[i]
		rangeWidth := c * uniform(rng, 0.01, 0.025)

		up := rng.IntN(2) == 0
		if i > 0 {
			up = c > closes[i-1]
		}

		var open, high, low float64
		if up {
			low = c - rangeWidth*uniform(rng, 0.6, 1.0)
			high = c + rangeWidth*uniform(rng, 0.2, 0.5)
			open = low + (c-low)*uniform(rng, 0.1, 0.4)
		} else {
			high = c + rangeWidth*uniform(rng, 0.6, 1.0)
			low = c - rangeWidth*uniform(rng, 0.2, 0.5)
			open = high - (high-c)*uniform(rng, 0.1, 0.4)
		}

		prev := closes[max(0, i-1)]
		volMultiplier := 1 + math.Abs(c-prev)/c*10
		volume := int64(baseVolume * volMultiplier * uniform(rng, 0.5, 1.5))

		bars[i] = indicators.Bar{
			Date:   date,
			Open:   round2(open),
			High:   round2(high),
			Low:    round2(low),
			Close:  round2(c),
			Volume: volume,
		}
	}
	return bars
}

func closePath(params StockParams, n int, rng *rand.Rand) []float64 {
	dailyVol := params.Volatility / math.Sqrt(tradingDaysPerYear)
	dailyDrift := params.Drift / tradingDaysPerYear

	prices := make([]float64, n)
	prices[0] = params.Price
	regime := RegimeNormal
	held := 0
	for i := 1; i < n; i++ {
		held++
		if held > 20+rng.IntN(40) {
			regime = pickRegime(rng)
			held = 0
		}
		drift, vol := regime.adjust(dailyDrift, dailyVol)
		drift += meanReversion * (params.Price - prices[i-1]) / params.Price

		ret := drift + vol*rng.NormFloat64()
		prices[i] = math.Max(prices[i-1]*(1+ret), params.Price*priceFloor)
	}
	return prices
}

func pickRegime(rng *rand.Rand) Regime {
	u := rng.Float64()
	for _, w := range regimeWeights {
		if u < w.weight {
			return w.regime
		}
		u -= w.weight
	}
	return RegimeNormal
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
