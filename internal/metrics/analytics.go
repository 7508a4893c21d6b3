package metrics

import (
	"math"
	"sort"

	"github.com/eddiefleurent/covered_calls/internal/indicators"
)

const (
	RollingSharpeWindow     = 60
	RollingVolatilityWindow = 21
)

// DrawdownSeries returns the decline from the running peak at each point, in
// percent.
func DrawdownSeries(values []float64) []float64 {
	out := make([]float64, len(values))
	peak := math.Inf(-1)
	for i, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			out[i] = (peak - v) / peak * 100
		}
	}
	return out
}

// CumulativeReturns compounds daily returns into a running total return.
func CumulativeReturns(returns []float64) []float64 {
	out := make([]float64, len(returns))
	growth := 1.0
	for i, r := range returns {
		growth *= 1 + r
		out[i] = growth - 1
	}
	return out
}

// RollingSharpe computes the annualized Sharpe ratio over each trailing
// window. Positions before the first full window are NaN; flat windows are 0.
func (c *Calculator) RollingSharpe(returns []float64, window int) []float64 {
	out := make([]float64, len(returns))
	for i := range out {
		if window <= 0 || i < window-1 {
			out[i] = math.NaN()
			continue
		}
		w := returns[i-window+1 : i+1]
		std := indicators.SampleStd(w)
		if len(w) < 2 || std == 0 || math.IsNaN(std) {
			out[i] = 0
			continue
		}
		rf := c.riskFreeRate / TradingDaysPerYear
		out[i] = (indicators.Mean(w) - rf) / std * math.Sqrt(TradingDaysPerYear)
	}
	return out
}

// RollingVolatility is the trailing sample deviation of returns, annualized
// when asked.
func RollingVolatility(returns []float64, window int, annualize bool) []float64 {
	vol := indicators.RollingStd(returns, window)
	if annualize {
		for i := range vol {
			vol[i] *= math.Sqrt(TradingDaysPerYear)
		}
	}
	return vol
}

// Comparison is one row of a strategy comparison table.
type Comparison struct {
	Name             string  `json:"name"`
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	WinRate          float64 `json:"win_rate"`
	AssignmentRate   float64 `json:"assignment_rate"`
	TotalTrades      int     `json:"total_trades"`
}

// CompareStrategies tabulates reports by name, best total return first.
func CompareStrategies(reports map[string]Report) []Comparison {
	rows := make([]Comparison, 0, len(reports))
	for name, r := range reports {
		rows = append(rows, Comparison{
			Name:             name,
			TotalReturn:      r.TotalReturn,
			AnnualizedReturn: r.AnnualizedReturn,
			SharpeRatio:      r.SharpeRatio,
			MaxDrawdown:      r.MaxDrawdown,
			WinRate:          r.WinRate,
			AssignmentRate:   r.AssignmentRate,
			TotalTrades:      r.TotalTrades,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalReturn != rows[j].TotalReturn {
			return rows[i].TotalReturn > rows[j].TotalReturn
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}
