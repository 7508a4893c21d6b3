// Package metrics turns an equity curve and a trade ledger into performance
// figures: returns, drawdown, risk-adjusted ratios and trade statistics.
package metrics

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/eddiefleurent/covered_calls/internal/indicators"
	"github.com/eddiefleurent/covered_calls/internal/models"
)

const (
	// TradingDaysPerYear annualizes daily ratios.
	TradingDaysPerYear = 252
	// DefaultRiskFreeRate is the annual benchmark used for excess returns.
	DefaultRiskFreeRate = 0.07
)

// Report holds the summary figures of one run. Percentages are expressed as
// 25.5 for 25.5%. ProfitFactor and SortinoRatio may be +Inf.
type Report struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`

	TotalTrades      int     `json:"total_trades"`
	ProfitableTrades int     `json:"profitable_trades"`
	LosingTrades     int     `json:"losing_trades"`
	WinRate          float64 `json:"win_rate"`
	AssignmentRate   float64 `json:"assignment_rate"`
	AverageTrade     float64 `json:"average_trade"`
	AverageWin       float64 `json:"average_win"`
	AverageLoss      float64 `json:"average_loss"`
	ProfitFactor     float64 `json:"profit_factor"`
	MaxWin           float64 `json:"max_win"`
	MaxLoss          float64 `json:"max_loss"`
	TotalWins        int     `json:"total_wins"`
	TotalLosses      int     `json:"total_losses"`
	PremiumYield     float64 `json:"premium_yield"`

	BuyHoldReturn float64 `json:"buy_hold_return"`
	VsBuyHold     float64 `json:"vs_buy_hold"`
}

// reportJSON mirrors Report with the unbounded ratios as pointers so that an
// infinite value encodes as null.
type reportJSON struct {
	reportAlias
	SortinoRatio *float64 `json:"sortino_ratio"`
	ProfitFactor *float64 `json:"profit_factor"`
}

type reportAlias Report

func finiteOrNil(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// MarshalJSON encodes infinite ratios as null.
func (r Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(reportJSON{
		reportAlias:  reportAlias(r),
		SortinoRatio: finiteOrNil(r.SortinoRatio),
		ProfitFactor: finiteOrNil(r.ProfitFactor),
	})
}

// UnmarshalJSON decodes null ratios back to +Inf.
func (r *Report) UnmarshalJSON(data []byte) error {
	var aux reportJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Report(aux.reportAlias)
	r.SortinoRatio = math.Inf(1)
	if aux.SortinoRatio != nil {
		r.SortinoRatio = *aux.SortinoRatio
	}
	r.ProfitFactor = math.Inf(1)
	if aux.ProfitFactor != nil {
		r.ProfitFactor = *aux.ProfitFactor
	}
	return nil
}

// Calculator computes metrics against a fixed risk-free rate.
type Calculator struct {
	riskFreeRate float64
}

// NewCalculator returns a calculator for the annual risk-free rate.
func NewCalculator(riskFreeRate float64) *Calculator {
	return &Calculator{riskFreeRate: riskFreeRate}
}

// TotalReturn is the percentage change from initial to final.
func TotalReturn(initial, final float64) float64 {
	if initial <= 0 {
		return 0
	}
	return (final - initial) / initial * 100
}

// AnnualizedReturn compounds a total return over days calendar days.
func AnnualizedReturn(totalPct float64, days int) float64 {
	if days <= 0 {
		return 0
	}
	growth := 1 + totalPct/100
	if growth <= 0 {
		return -100
	}
	years := float64(days) / 365
	return (math.Pow(growth, 1/years) - 1) * 100
}

// MaxDrawdown returns the largest peak-to-trough decline as a positive
// percentage.
func MaxDrawdown(values []float64) float64 {
	worst := 0.0
	for _, dd := range DrawdownSeries(values) {
		if dd > worst {
			worst = dd
		}
	}
	return worst
}

// DailyReturns returns the period-over-period fractional changes of values.
func DailyReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		out = append(out, values[i]/values[i-1]-1)
	}
	return out
}

// Sharpe is the annualized mean excess return over the standard deviation of
// returns. Fewer than two returns or zero dispersion give 0.
func (c *Calculator) Sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	std := indicators.SampleStd(returns)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	rf := c.riskFreeRate / TradingDaysPerYear
	return (indicators.Mean(returns) - rf) / std * math.Sqrt(TradingDaysPerYear)
}

// Sortino divides the mean excess return by the deviation of negative returns
// only. No negative returns at all gives +Inf.
func (c *Calculator) Sortino(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var negative []float64
	for _, r := range returns {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	if len(negative) == 0 {
		return math.Inf(1)
	}
	downside := indicators.SampleStd(negative)
	if downside == 0 || math.IsNaN(downside) {
		return 0
	}
	rf := c.riskFreeRate / TradingDaysPerYear
	return (indicators.Mean(returns) - rf) / downside * math.Sqrt(TradingDaysPerYear)
}

// TradeStats summarizes per-trade P&L.
type TradeStats struct {
	AverageTrade float64
	AverageWin   float64
	AverageLoss  float64
	ProfitFactor float64
	MaxWin       float64
	MaxLoss      float64
	TotalWins    int
	TotalLosses  int
}

// SummarizeTrades computes win/loss statistics from trade P&Ls. Without any
// losing trade the profit factor is +Inf.
func SummarizeTrades(pnls []float64) TradeStats {
	if len(pnls) == 0 {
		return TradeStats{}
	}
	var (
		sumWins, sumLosses float64
		wins, losses       int
		stats              TradeStats
	)
	stats.MaxWin, stats.MaxLoss = pnls[0], pnls[0]
	for _, p := range pnls {
		switch {
		case p > 0:
			sumWins += p
			wins++
		case p < 0:
			sumLosses += p
			losses++
		}
		stats.MaxWin = math.Max(stats.MaxWin, p)
		stats.MaxLoss = math.Min(stats.MaxLoss, p)
	}
	stats.AverageTrade = indicators.Mean(pnls)
	if wins > 0 {
		stats.AverageWin = sumWins / float64(wins)
	}
	if losses > 0 {
		stats.AverageLoss = sumLosses / float64(losses)
		stats.ProfitFactor = sumWins / math.Abs(sumLosses)
	} else {
		stats.ProfitFactor = math.Inf(1)
	}
	stats.TotalWins, stats.TotalLosses = wins, losses
	return stats
}

// PremiumYield is total premium per share over the average notional of one
// position times the number of trades.
func PremiumYield(trades []models.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	var premium, entry, lot float64
	for _, t := range trades {
		premium += t.PremiumReceived
		entry += t.StockEntryPrice
		lot += float64(t.LotSize)
	}
	n := float64(len(trades))
	exposure := (entry / n) * (lot / n) * n
	if exposure <= 0 {
		return 0
	}
	return premium / exposure * 100
}

// Compile computes the full report. Buy-and-hold fields are left at zero;
// see WithBuyHold.
func (c *Calculator) Compile(curve []models.EquityPoint, trades []models.Trade, initialCapital float64) Report {
	var r Report

	if len(curve) > 0 {
		values := EquityValues(curve)
		r.TotalReturn = TotalReturn(initialCapital, values[len(values)-1])
		days := models.DaysBetween(curve[0].Date, curve[len(curve)-1].Date)
		r.AnnualizedReturn = AnnualizedReturn(r.TotalReturn, days)
		r.MaxDrawdown = MaxDrawdown(values)

		returns := DailyReturns(values)
		r.SharpeRatio = c.Sharpe(returns)
		r.SortinoRatio = c.Sortino(returns)
	}

	if len(trades) > 0 {
		pnls := make([]float64, len(trades))
		for i, t := range trades {
			pnls[i] = t.TotalPnL
			if t.TotalPnL > 0 {
				r.ProfitableTrades++
			}
			if t.Assigned() {
				r.AssignmentRate++
			}
		}
		total := float64(len(trades))
		r.TotalTrades = len(trades)
		r.LosingTrades = r.TotalTrades - r.ProfitableTrades
		r.WinRate = float64(r.ProfitableTrades) / total * 100
		r.AssignmentRate = r.AssignmentRate / total * 100

		s := SummarizeTrades(pnls)
		r.AverageTrade = s.AverageTrade
		r.AverageWin = s.AverageWin
		r.AverageLoss = s.AverageLoss
		r.ProfitFactor = s.ProfitFactor
		r.MaxWin = s.MaxWin
		r.MaxLoss = s.MaxLoss
		r.TotalWins = s.TotalWins
		r.TotalLosses = s.TotalLosses
		r.PremiumYield = PremiumYield(trades)
	}
	return r
}

// WithBuyHold fills the benchmark comparison fields.
func (r Report) WithBuyHold(buyHold float64) Report {
	r.BuyHoldReturn = buyHold
	r.VsBuyHold = r.TotalReturn - buyHold
	return r
}

// EquityValues extracts portfolio values in curve order.
func EquityValues(curve []models.EquityPoint) []float64 {
	out := make([]float64, len(curve))
	for i, p := range curve {
		out[i] = p.PortfolioValue
	}
	return out
}

// BuyHoldReturn is the equal-weighted return of holding every symbol from its
// first to its last close inside [start, end]. Each symbol carries weight
// 1/len(prices) whether or not it has enough closes to contribute. Fewer than
// two distinct dates across all symbols gives 0.
func BuyHoldReturn(prices map[string][]indicators.Bar, start, end time.Time) float64 {
	if len(prices) == 0 {
		return 0
	}
	dates := make(map[time.Time]struct{})
	symbols := make([]string, 0, len(prices))
	for sym, bars := range prices {
		symbols = append(symbols, sym)
		for _, b := range bars {
			if !b.Date.Before(start) && !b.Date.After(end) {
				dates[b.Date] = struct{}{}
			}
		}
	}
	if len(dates) < 2 {
		return 0
	}
	sort.Strings(symbols)

	weight := 1.0 / float64(len(symbols))
	total := 0.0
	for _, sym := range symbols {
		var first, last float64
		n := 0
		for _, b := range prices[sym] {
			if b.Date.Before(start) || b.Date.After(end) || math.IsNaN(b.Close) {
				continue
			}
			if n == 0 {
				first = b.Close
			}
			last = b.Close
			n++
		}
		if n < 2 || first == 0 {
			continue
		}
		total += (last - first) / first * weight
	}
	return total * 100
}
