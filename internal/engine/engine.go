// Package engine runs the day-by-day covered call simulation.
//
// Each trading date is processed in a fixed order: settle expiring calls,
// apply early exits and roll-ups, open new positions in the entry window, then
// mark the portfolio to market. Positions still open after the last date are
// closed at the end date.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sort"
	"time"

	"github.com/eddiefleurent/covered_calls/internal/config"
	"github.com/eddiefleurent/covered_calls/internal/indicators"
	"github.com/eddiefleurent/covered_calls/internal/metrics"
	"github.com/eddiefleurent/covered_calls/internal/models"
	"github.com/eddiefleurent/covered_calls/internal/pricing"
	"github.com/eddiefleurent/covered_calls/internal/strategy"
	"github.com/eddiefleurent/covered_calls/internal/volatility"
)

const (
	// EntryWindowDays is the last calendar day of the month on which new
	// positions are opened.
	EntryWindowDays = 5
	// MinDaysToExpiry skips entries whose monthly expiry is too close.
	MinDaysToExpiry = 7

	progressEvery = 10
)

// ErrNoPriceData is returned when none of the configured symbols has bars.
var ErrNoPriceData = errors.New("no price data for any configured symbol")

// ProgressFunc receives the share of trading dates processed and a message.
type ProgressFunc func(percent float64, message string)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithProgress installs a progress hook called every tenth trading date.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// WithLotSizes sets the per-symbol contract lot size lookup.
func WithLotSizes(fn func(symbol string) int) Option {
	return func(e *Engine) {
		if fn != nil {
			e.lotSize = fn
		}
	}
}

// Result is the outcome of one run.
type Result struct {
	Metrics     metrics.Report                  `json:"metrics"`
	Trades      []models.Trade                  `json:"trades"`
	EquityCurve []models.EquityPoint            `json:"equity_curve"`
	Config      config.Summary                  `json:"config"`
	IVHistory   map[string][]volatility.Metrics `json:"iv_history,omitempty"`
	FinalCash   float64                         `json:"final_cash"`
}

// Engine simulates one configuration over a fixed price table. The price
// table is only read, so several engines may share it.
type Engine struct {
	cfg      config.RunConfig
	prices   map[string][]indicators.Bar
	symbols  []string
	logger   *log.Logger
	progress ProgressFunc
	lotSize  func(string) int

	model    pricing.Model
	selector *strategy.Selector
	filters  strategy.FilterChain
	exits    *strategy.ExitPolicy
	iv       *volatility.Service
	calc     *metrics.Calculator

	// per-run state, reset by Run
	cash      float64
	positions map[string]*models.Position
	trades    []models.Trade
	equity    []models.EquityPoint
	ivHistory map[string][]volatility.Metrics
}

// New validates cfg and prepares an engine over prices, keyed by symbol with
// bars in chronological order. Configured symbols without bars are skipped.
func New(cfg config.RunConfig, prices map[string][]indicators.Bar, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		prices:  make(map[string][]indicators.Bar),
		logger:  log.New(io.Discard, "", 0),
		lotSize: func(string) int { return 1 },
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, sym := range cfg.Symbols {
		bars := prices[sym]
		if len(bars) == 0 {
			e.logger.Printf("WARNING: no price data for %s, skipping", sym)
			continue
		}
		if _, dup := e.prices[sym]; dup {
			continue
		}
		e.prices[sym] = bars
		e.symbols = append(e.symbols, sym)
	}
	if len(e.symbols) == 0 {
		return nil, ErrNoPriceData
	}

	e.model = pricing.NewModel(cfg.RiskFreeRate)
	e.selector = strategy.NewSelector(cfg)
	e.filters = strategy.BuildFilterChain(cfg.Filters)
	e.exits = strategy.NewExitPolicy(cfg)
	e.iv = volatility.NewService(volatility.DefaultLookback)
	e.calc = metrics.NewCalculator(cfg.RiskFreeRate)
	return e, nil
}

// Symbols returns the configured symbols that have price data, in run order.
func (e *Engine) Symbols() []string {
	return append([]string(nil), e.symbols...)
}

func (e *Engine) reset() {
	e.cash = e.cfg.InitialCapital
	e.positions = make(map[string]*models.Position)
	e.trades = nil
	e.equity = nil
	e.ivHistory = make(map[string][]volatility.Metrics)
}

// Run simulates every trading date between the configured start and end.
// Cancelling ctx aborts the run between dates.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.reset()

	dates := e.tradingDates()
	total := len(dates)
	e.logger.Printf("Starting backtest: %d symbols, %s to %s, %d trading days",
		len(e.symbols), e.cfg.StartDate, e.cfg.EndDate, total)
	if len(e.filters) > 0 {
		e.logger.Printf("Entry filters: %v", e.filters.Names())
	}

	for idx, date := range dates {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest cancelled at %s: %w", date.Format(time.DateOnly), err)
		}
		if e.progress != nil && idx%progressEvery == 0 {
			e.progress(float64(idx)/float64(total)*100, "Processing "+date.Format(time.DateOnly))
		}
		e.processDay(date)
	}

	e.closeAll(e.cfg.EndDate.Time)

	report := e.calc.Compile(e.equity, e.trades, e.cfg.InitialCapital)
	report = report.WithBuyHold(metrics.BuyHoldReturn(e.prices, e.cfg.StartDate.Time, e.cfg.EndDate.Time))

	e.logger.Printf("Backtest completed: %d trades, Total Return: %.2f%%", len(e.trades), report.TotalReturn)

	res := &Result{
		Metrics:     report,
		Trades:      e.trades,
		EquityCurve: e.equity,
		Config:      e.cfg.Summary(),
		FinalCash:   e.cash,
	}
	if len(e.ivHistory) > 0 {
		res.IVHistory = e.ivHistory
	}
	return res, nil
}

// tradingDates is the sorted union of bar dates inside [start, end].
func (e *Engine) tradingDates() []time.Time {
	start, end := e.cfg.StartDate.Time, e.cfg.EndDate.Time
	seen := make(map[time.Time]struct{})
	for _, sym := range e.symbols {
		for _, b := range e.prices[sym] {
			if b.Date.Before(start) || b.Date.After(end) {
				continue
			}
			seen[b.Date] = struct{}{}
		}
	}
	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

func (e *Engine) processDay(date time.Time) {
	e.settleExpiries(date)
	if e.exits.Active() {
		e.checkEarlyExits(date)
	}
	e.checkEntries(date)
	e.markToMarket(date)
}

// price is the close on date, else the latest close before it.
func (e *Engine) price(symbol string, date time.Time) (float64, bool) {
	return indicators.LastCloseOnOrBefore(e.prices[symbol], date)
}

func (e *Engine) settleExpiries(date time.Time) {
	for _, sym := range e.symbols {
		pos, ok := e.positions[sym]
		if !ok || date.Before(pos.ExpiryDate) {
			continue
		}

		spot, ok := e.price(sym, date)
		if !ok {
			spot = pos.StockEntryPrice
		}
		if spot >= pos.StrikePrice {
			e.closePosition(sym, date, pos.StrikePrice, 0, models.ReasonAssigned, models.CondAssigned)
		} else {
			e.closePosition(sym, date, spot, 0, models.ReasonExpiry, models.CondExpired)
		}
	}
}

type pendingClose struct {
	symbol string
	d      strategy.Decision
}

func (e *Engine) checkEarlyExits(date time.Time) {
	var adjusts, closes []pendingClose

	for _, sym := range e.symbols {
		pos, ok := e.positions[sym]
		if !ok {
			continue
		}
		spot, ok := e.price(sym, date)
		if !ok {
			continue
		}
		d, err := e.exits.Evaluate(pos, spot, date)
		if err != nil {
			e.logger.Printf("WARNING: %s exit check on %s: %v", sym, date.Format(time.DateOnly), err)
			continue
		}
		switch d.Kind {
		case strategy.Adjust:
			adjusts = append(adjusts, pendingClose{sym, d})
		case strategy.Close:
			closes = append(closes, pendingClose{sym, d})
		}
	}

	for _, a := range adjusts {
		e.adjustPosition(a.symbol, date, a.d)
	}
	for _, c := range closes {
		e.closePosition(c.symbol, date, c.d.Spot, c.d.OptionPrice, c.d.Reason, models.CondEarlyExit)
	}
}

func (e *Engine) adjustPosition(symbol string, date time.Time, d strategy.Decision) {
	pos := e.positions[symbol]
	plan, err := e.exits.RollUp(pos, d)
	if err != nil {
		e.logger.Printf("WARNING: %s roll-up on %s: %v", symbol, date.Format(time.DateOnly), err)
		return
	}
	if err := pos.RollUp(date, plan.NewStrike, plan.NewPremium, plan.NewDelta, plan.Buyback); err != nil {
		e.logger.Printf("WARNING: %s roll-up rejected: %v", symbol, err)
		return
	}

	lot := float64(pos.LotSize)
	e.cash -= plan.Buyback * lot
	e.cash += plan.NewPremium * lot

	e.logger.Printf("ADJUSTMENT %s: Rolled from %.0f to %.0f, Buyback: %.2f, New Premium: %.2f, Net Cost: %.2f",
		symbol, plan.OldStrike, plan.NewStrike, plan.Buyback, plan.NewPremium, plan.NetCost())
}

func (e *Engine) checkEntries(date time.Time) {
	if date.Day() > EntryWindowDays {
		return
	}

	for _, sym := range e.symbols {
		if _, holding := e.positions[sym]; holding {
			continue
		}
		spot, ok := e.price(sym, date)
		if !ok {
			continue
		}

		history := indicators.Window(e.prices[sym], date)
		if allowed, by := e.filters.Allow(history); !allowed {
			e.logger.Printf("%s entry on %s blocked by %s filter", sym, date.Format(time.DateOnly), by)
			continue
		}

		lot := e.lotSize(sym) * e.cfg.PositionSize
		if e.cash < spot*float64(lot) {
			continue
		}

		if err := e.openPosition(sym, date, spot, lot, history); err != nil {
			e.logger.Printf("WARNING: %s entry on %s: %v", sym, date.Format(time.DateOnly), err)
		}
	}
}

func (e *Engine) openPosition(symbol string, date time.Time, spot float64, lot int, history []indicators.Bar) error {
	expiry := strategy.NextMonthlyExpiry(date)
	dte := models.DaysBetween(date, expiry)
	if dte < MinDaysToExpiry {
		return nil
	}
	tte := pricing.TimeToExpiry(dte)

	var regime *volatility.Metrics
	var iv float64
	if e.selector.Method() == config.StrikeAdaptiveDelta {
		m := e.iv.Metrics(symbol, e.prices[symbol], date)
		e.ivHistory[symbol] = append(e.ivHistory[symbol], m)
		regime = &m
		iv = volatility.FloorIV(m.CurrentIV)
	} else {
		iv = volatility.EstimateIV(e.prices[symbol], date, e.cfg.DefaultIV)
	}

	strike := e.selector.Select(strategy.SelectionContext{
		Date:         date,
		Spot:         spot,
		Bars:         history,
		TimeToExpiry: tte,
		IV:           iv,
		Regime:       regime,
	})

	g, err := e.model.Greeks(spot, strike, tte, iv, pricing.Call)
	if err != nil {
		return fmt.Errorf("pricing call %.2f: %w", strike, err)
	}

	pos, err := models.OpenPosition(models.OpenParams{
		Symbol:     symbol,
		EntryDate:  date,
		ExpiryDate: expiry,
		Spot:       spot,
		Strike:     strike,
		Premium:    g.Price,
		Delta:      g.Delta,
		Theta:      g.Theta,
		IV:         iv,
		LotSize:    lot,
	})
	if err != nil {
		return err
	}
	e.positions[symbol] = pos

	e.cash -= spot * float64(lot)
	e.cash += g.Price * float64(lot)

	e.logger.Printf("Opened position: %s @ %.2f, Strike: %.2f, Premium: %.2f, Expiry: %s",
		symbol, spot, strike, g.Price, expiry.Format(time.DateOnly))
	return nil
}

func (e *Engine) closePosition(symbol string, date time.Time, stockExit, optionExit float64, reason, cond string) {
	pos := e.positions[symbol]
	trade, err := pos.Close(date, stockExit, optionExit, reason, cond)
	if err != nil {
		e.logger.Printf("WARNING: closing %s: %v", symbol, err)
		return
	}
	delete(e.positions, symbol)

	trade.StrikeMethod = string(e.cfg.StrikeMethod)
	trade.ExitStrategy = string(e.cfg.ExitStrategy)
	e.trades = append(e.trades, trade)

	lot := float64(pos.LotSize)
	if reason == models.ReasonAssigned {
		e.cash += pos.StrikePrice * lot
	} else {
		e.cash += stockExit * lot
		e.cash -= optionExit * lot
	}

	e.logger.Printf("Closed position: %s, Reason: %s, P&L: %.2f", symbol, reason, trade.TotalPnL)
}

// callValue marks a short call: Black-Scholes before expiry, intrinsic on or
// after it.
func (e *Engine) callValue(pos *models.Position, spot float64, date time.Time) float64 {
	dte := pos.DaysToExpiry(date)
	if dte <= 0 {
		return math.Max(0, spot-pos.StrikePrice)
	}
	v, err := e.model.Price(spot, pos.StrikePrice, float64(dte)/365.0, pos.IVAtEntry, pricing.Call)
	if err != nil {
		return math.Max(0, spot-pos.StrikePrice)
	}
	return v
}

func (e *Engine) closeAll(date time.Time) {
	for _, sym := range e.symbols {
		pos, ok := e.positions[sym]
		if !ok {
			continue
		}
		spot, ok := e.price(sym, date)
		if !ok {
			spot = pos.StockEntryPrice
		}
		e.closePosition(sym, date, spot, e.callValue(pos, spot, date), models.ReasonEndOfBacktest, models.CondEndOfRun)
	}
}

func (e *Engine) markToMarket(date time.Time) {
	value := e.cash
	for _, sym := range e.symbols {
		pos, ok := e.positions[sym]
		if !ok {
			continue
		}
		spot, ok := e.price(sym, date)
		if !ok {
			spot = pos.StockEntryPrice
		}
		value += pos.BookValue(spot, e.callValue(pos, spot, date))
	}
	e.equity = append(e.equity, models.EquityPoint{
		Date:           date,
		PortfolioValue: value,
		Cash:           e.cash,
		OpenPositions:  len(e.positions),
	})
}
