package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/covered_calls/internal/config"
	"github.com/eddiefleurent/covered_calls/internal/engine"
	"github.com/eddiefleurent/covered_calls/internal/indicators"
	"github.com/eddiefleurent/covered_calls/internal/models"
	"github.com/eddiefleurent/covered_calls/internal/storage"
	"github.com/eddiefleurent/covered_calls/internal/strategy"
)

const (
	// DefaultMinTrades drops candidates that traded too rarely to rank.
	DefaultMinTrades = 3
	defaultWorkers   = 4
	progressEvery    = 50
)

// CandidateConfig is the JSON echo of the parameters a candidate varied.
type CandidateConfig struct {
	ID                int                 `json:"id"`
	StrikeMethod      config.StrikeMethod `json:"strike_method"`
	ExitStrategy      config.ExitStrategy `json:"exit_strategy"`
	FilterSet         string              `json:"filter_set"`
	Filters           []string            `json:"filters"`
	ExitSet           string              `json:"exit_set"`
	ProfitTargetPct   float64             `json:"profit_target_pct"`
	StopLossMultiple  float64             `json:"stop_loss_multiple"`
	AllowSLAdjustment bool                `json:"allow_sl_adjustment"`
	DTEExit           bool                `json:"dte_exit"`
	DTEThreshold      int                 `json:"dte_threshold,omitempty"`
	TrailingStop      bool                `json:"trailing_stop"`
}

// Result is the ranked outcome of one candidate.
type Result struct {
	Rank                int             `json:"rank"`
	Name                string          `json:"name"`
	TotalReturnPct      float64         `json:"total_return_pct"`
	AnnualizedReturnPct float64         `json:"annualized_return_pct"`
	WinRate             float64         `json:"win_rate"`
	TotalTrades         int             `json:"total_trades"`
	MaxDrawdownPct      float64         `json:"max_drawdown_pct"`
	SharpeRatio         float64         `json:"sharpe_ratio"`
	ProfitFactor        float64         `json:"-"`
	AvgTradePnL         float64         `json:"avg_trade_pnl"`
	AvgHoldingDays      float64         `json:"avg_holding_days"`
	Score               float64         `json:"score"`
	Config              CandidateConfig `json:"config"`
	RunID               string          `json:"run_id,omitempty"`
}

type resultAlias Result

// MarshalJSON writes an infinite profit factor as null.
func (r Result) MarshalJSON() ([]byte, error) {
	out := struct {
		resultAlias
		ProfitFactor *float64 `json:"profit_factor"`
	}{resultAlias: resultAlias(r)}
	if !math.IsInf(r.ProfitFactor, 0) && !math.IsNaN(r.ProfitFactor) {
		pf := r.ProfitFactor
		out.ProfitFactor = &pf
	}
	return json.Marshal(out)
}

// Score is the composite ranking value: annualized return 30%, win rate 20%,
// scaled Sharpe 25%, drawdown 15% and a capped trade count bonus 10%.
func Score(annualized, winRate, sharpe, maxDrawdown float64, trades int) float64 {
	return annualized*0.30 +
		winRate*0.20 +
		sharpe*10*0.25 +
		(100-math.Abs(maxDrawdown))*0.15 +
		math.Min(float64(trades)/10, 10)*0.10
}

// Annualize compounds a total return over days using 365.25-day years.
func Annualize(totalPct float64, days int) float64 {
	if totalPct <= -100 {
		return -100
	}
	years := float64(days) / 365.25
	if years <= 0 {
		return 0
	}
	return (math.Pow(1+totalPct/100, 1/years) - 1) * 100
}

// AverageHoldingDays is the mean calendar days between entry and exit.
func AverageHoldingDays(trades []models.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	total := 0
	for _, t := range trades {
		total += models.DaysBetween(t.EntryDate, t.ExitDate)
	}
	return float64(total) / float64(len(trades))
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *log.Logger) Option {
	return func(o *Optimizer) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithWorkers bounds concurrent backtests.
func WithWorkers(n int) Option {
	return func(o *Optimizer) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithMinTrades sets the minimum trade count for a result to be ranked.
func WithMinTrades(n int) Option {
	return func(o *Optimizer) {
		if n >= 0 {
			o.minTrades = n
		}
	}
}

// WithLotSizes forwards a lot size lookup to every engine.
func WithLotSizes(fn func(string) int) Option {
	return func(o *Optimizer) { o.lotSize = fn }
}

// WithStorage records every ranked candidate as a completed run.
func WithStorage(s storage.Interface) Option {
	return func(o *Optimizer) { o.store = s }
}

// Optimizer backtests candidates in parallel over one shared price table.
type Optimizer struct {
	prices    map[string][]indicators.Bar
	logger    *log.Logger
	workers   int
	minTrades int
	lotSize   func(string) int
	store     storage.Interface
}

// NewOptimizer returns an optimizer over prices. The table is never written.
func NewOptimizer(prices map[string][]indicators.Bar, opts ...Option) *Optimizer {
	o := &Optimizer{
		prices:    prices,
		logger:    log.New(io.Discard, "", 0),
		workers:   defaultWorkers,
		minTrades: DefaultMinTrades,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run backtests every candidate and returns the qualifying results ranked by
// score, highest first. A failing candidate is logged and skipped; only
// cancellation aborts the sweep.
func (o *Optimizer) Run(ctx context.Context, cands []Candidate) ([]Result, error) {
	results := make([]*Result, len(cands))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, c := range cands {
		g.Go(func() error {
			res, err := o.runOne(gctx, c)
			if n := done.Add(1); n%progressEvery == 0 {
				o.logger.Printf("Progress: %d/%d (%.1f%%)", n, len(cands), 100*float64(n)/float64(len(cands)))
			}
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				o.logger.Printf("Error in config %d (%s): %v", c.ID, c.Name, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("sweep aborted: %w", err)
	}

	ranked := make([]Result, 0, len(cands))
	for _, r := range results {
		if r != nil {
			ranked = append(ranked, *r)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Config.ID < ranked[j].Config.ID
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	o.logger.Printf("Completed! %d valid strategies found out of %d", len(ranked), len(cands))
	return ranked, nil
}

func (o *Optimizer) runOne(ctx context.Context, c Candidate) (*Result, error) {
	opts := []engine.Option{}
	if o.lotSize != nil {
		opts = append(opts, engine.WithLotSizes(o.lotSize))
	}
	eng, err := engine.New(c.Config, o.prices, opts...)
	if err != nil {
		return nil, err
	}
	out, err := eng.Run(ctx)
	if err != nil {
		return nil, err
	}

	rep := out.Metrics
	if rep.TotalTrades < o.minTrades {
		return nil, nil
	}

	days := models.DaysBetween(c.Config.StartDate.Time, c.Config.EndDate.Time)
	annualized := Annualize(rep.TotalReturn, days)
	res := &Result{
		Name:                c.Name,
		TotalReturnPct:      rep.TotalReturn,
		AnnualizedReturnPct: annualized,
		WinRate:             rep.WinRate,
		TotalTrades:         rep.TotalTrades,
		MaxDrawdownPct:      rep.MaxDrawdown,
		SharpeRatio:         rep.SharpeRatio,
		ProfitFactor:        rep.ProfitFactor,
		AvgTradePnL:         rep.AverageTrade,
		AvgHoldingDays:      AverageHoldingDays(out.Trades),
		Score:               Score(annualized, rep.WinRate, rep.SharpeRatio, rep.MaxDrawdown, rep.TotalTrades),
		Config:              describe(c),
	}

	if o.store != nil {
		run, err := storage.Record(o.store, storage.Outcome{
			Name:        c.Name,
			Config:      out.Config,
			Trades:      out.Trades,
			EquityCurve: out.EquityCurve,
			Metrics:     rep,
			FinalCash:   out.FinalCash,
		})
		if err != nil {
			o.logger.Printf("WARNING: failed to store %s: %v", c.Name, err)
		} else {
			res.RunID = run.ID
		}
	}
	return res, nil
}

func describe(c Candidate) CandidateConfig {
	cfg := c.Config
	cc := CandidateConfig{
		ID:                c.ID,
		StrikeMethod:      cfg.StrikeMethod,
		ExitStrategy:      cfg.ExitStrategy,
		FilterSet:         c.FilterSet,
		Filters:           strategy.BuildFilterChain(cfg.Filters).Names(),
		ExitSet:           c.ExitSet,
		ProfitTargetPct:   cfg.Exit.ProfitTargetPct,
		StopLossMultiple:  cfg.Exit.StopLossMultiple,
		AllowSLAdjustment: cfg.Exit.AllowSLAdjustment,
		DTEExit:           cfg.Exit.DTE.Enabled,
		TrailingStop:      cfg.Exit.TrailingStop.Enabled,
	}
	if cc.DTEExit {
		cc.DTEThreshold = cfg.Exit.DTE.Threshold
	}
	return cc
}
