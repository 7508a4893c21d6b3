package strategy

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/eddiefleurent/covered_calls/internal/config"
	"github.com/eddiefleurent/covered_calls/internal/models"
	"github.com/eddiefleurent/covered_calls/internal/pricing"
	"github.com/eddiefleurent/covered_calls/internal/util"
)

// DecisionKind is the outcome of evaluating an open position.
type DecisionKind int

const (
	Hold DecisionKind = iota
	Close
	Adjust
)

func (k DecisionKind) String() string {
	switch k {
	case Close:
		return "close"
	case Adjust:
		return "adjust"
	default:
		return "hold"
	}
}

// Decision carries what the exit policy saw and what it wants done.
type Decision struct {
	Kind         DecisionKind
	Reason       string  // exit reason tag for Close
	Spot         float64 // stock exit price for Close
	OptionPrice  float64 // buyback price of the current call
	PremiumLost  float64 // per share, for Adjust
	TimeToExpiry float64 // years, for Adjust
	IV           float64 // for Adjust
}

// ExitPolicy applies the configured early exit rules in precedence order:
// DTE exit, trailing stop, profit target, stop loss (or roll-up).
type ExitPolicy struct {
	model    pricing.Model
	strategy config.ExitStrategy
	cfg      config.ExitConfig
}

// NewExitPolicy builds the policy for a run.
func NewExitPolicy(cfg config.RunConfig) *ExitPolicy {
	return &ExitPolicy{
		model:    pricing.NewModel(cfg.RiskFreeRate),
		strategy: cfg.ExitStrategy,
		cfg:      cfg.Exit,
	}
}

// Active reports whether early exits need evaluating at all.
func (e *ExitPolicy) Active() bool {
	return e.strategy != config.ExitHoldToExpiry || e.cfg.AdvancedExitsEnabled()
}

// Evaluate prices the position's call at spot on date and decides. It updates
// the trailing stop high-water mark on pos. Positions at or past expiry hold;
// expiry is settled separately.
func (e *ExitPolicy) Evaluate(pos *models.Position, spot float64, date time.Time) (Decision, error) {
	dte := pos.DaysToExpiry(date)
	if dte <= 0 {
		return Decision{Kind: Hold}, nil
	}

	iv := pos.IVAtEntry
	tte := float64(dte) / 365.0
	optionPrice, err := e.model.Price(spot, pos.StrikePrice, tte, iv, pricing.Call)
	if err != nil {
		return Decision{}, fmt.Errorf("pricing %s call %.2f: %w", pos.Symbol, pos.StrikePrice, err)
	}

	optionPnL := pos.PremiumReceived - optionPrice
	maxProfit := pos.PremiumReceived
	profitPct := 0.0
	if maxProfit > 0 {
		profitPct = optionPnL / maxProfit * 100
	}

	closeWith := func(reason string) (Decision, error) {
		return Decision{Kind: Close, Reason: reason, Spot: spot, OptionPrice: optionPrice}, nil
	}

	if e.cfg.DTE.Enabled && dte <= e.cfg.DTE.Threshold {
		return closeWith(DTEExitReason(dte))
	}

	if e.cfg.TrailingStop.Enabled {
		if profitPct > pos.ProfitHighWaterMark {
			pos.ProfitHighWaterMark = profitPct
		}
		if !pos.TrailingStopActive && profitPct >= e.cfg.TrailingStop.ActivationPct {
			pos.TrailingStopActive = true
		}
		if pos.TrailingStopActive && pos.ProfitHighWaterMark-profitPct >= e.cfg.TrailingStop.DistancePct {
			return closeWith(TrailingStopReason(pos.ProfitHighWaterMark))
		}
	}

	if e.strategy.UsesProfitTarget() && optionPnL >= maxProfit*(e.cfg.ProfitTargetPct/100.0) {
		return closeWith(ProfitTargetReason(e.cfg.ProfitTargetPct))
	}

	if e.strategy.UsesStopLoss() && optionPnL <= -e.cfg.StopLossMultiple*pos.PremiumReceived {
		if e.cfg.AllowSLAdjustment && !pos.Adjusted {
			lost := optionPnL
			if lost < 0 {
				lost = -lost
			}
			return Decision{
				Kind:         Adjust,
				Spot:         spot,
				OptionPrice:  optionPrice,
				PremiumLost:  lost,
				TimeToExpiry: tte,
				IV:           iv,
			}, nil
		}
		return closeWith(StopLossReason(e.cfg.StopLossMultiple, pos.Adjusted))
	}

	return Decision{Kind: Hold}, nil
}

// RollPlan is the replacement call chosen by RollUp.
type RollPlan struct {
	OldStrike  float64
	NewStrike  float64
	NewPremium float64
	NewDelta   float64
	Buyback    float64
}

// NetCost is the per-share debit of the roll.
func (r RollPlan) NetCost() float64 {
	return r.Buyback - r.NewPremium
}

// RollUp picks the smallest ladder strike at least premiumLost above the
// current strike, or the top of the ladder when none is, and prices it with
// the decision's time to expiry and IV.
func (e *ExitPolicy) RollUp(pos *models.Position, d Decision) (RollPlan, error) {
	ladder := util.StrikeLadder(d.Spot)
	minStrike := pos.StrikePrice + (d.PremiumLost/d.Spot)*d.Spot

	newStrike := 0.0
	found := false
	top := ladder[0]
	for _, k := range ladder {
		if k > top {
			top = k
		}
		if k >= minStrike && (!found || k < newStrike) {
			newStrike = k
			found = true
		}
	}
	if !found {
		newStrike = top
	}

	g, err := e.model.Greeks(d.Spot, newStrike, d.TimeToExpiry, d.IV, pricing.Call)
	if err != nil {
		return RollPlan{}, fmt.Errorf("pricing roll for %s: %w", pos.Symbol, err)
	}
	return RollPlan{
		OldStrike:  pos.StrikePrice,
		NewStrike:  newStrike,
		NewPremium: g.Price,
		NewDelta:   g.Delta,
		Buyback:    d.OptionPrice,
	}, nil
}

// DTEExitReason formats the DTE exit tag, e.g. DTE_EXIT_5D.
func DTEExitReason(dte int) string {
	return fmt.Sprintf("DTE_EXIT_%dD", dte)
}

// TrailingStopReason formats the trailing stop tag with the truncated
// high-water mark, e.g. TRAILING_STOP_62PCT_HWM.
func TrailingStopReason(hwm float64) string {
	return fmt.Sprintf("TRAILING_STOP_%dPCT_HWM", int(hwm))
}

// ProfitTargetReason formats the profit target tag, e.g. PROFIT_TARGET_50PCT.
func ProfitTargetReason(pct float64) string {
	return fmt.Sprintf("PROFIT_TARGET_%dPCT", int(pct))
}

// StopLossReason formats the stop loss tag with the multiple written with at
// least one decimal, e.g. STOP_LOSS_2.0X or STOP_LOSS_1.5X_AFTER_ADJ.
func StopLossReason(multiple float64, adjusted bool) string {
	m := strconv.FormatFloat(multiple, 'f', -1, 64)
	if !strings.Contains(m, ".") {
		m += ".0"
	}
	reason := "STOP_LOSS_" + m + "X"
	if adjusted {
		reason += "_AFTER_ADJ"
	}
	return reason
}
