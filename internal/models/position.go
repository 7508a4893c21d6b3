package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Exit reasons that are not parameterized by a rule threshold.
const (
	ReasonAssigned      = "ASSIGNED"
	ReasonExpiry        = "EXPIRY"
	ReasonEndOfBacktest = "END_OF_BACKTEST"
)

// positionNamespace scopes position IDs so that the same symbol and entry date
// always produce the same ID.
var positionNamespace = uuid.MustParse("6f1d3c52-8a0e-4b8e-9d3c-2f5b7c1e4a90")

// PositionID derives the stable ID of the position opened on symbol at entry.
func PositionID(symbol string, entry time.Time) string {
	return uuid.NewSHA1(positionNamespace, []byte(symbol+"|"+entry.Format("2006-01-02"))).String()
}

// Position is an open covered call: LotSize shares long and LotSize calls short.
type Position struct {
	StateMachine *StateMachine `json:"-"` // Runtime only, excluded from JSON
	State        PositionState `json:"state"`
	Adjustments  []Adjustment  `json:"adjustments"`

	ID              string    `json:"id"`
	Symbol          string    `json:"symbol"`
	EntryDate       time.Time `json:"entry_date"`
	ExpiryDate      time.Time `json:"expiry_date"`
	StockEntryPrice float64   `json:"stock_entry_price"`
	StrikePrice     float64   `json:"strike_price"`
	PremiumReceived float64   `json:"premium_received"` // per share, current call
	DeltaAtEntry    float64   `json:"delta_at_entry"`
	ThetaAtEntry    float64   `json:"theta_at_entry"`
	IVAtEntry       float64   `json:"iv_at_entry"`
	LotSize         int       `json:"lot_size"` // shares, lots x position size
	DTEAtEntry      int       `json:"dte_at_entry"`

	Adjusted        bool      `json:"adjusted"`
	OriginalPremium float64   `json:"original_premium"`
	AdjustmentDate  time.Time `json:"adjustment_date,omitempty"`
	AdjustmentCost  float64   `json:"adjustment_cost"` // per share buyback of the first call

	ProfitHighWaterMark float64 `json:"profit_high_water_mark"` // % of premium
	TrailingStopActive  bool    `json:"trailing_stop_active"`
}

// AdjustmentType defines the type of adjustment made to a position.
type AdjustmentType string

const (
	// AdjustmentRollUp buys back the call and sells a higher strike, same expiry.
	AdjustmentRollUp AdjustmentType = "roll_up"
)

// Valid returns true if the AdjustmentType is one of the defined constants
func (t AdjustmentType) Valid() bool {
	return t == AdjustmentRollUp
}

// Adjustment represents a modification made to an existing position.
type Adjustment struct {
	Date        time.Time      `json:"date"`
	Type        AdjustmentType `json:"type"`
	Description string         `json:"description"`
	OldStrike   float64        `json:"old_strike"`
	NewStrike   float64        `json:"new_strike"`
	Buyback     float64        `json:"buyback"`
	NewPremium  float64        `json:"new_premium"`
}

// NetCost is the per-share debit of the roll (negative when it was a credit).
func (a Adjustment) NetCost() float64 {
	return a.Buyback - a.NewPremium
}

// OpenParams describes a new covered call.
type OpenParams struct {
	Symbol     string
	EntryDate  time.Time
	ExpiryDate time.Time
	Spot       float64
	Strike     float64
	Premium    float64
	Delta      float64
	Theta      float64
	IV         float64
	LotSize    int
}

// OpenPosition builds a position from p and moves it to StateOpen.
func OpenPosition(p OpenParams) (*Position, error) {
	pos := &Position{
		ID:              PositionID(p.Symbol, p.EntryDate),
		Symbol:          p.Symbol,
		EntryDate:       p.EntryDate,
		ExpiryDate:      p.ExpiryDate,
		StockEntryPrice: p.Spot,
		StrikePrice:     p.Strike,
		PremiumReceived: p.Premium,
		DeltaAtEntry:    p.Delta,
		ThetaAtEntry:    p.Theta,
		IVAtEntry:       p.IV,
		LotSize:         p.LotSize,
		DTEAtEntry:      DaysBetween(p.EntryDate, p.ExpiryDate),
		Adjustments:     make([]Adjustment, 0),
		StateMachine:    NewStateMachine(),
		State:           StateNone,
	}
	if err := pos.TransitionState(StateOpen, CondEntry, p.EntryDate); err != nil {
		return nil, err
	}
	if err := pos.ValidateState(); err != nil {
		return nil, err
	}
	return pos, nil
}

// DaysBetween returns whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	a = a.UTC().Truncate(24 * time.Hour)
	b = b.UTC().Truncate(24 * time.Hour)
	return int(b.Sub(a).Hours() / 24)
}

// DaysToExpiry returns the calendar days from date to expiry; negative once past.
func (p *Position) DaysToExpiry(date time.Time) int {
	return DaysBetween(date, p.ExpiryDate)
}

// ProfitPercent returns the share of the current premium captured given the
// call is now worth optionPrice. Zero premium reports 0.
func (p *Position) ProfitPercent(optionPrice float64) float64 {
	if p.PremiumReceived <= 0 {
		return 0
	}
	return (p.PremiumReceived - optionPrice) / p.PremiumReceived * 100
}

// BookValue is stock value less the cost of buying back the call.
func (p *Position) BookValue(spot, optionPrice float64) float64 {
	lot := float64(p.LotSize)
	return spot*lot - optionPrice*lot
}

// ensureMachine ensures the StateMachine is initialized from persisted state
func (p *Position) ensureMachine() *StateMachine {
	if p.StateMachine == nil {
		p.StateMachine = NewStateMachineFromState(p.State, p.Adjusted)
	}
	return p.StateMachine
}

// TransitionState moves the position to a new state
func (p *Position) TransitionState(to PositionState, condition string, at time.Time) error {
	if err := p.ensureMachine().Transition(to, condition, at); err != nil {
		return fmt.Errorf("position %s state transition failed: %w", p.ID, err)
	}
	p.State = to
	return nil
}

// CanAdjust returns true if the position can still be rolled up.
func (p *Position) CanAdjust() bool {
	return p.ensureMachine().CanAdjust()
}

// IsOpen reports whether the position is still held.
func (p *Position) IsOpen() bool {
	return p.ensureMachine().IsOpen()
}

// RollUp records the buyback of the current call at buyback and the sale of
// newStrike at newPremium. Only one roll is allowed per position.
func (p *Position) RollUp(date time.Time, newStrike, newPremium, newDelta, buyback float64) error {
	if err := p.TransitionState(StateOpenAdjusted, CondRollUp, date); err != nil {
		return err
	}
	if p.OriginalPremium == 0 {
		p.OriginalPremium = p.PremiumReceived
	}
	p.Adjustments = append(p.Adjustments, Adjustment{
		Date:        date,
		Type:        AdjustmentRollUp,
		Description: fmt.Sprintf("Rolled from %.0f to %.0f", p.StrikePrice, newStrike),
		OldStrike:   p.StrikePrice,
		NewStrike:   newStrike,
		Buyback:     buyback,
		NewPremium:  newPremium,
	})
	p.AdjustmentDate = date
	p.AdjustmentCost = buyback
	p.StrikePrice = newStrike
	p.PremiumReceived = newPremium
	p.DeltaAtEntry = newDelta
	p.Adjusted = true
	return nil
}

// Close ends the position and returns the completed trade. Option P&L is
// measured against the premium of the call being closed.
func (p *Position) Close(exitDate time.Time, stockExit, optionExit float64, reason, condition string) (Trade, error) {
	if err := p.TransitionState(StateClosed, condition, exitDate); err != nil {
		return Trade{}, err
	}

	lot := float64(p.LotSize)
	stockPnL := (stockExit - p.StockEntryPrice) * lot
	optionPnL := (p.PremiumReceived - optionExit) * lot
	total := stockPnL + optionPnL

	returnPct := 0.0
	if invested := p.StockEntryPrice * lot; invested > 0 {
		returnPct = total / invested * 100
	}

	return Trade{
		PositionID:      p.ID,
		Symbol:          p.Symbol,
		LotSize:         p.LotSize,
		EntryDate:       p.EntryDate,
		StockEntryPrice: p.StockEntryPrice,
		StrikePrice:     p.StrikePrice,
		PremiumReceived: p.PremiumReceived,
		ExpiryDate:      p.ExpiryDate,
		ExitDate:        exitDate,
		StockExitPrice:  stockExit,
		OptionExitPrice: optionExit,
		ExitReason:      reason,
		StockPnL:        stockPnL,
		OptionPnL:       optionPnL,
		TotalPnL:        total,
		ReturnPct:       returnPct,
		DeltaAtEntry:    p.DeltaAtEntry,
		ThetaAtEntry:    p.ThetaAtEntry,
		IVAtEntry:       p.IVAtEntry,
		DTEAtEntry:      p.DTEAtEntry,
		Adjusted:        p.Adjusted,
		OriginalPremium: p.OriginalPremium,
		AdjustmentDate:  p.AdjustmentDate,
		AdjustmentCost:  p.AdjustmentCost,
	}, nil
}

// ValidateState ensures the position data is consistent with its state
func (p *Position) ValidateState() error {
	if strings.TrimSpace(p.Symbol) == "" {
		return fmt.Errorf("position %s: symbol is required", p.ID)
	}
	if p.PremiumReceived < 0 {
		return fmt.Errorf("position %s in state %s: PremiumReceived cannot be negative (current: %.2f)",
			p.ID, p.State, p.PremiumReceived)
	}

	switch p.State {
	case StateOpen, StateOpenAdjusted, StateClosed:
		if p.EntryDate.IsZero() {
			return fmt.Errorf("position %s in state %s: EntryDate must be set", p.ID, p.State)
		}
		if p.ExpiryDate.Before(p.EntryDate) {
			return fmt.Errorf("position %s in state %s: ExpiryDate (%s) must not be before EntryDate (%s)",
				p.ID, p.State, p.ExpiryDate.Format("2006-01-02"), p.EntryDate.Format("2006-01-02"))
		}
		if p.LotSize <= 0 {
			return fmt.Errorf("position %s in state %s: LotSize must be > 0 (current: %d)",
				p.ID, p.State, p.LotSize)
		}
		if p.StockEntryPrice <= 0 || p.StrikePrice <= 0 {
			return fmt.Errorf("position %s in state %s: entry price and strike must be positive", p.ID, p.State)
		}
	}

	if p.State == StateOpenAdjusted && !p.Adjusted {
		return fmt.Errorf("position %s in state %s: Adjusted flag must be set", p.ID, p.State)
	}
	if len(p.Adjustments) > 1 {
		return fmt.Errorf("position %s: %d adjustments recorded, at most one allowed", p.ID, len(p.Adjustments))
	}
	return nil
}

// GetStateDescription returns a human-readable state description
func (p *Position) GetStateDescription() string {
	return p.ensureMachine().GetStateDescription()
}

// NewStateMachineFromState rebuilds a machine for a persisted position.
func NewStateMachineFromState(state PositionState, adjusted bool) *StateMachine {
	sm := NewStateMachine()
	if state == "" {
		state = StateNone
	}
	sm.currentState = state
	sm.previousState = StateNone
	if adjusted || state == StateOpenAdjusted {
		sm.transitionCount[StateOpenAdjusted] = 1
	}
	return sm
}

// Trade is a completed covered call.
type Trade struct {
	PositionID      string    `json:"position_id"`
	Symbol          string    `json:"symbol"`
	LotSize         int       `json:"lot_size"`
	EntryDate       time.Time `json:"entry_date"`
	StockEntryPrice float64   `json:"stock_entry_price"`
	StrikePrice     float64   `json:"strike_price"`
	PremiumReceived float64   `json:"premium_received"`
	ExpiryDate      time.Time `json:"expiry_date"`
	ExitDate        time.Time `json:"exit_date"`
	StockExitPrice  float64   `json:"stock_exit_price"`
	OptionExitPrice float64   `json:"option_exit_price"`
	ExitReason      string    `json:"exit_reason"`
	StockPnL        float64   `json:"stock_pnl"`
	OptionPnL       float64   `json:"option_pnl"`
	TotalPnL        float64   `json:"total_pnl"`
	ReturnPct       float64   `json:"return_pct"`
	DeltaAtEntry    float64   `json:"delta_at_entry"`
	ThetaAtEntry    float64   `json:"theta_at_entry"`
	IVAtEntry       float64   `json:"iv_at_entry"`
	DTEAtEntry      int       `json:"dte_at_entry"`
	StrikeMethod    string    `json:"strike_method"`
	ExitStrategy    string    `json:"exit_strategy"`
	Adjusted        bool      `json:"adjusted"`
	OriginalPremium float64   `json:"original_premium,omitempty"`
	AdjustmentDate  time.Time `json:"adjustment_date,omitempty"`
	AdjustmentCost  float64   `json:"adjustment_cost,omitempty"`
}

// Assigned reports whether the stock was called away.
func (t Trade) Assigned() bool {
	return t.ExitReason == ReasonAssigned
}

// Validate checks the temporal ordering of a trade.
func (t Trade) Validate() error {
	if t.ExitDate.Before(t.EntryDate) {
		return fmt.Errorf("trade %s %s: exit %s before entry %s", t.Symbol, t.PositionID,
			t.ExitDate.Format("2006-01-02"), t.EntryDate.Format("2006-01-02"))
	}
	if t.ExpiryDate.Before(t.EntryDate) {
		return fmt.Errorf("trade %s %s: expiry %s before entry %s", t.Symbol, t.PositionID,
			t.ExpiryDate.Format("2006-01-02"), t.EntryDate.Format("2006-01-02"))
	}
	return nil
}

// EquityPoint is the marked-to-market portfolio on one trading date.
type EquityPoint struct {
	Date           time.Time `json:"date"`
	PortfolioValue float64   `json:"portfolio_value"`
	Cash           float64   `json:"cash"`
	OpenPositions  int       `json:"open_positions"`
}
