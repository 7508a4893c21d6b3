package storage

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/covered_calls/internal/models"
)

var tradeColumns = []string{
	"position_id", "symbol", "lot_size", "entry_date", "expiry_date", "exit_date",
	"stock_entry_price", "strike_price", "premium_received", "stock_exit_price",
	"option_exit_price", "exit_reason", "stock_pnl", "option_pnl", "total_pnl",
	"return_pct", "delta_at_entry", "iv_at_entry", "dte_at_entry", "strike_method",
	"exit_strategy", "adjusted", "adjustment_cost",
}

var equityColumns = []string{"date", "portfolio_value", "cash", "open_positions"}

func fixed(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}

func money(v float64) string { return fixed(v, 2) }

func ratio(v float64) string { return fixed(v, 4) }

// ExportTradesCSV writes one row per trade. Prices and P&L are rounded to
// two decimals half away from zero.
func ExportTradesCSV(w io.Writer, trades []models.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeColumns); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			t.PositionID,
			t.Symbol,
			strconv.Itoa(t.LotSize),
			t.EntryDate.Format(time.DateOnly),
			t.ExpiryDate.Format(time.DateOnly),
			t.ExitDate.Format(time.DateOnly),
			money(t.StockEntryPrice),
			money(t.StrikePrice),
			money(t.PremiumReceived),
			money(t.StockExitPrice),
			money(t.OptionExitPrice),
			t.ExitReason,
			money(t.StockPnL),
			money(t.OptionPnL),
			money(t.TotalPnL),
			money(t.ReturnPct),
			ratio(t.DeltaAtEntry),
			ratio(t.IVAtEntry),
			strconv.Itoa(t.DTEAtEntry),
			t.StrikeMethod,
			t.ExitStrategy,
			strconv.FormatBool(t.Adjusted),
			money(t.AdjustmentCost),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportEquityCSV writes the equity curve.
func ExportEquityCSV(w io.Writer, points []models.EquityPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(equityColumns); err != nil {
		return err
	}
	for _, p := range points {
		row := []string{
			p.Date.Format(time.DateOnly),
			money(p.PortfolioValue),
			money(p.Cash),
			strconv.Itoa(p.OpenPositions),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
