package sweep

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eddiefleurent/covered_calls/internal/config"
)

// Metadata describes a sweep in the saved report.
type Metadata struct {
	Symbols               []string  `json:"symbols"`
	StartDate             string    `json:"start_date"`
	EndDate               string    `json:"end_date"`
	InitialCapital        float64   `json:"initial_capital"`
	CandidatesRun         int       `json:"candidates_run"`
	TotalStrategiesTested int       `json:"total_strategies_tested"`
	GeneratedAt           time.Time `json:"generated_at"`
}

// Report is the saved sweep output.
type Report struct {
	Metadata      Metadata `json:"metadata"`
	TopStrategies []Result `json:"top_strategies"`
}

// NewReport keeps the first topN ranked results. topN <= 0 keeps all.
func NewReport(base config.RunConfig, candidates int, ranked []Result, topN int, now time.Time) Report {
	top := ranked
	if topN > 0 && len(top) > topN {
		top = top[:topN]
	}
	return Report{
		Metadata: Metadata{
			Symbols:               append([]string(nil), base.Symbols...),
			StartDate:             base.StartDate.String(),
			EndDate:               base.EndDate.String(),
			InitialCapital:        base.InitialCapital,
			CandidatesRun:         candidates,
			TotalStrategiesTested: len(ranked),
			GeneratedAt:           now,
		},
		TopStrategies: top,
	}
}

// SaveJSON writes the report to path atomically.
func (r Report) SaveJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sweep report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Print writes a human-readable ranking of the first n results.
func Print(w io.Writer, ranked []Result, n int) {
	if n <= 0 || n > len(ranked) {
		n = len(ranked)
	}
	rule := strings.Repeat("=", 80)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "TOP %d COVERED CALL STRATEGIES\n", n)
	fmt.Fprintln(w, rule)

	for _, r := range ranked[:n] {
		fmt.Fprintf(w, "\n#%d - %s\n", r.Rank, r.Name)
		fmt.Fprintf(w, "  Total Return:      %8.2f%%\n", r.TotalReturnPct)
		fmt.Fprintf(w, "  Annualized Return: %8.2f%%\n", r.AnnualizedReturnPct)
		fmt.Fprintf(w, "  Win Rate:          %8.1f%%\n", r.WinRate)
		fmt.Fprintf(w, "  Total Trades:      %8d\n", r.TotalTrades)
		fmt.Fprintf(w, "  Max Drawdown:      %8.2f%%\n", r.MaxDrawdownPct)
		fmt.Fprintf(w, "  Sharpe Ratio:      %8.2f\n", r.SharpeRatio)
		fmt.Fprintf(w, "  Profit Factor:     %8.2f\n", r.ProfitFactor)
		fmt.Fprintf(w, "  Avg Trade P&L:     %8.0f\n", r.AvgTradePnL)
		fmt.Fprintf(w, "  Avg Holding Days:  %8.1f\n", r.AvgHoldingDays)
		fmt.Fprintf(w, "  COMPOSITE SCORE:   %8.2f\n", r.Score)

		filters := "None"
		if len(r.Config.Filters) > 0 {
			filters = strings.Join(r.Config.Filters, ", ")
		}
		fmt.Fprintf(w, "  Entry Filters: %s | Exit: %s (%s)\n", filters, r.Config.ExitStrategy, r.Config.ExitSet)
	}
}
