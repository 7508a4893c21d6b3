package storage

import (
	"fmt"

	"github.com/eddiefleurent/covered_calls/internal/config"
	"github.com/eddiefleurent/covered_calls/internal/metrics"
	"github.com/eddiefleurent/covered_calls/internal/models"
)

// Outcome is a finished backtest ready to be stored.
type Outcome struct {
	Name        string
	Config      config.Summary
	Trades      []models.Trade
	EquityCurve []models.EquityPoint
	Metrics     metrics.Report
	FinalCash   float64
}

// Record stores a finished backtest as a completed run. If a batch cannot be
// written the run is marked failed and the error returned.
func Record(s Interface, o Outcome) (*Run, error) {
	run, err := s.CreateRun(o.Name, o.Config)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*Run, error) {
		if ferr := s.FailRun(run.ID, err); ferr != nil {
			return nil, fmt.Errorf("%w (marking run failed: %v)", err, ferr)
		}
		return nil, err
	}

	if err := s.AddTrades(run.ID, o.Trades); err != nil {
		return fail(fmt.Errorf("failed to store trades: %w", err))
	}
	if err := s.AddEquityPoints(run.ID, o.EquityCurve); err != nil {
		return fail(fmt.Errorf("failed to store equity curve: %w", err))
	}
	if err := s.CompleteRun(run.ID, o.Metrics, o.FinalCash); err != nil {
		return nil, fmt.Errorf("failed to complete run: %w", err)
	}
	return s.GetRun(run.ID)
}
