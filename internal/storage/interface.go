package storage

import (
	"time"

	"github.com/eddiefleurent/covered_calls/internal/config"
	"github.com/eddiefleurent/covered_calls/internal/metrics"
	"github.com/eddiefleurent/covered_calls/internal/models"
)

// RunStatus is the lifecycle state of a stored backtest run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is the summary record of one backtest.
type Run struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Status      RunStatus       `json:"status"`
	Config      config.Summary  `json:"config"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Metrics     *metrics.Report `json:"metrics,omitempty"`
	FinalCash   float64         `json:"final_cash"`
	TradeCount  int             `json:"trade_count"`
	Error       string          `json:"error,omitempty"`
}

// Interface defines the contract for backtest result persistence.
//
// Implementations must be safe for concurrent use - a parameter sweep may
// record runs from several goroutines at once.
type Interface interface {
	// Run lifecycle
	CreateRun(name string, cfg config.Summary) (*Run, error)
	CompleteRun(id string, report metrics.Report, finalCash float64) error
	FailRun(id string, runErr error) error

	// Run queries
	GetRun(id string) (*Run, error)
	RecentRuns(limit int) ([]Run, error)
	DeleteRun(id string) error

	// Batches
	AddTrades(id string, trades []models.Trade) error
	GetTrades(id string) ([]models.Trade, error)
	AddEquityPoints(id string, points []models.EquityPoint) error
	GetEquityCurve(id string) ([]models.EquityPoint, error)
}

// NewStorage creates a JSON file store at path, or an in-memory store when
// path is empty.
func NewStorage(path string) (Interface, error) {
	if path == "" {
		return NewMemoryStorage(), nil
	}
	return NewJSONStorage(path)
}

var (
	_ Interface = (*JSONStorage)(nil)
	_ Interface = (*MemoryStorage)(nil)
)
