package storage

import (
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/covered_calls/internal/config"
	"github.com/eddiefleurent/covered_calls/internal/metrics"
	"github.com/eddiefleurent/covered_calls/internal/models"
)

func date(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleTrade(id string, pnl float64) models.Trade {
	return models.Trade{
		PositionID:      id,
		Symbol:          "RELIANCE",
		LotSize:         250,
		EntryDate:       date(3, 1),
		StockEntryPrice: 2500,
		StrikePrice:     2550,
		PremiumReceived: 31.456,
		ExpiryDate:      date(3, 28),
		ExitDate:        date(3, 28),
		StockExitPrice:  2510,
		ExitReason:      models.ReasonExpiry,
		TotalPnL:        pnl,
		ReturnPct:       pnl / (2500 * 250) * 100,
		DeltaAtEntry:    0.30123,
		IVAtEntry:       0.2,
		DTEAtEntry:      27,
		StrikeMethod:    "DELTA_30",
		ExitStrategy:    "HOLD_TO_EXPIRY",
	}
}

func sampleSummary() config.Summary {
	return config.Summary{
		Symbols:        []string{"RELIANCE"},
		StartDate:      "2024-01-01",
		EndDate:        "2024-06-30",
		StrikeMethod:   "DELTA_30",
		ExitStrategy:   "HOLD_TO_EXPIRY",
		InitialCapital: 1_000_000,
	}
}

// TestInterface runs the shared contract against every implementation.
func TestInterface(t *testing.T) {
	t.Run("MemoryStorage", func(t *testing.T) {
		testInterface(t, NewMemoryStorage())
	})

	t.Run("JSONStorage", func(t *testing.T) {
		s, err := NewJSONStorage(filepath.Join(t.TempDir(), "runs.json"))
		require.NoError(t, err)
		testInterface(t, s)
	})
}

func testInterface(t *testing.T, s Interface) {
	runs, err := s.RecentRuns(10)
	require.NoError(t, err)
	assert.Empty(t, runs, "expected no runs initially")

	run, err := s.CreateRun("delta30", sampleSummary())
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, RunRunning, run.Status)
	assert.Nil(t, run.CompletedAt)

	require.NoError(t, s.AddTrades(run.ID, []models.Trade{sampleTrade("p1", 5000)}))
	require.NoError(t, s.AddTrades(run.ID, []models.Trade{sampleTrade("p2", -1200)}))
	require.NoError(t, s.AddEquityPoints(run.ID, []models.EquityPoint{
		{Date: date(3, 1), PortfolioValue: 1_000_000, Cash: 382_000, OpenPositions: 1},
		{Date: date(3, 4), PortfolioValue: 1_003_000, Cash: 382_000, OpenPositions: 1},
	}))

	bad := sampleTrade("p3", 0)
	bad.ExitDate = date(2, 1)
	assert.Error(t, s.AddTrades(run.ID, []models.Trade{bad}), "exit before entry must be rejected")

	report := metrics.Report{TotalReturn: 0.38, TotalTrades: 2, ProfitFactor: math.Inf(1)}
	require.NoError(t, s.CompleteRun(run.ID, report, 1_003_800))

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, got.Status)
	assert.Equal(t, 2, got.TradeCount)
	assert.Equal(t, 1_003_800.0, got.FinalCash)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.Metrics)
	assert.Equal(t, 0.38, got.Metrics.TotalReturn)
	assert.True(t, math.IsInf(got.Metrics.ProfitFactor, 1))
	assert.Equal(t, sampleSummary(), got.Config)

	trades, err := s.GetTrades(run.ID)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "p1", trades[0].PositionID)
	trades[0].PositionID = "mutated"
	again, _ := s.GetTrades(run.ID)
	assert.Equal(t, "p1", again[0].PositionID, "GetTrades must return a copy")

	curve, err := s.GetEquityCurve(run.ID)
	require.NoError(t, err)
	assert.Len(t, curve, 2)

	// finished runs are read-only
	assert.ErrorIs(t, s.AddTrades(run.ID, nil), ErrRunFinished)
	assert.ErrorIs(t, s.AddEquityPoints(run.ID, nil), ErrRunFinished)
	assert.ErrorIs(t, s.CompleteRun(run.ID, report, 0), ErrRunFinished)
	assert.ErrorIs(t, s.FailRun(run.ID, errors.New("late")), ErrRunFinished)

	failed, err := s.CreateRun("broken", sampleSummary())
	require.NoError(t, err)
	require.NoError(t, s.FailRun(failed.ID, errors.New("no price data")))
	got, err = s.GetRun(failed.ID)
	require.NoError(t, err)
	assert.Equal(t, RunFailed, got.Status)
	assert.Equal(t, "no price data", got.Error)
	assert.Nil(t, got.Metrics)

	runs, err = s.RecentRuns(0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	runs, err = s.RecentRuns(1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	require.NoError(t, s.DeleteRun(run.ID))
	_, err = s.GetRun(run.ID)
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = s.GetTrades(run.ID)
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = s.GetEquityCurve(run.ID)
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, s.DeleteRun(run.ID), ErrRunNotFound)
	assert.ErrorIs(t, s.AddTrades("missing", nil), ErrRunNotFound)
}

func TestMemoryStorage_RecentRunsOrder(t *testing.T) {
	s := NewMemoryStorage()
	clock := date(1, 1)
	s.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		run, err := s.CreateRun(name, sampleSummary())
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	runs, err := s.RecentRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{runs[0].Name, runs[1].Name, runs[2].Name})
	assert.Equal(t, ids[2], runs[0].ID)
}

func TestMemoryStorage_Concurrent(t *testing.T) {
	s := NewMemoryStorage()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, err := s.CreateRun("sweep", sampleSummary())
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, s.AddTrades(run.ID, []models.Trade{sampleTrade("p", 1)}))
			assert.NoError(t, s.CompleteRun(run.ID, metrics.Report{}, 1))
			_, _ = s.RecentRuns(5)
		}()
	}
	wg.Wait()

	runs, err := s.RecentRuns(0)
	require.NoError(t, err)
	assert.Len(t, runs, 20)
}

func TestNewStorage(t *testing.T) {
	s, err := NewStorage("")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, s)

	s, err = NewStorage(filepath.Join(t.TempDir(), "runs.json"))
	require.NoError(t, err)
	assert.IsType(t, &JSONStorage{}, s)
}
