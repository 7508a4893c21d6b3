package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eddiefleurent/covered_calls/internal/config"
	"github.com/eddiefleurent/covered_calls/internal/metrics"
	"github.com/eddiefleurent/covered_calls/internal/models"
)

// runRecord is everything stored for one run.
type runRecord struct {
	Run    Run                  `json:"run"`
	Trades []models.Trade       `json:"trades"`
	Equity []models.EquityPoint `json:"equity_curve"`
}

// storageData is the persisted document.
type storageData struct {
	Runs        map[string]*runRecord `json:"runs"`
	LastUpdated time.Time             `json:"last_updated"`
}

func newStorageData() *storageData {
	return &storageData{Runs: make(map[string]*runRecord)}
}

// MemoryStorage keeps runs in process memory. JSONStorage layers file
// persistence on top of it.
type MemoryStorage struct {
	mu      sync.RWMutex
	data    *storageData
	now     func() time.Time
	persist func(*storageData) error
}

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		data: newStorageData(),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// commit runs after every mutation with the write lock held.
func (m *MemoryStorage) commit() error {
	m.data.LastUpdated = m.now()
	if m.persist == nil {
		return nil
	}
	return m.persist(m.data)
}

func (m *MemoryStorage) record(id string) (*runRecord, error) {
	rec, ok := m.data.Runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return rec, nil
}

func (m *MemoryStorage) running(id string) (*runRecord, error) {
	rec, err := m.record(id)
	if err != nil {
		return nil, err
	}
	if rec.Run.Status != RunRunning {
		return nil, fmt.Errorf("%w: %s is %s", ErrRunFinished, id, rec.Run.Status)
	}
	return rec, nil
}

// CreateRun registers a new running run with a fresh UUID.
func (m *MemoryStorage) CreateRun(name string, cfg config.Summary) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run := Run{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    RunRunning,
		Config:    cfg,
		CreatedAt: m.now(),
	}
	m.data.Runs[run.ID] = &runRecord{Run: run}
	if err := m.commit(); err != nil {
		delete(m.data.Runs, run.ID)
		return nil, fmt.Errorf("failed to save run: %w", err)
	}
	return &run, nil
}

// CompleteRun attaches the final metrics and marks the run completed.
func (m *MemoryStorage) CompleteRun(id string, report metrics.Report, finalCash float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.running(id)
	if err != nil {
		return err
	}
	at := m.now()
	rec.Run.Status = RunCompleted
	rec.Run.CompletedAt = &at
	rec.Run.Metrics = &report
	rec.Run.FinalCash = finalCash
	return m.commit()
}

// FailRun marks the run failed with runErr's message.
func (m *MemoryStorage) FailRun(id string, runErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.running(id)
	if err != nil {
		return err
	}
	at := m.now()
	rec.Run.Status = RunFailed
	rec.Run.CompletedAt = &at
	if runErr != nil {
		rec.Run.Error = runErr.Error()
	}
	return m.commit()
}

// GetRun returns a copy of the run summary.
func (m *MemoryStorage) GetRun(id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.record(id)
	if err != nil {
		return nil, err
	}
	run := rec.Run
	return &run, nil
}

// RecentRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (m *MemoryStorage) RecentRuns(limit int) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]Run, 0, len(m.data.Runs))
	for _, rec := range m.data.Runs {
		runs = append(runs, rec.Run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// DeleteRun removes the run and its batches.
func (m *MemoryStorage) DeleteRun(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.record(id); err != nil {
		return err
	}
	delete(m.data.Runs, id)
	return m.commit()
}

// AddTrades appends a batch of closed trades to a running run.
func (m *MemoryStorage) AddTrades(id string, trades []models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.running(id)
	if err != nil {
		return err
	}
	for i := range trades {
		if err := trades[i].Validate(); err != nil {
			return fmt.Errorf("invalid trade %d: %w", i, err)
		}
	}
	rec.Trades = append(rec.Trades, trades...)
	rec.Run.TradeCount = len(rec.Trades)
	return m.commit()
}

// GetTrades returns a copy of the run's trades.
func (m *MemoryStorage) GetTrades(id string) ([]models.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.record(id)
	if err != nil {
		return nil, err
	}
	return append([]models.Trade{}, rec.Trades...), nil
}

// AddEquityPoints appends a batch of equity curve points to a running run.
func (m *MemoryStorage) AddEquityPoints(id string, points []models.EquityPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.running(id)
	if err != nil {
		return err
	}
	rec.Equity = append(rec.Equity, points...)
	return m.commit()
}

// GetEquityCurve returns a copy of the run's equity curve.
func (m *MemoryStorage) GetEquityCurve(id string) ([]models.EquityPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.record(id)
	if err != nil {
		return nil, err
	}
	return append([]models.EquityPoint{}, rec.Equity...), nil
}
