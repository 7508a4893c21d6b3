package sweep

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/covered_calls/internal/config"
	"github.com/eddiefleurent/covered_calls/internal/indicators"
	"github.com/eddiefleurent/covered_calls/internal/marketdata"
	"github.com/eddiefleurent/covered_calls/internal/mock"
	"github.com/eddiefleurent/covered_calls/internal/storage"
)

func baseConfig() config.RunConfig {
	cfg := config.DefaultRunConfig()
	cfg.Symbols = []string{"RELIANCE", "TCS"}
	cfg.StartDate = config.NewDate(2023, 6, 1)
	cfg.EndDate = config.NewDate(2024, 5, 31)
	cfg.InitialCapital = 5_000_000
	return cfg
}

func syntheticPrices(t *testing.T) map[string][]indicators.Bar {
	t.Helper()
	p := mock.NewProvider(42)
	from := time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	prices := map[string][]indicators.Bar{}
	for _, s := range baseConfig().Symbols {
		bars, err := p.LoadPrices(context.Background(), s, "day", from, to)
		require.NoError(t, err)
		prices[s] = bars
	}
	return prices
}

func smallGrid() Grid {
	return Grid{
		StrikeMethods:  []config.StrikeMethod{config.StrikeDelta30, config.StrikeOTM5Pct},
		ExitStrategies: []config.ExitStrategy{config.ExitHoldToExpiry, config.ExitProfitTargetAndStopLoss},
		FilterSets:     []FilterSet{{Name: "No Filter"}},
		ExitSets: []ExitSet{
			{Name: "PT50_SL2", ProfitTargetPct: 50, StopLossMultiple: 2},
			{Name: "PT50_SL2_DTE7", ProfitTargetPct: 50, StopLossMultiple: 2, DTEExit: true, DTEThreshold: 7},
		},
	}
}

func TestDefaultGrid_Expand(t *testing.T) {
	g := DefaultGrid()
	require.NoError(t, g.Validate())
	assert.Len(t, g.StrikeMethods, 8)
	assert.Len(t, g.ExitStrategies, 4)
	assert.Len(t, g.FilterSets, 27)
	assert.Len(t, g.ExitSets, 7)

	cands, err := g.Expand(baseConfig())
	require.NoError(t, err)
	// HOLD_TO_EXPIRY skips the DTE and trailing sets
	assert.Len(t, cands, 8*4*27*7-8*27*2)

	for i, c := range cands {
		require.Equal(t, i, c.ID)
		if c.Config.ExitStrategy == config.ExitHoldToExpiry {
			require.False(t, c.Config.Exit.AdvancedExitsEnabled(), c.Name)
		}
	}
	first := cands[0]
	assert.Equal(t, "DELTA_30_No Filter_HOLD_TO_EXPIRY", first.Name)
	assert.Equal(t, first.Name, first.Config.Name)
	assert.Equal(t, []string{"RELIANCE", "TCS"}, first.Config.Symbols)
}

func TestFilterSet_Apply(t *testing.T) {
	base := config.DefaultRunConfig().Filters
	base.Williams.Enabled = true
	base.Trend.Enabled = true

	f, err := FilterSet{
		Name:   "RSI 30-60",
		Enable: []string{"RSI", FilterMACD},
		RSIMin: ptr(30), RSIMax: ptr(60),
		MACDMode: config.MACDReversal,
	}.Apply(base)
	require.NoError(t, err)
	assert.True(t, f.RSI.Enabled)
	assert.True(t, f.MACD.Enabled)
	assert.Equal(t, config.MACDReversal, f.MACD.Mode)
	assert.Equal(t, 30.0, f.RSI.Min)
	assert.Equal(t, 60.0, f.RSI.Max)
	assert.False(t, f.Williams.Enabled, "filters outside the set are switched off")
	assert.Equal(t, indicators.TrendNone, f.Trend.EffectiveMode())
	assert.Equal(t, base.RSI.Period, f.RSI.Period)

	_, err = FilterSet{Name: "bad", Enable: []string{"ichimoku"}}.Apply(base)
	assert.ErrorContains(t, err, `unknown filter "ichimoku"`)
}

func TestExitSet_Apply(t *testing.T) {
	base := config.DefaultRunConfig().Exit
	e := ExitSet{ProfitTargetPct: 40, StopLossMultiple: 1.5, TrailingStop: true}.Apply(base)
	assert.Equal(t, 40.0, e.ProfitTargetPct)
	assert.Equal(t, 1.5, e.StopLossMultiple)
	assert.True(t, e.TrailingStop.Enabled)
	assert.Equal(t, base.TrailingStop.ActivationPct, e.TrailingStop.ActivationPct)
	assert.False(t, e.DTE.Enabled)

	e = ExitSet{ProfitTargetPct: 50, StopLossMultiple: 2, DTEExit: true, DTEThreshold: 3}.Apply(base)
	assert.Equal(t, 3, e.DTE.Threshold)
}

func TestSample(t *testing.T) {
	cands, err := DefaultGrid().Expand(baseConfig())
	require.NoError(t, err)

	a := Sample(cands, 30, 7)
	b := Sample(cands, 30, 7)
	require.Len(t, a, 30)
	assert.Equal(t, a, b)

	seen := map[int]bool{}
	for _, c := range a {
		assert.False(t, seen[c.ID], "duplicate candidate %d", c.ID)
		seen[c.ID] = true
	}
	assert.Len(t, Sample(cands, 0, 7), len(cands))
	assert.Len(t, Sample(cands, len(cands)+5, 7), len(cands))
}

func TestScoreAndAnnualize(t *testing.T) {
	// 0.3*20 + 0.2*60 + 1.5*10*0.25 + (100-10)*0.15 + min(50/10,10)*0.1
	assert.InDelta(t, 6+12+3.75+13.5+0.5, Score(20, 60, 1.5, 10, 50), 1e-9)
	assert.InDelta(t, 6+12+3.75+13.5+1.0, Score(20, 60, 1.5, -10, 500), 1e-9)

	assert.InDelta(t, 21.0, Annualize(21, 365), 0.1)
	assert.InDelta(t, 10.0, Annualize(21, 730), 0.1)
	assert.Equal(t, -100.0, Annualize(-100, 365))
	assert.Equal(t, 0.0, Annualize(5, 0))
}

func TestLoadGrid(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "grid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
strike_methods: [DELTA_30, ATM]
filter_sets:
  - name: EMA+RSI
    trend: BULLISH
    enable: [rsi]
    rsi_min: 35
`), 0o600))
	g, err := LoadGrid(path)
	require.NoError(t, err)
	assert.Equal(t, []config.StrikeMethod{config.StrikeDelta30, config.StrikeATM}, g.StrikeMethods)
	assert.Len(t, g.ExitStrategies, 4, "missing sections keep defaults")
	assert.Len(t, g.ExitSets, 7)
	require.Len(t, g.FilterSets, 1)
	assert.Equal(t, 35.0, *g.FilterSets[0].RSIMin)
	assert.Nil(t, g.FilterSets[0].RSIMax)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("strike_methods: [DELTA_99]\n"), 0o600))
	_, err = LoadGrid(bad)
	assert.ErrorContains(t, err, "unknown strike method")

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("strikes: [ATM]\n"), 0o600))
	_, err = LoadGrid(unknown)
	assert.ErrorContains(t, err, "parsing grid")

	_, err = LoadGrid(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestOptimizer_Run(t *testing.T) {
	prices := syntheticPrices(t)
	cands, err := smallGrid().Expand(baseConfig())
	require.NoError(t, err)
	require.Len(t, cands, 6)

	store := storage.NewMemoryStorage()
	var buf bytes.Buffer
	opt := NewOptimizer(prices,
		WithWorkers(3),
		WithLotSizes(marketdata.LotSize),
		WithStorage(store),
		WithLogger(log.New(&buf, "", 0)),
	)
	ranked, err := opt.Run(context.Background(), cands)
	require.NoError(t, err)
	require.NotEmpty(t, ranked)

	for i, r := range ranked {
		assert.Equal(t, i+1, r.Rank)
		assert.GreaterOrEqual(t, r.TotalTrades, DefaultMinTrades)
		assert.NotEmpty(t, r.RunID)
		if i > 0 {
			assert.GreaterOrEqual(t, ranked[i-1].Score, r.Score)
		}
		assert.InDelta(t, Score(r.AnnualizedReturnPct, r.WinRate, r.SharpeRatio, r.MaxDrawdownPct, r.TotalTrades), r.Score, 1e-9)
		assert.Greater(t, r.AvgHoldingDays, 0.0)
	}
	assert.Contains(t, buf.String(), "valid strategies found out of 6")

	runs, err := store.RecentRuns(0)
	require.NoError(t, err)
	assert.Len(t, runs, len(ranked))
	for _, run := range runs {
		assert.Equal(t, storage.RunCompleted, run.Status)
	}

	// worker count does not change the ranking
	serial, err := NewOptimizer(prices, WithWorkers(1), WithLotSizes(marketdata.LotSize)).Run(context.Background(), cands)
	require.NoError(t, err)
	require.Len(t, serial, len(ranked))
	for i := range serial {
		assert.Equal(t, ranked[i].Name, serial[i].Name)
		assert.Equal(t, ranked[i].Config.ID, serial[i].Config.ID)
		assert.Equal(t, ranked[i].Score, serial[i].Score)
	}
}

func TestOptimizer_MinTradesAndBadCandidate(t *testing.T) {
	prices := syntheticPrices(t)
	cands, err := smallGrid().Expand(baseConfig())
	require.NoError(t, err)

	ranked, err := NewOptimizer(prices, WithMinTrades(10_000)).Run(context.Background(), cands)
	require.NoError(t, err)
	assert.Empty(t, ranked)

	broken := cands[0]
	broken.Config.StartDate = broken.Config.EndDate
	var buf bytes.Buffer
	ranked, err = NewOptimizer(prices, WithMinTrades(0), WithLogger(log.New(&buf, "", 0))).
		Run(context.Background(), []Candidate{broken, cands[1]})
	require.NoError(t, err)
	assert.Len(t, ranked, 1)
	assert.Contains(t, buf.String(), "Error in config 0")
}

func TestOptimizer_Cancelled(t *testing.T) {
	prices := syntheticPrices(t)
	cands, err := smallGrid().Expand(baseConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewOptimizer(prices).Run(ctx, cands)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReport_SaveJSON(t *testing.T) {
	ranked := []Result{
		{Rank: 1, Name: "a", Score: 30, ProfitFactor: math.Inf(1), Config: CandidateConfig{ID: 4}},
		{Rank: 2, Name: "b", Score: 20, ProfitFactor: 1.8},
		{Rank: 3, Name: "c", Score: 10, ProfitFactor: 0.5},
	}
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rep := NewReport(baseConfig(), 10, ranked, 2, now)
	assert.Len(t, rep.TopStrategies, 2)
	assert.Equal(t, 3, rep.Metadata.TotalStrategiesTested)
	assert.Equal(t, 10, rep.Metadata.CandidatesRun)
	assert.Equal(t, "2023-06-01", rep.Metadata.StartDate)

	path := filepath.Join(t.TempDir(), "out", "results.json")
	require.NoError(t, rep.SaveJSON(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded struct {
		Metadata      map[string]any   `json:"metadata"`
		TopStrategies []map[string]any `json:"top_strategies"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.TopStrategies, 2)
	assert.Nil(t, decoded.TopStrategies[0]["profit_factor"])
	assert.Equal(t, 1.8, decoded.TopStrategies[1]["profit_factor"])
	assert.Equal(t, "a", decoded.TopStrategies[0]["name"])
	assert.Equal(t, float64(4), decoded.TopStrategies[0]["config"].(map[string]any)["id"])

	var out bytes.Buffer
	Print(&out, ranked, 0)
	assert.Equal(t, 3, strings.Count(out.String(), "COMPOSITE SCORE"))
	assert.Contains(t, out.String(), "Entry Filters: None")
}
