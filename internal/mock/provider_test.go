package mock

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/covered_calls/internal/marketdata"
)

var (
	from = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	to   = time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
)

func TestProvider_Deterministic(t *testing.T) {
	ctx := context.Background()
	a, err := NewProvider(42).LoadPrices(ctx, "RELIANCE", "day", from, to)
	require.NoError(t, err)
	b, err := NewProvider(42).LoadPrices(ctx, "RELIANCE", "day", from, to)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := NewProvider(43).LoadPrices(ctx, "RELIANCE", "day", from, to)
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "different seeds should diverge")

	d, err := NewProvider(42).LoadPrices(ctx, "TCS", "day", from, to)
	require.NoError(t, err)
	assert.NotEqual(t, a[len(a)-1].Close/a[0].Close, d[len(d)-1].Close/d[0].Close)
}

func TestProvider_BarShape(t *testing.T) {
	bars, err := NewProvider(7).LoadPrices(context.Background(), "UNLISTED", "day", from, to)
	require.NoError(t, err)

	assert.Equal(t, DefaultParams.Price, bars[0].Close)
	floor := DefaultParams.Price * priceFloor
	for i, b := range bars {
		wd := b.Date.Weekday()
		require.NotEqual(t, time.Saturday, wd, "bar %d", i)
		require.NotEqual(t, time.Sunday, wd, "bar %d", i)
		if i > 0 {
			require.True(t, b.Date.After(bars[i-1].Date), "bar %d out of order", i)
		}
		require.GreaterOrEqual(t, b.High, b.Close, "bar %d", i)
		require.GreaterOrEqual(t, b.High, b.Open, "bar %d", i)
		require.LessOrEqual(t, b.Low, b.Close, "bar %d", i)
		require.LessOrEqual(t, b.Low, b.Open, "bar %d", i)
		require.GreaterOrEqual(t, b.Close, floor-0.01, "bar %d", i)
		require.Greater(t, b.Volume, int64(0), "bar %d", i)
	}
}

func TestProvider_EmptyRange(t *testing.T) {
	sat := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)
	_, err := NewProvider(1).LoadPrices(context.Background(), "TCS", "day", sat, sat.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, marketdata.ErrNoData)
}

func TestProvider_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewProvider(1).LoadPrices(ctx, "TCS", "day", from, to)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegimeAdjust(t *testing.T) {
	tests := []struct {
		regime    Regime
		wantDrift float64
		wantVol   float64
	}{
		{RegimeNormal, 1, 1},
		{RegimeBull, 2, 0.8},
		{RegimeBear, -1.5, 1.2},
		{RegimeVolatile, 0.5, 1.8},
		{Regime("unknown"), 1, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.regime), func(t *testing.T) {
			d, v := tt.regime.adjust(1, 1)
			assert.InDelta(t, tt.wantDrift, d, 1e-12)
			assert.InDelta(t, tt.wantVol, v, 1e-12)
		})
	}
}

func TestPickRegime_Distribution(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	counts := map[Regime]int{}
	const n = 20000
	for i := 0; i < n; i++ {
		counts[pickRegime(rng)]++
	}
	for _, w := range regimeWeights {
		assert.InDelta(t, w.weight, float64(counts[w.regime])/n, 0.02, "regime %s", w.regime)
	}
}

func TestGenerate_Empty(t *testing.T) {
	assert.Nil(t, Generate(DefaultParams, nil, rand.New(rand.NewPCG(1, 1))))
}
