package marketdata

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/covered_calls/internal/indicators"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func sampleBars() []indicators.Bar {
	return []indicators.Bar{
		{Date: day(2), Open: 100, High: 102, Low: 99, Close: 101, Volume: 1000},
		{Date: day(3), Open: 101, High: 103.5, Low: 100, Close: 102.25, Volume: 1500},
		{Date: day(4), Open: 102, High: 104, Low: 101, Close: 103, Volume: 900},
	}
}

func TestCSVProvider_SaveAndLoad(t *testing.T) {
	p := NewCSVProvider(filepath.Join(t.TempDir(), "prices"))
	require.NoError(t, p.Save("INFY", sampleBars()))

	bars, err := p.LoadPrices(context.Background(), "INFY", "day", day(1), day(31))
	require.NoError(t, err)
	assert.Equal(t, sampleBars(), bars)

	bars, err = p.LoadPrices(context.Background(), "INFY", "day", day(3), day(3))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 102.25, bars[0].Close)

	_, err = os.Stat(p.Path("INFY") + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file left behind")
}

func TestCSVProvider_Missing(t *testing.T) {
	p := NewCSVProvider(t.TempDir())
	_, err := p.LoadPrices(context.Background(), "NOPE", "day", day(1), day(31))
	assert.ErrorIs(t, err, ErrNoData)

	require.NoError(t, p.Save("INFY", sampleBars()))
	_, err = p.LoadPrices(context.Background(), "INFY", "day", day(10), day(31))
	assert.ErrorIs(t, err, ErrNoData)

	_, err = p.LoadPrices(context.Background(), "INFY", "week", day(1), day(31))
	assert.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	t.Run("extra columns and reordered header", func(t *testing.T) {
		in := "Volume,Date,Close,Open,High,Low,Adj\n" +
			"10,2024-01-03,2,2,2,2,x\n" +
			",2024-01-02,1,1,1,1,x\n"
		bars, err := ReadCSV(bytes.NewBufferString(in))
		require.NoError(t, err)
		require.Len(t, bars, 2)
		assert.Equal(t, day(2), bars[0].Date)
		assert.Equal(t, int64(0), bars[0].Volume)
		assert.Equal(t, int64(10), bars[1].Volume)
	})

	t.Run("missing column", func(t *testing.T) {
		_, err := ReadCSV(bytes.NewBufferString("date,open,high,low\n"))
		assert.ErrorContains(t, err, `missing column "close"`)
	})

	t.Run("bad number", func(t *testing.T) {
		_, err := ReadCSV(bytes.NewBufferString("date,open,high,low,close,volume\n2024-01-02,1,1,1,abc,0\n"))
		assert.ErrorContains(t, err, "line 2: invalid close")
	})

	t.Run("empty", func(t *testing.T) {
		bars, err := ReadCSV(bytes.NewBufferString(""))
		require.NoError(t, err)
		assert.Empty(t, bars)
	})
}

func TestLoader_LoadAll(t *testing.T) {
	var buf bytes.Buffer
	provider := ProviderFunc(func(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]indicators.Bar, error) {
		if symbol == "BAD" {
			return nil, noData(symbol, from, to)
		}
		return sampleBars(), nil
	})
	l := NewLoader(provider, 2, log.New(&buf, "", 0))

	res, err := l.LoadAll(context.Background(), []string{"A", "BAD", "B", "C"}, "day", day(1), day(31))
	require.NoError(t, err)
	assert.Len(t, res.Prices, 3)
	assert.Equal(t, []string{"BAD"}, res.MissingSymbols())
	assert.ErrorIs(t, res.Missing["BAD"], ErrNoData)
	assert.Contains(t, buf.String(), "WARNING: failed to load BAD")
	assert.Contains(t, buf.String(), "Loaded 3/4 symbols")
}

func TestLoader_Cancelled(t *testing.T) {
	provider := ProviderFunc(func(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]indicators.Bar, error) {
		return nil, ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader(provider, 0, nil).LoadAll(ctx, []string{"A", "B"}, "day", day(1), day(31))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreakerProvider(t *testing.T) {
	var calls atomic.Int32
	failing := ProviderFunc(func(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]indicators.Bar, error) {
		calls.Add(1)
		return nil, &APIError{Status: 503, Body: "down"}
	})
	settings := CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.5,
	}
	var buf bytes.Buffer
	cb := NewCircuitBreakerProviderWithSettings(failing, settings, log.New(&buf, "", 0))

	for i := 0; i < 3; i++ {
		_, err := cb.LoadPrices(context.Background(), "X", "day", day(1), day(2))
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.LoadPrices(context.Background(), "X", "day", day(1), day(2))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, buf.String(), "state changed from closed to open")
}

func TestCircuitBreakerProvider_NoDataIsNotAFailure(t *testing.T) {
	empty := ProviderFunc(func(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]indicators.Bar, error) {
		return nil, noData(symbol, from, to)
	})
	cb := NewCircuitBreakerProviderWithSettings(empty, CircuitBreakerSettings{
		MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, MinRequests: 1, FailureRatio: 0.1,
	}, log.New(io.Discard, "", 0))

	for i := 0; i < 5; i++ {
		_, err := cb.LoadPrices(context.Background(), "X", "day", day(1), day(2))
		assert.ErrorIs(t, err, ErrNoData)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestLotSizeAndUniverses(t *testing.T) {
	assert.Equal(t, 250, LotSize("RELIANCE"))
	assert.Equal(t, 7500, LotSize("IDFCFIRSTB"))
	assert.Equal(t, 1, LotSize("UNKNOWN"))

	assert.Len(t, Universe(UniverseNifty50), 49)
	assert.Len(t, Universe(UniverseTop10Liquid), 10)
	assert.Equal(t, Universe(UniverseNifty50), Universe("something_else"))

	all := Universe(UniverseAllFNO)
	assert.Len(t, all, len(lotSizes))
	assert.IsIncreasing(t, all)
	for _, s := range Universe(UniverseNifty50) {
		assert.NotEqual(t, 1, LotSize(s), "nifty symbol %s has no lot size", s)
	}

	u := Universe(UniverseTop10Liquid)
	u[0] = "MUTATED"
	assert.Equal(t, "RELIANCE", Universe(UniverseTop10Liquid)[0])
	assert.Equal(t, []string{"nifty_50", "top_10_liquid", "all_fno"}, UniverseNames())
}
