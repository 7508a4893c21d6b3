package dashboard

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/covered_calls/internal/config"
	"github.com/eddiefleurent/covered_calls/internal/metrics"
	"github.com/eddiefleurent/covered_calls/internal/models"
	"github.com/eddiefleurent/covered_calls/internal/storage"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func seed(t *testing.T, s storage.Interface, name string, ret float64) *storage.Run {
	t.Helper()
	entry := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	run, err := storage.Record(s, storage.Outcome{
		Name:   name,
		Config: config.Summary{Symbols: []string{"RELIANCE"}, StartDate: "2024-01-01", EndDate: "2024-06-30"},
		Trades: []models.Trade{{
			PositionID:      "p-" + name,
			Symbol:          "RELIANCE",
			LotSize:         250,
			EntryDate:       entry,
			ExitDate:        entry.AddDate(0, 0, 27),
			ExpiryDate:      entry.AddDate(0, 0, 27),
			StockEntryPrice: 2500,
			StrikePrice:     2550,
			PremiumReceived: 31.456,
			ExitReason:      "EXPIRED",
			TotalPnL:        7864,
		}},
		EquityCurve: []models.EquityPoint{{Date: entry, PortfolioValue: 1_000_000, Cash: 375_000, OpenPositions: 1}},
		Metrics:     metrics.Report{TotalReturn: ret, WinRate: 100, TotalTrades: 1},
		FinalCash:   1_007_864,
	})
	require.NoError(t, err)
	return run
}

func newTestServer(t *testing.T, store storage.Interface, token string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(Config{AuthToken: token}, store, quietLogger()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStorage(), "secret")

	resp := get(t, srv.URL+"/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestServer_Runs(t *testing.T) {
	store := storage.NewMemoryStorage()
	first := seed(t, store, "first", 4.5)
	seed(t, store, "second", 7.25)
	srv := newTestServer(t, store, "")

	t.Run("list", func(t *testing.T) {
		resp := get(t, srv.URL+"/api/runs", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		var runs []storage.Run
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
		assert.Len(t, runs, 2)
	})

	t.Run("limit", func(t *testing.T) {
		resp := get(t, srv.URL+"/api/runs?limit=1", nil)
		var runs []storage.Run
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
		assert.Len(t, runs, 1)
	})

	t.Run("bad limit", func(t *testing.T) {
		for _, q := range []string{"0", "-3", "abc"} {
			resp := get(t, srv.URL+"/api/runs?limit="+q, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		}
	})

	t.Run("single", func(t *testing.T) {
		resp := get(t, srv.URL+"/api/runs/"+first.ID, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var run storage.Run
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
		assert.Equal(t, "first", run.Name)
		assert.Equal(t, storage.RunCompleted, run.Status)
		require.NotNil(t, run.Metrics)
		assert.InDelta(t, 4.5, run.Metrics.TotalReturn, 1e-9)
	})

	t.Run("not found", func(t *testing.T) {
		for _, path := range []string{"/api/runs/nope", "/api/runs/nope/trades", "/api/runs/nope/equity"} {
			resp := get(t, srv.URL+path, nil)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		}
	})

	t.Run("trades", func(t *testing.T) {
		resp := get(t, srv.URL+"/api/runs/"+first.ID+"/trades", nil)
		var trades []models.Trade
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&trades))
		require.Len(t, trades, 1)
		assert.Equal(t, "p-first", trades[0].PositionID)
	})

	t.Run("trades csv", func(t *testing.T) {
		resp := get(t, srv.URL+"/api/runs/"+first.ID+"/trades?format=csv", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(raw), "31.46")
	})

	t.Run("equity", func(t *testing.T) {
		resp := get(t, srv.URL+"/api/runs/"+first.ID+"/equity", nil)
		var points []models.EquityPoint
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&points))
		require.Len(t, points, 1)
		assert.InDelta(t, 375_000, points[0].Cash, 1e-9)
	})

	t.Run("equity csv", func(t *testing.T) {
		resp := get(t, srv.URL+"/api/runs/"+first.ID+"/equity?format=csv", nil)
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
		assert.Len(t, lines, 2)
	})
}

func TestServer_EmptyListIsArray(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStorage(), "")

	resp := get(t, srv.URL+"/api/runs", nil)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(string(raw)))
}

func TestServer_Stats(t *testing.T) {
	store := storage.NewMemoryStorage()
	seed(t, store, "low", 2)
	best := seed(t, store, "high", 10)
	failed, err := store.CreateRun("broken", config.Summary{})
	require.NoError(t, err)
	require.NoError(t, store.FailRun(failed.ID, errors.New("no prices")))
	_, err = store.CreateRun("pending", config.Summary{})
	require.NoError(t, err)

	srv := newTestServer(t, store, "")
	resp := get(t, srv.URL+"/api/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats Statistics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 4, stats.TotalRuns)
	assert.Equal(t, 2, stats.CompletedRuns)
	assert.Equal(t, 1, stats.FailedRuns)
	assert.Equal(t, 1, stats.RunningRuns)
	assert.Equal(t, 2, stats.TotalTrades)
	assert.InDelta(t, 6, stats.AverageReturn, 1e-9)
	assert.InDelta(t, 100, stats.AverageWinRate, 1e-9)
	assert.Equal(t, best.ID, stats.BestRunID)
	assert.Equal(t, "high", stats.BestRunName)
}

func TestServer_Auth(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStorage(), "secret")

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"missing token", "/api/runs", nil, http.StatusUnauthorized},
		{"wrong token", "/api/runs", map[string]string{"X-Auth-Token": "nope"}, http.StatusUnauthorized},
		{"header token", "/api/runs", map[string]string{"X-Auth-Token": "secret"}, http.StatusOK},
		{"query token", "/api/runs?token=secret", nil, http.StatusOK},
		{"health is open", "/health", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, srv.URL+tt.path, tt.header)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestServer_ReloadsFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.json")
	reader, err := storage.NewJSONStorage(path)
	require.NoError(t, err)
	srv := newTestServer(t, reader, "")

	// A second handle stands in for a backtest writing the same file.
	writer, err := storage.NewJSONStorage(path)
	require.NoError(t, err)
	run := seed(t, writer, "external", 3)

	resp := get(t, srv.URL+"/api/runs/"+run.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Compare(t *testing.T) {
	store := storage.NewMemoryStorage()
	low := seed(t, store, "low", 2)
	high := seed(t, store, "high", 10)
	pending, err := store.CreateRun("pending", config.Summary{})
	require.NoError(t, err)
	srv := newTestServer(t, store, "")

	resp := get(t, srv.URL+"/api/compare?ids="+low.ID+","+high.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rows []metrics.Comparison
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "high ("+high.ID[:8]+")", rows[0].Name)
	assert.InDelta(t, 10, rows[0].TotalReturn, 1e-9)

	assert.Equal(t, http.StatusBadRequest, get(t, srv.URL+"/api/compare", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/api/compare?ids=nope", nil).StatusCode)
	assert.Equal(t, http.StatusConflict, get(t, srv.URL+"/api/compare?ids="+pending.ID, nil).StatusCode)
}
