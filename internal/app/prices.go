// Package app holds the wiring shared by the command line tools.
package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/eddiefleurent/covered_calls/internal/config"
	"github.com/eddiefleurent/covered_calls/internal/indicators"
	"github.com/eddiefleurent/covered_calls/internal/marketdata"
	"github.com/eddiefleurent/covered_calls/internal/mock"
	"github.com/eddiefleurent/covered_calls/internal/retry"
)

// NewProvider builds the price source named by data.source. The HTTP source
// is wrapped in a circuit breaker and then in retries, so a retry sees the
// breaker's open state as a transient failure.
func NewProvider(cfg *config.Config, logger *log.Logger) (marketdata.Provider, error) {
	switch cfg.Data.Source {
	case "csv":
		return marketdata.NewCSVProvider(cfg.Data.CSVDir), nil
	case "synthetic":
		return mock.NewProvider(cfg.Data.Synthetic.Seed), nil
	case "http":
		h := cfg.Data.HTTP
		client := marketdata.NewHTTPProvider(h.BaseURL, h.APIKey).
			WithTimeout(cfg.GetHTTPTimeout()).
			WithLogger(logger)
		breaker := marketdata.NewCircuitBreakerProviderWithSettings(client, marketdata.CircuitBreakerSettings{
			MaxRequests:  h.CircuitBreaker.MaxRequests,
			Interval:     h.BreakerInterval(),
			Timeout:      h.BreakerTimeout(),
			MinRequests:  h.CircuitBreaker.MinRequests,
			FailureRatio: h.CircuitBreaker.FailureRatio,
		}, logger)
		return retry.NewProvider(breaker, logger, retry.Config{
			MaxRetries:     h.Retry.MaxRetries,
			InitialBackoff: h.RetryInitialBackoff(),
			MaxBackoff:     h.RetryMaxBackoff(),
			Timeout:        retry.DefaultConfig.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.Data.Source)
	}
}

// ResolveSymbols returns the configured symbols, or the named universe when
// universe is set.
func ResolveSymbols(cfg *config.Config, universe string) []string {
	if universe == "" {
		return cfg.Backtest.Symbols
	}
	return marketdata.Universe(strings.ToLower(universe))
}

// LoadPrices fetches history for every backtest symbol from the warm-up start
// to end_date. Symbols that fail are logged and left out; it is an error only
// when nothing loads.
func LoadPrices(ctx context.Context, cfg *config.Config, provider marketdata.Provider, logger *log.Logger) (map[string][]indicators.Bar, error) {
	loader := marketdata.NewLoader(provider, marketdata.DefaultConcurrency, logger)
	res, err := loader.LoadAll(ctx, cfg.Backtest.Symbols, cfg.Data.Timeframe, cfg.HistoryStart(), cfg.Backtest.EndDate.Time)
	if err != nil {
		return nil, err
	}
	if missing := res.MissingSymbols(); len(missing) > 0 {
		logger.Printf("Skipping symbols without data: %s", strings.Join(missing, ", "))
	}
	if len(res.Prices) == 0 {
		return nil, fmt.Errorf("no price data loaded for %d symbols", len(cfg.Backtest.Symbols))
	}
	return res.Prices, nil
}

// CachePrices writes loaded bars to the CSV directory so later runs can use
// data.source csv.
func CachePrices(dir string, prices map[string][]indicators.Bar) error {
	store := marketdata.NewCSVProvider(dir)
	for symbol, bars := range prices {
		if err := store.Save(symbol, bars); err != nil {
			return fmt.Errorf("caching %s: %w", symbol, err)
		}
	}
	return nil
}
