// Package marketdata loads daily OHLCV history for the backtest from a REST
// history endpoint, a directory of CSV files or any other Provider.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eddiefleurent/covered_calls/internal/indicators"
)

// ErrNoData is returned when a provider has no bars for the requested range.
var ErrNoData = errors.New("no price data")

// Provider loads bars for one symbol between from and to inclusive, oldest
// first.
type Provider interface {
	LoadPrices(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]indicators.Bar, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]indicators.Bar, error)

// LoadPrices calls f.
func (f ProviderFunc) LoadPrices(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]indicators.Bar, error) {
	return f(ctx, symbol, timeframe, from, to)
}

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == 429 || e.Status >= 500
}

func noData(symbol string, from, to time.Time) error {
	return fmt.Errorf("%w for %s between %s and %s", ErrNoData, symbol,
		from.Format(time.DateOnly), to.Format(time.DateOnly))
}
