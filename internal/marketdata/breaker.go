package marketdata

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/covered_calls/internal/indicators"
)

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// DefaultCircuitBreakerSettings trips after 60% of at least five requests fail.
var DefaultCircuitBreakerSettings = CircuitBreakerSettings{
	MaxRequests:  3,
	Interval:     60 * time.Second,
	Timeout:      30 * time.Second,
	MinRequests:  5,
	FailureRatio: 0.6,
}

// CircuitBreakerProvider wraps a Provider with circuit breaker functionality
type CircuitBreakerProvider struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
}

// NewCircuitBreakerProvider wraps provider with the default settings.
func NewCircuitBreakerProvider(provider Provider, logger *log.Logger) *CircuitBreakerProvider {
	return NewCircuitBreakerProviderWithSettings(provider, DefaultCircuitBreakerSettings, logger)
}

// NewCircuitBreakerProviderWithSettings creates a CircuitBreakerProvider with custom settings
func NewCircuitBreakerProviderWithSettings(provider Provider, settings CircuitBreakerSettings, logger *log.Logger) *CircuitBreakerProvider {
	if logger == nil {
		logger = log.Default()
	}
	gbSettings := gobreaker.Settings{
		Name:        "MarketDataCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		// missing data is an answer, not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoData)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerProvider{
		provider: provider,
		breaker:  gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// LoadPrices wraps the underlying provider call with circuit breaker
func (c *CircuitBreakerProvider) LoadPrices(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]indicators.Bar, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.provider.LoadPrices(ctx, symbol, timeframe, from, to)
	})
	if err != nil {
		return nil, err
	}
	bars, ok := res.([]indicators.Bar)
	if !ok {
		return nil, errors.New("circuit breaker: type assertion failed")
	}
	return bars, nil
}

// State reports the breaker state.
func (c *CircuitBreakerProvider) State() gobreaker.State {
	return c.breaker.State()
}
