// Package retry retries transient market data failures with jittered
// exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/eddiefleurent/covered_calls/internal/indicators"
	"github.com/eddiefleurent/covered_calls/internal/marketdata"
)

type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

func (c Config) sanitize() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultConfig.MaxRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultConfig.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultConfig.MaxBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultConfig.Timeout
	}
	return c
}

// Provider retries LoadPrices on the wrapped provider.
type Provider struct {
	provider marketdata.Provider
	logger   *log.Logger
	config   Config
}

// NewProvider wraps p. Invalid config fields fall back to DefaultConfig.
func NewProvider(p marketdata.Provider, logger *log.Logger, config ...Config) *Provider {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0].sanitize()
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Provider{
		provider: p,
		logger:   logger,
		config:   cfg,
	}
}

// LoadPrices calls the wrapped provider until it succeeds, returns a
// permanent error, or the attempts or timeout run out.
func (c *Provider) LoadPrices(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]indicators.Bar, error) {
	loadCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("operation canceled: %w", ctx.Err())
		}
		select {
		case <-loadCtx.Done():
			return nil, fmt.Errorf("load of %s timed out after %v: %w", symbol, c.config.Timeout, loadCtx.Err())
		default:
		}

		bars, err := c.provider.LoadPrices(loadCtx, symbol, timeframe, from, to)
		if err == nil {
			if attempt > 0 {
				c.logger.Printf("Loaded %s on attempt %d", symbol, attempt+1)
			}
			return bars, nil
		}

		lastErr = err
		if !c.isTransientError(err) || attempt == c.config.MaxRetries {
			break
		}

		c.logger.Printf("Load attempt %d/%d for %s failed: %v; retrying in %v",
			attempt+1, c.config.MaxRetries+1, symbol, err, backoff)
		select {
		case <-time.After(backoff):
			backoff = c.calculateNextBackoff(backoff)
		case <-ctx.Done():
			return nil, fmt.Errorf("operation canceled during backoff: %w", ctx.Err())
		case <-loadCtx.Done():
			return nil, fmt.Errorf("load of %s timed out during backoff: %w", symbol, loadCtx.Err())
		}
	}

	if errors.Is(lastErr, marketdata.ErrNoData) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("failed to load %s: %w", symbol, lastErr)
}

func (c *Provider) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			c.logger.Printf("Failed to generate jitter: %v", err)
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

func (c *Provider) isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, marketdata.ErrNoData) || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *marketdata.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"429", // HTTP 429 Too Many Requests
		"502", // HTTP 502 Bad Gateway
		"503", // HTTP 503 Service Unavailable
		"504", // HTTP 504 Gateway Timeout
		"network",
		"dns",
		"tcp",
		"circuit breaker is open",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
