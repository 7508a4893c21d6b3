package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/covered_calls/internal/indicators"
)

// DefaultConcurrency bounds parallel symbol downloads.
const DefaultConcurrency = 4

// LoadResult is the outcome of LoadAll.
type LoadResult struct {
	Prices  map[string][]indicators.Bar
	Missing map[string]error
}

// MissingSymbols returns the symbols that failed to load, sorted.
func (r LoadResult) MissingSymbols() []string {
	out := make([]string, 0, len(r.Missing))
	for s := range r.Missing {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Loader fetches many symbols from one provider.
type Loader struct {
	provider    Provider
	concurrency int
	logger      *log.Logger
}

// NewLoader returns a loader. concurrency <= 0 selects DefaultConcurrency.
func NewLoader(provider Provider, concurrency int, logger *log.Logger) *Loader {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Loader{provider: provider, concurrency: concurrency, logger: logger}
}

// LoadAll fetches every symbol concurrently. A symbol that fails is recorded
// in Missing and logged; only context cancellation aborts the whole load.
func (l *Loader) LoadAll(ctx context.Context, symbols []string, timeframe string, from, to time.Time) (LoadResult, error) {
	res := LoadResult{
		Prices:  make(map[string][]indicators.Bar, len(symbols)),
		Missing: make(map[string]error),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for _, symbol := range symbols {
		g.Go(func() error {
			bars, err := l.provider.LoadPrices(gctx, symbol, timeframe, from, to)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return fmt.Errorf("loading %s: %w", symbol, err)
				}
				l.logger.Printf("WARNING: failed to load %s: %v", symbol, err)
				mu.Lock()
				res.Missing[symbol] = err
				mu.Unlock()
				return nil
			}
			mu.Lock()
			res.Prices[symbol] = bars
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	l.logger.Printf("Loaded %d/%d symbols", len(res.Prices), len(symbols))
	return res, nil
}
