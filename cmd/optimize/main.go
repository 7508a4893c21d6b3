package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/eddiefleurent/covered_calls/internal/app"
	"github.com/eddiefleurent/covered_calls/internal/config"
	"github.com/eddiefleurent/covered_calls/internal/marketdata"
	"github.com/eddiefleurent/covered_calls/internal/storage"
	"github.com/eddiefleurent/covered_calls/internal/sweep"
)

type options struct {
	gridPath string
	universe string
	record   bool
	out      io.Writer
}

func main() {
	var (
		configPath string
		opts       options
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&opts.gridPath, "grid", "", "Optional YAML grid replacing the built-in parameter grid")
	flag.StringVar(&opts.universe, "universe", "", "Replace the configured symbols with a universe ("+strings.Join(marketdata.UniverseNames(), ", ")+")")
	flag.BoolVar(&opts.record, "record", false, "Store every ranked candidate in storage.path")
	flag.Parse()
	opts.out = os.Stdout

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.Backtest.Symbols = app.ResolveSymbols(cfg, opts.universe)

	logger := log.New(os.Stdout, "[OPTIMIZE] ", log.LstdFlags|log.Lshortfile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Fatalf("Optimization failed: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, logger *log.Logger) error {
	grid := sweep.DefaultGrid()
	if opts.gridPath != "" {
		g, err := sweep.LoadGrid(opts.gridPath)
		if err != nil {
			return err
		}
		grid = g
	}

	cands, err := grid.Expand(cfg.Backtest)
	if err != nil {
		return fmt.Errorf("failed to expand grid: %w", err)
	}
	total := len(cands)
	cands = sweep.Sample(cands, cfg.Sweep.SampleSize, cfg.Sweep.Seed)
	if len(cands) < total {
		logger.Printf("Sampling %d of %d configurations (seed %d)", len(cands), total, cfg.Sweep.Seed)
	} else {
		logger.Printf("Testing all %d configurations", total)
	}

	provider, err := app.NewProvider(cfg, logger)
	if err != nil {
		return err
	}
	prices, err := app.LoadPrices(ctx, cfg, provider, logger)
	if err != nil {
		return fmt.Errorf("failed to load prices: %w", err)
	}

	optOpts := []sweep.Option{
		sweep.WithLogger(logger),
		sweep.WithWorkers(cfg.Sweep.Workers),
		sweep.WithMinTrades(cfg.Sweep.MinTrades),
		sweep.WithLotSizes(marketdata.LotSize),
	}
	if opts.record {
		store, err := storage.NewStorage(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		optOpts = append(optOpts, sweep.WithStorage(store))
	}

	started := time.Now()
	ranked, err := sweep.NewOptimizer(prices, optOpts...).Run(ctx, cands)
	if err != nil {
		return err
	}
	logger.Printf("Sweep finished in %s", time.Since(started).Round(time.Second))

	report := sweep.NewReport(cfg.Backtest, len(cands), ranked, cfg.Sweep.TopN, time.Now())
	if err := report.SaveJSON(cfg.Sweep.Output); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	logger.Printf("Results saved to %s", cfg.Sweep.Output)

	sweep.Print(opts.out, ranked, 10)
	return nil
}
