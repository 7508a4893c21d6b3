package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/eddiefleurent/covered_calls/internal/app"
	"github.com/eddiefleurent/covered_calls/internal/config"
	"github.com/eddiefleurent/covered_calls/internal/engine"
	"github.com/eddiefleurent/covered_calls/internal/marketdata"
	"github.com/eddiefleurent/covered_calls/internal/metrics"
	"github.com/eddiefleurent/covered_calls/internal/storage"
)

func main() {
	var (
		configPath string
		universe   string
		exportDir  string
		cacheCSV   bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&universe, "universe", "", "Replace the configured symbols with a universe ("+strings.Join(marketdata.UniverseNames(), ", ")+")")
	flag.StringVar(&exportDir, "export", "", "Directory to write trades.csv and equity.csv")
	flag.BoolVar(&cacheCSV, "cache", false, "Save loaded prices to data.csv_dir")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.Backtest.Symbols = app.ResolveSymbols(cfg, universe)

	logger := log.New(os.Stdout, "[BACKTEST] ", log.LstdFlags|log.Lshortfile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, exportDir, cacheCSV); err != nil {
		logger.Fatalf("Backtest failed: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger, exportDir string, cacheCSV bool) error {
	bt := cfg.Backtest
	logger.Printf("Backtest %q: %d symbols, %s to %s, %s / %s",
		bt.Name, len(bt.Symbols), bt.StartDate, bt.EndDate, bt.StrikeMethod, bt.ExitStrategy)

	provider, err := app.NewProvider(cfg, logger)
	if err != nil {
		return err
	}
	prices, err := app.LoadPrices(ctx, cfg, provider, logger)
	if err != nil {
		return fmt.Errorf("failed to load prices: %w", err)
	}
	if cacheCSV && cfg.Data.Source != "csv" {
		if err := app.CachePrices(cfg.Data.CSVDir, prices); err != nil {
			logger.Printf("WARNING: %v", err)
		} else {
			logger.Printf("Cached %d symbols to %s", len(prices), cfg.Data.CSVDir)
		}
	}

	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	eng, err := engine.New(bt, prices,
		engine.WithLogger(logger),
		engine.WithLotSizes(marketdata.LotSize),
		engine.WithProgress(func(pct float64, msg string) {
			logger.Printf("%5.1f%% %s", pct, msg)
		}),
	)
	if err != nil {
		return err
	}

	res, err := eng.Run(ctx)
	if err != nil {
		if r, ferr := store.CreateRun(bt.Name, bt.Summary()); ferr == nil {
			_ = store.FailRun(r.ID, err)
		}
		return err
	}

	stored, err := storage.Record(store, storage.Outcome{
		Name:        bt.Name,
		Config:      res.Config,
		Trades:      res.Trades,
		EquityCurve: res.EquityCurve,
		Metrics:     res.Metrics,
		FinalCash:   res.FinalCash,
	})
	if err != nil {
		logger.Printf("WARNING: failed to store run: %v", err)
	} else {
		logger.Printf("Stored run %s in %s", stored.ID, cfg.Storage.Path)
	}

	if exportDir != "" {
		if err := export(exportDir, res); err != nil {
			return err
		}
		logger.Printf("Exported trades and equity curve to %s", exportDir)
	}

	printReport(os.Stdout, res.Metrics, res.FinalCash)
	return nil
}

func export(dir string, res *engine.Result) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	write := func(name string, fn func(io.Writer) error) error {
		f, err := os.Create(filepath.Join(dir, name)) // #nosec G304 -- export dir is a CLI flag
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			_ = f.Close()
			return fmt.Errorf("writing %s: %w", name, err)
		}
		return f.Close()
	}
	if err := write("trades.csv", func(w io.Writer) error { return storage.ExportTradesCSV(w, res.Trades) }); err != nil {
		return err
	}
	return write("equity.csv", func(w io.Writer) error { return storage.ExportEquityCSV(w, res.EquityCurve) })
}

func printReport(w io.Writer, r metrics.Report, finalCash float64) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "BACKTEST RESULTS")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Total Return:       %10.2f%%\n", r.TotalReturn)
	fmt.Fprintf(w, "Annualized Return:  %10.2f%%\n", r.AnnualizedReturn)
	fmt.Fprintf(w, "Buy & Hold Return:  %10.2f%%\n", r.BuyHoldReturn)
	fmt.Fprintf(w, "Vs Buy & Hold:      %10.2f%%\n", r.VsBuyHold)
	fmt.Fprintf(w, "Max Drawdown:       %10.2f%%\n", r.MaxDrawdown)
	fmt.Fprintf(w, "Sharpe Ratio:       %10.2f\n", r.SharpeRatio)
	fmt.Fprintf(w, "Sortino Ratio:      %10.2f\n", r.SortinoRatio)
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Total Trades:       %10d\n", r.TotalTrades)
	fmt.Fprintf(w, "Win Rate:           %10.1f%%\n", r.WinRate)
	fmt.Fprintf(w, "Assignment Rate:    %10.1f%%\n", r.AssignmentRate)
	fmt.Fprintf(w, "Average Trade:      %10.0f\n", r.AverageTrade)
	fmt.Fprintf(w, "Average Win:        %10.0f\n", r.AverageWin)
	fmt.Fprintf(w, "Average Loss:       %10.0f\n", r.AverageLoss)
	fmt.Fprintf(w, "Profit Factor:      %10.2f\n", r.ProfitFactor)
	fmt.Fprintf(w, "Premium Yield:      %10.2f%%\n", r.PremiumYield)
	fmt.Fprintf(w, "Final Cash:         %10.0f\n", finalCash)
	fmt.Fprintln(w, rule)
}
