package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/covered_calls/internal/config"
	"github.com/eddiefleurent/covered_calls/internal/dashboard"
	"github.com/eddiefleurent/covered_calls/internal/storage"
)

func main() {
	var (
		configPath string
		port       int
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.IntVar(&port, "port", 0, "Override dashboard.port")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}
	if port > 0 {
		cfg.Dashboard.Port = port
	}

	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open storage")
	}

	server := dashboard.NewServer(dashboard.Config{
		Port:      cfg.Dashboard.Port,
		AuthToken: cfg.Dashboard.AuthToken,
	}, store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Dashboard server stopped")
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping dashboard...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Graceful shutdown failed")
		}
	}
	logger.Info("Dashboard stopped")
}
