package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/covered_calls/internal/metrics"
	"github.com/eddiefleurent/covered_calls/internal/storage"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 500
)

// Server exposes stored backtest runs as a read-only JSON API.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	storage   storage.Interface
	logger    *logrus.Logger
	port      int
	authToken string
	now       func() time.Time
}

type Config struct {
	Port      int
	AuthToken string
}

// Statistics aggregates every stored run.
type Statistics struct {
	TotalRuns      int     `json:"total_runs"`
	CompletedRuns  int     `json:"completed_runs"`
	FailedRuns     int     `json:"failed_runs"`
	RunningRuns    int     `json:"running_runs"`
	TotalTrades    int     `json:"total_trades"`
	AverageReturn  float64 `json:"average_return"`
	AverageWinRate float64 `json:"average_win_rate"`
	BestRunID      string  `json:"best_run_id,omitempty"`
	BestRunName    string  `json:"best_run_name,omitempty"`
	BestReturn     float64 `json:"best_return"`
}

// refresher is implemented by stores backed by a file another process writes.
type refresher interface {
	Load() error
}

func NewServer(cfg Config, store storage.Interface, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		router:    chi.NewRouter(),
		storage:   store,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
		now:       time.Now,
	}

	s.setupRoutes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.refreshMiddleware)
		r.Get("/stats", s.handleGetStats)
		r.Get("/compare", s.handleCompare)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/runs/{id}/trades", s.handleGetTrades)
		r.Get("/runs/{id}/equity", s.handleGetEquity)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// refreshMiddleware reloads file-backed stores so runs recorded by a
// concurrent backtest or sweep become visible.
func (s *Server) refreshMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rf, ok := s.storage.(refresher); ok {
			if err := rf.Load(); err != nil {
				s.logger.WithError(err).Warn("Failed to reload storage; serving cached runs")
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": s.now().Unix(),
	}
	s.writeJSON(w, health)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := s.storage.RecentRuns(limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list runs")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	s.writeJSON(w, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.storage.GetRun(id)
	if err != nil {
		s.writeStorageError(w, id, err)
		return
	}
	s.writeJSON(w, run)
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	trades, err := s.storage.GetTrades(id)
	if err != nil {
		s.writeStorageError(w, id, err)
		return
	}

	if wantsCSV(r) {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+"_trades.csv"))
		if err := storage.ExportTradesCSV(w, trades); err != nil {
			s.logger.WithError(err).Error("Failed to export trades")
		}
		return
	}
	s.writeJSON(w, trades)
}

func (s *Server) handleGetEquity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	points, err := s.storage.GetEquityCurve(id)
	if err != nil {
		s.writeStorageError(w, id, err)
		return
	}

	if wantsCSV(r) {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+"_equity.csv"))
		if err := storage.ExportEquityCSV(w, points); err != nil {
			s.logger.WithError(err).Error("Failed to export equity curve")
		}
		return
	}
	s.writeJSON(w, points)
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.calculateStatistics()
	if err != nil {
		s.logger.WithError(err).Error("Failed to calculate statistics")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, stats)
}

// handleCompare tabulates completed runs given as ?ids=a,b,c, best total
// return first.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		http.Error(w, "ids is required", http.StatusBadRequest)
		return
	}

	reports := make(map[string]metrics.Report)
	for _, id := range strings.Split(raw, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		run, err := s.storage.GetRun(id)
		if err != nil {
			s.writeStorageError(w, id, err)
			return
		}
		if run.Metrics == nil {
			http.Error(w, fmt.Sprintf("run %s has no metrics", id), http.StatusConflict)
			return
		}
		reports[compareLabel(run)] = *run.Metrics
	}
	s.writeJSON(w, metrics.CompareStrategies(reports))
}

func compareLabel(run *storage.Run) string {
	short := run.ID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s (%s)", run.Name, short)
}

func (s *Server) calculateStatistics() (*Statistics, error) {
	runs, err := s.storage.RecentRuns(0)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{TotalRuns: len(runs)}
	var totalReturn, totalWinRate float64
	for _, run := range runs {
		switch run.Status {
		case storage.RunFailed:
			stats.FailedRuns++
			continue
		case storage.RunRunning:
			stats.RunningRuns++
			continue
		}
		if run.Metrics == nil {
			continue
		}
		stats.CompletedRuns++
		stats.TotalTrades += run.TradeCount
		totalReturn += run.Metrics.TotalReturn
		totalWinRate += run.Metrics.WinRate

		if stats.BestRunID == "" || run.Metrics.TotalReturn > stats.BestReturn {
			stats.BestRunID = run.ID
			stats.BestRunName = run.Name
			stats.BestReturn = run.Metrics.TotalReturn
		}
	}

	if stats.CompletedRuns > 0 {
		stats.AverageReturn = totalReturn / float64(stats.CompletedRuns)
		stats.AverageWinRate = totalWinRate / float64(stats.CompletedRuns)
	}
	return stats, nil
}

func (s *Server) writeStorageError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, storage.ErrRunNotFound) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.logger.WithError(err).WithField("run_id", id).Error("Failed to read run")
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func wantsCSV(r *http.Request) bool {
	return r.URL.Query().Get("format") == "csv"
}
