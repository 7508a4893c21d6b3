// Package config provides configuration management for backtest runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/eddiefleurent/covered_calls/internal/indicators"
)

// Run defaults
const (
	defaultInitialCapital   = 1_000_000.0
	defaultPositionSize     = 1
	defaultRiskFreeRate     = 0.07
	defaultIV               = 0.20
	defaultProfitTargetPct  = 50.0
	defaultStopLossMultiple = 2.0
	defaultATRMultiplier    = 1.5
	defaultDTEExitThreshold = 7
	defaultTrailActivation  = 25.0
	defaultTrailDistance    = 15.0
	defaultTimeframe        = "daily"
	defaultStoragePath      = "backtests.json"
	defaultDashboardPort    = 8080
)

// ErrInvalidDateRange is returned when start_date is not before end_date.
var ErrInvalidDateRange = errors.New("invalid date range")

// StrikeMethod selects how the short call strike is chosen.
type StrikeMethod string

const (
	StrikeDelta30        StrikeMethod = "DELTA_30"
	StrikeDelta40        StrikeMethod = "DELTA_40"
	StrikeOTM2Pct        StrikeMethod = "OTM_2PCT"
	StrikeOTM5Pct        StrikeMethod = "OTM_5PCT"
	StrikeATM            StrikeMethod = "ATM"
	StrikeAdaptiveDelta  StrikeMethod = "ADAPTIVE_DELTA"
	StrikeATRBased       StrikeMethod = "ATR_BASED"
	StrikePivotR1        StrikeMethod = "PIVOT_R1"
	StrikePivotR2        StrikeMethod = "PIVOT_R2"
	StrikeBollingerUpper StrikeMethod = "BOLLINGER_UPPER"
)

// StrikeMethods lists every recognized strike method.
var StrikeMethods = []StrikeMethod{
	StrikeDelta30, StrikeDelta40, StrikeOTM2Pct, StrikeOTM5Pct, StrikeATM,
	StrikeAdaptiveDelta, StrikeATRBased, StrikePivotR1, StrikePivotR2, StrikeBollingerUpper,
}

// Valid reports whether m is a recognized strike method.
func (m StrikeMethod) Valid() bool {
	for _, known := range StrikeMethods {
		if m == known {
			return true
		}
	}
	return false
}

// ExitStrategy selects which early-close rules apply.
type ExitStrategy string

const (
	ExitHoldToExpiry            ExitStrategy = "HOLD_TO_EXPIRY"
	ExitProfitTarget            ExitStrategy = "PROFIT_TARGET"
	ExitStopLoss                ExitStrategy = "STOP_LOSS"
	ExitProfitTargetAndStopLoss ExitStrategy = "PROFIT_TARGET_AND_STOP_LOSS"
)

// ExitStrategies lists every recognized exit strategy.
var ExitStrategies = []ExitStrategy{
	ExitHoldToExpiry, ExitProfitTarget, ExitStopLoss, ExitProfitTargetAndStopLoss,
}

// Valid reports whether s is a recognized exit strategy.
func (s ExitStrategy) Valid() bool {
	for _, known := range ExitStrategies {
		if s == known {
			return true
		}
	}
	return false
}

// UsesProfitTarget reports whether the strategy closes on the profit target.
func (s ExitStrategy) UsesProfitTarget() bool {
	return s == ExitProfitTarget || s == ExitProfitTargetAndStopLoss
}

// UsesStopLoss reports whether the strategy closes (or rolls) on the stop loss.
func (s ExitStrategy) UsesStopLoss() bool {
	return s == ExitStopLoss || s == ExitProfitTargetAndStopLoss
}

// Date is a calendar date written as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate returns the UTC midnight date.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t}, nil
}

// UnmarshalYAML accepts YYYY-MM-DD scalars.
func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseDate(value.Value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalYAML writes the date as YYYY-MM-DD.
func (d Date) MarshalYAML() (interface{}, error) {
	return d.Format("2006-01-02"), nil
}

// String implements fmt.Stringer.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// Config represents a complete configuration file.
type Config struct {
	Backtest  RunConfig       `yaml:"backtest"`
	Data      DataConfig      `yaml:"data"`
	Storage   StorageConfig   `yaml:"storage"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Sweep     SweepConfig     `yaml:"sweep"`
}

// RunConfig holds every parameter of a single backtest run. It is treated as
// immutable once validated.
type RunConfig struct {
	Name           string       `yaml:"name"`
	Symbols        []string     `yaml:"symbols"`
	StartDate      Date         `yaml:"start_date"`
	EndDate        Date         `yaml:"end_date"`
	StrikeMethod   StrikeMethod `yaml:"strike_method"`
	ExitStrategy   ExitStrategy `yaml:"exit_strategy"`
	InitialCapital float64      `yaml:"initial_capital"`
	PositionSize   int          `yaml:"position_size"` // lots per entry
	RiskFreeRate   float64      `yaml:"risk_free_rate"`
	DefaultIV      float64      `yaml:"default_iv"`
	ATRMultiplier  float64      `yaml:"atr_multiplier"` // ATR_BASED strike distance
	Exit           ExitConfig   `yaml:"exit"`
	Filters        FilterConfig `yaml:"filters"`
}

// ExitConfig defines early-close and adjustment rules.
type ExitConfig struct {
	ProfitTargetPct   float64            `yaml:"profit_target_pct"`  // % of premium captured
	StopLossMultiple  float64            `yaml:"stop_loss_multiple"` // x premium lost
	AllowSLAdjustment bool               `yaml:"allow_sl_adjustment"`
	DTE               DTEExitConfig      `yaml:"dte"`
	TrailingStop      TrailingStopConfig `yaml:"trailing_stop"`
}

// DTEExitConfig closes positions close to expiry.
type DTEExitConfig struct {
	Enabled   bool `yaml:"enabled"`
	Threshold int  `yaml:"threshold"`
}

// TrailingStopConfig trails the option profit high-water mark.
type TrailingStopConfig struct {
	Enabled       bool    `yaml:"enabled"`
	ActivationPct float64 `yaml:"activation_pct"`
	DistancePct   float64 `yaml:"distance_pct"`
}

// AdvancedExitsEnabled reports whether any exit runs even under HOLD_TO_EXPIRY.
func (e ExitConfig) AdvancedExitsEnabled() bool {
	return e.DTE.Enabled || e.TrailingStop.Enabled
}

// FilterConfig groups the entry filters. Each filter reads only its own block.
type FilterConfig struct {
	Trend      TrendFilterConfig      `yaml:"trend"`
	RSI        RSIFilterConfig        `yaml:"rsi"`
	Stochastic StochasticFilterConfig `yaml:"stochastic"`
	Supertrend SupertrendFilterConfig `yaml:"supertrend"`
	VWAP       VWAPFilterConfig       `yaml:"vwap"`
	ADX        ADXFilterConfig        `yaml:"adx"`
	Bollinger  BollingerFilterConfig  `yaml:"bollinger"`
	MACD       MACDFilterConfig       `yaml:"macd"`
	Williams   WilliamsFilterConfig   `yaml:"williams"`
}

// TrendFilterConfig compares 20/50/200 EMAs. Enabled is the older on/off
// switch: with Mode NONE it means BEARISH.
type TrendFilterConfig struct {
	Enabled bool                 `yaml:"enabled"`
	Mode    indicators.TrendMode `yaml:"mode"`
}

// EffectiveMode resolves the legacy switch against the explicit mode.
func (c TrendFilterConfig) EffectiveMode() indicators.TrendMode {
	if c.Mode == "" || c.Mode == indicators.TrendNone {
		if c.Enabled {
			return indicators.TrendBearish
		}
		return indicators.TrendNone
	}
	return c.Mode
}

// RSIFilterConfig admits entries while RSI is inside [Min, Max].
type RSIFilterConfig struct {
	Enabled bool    `yaml:"enabled"`
	Period  int     `yaml:"period"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
}

// StochasticFilterConfig looks for a bearish %K/%D cross from overbought.
type StochasticFilterConfig struct {
	Enabled    bool    `yaml:"enabled"`
	KPeriod    int     `yaml:"k_period"`
	DPeriod    int     `yaml:"d_period"`
	Smoothing  int     `yaml:"smoothing"`
	Overbought float64 `yaml:"overbought"`
}

// SupertrendFilterConfig requires a bullish supertrend.
type SupertrendFilterConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Period     int     `yaml:"period"`
	Multiplier float64 `yaml:"multiplier"`
}

// VWAPMode is the side of VWAP the close must be on.
type VWAPMode string

const (
	VWAPAbove VWAPMode = "ABOVE"
	VWAPBelow VWAPMode = "BELOW"
)

// VWAPFilterConfig compares the close with VWAP.
type VWAPFilterConfig struct {
	Enabled bool     `yaml:"enabled"`
	Mode    VWAPMode `yaml:"mode"`
	Period  int      `yaml:"period"`
}

// ADXFilterConfig requires a trending market, optionally an uptrend.
type ADXFilterConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Period         int     `yaml:"period"`
	Threshold      float64 `yaml:"threshold"`
	RequireBullish bool    `yaml:"require_bullish"`
}

// BollingerFilterConfig blocks entries at or above the upper band. Period and
// StdDev also drive the BOLLINGER_UPPER strike method.
type BollingerFilterConfig struct {
	Enabled bool    `yaml:"enabled"`
	Period  int     `yaml:"period"`
	StdDev  float64 `yaml:"std_dev"`
}

// MACDMode selects the MACD entry condition.
type MACDMode string

const (
	MACDBullish  MACDMode = "BULLISH"
	MACDReversal MACDMode = "REVERSAL"
)

// MACDFilterConfig gates on MACD versus its signal line.
type MACDFilterConfig struct {
	Enabled bool     `yaml:"enabled"`
	Fast    int      `yaml:"fast"`
	Slow    int      `yaml:"slow"`
	Signal  int      `yaml:"signal"`
	Mode    MACDMode `yaml:"mode"`
}

// WilliamsFilterConfig looks for %R turning down from overbought.
type WilliamsFilterConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Period     int     `yaml:"period"`
	Overbought float64 `yaml:"overbought"`
	Oversold   float64 `yaml:"oversold"`
}

// DataConfig selects and configures the price source.
type DataConfig struct {
	Source     string          `yaml:"source"` // csv | http | synthetic
	Timeframe  string          `yaml:"timeframe"`
	WarmupDays int             `yaml:"warmup_days"` // history loaded before start_date
	CSVDir     string          `yaml:"csv_dir"`
	HTTP       HTTPConfig      `yaml:"http"`
	Synthetic  SyntheticConfig `yaml:"synthetic"`
}

// HTTPConfig defines the REST history endpoint.
type HTTPConfig struct {
	BaseURL        string               `yaml:"base_url"`
	APIKey         string               `yaml:"api_key"`
	Timeout        string               `yaml:"timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry          RetryConfig          `yaml:"retry"`
}

// CircuitBreakerConfig mirrors the breaker settings of the HTTP provider.
type CircuitBreakerConfig struct {
	MaxRequests  uint32  `yaml:"max_requests"`
	Interval     string  `yaml:"interval"`
	Timeout      string  `yaml:"timeout"`
	MinRequests  uint32  `yaml:"min_requests"`
	FailureRatio float64 `yaml:"failure_ratio"`
}

// RetryConfig bounds transient-failure retries.
type RetryConfig struct {
	MaxRetries     int    `yaml:"max_retries"`
	InitialBackoff string `yaml:"initial_backoff"`
	MaxBackoff     string `yaml:"max_backoff"`
}

// SyntheticConfig seeds the generated price series.
type SyntheticConfig struct {
	Seed int64 `yaml:"seed"`
}

// StorageConfig defines where run results are persisted.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the results API listener.
type DashboardConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// SweepConfig controls parameter sweeps.
type SweepConfig struct {
	Workers    int    `yaml:"workers"`
	SampleSize int    `yaml:"sample_size"` // 0 runs the full grid
	Seed       int64  `yaml:"seed"`
	TopN       int    `yaml:"top_n"`
	MinTrades  int    `yaml:"min_trades"`
	Output     string `yaml:"output"`
}

// DefaultRunConfig returns a run configuration with every parameter at its
// documented default and no symbols or dates.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		StrikeMethod:   StrikeDelta30,
		ExitStrategy:   ExitHoldToExpiry,
		InitialCapital: defaultInitialCapital,
		PositionSize:   defaultPositionSize,
		RiskFreeRate:   defaultRiskFreeRate,
		DefaultIV:      defaultIV,
		ATRMultiplier:  defaultATRMultiplier,
		Exit: ExitConfig{
			ProfitTargetPct:  defaultProfitTargetPct,
			StopLossMultiple: defaultStopLossMultiple,
			DTE:              DTEExitConfig{Threshold: defaultDTEExitThreshold},
			TrailingStop: TrailingStopConfig{
				ActivationPct: defaultTrailActivation,
				DistancePct:   defaultTrailDistance,
			},
		},
		Filters: FilterConfig{
			Trend:      TrendFilterConfig{Mode: indicators.TrendNone},
			RSI:        RSIFilterConfig{Period: 14, Min: 40, Max: 70},
			Stochastic: StochasticFilterConfig{KPeriod: 14, DPeriod: 3, Smoothing: 3, Overbought: 70},
			Supertrend: SupertrendFilterConfig{Period: 10, Multiplier: 3.0},
			VWAP:       VWAPFilterConfig{Mode: VWAPAbove, Period: 1},
			ADX:        ADXFilterConfig{Period: 14, Threshold: 25, RequireBullish: true},
			Bollinger:  BollingerFilterConfig{Period: 20, StdDev: 2.0},
			MACD:       MACDFilterConfig{Fast: 12, Slow: 26, Signal: 9, Mode: MACDBullish},
			Williams:   WilliamsFilterConfig{Period: 14, Overbought: -20, Oversold: -80},
		},
	}
}

// Default returns a complete configuration with defaults applied.
func Default() Config {
	return Config{
		Backtest: DefaultRunConfig(),
		Data: DataConfig{
			Source:     "csv",
			Timeframe:  defaultTimeframe,
			WarmupDays: 400,
			CSVDir:     "data",
			HTTP: HTTPConfig{
				Timeout: "10s",
				CircuitBreaker: CircuitBreakerConfig{
					MaxRequests:  3,
					Interval:     "60s",
					Timeout:      "30s",
					MinRequests:  5,
					FailureRatio: 0.6,
				},
				Retry: RetryConfig{MaxRetries: 3, InitialBackoff: "1s", MaxBackoff: "30s"},
			},
			Synthetic: SyntheticConfig{Seed: 42},
		},
		Storage:   StorageConfig{Path: defaultStoragePath},
		Dashboard: DashboardConfig{Port: defaultDashboardPort},
		Sweep:     SweepConfig{Workers: 4, TopN: 50, MinTrades: 3, Seed: 42, Output: "optimization_results.json"},
	}
}

// Load reads and parses the configuration file from the specified path.
// Keys missing from the file keep their defaults.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	config := Default()
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks the whole file.
func (c *Config) Validate() error {
	if err := c.Backtest.Validate(); err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	switch c.Data.Source {
	case "csv":
		if c.Data.CSVDir == "" {
			return fmt.Errorf("data.csv_dir is required for csv source")
		}
	case "http":
		if c.Data.HTTP.BaseURL == "" {
			return fmt.Errorf("data.http.base_url is required for http source")
		}
		for name, d := range map[string]string{
			"data.http.timeout":                  c.Data.HTTP.Timeout,
			"data.http.circuit_breaker.interval": c.Data.HTTP.CircuitBreaker.Interval,
			"data.http.circuit_breaker.timeout":  c.Data.HTTP.CircuitBreaker.Timeout,
			"data.http.retry.initial_backoff":    c.Data.HTTP.Retry.InitialBackoff,
			"data.http.retry.max_backoff":        c.Data.HTTP.Retry.MaxBackoff,
		} {
			if _, err := time.ParseDuration(d); err != nil {
				return fmt.Errorf("%s invalid: %w", name, err)
			}
		}
		if r := c.Data.HTTP.CircuitBreaker.FailureRatio; r <= 0 || r > 1 {
			return fmt.Errorf("data.http.circuit_breaker.failure_ratio must be in (0,1]")
		}
	case "synthetic":
	default:
		return fmt.Errorf("data.source must be 'csv', 'http' or 'synthetic'")
	}
	if c.Data.WarmupDays < 0 {
		return fmt.Errorf("data.warmup_days must be >= 0")
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port must be between 1 and 65535")
	}
	if c.Sweep.Workers <= 0 {
		return fmt.Errorf("sweep.workers must be > 0")
	}
	if c.Sweep.SampleSize < 0 {
		return fmt.Errorf("sweep.sample_size must be >= 0")
	}
	return nil
}

// Validate checks run parameters. Unknown strike methods and exit strategies
// are not errors: they fall back to 2% OTM and no early exits.
func (r *RunConfig) Validate() error {
	if len(r.Symbols) == 0 {
		return fmt.Errorf("symbols is required")
	}
	for i, s := range r.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("symbols[%d] is empty", i)
		}
	}
	if r.StartDate.IsZero() || r.EndDate.IsZero() {
		return fmt.Errorf("%w: start_date and end_date are required", ErrInvalidDateRange)
	}
	if !r.StartDate.Before(r.EndDate.Time) {
		return fmt.Errorf("%w: start_date (%s) must be before end_date (%s)",
			ErrInvalidDateRange, r.StartDate, r.EndDate)
	}

	r.normalize()

	if r.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be > 0")
	}
	if r.PositionSize <= 0 {
		return fmt.Errorf("position_size must be > 0")
	}
	if r.DefaultIV <= 0 || r.DefaultIV > 5 {
		return fmt.Errorf("default_iv must be in (0,5]")
	}
	if r.Exit.ProfitTargetPct <= 0 || r.Exit.ProfitTargetPct > 100 {
		return fmt.Errorf("exit.profit_target_pct must be in (0,100]")
	}
	if r.Exit.StopLossMultiple <= 0 {
		return fmt.Errorf("exit.stop_loss_multiple must be > 0")
	}
	if r.Exit.TrailingStop.DistancePct <= 0 {
		return fmt.Errorf("exit.trailing_stop.distance_pct must be > 0")
	}

	f := r.Filters
	if f.RSI.Min > f.RSI.Max {
		return fmt.Errorf("filters.rsi.min (%.1f) must be <= filters.rsi.max (%.1f)", f.RSI.Min, f.RSI.Max)
	}
	if f.MACD.Fast >= f.MACD.Slow {
		return fmt.Errorf("filters.macd.fast (%d) must be < filters.macd.slow (%d)", f.MACD.Fast, f.MACD.Slow)
	}
	periods := []struct {
		name  string
		value int
	}{
		{"filters.rsi.period", f.RSI.Period},
		{"filters.stochastic.k_period", f.Stochastic.KPeriod},
		{"filters.stochastic.d_period", f.Stochastic.DPeriod},
		{"filters.stochastic.smoothing", f.Stochastic.Smoothing},
		{"filters.supertrend.period", f.Supertrend.Period},
		{"filters.vwap.period", f.VWAP.Period},
		{"filters.adx.period", f.ADX.Period},
		{"filters.bollinger.period", f.Bollinger.Period},
		{"filters.macd.signal", f.MACD.Signal},
		{"filters.williams.period", f.Williams.Period},
	}
	for _, p := range periods {
		if p.value <= 0 {
			return fmt.Errorf("%s must be > 0", p.name)
		}
	}
	return nil
}

// normalize fills zero-valued parameters with defaults so programmatically
// built configs behave like loaded ones. Boolean switches are left alone.
func (r *RunConfig) normalize() {
	d := DefaultRunConfig()
	if r.StrikeMethod == "" {
		r.StrikeMethod = d.StrikeMethod
	}
	if r.ExitStrategy == "" {
		r.ExitStrategy = d.ExitStrategy
	}
	if r.InitialCapital == 0 {
		r.InitialCapital = d.InitialCapital
	}
	if r.PositionSize == 0 {
		r.PositionSize = d.PositionSize
	}
	if r.DefaultIV == 0 {
		r.DefaultIV = d.DefaultIV
	}
	if r.ATRMultiplier == 0 {
		r.ATRMultiplier = d.ATRMultiplier
	}
	if r.Exit.ProfitTargetPct == 0 {
		r.Exit.ProfitTargetPct = d.Exit.ProfitTargetPct
	}
	if r.Exit.StopLossMultiple == 0 {
		r.Exit.StopLossMultiple = d.Exit.StopLossMultiple
	}
	if r.Exit.DTE.Threshold == 0 {
		r.Exit.DTE.Threshold = d.Exit.DTE.Threshold
	}
	if r.Exit.TrailingStop.ActivationPct == 0 {
		r.Exit.TrailingStop.ActivationPct = d.Exit.TrailingStop.ActivationPct
	}
	if r.Exit.TrailingStop.DistancePct == 0 {
		r.Exit.TrailingStop.DistancePct = d.Exit.TrailingStop.DistancePct
	}

	f, df := &r.Filters, d.Filters
	if f.Trend.Mode == "" {
		f.Trend.Mode = df.Trend.Mode
	}
	if f.RSI.Period == 0 {
		f.RSI.Period = df.RSI.Period
	}
	if f.RSI.Min == 0 && f.RSI.Max == 0 {
		f.RSI.Min, f.RSI.Max = df.RSI.Min, df.RSI.Max
	}
	if f.Stochastic.KPeriod == 0 {
		f.Stochastic.KPeriod = df.Stochastic.KPeriod
	}
	if f.Stochastic.DPeriod == 0 {
		f.Stochastic.DPeriod = df.Stochastic.DPeriod
	}
	if f.Stochastic.Smoothing == 0 {
		f.Stochastic.Smoothing = df.Stochastic.Smoothing
	}
	if f.Stochastic.Overbought == 0 {
		f.Stochastic.Overbought = df.Stochastic.Overbought
	}
	if f.Supertrend.Period == 0 {
		f.Supertrend.Period = df.Supertrend.Period
	}
	if f.Supertrend.Multiplier == 0 {
		f.Supertrend.Multiplier = df.Supertrend.Multiplier
	}
	if f.VWAP.Mode == "" {
		f.VWAP.Mode = df.VWAP.Mode
	}
	if f.VWAP.Period == 0 {
		f.VWAP.Period = df.VWAP.Period
	}
	if f.ADX.Period == 0 {
		f.ADX.Period = df.ADX.Period
	}
	if f.ADX.Threshold == 0 {
		f.ADX.Threshold = df.ADX.Threshold
	}
	if f.Bollinger.Period == 0 {
		f.Bollinger.Period = df.Bollinger.Period
	}
	if f.Bollinger.StdDev == 0 {
		f.Bollinger.StdDev = df.Bollinger.StdDev
	}
	if f.MACD.Fast == 0 {
		f.MACD.Fast = df.MACD.Fast
	}
	if f.MACD.Slow == 0 {
		f.MACD.Slow = df.MACD.Slow
	}
	if f.MACD.Signal == 0 {
		f.MACD.Signal = df.MACD.Signal
	}
	if f.MACD.Mode == "" {
		f.MACD.Mode = df.MACD.Mode
	}
	if f.Williams.Period == 0 {
		f.Williams.Period = df.Williams.Period
	}
	if f.Williams.Overbought == 0 {
		f.Williams.Overbought = df.Williams.Overbought
	}
	if f.Williams.Oversold == 0 {
		f.Williams.Oversold = df.Williams.Oversold
	}
}

// GetHTTPTimeout returns the configured HTTP client timeout, falling back to 10s.
func (c *Config) GetHTTPTimeout() time.Duration {
	return parseDurationOr(c.Data.HTTP.Timeout, 10*time.Second)
}

// HistoryStart returns the first date to request so indicators are warm by start_date.
func (c *Config) HistoryStart() time.Time {
	return c.Backtest.StartDate.AddDate(0, 0, -c.Data.WarmupDays)
}

// Summary is the subset of a run configuration echoed back with results.
type Summary struct {
	Symbols         []string `json:"symbols"`
	StartDate       string   `json:"start_date"`
	EndDate         string   `json:"end_date"`
	StrikeMethod    string   `json:"strike_method"`
	ExitStrategy    string   `json:"exit_strategy"`
	InitialCapital  float64  `json:"initial_capital"`
	TrendFilterMode string   `json:"trend_filter_mode"`
}

// Summary returns the result echo of r.
func (r *RunConfig) Summary() Summary {
	return Summary{
		Symbols:         append([]string(nil), r.Symbols...),
		StartDate:       r.StartDate.String(),
		EndDate:         r.EndDate.String(),
		StrikeMethod:    string(r.StrikeMethod),
		ExitStrategy:    string(r.ExitStrategy),
		InitialCapital:  r.InitialCapital,
		TrendFilterMode: string(r.Filters.Trend.Mode),
	}
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Durations resolved from the HTTP block, each with its default fallback.
func (h HTTPConfig) BreakerInterval() time.Duration {
	return parseDurationOr(h.CircuitBreaker.Interval, 60*time.Second)
}

func (h HTTPConfig) BreakerTimeout() time.Duration {
	return parseDurationOr(h.CircuitBreaker.Timeout, 30*time.Second)
}

func (h HTTPConfig) RetryInitialBackoff() time.Duration {
	return parseDurationOr(h.Retry.InitialBackoff, time.Second)
}

func (h HTTPConfig) RetryMaxBackoff() time.Duration {
	return parseDurationOr(h.Retry.MaxBackoff, 30*time.Second)
}
