// Package sweep runs a backtest for every combination of strike method, exit
// strategy, entry filter set and exit parameter set, and ranks the results.
package sweep

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/eddiefleurent/covered_calls/internal/config"
	"github.com/eddiefleurent/covered_calls/internal/indicators"
)

// Filter names accepted in FilterSet.Enable.
const (
	FilterRSI        = "rsi"
	FilterStochastic = "stochastic"
	FilterSupertrend = "supertrend"
	FilterVWAP       = "vwap"
	FilterADX        = "adx"
	FilterBollinger  = "bollinger"
	FilterMACD       = "macd"
	FilterWilliams   = "williams"
)

// FilterSet is a named combination of entry filters applied on top of the
// base configuration's filter parameters.
type FilterSet struct {
	Name         string               `yaml:"name"`
	Trend        indicators.TrendMode `yaml:"trend,omitempty"`
	Enable       []string             `yaml:"enable,omitempty"`
	RSIMin       *float64             `yaml:"rsi_min,omitempty"`
	RSIMax       *float64             `yaml:"rsi_max,omitempty"`
	ADXThreshold *float64             `yaml:"adx_threshold,omitempty"`
	MACDMode     config.MACDMode      `yaml:"macd_mode,omitempty"`
	VWAPMode     config.VWAPMode      `yaml:"vwap_mode,omitempty"`
}

// Apply returns base with this set's filters switched on and every other
// filter switched off.
func (fs FilterSet) Apply(base config.FilterConfig) (config.FilterConfig, error) {
	f := base
	f.Trend = config.TrendFilterConfig{Mode: indicators.TrendNone}
	if fs.Trend != "" {
		f.Trend.Mode = fs.Trend
	}
	f.RSI.Enabled = false
	f.Stochastic.Enabled = false
	f.Supertrend.Enabled = false
	f.VWAP.Enabled = false
	f.ADX.Enabled = false
	f.Bollinger.Enabled = false
	f.MACD.Enabled = false
	f.Williams.Enabled = false

	for _, name := range fs.Enable {
		switch strings.ToLower(name) {
		case FilterRSI:
			f.RSI.Enabled = true
		case FilterStochastic:
			f.Stochastic.Enabled = true
		case FilterSupertrend:
			f.Supertrend.Enabled = true
		case FilterVWAP:
			f.VWAP.Enabled = true
		case FilterADX:
			f.ADX.Enabled = true
		case FilterBollinger:
			f.Bollinger.Enabled = true
		case FilterMACD:
			f.MACD.Enabled = true
		case FilterWilliams:
			f.Williams.Enabled = true
		default:
			return f, fmt.Errorf("filter set %q: unknown filter %q", fs.Name, name)
		}
	}

	if fs.RSIMin != nil {
		f.RSI.Min = *fs.RSIMin
	}
	if fs.RSIMax != nil {
		f.RSI.Max = *fs.RSIMax
	}
	if fs.ADXThreshold != nil {
		f.ADX.Threshold = *fs.ADXThreshold
	}
	if fs.MACDMode != "" {
		f.MACD.Mode = fs.MACDMode
	}
	if fs.VWAPMode != "" {
		f.VWAP.Mode = fs.VWAPMode
	}
	return f, nil
}

// ExitSet is a named set of exit parameters.
type ExitSet struct {
	Name              string  `yaml:"name"`
	ProfitTargetPct   float64 `yaml:"profit_target_pct"`
	StopLossMultiple  float64 `yaml:"stop_loss_multiple"`
	AllowSLAdjustment bool    `yaml:"allow_sl_adjustment,omitempty"`
	DTEExit           bool    `yaml:"dte_exit,omitempty"`
	DTEThreshold      int     `yaml:"dte_threshold,omitempty"`
	TrailingStop      bool    `yaml:"trailing_stop,omitempty"`
}

// advanced reports whether the set enables exits that run under HOLD_TO_EXPIRY.
func (es ExitSet) advanced() bool {
	return es.DTEExit || es.TrailingStop
}

// Apply returns base with this set's parameters.
func (es ExitSet) Apply(base config.ExitConfig) config.ExitConfig {
	e := base
	e.ProfitTargetPct = es.ProfitTargetPct
	e.StopLossMultiple = es.StopLossMultiple
	e.AllowSLAdjustment = es.AllowSLAdjustment
	e.DTE.Enabled = es.DTEExit
	if es.DTEThreshold > 0 {
		e.DTE.Threshold = es.DTEThreshold
	}
	e.TrailingStop.Enabled = es.TrailingStop
	return e
}

// Grid is the search space.
type Grid struct {
	StrikeMethods  []config.StrikeMethod `yaml:"strike_methods"`
	ExitStrategies []config.ExitStrategy `yaml:"exit_strategies"`
	FilterSets     []FilterSet           `yaml:"filter_sets"`
	ExitSets       []ExitSet             `yaml:"exit_sets"`
}

func ptr(v float64) *float64 { return &v }

// DefaultGrid is the standard search space: eight strike methods, four exit
// strategies, 27 filter sets and seven exit parameter sets.
func DefaultGrid() Grid {
	bullish := indicators.TrendBullish
	return Grid{
		StrikeMethods: []config.StrikeMethod{
			config.StrikeDelta30, config.StrikeDelta40, config.StrikeOTM2Pct, config.StrikeOTM5Pct,
			config.StrikeATRBased, config.StrikeAdaptiveDelta, config.StrikeBollingerUpper, config.StrikePivotR1,
		},
		ExitStrategies: append([]config.ExitStrategy(nil), config.ExitStrategies...),
		FilterSets: []FilterSet{
			{Name: "No Filter"},

			{Name: "Bullish EMA", Trend: bullish},
			{Name: "Bullish Aligned EMA", Trend: indicators.TrendBullishAligned},
			{Name: "Golden Cross", Trend: indicators.TrendGoldenCross},
			{Name: "RSI 40-70", Enable: []string{FilterRSI}, RSIMin: ptr(40), RSIMax: ptr(70)},
			{Name: "RSI 30-60", Enable: []string{FilterRSI}, RSIMin: ptr(30), RSIMax: ptr(60)},
			{Name: "Supertrend", Enable: []string{FilterSupertrend}},
			{Name: "MACD Bullish", Enable: []string{FilterMACD}, MACDMode: config.MACDBullish},
			{Name: "ADX Strong Trend", Enable: []string{FilterADX}, ADXThreshold: ptr(25)},
			{Name: "ADX Weak Trend", Enable: []string{FilterADX}, ADXThreshold: ptr(20)},
			{Name: "Bollinger Not OB", Enable: []string{FilterBollinger}},
			{Name: "VWAP Above", Enable: []string{FilterVWAP}, VWAPMode: config.VWAPAbove},
			{Name: "Stochastic OB", Enable: []string{FilterStochastic}},
			{Name: "Williams %R", Enable: []string{FilterWilliams}},

			{Name: "EMA+RSI", Trend: bullish, Enable: []string{FilterRSI}},
			{Name: "EMA+Supertrend", Trend: bullish, Enable: []string{FilterSupertrend}},
			{Name: "EMA+MACD", Trend: bullish, Enable: []string{FilterMACD}},
			{Name: "RSI+Supertrend", Enable: []string{FilterRSI, FilterSupertrend}},
			{Name: "RSI+MACD", Enable: []string{FilterRSI, FilterMACD}},
			{Name: "ADX+MACD", Enable: []string{FilterADX, FilterMACD}},
			{Name: "Bollinger+RSI", Enable: []string{FilterBollinger, FilterRSI}},
			{Name: "VWAP+RSI", Enable: []string{FilterVWAP, FilterRSI}},
			{Name: "Supertrend+ADX", Enable: []string{FilterSupertrend, FilterADX}},

			{Name: "EMA+RSI+Supertrend", Trend: bullish, Enable: []string{FilterRSI, FilterSupertrend}},
			{Name: "EMA+RSI+MACD", Trend: bullish, Enable: []string{FilterRSI, FilterMACD}},
			{Name: "ADX+RSI+MACD", Enable: []string{FilterADX, FilterRSI, FilterMACD}},
			{Name: "Supertrend+RSI+Bollinger", Enable: []string{FilterSupertrend, FilterRSI, FilterBollinger}},
		},
		ExitSets: []ExitSet{
			{Name: "PT50_SL2", ProfitTargetPct: 50, StopLossMultiple: 2.0},
			{Name: "PT40_SL2", ProfitTargetPct: 40, StopLossMultiple: 2.0},
			{Name: "PT60_SL2", ProfitTargetPct: 60, StopLossMultiple: 2.0},
			{Name: "PT50_SL1.5", ProfitTargetPct: 50, StopLossMultiple: 1.5},
			{Name: "PT50_SL2_ROLL", ProfitTargetPct: 50, StopLossMultiple: 2.0, AllowSLAdjustment: true},
			{Name: "PT50_SL2_DTE7", ProfitTargetPct: 50, StopLossMultiple: 2.0, DTEExit: true, DTEThreshold: 7},
			{Name: "PT50_SL2_TRAIL", ProfitTargetPct: 50, StopLossMultiple: 2.0, TrailingStop: true},
		},
	}
}

// LoadGrid reads a YAML grid file. Sections left out keep DefaultGrid values.
func LoadGrid(path string) (Grid, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- grid path is a user-provided file
	if err != nil {
		return Grid{}, fmt.Errorf("reading grid file: %w", err)
	}

	var g Grid
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
	dec.KnownFields(true)
	if err := dec.Decode(&g); err != nil {
		return Grid{}, fmt.Errorf("parsing grid: %w", err)
	}

	def := DefaultGrid()
	if len(g.StrikeMethods) == 0 {
		g.StrikeMethods = def.StrikeMethods
	}
	if len(g.ExitStrategies) == 0 {
		g.ExitStrategies = def.ExitStrategies
	}
	if len(g.FilterSets) == 0 {
		g.FilterSets = def.FilterSets
	}
	if len(g.ExitSets) == 0 {
		g.ExitSets = def.ExitSets
	}
	return g, g.Validate()
}

// Validate checks every enum in the grid.
func (g Grid) Validate() error {
	for i, m := range g.StrikeMethods {
		if !m.Valid() {
			return fmt.Errorf("strike_methods[%d]: unknown strike method %q", i, m)
		}
	}
	for i, s := range g.ExitStrategies {
		if !s.Valid() {
			return fmt.Errorf("exit_strategies[%d]: unknown exit strategy %q", i, s)
		}
	}
	for i, fs := range g.FilterSets {
		if fs.Name == "" {
			return fmt.Errorf("filter_sets[%d]: name is required", i)
		}
		if _, err := fs.Apply(config.FilterConfig{}); err != nil {
			return fmt.Errorf("filter_sets[%d]: %w", i, err)
		}
	}
	for i, es := range g.ExitSets {
		if es.Name == "" {
			return fmt.Errorf("exit_sets[%d]: name is required", i)
		}
		if es.ProfitTargetPct <= 0 || es.StopLossMultiple <= 0 {
			return fmt.Errorf("exit_sets[%d]: profit_target_pct and stop_loss_multiple must be positive", i)
		}
	}
	return nil
}

// Candidate is one configuration to backtest.
type Candidate struct {
	ID        int
	Name      string
	FilterSet string
	ExitSet   string
	Config    config.RunConfig
}

// Expand builds every candidate in the grid on top of base. HOLD_TO_EXPIRY is
// not paired with exit sets that close early regardless of strategy.
func (g Grid) Expand(base config.RunConfig) ([]Candidate, error) {
	var out []Candidate
	for _, method := range g.StrikeMethods {
		for _, exit := range g.ExitStrategies {
			for _, fs := range g.FilterSets {
				filters, err := fs.Apply(base.Filters)
				if err != nil {
					return nil, err
				}
				for _, es := range g.ExitSets {
					if exit == config.ExitHoldToExpiry && es.advanced() {
						continue
					}
					cfg := base
					cfg.Symbols = append([]string(nil), base.Symbols...)
					cfg.StrikeMethod = method
					cfg.ExitStrategy = exit
					cfg.Filters = filters
					cfg.Exit = es.Apply(base.Exit)
					cfg.Name = fmt.Sprintf("%s_%s_%s", method, fs.Name, exit)

					out = append(out, Candidate{
						ID:        len(out),
						Name:      cfg.Name,
						FilterSet: fs.Name,
						ExitSet:   es.Name,
						Config:    cfg,
					})
				}
			}
		}
	}
	return out, nil
}

// Sample returns n candidates drawn without replacement using seed. n <= 0 or
// n >= len(cands) returns cands unchanged.
func Sample(cands []Candidate, n int, seed int64) []Candidate {
	if n <= 0 || n >= len(cands) {
		return cands
	}
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	perm := rng.Perm(len(cands))
	out := make([]Candidate, n)
	for i := 0; i < n; i++ {
		out[i] = cands[perm[i]]
	}
	return out
}
