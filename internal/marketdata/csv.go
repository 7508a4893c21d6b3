package marketdata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/eddiefleurent/covered_calls/internal/indicators"
)

var csvHeader = []string{"date", "open", "high", "low", "close", "volume"}

// CSVProvider reads <Dir>/<SYMBOL>.csv files with the header
// date,open,high,low,close,volume and dates formatted as YYYY-MM-DD.
type CSVProvider struct {
	Dir string
}

// NewCSVProvider returns a provider rooted at dir.
func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{Dir: dir}
}

// Path returns the file holding symbol's history.
func (p *CSVProvider) Path(symbol string) string {
	return filepath.Join(p.Dir, symbol+".csv")
}

// LoadPrices reads symbol's file and returns the bars between from and to,
// sorted by date. Timeframes other than daily are not supported.
func (p *CSVProvider) LoadPrices(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]indicators.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if iv := interval(timeframe); iv != "daily" {
		return nil, fmt.Errorf("csv provider: unsupported timeframe %q", timeframe)
	}

	f, err := os.Open(p.Path(symbol))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, noData(symbol, from, to)
		}
		return nil, fmt.Errorf("failed to open price file for %s: %w", symbol, err)
	}
	defer func() { _ = f.Close() }()

	all, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read price file for %s: %w", symbol, err)
	}

	bars := all[:0]
	for _, b := range all {
		if b.Date.Before(from) || b.Date.After(to) {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 {
		return nil, noData(symbol, from, to)
	}
	return bars, nil
}

// ReadCSV parses bars from r. Columns are matched by header name, so extra
// columns are ignored. The result is sorted by date.
func ReadCSV(r io.Reader) ([]indicators.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range csvHeader {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var bars []indicators.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		bar, err := parseRecord(rec, col)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

func parseRecord(rec []string, col map[string]int) (indicators.Bar, error) {
	var bar indicators.Bar
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(rec[col["date"]]))
	if err != nil {
		return bar, fmt.Errorf("invalid date: %w", err)
	}
	bar.Date = date

	fields := []struct {
		name string
		dst  *float64
	}{
		{"open", &bar.Open},
		{"high", &bar.High},
		{"low", &bar.Low},
		{"close", &bar.Close},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[col[f.name]]), 64)
		if err != nil {
			return bar, fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.dst = v
	}

	vol := strings.TrimSpace(rec[col["volume"]])
	if vol != "" {
		v, err := strconv.ParseFloat(vol, 64)
		if err != nil {
			return bar, fmt.Errorf("invalid volume: %w", err)
		}
		bar.Volume = int64(v)
	}
	return bar, nil
}

// WriteCSV writes bars with the header ReadCSV expects.
func WriteCSV(w io.Writer, bars []indicators.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, b := range bars {
		rec := []string{
			b.Date.Format(time.DateOnly),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatInt(b.Volume, 10),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Save writes symbol's bars to the provider directory atomically.
func (p *CSVProvider) Save(symbol string, bars []indicators.Bar) error {
	if err := os.MkdirAll(p.Dir, 0o750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	path := p.Path(symbol)
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if err := WriteCSV(f, bars); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", symbol, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
