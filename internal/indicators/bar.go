// Package indicators computes technical indicators over daily OHLCV bars.
//
// Every series function returns a slice the same length as its input, with
// NaN wherever the value is indeterminate (warm-up, zero range, zero volume).
// Stateful indicators are computed as a single forward pass over the whole
// window on every call; nothing is cached between calls.
package indicators

import (
	"math"
	"sort"
	"time"
)

// Bar is one daily OHLCV row.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Window returns the prefix of bars dated on or before date. bars must be in
// chronological order. The result aliases bars.
func Window(bars []Bar, date time.Time) []Bar {
	n := sort.Search(len(bars), func(i int) bool {
		return bars[i].Date.After(date)
	})
	return bars[:n]
}

// Tail returns the last n bars, or all of them when fewer exist.
func Tail(bars []Bar, n int) []Bar {
	if n < 0 {
		n = 0
	}
	if len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}

// LastCloseOnOrBefore returns the most recent close at or before date.
func LastCloseOnOrBefore(bars []Bar, date time.Time) (float64, bool) {
	w := Window(bars, date)
	if len(w) == 0 {
		return 0, false
	}
	return w[len(w)-1].Close, true
}

// CloseOn returns the close for the bar dated exactly on date.
func CloseOn(bars []Bar, date time.Time) (float64, bool) {
	i := sort.Search(len(bars), func(i int) bool {
		return !bars[i].Date.Before(date)
	})
	if i < len(bars) && bars[i].Date.Equal(date) {
		return bars[i].Close, true
	}
	return 0, false
}

// Closes extracts the close column.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Last returns the final element of a series, or NaN when empty.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

// Prev returns the second to last element of a series, or NaN.
func Prev(series []float64) float64 {
	if len(series) < 2 {
		return math.NaN()
	}
	return series[len(series)-2]
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
