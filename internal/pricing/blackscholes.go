// Package pricing implements the Black-Scholes model used to synthesize option
// prices and sensitivities when no historical option chain is available.
package pricing

import (
	"errors"
	"fmt"
	"math"
)

// OptionType identifies the contract side being priced.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// MinTimeToExpiry is the floor applied to time-to-expiry in years.
const MinTimeToExpiry = 0.0001

// ErrInvalidInput is returned for non-positive spot, strike or volatility.
var ErrInvalidInput = errors.New("invalid pricing input")

// Model prices European options at a fixed risk-free rate.
// A Model is built once per run and shared read-only.
type Model struct {
	RiskFreeRate float64
}

// Greeks holds the price and first-order sensitivities of one option.
// Theta is per calendar day and Vega per one volatility point.
type Greeks struct {
	Price float64 `json:"price"`
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// NewModel returns a model using rate as the continuously compounded risk-free rate.
func NewModel(rate float64) Model {
	return Model{RiskFreeRate: rate}
}

// TimeToExpiry converts calendar days to years, clamped to MinTimeToExpiry.
func TimeToExpiry(days int) float64 {
	return math.Max(float64(days)/365.0, MinTimeToExpiry)
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

func validate(spot, strike, sigma float64) error {
	switch {
	case !(spot > 0):
		return fmt.Errorf("%w: spot %.4f must be > 0", ErrInvalidInput, spot)
	case !(strike > 0):
		return fmt.Errorf("%w: strike %.4f must be > 0", ErrInvalidInput, strike)
	case !(sigma > 0):
		return fmt.Errorf("%w: volatility %.4f must be > 0", ErrInvalidInput, sigma)
	}
	return nil
}

// d1d2 assumes validated inputs. t is clamped here so every caller gets the floor.
func (m Model) d1d2(spot, strike, t, sigma float64) (d1, d2, tc float64) {
	tc = math.Max(t, MinTimeToExpiry)
	sqrtT := math.Sqrt(tc)
	d1 = (math.Log(spot/strike) + (m.RiskFreeRate+0.5*sigma*sigma)*tc) / (sigma * sqrtT)
	d2 = d1 - sigma*sqrtT
	return d1, d2, tc
}

// Price returns the Black-Scholes premium.
func (m Model) Price(spot, strike, t, sigma float64, typ OptionType) (float64, error) {
	if err := validate(spot, strike, sigma); err != nil {
		return 0, err
	}
	d1, d2, tc := m.d1d2(spot, strike, t, sigma)
	disc := strike * math.Exp(-m.RiskFreeRate*tc)
	if typ == Put {
		return disc*normCDF(-d2) - spot*normCDF(-d1), nil
	}
	return spot*normCDF(d1) - disc*normCDF(d2), nil
}

// Delta returns N(d1) for calls and N(d1)-1 for puts.
func (m Model) Delta(spot, strike, t, sigma float64, typ OptionType) (float64, error) {
	if err := validate(spot, strike, sigma); err != nil {
		return 0, err
	}
	d1, _, _ := m.d1d2(spot, strike, t, sigma)
	if typ == Put {
		return normCDF(d1) - 1, nil
	}
	return normCDF(d1), nil
}

// Gamma is identical for calls and puts.
func (m Model) Gamma(spot, strike, t, sigma float64) (float64, error) {
	if err := validate(spot, strike, sigma); err != nil {
		return 0, err
	}
	d1, _, tc := m.d1d2(spot, strike, t, sigma)
	return normPDF(d1) / (spot * sigma * math.Sqrt(tc)), nil
}

// Theta returns the daily time decay (annual theta / 365).
func (m Model) Theta(spot, strike, t, sigma float64, typ OptionType) (float64, error) {
	if err := validate(spot, strike, sigma); err != nil {
		return 0, err
	}
	d1, d2, tc := m.d1d2(spot, strike, t, sigma)
	decay := -spot * normPDF(d1) * sigma / (2 * math.Sqrt(tc))
	carry := m.RiskFreeRate * strike * math.Exp(-m.RiskFreeRate*tc)
	if typ == Put {
		return (decay + carry*normCDF(-d2)) / 365, nil
	}
	return (decay - carry*normCDF(d2)) / 365, nil
}

// Vega returns the price change for a one point (1%) move in volatility.
func (m Model) Vega(spot, strike, t, sigma float64) (float64, error) {
	if err := validate(spot, strike, sigma); err != nil {
		return 0, err
	}
	d1, _, tc := m.d1d2(spot, strike, t, sigma)
	return spot * normPDF(d1) * math.Sqrt(tc) / 100, nil
}

// Greeks computes price, delta, gamma, theta and vega in one pass.
func (m Model) Greeks(spot, strike, t, sigma float64, typ OptionType) (Greeks, error) {
	if err := validate(spot, strike, sigma); err != nil {
		return Greeks{}, err
	}
	// validation already done, errors below are impossible
	price, _ := m.Price(spot, strike, t, sigma, typ)
	delta, _ := m.Delta(spot, strike, t, sigma, typ)
	gamma, _ := m.Gamma(spot, strike, t, sigma)
	theta, _ := m.Theta(spot, strike, t, sigma, typ)
	vega, _ := m.Vega(spot, strike, t, sigma)
	return Greeks{Price: price, Delta: delta, Gamma: gamma, Theta: theta, Vega: vega}, nil
}

// CoveredCall is the net exposure of long stock plus one short call per share.
type CoveredCall struct {
	Delta            float64 `json:"delta"`
	Gamma            float64 `json:"gamma"`
	Theta            float64 `json:"theta"`
	Vega             float64 `json:"vega"`
	CallPrice        float64 `json:"call_price"`
	PremiumCollected float64 `json:"premium_collected"`
}

// CoveredCallGreeks returns the position-level Greeks for lot shares long and
// one lot of calls short.
func (m Model) CoveredCallGreeks(spot, strike float64, days int, sigma float64, lot int) (CoveredCall, error) {
	g, err := m.Greeks(spot, strike, TimeToExpiry(days), sigma, Call)
	if err != nil {
		return CoveredCall{}, err
	}
	size := float64(lot)
	return CoveredCall{
		Delta:            (1 - g.Delta) * size,
		Gamma:            -g.Gamma * size,
		Theta:            -g.Theta * size,
		Vega:             -g.Vega * size,
		CallPrice:        g.Price,
		PremiumCollected: g.Price * size,
	}, nil
}
