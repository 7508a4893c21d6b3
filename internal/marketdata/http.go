package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/eddiefleurent/covered_calls/internal/indicators"
)

const defaultHTTPTimeout = 10 * time.Second

// HTTPProvider reads daily bars from a REST history endpoint of the form
// GET {base}/markets/history?symbol=&interval=&start=&end= authenticated with
// a bearer token.
type HTTPProvider struct {
	client  *http.Client
	apiKey  string
	baseURL string
	logger  *log.Logger
}

// NewHTTPProvider creates a provider for baseURL with the default timeout.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  log.New(io.Discard, "", 0),
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (p *HTTPProvider) WithHTTPClient(c *http.Client) *HTTPProvider {
	if c != nil {
		p.client = c
	}
	return p
}

// WithTimeout sets the HTTP client timeout duration.
func (p *HTTPProvider) WithTimeout(timeout time.Duration) *HTTPProvider {
	if timeout > 0 {
		p.client.Timeout = timeout
	}
	return p
}

// WithLogger sets the logger used for rate limit and close diagnostics.
func (p *HTTPProvider) WithLogger(l *log.Logger) *HTTPProvider {
	if l != nil {
		p.logger = l
	}
	return p
}

// Handle single-object vs array responses
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

type historyDay struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// historyWrapper handles the case where history can be null, "null" or an object
type historyWrapper struct {
	Day singleOrArray[historyDay] `json:"day"`
}

func (hw *historyWrapper) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if bytes.Equal(trimmed, []byte(`null`)) || bytes.Equal(trimmed, []byte(`"null"`)) {
		*hw = historyWrapper{}
		return nil
	}
	type normalWrapper historyWrapper
	return json.Unmarshal(b, (*normalWrapper)(hw))
}

// HistoryResponse is the body of the history endpoint.
type HistoryResponse struct {
	History historyWrapper `json:"history"`
}

// interval maps a backtest timeframe to the endpoint's interval parameter.
func interval(timeframe string) string {
	switch strings.ToLower(timeframe) {
	case "", "day", "daily":
		return "daily"
	case "week", "weekly":
		return "weekly"
	case "month", "monthly":
		return "monthly"
	default:
		return timeframe
	}
}

// LoadPrices retrieves historical bars for symbol.
func (p *HTTPProvider) LoadPrices(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]indicators.Bar, error) {
	params := url.Values{}
	params.Add("symbol", symbol)
	params.Add("interval", interval(timeframe))
	params.Add("start", from.Format(time.DateOnly))
	params.Add("end", to.Format(time.DateOnly))
	endpoint := fmt.Sprintf("%s/markets/history?%s", p.baseURL, params.Encode())

	var response HistoryResponse
	if err := p.makeRequest(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("failed to get historical data for %s: %w", symbol, err)
	}

	bars := make([]indicators.Bar, 0, len(response.History.Day))
	for _, day := range response.History.Day {
		date, err := time.Parse(time.DateOnly, day.Date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date %s for %s: %w", day.Date, symbol, err)
		}
		bars = append(bars, indicators.Bar{
			Date:   date,
			Open:   day.Open,
			High:   day.High,
			Low:    day.Low,
			Close:  day.Close,
			Volume: day.Volume,
		})
	}
	if len(bars) == 0 {
		return nil, noData(symbol, from, to)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

func (p *HTTPProvider) makeRequest(ctx context.Context, endpoint string, response interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Add("Authorization", "Bearer "+p.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "covered-calls-backtest/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			p.logger.Printf("Failed to close response body: %v", err)
		}
	}()

	if remaining := resp.Header.Get("X-Ratelimit-Available"); remaining != "" {
		p.logger.Printf("Rate limit remaining: %s", remaining)
	}

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> failed to read error body", endpoint)}
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> %s (retry-after: %s)", endpoint, string(body), ra)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> %s", endpoint, string(body))}
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}
