package quote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// DefaultBaseURL is the Yahoo Finance chart endpoint.
const DefaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// Source looks up the latest price for a ticker symbol.
type Source interface {
	LookupPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
}

var (
	ErrInvalidTicker = errors.New("invalid ticker")
	ErrUnknownTicker = errors.New("unknown ticker")
)

// LookupError reports a failed price lookup for Ticker.
type LookupError struct {
	Ticker string
	Err    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("price lookup failed ticker=%s: %v", e.Ticker, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

var tickerPattern = regexp.MustCompile(`^[A-Z0-9.\-^=]{1,15}$`)

// NormalizeTicker upper-cases raw and checks it looks like a ticker symbol.
func NormalizeTicker(raw string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(raw))
	if !tickerPattern.MatchString(t) {
		return t, &LookupError{Ticker: t, Err: ErrInvalidTicker}
	}
	return t, nil
}

// YahooClient reads prices from the Yahoo Finance chart API.
type YahooClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewYahooClient creates a client for the chart endpoint at baseURL.
func NewYahooClient(baseURL string, timeout time.Duration) *YahooClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &YahooClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// LookupPrice returns the regular market price for ticker.
func (c *YahooClient) LookupPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	symbol, err := NormalizeTicker(ticker)
	if err != nil {
		return decimal.Decimal{}, err
	}
	fail := func(err error) (decimal.Decimal, error) {
		return decimal.Decimal{}, &LookupError{Ticker: symbol, Err: err}
	}

	endpoint := c.baseURL + "/" + url.PathEscape(symbol) + "?interval=1d&range=1d"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fail(fmt.Errorf("failed to create quote request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; investbot)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(fmt.Errorf("quote request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fail(fmt.Errorf("failed reading quote response: %w", err))
	}

	if resp.StatusCode == http.StatusNotFound {
		return fail(ErrUnknownTicker)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fail(fmt.Errorf("quote non-success status=%d body=%s", resp.StatusCode, truncate(string(body), 200)))
	}
	if !gjson.ValidBytes(body) {
		return fail(fmt.Errorf("failed to parse quote response: %s", truncate(string(body), 200)))
	}

	if desc := gjson.GetBytes(body, "chart.error.description"); desc.Exists() && desc.String() != "" {
		return fail(fmt.Errorf("%w: %s", ErrUnknownTicker, desc.String()))
	}
	price := gjson.GetBytes(body, "chart.result.0.meta.regularMarketPrice")
	if !price.Exists() || price.Type != gjson.Number {
		return fail(ErrUnknownTicker)
	}
	value, err := decimal.NewFromString(price.Raw)
	if err != nil {
		return fail(fmt.Errorf("invalid price %q: %w", price.Raw, err))
	}
	return value, nil
}

// FormatPrice renders a lookup result for a chat reply.
func FormatPrice(ticker string, price decimal.Decimal) string {
	return fmt.Sprintf("%s: $%s", ticker, price.StringFixed(2))
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
