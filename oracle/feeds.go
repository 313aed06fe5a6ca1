package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type FeedOption func(*feedOptions)

type feedOptions struct {
	client *http.Client
	apiKey string
}

func WithHTTPClient(client *http.Client) FeedOption {
	return func(o *feedOptions) {
		o.client = client
	}
}

func WithAPIKey(key string) FeedOption {
	return func(o *feedOptions) {
		o.apiKey = key
	}
}

func newFeedOptions(options []FeedOption) feedOptions {
	opts := feedOptions{client: &http.Client{Timeout: 10 * time.Second}}
	for _, option := range options {
		option(&opts)
	}

	return opts
}

// HTTPFeed speaks the generic feed contract:
// GET /rate?from=ETH&to=NEAR -> {"pair":"ETH/NEAR","rate":"512.3","timestamp":1700000000}
type HTTPFeed struct {
	name    string
	baseURL string
	opts    feedOptions
}

var _ Feed = (*HTTPFeed)(nil)

func NewHTTPFeed(name, baseURL string, options ...FeedOption) *HTTPFeed {
	return &HTTPFeed{name: name, baseURL: strings.TrimSuffix(baseURL, "/"), opts: newFeedOptions(options)}
}

type rateResponse struct {
	Pair      string          `json:"pair"`
	Rate      decimal.Decimal `json:"rate"`
	Timestamp int64           `json:"timestamp"`
}

func (f *HTTPFeed) Name() string {
	return f.name
}

func (f *HTTPFeed) FetchRate(ctx context.Context, from, to string) (decimal.Decimal, time.Time, error) {
	query := url.Values{}
	query.Set("from", from)
	query.Set("to", to)

	var resp rateResponse
	if err := getJSON(ctx, f.opts, f.baseURL+"/rate?"+query.Encode(), nil, &resp); err != nil {
		return decimal.Zero, time.Time{}, err
	}

	var observedAt time.Time
	if resp.Timestamp > 0 {
		observedAt = time.Unix(resp.Timestamp, 0)
	}

	return resp.Rate, observedAt, nil
}

const CoinGeckoURL = "https://api.coingecko.com/api/v3"

var coinGeckoIDs = map[string]string{
	"ETH":  "ethereum",
	"NEAR": "near",
	"BTC":  "bitcoin",
}

// CoinGeckoFeed derives cross rates from CoinGecko USD prices.
type CoinGeckoFeed struct {
	baseURL string
	opts    feedOptions
}

var _ Feed = (*CoinGeckoFeed)(nil)

func NewCoinGeckoFeed(baseURL string, options ...FeedOption) *CoinGeckoFeed {
	if baseURL == "" {
		baseURL = CoinGeckoURL
	}

	return &CoinGeckoFeed{baseURL: strings.TrimSuffix(baseURL, "/"), opts: newFeedOptions(options)}
}

type coinGeckoPrice struct {
	USD           decimal.Decimal `json:"usd"`
	LastUpdatedAt int64           `json:"last_updated_at"`
}

func (f *CoinGeckoFeed) Name() string {
	return "coingecko"
}

func (f *CoinGeckoFeed) FetchRate(ctx context.Context, from, to string) (decimal.Decimal, time.Time, error) {
	var ids []string
	for _, symbol := range []string{from, to} {
		if symbol == "USD" {
			continue
		}
		id, ok := coinGeckoIDs[symbol]
		if !ok {
			return decimal.Zero, time.Time{}, fmt.Errorf("%w: unknown asset %s", ErrNoRate, symbol)
		}
		ids = append(ids, id)
	}

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", "usd")
	query.Set("include_last_updated_at", "true")

	headers := map[string]string{}
	if f.opts.apiKey != "" {
		headers["x-cg-pro-api-key"] = f.opts.apiKey
	}

	prices := map[string]coinGeckoPrice{}
	if err := getJSON(ctx, f.opts, f.baseURL+"/simple/price?"+query.Encode(), headers, &prices); err != nil {
		return decimal.Zero, time.Time{}, err
	}

	fromUSD, fromTS, err := usdPrice(prices, from)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	toUSD, toTS, err := usdPrice(prices, to)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}

	// The pair is only as fresh as its oldest leg
	observedAt := fromTS
	if toTS.Before(observedAt) {
		observedAt = toTS
	}

	return fromUSD.DivRound(toUSD, fallbackPrecision), observedAt, nil
}

func usdPrice(prices map[string]coinGeckoPrice, symbol string) (decimal.Decimal, time.Time, error) {
	if symbol == "USD" {
		return decimal.NewFromInt(1), time.Now(), nil
	}
	price, ok := prices[coinGeckoIDs[symbol]]
	if !ok || !price.USD.IsPositive() {
		return decimal.Zero, time.Time{}, fmt.Errorf("%w: no USD price for %s", ErrNoRate, symbol)
	}

	return price.USD, time.Unix(price.LastUpdatedAt, 0), nil
}

func getJSON(ctx context.Context, opts feedOptions, target string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if opts.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+opts.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := opts.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", ErrThrottled, resp.Header.Get("Retry-After"))
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return fmt.Errorf("unexpected status code: %d: %w, err: %s", resp.StatusCode, ErrUnexpectedStatus, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode feed response: %w", err)
	}

	return nil
}
