// Package eodhd is a REST client for the EOD Historical Data market-data
// API: intraday and end-of-day bars, real-time quotes, pre-computed
// technical indicators and symbol search.
//
// Every call runs under its own timeout and a shared request-rate limiter.
// Transport errors and non-2xx responses are reported as model.ErrUpstream.
package eodhd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketlens/internal/marketdata/normalize"
	"marketlens/internal/model"
	"marketlens/internal/symbol"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// Per-endpoint timeouts.
const (
	HistoryTimeout   = 20 * time.Second
	QuoteTimeout     = 10 * time.Second
	TechnicalTimeout = 15 * time.Second
	SearchTimeout    = 10 * time.Second
)

// maxBody caps how much of a response is read.
const maxBody = 32 << 20

// Config configures the client.
type Config struct {
	BaseURL    string  // default https://eodhd.com
	Token      string  // api_token
	RatePerSec float64 // default 5
	Burst      int     // default 5
	UserAgent  string

	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://eodhd.com"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	if c.UserAgent == "" {
		c.UserAgent = "marketlens/1.0"
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
}

// Client talks to the EODHD REST API. Safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter

	// OnRequest is called after every request with the endpoint name,
	// latency and outcome (optional).
	OnRequest func(endpoint string, d time.Duration, err error)
}

// New creates a client. An empty token is a validation error.
func New(cfg Config) (*Client, error) {
	cfg.defaults()
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: eodhd api token is required", model.ErrValidation)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: base url: %v", model.ErrValidation, err)
	}
	return &Client{
		cfg:     cfg,
		http:    cfg.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
	}, nil
}

// get issues one GET under timeout and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, endpoint string, timeout time.Duration, path string, q url.Values) (body []byte, err error) {
	start := time.Now()
	defer func() {
		if c.OnRequest != nil {
			c.OnRequest(endpoint, time.Since(start), err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s rate wait: %v", model.ErrUpstream, endpoint, err)
	}

	if q == nil {
		q = url.Values{}
	}
	q.Set("api_token", c.cfg.Token)
	q.Set("fmt", "json")
	u := c.cfg.BaseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrUpstream, endpoint, redact(err, c.cfg.Token))
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %s read body: %v", model.ErrUpstream, endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s: status %d", model.ErrUpstream, endpoint, resp.StatusCode)
	}
	return body, nil
}

// redact keeps the api token out of logged url.Error messages.
func redact(err error, token string) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return errors.New(strings.ReplaceAll(ue.Error(), token, "***"))
	}
	return err
}

// Intraday resolutions; anything else is treated as an EOD period.
var intraday = map[string]bool{"1m": true, "5m": true, "1h": true}

// Bars fetches raw bar records. resolution is 1m, 5m or 1h for intraday
// data, or d, w, m for end-of-day periods.
func (c *Client) Bars(ctx context.Context, sym, resolution string, from, to time.Time) ([]gjson.Result, error) {
	q := url.Values{}
	var path, endpoint string
	if intraday[resolution] {
		endpoint = "intraday"
		path = "/api/intraday/" + url.PathEscape(sym)
		q.Set("interval", resolution)
		q.Set("from", strconv.FormatInt(from.Unix(), 10))
		q.Set("to", strconv.FormatInt(to.Unix(), 10))
	} else {
		switch resolution {
		case "d", "w", "m":
		default:
			return nil, fmt.Errorf("%w: unsupported resolution %q", model.ErrValidation, resolution)
		}
		endpoint = "eod"
		path = "/api/eod/" + url.PathEscape(sym)
		q.Set("period", resolution)
		q.Set("from", from.UTC().Format("2006-01-02"))
		q.Set("to", to.UTC().Format("2006-01-02"))
	}

	body, err := c.get(ctx, endpoint, HistoryTimeout, path, q)
	if err != nil {
		return nil, err
	}
	return normalize.Records(body)
}

// Quote fields in preference order.
var (
	quotePriceFields = []string{"close", "price", "ask", "bid"}
	quoteTimeFields  = []string{"timestamp", "last_trade_time"}
)

// Quote fetches the real-time snapshot quote.
func (c *Client) Quote(ctx context.Context, sym string) (model.Quote, error) {
	body, err := c.get(ctx, "real-time", QuoteTimeout, "/api/real-time/"+url.PathEscape(sym), nil)
	if err != nil {
		return model.Quote{}, err
	}
	return ParseQuote(sym, body)
}

// ParseQuote extracts a quote from a real-time payload. A payload whose
// price fields are all missing or non-positive is ErrNoData.
func ParseQuote(sym string, body []byte) (model.Quote, error) {
	if !gjson.ValidBytes(body) {
		return model.Quote{}, fmt.Errorf("%w: malformed quote payload", model.ErrUpstream)
	}
	rec := gjson.ParseBytes(body)
	if rec.IsArray() {
		arr := rec.Array()
		if len(arr) == 0 {
			return model.Quote{}, fmt.Errorf("%w: empty quote for %s", model.ErrNoData, sym)
		}
		rec = arr[0]
	}

	price, ok := normalize.FirstPositive(rec, quotePriceFields)
	if !ok {
		return model.Quote{}, fmt.Errorf("%w: no price in quote for %s", model.ErrNoData, sym)
	}

	q := model.Quote{Symbol: sym, Price: price}
	if v, ok := normalize.FirstPositive(rec, quoteTimeFields); ok {
		q.Time = normalize.EpochSeconds(v)
	}
	q.Open, _ = normalize.FirstPositive(rec, normalize.OpenFields)
	q.High, _ = normalize.FirstPositive(rec, normalize.HighFields)
	q.Low, _ = normalize.FirstPositive(rec, normalize.LowFields)
	q.Close, _ = normalize.FirstPositive(rec, normalize.CloseFields)
	if v := normalize.Number(rec, normalize.VolumeFields); v > 0 {
		q.Volume = v
	}
	return q, nil
}

// Technical fetches one pre-computed indicator series and returns the
// parsed payload root.
func (c *Client) Technical(ctx context.Context, sym string, tq model.TechnicalQuery) (gjson.Result, error) {
	if tq.Function == "" {
		return gjson.Result{}, fmt.Errorf("%w: technical function is required", model.ErrValidation)
	}
	q := url.Values{}
	q.Set("function", tq.Function)
	q.Set("order", "d")
	if !tq.From.IsZero() {
		q.Set("from", tq.From.UTC().Format("2006-01-02"))
	}
	if !tq.To.IsZero() {
		q.Set("to", tq.To.UTC().Format("2006-01-02"))
	}
	if tq.Period > 0 {
		q.Set("period", strconv.Itoa(tq.Period))
	}
	if tq.Fast > 0 {
		q.Set("fast_period", strconv.Itoa(tq.Fast))
	}
	if tq.Slow > 0 {
		q.Set("slow_period", strconv.Itoa(tq.Slow))
	}
	if tq.Signal > 0 {
		q.Set("signal_period", strconv.Itoa(tq.Signal))
	}
	if tq.Filter != "" {
		q.Set("filter", tq.Filter)
	}

	body, err := c.get(ctx, "technical-"+tq.Function, TechnicalTimeout, "/api/technical/"+url.PathEscape(sym), q)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w: malformed technical payload", model.ErrUpstream)
	}
	return gjson.ParseBytes(body), nil
}

// Search queries symbol search. Implements symbol.Searcher.
func (c *Client) Search(ctx context.Context, query, assetType, exchange string) ([]symbol.Hit, error) {
	q := url.Values{}
	if assetType != "" {
		q.Set("type", assetType)
	}
	if exchange != "" {
		q.Set("exchange", exchange)
	}
	q.Set("limit", "5")

	body, err := c.get(ctx, "search", SearchTimeout, "/api/search/"+url.PathEscape(query), q)
	if err != nil {
		return nil, err
	}
	return ParseSearch(body)
}

// ParseSearch decodes a search response into hits.
func ParseSearch(body []byte) ([]symbol.Hit, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: malformed search payload", model.ErrUpstream)
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: search payload is not an array", model.ErrUpstream)
	}
	var hits []symbol.Hit
	root.ForEach(func(_, v gjson.Result) bool {
		hits = append(hits, symbol.Hit{
			Code:      v.Get("Code").String(),
			Exchange:  v.Get("Exchange").String(),
			Name:      v.Get("Name").String(),
			Type:      v.Get("Type").String(),
			IsPrimary: v.Get("isPrimary").Bool(),
		})
		return true
	})
	return hits, nil
}
