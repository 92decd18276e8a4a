package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmaas/ivcrush/internal/gateway"
	"github.com/dmaas/ivcrush/pkg/httputil"
	"github.com/dmaas/ivcrush/pkg/logger"
	"github.com/dmaas/ivcrush/pkg/redis"
)

const dateLayout = "2006-01-02"

// Client is the HTTP implementation of Provider. Every request goes
// through the resilient gateway; responses that survive one scan cycle
// (chains, expirations, bars) are cached in Redis when enabled.
type Client struct {
	baseURL string
	http    *httputil.Client
	gateway *gateway.Gateway
	cache   *redis.Cache
	limiter *rate.Limiter
	logger  *logger.Logger
}

// NewClient creates a market-data client. The limiter keeps the scan
// fan-out inside the provider's rate limits.
func NewClient(baseURL string, httpClient *httputil.Client, gw *gateway.Gateway, cache *redis.Cache, log *logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		gateway: gw,
		cache:   cache,
		limiter: rate.NewLimiter(rate.Limit(10), 10),
		logger:  log.WithField("component", "marketdata"),
	}
}

type expirationsResponse struct {
	Expirations []string `json:"expirations"`
}

// Expirations implements Provider.
func (c *Client) Expirations(ctx context.Context, ticker string) ([]time.Time, error) {
	if c.cache != nil {
		var cached []time.Time
		if found, _ := c.cache.Get(ctx, redis.ExpirationsKey(ticker), &cached); found {
			return cached, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/markets/options/expirations?symbol=%s", c.baseURL, url.QueryEscape(ticker))

	var resp expirationsResponse
	err := c.gateway.Call(ctx, "expirations", func(ctx context.Context) error {
		return c.http.GetJSON(ctx, endpoint, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch expirations for %s: %w", ticker, err)
	}

	dates := make([]time.Time, 0, len(resp.Expirations))
	for _, raw := range resp.Expirations {
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			return nil, &httputil.DecodeError{Err: fmt.Errorf("expiration %q: %w", raw, err)}
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	if c.cache != nil {
		_ = c.cache.Set(ctx, redis.ExpirationsKey(ticker), dates, redis.TTLExpirations)
	}
	return dates, nil
}

type chainQuote struct {
	Symbol     string  `json:"symbol"`
	Strike     float64 `json:"strike"`
	Bid        float64 `json:"bid"`
	Ask        float64 `json:"ask"`
	Last       float64 `json:"last"`
	ImpliedVol float64 `json:"implied_volatility"`
}

type chainResponse struct {
	Calls []chainQuote `json:"calls"`
	Puts  []chainQuote `json:"puts"`
}

// Chain implements Provider.
func (c *Client) Chain(ctx context.Context, ticker string, expiry time.Time) (*Chain, error) {
	key := redis.ChainKey(ticker, expiry.Format(dateLayout))
	if c.cache != nil {
		var cached Chain
		if found, _ := c.cache.Get(ctx, key, &cached); found {
			return &cached, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/markets/options/chain?symbol=%s&expiration=%s",
		c.baseURL, url.QueryEscape(ticker), expiry.Format(dateLayout))

	var resp chainResponse
	err := c.gateway.Call(ctx, "chain", func(ctx context.Context) error {
		return c.http.GetJSON(ctx, endpoint, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch chain for %s %s: %w", ticker, expiry.Format(dateLayout), err)
	}

	chain := &Chain{
		Ticker: ticker,
		Expiry: expiry,
		Calls:  convertQuotes(resp.Calls, expiry),
		Puts:   convertQuotes(resp.Puts, expiry),
	}

	if c.cache != nil {
		_ = c.cache.Set(ctx, key, chain, redis.TTLChain)
	}
	return chain, nil
}

func convertQuotes(quotes []chainQuote, expiry time.Time) []OptionQuote {
	out := make([]OptionQuote, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, OptionQuote{
			Symbol:     q.Symbol,
			Strike:     q.Strike,
			Expiry:     expiry,
			Bid:        q.Bid,
			Ask:        q.Ask,
			LastPrice:  q.Last,
			ImpliedVol: q.ImpliedVol,
		})
	}
	return out
}

type barsResponse struct {
	Bars []struct {
		Date   string  `json:"date"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume int64   `json:"volume"`
	} `json:"bars"`
}

// DailyBars implements Provider.
func (c *Client) DailyBars(ctx context.Context, ticker string, months int) ([]Bar, error) {
	if c.cache != nil {
		var cached []Bar
		if found, _ := c.cache.Get(ctx, redis.BarsKey(ticker), &cached); found {
			return cached, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/markets/history/daily?symbol=%s&months=%d",
		c.baseURL, url.QueryEscape(ticker), months)

	var resp barsResponse
	err := c.gateway.Call(ctx, "daily_bars", func(ctx context.Context) error {
		return c.http.GetJSON(ctx, endpoint, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch daily bars for %s: %w", ticker, err)
	}

	bars := make([]Bar, 0, len(resp.Bars))
	for _, b := range resp.Bars {
		d, err := time.Parse(dateLayout, b.Date)
		if err != nil {
			return nil, &httputil.DecodeError{Err: fmt.Errorf("bar date %q: %w", b.Date, err)}
		}
		bars = append(bars, Bar{
			Date:   d,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	if c.cache != nil {
		_ = c.cache.Set(ctx, redis.BarsKey(ticker), bars, redis.TTLBars)
	}
	return bars, nil
}

type earningsResponse struct {
	Earnings []struct {
		Timestamp time.Time `json:"timestamp"`
	} `json:"earnings"`
}

// EarningsTimestamps implements Provider.
func (c *Client) EarningsTimestamps(ctx context.Context, ticker string) ([]time.Time, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/markets/calendar/earnings?symbol=%s", c.baseURL, url.QueryEscape(ticker))

	var resp earningsResponse
	err := c.gateway.Call(ctx, "earnings", func(ctx context.Context) error {
		return c.http.GetJSON(ctx, endpoint, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch earnings for %s: %w", ticker, err)
	}

	out := make([]time.Time, 0, len(resp.Earnings))
	for _, e := range resp.Earnings {
		out = append(out, e.Timestamp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

type lastPriceResponse struct {
	Price float64 `json:"price"`
}

// LastPrice implements Provider.
func (c *Client) LastPrice(ctx context.Context, ticker string) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	endpoint := fmt.Sprintf("%s/v1/markets/quotes/last?symbol=%s", c.baseURL, url.QueryEscape(ticker))

	var resp lastPriceResponse
	err := c.gateway.Call(ctx, "last_price", func(ctx context.Context) error {
		return c.http.GetJSON(ctx, endpoint, &resp)
	})
	if err != nil {
		return 0, fmt.Errorf("fetch last price for %s: %w", ticker, err)
	}
	if resp.Price <= 0 {
		return 0, fmt.Errorf("no market price found for %s", ticker)
	}
	return resp.Price, nil
}
