package broker

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/dmaas/ivcrush/internal/gateway"
	"github.com/dmaas/ivcrush/pkg/httputil"
	"github.com/dmaas/ivcrush/pkg/logger"
)

// Client talks to the brokerage REST API. Trading endpoints live on the
// base URL; latest-trade lookups use the separate data host. Every call
// goes through the resilient gateway.
type Client struct {
	baseURL     string
	dataBaseURL string
	http        *httputil.Client
	gateway     *gateway.Gateway
	logger      *logger.Logger
}

// NewClient creates a brokerage client authenticated with key/secret
// headers.
func NewClient(baseURL, dataBaseURL, apiKey, apiSecret string, httpClient *httputil.Client, gw *gateway.Gateway, log *logger.Logger) *Client {
	httpClient.WithHeaders(map[string]string{
		"APCA-API-KEY-ID":     apiKey,
		"APCA-API-SECRET-KEY": apiSecret,
	})
	return &Client{
		baseURL:     baseURL,
		dataBaseURL: dataBaseURL,
		http:        httpClient,
		gateway:     gw,
		logger:      log.WithField("component", "broker"),
	}
}

// SubmitOrder submits a multi-leg order and returns the confirmation.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	endpoint := c.baseURL + "/v2/orders"

	var result OrderResult
	err := c.gateway.Call(ctx, "submit_order", func(ctx context.Context) error {
		return c.http.PostJSON(ctx, endpoint, req, &result)
	})
	if err != nil {
		return nil, fmt.Errorf("submit order: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"order_id": result.ID,
		"status":   result.Status,
		"legs":     len(result.Legs),
	}).Info("order submitted")
	return &result, nil
}

// Positions returns all open positions on the account.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	endpoint := c.baseURL + "/v2/positions"

	var positions []Position
	err := c.gateway.Call(ctx, "positions", func(ctx context.Context) error {
		return c.http.GetJSON(ctx, endpoint, &positions)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	return positions, nil
}

// ClosePosition liquidates one position by symbol.
func (c *Client) ClosePosition(ctx context.Context, symbol string) error {
	endpoint := fmt.Sprintf("%s/v2/positions/%s", c.baseURL, url.PathEscape(symbol))

	err := c.gateway.Call(ctx, "close_position", func(ctx context.Context) error {
		return c.http.DeleteJSON(ctx, endpoint, nil)
	})
	if err != nil {
		return fmt.Errorf("close position %s: %w", symbol, err)
	}
	return nil
}

type contractsResponse struct {
	OptionContracts []OptionContract `json:"option_contracts"`
}

// OptionContracts lists contracts for one underlying, expiration, and type.
func (c *Client) OptionContracts(ctx context.Context, underlying string, expiry time.Time, optType string) ([]OptionContract, error) {
	endpoint := fmt.Sprintf("%s/v2/options/contracts?underlying_symbols=%s&expiration_date=%s&type=%s",
		c.baseURL, url.QueryEscape(underlying), expiry.Format("2006-01-02"), optType)

	var resp contractsResponse
	err := c.gateway.Call(ctx, "option_contracts", func(ctx context.Context) error {
		return c.http.GetJSON(ctx, endpoint, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch option contracts for %s: %w", underlying, err)
	}
	return resp.OptionContracts, nil
}

type latestTradeResponse struct {
	Trades map[string]struct {
		Price float64 `json:"p"`
	} `json:"trades"`
}

// LatestTrade returns the latest stock trade price from the data host.
func (c *Client) LatestTrade(ctx context.Context, symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/v2/stocks/trades/latest?symbols=%s", c.dataBaseURL, url.QueryEscape(symbol))

	var resp latestTradeResponse
	err := c.gateway.Call(ctx, "latest_trade", func(ctx context.Context) error {
		return c.http.GetJSON(ctx, endpoint, &resp)
	})
	if err != nil {
		return 0, fmt.Errorf("fetch latest trade for %s: %w", symbol, err)
	}

	trade, ok := resp.Trades[symbol]
	if !ok || trade.Price <= 0 {
		return 0, fmt.Errorf("no trade price for %s", symbol)
	}
	return trade.Price, nil
}

// LatestOptionTrade returns the latest option trade price from the data
// host. Option symbols use a different path prefix than stocks.
func (c *Client) LatestOptionTrade(ctx context.Context, symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/v1beta1/options/trades/latest?symbols=%s", c.dataBaseURL, url.QueryEscape(symbol))

	var resp latestTradeResponse
	err := c.gateway.Call(ctx, "latest_option_trade", func(ctx context.Context) error {
		return c.http.GetJSON(ctx, endpoint, &resp)
	})
	if err != nil {
		return 0, fmt.Errorf("fetch latest option trade for %s: %w", symbol, err)
	}

	trade, ok := resp.Trades[symbol]
	if !ok || trade.Price <= 0 {
		return 0, fmt.Errorf("no trade price for %s", symbol)
	}
	return trade.Price, nil
}

// ParsePrice converts the brokerage's string-encoded prices; returns 0 for
// empty or malformed values.
func ParsePrice(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
