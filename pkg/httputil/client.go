package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmaas/ivcrush/pkg/logger"
)

// Client is a thin HTTP wrapper handling request construction, response
// decoding, and error classification. It performs exactly one attempt per
// call; retry and circuit breaking live in the gateway that wraps it.
type Client struct {
	httpClient *http.Client
	logger     *logger.Logger
	headers    map[string]string
}

// New creates a Client with the given per-request timeout.
func New(timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
		headers:    map[string]string{},
	}
}

// WithHeaders sets headers attached to every request (auth keys etc).
func (c *Client) WithHeaders(headers map[string]string) *Client {
	for k, v := range headers {
		c.headers[k] = v
	}
	return c
}

// GetJSON performs a GET request and decodes the JSON response into dest.
func (c *Client) GetJSON(ctx context.Context, url string, dest interface{}) error {
	return c.DoJSON(ctx, http.MethodGet, url, nil, dest)
}

// PostJSON performs a POST request with a JSON body and decodes the
// response into dest.
func (c *Client) PostJSON(ctx context.Context, url string, payload, dest interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	return c.DoJSON(ctx, http.MethodPost, url, body, dest)
}

// DeleteJSON performs a DELETE request and decodes the response into dest.
// dest may be nil when the response body is not needed.
func (c *Client) DeleteJSON(ctx context.Context, url string, dest interface{}) error {
	return c.DoJSON(ctx, http.MethodDelete, url, nil, dest)
}

// DoJSON executes one request and classifies the outcome:
// network failure or 5xx -> TransientError, 429 -> RateLimitError,
// other non-2xx -> StatusError, malformed body -> DecodeError.
func (c *Client) DoJSON(ctx context.Context, method, url string, body []byte, dest interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Context cancellation is not a retryable condition.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	c.logger.WithFields(map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": resp.StatusCode,
		"duration":    time.Since(start),
	}).Debug("HTTP request completed")

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{Err: fmt.Errorf("%s %s", method, url)}
	case resp.StatusCode >= 500:
		return &TransientError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s %s", method, url),
		}
	case resp.StatusCode >= 300:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}

// GetDocument performs a GET request and returns the raw response body.
// Used by the universe scraper, which parses HTML rather than JSON.
func (c *Client) GetDocument(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create GET request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode}
	}

	return io.ReadAll(resp.Body)
}
