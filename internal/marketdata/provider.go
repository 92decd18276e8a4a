package marketdata

import (
	"context"
	"time"
)

// Provider supplies everything the signal engine and earnings scanner need
// per ticker. Implementations must be safe for concurrent use by the scan
// worker pool.
type Provider interface {
	// Expirations returns the available option expiration dates, sorted
	// ascending. An empty slice means the ticker has no listed options.
	Expirations(ctx context.Context, ticker string) ([]time.Time, error)

	// Chain returns the full option chain for one expiration.
	Chain(ctx context.Context, ticker string, expiry time.Time) (*Chain, error)

	// DailyBars returns the trailing daily price history, oldest first.
	DailyBars(ctx context.Context, ticker string, months int) ([]Bar, error)

	// EarningsTimestamps returns upcoming scheduled earnings announcement
	// times for the ticker, ascending.
	EarningsTimestamps(ctx context.Context, ticker string) ([]time.Time, error)

	// LastPrice returns the latest trade price for the underlying.
	LastPrice(ctx context.Context, ticker string) (float64, error)
}
