package orchestrator

import (
	"context"
	"fmt"
	"time"
)

const (
	executionLead = 15 * time.Minute
	closeLag      = 45 * time.Minute
)

// MarketClock computes the two daily instants the trading loop pivots on:
// spreads are opened shortly before the close and unwound shortly after the
// next session's open. All arithmetic happens in exchange-local time.
type MarketClock struct {
	loc       *time.Location
	closeHour int
	openHour  int
}

// NewMarketClock builds a clock for the given close and open hours. An empty
// timezone defaults to America/New_York.
func NewMarketClock(closeHour, openHour int, timezone string) (*MarketClock, error) {
	if timezone == "" {
		timezone = "America/New_York"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load exchange timezone: %w", err)
	}
	return &MarketClock{loc: loc, closeHour: closeHour, openHour: openHour}, nil
}

// ExecutionTime returns today's market close minus the execution lead.
// The instant may already be in the past; callers proceed immediately then.
func (c *MarketClock) ExecutionTime(now time.Time) time.Time {
	local := now.In(c.loc)
	close := time.Date(local.Year(), local.Month(), local.Day(), c.closeHour, 0, 0, 0, c.loc)
	return close.Add(-executionLead)
}

// CloseTime returns the next session's open plus the close lag, relative to
// the day of now.
func (c *MarketClock) CloseTime(now time.Time) time.Time {
	local := now.In(c.loc).AddDate(0, 0, 1)
	open := time.Date(local.Year(), local.Month(), local.Day(), c.openHour, 0, 0, 0, c.loc)
	return open.Add(closeLag)
}

// waitUntil blocks until target or context cancellation. A target in the
// past returns immediately.
func waitUntil(ctx context.Context, now func() time.Time, target time.Time) error {
	d := target.Sub(now())
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
