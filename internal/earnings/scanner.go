package earnings

import (
	"context"
	"sync"
	"time"

	"github.com/dmaas/ivcrush/internal/marketdata"
	"github.com/dmaas/ivcrush/pkg/logger"
)

// Event is one discovered earnings announcement. Immutable once created;
// one per ticker per scan cycle.
type Event struct {
	Ticker       string    `json:"ticker"`
	Timestamp    time.Time `json:"earnings_timestamp"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Scanner finds tickers with an earnings event inside a future window.
type Scanner struct {
	provider marketdata.Provider
	logger   *logger.Logger
	workers  int

	// now is swapped out by tests.
	now func() time.Time
}

// NewScanner creates a scanner with the given worker-pool width.
func NewScanner(provider marketdata.Provider, workers int, log *logger.Logger) *Scanner {
	if workers <= 0 {
		workers = 10
	}
	return &Scanner{
		provider: provider,
		logger:   log.WithField("component", "earnings"),
		workers:  workers,
		now:      time.Now,
	}
}

// Scan fetches upcoming earnings for every ticker and keeps those with an
// announcement strictly inside (now, now+windowDays). Per-ticker failures
// are logged and excluded; they never abort the batch. The result is
// keyed by ticker and order-independent.
func (s *Scanner) Scan(ctx context.Context, tickers []string, windowDays int) map[string]Event {
	now := s.now()
	limit := now.Add(time.Duration(windowDays) * 24 * time.Hour)

	s.logger.WithFields(map[string]interface{}{
		"tickers": len(tickers),
		"window":  windowDays,
		"workers": s.workers,
	}).Info("starting earnings scan")

	tickerCh := make(chan string, len(tickers))
	resultCh := make(chan Event, len(tickers))

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ticker := range tickerCh {
				event, ok := s.fetchOne(ctx, ticker, now, limit)
				if ok {
					resultCh <- event
				}
			}
		}()
	}

	for _, ticker := range tickers {
		tickerCh <- ticker
	}
	close(tickerCh)

	wg.Wait()
	close(resultCh)

	events := make(map[string]Event)
	for event := range resultCh {
		events[event.Ticker] = event
	}

	s.logger.WithFields(map[string]interface{}{
		"scanned": len(tickers),
		"matched": len(events),
	}).Info("earnings scan finished")

	return events
}

// fetchOne looks up one ticker's earnings schedule and returns the first
// announcement inside the window, if any.
func (s *Scanner) fetchOne(ctx context.Context, ticker string, now, limit time.Time) (Event, bool) {
	stamps, err := s.provider.EarningsTimestamps(ctx, ticker)
	if err != nil {
		s.logger.WithError(err).WithField("ticker", ticker).Warn("earnings fetch failed, skipping ticker")
		return Event{}, false
	}

	for _, ts := range stamps {
		if ts.After(now) && ts.Before(limit) {
			return Event{
				Ticker:       ticker,
				Timestamp:    ts,
				DiscoveredAt: now,
			}, true
		}
	}
	return Event{}, false
}
