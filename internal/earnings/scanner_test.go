package earnings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmaas/ivcrush/internal/marketdata"
	"github.com/dmaas/ivcrush/pkg/logger"
)

// fakeProvider serves canned earnings timestamps and records concurrency.
type fakeProvider struct {
	marketdata.Provider

	mu        sync.Mutex
	earnings  map[string][]time.Time
	errors    map[string]error
	inFlight  int
	maxSeen   int
}

func (f *fakeProvider) EarningsTimestamps(ctx context.Context, ticker string) ([]time.Time, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(time.Millisecond)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if err, ok := f.errors[ticker]; ok {
		return nil, err
	}
	return f.earnings[ticker], nil
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
}

func newTestScanner(provider *fakeProvider, workers int) *Scanner {
	s := NewScanner(provider, workers, logger.Nop())
	s.now = fixedNow
	return s
}

func TestScanWindowFilter(t *testing.T) {
	now := fixedNow()
	provider := &fakeProvider{
		earnings: map[string][]time.Time{
			"T1": {now.Add(20 * time.Hour)},       // inside 1-day window
			"T2": {now.Add(30 * time.Hour)},       // outside
			"T3": {now.Add(-2 * time.Hour)},       // already past
			"T4": {},                              // no earnings scheduled
			"T5": {now.Add(-24 * time.Hour), now.Add(6 * time.Hour)}, // second entry matches
		},
	}

	events := newTestScanner(provider, 4).Scan(context.Background(), []string{"T1", "T2", "T3", "T4", "T5"}, 1)

	require.Len(t, events, 2)
	assert.Contains(t, events, "T1")
	assert.Contains(t, events, "T5")

	e := events["T1"]
	assert.Equal(t, "T1", e.Ticker)
	assert.Equal(t, now.Add(20*time.Hour), e.Timestamp)
	assert.Equal(t, now, e.DiscoveredAt)
}

func TestScanIsolatesPerTickerFailures(t *testing.T) {
	now := fixedNow()
	provider := &fakeProvider{
		earnings: map[string][]time.Time{
			"GOOD": {now.Add(10 * time.Hour)},
		},
		errors: map[string]error{
			"BAD": errors.New("provider exploded"),
		},
	}

	events := newTestScanner(provider, 2).Scan(context.Background(), []string{"BAD", "GOOD"}, 1)

	require.Len(t, events, 1)
	assert.Contains(t, events, "GOOD")
}

func TestScanBoundedConcurrency(t *testing.T) {
	now := fixedNow()
	earnings := make(map[string][]time.Time)
	tickers := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		ticker := string(rune('A'+i%26)) + string(rune('A'+i/26))
		tickers = append(tickers, ticker)
		earnings[ticker] = []time.Time{now.Add(5 * time.Hour)}
	}
	provider := &fakeProvider{earnings: earnings}

	newTestScanner(provider, 3).Scan(context.Background(), tickers, 1)

	assert.LessOrEqual(t, provider.maxSeen, 3, "worker pool width respected")
}

func TestScanEmptyUniverse(t *testing.T) {
	provider := &fakeProvider{}
	events := newTestScanner(provider, 2).Scan(context.Background(), nil, 1)
	assert.Empty(t, events)
}
