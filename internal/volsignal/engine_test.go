package volsignal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmaas/ivcrush/internal/marketdata"
	"github.com/dmaas/ivcrush/pkg/logger"
)

func TestScoreVerdict(t *testing.T) {
	tests := []struct {
		name      string
		avgVolume float64
		iv30rv30  float64
		slope     float64
		want      Verdict
	}{
		{"all three pass", 2_000_000, 1.3, -0.005, VerdictRecommended},
		{"slope plus volume only", 2_000_000, 0.9, -0.005, VerdictConsider},
		{"slope plus ivrv only", 1_000_000, 1.4, -0.005, VerdictConsider},
		{"all three fail", 1_000_000, 0.9, 0.001, VerdictNone},
		{"slope fails alone", 2_000_000, 1.3, 0.0, VerdictNone},
		{"slope passes alone", 1_000_000, 0.9, -0.005, VerdictNone},
		{"volume exactly at threshold", 1_500_000, 1.25, -0.00406, VerdictRecommended},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scoreVerdict(tt.avgVolume, tt.iv30rv30, tt.slope))
		})
	}
}

// engineFake is a deterministic market-data provider for engine tests.
type engineFake struct {
	expirations []time.Time
	chains      map[string]*marketdata.Chain
	bars        []marketdata.Bar
	price       float64

	expirationsErr error
	priceErr       error
}

func (f *engineFake) Expirations(ctx context.Context, ticker string) ([]time.Time, error) {
	return f.expirations, f.expirationsErr
}

func (f *engineFake) Chain(ctx context.Context, ticker string, expiry time.Time) (*marketdata.Chain, error) {
	chain, ok := f.chains[expiry.Format("2006-01-02")]
	if !ok {
		return nil, fmt.Errorf("no chain for %s", expiry.Format("2006-01-02"))
	}
	return chain, nil
}

func (f *engineFake) DailyBars(ctx context.Context, ticker string, months int) ([]marketdata.Bar, error) {
	return f.bars, nil
}

func (f *engineFake) EarningsTimestamps(ctx context.Context, ticker string) ([]time.Time, error) {
	return nil, nil
}

func (f *engineFake) LastPrice(ctx context.Context, ticker string) (float64, error) {
	return f.price, f.priceErr
}

var engineToday = time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)

func newTestEngine(provider marketdata.Provider) *Engine {
	e := NewEngine(provider, logger.Nop())
	e.now = func() time.Time { return engineToday }
	return e
}

// chainAt builds a chain with a single ATM call/put pair at the given
// strike and IV, plus an away-from-money pair that must be ignored.
func chainAt(strike, iv, callMid, putMid float64) *marketdata.Chain {
	return &marketdata.Chain{
		Calls: []marketdata.OptionQuote{
			{Strike: strike + 50, ImpliedVol: iv + 1, Bid: 0.01, Ask: 0.03},
			{Strike: strike, ImpliedVol: iv, Bid: callMid - 0.1, Ask: callMid + 0.1},
		},
		Puts: []marketdata.OptionQuote{
			{Strike: strike, ImpliedVol: iv, Bid: putMid - 0.1, Ask: putMid + 0.1},
			{Strike: strike - 50, ImpliedVol: iv + 1, Bid: 0.01, Ask: 0.03},
		},
	}
}

// trendBars builds bars with a constant daily log return r: rs and
// overnight terms vanish, so realized vol is r*sqrt(k*w/(w-1))*sqrt(252).
func trendBars(n int, r float64, volume int64) []marketdata.Bar {
	bars := make([]marketdata.Bar, n)
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := range bars {
		open := price
		close := open * math.Exp(r)
		bars[i] = marketdata.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   open,
			High:   math.Max(open, close),
			Low:    math.Min(open, close),
			Close:  close,
			Volume: volume,
		}
		price = close
	}
	return bars
}

func recommendedFake() *engineFake {
	return &engineFake{
		expirations: []time.Time{
			time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC),   // 7 DTE
			time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), // 49 DTE
		},
		chains: map[string]*marketdata.Chain{
			"2026-09-04": chainAt(230, 0.60, 5.2, 4.9),
			"2026-10-16": chainAt(230, 0.35, 7.0, 6.5),
		},
		bars:  trendBars(63, 0.01, 2_000_000),
		price: 231.0,
	}
}

func TestEvaluateRecommended(t *testing.T) {
	rec, err := newTestEngine(recommendedFake()).Evaluate(context.Background(), "T1")
	require.NoError(t, err)

	assert.Equal(t, VerdictRecommended, rec.Verdict)

	// slope = (IV(45) - IV(7)) / 38 with IV linear from 0.60@7d to 0.35@49d.
	wantIV45 := 0.60 + 38.0/42.0*(0.35-0.60)
	assert.InDelta(t, (wantIV45-0.60)/38.0, rec.TermSlope, 1e-9)

	assert.InDelta(t, 2_000_000, rec.AvgVolume, 1e-6)
	assert.Greater(t, rec.IV30RV30, 1.25)

	// Straddle = 5.2 + 4.9 from the nearest expiry, against price 231.
	require.True(t, rec.HasExpectedMove)
	assert.InDelta(t, math.Round(10.1/231.0*100*100)/100, rec.ExpectedMovePct, 1e-9)
}

func TestEvaluateConsiderWhenIVRVFails(t *testing.T) {
	fake := recommendedFake()
	// Large realized moves push iv30_rv30 below 1.25; volume still passes.
	fake.bars = trendBars(63, 0.08, 2_000_000)

	rec, err := newTestEngine(fake).Evaluate(context.Background(), "T1")
	require.NoError(t, err)

	assert.Less(t, rec.IV30RV30, 1.25)
	assert.Equal(t, VerdictConsider, rec.Verdict)
}

func TestEvaluateNoneWhenSlopeFlat(t *testing.T) {
	fake := recommendedFake()
	fake.chains["2026-09-04"] = chainAt(230, 0.40, 5.2, 4.9)
	fake.chains["2026-10-16"] = chainAt(230, 0.40, 7.0, 6.5)

	rec, err := newTestEngine(fake).Evaluate(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, VerdictNone, rec.Verdict)
}

func TestEvaluateNoExpirations(t *testing.T) {
	fake := recommendedFake()
	fake.expirations = nil

	_, err := newTestEngine(fake).Evaluate(context.Background(), "T1")
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestEvaluateNoHorizonExpiry(t *testing.T) {
	fake := recommendedFake()
	fake.expirations = []time.Time{time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC)}

	_, err := newTestEngine(fake).Evaluate(context.Background(), "T1")
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestEvaluatePriceFailure(t *testing.T) {
	fake := recommendedFake()
	fake.priceErr = errors.New("quote feed down")

	_, err := newTestEngine(fake).Evaluate(context.Background(), "T1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "underlying price")
}

func TestEvaluateSkipsChainMissingPuts(t *testing.T) {
	fake := recommendedFake()
	// Nearest chain unusable: straddle must come from the next one.
	fake.chains["2026-09-04"].Puts = nil

	rec, err := newTestEngine(fake).Evaluate(context.Background(), "T1")
	require.NoError(t, err)

	// Only the 49-DTE point remains; flat structure means slope 0 -> None.
	assert.Equal(t, VerdictNone, rec.Verdict)
	assert.True(t, rec.HasExpectedMove)
	assert.InDelta(t, math.Round(13.5/231.0*100*100)/100, rec.ExpectedMovePct, 1e-9)
}

func TestEvaluateZeroRealizedVol(t *testing.T) {
	fake := recommendedFake()
	fake.bars = trendBars(63, 0, 2_000_000)

	_, err := newTestEngine(fake).Evaluate(context.Background(), "T1")
	require.ErrorIs(t, err, ErrInsufficientData)
}
