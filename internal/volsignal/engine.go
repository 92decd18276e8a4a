package volsignal

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dmaas/ivcrush/internal/marketdata"
	"github.com/dmaas/ivcrush/pkg/logger"
)

// Verdict is the scoring outcome for a ticker.
type Verdict string

const (
	VerdictRecommended Verdict = "Recommended"
	VerdictConsider    Verdict = "Consider"
	VerdictNone        Verdict = "None"
)

// Scoring thresholds. Fixed by the strategy, not configurable.
const (
	minAvgVolume = 1_500_000.0
	minIVRV      = 1.25
	maxSlope     = -0.00406
)

// Estimator parameters.
const (
	rvWindow       = 30
	tradingPeriods = 252
	historyMonths  = 3
	volumeWindow   = 30
)

// Recommendation is the engine's verdict for one ticker. Stateless and
// recomputed every cycle; logged, never persisted as authoritative state.
type Recommendation struct {
	Ticker          string  `json:"ticker"`
	Verdict         Verdict `json:"verdict"`
	ExpectedMovePct float64 `json:"expected_move_pct,omitempty"`
	HasExpectedMove bool    `json:"has_expected_move"`

	// Inputs, kept for the trade journal and reporting.
	AvgVolume   float64 `json:"avg_volume"`
	IV30RV30    float64 `json:"iv30_rv30"`
	TermSlope   float64 `json:"ts_slope_0_45"`
	RealizedVol float64 `json:"realized_vol"`
}

// Engine scores tickers from their option term structure and realized
// volatility.
type Engine struct {
	provider marketdata.Provider
	logger   *logger.Logger

	now func() time.Time
}

// NewEngine creates a signal engine.
func NewEngine(provider marketdata.Provider, log *logger.Logger) *Engine {
	return &Engine{
		provider: provider,
		logger:   log.WithField("component", "volsignal"),
		now:      time.Now,
	}
}

// Evaluate scores one ticker. Any missing data resolves to an error for
// the caller to log and skip; it never aborts the batch.
func (e *Engine) Evaluate(ctx context.Context, ticker string) (Recommendation, error) {
	rec := Recommendation{Ticker: ticker, Verdict: VerdictNone}

	expirations, err := e.provider.Expirations(ctx, ticker)
	if err != nil {
		return rec, fmt.Errorf("expirations for %s: %w", ticker, err)
	}
	if len(expirations) == 0 {
		return rec, fmt.Errorf("no options found for %s: %w", ticker, ErrInsufficientData)
	}

	today := e.now()
	retained, err := FilterDates(expirations, today)
	if err != nil {
		return rec, fmt.Errorf("filter expirations for %s: %w", ticker, err)
	}

	underlying, err := e.provider.LastPrice(ctx, ticker)
	if err != nil {
		return rec, fmt.Errorf("underlying price for %s: %w", ticker, err)
	}

	points, straddle, err := e.buildTermPoints(ctx, ticker, retained, underlying, today)
	if err != nil {
		return rec, err
	}

	ts, err := NewTermStructure(points)
	if err != nil {
		return rec, fmt.Errorf("term structure for %s: %w", ticker, err)
	}

	firstDTE := points[0].Days
	if firstDTE == horizonDays {
		return rec, fmt.Errorf("nearest expiry exactly at %d days for %s: %w", firstDTE, ticker, ErrInsufficientData)
	}
	slope := (ts.IV(horizonDays) - ts.IV(float64(firstDTE))) / float64(horizonDays-firstDTE)

	bars, err := e.provider.DailyBars(ctx, ticker, historyMonths)
	if err != nil {
		return rec, fmt.Errorf("price history for %s: %w", ticker, err)
	}

	rv, err := YangZhang(bars, rvWindow, tradingPeriods)
	if err != nil {
		return rec, fmt.Errorf("realized volatility for %s: %w", ticker, err)
	}
	if rv == 0 {
		return rec, fmt.Errorf("zero realized volatility for %s: %w", ticker, ErrInsufficientData)
	}

	avgVolume, err := AverageVolume(bars, volumeWindow)
	if err != nil {
		return rec, fmt.Errorf("average volume for %s: %w", ticker, err)
	}

	rec.TermSlope = slope
	rec.RealizedVol = rv
	rec.IV30RV30 = ts.IV(30) / rv
	rec.AvgVolume = avgVolume

	if straddle > 0 {
		rec.ExpectedMovePct = math.Round(straddle/underlying*100*100) / 100
		rec.HasExpectedMove = true
	}

	rec.Verdict = scoreVerdict(rec.AvgVolume, rec.IV30RV30, rec.TermSlope)

	e.logger.WithFields(map[string]interface{}{
		"ticker":        ticker,
		"verdict":       rec.Verdict,
		"avg_volume":    rec.AvgVolume,
		"iv30_rv30":     rec.IV30RV30,
		"ts_slope_0_45": rec.TermSlope,
		"expected_move": rec.ExpectedMovePct,
	}).Info("ticker scored")

	return rec, nil
}

// buildTermPoints fetches each retained expiration's chain and records
// the ATM implied volatility point. The nearest processed expiration also
// contributes the ATM straddle mid price. Expirations whose chain is
// missing calls or puts are skipped.
func (e *Engine) buildTermPoints(ctx context.Context, ticker string, retained []time.Time, underlying float64, today time.Time) ([]Point, float64, error) {
	var points []Point
	var straddle float64

	for _, expiry := range retained {
		chain, err := e.provider.Chain(ctx, ticker, expiry)
		if err != nil {
			return nil, 0, fmt.Errorf("chain for %s %s: %w", ticker, expiry.Format("2006-01-02"), err)
		}
		if len(chain.Calls) == 0 || len(chain.Puts) == 0 {
			e.logger.WithFields(map[string]interface{}{
				"ticker": ticker,
				"expiry": expiry.Format("2006-01-02"),
			}).Debug("chain missing calls or puts, skipping expiry")
			continue
		}

		atmCall := closestByStrike(chain.Calls, underlying)
		atmPut := closestByStrike(chain.Puts, underlying)

		points = append(points, Point{
			Days: DaysBetween(today, expiry),
			IV:   (atmCall.ImpliedVol + atmPut.ImpliedVol) / 2,
		})

		// The straddle price comes from the nearest expiration that
		// actually produced a point.
		if len(points) == 1 {
			callMid := atmCall.Mid()
			putMid := atmPut.Mid()
			if callMid > 0 && putMid > 0 {
				straddle = callMid + putMid
			}
		}
	}

	if len(points) == 0 {
		return nil, 0, fmt.Errorf("no usable ATM IV for %s: %w", ticker, ErrInsufficientData)
	}
	return points, straddle, nil
}

// scoreVerdict applies the fixed thresholds: all three conditions give
// Recommended; a negative-enough slope with one of the other two gives
// Consider; anything else is None.
func scoreVerdict(avgVolume, iv30rv30, slope float64) Verdict {
	volumeOK := avgVolume >= minAvgVolume
	ivrvOK := iv30rv30 >= minIVRV
	slopeOK := slope <= maxSlope

	switch {
	case volumeOK && ivrvOK && slopeOK:
		return VerdictRecommended
	case slopeOK && (volumeOK || ivrvOK):
		return VerdictConsider
	default:
		return VerdictNone
	}
}

// closestByStrike returns the quote whose strike is nearest the target.
func closestByStrike(quotes []marketdata.OptionQuote, target float64) marketdata.OptionQuote {
	best := quotes[0]
	bestDiff := math.Abs(best.Strike - target)
	for _, q := range quotes[1:] {
		if diff := math.Abs(q.Strike - target); diff < bestDiff {
			best = q
			bestDiff = diff
		}
	}
	return best
}
