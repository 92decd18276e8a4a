package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dmaas/ivcrush/internal/broker"
	"github.com/dmaas/ivcrush/internal/marketdata"
	"github.com/dmaas/ivcrush/pkg/logger"
)

// ErrNoMatchingStrike means the near-term expiration has no contract at
// the long leg's exact strike. The ticker is skipped rather than trading
// a different strike.
var ErrNoMatchingStrike = errors.New("no matching strike on near-term expiry")

// LegSide tags which leg of the spread a contract fills.
type LegSide string

const (
	SideNear LegSide = "near"
	SideLong LegSide = "long"
)

// Leg is one option contract in the spread.
type Leg struct {
	Symbol       string    `json:"symbol"`
	Strike       float64   `json:"strike"`
	Expiry       time.Time `json:"expiry"`
	Side         LegSide   `json:"side"`
	LastPrice    float64   `json:"last_price,omitempty"`
	HasLastPrice bool      `json:"has_last_price"`
}

// CalendarSpread is the selected structure: short the near-term call,
// long the longer-dated call, same strike.
type CalendarSpread struct {
	Ticker   string `json:"ticker"`
	Near     Leg    `json:"near_leg"`
	Long     Leg    `json:"long_leg"`
	Quantity int    `json:"quantity"`
}

// ContractSource lists option contracts and trade prices from the
// brokerage. Satisfied by *broker.Client.
type ContractSource interface {
	OptionContracts(ctx context.Context, underlying string, expiry time.Time, optType string) ([]broker.OptionContract, error)
	LatestTrade(ctx context.Context, symbol string) (float64, error)
	LatestOptionTrade(ctx context.Context, symbol string) (float64, error)
}

// Selector picks the calendar spread around an earnings date.
type Selector struct {
	provider   marketdata.Provider
	contracts  ContractSource
	offsetDays int
	logger     *logger.Logger
}

// NewSelector creates a selector. offsetDays is how far past the earnings
// date the near leg should expire (7 to 10).
func NewSelector(provider marketdata.Provider, contracts ContractSource, offsetDays int, log *logger.Logger) *Selector {
	return &Selector{
		provider:   provider,
		contracts:  contracts,
		offsetDays: offsetDays,
		logger:     log.WithField("component", "strategy"),
	}
}

// Select picks the near and long expirations straddling the earnings
// date and the strike nearest the current underlying price. Both legs
// are calls at the same strike; the near leg must match exactly or the
// selection fails with ErrNoMatchingStrike.
func (s *Selector) Select(ctx context.Context, ticker string, earningsDate time.Time) (*CalendarSpread, error) {
	expirations, err := s.provider.Expirations(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("expirations for %s: %w", ticker, err)
	}
	if len(expirations) == 0 {
		return nil, fmt.Errorf("no option expirations for %s", ticker)
	}

	nearExpiry := nearestExpiration(expirations, earningsDate.AddDate(0, 0, s.offsetDays))
	longExpiry := nearestExpiration(expirations, nearExpiry.AddDate(0, 0, 30))

	if !nearExpiry.Before(longExpiry) {
		return nil, fmt.Errorf("no long-term expiry after %s for %s", nearExpiry.Format("2006-01-02"), ticker)
	}

	underlying, err := s.contracts.LatestTrade(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("underlying price for %s: %w", ticker, err)
	}

	longContracts, err := s.contracts.OptionContracts(ctx, ticker, longExpiry, "call")
	if err != nil {
		return nil, fmt.Errorf("long-term contracts for %s: %w", ticker, err)
	}
	if len(longContracts) == 0 {
		return nil, fmt.Errorf("no long-term call contracts for %s on %s", ticker, longExpiry.Format("2006-01-02"))
	}

	nearContracts, err := s.contracts.OptionContracts(ctx, ticker, nearExpiry, "call")
	if err != nil {
		return nil, fmt.Errorf("near-term contracts for %s: %w", ticker, err)
	}

	// The long chain picks the strike; the near leg must match exactly.
	longPick := longContracts[0]
	bestDiff := math.Abs(longPick.StrikePrice - underlying)
	for _, c := range longContracts[1:] {
		if diff := math.Abs(c.StrikePrice - underlying); diff < bestDiff {
			longPick = c
			bestDiff = diff
		}
	}

	var nearPick *broker.OptionContract
	for i := range nearContracts {
		if nearContracts[i].StrikePrice == longPick.StrikePrice {
			nearPick = &nearContracts[i]
			break
		}
	}
	if nearPick == nil {
		return nil, fmt.Errorf("%s at strike %.2f: %w", ticker, longPick.StrikePrice, ErrNoMatchingStrike)
	}

	spread := &CalendarSpread{
		Ticker: ticker,
		Near:   s.buildLeg(ctx, *nearPick, nearExpiry, SideNear),
		Long:   s.buildLeg(ctx, longPick, longExpiry, SideLong),
	}

	s.logger.WithFields(map[string]interface{}{
		"ticker":      ticker,
		"strike":      longPick.StrikePrice,
		"near_expiry": nearExpiry.Format("2006-01-02"),
		"long_expiry": longExpiry.Format("2006-01-02"),
	}).Info("calendar spread selected")

	return spread, nil
}

// buildLeg assembles a leg, attaching the latest option trade price when
// available. A missing price leaves the leg usable; orders are market.
func (s *Selector) buildLeg(ctx context.Context, contract broker.OptionContract, expiry time.Time, side LegSide) Leg {
	leg := Leg{
		Symbol: contract.Symbol,
		Strike: contract.StrikePrice,
		Expiry: expiry,
		Side:   side,
	}

	price, err := s.contracts.LatestOptionTrade(ctx, contract.Symbol)
	if err != nil {
		s.logger.WithError(err).WithField("symbol", contract.Symbol).Debug("no last trade for leg")
		return leg
	}
	leg.LastPrice = price
	leg.HasLastPrice = true
	return leg
}

// nearestExpiration returns the expiration closest to target by absolute
// day distance. Ties keep the earlier entry in provider order.
func nearestExpiration(expirations []time.Time, target time.Time) time.Time {
	best := expirations[0]
	bestDiff := absDuration(best.Sub(target))
	for _, e := range expirations[1:] {
		if diff := absDuration(e.Sub(target)); diff < bestDiff {
			best = e
			bestDiff = diff
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
