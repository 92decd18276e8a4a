package orchestrator

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dmaas/ivcrush/internal/broker"
	"github.com/dmaas/ivcrush/internal/earnings"
	"github.com/dmaas/ivcrush/internal/gateway"
	"github.com/dmaas/ivcrush/internal/journal"
	"github.com/dmaas/ivcrush/internal/monitor"
	"github.com/dmaas/ivcrush/internal/strategy"
	"github.com/dmaas/ivcrush/internal/universe"
	"github.com/dmaas/ivcrush/internal/volsignal"
	"github.com/dmaas/ivcrush/pkg/config"
	"github.com/dmaas/ivcrush/pkg/logger"
	"github.com/dmaas/ivcrush/pkg/metrics"
)

// Loop states, surfaced through Health and the report server.
const (
	StateWaitingExecution = "waiting_execution_window"
	StateScanning         = "scanning_and_executing"
	StateWaitingClose     = "waiting_close_window"
	StateClosing          = "closing_positions"
	StateCooldown         = "cooldown"
)

const cycleCooldown = 60 * time.Second

// EarningsSource finds tickers with earnings inside a future window.
type EarningsSource interface {
	Scan(ctx context.Context, tickers []string, windowDays int) map[string]earnings.Event
}

// Evaluator scores a ticker's volatility setup.
type Evaluator interface {
	Evaluate(ctx context.Context, ticker string) (volsignal.Recommendation, error)
}

// SpreadSelector picks the calendar spread for a ticker and earnings date.
type SpreadSelector interface {
	Select(ctx context.Context, ticker string, earningsDate time.Time) (*strategy.CalendarSpread, error)
}

// Broker submits orders and manages positions. Satisfied by *broker.Client.
type Broker interface {
	SubmitOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderResult, error)
	Positions(ctx context.Context) ([]broker.Position, error)
	ClosePosition(ctx context.Context, symbol string) error
}

// Orchestrator drives the daily trading loop: open calendar spreads just
// before the close on tickers with overnight earnings, unwind them after the
// next session's open.
type Orchestrator struct {
	cfg      *config.Config
	clock    *MarketClock
	tickers  universe.TickerSource
	scanner  EarningsSource
	engine   Evaluator
	selector SpreadSelector
	broker   Broker
	store    journal.Store
	breaker  *gateway.Breaker
	metrics  *metrics.Recorder
	alerter  gateway.Alerter
	logger   *logger.Logger

	// swapped out by tests
	now      func() time.Time
	cooldown func(ctx context.Context, d time.Duration)

	mu           sync.RWMutex
	state        string
	cycleErrors  int
	lastCycleErr string
}

// New wires the orchestrator. metrics may be nil.
func New(
	cfg *config.Config,
	clock *MarketClock,
	tickers universe.TickerSource,
	scanner EarningsSource,
	engine Evaluator,
	selector SpreadSelector,
	brk Broker,
	store journal.Store,
	breaker *gateway.Breaker,
	rec *metrics.Recorder,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		clock:    clock,
		tickers:  tickers,
		scanner:  scanner,
		engine:   engine,
		selector: selector,
		broker:   brk,
		store:    store,
		breaker:  breaker,
		metrics:  rec,
		logger:   log.WithField("component", "orchestrator"),
		now:      time.Now,
		cooldown: func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		},
		state: StateWaitingExecution,
	}
}

// WithAlerter attaches a best-effort notifier for trade executions and
// cycle failures.
func (o *Orchestrator) WithAlerter(a gateway.Alerter) *Orchestrator {
	o.alerter = a
	return o
}

// Run loops daily cycles until the context is cancelled. A cycle error is
// logged and followed by a cool-down, never a crash.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("starting trading loop")

	for {
		if err := o.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				o.logger.Info("trading loop stopped")
				return ctx.Err()
			}

			o.recordCycleError(err)
			o.logger.WithError(err).Error("trade cycle failed, cooling down")
			if o.alerter != nil {
				o.alerter.Alert(ctx, "trade cycle failed", err.Error())
			}

			o.setState(StateCooldown)
			o.cooldown(ctx, cycleCooldown)
		}

		if ctx.Err() != nil {
			o.logger.Info("trading loop stopped")
			return ctx.Err()
		}
	}
}

// Cycle runs one pass of the state machine.
func (o *Orchestrator) Cycle(ctx context.Context) error {
	cycleStart := o.now()
	o.logger.WithField("cycle_start", cycleStart).Info("running trade cycle")

	o.setState(StateWaitingExecution)
	if err := waitUntil(ctx, o.now, o.clock.ExecutionTime(cycleStart)); err != nil {
		return err
	}

	o.setState(StateScanning)
	if err := o.ScanAndExecute(ctx); err != nil {
		return err
	}

	o.setState(StateWaitingClose)
	if err := waitUntil(ctx, o.now, o.clock.CloseTime(cycleStart)); err != nil {
		return err
	}

	o.setState(StateClosing)
	return o.CloseAllPositions(ctx)
}

// ScanAndExecute runs the scan, score and select pipeline once and submits
// an order for every Recommended or Consider ticker. Per-ticker failures
// are logged and skipped.
func (o *Orchestrator) ScanAndExecute(ctx context.Context) error {
	tickers, err := o.tickers.Tickers(ctx)
	if err != nil {
		return err
	}

	windowDays := o.cfg.ScanWindowDays
	if windowDays <= 0 {
		windowDays = 1
	}

	events := o.scanner.Scan(ctx, tickers, windowDays)
	if len(events) == 0 {
		o.logger.Info("no overnight earnings events found")
		return nil
	}

	// stable processing order
	names := make([]string, 0, len(events))
	for ticker := range events {
		names = append(names, ticker)
	}
	sort.Strings(names)

	opened := 0
	for _, ticker := range names {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if o.executeTicker(ctx, ticker, events[ticker]) {
			opened++
		}
	}

	o.logger.WithFields(map[string]interface{}{
		"events": len(events),
		"opened": opened,
	}).Info("scan cycle complete")
	return nil
}

// executeTicker reports whether an order was submitted and journaled.
func (o *Orchestrator) executeTicker(ctx context.Context, ticker string, event earnings.Event) bool {
	log := o.logger.WithField("ticker", ticker)

	rec, err := o.engine.Evaluate(ctx, ticker)
	if err != nil {
		log.WithError(err).Warn("scoring failed, skipping ticker")
		return false
	}

	if o.metrics != nil {
		o.metrics.RecordVerdict(string(rec.Verdict))
	}

	if rec.Verdict == volsignal.VerdictNone {
		log.WithFields(map[string]interface{}{
			"avg_volume": rec.AvgVolume,
			"iv30_rv30":  rec.IV30RV30,
			"ts_slope":   rec.TermSlope,
		}).Info("ticker does not meet criteria")
		return false
	}

	spread, err := o.selector.Select(ctx, ticker, event.Timestamp)
	if err != nil {
		log.WithError(err).Warn("no viable spread, skipping ticker")
		return false
	}

	qty := o.cfg.DefaultQuantity
	req := broker.OrderRequest{
		Type:        "market",
		TimeInForce: "day",
		OrderClass:  "mleg",
		Qty:         strconv.Itoa(qty),
		Legs: []broker.OrderLeg{
			{Side: "buy", PositionIntent: "buy_to_open", Symbol: spread.Long.Symbol, RatioQty: "1"},
			{Side: "sell", PositionIntent: "sell_to_open", Symbol: spread.Near.Symbol, RatioQty: "1"},
		},
	}

	result, err := o.broker.SubmitOrder(ctx, req)
	if err != nil {
		log.WithError(err).Error("order submission failed, skipping ticker")
		return false
	}

	entry := journal.Entry{
		OpenedAt:       o.now(),
		Ticker:         ticker,
		Quantity:       qty,
		ShortSymbol:    spread.Near.Symbol,
		ShortExpiry:    spread.Near.Expiry,
		ShortStrike:    spread.Near.Strike,
		ShortPrice:     spread.Near.LastPrice,
		LongSymbol:     spread.Long.Symbol,
		LongExpiry:     spread.Long.Expiry,
		LongStrike:     spread.Long.Strike,
		LongPrice:      spread.Long.LastPrice,
		Recommendation: string(rec.Verdict),
		Status:         journal.StatusOpened,
	}
	applyFillPrices(&entry, result)

	if err := o.store.Append(ctx, entry); err != nil {
		// the order is live; surface loudly but keep going
		log.WithError(err).Error("failed to journal opened trade")
	}

	if o.metrics != nil {
		o.metrics.RecordTradeOpened()
	}
	if o.alerter != nil {
		o.alerter.Alert(ctx, "calendar spread opened",
			ticker+" short "+spread.Near.Symbol+" / long "+spread.Long.Symbol)
	}

	log.WithFields(map[string]interface{}{
		"order_id":       result.ID,
		"recommendation": string(rec.Verdict),
		"short_leg":      spread.Near.Symbol,
		"long_leg":       spread.Long.Symbol,
		"qty":            qty,
	}).Info("calendar spread opened")
	return true
}

// applyFillPrices overwrites leg prices with broker fill confirmations when
// present.
func applyFillPrices(entry *journal.Entry, result *broker.OrderResult) {
	for _, leg := range result.Legs {
		price := broker.ParsePrice(leg.FilledAvgPrice)
		if price == 0 {
			continue
		}
		switch leg.Symbol {
		case entry.ShortSymbol:
			entry.ShortPrice = price
		case entry.LongSymbol:
			entry.LongPrice = price
		}
	}
}

// CloseAllPositions unwinds open spreads. By default only positions this
// process journaled are touched; close_all_account_positions widens that to
// every position on the account. A single symbol's failure never blocks the
// rest.
func (o *Orchestrator) CloseAllPositions(ctx context.Context) error {
	symbols, err := o.closeTargets(ctx)
	if err != nil {
		return err
	}

	if len(symbols) == 0 {
		o.logger.Info("no positions to close")
		return nil
	}

	closedSymbols := make(map[string]bool, len(symbols))
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := o.broker.ClosePosition(ctx, symbol); err != nil {
			o.logger.WithError(err).WithField("symbol", symbol).Error("failed to close position")
			continue
		}
		closedSymbols[symbol] = true
		if o.metrics != nil {
			o.metrics.RecordTradeClosed()
		}
	}

	// A spread leaves the journal only when both legs are confirmed closed;
	// anything else stays open so the next close pass retries it.
	if tickers, err := o.settledTickers(ctx, closedSymbols); err != nil {
		o.logger.WithError(err).Error("failed to list open journal entries")
	} else if len(tickers) > 0 {
		if _, err := o.store.CloseOpen(ctx, o.now(), tickers, nil); err != nil {
			o.logger.WithError(err).Error("failed to mark journal entries closed")
		}
	}

	o.logger.WithFields(map[string]interface{}{
		"requested": len(symbols),
		"closed":    len(closedSymbols),
	}).Info("position close pass complete")
	return nil
}

// settledTickers returns the tickers of open journal entries whose short and
// long legs both closed successfully.
func (o *Orchestrator) settledTickers(ctx context.Context, closedSymbols map[string]bool) ([]string, error) {
	open, err := o.store.OpenEntries(ctx)
	if err != nil {
		return nil, err
	}

	tickers := make([]string, 0, len(open))
	for _, e := range open {
		if closedSymbols[e.ShortSymbol] && closedSymbols[e.LongSymbol] {
			tickers = append(tickers, e.Ticker)
		}
	}
	return tickers, nil
}

func (o *Orchestrator) closeTargets(ctx context.Context) ([]string, error) {
	if o.cfg.CloseAllAccountPositions {
		positions, err := o.broker.Positions(ctx)
		if err != nil {
			return nil, err
		}
		symbols := make([]string, 0, len(positions))
		for _, p := range positions {
			symbols = append(symbols, p.Symbol)
		}
		return symbols, nil
	}

	open, err := o.store.OpenEntries(ctx)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, 2*len(open))
	for _, e := range open {
		symbols = append(symbols, e.ShortSymbol, e.LongSymbol)
	}
	return symbols, nil
}

// Health reports the loop state for the health log and report server.
func (o *Orchestrator) Health() monitor.HealthSnapshot {
	o.mu.RLock()
	state := o.state
	cycleErrors := o.cycleErrors
	lastErr := o.lastCycleErr
	o.mu.RUnlock()

	snap := monitor.HealthSnapshot{
		State:        state,
		CycleErrors:  cycleErrors,
		LastCycleErr: lastErr,
	}
	if o.breaker != nil {
		snap.Breaker = o.breaker.Snapshot()
	}
	if open, err := o.store.OpenEntries(context.Background()); err == nil {
		snap.OpenTrades = len(open)
	}
	return snap
}

func (o *Orchestrator) setState(state string) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}

func (o *Orchestrator) recordCycleError(err error) {
	o.mu.Lock()
	o.cycleErrors++
	o.lastCycleErr = err.Error()
	o.mu.Unlock()
}
