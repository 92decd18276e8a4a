package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dmaas/ivcrush/internal/broker"
	"github.com/dmaas/ivcrush/internal/earnings"
	"github.com/dmaas/ivcrush/internal/gateway"
	"github.com/dmaas/ivcrush/internal/journal"
	"github.com/dmaas/ivcrush/internal/marketdata"
	"github.com/dmaas/ivcrush/internal/monitor"
	"github.com/dmaas/ivcrush/internal/orchestrator"
	"github.com/dmaas/ivcrush/internal/strategy"
	"github.com/dmaas/ivcrush/internal/universe"
	"github.com/dmaas/ivcrush/internal/volsignal"
	"github.com/dmaas/ivcrush/pkg/config"
	"github.com/dmaas/ivcrush/pkg/database"
	"github.com/dmaas/ivcrush/pkg/httputil"
	"github.com/dmaas/ivcrush/pkg/logger"
	"github.com/dmaas/ivcrush/pkg/metrics"
	"github.com/dmaas/ivcrush/pkg/redis"
)

// app holds the wired components every command runs on.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	metrics   *metrics.Recorder
	breaker   *gateway.Breaker
	gateway   *gateway.Gateway
	provider  *marketdata.Client
	broker    *broker.Client
	store     journal.Store
	tickers   universe.TickerSource
	cached    *universe.CachedSource // non-nil when the universe is scraped
	scanner   *earnings.Scanner
	engine    *volsignal.Engine
	selector  *strategy.Selector
	orch      *orchestrator.Orchestrator
	healthLog *monitor.HealthLog

	closers []func()
}

// buildApp wires the full component graph from configuration.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	a := &app{cfg: cfg, log: log, metrics: metrics.New()}

	a.breaker = gateway.NewBreaker(cfg.Gateway.FailureThreshold, cfg.Gateway.RecoveryTimeout())
	a.gateway = gateway.New(a.breaker, gateway.RetryPolicy{
		MaxRetries: cfg.Gateway.MaxRetries,
		Cap:        time.Duration(cfg.Gateway.BackoffCapSec * float64(time.Second)),
	}, log).WithObserver(a.metrics)

	alerter := monitor.NewWebhookAlerter(cfg.AlertWebhookURL, log)
	if alerter != nil {
		a.gateway = a.gateway.WithAlerter(alerter)
	}

	httpClient := httputil.New(cfg.Gateway.RequestTimeout(), log)

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = redisClient.Close() })
	cache := redis.NewCache(redisClient, "ivcrush")

	a.provider = marketdata.NewClient(cfg.MarketDataURL, httpClient, a.gateway, cache, log)
	a.broker = broker.NewClient(cfg.BaseURL, cfg.DataBaseURL, cfg.APIKey, cfg.APISecret, httpClient, a.gateway, log)

	if cfg.Database.Enabled {
		db, err := database.New(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)

		repo := journal.NewRepository(db.Pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("prepare journal schema: %w", err)
		}
		a.store = repo
	} else {
		store, err := journal.NewLog(cfg.TradeLogPath)
		if err != nil {
			return nil, fmt.Errorf("open trade journal: %w", err)
		}
		a.store = store
	}

	if len(cfg.Tickers) > 0 {
		a.tickers = universe.NewStaticSource(cfg.Tickers)
	} else {
		a.cached = universe.NewCachedSource(universe.NewSP500Source(httpClient, log))
		a.tickers = a.cached
	}

	a.scanner = earnings.NewScanner(a.provider, cfg.ScanWorkers, log)
	a.engine = volsignal.NewEngine(a.provider, log)
	a.selector = strategy.NewSelector(a.provider, a.broker, cfg.NearLegOffsetDays, log)

	a.healthLog, err = monitor.NewHealthLog(cfg.HealthLogPath)
	if err != nil {
		return nil, fmt.Errorf("open health log: %w", err)
	}

	clock, err := orchestrator.NewMarketClock(cfg.MarketCloseTime, cfg.MarketOpenTime, cfg.Timezone)
	if err != nil {
		return nil, err
	}

	a.orch = orchestrator.New(
		cfg, clock, a.tickers, a.scanner, a.engine, a.selector,
		a.broker, a.store, a.breaker, a.metrics, log,
	)
	if alerter != nil {
		a.orch = a.orch.WithAlerter(alerter)
	}

	return a, nil
}

// close releases connections in reverse acquisition order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
