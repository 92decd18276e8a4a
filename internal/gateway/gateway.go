package gateway

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/dmaas/ivcrush/pkg/httputil"
	"github.com/dmaas/ivcrush/pkg/logger"
)

// Operation performs one network request. The gateway decides admission,
// retries, and breaker bookkeeping around it.
type Operation func(ctx context.Context) error

// Observer receives call outcomes and breaker state changes, typically
// backed by the Prometheus recorder.
type Observer interface {
	ObserveCall(operation, outcome string, seconds float64)
	SetBreakerState(state int)
	RecordRejected()
}

// Alerter is notified of breaker transitions. Best-effort; failures are
// the alerter's problem, not the gateway's.
type Alerter interface {
	Alert(ctx context.Context, subject, message string)
}

// RetryPolicy controls retry count and backoff shape.
type RetryPolicy struct {
	MaxRetries int
	Cap        time.Duration
}

// Delay returns the backoff before the given retry attempt (0-based):
// min(cap, 2^attempt + random(0,1)) seconds. Rate-limited failures wait
// twice as long.
func (p RetryPolicy) Delay(attempt int, rateLimited bool) time.Duration {
	base := math.Pow(2, float64(attempt)) + rand.Float64()
	if rateLimited {
		base *= 2
	}
	d := time.Duration(base * float64(time.Second))
	if p.Cap > 0 && d > p.Cap {
		d = p.Cap
	}
	return d
}

// Gateway wraps every brokerage and data-provider call with the shared
// circuit breaker and bounded retry.
type Gateway struct {
	breaker *Breaker
	policy  RetryPolicy
	logger  *logger.Logger

	observer Observer
	alerter  Alerter

	// sleep is swapped out by tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Gateway around the given breaker.
func New(breaker *Breaker, policy RetryPolicy, log *logger.Logger) *Gateway {
	g := &Gateway{
		breaker: breaker,
		policy:  policy,
		logger:  log,
		sleep:   sleepContext,
	}
	breaker.OnTransition(g.handleTransition)
	return g
}

// WithObserver attaches a metrics observer.
func (g *Gateway) WithObserver(obs Observer) *Gateway {
	g.observer = obs
	if obs != nil {
		obs.SetBreakerState(int(g.breaker.Snapshot().State))
	}
	return g
}

// WithAlerter attaches a transition alerter.
func (g *Gateway) WithAlerter(a Alerter) *Gateway {
	g.alerter = a
	return g
}

// Breaker returns the shared breaker for state reporting.
func (g *Gateway) Breaker() *Breaker {
	return g.breaker
}

// Call executes op with admission check, breaker bookkeeping, and retry.
//
// Outcomes: breaker rejection returns ErrCircuitOpen immediately; transient
// failures (network, 5xx, timeout) retry up to MaxRetries with exponential
// backoff plus jitter; 429 retries with a longer backoff; decode failures
// and other non-transient errors return immediately. Every failure is
// recorded against the breaker.
func (g *Gateway) Call(ctx context.Context, operation string, op Operation) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := g.breaker.Allow(); err != nil {
			g.logger.WithField("operation", operation).Warn("call rejected, circuit breaker open")
			if g.observer != nil {
				g.observer.RecordRejected()
			}
			return err
		}

		start := time.Now()
		err := op(ctx)
		elapsed := time.Since(start)

		if err == nil {
			g.breaker.RecordSuccess()
			g.observe(operation, "success", elapsed)
			return nil
		}

		g.breaker.RecordFailure()
		lastErr = err

		switch {
		case ctx.Err() != nil:
			// Shutdown or timeout of the surrounding cycle; do not retry.
			g.observe(operation, "cancelled", elapsed)
			return err

		case httputil.IsDecode(err):
			g.observe(operation, "decode_error", elapsed)
			g.logger.WithError(err).WithField("operation", operation).Error("malformed response, not retrying")
			return err

		case httputil.IsTransient(err) || httputil.IsRateLimited(err):
			g.observe(operation, "transient_error", elapsed)
			if attempt >= g.policy.MaxRetries {
				g.logger.WithError(err).WithFields(map[string]interface{}{
					"operation": operation,
					"attempts":  attempt + 1,
				}).Error("retries exhausted")
				return lastErr
			}

			delay := g.policy.Delay(attempt, httputil.IsRateLimited(err))
			g.logger.WithError(err).WithFields(map[string]interface{}{
				"operation": operation,
				"attempt":   attempt + 1,
				"delay":     delay,
			}).Warn("transient failure, retrying")

			if err := g.sleep(ctx, delay); err != nil {
				return err
			}

		default:
			// 4xx API rejections and similar; retrying will not help.
			g.observe(operation, "error", elapsed)
			return err
		}
	}
}

func (g *Gateway) observe(operation, outcome string, elapsed time.Duration) {
	if g.observer != nil {
		g.observer.ObserveCall(operation, outcome, elapsed.Seconds())
	}
}

func (g *Gateway) handleTransition(from, to State) {
	g.logger.WithFields(map[string]interface{}{
		"from": from.String(),
		"to":   to.String(),
	}).Warn("circuit breaker transition")

	if g.observer != nil {
		g.observer.SetBreakerState(int(to))
	}
	if g.alerter != nil {
		g.alerter.Alert(context.Background(), "circuit breaker transition",
			"breaker moved from "+from.String()+" to "+to.String())
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
