package monitor

import (
	"context"
	"time"

	"github.com/dmaas/ivcrush/pkg/httputil"
	"github.com/dmaas/ivcrush/pkg/logger"
)

// WebhookAlerter posts alerts to a webhook URL. Delivery is best-effort:
// failures are logged and swallowed so an unreachable webhook never blocks
// trading.
type WebhookAlerter struct {
	httpClient *httputil.Client
	url        string
	logger     *logger.Logger
}

// NewWebhookAlerter returns nil when url is empty so callers can pass the
// result straight through as an optional alerter.
func NewWebhookAlerter(url string, log *logger.Logger) *WebhookAlerter {
	if url == "" {
		return nil
	}
	return &WebhookAlerter{
		httpClient: httputil.New(10*time.Second, log),
		url:        url,
		logger:     log,
	}
}

type alertPayload struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Alert posts the alert once, without retry.
func (a *WebhookAlerter) Alert(ctx context.Context, subject, message string) {
	payload := alertPayload{Subject: subject, Message: message}
	if err := a.httpClient.PostJSON(ctx, a.url, payload, nil); err != nil {
		a.logger.WithError(err).Warn("Failed to deliver alert")
		return
	}
	a.logger.WithField("subject", subject).Debug("Alert delivered")
}
