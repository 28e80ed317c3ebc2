package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/content-router/internal/config"
	"github.com/sells-group/content-router/internal/model"
	"github.com/sells-group/content-router/internal/resilience"
)

// AlertPayload is the webhook body for one alert.
type AlertPayload struct {
	model.RoutingAlert
	Timestamp time.Time `json:"timestamp"`
}

// Alerter delivers routing alerts to a webhook, rate limited and behind a
// circuit breaker.
type Alerter struct {
	webhookURL string
	client     *http.Client
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
	retry      resilience.RetryConfig
	now        func() time.Time
}

// NewAlerter creates an Alerter from the alerts config. A non-positive
// rate disables limiting.
func NewAlerter(cfg config.AlertsConfig) *Alerter {
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	retry := resilience.FromRetryConfig(2, 200)
	retry.OnRetry = resilience.RetryLogger("monitoring", "send alert")
	return &Alerter{
		webhookURL: cfg.WebhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(limit, 1),
		breaker:    resilience.NewCircuitBreaker(resilience.FromCircuitConfig(3, 60)),
		retry:      retry,
		now:        time.Now,
	}
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []model.RoutingAlert) int {
	if a.webhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.limiter.Wait(ctx); err != nil {
			zap.L().Warn("monitoring: alert delivery interrupted", zap.Error(err))
			break
		}
		err := a.breaker.Execute(ctx, func(ctx context.Context) error {
			return resilience.Do(ctx, a.retry, func(ctx context.Context) error {
				return a.sendWebhook(ctx, alert)
			})
		})
		if err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", alert.Type),
				zap.String("publication", alert.PublicationSlug),
				zap.String("idea_routing_id", alert.IdeaRoutingID),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", alert.Type),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert model.RoutingAlert) error {
	payload, err := json.Marshal(AlertPayload{RoutingAlert: alert, Timestamp: a.now().UTC()})
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
