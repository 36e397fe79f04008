package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"competitive-insights/cache"
	"competitive-insights/helpers"
	"competitive-insights/models"
)

const activeWebhooksKey = "webhooks:active"

// Webhook is a configured HTTP endpoint receiving alerts.
type Webhook struct {
	ID                int64    `json:"id"`
	Name              string   `json:"name"`
	URL               string   `json:"url"`
	Method            string   `json:"method"`
	AuthType          string   `json:"auth_type"`
	AuthHeader        string   `json:"auth_header"`
	AuthValue         string   `json:"auth_value"`
	Rules             []string `json:"rules"`
	ASINs             []string `json:"asins"`
	MinSeverity       string   `json:"min_severity"`
	RatePerMinute     int      `json:"rate_per_minute"`
	MaxAttempts       int      `json:"max_attempts"`
	RetryDelaySeconds int      `json:"retry_delay_seconds"`
}

// DeliveryRecord is one delivery outcome.
type DeliveryRecord struct {
	WebhookID      int64
	AlertID        string
	Status         string
	HTTPStatusCode int
	Error          string
	Attempt        int
	TriggeredAt    time.Time
}

// Delivery statuses
const (
	DeliverySuccess   = "SUCCESS"
	DeliveryFailed    = "FAILED"
	DeliveryThrottled = "THROTTLED"
)

// WebhookRepository loads webhook configuration and records deliveries.
type WebhookRepository interface {
	ActiveWebhooks(ctx context.Context) ([]Webhook, error)
	SaveDeliveryLog(ctx context.Context, rec DeliveryRecord) error
}

// WebhookPayload represents the JSON payload sent to webhooks
type WebhookPayload struct {
	AlertID         string                 `json:"alert_id"`
	Rule            string                 `json:"rule"`
	Severity        string                 `json:"severity"`
	ASIN            string                 `json:"asin"`
	Category        string                 `json:"category,omitempty"`
	OldValue        float64                `json:"old_value"`
	NewValue        float64                `json:"new_value"`
	ChangeMagnitude float64                `json:"change_magnitude"`
	TriggeredAt     time.Time              `json:"triggered_at"`
	Message         string                 `json:"message"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// WebhookDispatcher posts alerts to every matching webhook
type WebhookDispatcher struct {
	repo   WebhookRepository
	cache  *cache.Layer
	client *http.Client
	logger *zap.Logger

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	wg       sync.WaitGroup
}

// NewWebhookDispatcher creates a dispatcher. cacheLayer may be nil.
func NewWebhookDispatcher(repo WebhookRepository, cacheLayer *cache.Layer, logger *zap.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		repo:     repo,
		cache:    cacheLayer,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
		limiters: make(map[int64]*rate.Limiter),
	}
}

// Deliver sends the alert to matching webhooks asynchronously
func (wd *WebhookDispatcher) Deliver(ctx context.Context, alert models.Alert) {
	webhooks, err := wd.activeWebhooks(ctx)
	if err != nil {
		wd.logger.Warn("⚠️  Failed to load webhooks", zap.Error(err))
		return
	}
	if len(webhooks) == 0 {
		return
	}

	payloadBytes, err := json.Marshal(CreatePayload(alert))
	if err != nil {
		wd.logger.Warn("⚠️  Failed to marshal webhook payload", zap.Error(err))
		return
	}

	for _, hook := range webhooks {
		if !shouldSend(hook, alert) {
			continue
		}
		if !wd.limiter(hook).Allow() {
			wd.logDelivery(hook.ID, alert.ID, DeliveryThrottled, 0, "rate limited", 0)
			continue
		}
		wd.wg.Add(1)
		go func(hook Webhook) {
			defer wd.wg.Done()
			wd.deliverWebhook(hook, alert.ID, payloadBytes)
		}(hook)
	}
}

// Wait blocks until in-flight deliveries finish
func (wd *WebhookDispatcher) Wait() {
	wd.wg.Wait()
}

func (wd *WebhookDispatcher) activeWebhooks(ctx context.Context) ([]Webhook, error) {
	if wd.cache == nil {
		return wd.repo.ActiveWebhooks(ctx)
	}
	return cache.GetOrCompute(ctx, wd.cache, activeWebhooksKey, time.Hour, wd.repo.ActiveWebhooks)
}

// RefreshCache drops the cached webhook configuration
func (wd *WebhookDispatcher) RefreshCache(ctx context.Context) {
	if wd.cache == nil {
		return
	}
	if _, err := wd.cache.Invalidate(ctx, activeWebhooksKey); err != nil {
		wd.logger.Warn("⚠️  Failed to invalidate webhook cache", zap.Error(err))
		return
	}
	wd.logger.Info("🔄 Webhook cache invalidated")
}

func (wd *WebhookDispatcher) limiter(hook Webhook) *rate.Limiter {
	wd.mu.Lock()
	defer wd.mu.Unlock()

	l, ok := wd.limiters[hook.ID]
	if !ok {
		limit := rate.Inf
		burst := 1
		if hook.RatePerMinute > 0 {
			limit = rate.Limit(float64(hook.RatePerMinute) / 60)
			burst = hook.RatePerMinute
		}
		l = rate.NewLimiter(limit, burst)
		wd.limiters[hook.ID] = l
	}
	return l
}

// CreatePayload generates the webhook payload from an alert
func CreatePayload(alert models.Alert) WebhookPayload {
	message := fmt.Sprintf("🚨 %s %s [%s] %s", strings.ToUpper(string(alert.Severity)), alert.ASIN, alert.Rule, alert.Message)
	if alert.Rule == models.RulePriceChange {
		message = fmt.Sprintf("%s | %s -> %s (%s)", message,
			helpers.FormatUSD(alert.OldValue), helpers.FormatUSD(alert.NewValue), helpers.FormatPercent(alert.ChangeMagnitude))
	}

	return WebhookPayload{
		AlertID:         alert.ID,
		Rule:            string(alert.Rule),
		Severity:        string(alert.Severity),
		ASIN:            alert.ASIN,
		Category:        alert.Category,
		OldValue:        alert.OldValue,
		NewValue:        alert.NewValue,
		ChangeMagnitude: alert.ChangeMagnitude,
		TriggeredAt:     alert.TriggeredAt,
		Message:         message,
		Metadata: map[string]interface{}{
			"old_snapshot_id": alert.OldSnapshotID,
			"new_snapshot_id": alert.NewSnapshotID,
		},
	}
}

func severityRank(s string) int {
	switch strings.ToLower(s) {
	case string(models.SeverityHigh):
		return 2
	case string(models.SeverityMedium):
		return 1
	default:
		return 0
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}

func shouldSend(hook Webhook, alert models.Alert) bool {
	if len(hook.Rules) > 0 && !contains(hook.Rules, string(alert.Rule)) {
		return false
	}
	if len(hook.ASINs) > 0 && !contains(hook.ASINs, alert.ASIN) {
		return false
	}
	if hook.MinSeverity != "" && severityRank(string(alert.Severity)) < severityRank(hook.MinSeverity) {
		return false
	}
	return true
}

func (wd *WebhookDispatcher) deliverWebhook(hook Webhook, alertID string, payload []byte) {
	attempts := hook.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	method := hook.Method
	if method == "" {
		method = http.MethodPost
	}

	var statusCode int
	var lastErr string
	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := http.NewRequest(method, hook.URL, bytes.NewReader(payload))
		if err != nil {
			wd.logDelivery(hook.ID, alertID, DeliveryFailed, 0, err.Error(), attempt)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Competitive-Insights-Alert/1.0")

		if strings.EqualFold(hook.AuthType, "BEARER") {
			req.Header.Set("Authorization", "Bearer "+hook.AuthValue)
		} else if hook.AuthHeader != "" {
			req.Header.Set(hook.AuthHeader, hook.AuthValue)
		}

		wd.logger.Debug("🔹 Sending webhook", zap.String("url", hook.URL), zap.Int("attempt", attempt), zap.Int("max_attempts", attempts))

		resp, err := wd.client.Do(req)
		if err == nil {
			statusCode = resp.StatusCode
			resp.Body.Close()
			if statusCode >= 200 && statusCode < 300 {
				wd.logDelivery(hook.ID, alertID, DeliverySuccess, statusCode, "", attempt)
				return
			}
			lastErr = fmt.Sprintf("unexpected status %d", statusCode)
		} else {
			statusCode = 0
			lastErr = err.Error()
		}

		if attempt < attempts {
			time.Sleep(time.Duration(hook.RetryDelaySeconds) * time.Second)
		}
	}

	wd.logDelivery(hook.ID, alertID, DeliveryFailed, statusCode, lastErr, attempts)
}

func (wd *WebhookDispatcher) logDelivery(webhookID int64, alertID, status string, code int, errMsg string, attempt int) {
	rec := DeliveryRecord{
		WebhookID:      webhookID,
		AlertID:        alertID,
		Status:         status,
		HTTPStatusCode: code,
		Error:          errMsg,
		Attempt:        attempt,
		TriggeredAt:    time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wd.repo.SaveDeliveryLog(ctx, rec); err != nil {
		wd.logger.Warn("⚠️  Failed to save webhook log", zap.Error(err))
	}
}
