package database

import (
	"context"

	"competitive-insights/notifications"
)

// WebhookStore serves webhook configuration and delivery logs
type WebhookStore struct {
	db *Database
}

// NewWebhookStore creates a new webhook store
func NewWebhookStore(db *Database) *WebhookStore {
	return &WebhookStore{db: db}
}

// ActiveWebhooks retrieves all active webhooks
func (s *WebhookStore) ActiveWebhooks(ctx context.Context) ([]notifications.Webhook, error) {
	var rows []WebhookRow
	if err := s.db.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, WrapDBError("active webhooks", err)
	}

	hooks := make([]notifications.Webhook, 0, len(rows))
	for _, row := range rows {
		hook := notifications.Webhook{
			ID:                row.ID,
			Name:              row.Name,
			URL:               row.URL,
			Method:            row.Method,
			AuthType:          row.AuthType,
			AuthHeader:        row.AuthHeader,
			AuthValue:         row.AuthValue,
			MinSeverity:       row.MinSeverity,
			RatePerMinute:     row.RatePerMinute,
			MaxAttempts:       row.MaxAttempts,
			RetryDelaySeconds: row.RetryDelaySeconds,
		}
		if err := decodeJSON(row.Rules, &hook.Rules); err != nil {
			return nil, WrapDBError("decode webhook rules", err)
		}
		if err := decodeJSON(row.ASINs, &hook.ASINs); err != nil {
			return nil, WrapDBError("decode webhook asins", err)
		}
		hooks = append(hooks, hook)
	}
	return hooks, nil
}

// SaveDeliveryLog saves a new webhook delivery log
func (s *WebhookStore) SaveDeliveryLog(ctx context.Context, rec notifications.DeliveryRecord) error {
	row := WebhookLogRow{
		WebhookID:    rec.WebhookID,
		AlertID:      rec.AlertID,
		TriggeredAt:  rec.TriggeredAt,
		Status:       rec.Status,
		ErrorMessage: rec.Error,
		RetryAttempt: rec.Attempt,
	}
	if rec.HTTPStatusCode != 0 {
		code := rec.HTTPStatusCode
		row.HTTPStatusCode = &code
	}
	return WrapDBError("save webhook log", s.db.db.WithContext(ctx).Create(&row).Error)
}
