package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"competitive-insights/models"
)

const insertAlertSQL = `
INSERT INTO anomaly_alerts
	(id, asin, rule, category, severity, old_value, new_value, change_magnitude,
	 old_snapshot_id, new_snapshot_id, message, triggered_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`

// AlertStore persists anomaly alerts idempotently
type AlertStore struct {
	db *Database
}

// NewAlertStore creates a new alert store
func NewAlertStore(db *Database) *AlertStore {
	return &AlertStore{db: db}
}

// SaveAlerts inserts alerts keyed by their deterministic ID and returns only
// the ones that were not stored before.
func (s *AlertStore) SaveAlerts(ctx context.Context, alerts []models.Alert) ([]models.Alert, error) {
	if len(alerts) == 0 {
		return nil, nil
	}

	var inserted []models.Alert
	err := s.db.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted = inserted[:0]
		for _, a := range alerts {
			r := AlertRowFrom(a)
			res := tx.Exec(insertAlertSQL,
				r.ID, r.ASIN, r.Rule, r.Category, r.Severity, r.OldValue, r.NewValue, r.ChangeMagnitude,
				r.OldSnapshotID, r.NewSnapshotID, r.Message, r.TriggeredAt)
			if res.Error != nil {
				return WrapDBError("save alert", res.Error)
			}
			if res.RowsAffected > 0 {
				inserted = append(inserted, a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// Recent returns the latest alerts for asin, newest first
func (s *AlertStore) Recent(ctx context.Context, asin string, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []AlertRow
	err := s.db.db.WithContext(ctx).
		Where("asin = ?", asin).
		Order("triggered_at DESC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, WrapDBError("recent alerts", err)
	}

	out := make([]models.Alert, len(rows))
	for i, row := range rows {
		out[i] = row.Alert()
	}
	return out, nil
}

// Since returns every alert triggered at or after since, newest first.
func (s *AlertStore) Since(ctx context.Context, since time.Time) ([]models.Alert, error) {
	var rows []AlertRow
	err := s.db.db.WithContext(ctx).
		Where("triggered_at >= ?", since).
		Order("triggered_at DESC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, WrapDBError("alerts since", err)
	}

	out := make([]models.Alert, len(rows))
	for i, row := range rows {
		out[i] = row.Alert()
	}
	return out, nil
}
