package database

import (
	"encoding/json"
	"time"

	"competitive-insights/models"
)

// SnapshotRow is the persisted form of a product snapshot.
// Snapshots are append-only; the upstream tracker owns writes.
type SnapshotRow struct {
	ID           string    `gorm:"primaryKey;size:64"`
	ASIN         string    `gorm:"size:20;not null;index:idx_snapshots_asin_captured,priority:1"`
	Price        *float64  `gorm:"type:decimal(12,2)"`
	BuyboxPrice  *float64  `gorm:"type:decimal(12,2)"`
	Rating       *float64  `gorm:"type:decimal(3,2)"`
	ReviewCount  int       `gorm:"not null;default:0"`
	BSR          string    `gorm:"type:jsonb"` // category -> rank
	Availability string    `gorm:"size:20;not null"`
	Features     string    `gorm:"type:jsonb"`
	CapturedAt   time.Time `gorm:"not null;index:idx_snapshots_asin_captured,priority:2,sort:desc"`
}

// TableName specifies the table name for SnapshotRow
func (SnapshotRow) TableName() string {
	return TableSnapshots
}

// GroupRow holds a competitive group
type GroupRow struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	Name       string    `gorm:"size:200;not null"`
	MainASIN   string    `gorm:"size:20;not null;index"`
	Thresholds string    `gorm:"type:jsonb"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GroupRow
func (GroupRow) TableName() string {
	return TableGroups
}

// CompetitorRow is one competitor of a group. Position keeps input order.
type CompetitorRow struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	GroupID  int64  `gorm:"not null;index"`
	ASIN     string `gorm:"size:20;not null;index"`
	Name     string `gorm:"size:200"`
	Priority int    `gorm:"default:2"`
	Position int    `gorm:"not null"`
}

// TableName specifies the table name for CompetitorRow
func (CompetitorRow) TableName() string {
	return TableCompetitors
}

// AlertRow is a persisted anomaly alert. The primary key is the deterministic alert ID.
type AlertRow struct {
	ID              string    `gorm:"primaryKey;size:36"`
	ASIN            string    `gorm:"size:20;not null;index:idx_alerts_asin_triggered,priority:1"`
	Rule            string    `gorm:"size:30;not null"`
	Category        string    `gorm:"size:200"`
	Severity        string    `gorm:"size:10;not null"`
	OldValue        float64   `gorm:"type:double precision"`
	NewValue        float64   `gorm:"type:double precision"`
	ChangeMagnitude float64   `gorm:"type:double precision"`
	OldSnapshotID   string    `gorm:"size:64;not null"`
	NewSnapshotID   string    `gorm:"size:64;not null"`
	Message         string    `gorm:"type:text"`
	TriggeredAt     time.Time `gorm:"not null;index:idx_alerts_asin_triggered,priority:2,sort:desc"`
}

// TableName specifies the table name for AlertRow
func (AlertRow) TableName() string {
	return TableAlerts
}

// ResultRow keeps the latest analysis result per group
type ResultRow struct {
	GroupID     int64     `gorm:"primaryKey;autoIncrement:false"`
	GeneratedAt time.Time `gorm:"not null"`
	Payload     string    `gorm:"type:jsonb;not null"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for ResultRow
func (ResultRow) TableName() string {
	return TableResults
}

// WebhookRow holds webhook registration
type WebhookRow struct {
	ID                int64     `gorm:"primaryKey;autoIncrement"`
	Name              string    `gorm:"size:100;not null"`
	URL               string    `gorm:"not null"`
	Method            string    `gorm:"size:10;default:POST"`
	AuthType          string    `gorm:"size:20"`
	AuthHeader        string    `gorm:"size:100"`
	AuthValue         string
	Rules             string    `gorm:"type:jsonb"` // JSON array of rule names
	ASINs             string    `gorm:"column:asins;type:jsonb"`
	MinSeverity       string    `gorm:"size:10"`
	IsActive          bool      `gorm:"default:true"`
	MaxAttempts       int       `gorm:"default:3"`
	RetryDelaySeconds int       `gorm:"default:5"`
	RatePerMinute     int       `gorm:"default:10"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for WebhookRow
func (WebhookRow) TableName() string {
	return TableWebhooks
}

// WebhookLogRow holds webhook delivery logs
type WebhookLogRow struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	WebhookID      int64     `gorm:"index;not null"`
	AlertID        string    `gorm:"size:36"`
	TriggeredAt    time.Time `gorm:"index;not null"`
	Status         string    `gorm:"size:20"` // SUCCESS, FAILED, THROTTLED
	HTTPStatusCode *int
	ErrorMessage   string `gorm:"type:text"`
	RetryAttempt   int    `gorm:"default:0"`
}

// TableName specifies the table name for WebhookLogRow
func (WebhookLogRow) TableName() string {
	return TableWebhookLogs
}

func encodeJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func decodeJSON(s string, v interface{}) error {
	if s == "" || s == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

// SnapshotRowFrom converts a snapshot into its row form
func SnapshotRowFrom(s *models.Snapshot) SnapshotRow {
	return SnapshotRow{
		ID:           s.ID,
		ASIN:         s.ASIN,
		Price:        s.Price,
		BuyboxPrice:  s.BuyboxPrice,
		Rating:       s.Rating,
		ReviewCount:  s.ReviewCount,
		BSR:          encodeJSON(s.BSR),
		Availability: string(s.Availability),
		Features:     encodeJSON(s.Features),
		CapturedAt:   s.CapturedAt,
	}
}

// Snapshot converts the row back into a domain snapshot
func (r SnapshotRow) Snapshot() (*models.Snapshot, error) {
	s := &models.Snapshot{
		ID:           r.ID,
		ASIN:         r.ASIN,
		Price:        r.Price,
		BuyboxPrice:  r.BuyboxPrice,
		Rating:       r.Rating,
		ReviewCount:  r.ReviewCount,
		Availability: models.Availability(r.Availability),
		CapturedAt:   r.CapturedAt,
	}
	if err := decodeJSON(r.BSR, &s.BSR); err != nil {
		return nil, WrapDBError("decode snapshot bsr", err)
	}
	if err := decodeJSON(r.Features, &s.Features); err != nil {
		return nil, WrapDBError("decode snapshot features", err)
	}
	return s, nil
}

// AlertRowFrom converts an alert into its row form
func AlertRowFrom(a models.Alert) AlertRow {
	return AlertRow{
		ID:              a.ID,
		ASIN:            a.ASIN,
		Rule:            string(a.Rule),
		Category:        a.Category,
		Severity:        string(a.Severity),
		OldValue:        a.OldValue,
		NewValue:        a.NewValue,
		ChangeMagnitude: a.ChangeMagnitude,
		OldSnapshotID:   a.OldSnapshotID,
		NewSnapshotID:   a.NewSnapshotID,
		Message:         a.Message,
		TriggeredAt:     a.TriggeredAt,
	}
}

// Alert converts the row back into a domain alert
func (r AlertRow) Alert() models.Alert {
	return models.Alert{
		ID:              r.ID,
		ASIN:            r.ASIN,
		Rule:            models.AlertRule(r.Rule),
		Category:        r.Category,
		Severity:        models.Severity(r.Severity),
		OldValue:        r.OldValue,
		NewValue:        r.NewValue,
		ChangeMagnitude: r.ChangeMagnitude,
		OldSnapshotID:   r.OldSnapshotID,
		NewSnapshotID:   r.NewSnapshotID,
		Message:         r.Message,
		TriggeredAt:     r.TriggeredAt,
	}
}
