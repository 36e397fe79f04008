package models

import "time"

// AlertRule names the anomaly rule that fired.
type AlertRule string

const (
	RulePriceChange  AlertRule = "price_change"
	RuleBSRChange    AlertRule = "bsr_change"
	RuleRatingChange AlertRule = "rating_change"
	RuleReviewSpike  AlertRule = "review_spike"
	RuleStockChange  AlertRule = "stock_change"
)

// Severity of an alert.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Alert is an immutable anomaly notification produced by the anomaly detector.
//
// Identity is (ASIN, Rule, Category, OldSnapshotID, NewSnapshotID); ID is derived
// from it so re-running detection on the same snapshot pair yields the same ID.
// Category is empty for every rule except bsr_change.
// For stock_change OldValue/NewValue encode availability as 1 (in stock) / 0.
type Alert struct {
	ID              string    `json:"id"`
	ASIN            string    `json:"asin"`
	Rule            AlertRule `json:"rule"`
	Category        string    `json:"category,omitempty"`
	Severity        Severity  `json:"severity"`
	OldValue        float64   `json:"old_value"`
	NewValue        float64   `json:"new_value"`
	ChangeMagnitude float64   `json:"change_magnitude"`
	OldSnapshotID   string    `json:"old_snapshot_id"`
	NewSnapshotID   string    `json:"new_snapshot_id"`
	Message         string    `json:"message"`
	TriggeredAt     time.Time `json:"triggered_at"`
}

// AlertSummary counts the alerts triggered at or after Since.
type AlertSummary struct {
	Since      time.Time         `json:"since"`
	Total      int               `json:"total_alerts"`
	ByRule     map[AlertRule]int `json:"by_rule"`
	BySeverity map[Severity]int  `json:"by_severity"`
	ByASIN     map[string]int    `json:"by_asin"`
}
