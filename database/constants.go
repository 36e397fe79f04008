package database

import "time"

// Table names
const (
	TableSnapshots   = "product_snapshots"
	TableGroups      = "competitive_groups"
	TableCompetitors = "competitors"
	TableAlerts      = "anomaly_alerts"
	TableResults     = "analysis_results"
	TableWebhooks    = "webhooks"
	TableWebhookLogs = "webhook_logs"
)

// SnapshotChannel is the NOTIFY channel fired for every inserted snapshot.
// The payload is the snapshot ASIN.
const SnapshotChannel = "snapshot_inserted"

// Listener reconnect bounds and keep-alive
const (
	ListenerMinReconnect = 10 * time.Second
	ListenerMaxReconnect = time.Minute
	ListenerPingInterval = 90 * time.Second
)

// Webhook defaults mirrored by the column defaults
const (
	DefaultWebhookAttempts      = 3
	DefaultWebhookRetryDelay    = 5
	DefaultWebhookRatePerMinute = 10
)
