package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const snapshotTriggerSQL = `
CREATE OR REPLACE FUNCTION notify_snapshot_inserted() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('` + SnapshotChannel + `', NEW.asin);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql`

// InitSchema performs auto-migration and installs the snapshot notification trigger
func (d *Database) InitSchema(ctx context.Context, log *zap.Logger) error {
	log.Info("🔄 Starting database schema initialization...")

	db := d.db.WithContext(ctx)
	if err := db.AutoMigrate(
		&SnapshotRow{},
		&GroupRow{},
		&CompetitorRow{},
		&AlertRow{},
		&ResultRow{},
		&WebhookRow{},
		&WebhookLogRow{},
	); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_competitors_group_asin
		ON competitors (group_id, asin)
	`).Error; err != nil {
		return fmt.Errorf("failed to create competitors index: %w", err)
	}

	if err := db.Exec(snapshotTriggerSQL).Error; err != nil {
		return fmt.Errorf("failed to create snapshot notify function: %w", err)
	}
	if err := db.Exec(`DROP TRIGGER IF EXISTS trg_snapshot_inserted ON product_snapshots`).Error; err != nil {
		log.Warn("⚠️ Failed to drop snapshot trigger", zap.Error(err))
	}
	if err := db.Exec(`
		CREATE TRIGGER trg_snapshot_inserted
		AFTER INSERT ON product_snapshots
		FOR EACH ROW EXECUTE FUNCTION notify_snapshot_inserted()
	`).Error; err != nil {
		return fmt.Errorf("failed to create snapshot trigger: %w", err)
	}

	log.Info("✅ Database schema initialized", zap.String("notify_channel", SnapshotChannel))
	return nil
}
