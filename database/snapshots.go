package database

import (
	"context"

	"gorm.io/gorm/clause"

	"competitive-insights/models"
)

// SnapshotStore reads product snapshots
type SnapshotStore struct {
	db *Database
}

// NewSnapshotStore creates a new snapshot store
func NewSnapshotStore(db *Database) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Latest returns the most recent snapshot for asin, or nil when none exists
func (s *SnapshotStore) Latest(ctx context.Context, asin string) (*models.Snapshot, error) {
	history, err := s.History(ctx, asin, 1)
	if err != nil || len(history) == 0 {
		return nil, err
	}
	return history[0], nil
}

// History returns up to n most recent snapshots for asin, oldest first
func (s *SnapshotStore) History(ctx context.Context, asin string, n int) ([]*models.Snapshot, error) {
	if n <= 0 {
		return nil, models.NewValidationErrorWithValue("n", "must be positive", n)
	}

	var rows []SnapshotRow
	err := s.db.db.WithContext(ctx).
		Where("asin = ?", asin).
		Order("captured_at DESC, id DESC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, WrapDBError("snapshot history", err)
	}

	out := make([]*models.Snapshot, len(rows))
	for i, row := range rows {
		snap, err := row.Snapshot()
		if err != nil {
			return nil, err
		}
		out[len(rows)-1-i] = snap
	}
	return out, nil
}

// LatestFor returns the latest snapshot of each asin that has one
func (s *SnapshotStore) LatestFor(ctx context.Context, asins []string) (map[string]*models.Snapshot, error) {
	out := make(map[string]*models.Snapshot, len(asins))
	if len(asins) == 0 {
		return out, nil
	}

	var rows []SnapshotRow
	err := s.db.db.WithContext(ctx).Raw(`
		SELECT DISTINCT ON (asin) *
		FROM product_snapshots
		WHERE asin IN ?
		ORDER BY asin, captured_at DESC, id DESC
	`, asins).Scan(&rows).Error
	if err != nil {
		return nil, WrapDBError("latest snapshots", err)
	}

	for _, row := range rows {
		snap, err := row.Snapshot()
		if err != nil {
			return nil, err
		}
		out[snap.ASIN] = snap
	}
	return out, nil
}

// Save appends a snapshot. Re-saving an existing ID is a no-op.
func (s *SnapshotStore) Save(ctx context.Context, snap *models.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	if snap.ID == "" {
		return models.NewValidationError("id", "must not be empty")
	}
	row := SnapshotRowFrom(snap)
	err := s.db.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	return WrapDBError("save snapshot", err)
}
