package database

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"competitive-insights/models"
)

// GroupStore reads and writes competitive group configuration
type GroupStore struct {
	db *Database
}

// NewGroupStore creates a new group store
func NewGroupStore(db *Database) *GroupStore {
	return &GroupStore{db: db}
}

// Get loads a group with its competitors in input order
func (s *GroupStore) Get(ctx context.Context, id int64) (*models.CompetitiveGroup, error) {
	db := s.db.db.WithContext(ctx)

	var row GroupRow
	if err := db.First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundErrorWithID("competitive group", id)
		}
		return nil, WrapDBError("get group", err)
	}

	var competitors []CompetitorRow
	if err := db.Where("group_id = ?", id).Order("position ASC").Find(&competitors).Error; err != nil {
		return nil, WrapDBError("get competitors", err)
	}

	thresholds, err := models.ParseThresholdsJSON([]byte(row.Thresholds))
	if err != nil {
		return nil, err
	}

	group := &models.CompetitiveGroup{
		ID:          row.ID,
		Name:        row.Name,
		MainASIN:    row.MainASIN,
		Competitors: make([]models.Competitor, 0, len(competitors)),
		Thresholds:  thresholds,
		CreatedAt:   row.CreatedAt,
	}
	for _, c := range competitors {
		group.Competitors = append(group.Competitors, models.Competitor{ASIN: c.ASIN, Name: c.Name, Priority: c.Priority})
	}
	return group, nil
}

// GroupsForASIN returns the IDs of every group tracking asin as main product or competitor
func (s *GroupStore) GroupsForASIN(ctx context.Context, asin string) ([]int64, error) {
	var ids []int64
	err := s.db.db.WithContext(ctx).Raw(`
		SELECT id FROM competitive_groups WHERE main_asin = ?
		UNION
		SELECT group_id FROM competitors WHERE asin = ?
		ORDER BY 1
	`, asin, asin).Scan(&ids).Error
	return ids, WrapDBError("groups for asin", err)
}

// ListIDs returns every group ID
func (s *GroupStore) ListIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.db.WithContext(ctx).Model(&GroupRow{}).Order("id ASC").Pluck("id", &ids).Error
	return ids, WrapDBError("list groups", err)
}

// TrackedASINs returns every ASIN referenced by any group
func (s *GroupStore) TrackedASINs(ctx context.Context) ([]string, error) {
	var asins []string
	err := s.db.db.WithContext(ctx).Raw(`
		SELECT main_asin FROM competitive_groups
		UNION
		SELECT asin FROM competitors
		ORDER BY 1
	`).Scan(&asins).Error
	return asins, WrapDBError("tracked asins", err)
}

// Save creates a group and its competitors, assigning group.ID
func (s *GroupStore) Save(ctx context.Context, group *models.CompetitiveGroup) error {
	if group.MainASIN == "" {
		return models.NewValidationError("main_asin", "must not be empty")
	}
	if err := group.Thresholds.Validate(); err != nil {
		return err
	}

	return s.db.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := GroupRow{
			Name:       group.Name,
			MainASIN:   group.MainASIN,
			Thresholds: encodeJSON(group.Thresholds),
		}
		if err := tx.Create(&row).Error; err != nil {
			return WrapDBError("create group", err)
		}

		for i, c := range group.Competitors {
			comp := CompetitorRow{GroupID: row.ID, ASIN: c.ASIN, Name: c.Name, Priority: c.Priority, Position: i}
			if err := tx.Create(&comp).Error; err != nil {
				return WrapDBError("create competitor", err)
			}
		}

		group.ID = row.ID
		group.CreatedAt = row.CreatedAt
		return nil
	})
}
