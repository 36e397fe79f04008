package database

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"gorm.io/gorm"

	"competitive-insights/models"
)

// ResultStore keeps the latest analysis result per group.
// Apply is last-writer-wins by GeneratedAt: a result older than (or as old as)
// the stored one is discarded, whatever order the runs finished in.
type ResultStore interface {
	Apply(ctx context.Context, result *models.AnalysisResult) (bool, error)
	Get(ctx context.Context, groupID int64) (*models.AnalysisResult, error)
}

const applyResultSQL = `
INSERT INTO analysis_results (group_id, generated_at, payload, updated_at)
VALUES (?, ?, ?, NOW())
ON CONFLICT (group_id) DO UPDATE
SET generated_at = EXCLUDED.generated_at,
	payload = EXCLUDED.payload,
	updated_at = NOW()
WHERE analysis_results.generated_at < EXCLUDED.generated_at`

// PostgresResultStore is the ResultStore backed by analysis_results
type PostgresResultStore struct {
	db *Database
}

// NewResultStore creates a new postgres-backed result store
func NewResultStore(db *Database) *PostgresResultStore {
	return &PostgresResultStore{db: db}
}

// Apply stores result when it is newer than the stored one
func (s *PostgresResultStore) Apply(ctx context.Context, result *models.AnalysisResult) (bool, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return false, WrapDBError("encode result", err)
	}

	res := s.db.db.WithContext(ctx).Exec(applyResultSQL, result.GroupID, result.GeneratedAt, string(payload))
	if res.Error != nil {
		return false, WrapDBError("apply result", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Get returns the stored result for groupID
func (s *PostgresResultStore) Get(ctx context.Context, groupID int64) (*models.AnalysisResult, error) {
	var row ResultRow
	if err := s.db.db.WithContext(ctx).First(&row, "group_id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundErrorWithID("analysis result", groupID)
		}
		return nil, WrapDBError("get result", err)
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(row.Payload), &result); err != nil {
		return nil, WrapDBError("decode result", err)
	}
	return &result, nil
}

// MemoryResultStore is an in-process ResultStore
type MemoryResultStore struct {
	mu      sync.Mutex
	results map[int64]*models.AnalysisResult
}

// NewMemoryResultStore creates an empty in-process result store
func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{results: make(map[int64]*models.AnalysisResult)}
}

// Apply stores result when it is newer than the stored one
func (s *MemoryResultStore) Apply(_ context.Context, result *models.AnalysisResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.results[result.GroupID]; ok && !cur.GeneratedAt.Before(result.GeneratedAt) {
		return false, nil
	}
	cp := *result
	s.results[result.GroupID] = &cp
	return true, nil
}

// Get returns the stored result for groupID
func (s *MemoryResultStore) Get(_ context.Context, groupID int64) (*models.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.results[groupID]
	if !ok {
		return nil, NewNotFoundErrorWithID("analysis result", groupID)
	}
	cp := *r
	return &cp, nil
}
