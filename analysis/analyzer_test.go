package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"competitive-insights/models"
)

func testGroup() *models.CompetitiveGroup {
	return &models.CompetitiveGroup{
		ID:       7,
		Name:     "Yoga mats",
		MainASIN: "MAIN",
		Competitors: []models.Competitor{
			{ASIN: "C1", Priority: 1},
			{ASIN: "C2", Priority: 2},
			{ASIN: "C3", Priority: 3},
		},
		Thresholds: models.DefaultThresholds(),
	}
}

func TestAnalyze(t *testing.T) {
	generatedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snapshots := map[string]*models.Snapshot{
		"MAIN": snap("MAIN", f(25), f(4.6), map[string]int{"Sports": 30, "Yoga": 2}, "non-slip", "6mm", "strap"),
		"C1":   snap("C1", f(30), f(4.2), map[string]int{"Sports": 10, "Yoga": 5}, "non-slip", "4mm"),
		"C2":   snap("C2", f(35), f(4.0), map[string]int{"Sports": 50}, "non-slip", "eco"),
		// C3 has no snapshot yet and is skipped
	}

	result, err := Analyze(testGroup(), snapshots, generatedAt)
	require.NoError(t, err)

	assert.Equal(t, int64(7), result.GroupID)
	assert.Equal(t, generatedAt, result.GeneratedAt)
	assert.Len(t, result.Competitors, 2)
	assert.Equal(t, models.PositionLowest, result.Positions.Price)
	assert.Equal(t, models.PositionLeading, result.Positions.Quality)

	sports := result.PerCategoryBSR["Sports"]
	assert.Equal(t, 30, sports.MainRank)
	assert.Equal(t, models.RankMiddle, sports.Position)
	assert.Equal(t, 10, sports.BestRank)
	assert.Equal(t, 30.0, sports.AvgRank)
	assert.Equal(t, 3, sports.Participants)

	yoga := result.PerCategoryBSR["Yoga"]
	assert.Equal(t, models.RankBest, yoga.Position)

	assert.Equal(t, []string{"6mm", "strap"}, result.FeatureDiff.Unique)
	assert.Equal(t, []string{"non-slip"}, result.FeatureDiff.Common)
	assert.Equal(t, []string{"4mm", "eco"}, result.FeatureDiff.Missing)

	require.NotNil(t, result.Price.CompetitorAvgPrice)
	assert.Equal(t, 32.5, *result.Price.CompetitorAvgPrice)
	assert.Equal(t, 2, result.Price.PricierCompetitors)
	assert.Equal(t, 25.0, *result.Price.MinPrice)
	assert.Equal(t, 35.0, *result.Price.MaxPrice)

	for _, s := range []*float64{result.Scores.Price, result.Scores.Quality, result.Scores.Popularity, result.Scores.Overall} {
		require.NotNil(t, s)
		assert.GreaterOrEqual(t, *s, 0.0)
		assert.LessOrEqual(t, *s, 100.0)
	}
}

func TestAnalyze_Errors(t *testing.T) {
	t.Run("missing main snapshot", func(t *testing.T) {
		_, err := Analyze(testGroup(), map[string]*models.Snapshot{"C1": snap("C1", f(1), nil, nil)}, time.Now())
		assert.True(t, models.IsValidation(err))
	})

	t.Run("no competitor snapshots", func(t *testing.T) {
		_, err := Analyze(testGroup(), map[string]*models.Snapshot{"MAIN": snap("MAIN", f(1), nil, nil)}, time.Now())
		assert.True(t, models.IsInsufficientData(err))
	})

	t.Run("rating out of range", func(t *testing.T) {
		snapshots := map[string]*models.Snapshot{
			"MAIN": snap("MAIN", f(1), f(5.5), nil),
			"C1":   snap("C1", f(1), nil, nil),
		}
		_, err := Analyze(testGroup(), snapshots, time.Now())
		assert.True(t, models.IsValidation(err))
	})

	t.Run("snapshot under wrong asin", func(t *testing.T) {
		snapshots := map[string]*models.Snapshot{
			"MAIN": snap("MAIN", f(1), nil, nil),
			"C1":   snap("OTHER", f(1), nil, nil),
		}
		_, err := Analyze(testGroup(), snapshots, time.Now())
		assert.True(t, models.IsValidation(err))
	})
}
