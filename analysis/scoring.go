// Package analysis implements the pure competitiveness computations: scoring,
// position classification and feature comparison. Nothing here performs I/O or
// reads the clock, so identical inputs always produce identical output.
package analysis

import (
	"sort"

	"competitive-insights/models"
)

// Score computes the per-dimension competitiveness scores of main against its
// competitors. Dimensions that cannot be computed are left nil and excluded from
// Overall. It fails only when no dimension is computable.
func Score(main *models.Snapshot, competitors []*models.Snapshot) (models.Scores, error) {
	if main == nil {
		return models.Scores{}, models.NewValidationError("main", "main snapshot is required")
	}
	if len(competitors) == 0 {
		return models.Scores{}, models.NewInsufficientData("competitors")
	}

	scores := models.Scores{
		Price:      priceScore(main, competitors),
		Quality:    qualityScore(main),
		Popularity: popularityScore(main, competitors),
	}

	var present []float64
	for _, s := range []*float64{scores.Price, scores.Quality, scores.Popularity} {
		if s != nil {
			present = append(present, *s)
		}
	}
	if len(present) == 0 {
		return models.Scores{}, models.NewInsufficientData("all")
	}
	overall := mean(present)
	scores.Overall = &overall
	return scores, nil
}

// PriceScoreForRatio maps main/competitor-average price onto [0,100].
// A ratio of 1 scores 50, half the market price scores 75, double scores 0.
func PriceScoreForRatio(ratio float64) float64 {
	return clamp((2-ratio)*50, 0, 100)
}

// QualityScoreForRating maps a 0-5 star rating onto [0,100].
func QualityScoreForRating(rating float64) float64 {
	return clamp(rating/5.0*100, 0, 100)
}

// CategoryScore converts a 1-based rank position among n participants to [0,100].
func CategoryScore(position, n int) float64 {
	if n <= 1 {
		return 100
	}
	return 100 * (1 - float64(position-1)/float64(n-1))
}

func priceScore(main *models.Snapshot, competitors []*models.Snapshot) *float64 {
	if main.Price == nil {
		return nil
	}
	var prices []float64
	for _, c := range competitors {
		if c.Price != nil {
			prices = append(prices, *c.Price)
		}
	}
	if len(prices) == 0 {
		return nil
	}
	avg := mean(prices)
	if avg <= 0 {
		return nil
	}
	s := PriceScoreForRatio(*main.Price / avg)
	return &s
}

func qualityScore(main *models.Snapshot) *float64 {
	if main.Rating == nil {
		return nil
	}
	s := QualityScoreForRating(*main.Rating)
	return &s
}

func popularityScore(main *models.Snapshot, competitors []*models.Snapshot) *float64 {
	categories := sharedCategories(main, competitors)
	if len(categories) == 0 {
		return nil
	}
	scores := make([]float64, 0, len(categories))
	for _, category := range categories {
		ranks := categoryRanks(category, main, competitors)
		scores = append(scores, CategoryScore(rankPosition(ranks), len(ranks)))
	}
	s := mean(scores)
	return &s
}

// sharedCategories returns, sorted, the BSR categories ranked for main and at
// least one competitor.
func sharedCategories(main *models.Snapshot, competitors []*models.Snapshot) []string {
	var out []string
	for category := range main.BSR {
		for _, c := range competitors {
			if _, ok := c.BSR[category]; ok {
				out = append(out, category)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// categoryRanks lists main's rank first, then competitor ranks in input order.
func categoryRanks(category string, main *models.Snapshot, competitors []*models.Snapshot) []int {
	ranks := []int{main.BSR[category]}
	for _, c := range competitors {
		if r, ok := c.BSR[category]; ok {
			ranks = append(ranks, r)
		}
	}
	return ranks
}

// rankPosition returns the 1-based position of ranks[0] after a stable sort by
// rank. Ties keep input order, so main (always first) wins every tie.
func rankPosition(ranks []int) int {
	idx := make([]int, len(ranks))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return ranks[idx[a]] < ranks[idx[b]] })
	for pos, i := range idx {
		if i == 0 {
			return pos + 1
		}
	}
	return len(ranks)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
