package analysis

import (
	"sort"
	"time"

	"competitive-insights/models"
)

// Analyze runs the full competitive analysis for one group.
//
// snapshots maps ASIN to that product's latest snapshot. Competitors without a
// snapshot are skipped; at least one must remain. generatedAt is the logical
// start time of the run and is copied into the result unchanged.
func Analyze(group *models.CompetitiveGroup, snapshots map[string]*models.Snapshot, generatedAt time.Time) (*models.AnalysisResult, error) {
	if group == nil {
		return nil, models.NewValidationError("group", "must not be nil")
	}
	if group.MainASIN == "" {
		return nil, models.NewValidationError("main_asin", "must not be empty")
	}

	main, ok := snapshots[group.MainASIN]
	if !ok || main == nil {
		return nil, models.NewValidationErrorWithValue("main_asin", "no snapshot for main product", group.MainASIN)
	}
	if err := checkSnapshot(group.MainASIN, main); err != nil {
		return nil, err
	}

	competitors := make([]*models.Snapshot, 0, len(group.Competitors))
	for _, c := range group.Competitors {
		if c.ASIN == group.MainASIN {
			continue
		}
		snap, ok := snapshots[c.ASIN]
		if !ok || snap == nil {
			continue
		}
		if err := checkSnapshot(c.ASIN, snap); err != nil {
			return nil, err
		}
		competitors = append(competitors, snap)
	}
	if len(competitors) == 0 {
		return nil, models.NewInsufficientData("competitors")
	}

	scores, err := Score(main, competitors)
	if err != nil {
		return nil, err
	}

	competitorFeatures := make([][]string, len(competitors))
	competitorMetrics := make([]models.ProductMetrics, len(competitors))
	for i, c := range competitors {
		competitorFeatures[i] = c.Features
		competitorMetrics[i] = models.MetricsOf(c)
	}

	return &models.AnalysisResult{
		GroupID:        group.ID,
		MainASIN:       group.MainASIN,
		GeneratedAt:    generatedAt,
		Scores:         scores,
		Positions:      Classify(scores, main, competitors),
		FeatureDiff:    CompareFeatures(main.Features, competitorFeatures),
		PerCategoryBSR: CategoryBreakdown(main, competitors),
		Price:          PriceContext(main, competitors),
		Main:           models.MetricsOf(main),
		Competitors:    competitorMetrics,
	}, nil
}

func checkSnapshot(asin string, s *models.Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.ASIN != asin {
		return models.NewValidationErrorWithValue("asin", "snapshot does not belong to "+asin, s.ASIN)
	}
	return nil
}

// CategoryBreakdown summarises every BSR category of the main product.
// Categories no competitor ranks in are reported with position unknown.
func CategoryBreakdown(main *models.Snapshot, competitors []*models.Snapshot) map[string]models.CategoryBSR {
	out := make(map[string]models.CategoryBSR, len(main.BSR))
	for category, mainRank := range main.BSR {
		ranks := categoryRanks(category, main, competitors)
		entry := models.CategoryBSR{
			MainRank:     mainRank,
			Position:     models.RankUnknown,
			BestRank:     mainRank,
			AvgRank:      float64(mainRank),
			Participants: len(ranks),
		}
		if len(ranks) > 1 {
			sorted := append([]int(nil), ranks...)
			sort.Ints(sorted)
			best, worst := sorted[0], sorted[len(sorted)-1]
			sum := 0
			for _, r := range ranks {
				sum += r
			}
			entry.BestRank = best
			entry.AvgRank = float64(sum) / float64(len(ranks))
			switch mainRank {
			case best:
				entry.Position = models.RankBest
			case worst:
				entry.Position = models.RankWorst
			default:
				entry.Position = models.RankMiddle
			}
		}
		out[category] = entry
	}
	return out
}

// PriceContext computes the market price range around the main product.
func PriceContext(main *models.Snapshot, competitors []*models.Snapshot) models.PriceStats {
	stats := models.PriceStats{MainPrice: main.Price}

	var all, comp []float64
	if main.Price != nil {
		all = append(all, *main.Price)
	}
	for _, c := range competitors {
		if c.Price == nil {
			continue
		}
		all = append(all, *c.Price)
		comp = append(comp, *c.Price)
		if main.Price != nil {
			switch {
			case *c.Price < *main.Price:
				stats.CheaperCompetitors++
			case *c.Price > *main.Price:
				stats.PricierCompetitors++
			}
		}
	}
	if len(comp) > 0 {
		avg := mean(comp)
		stats.CompetitorAvgPrice = &avg
	}
	if len(all) > 0 {
		lo, hi := all[0], all[0]
		for _, p := range all[1:] {
			if p < lo {
				lo = p
			}
			if p > hi {
				hi = p
			}
		}
		stats.MinPrice, stats.MaxPrice = &lo, &hi
	}
	return stats
}
