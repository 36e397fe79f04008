package analysis

import "competitive-insights/models"

// Band thresholds shared by every dimension.
const (
	LeadingThreshold     = 80.0
	CompetitiveThreshold = 50.0
)

// Band maps a score onto leading/competitive/weak; nil maps to unknown.
func Band(score *float64) string {
	switch {
	case score == nil:
		return models.PositionUnknown
	case *score >= LeadingThreshold:
		return models.PositionLeading
	case *score >= CompetitiveThreshold:
		return models.PositionCompetitive
	default:
		return models.PositionWeak
	}
}

// Classify labels every dimension. Price is overridden to lowest/highest only
// when main's price is strictly below/above every other participant price.
func Classify(scores models.Scores, main *models.Snapshot, competitors []*models.Snapshot) models.Positions {
	positions := models.Positions{
		Price:      Band(scores.Price),
		Quality:    Band(scores.Quality),
		Popularity: Band(scores.Popularity),
		Overall:    Band(scores.Overall),
	}
	if scores.Price != nil {
		if override := priceExtreme(main, competitors); override != "" {
			positions.Price = override
		}
	}
	return positions
}

func priceExtreme(main *models.Snapshot, competitors []*models.Snapshot) string {
	if main == nil || main.Price == nil {
		return ""
	}
	p := *main.Price
	lowest, highest, seen := true, true, false
	for _, c := range competitors {
		if c.Price == nil {
			continue
		}
		seen = true
		if *c.Price <= p {
			lowest = false
		}
		if *c.Price >= p {
			highest = false
		}
	}
	switch {
	case !seen:
		return ""
	case lowest:
		return models.PositionLowest
	case highest:
		return models.PositionHighest
	}
	return ""
}
