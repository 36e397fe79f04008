package models

import "time"

// Position labels.
const (
	PositionLeading     = "leading"
	PositionCompetitive = "competitive"
	PositionWeak        = "weak"
	PositionLowest      = "lowest"
	PositionHighest     = "highest"
	PositionUnknown     = "unknown"
)

// BSR category positions.
const (
	RankBest    = "best"
	RankMiddle  = "middle"
	RankWorst   = "worst"
	RankUnknown = "unknown"
)

// NarrativeSource tags which path produced a report.
type NarrativeSource string

const (
	NarrativeAI       NarrativeSource = "ai"
	NarrativeFallback NarrativeSource = "fallback"
)

// Scores holds per-dimension competitiveness in [0,100]; nil means absent.
type Scores struct {
	Price      *float64 `json:"price,omitempty"`
	Quality    *float64 `json:"quality,omitempty"`
	Popularity *float64 `json:"popularity,omitempty"`
	Overall    *float64 `json:"overall,omitempty"`
}

// Positions holds the categorical label for each dimension.
type Positions struct {
	Price      string `json:"price"`
	Quality    string `json:"quality"`
	Popularity string `json:"popularity"`
	Overall    string `json:"overall"`
}

// FeatureDiff is the set comparison of main vs competitor features.
type FeatureDiff struct {
	Unique         []string `json:"unique"`
	Common         []string `json:"common"`
	Missing        []string `json:"missing"`
	DiversityScore float64  `json:"diversity_score"`
}

// CategoryBSR summarises one BSR category for the main product.
type CategoryBSR struct {
	MainRank int     `json:"main_rank"`
	Position string  `json:"position"`
	BestRank int     `json:"best_rank"`
	AvgRank  float64 `json:"avg_rank"`
	// Participants counts the main product plus competitors ranked in the category.
	Participants int `json:"participants"`
}

// PriceStats is the market price context across all participants with a price.
type PriceStats struct {
	MainPrice          *float64 `json:"main_price,omitempty"`
	CompetitorAvgPrice *float64 `json:"competitor_avg_price,omitempty"`
	MinPrice           *float64 `json:"min_price,omitempty"`
	MaxPrice           *float64 `json:"max_price,omitempty"`
	CheaperCompetitors int      `json:"cheaper_competitors"`
	PricierCompetitors int      `json:"pricier_competitors"`
}

// ProductMetrics is the compact per-product view used for prompts and reports.
type ProductMetrics struct {
	ASIN         string       `json:"asin"`
	Price        *float64     `json:"price,omitempty"`
	Rating       *float64     `json:"rating,omitempty"`
	ReviewCount  int          `json:"review_count"`
	Availability Availability `json:"availability"`
	SnapshotID   string       `json:"snapshot_id"`
}

// MetricsOf extracts ProductMetrics from a snapshot.
func MetricsOf(s *Snapshot) ProductMetrics {
	return ProductMetrics{
		ASIN:         s.ASIN,
		Price:        s.Price,
		Rating:       s.Rating,
		ReviewCount:  s.ReviewCount,
		Availability: s.Availability,
		SnapshotID:   s.ID,
	}
}

// AnalysisResult is produced fresh on every run and replaced as a whole.
// GeneratedAt is the logical start time of the run; results are applied in
// GeneratedAt order, never in completion order.
type AnalysisResult struct {
	GroupID         int64                  `json:"group_id"`
	MainASIN        string                 `json:"main_asin"`
	GeneratedAt     time.Time              `json:"generated_at"`
	Scores          Scores                 `json:"scores"`
	Positions       Positions              `json:"positions"`
	FeatureDiff     FeatureDiff            `json:"feature_diff"`
	PerCategoryBSR  map[string]CategoryBSR `json:"per_category_bsr"`
	Price           PriceStats             `json:"price"`
	Main            ProductMetrics         `json:"main"`
	Competitors     []ProductMetrics       `json:"competitors"`
	NarrativeSource NarrativeSource        `json:"narrative_source,omitempty"`
}
