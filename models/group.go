package models

import "time"

// Competitor is one tracked rival inside a competitive group.
// Priority follows the original convention: 1=high, 2=medium, 3=low.
type Competitor struct {
	ASIN     string `json:"asin"`
	Name     string `json:"name,omitempty"`
	Priority int    `json:"priority"`
}

// CompetitiveGroup is the read-only configuration for one analysis run.
// Competitors keep their input order; that order breaks rank ties.
type CompetitiveGroup struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	MainASIN    string            `json:"main_asin"`
	Competitors []Competitor      `json:"competitors"`
	Thresholds  AnomalyThresholds `json:"thresholds"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ASINs returns the main ASIN followed by competitor ASINs in input order.
func (g *CompetitiveGroup) ASINs() []string {
	asins := make([]string, 0, len(g.Competitors)+1)
	asins = append(asins, g.MainASIN)
	for _, c := range g.Competitors {
		asins = append(asins, c.ASIN)
	}
	return asins
}

// Contains reports whether asin is the main product or one of the competitors.
func (g *CompetitiveGroup) Contains(asin string) bool {
	for _, a := range g.ASINs() {
		if a == asin {
			return true
		}
	}
	return false
}
