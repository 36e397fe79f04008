package ratelimit

import (
	"fmt"
	"time"
)

// Window is one sliding window of a tier.
type Window struct {
	Name  string
	Limit int
	Size  time.Duration
}

// Tier is the set of windows a key is checked against. A request is admitted
// only when every window admits it.
type Tier struct {
	Name    string
	Windows []Window
}

const (
	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// Operation names used to look up request weights.
const (
	OpNarrative = "narrative"
	OpAnalysis  = "analysis"
	OpScrape    = "scrape"
	OpRead      = "read"
)

func standardWindows(minute, hour, day int) []Window {
	return []Window{
		{Name: "minute", Limit: minute, Size: time.Minute},
		{Name: "hour", Limit: hour, Size: time.Hour},
		{Name: "day", Limit: day, Size: 24 * time.Hour},
	}
}

// DefaultTiers returns the free/pro/enterprise policies.
func DefaultTiers() map[string]Tier {
	return map[string]Tier{
		TierFree:       {Name: TierFree, Windows: standardWindows(60, 1000, 10000)},
		TierPro:        {Name: TierPro, Windows: standardWindows(300, 10000, 100000)},
		TierEnterprise: {Name: TierEnterprise, Windows: standardWindows(1000, 50000, 1000000)},
	}
}

// DefaultWeights returns the cost of each metered operation.
func DefaultWeights() map[string]int {
	return map[string]int{
		OpNarrative: 50,
		OpScrape:    10,
		OpAnalysis:  5,
		OpRead:      1,
	}
}

func (w Window) validate() error {
	if w.Name == "" || w.Limit <= 0 || w.Size <= 0 {
		return fmt.Errorf("invalid window %+v", w)
	}
	return nil
}

// windowKey hash-tags the key ID so every window of one caller lands in the
// same cluster slot and the admit script can touch them together.
func windowKey(keyID string, w Window) string {
	return fmt.Sprintf("rate_limit:{%s}:%s", keyID, w.Name)
}
