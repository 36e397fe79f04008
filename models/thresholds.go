package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Default anomaly thresholds. Percentages are fractions (0.10 == 10%).
const (
	DefaultPricePct    = 0.10
	DefaultBSRPct      = 0.20
	DefaultRatingDelta = 0.5
	DefaultReviewSpike = 100
)

// AnomalyThresholds configures the anomaly rules for a group.
type AnomalyThresholds struct {
	// PricePct triggers price_change when abs(new-old)/old exceeds it.
	PricePct float64 `json:"price_pct" yaml:"price_pct"`
	// BSRPct triggers bsr_change per category when abs(new-old)/old exceeds it.
	BSRPct float64 `json:"bsr_pct" yaml:"bsr_pct"`
	// RatingDelta triggers rating_change when abs(new-old) exceeds it.
	RatingDelta float64 `json:"rating_delta" yaml:"rating_delta"`
	// ReviewSpike triggers review_spike when new-old review count exceeds it.
	ReviewSpike int `json:"review_spike" yaml:"review_spike"`
}

// DefaultThresholds returns the documented defaults.
func DefaultThresholds() AnomalyThresholds {
	return AnomalyThresholds{
		PricePct:    DefaultPricePct,
		BSRPct:      DefaultBSRPct,
		RatingDelta: DefaultRatingDelta,
		ReviewSpike: DefaultReviewSpike,
	}
}

// Validate rejects negative thresholds.
func (t AnomalyThresholds) Validate() error {
	if t.PricePct < 0 {
		return NewValidationErrorWithValue("price_pct", "must not be negative", t.PricePct)
	}
	if t.BSRPct < 0 {
		return NewValidationErrorWithValue("bsr_pct", "must not be negative", t.BSRPct)
	}
	if t.RatingDelta < 0 {
		return NewValidationErrorWithValue("rating_delta", "must not be negative", t.RatingDelta)
	}
	if t.ReviewSpike < 0 {
		return NewValidationErrorWithValue("review_spike", "must not be negative", t.ReviewSpike)
	}
	return nil
}

// ParseThresholdsJSON decodes thresholds, rejecting unknown fields.
// Fields missing from the document keep their default value.
func ParseThresholdsJSON(data []byte) (AnomalyThresholds, error) {
	t := DefaultThresholds()
	if len(bytes.TrimSpace(data)) == 0 {
		return t, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return AnomalyThresholds{}, NewValidationError("thresholds", fmt.Sprintf("invalid document: %v", err))
	}
	if err := t.Validate(); err != nil {
		return AnomalyThresholds{}, err
	}
	return t, nil
}
