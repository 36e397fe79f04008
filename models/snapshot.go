// Package models holds the domain types shared by the competitive analysis core.
//
// Snapshots are produced upstream (scraper + parser) and are immutable once stored.
// Everything in this package is a plain value type; behaviour lives in analysis,
// anomaly, report and the infrastructure packages.
package models

import (
	"strings"
	"time"
)

// Availability is the categorical stock state captured in a snapshot.
type Availability string

const (
	AvailabilityInStock    Availability = "in_stock"
	AvailabilityOutOfStock Availability = "out_of_stock"
	AvailabilityUnknown    Availability = "unknown"
)

// ParseAvailability maps free text ("In Stock", "Currently unavailable") onto the enum.
// Empty or unrecognised text maps to unknown.
func ParseAvailability(s string) Availability {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case v == string(AvailabilityInStock), strings.Contains(v, "in stock"):
		return AvailabilityInStock
	case v == string(AvailabilityOutOfStock), strings.Contains(v, "out of stock"), strings.Contains(v, "unavailable"):
		return AvailabilityOutOfStock
	default:
		return AvailabilityUnknown
	}
}

// Snapshot is a point-in-time capture of one product listing.
//
// Key Fields:
//   - ID: stable snapshot identifier assigned by the snapshot store
//   - Price/BuyboxPrice/Rating: optional, nil when the page did not expose them
//   - BSR: Best Sellers Rank per category (lower is better, always >= 1)
//   - Features: already-normalized feature strings supplied by the extractor
type Snapshot struct {
	ID           string         `json:"id"`
	ASIN         string         `json:"asin"`
	Price        *float64       `json:"price,omitempty"`
	BuyboxPrice  *float64       `json:"buybox_price,omitempty"`
	Rating       *float64       `json:"rating,omitempty"`
	ReviewCount  int            `json:"review_count"`
	BSR          map[string]int `json:"bsr,omitempty"`
	Availability Availability   `json:"availability"`
	Features     []string       `json:"features,omitempty"`
	CapturedAt   time.Time      `json:"captured_at"`
}

// Validate checks the snapshot against the data model constraints.
func (s *Snapshot) Validate() error {
	if s == nil {
		return NewValidationError("snapshot", "must not be nil")
	}
	if strings.TrimSpace(s.ASIN) == "" {
		return NewValidationError("asin", "must not be empty")
	}
	if s.Price != nil && *s.Price <= 0 {
		return NewValidationErrorWithValue("price", "must be positive", *s.Price)
	}
	if s.BuyboxPrice != nil && *s.BuyboxPrice <= 0 {
		return NewValidationErrorWithValue("buybox_price", "must be positive", *s.BuyboxPrice)
	}
	if s.Rating != nil && (*s.Rating < 0 || *s.Rating > 5) {
		return NewValidationErrorWithValue("rating", "must be within [0,5]", *s.Rating)
	}
	if s.ReviewCount < 0 {
		return NewValidationErrorWithValue("review_count", "must not be negative", s.ReviewCount)
	}
	for category, rank := range s.BSR {
		if rank < 1 {
			return NewValidationErrorWithValue("bsr."+category, "rank must be >= 1", rank)
		}
	}
	switch s.Availability {
	case AvailabilityInStock, AvailabilityOutOfStock, AvailabilityUnknown:
	case "":
		// zero value is treated as unknown
	default:
		return NewValidationErrorWithValue("availability", "unknown availability", s.Availability)
	}
	return nil
}

// FeatureSet returns the snapshot features as a set.
func (s *Snapshot) FeatureSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.Features))
	for _, f := range s.Features {
		set[f] = struct{}{}
	}
	return set
}

// Float64Ptr is a small helper for optional numeric fields.
func Float64Ptr(v float64) *float64 {
	return &v
}
