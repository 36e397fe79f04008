// Package anomaly compares consecutive snapshots of one product and emits alerts
// when metrics move past the configured thresholds.
package anomaly

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"competitive-insights/models"
)

// alertNamespace scopes the name-based UUIDs used as alert IDs.
var alertNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("competitive-insights/alert"))

// AlertID derives the deterministic alert ID from its identity tuple.
func AlertID(asin string, rule models.AlertRule, category, oldSnapshotID, newSnapshotID string) string {
	name := strings.Join([]string{asin, string(rule), category, oldSnapshotID, newSnapshotID}, "|")
	return uuid.NewSHA1(alertNamespace, []byte(name)).String()
}

// Detect evaluates every rule on the (prev, curr) snapshot pair.
// A nil prev snapshot is a cold start and yields no alerts.
func Detect(asin string, prev, curr *models.Snapshot, thresholds models.AnomalyThresholds) ([]models.Alert, error) {
	if curr == nil {
		return nil, models.NewValidationError("new_snapshot", "must not be nil")
	}
	if prev == nil {
		return nil, nil
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	if prev.ASIN != asin || curr.ASIN != asin {
		return nil, models.NewValidationErrorWithValue("asin", "snapshot pair does not belong to "+asin, prev.ASIN+"/"+curr.ASIN)
	}
	if curr.CapturedAt.Before(prev.CapturedAt) {
		return nil, models.NewValidationError("captured_at", "new snapshot precedes old snapshot")
	}

	d := pair{asin: asin, old: prev, new: curr}
	var alerts []models.Alert
	alerts = append(alerts, d.priceChange(thresholds.PricePct)...)
	alerts = append(alerts, d.bsrChange(thresholds.BSRPct)...)
	alerts = append(alerts, d.ratingChange(thresholds.RatingDelta)...)
	alerts = append(alerts, d.reviewSpike(thresholds.ReviewSpike)...)
	alerts = append(alerts, d.stockChange()...)
	return alerts, nil
}

// DetectLatest compares the two most recent snapshots in history.
// Fewer than two snapshots is a cold start.
func DetectLatest(asin string, history []*models.Snapshot, thresholds models.AnomalyThresholds) ([]models.Alert, error) {
	if len(history) < 2 {
		return nil, nil
	}
	ordered := append([]*models.Snapshot(nil), history...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CapturedAt.Before(ordered[j].CapturedAt)
	})
	n := len(ordered)
	return Detect(asin, ordered[n-2], ordered[n-1], thresholds)
}

// Merge unions alert sets by ID, keeping the first occurrence.
func Merge(existing, fresh []models.Alert) []models.Alert {
	seen := make(map[string]struct{}, len(existing)+len(fresh))
	out := make([]models.Alert, 0, len(existing)+len(fresh))
	for _, set := range [][]models.Alert{existing, fresh} {
		for _, a := range set {
			if _, ok := seen[a.ID]; ok {
				continue
			}
			seen[a.ID] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}

var two = decimal.NewFromInt(2)

// severityFor returns medium up to twice the threshold, high beyond.
func severityFor(change, threshold decimal.Decimal) models.Severity {
	if change.LessThanOrEqual(threshold.Mul(two)) {
		return models.SeverityMedium
	}
	return models.SeverityHigh
}

// delta is |new-old| in decimal.
func delta(oldValue, newValue float64) decimal.Decimal {
	return decimal.NewFromFloat(newValue).Sub(decimal.NewFromFloat(oldValue)).Abs()
}

// relativeChange is |new-old|/old. The caller guarantees old > 0.
func relativeChange(oldValue, newValue float64) decimal.Decimal {
	return delta(oldValue, newValue).Div(decimal.NewFromFloat(oldValue))
}

type pair struct {
	asin     string
	old, new *models.Snapshot
}

func (p pair) alert(rule models.AlertRule, category string, severity models.Severity, oldValue, newValue, magnitude float64, msg string) models.Alert {
	return models.Alert{
		ID:              AlertID(p.asin, rule, category, p.old.ID, p.new.ID),
		ASIN:            p.asin,
		Rule:            rule,
		Category:        category,
		Severity:        severity,
		OldValue:        oldValue,
		NewValue:        newValue,
		ChangeMagnitude: magnitude,
		OldSnapshotID:   p.old.ID,
		NewSnapshotID:   p.new.ID,
		Message:         msg,
		TriggeredAt:     p.new.CapturedAt,
	}
}

func (p pair) priceChange(threshold float64) []models.Alert {
	if p.old.Price == nil || p.new.Price == nil || *p.old.Price <= 0 {
		return nil
	}
	oldPrice, newPrice := *p.old.Price, *p.new.Price
	change, limit := relativeChange(oldPrice, newPrice), decimal.NewFromFloat(threshold)
	if !change.GreaterThan(limit) {
		return nil
	}
	msg := fmt.Sprintf("Price %s by %s%% (%.2f -> %.2f)", direction(oldPrice, newPrice), change.Shift(2).StringFixed(2), oldPrice, newPrice)
	return []models.Alert{p.alert(models.RulePriceChange, "", severityFor(change, limit), oldPrice, newPrice, change.InexactFloat64(), msg)}
}

func (p pair) bsrChange(threshold float64) []models.Alert {
	categories := make([]string, 0, len(p.new.BSR))
	for category := range p.new.BSR {
		if _, ok := p.old.BSR[category]; ok {
			categories = append(categories, category)
		}
	}
	sort.Strings(categories)

	limit := decimal.NewFromFloat(threshold)
	var alerts []models.Alert
	for _, category := range categories {
		oldRank, newRank := p.old.BSR[category], p.new.BSR[category]
		if oldRank <= 0 {
			continue
		}
		change := relativeChange(float64(oldRank), float64(newRank))
		if !change.GreaterThan(limit) {
			continue
		}
		verb := "declined"
		if newRank < oldRank {
			verb = "improved"
		}
		msg := fmt.Sprintf("BSR %s in %s: #%d -> #%d", verb, category, oldRank, newRank)
		alerts = append(alerts, p.alert(models.RuleBSRChange, category, severityFor(change, limit), float64(oldRank), float64(newRank), change.InexactFloat64(), msg))
	}
	return alerts
}

func (p pair) ratingChange(threshold float64) []models.Alert {
	if p.old.Rating == nil || p.new.Rating == nil {
		return nil
	}
	oldRating, newRating := *p.old.Rating, *p.new.Rating
	moved := delta(oldRating, newRating)
	if !moved.GreaterThan(decimal.NewFromFloat(threshold)) {
		return nil
	}
	msg := fmt.Sprintf("Rating %s by %s stars (%.1f -> %.1f)", direction(oldRating, newRating), moved.StringFixed(1), oldRating, newRating)
	return []models.Alert{p.alert(models.RuleRatingChange, "", models.SeverityMedium, oldRating, newRating, moved.InexactFloat64(), msg)}
}

func (p pair) reviewSpike(threshold int) []models.Alert {
	increase := p.new.ReviewCount - p.old.ReviewCount
	if increase <= threshold {
		return nil
	}
	msg := fmt.Sprintf("Review count increased by %d (%d -> %d)", increase, p.old.ReviewCount, p.new.ReviewCount)
	return []models.Alert{p.alert(models.RuleReviewSpike, "", models.SeverityMedium, float64(p.old.ReviewCount), float64(p.new.ReviewCount), float64(increase), msg)}
}

func (p pair) stockChange() []models.Alert {
	oldState, newState := p.old.Availability, p.new.Availability
	var msg string
	switch {
	case oldState == models.AvailabilityInStock && newState == models.AvailabilityOutOfStock:
		msg = "Product went out of stock"
	case oldState == models.AvailabilityOutOfStock && newState == models.AvailabilityInStock:
		msg = "Product back in stock"
	default:
		return nil
	}
	oldValue, newValue := stockValue(oldState), stockValue(newState)
	return []models.Alert{p.alert(models.RuleStockChange, "", models.SeverityHigh, oldValue, newValue, 1, msg)}
}

func stockValue(a models.Availability) float64 {
	if a == models.AvailabilityInStock {
		return 1
	}
	return 0
}

func direction(oldValue, newValue float64) string {
	if newValue > oldValue {
		return "increased"
	}
	return "decreased"
}

// Summarize counts alerts triggered at or after since by rule, severity and ASIN.
func Summarize(alerts []models.Alert, since time.Time) models.AlertSummary {
	s := models.AlertSummary{
		Since:      since,
		ByRule:     map[models.AlertRule]int{},
		BySeverity: map[models.Severity]int{},
		ByASIN:     map[string]int{},
	}
	for _, a := range alerts {
		if a.TriggeredAt.Before(since) {
			continue
		}
		s.Total++
		s.ByRule[a.Rule]++
		s.BySeverity[a.Severity]++
		s.ByASIN[a.ASIN]++
	}
	return s
}
