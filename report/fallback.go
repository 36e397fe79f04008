package report

import (
	"fmt"
	"sort"
	"strings"

	"competitive-insights/helpers"
	"competitive-insights/models"
)

// Score bands used by the templates.
const (
	strongScore = 80.0
	weakScore   = 50.0
	solidScore  = 70.0
	poorScore   = 40.0
)

// Fallback builds a report deterministically from the analysis and alerts.
// Every statement cites the metric it is derived from.
func Fallback(result *models.AnalysisResult, alerts []models.Alert) models.Report {
	b := &builder{result: result}
	b.summary()
	b.scores()
	b.pricePosition()
	b.categories()
	b.features()
	for _, a := range sortedAlerts(alerts) {
		b.alert(a)
	}
	b.recommendations(alerts)
	return b.report()
}

type builder struct {
	result *models.AnalysisResult

	summaryText   string
	strengths     []string
	weaknesses    []string
	opportunities []string
	threats       []string
	recs          []models.Recommendation
}

func (b *builder) report() models.Report {
	return models.Report{
		ExecutiveSummary: b.summaryText,
		Strengths:        nonNil(b.strengths),
		Weaknesses:       nonNil(b.weaknesses),
		Opportunities:    nonNil(b.opportunities),
		Threats:          nonNil(b.threats),
		Recommendations:  append([]models.Recommendation{}, b.recs...),
		NarrativeSource:  models.NarrativeFallback,
	}
}

func performance(overall float64) string {
	switch {
	case overall >= strongScore:
		return "exceptionally strong"
	case overall >= 60:
		return "competitive"
	case overall >= poorScore:
		return "moderate"
	default:
		return "challenging"
	}
}

func scoreText(score *float64) string {
	if score == nil {
		return "not scored"
	}
	return helpers.FormatScore(*score)
}

func (b *builder) summary() {
	r := b.result
	var sb strings.Builder
	if r.Scores.Overall != nil {
		sb.WriteString(fmt.Sprintf("%s shows %s market positioning with an overall competitiveness score of %s (%s).",
			r.MainASIN, performance(*r.Scores.Overall), helpers.FormatScore(*r.Scores.Overall), r.Positions.Overall))
	} else {
		sb.WriteString(fmt.Sprintf("%s could not be given an overall competitiveness score.", r.MainASIN))
	}
	sb.WriteString(fmt.Sprintf(" Price score %s (%s), quality score %s (%s), popularity score %s (%s) against %d competitors.",
		scoreText(r.Scores.Price), r.Positions.Price,
		scoreText(r.Scores.Quality), r.Positions.Quality,
		scoreText(r.Scores.Popularity), r.Positions.Popularity,
		len(r.Competitors)))
	b.summaryText = sb.String()
}

func (b *builder) scores() {
	r := b.result
	p := r.Price

	if s := r.Scores.Price; s != nil {
		detail := fmt.Sprintf("main price %s vs competitor average %s", helpers.FormatUSDPtr(p.MainPrice), helpers.FormatUSDPtr(p.CompetitorAvgPrice))
		switch {
		case *s >= strongScore:
			b.strengths = append(b.strengths, fmt.Sprintf("price_score %s: %s", helpers.FormatScore(*s), detail))
		case *s < weakScore:
			b.weaknesses = append(b.weaknesses, fmt.Sprintf("price_score %s: %s", helpers.FormatScore(*s), detail))
		}
	}

	if s := r.Scores.Quality; s != nil {
		detail := fmt.Sprintf("rating %s from %d reviews", ratingText(r.Main.Rating), r.Main.ReviewCount)
		switch {
		case *s >= strongScore:
			b.strengths = append(b.strengths, fmt.Sprintf("quality_score %s: %s", helpers.FormatScore(*s), detail))
		case *s < weakScore:
			b.weaknesses = append(b.weaknesses, fmt.Sprintf("quality_score %s: %s", helpers.FormatScore(*s), detail))
		default:
			b.opportunities = append(b.opportunities, fmt.Sprintf("quality_score %s (%s) leaves room to reach %.0f", helpers.FormatScore(*s), detail, strongScore))
		}
	}

	if s := r.Scores.Popularity; s != nil {
		switch {
		case *s >= strongScore:
			b.strengths = append(b.strengths, fmt.Sprintf("popularity_score %s across shared best seller categories", helpers.FormatScore(*s)))
		case *s < weakScore:
			b.weaknesses = append(b.weaknesses, fmt.Sprintf("popularity_score %s across shared best seller categories", helpers.FormatScore(*s)))
		}
	}

	if s := r.Scores.Overall; s != nil {
		switch {
		case *s > solidScore:
			b.strengths = append(b.strengths, fmt.Sprintf("overall_score %s indicates strong overall market positioning", helpers.FormatScore(*s)))
		case *s < poorScore:
			b.threats = append(b.threats, fmt.Sprintf("overall_score %s indicates a weak competitive position", helpers.FormatScore(*s)))
		}
	}
}

func (b *builder) pricePosition() {
	r := b.result
	p := r.Price
	switch r.Positions.Price {
	case models.PositionLowest:
		b.strengths = append(b.strengths, fmt.Sprintf("Lowest price in the group at %s (competitor average %s)",
			helpers.FormatUSDPtr(p.MainPrice), helpers.FormatUSDPtr(p.CompetitorAvgPrice)))
	case models.PositionHighest:
		b.weaknesses = append(b.weaknesses, fmt.Sprintf("Highest price in the group at %s; %d of %d competitors are cheaper (competitor average %s)",
			helpers.FormatUSDPtr(p.MainPrice), p.CheaperCompetitors, len(r.Competitors), helpers.FormatUSDPtr(p.CompetitorAvgPrice)))
	}
}

func (b *builder) categories() {
	r := b.result
	names := make([]string, 0, len(r.PerCategoryBSR))
	for c := range r.PerCategoryBSR {
		names = append(names, c)
	}
	sort.Strings(names)

	for _, c := range names {
		cat := r.PerCategoryBSR[c]
		switch cat.Position {
		case models.RankBest:
			b.strengths = append(b.strengths, fmt.Sprintf("Best seller rank #%d in %s is the best among %d ranked products", cat.MainRank, c, cat.Participants))
		case models.RankWorst:
			b.weaknesses = append(b.weaknesses, fmt.Sprintf("Best seller rank #%d in %s trails the category best of #%d", cat.MainRank, c, cat.BestRank))
		}
	}
}

func (b *builder) features() {
	fd := b.result.FeatureDiff
	if len(fd.Unique) > 0 {
		b.strengths = append(b.strengths, fmt.Sprintf("%d unique features not offered by competitors: %s", len(fd.Unique), strings.Join(fd.Unique, ", ")))
	}
	if len(fd.Missing) > 0 {
		b.opportunities = append(b.opportunities, fmt.Sprintf("%d features offered by competitors are missing: %s", len(fd.Missing), strings.Join(fd.Missing, ", ")))
	}
}

// alert maps one active alert to one statement. Movements of the main product
// are judged from its point of view; competitor movements are the inverse.
func (b *builder) alert(a models.Alert) {
	main := a.ASIN == b.result.MainASIN
	who := "Competitor " + a.ASIN
	if main {
		who = "Main product " + a.ASIN
	}

	switch a.Rule {
	case models.RulePriceChange:
		text := fmt.Sprintf("%s price moved %s -> %s (%s change, %s severity)",
			who, helpers.FormatUSD(a.OldValue), helpers.FormatUSD(a.NewValue), helpers.FormatPercent(a.ChangeMagnitude), a.Severity)
		if !main && a.NewValue > a.OldValue {
			b.opportunities = append(b.opportunities, text)
		} else {
			b.threats = append(b.threats, text)
		}
	case models.RuleBSRChange:
		text := fmt.Sprintf("%s best seller rank in %s moved #%.0f -> #%.0f (%s change)",
			who, a.Category, a.OldValue, a.NewValue, helpers.FormatPercent(a.ChangeMagnitude))
		improved := a.NewValue < a.OldValue
		switch {
		case main && improved:
			b.strengths = append(b.strengths, text)
		case main:
			b.threats = append(b.threats, text)
		case improved:
			b.threats = append(b.threats, text)
		default:
			b.opportunities = append(b.opportunities, text)
		}
	case models.RuleRatingChange:
		text := fmt.Sprintf("%s rating moved %.1f -> %.1f", who, a.OldValue, a.NewValue)
		up := a.NewValue > a.OldValue
		switch {
		case main && up:
			b.strengths = append(b.strengths, text)
		case main:
			b.weaknesses = append(b.weaknesses, text)
		case up:
			b.threats = append(b.threats, text)
		default:
			b.opportunities = append(b.opportunities, text)
		}
	case models.RuleReviewSpike:
		text := fmt.Sprintf("%s gained %.0f reviews (%.0f -> %.0f)", who, a.ChangeMagnitude, a.OldValue, a.NewValue)
		if main {
			b.strengths = append(b.strengths, text)
		} else {
			b.threats = append(b.threats, text)
		}
	case models.RuleStockChange:
		out := a.NewValue == 0
		state := "back in stock"
		if out {
			state = "went out of stock"
		}
		text := fmt.Sprintf("%s %s", who, state)
		switch {
		case main && out:
			b.threats = append(b.threats, text)
		case main:
			b.strengths = append(b.strengths, text)
		case out:
			b.opportunities = append(b.opportunities, text)
		default:
			b.threats = append(b.threats, text)
		}
	}
}

func (b *builder) recommendations(alerts []models.Alert) {
	r := b.result
	p := r.Price

	if r.Positions.Price == models.PositionHighest {
		b.recs = append(b.recs, models.Recommendation{
			Category:  "pricing",
			Priority:  "high",
			Action:    "Consider price adjustment",
			Rationale: fmt.Sprintf("Main price %s is the highest; %d competitors are priced lower (average %s)", helpers.FormatUSDPtr(p.MainPrice), p.CheaperCompetitors, helpers.FormatUSDPtr(p.CompetitorAvgPrice)),
		})
	}

	if q := r.Scores.Quality; q != nil && *q < strongScore {
		b.recs = append(b.recs, models.Recommendation{
			Category:  "quality",
			Priority:  "medium",
			Action:    "Improve product quality and customer experience",
			Rationale: fmt.Sprintf("quality_score %s at rating %s", helpers.FormatScore(*q), ratingText(r.Main.Rating)),
		})
	}

	if missing := r.FeatureDiff.Missing; len(missing) > 0 {
		b.recs = append(b.recs, models.Recommendation{
			Category:  "features",
			Priority:  "medium",
			Action:    "Evaluate adding missing features",
			Rationale: fmt.Sprintf("Competitors offer %d features the main product lacks: %s", len(missing), strings.Join(missing, ", ")),
		})
	}

	for _, a := range sortedAlerts(alerts) {
		if a.ASIN == r.MainASIN && a.Rule == models.RuleStockChange && a.NewValue == 0 {
			b.recs = append(b.recs, models.Recommendation{
				Category:  "inventory",
				Priority:  "high",
				Action:    "Restore inventory",
				Rationale: fmt.Sprintf("Main product %s went out of stock", a.ASIN),
			})
			break
		}
	}

	if o := r.Scores.Overall; o != nil && *o < weakScore {
		b.recs = append(b.recs, models.Recommendation{
			Category:  "strategy",
			Priority:  "high",
			Action:    "Comprehensive competitive strategy review",
			Rationale: fmt.Sprintf("overall_score %s indicates strategic challenges", helpers.FormatScore(*o)),
		})
	}
}

func ratingText(rating *float64) string {
	if rating == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f", *rating)
}

// sortedAlerts orders alerts so the report does not depend on input order.
func sortedAlerts(alerts []models.Alert) []models.Alert {
	out := append([]models.Alert(nil), alerts...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ASIN != out[j].ASIN {
			return out[i].ASIN < out[j].ASIN
		}
		if out[i].Rule != out[j].Rule {
			return out[i].Rule < out[j].Rule
		}
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].TriggeredAt.Before(out[j].TriggeredAt)
	})
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
