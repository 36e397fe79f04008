package llm

import (
	"fmt"
	"sort"
	"strings"

	"competitive-insights/models"
)

// Limits keeping prompts bounded
const (
	maxCompetitors = 5
	maxAlerts      = 10
	maxFeatures    = 8
)

const systemMessage = "You are a meticulous e-commerce competitive analyst. Base every statement strictly on the data provided, cite the numbers you rely on, and never invent facts. Reply with a single JSON object and nothing else."

func formatOptional(ptr *float64, format string) string {
	if ptr == nil {
		return "N/A"
	}
	return fmt.Sprintf(format, *ptr)
}

// FormatCompetitivePrompt renders the analysis and recent alerts as the user prompt
func FormatCompetitivePrompt(result *models.AnalysisResult, alerts []models.Alert) string {
	var sb strings.Builder
	sb.Grow(2048 + len(result.Competitors)*160 + len(alerts)*120)

	sb.WriteString("Analyze the following Amazon competitive landscape.\n\n")

	m := result.Main
	sb.WriteString(fmt.Sprintf("MAIN PRODUCT %s\n", m.ASIN))
	sb.WriteString(fmt.Sprintf("- Price: %s\n", formatOptional(m.Price, "$%.2f")))
	sb.WriteString(fmt.Sprintf("- Rating: %s/5.0 (%d reviews)\n", formatOptional(m.Rating, "%.1f"), m.ReviewCount))
	sb.WriteString(fmt.Sprintf("- Availability: %s\n\n", m.Availability))

	sb.WriteString(fmt.Sprintf("COMPETITORS (%d products)\n", len(result.Competitors)))
	for i, c := range result.Competitors {
		if i >= maxCompetitors {
			sb.WriteString(fmt.Sprintf("... and %d more\n", len(result.Competitors)-maxCompetitors))
			break
		}
		sb.WriteString(fmt.Sprintf("%d. %s price %s, rating %s, %d reviews, %s\n",
			i+1, c.ASIN, formatOptional(c.Price, "$%.2f"), formatOptional(c.Rating, "%.1f"), c.ReviewCount, c.Availability))
	}

	s := result.Scores
	sb.WriteString("\nSCORES (0-100)\n")
	sb.WriteString(fmt.Sprintf("- Price: %s (%s)\n", formatOptional(s.Price, "%.1f"), result.Positions.Price))
	sb.WriteString(fmt.Sprintf("- Quality: %s (%s)\n", formatOptional(s.Quality, "%.1f"), result.Positions.Quality))
	sb.WriteString(fmt.Sprintf("- Popularity: %s (%s)\n", formatOptional(s.Popularity, "%.1f"), result.Positions.Popularity))
	sb.WriteString(fmt.Sprintf("- Overall: %s (%s)\n", formatOptional(s.Overall, "%.1f"), result.Positions.Overall))

	p := result.Price
	sb.WriteString(fmt.Sprintf("\nPRICE CONTEXT: competitor average %s, range %s - %s, %d cheaper and %d pricier competitors\n",
		formatOptional(p.CompetitorAvgPrice, "$%.2f"), formatOptional(p.MinPrice, "$%.2f"), formatOptional(p.MaxPrice, "$%.2f"),
		p.CheaperCompetitors, p.PricierCompetitors))

	if len(result.PerCategoryBSR) > 0 {
		categories := make([]string, 0, len(result.PerCategoryBSR))
		for c := range result.PerCategoryBSR {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		sb.WriteString("\nBEST SELLER RANK\n")
		for _, c := range categories {
			b := result.PerCategoryBSR[c]
			sb.WriteString(fmt.Sprintf("- %s: #%d (%s, best #%d, average #%.0f)\n", c, b.MainRank, b.Position, b.BestRank, b.AvgRank))
		}
	}

	fd := result.FeatureDiff
	sb.WriteString("\nFEATURES\n")
	sb.WriteString(fmt.Sprintf("- Unique to main: %s\n", joinLimited(fd.Unique)))
	sb.WriteString(fmt.Sprintf("- Missing from main: %s\n", joinLimited(fd.Missing)))
	sb.WriteString(fmt.Sprintf("- Shared: %d, diversity score %.1f\n", len(fd.Common), fd.DiversityScore))

	if len(alerts) > 0 {
		sb.WriteString("\nRECENT ALERTS\n")
		for i, a := range alerts {
			if i >= maxAlerts {
				break
			}
			sb.WriteString(fmt.Sprintf("- [%s] %s %s: %s\n", a.Severity, a.ASIN, a.Rule, a.Message))
		}
	}

	sb.WriteString("\nReturn a JSON object with exactly these keys:\n")
	sb.WriteString(`{"executive_summary": string, "strengths": [string], "weaknesses": [string], "opportunities": [string], "threats": [string], `)
	sb.WriteString(`"recommendations": [{"category": string, "priority": "high"|"medium"|"low", "action": string, "rationale": string}]}`)
	sb.WriteString("\nFocus on actionable insights for the main product seller.")

	return sb.String()
}

func joinLimited(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	if len(items) > maxFeatures {
		return strings.Join(items[:maxFeatures], ", ") + fmt.Sprintf(" (+%d more)", len(items)-maxFeatures)
	}
	return strings.Join(items, ", ")
}
