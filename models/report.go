package models

// Recommendation is one actionable item in a report.
type Recommendation struct {
	Category  string `json:"category"`
	Priority  string `json:"priority"`
	Action    string `json:"action"`
	Rationale string `json:"rationale"`
}

// Report has a fixed shape regardless of which path produced it.
type Report struct {
	ExecutiveSummary string           `json:"executive_summary"`
	Strengths        []string         `json:"strengths"`
	Weaknesses       []string         `json:"weaknesses"`
	Opportunities    []string         `json:"opportunities"`
	Threats          []string         `json:"threats"`
	Recommendations  []Recommendation `json:"recommendations"`
	NarrativeSource  NarrativeSource  `json:"narrative_source"`
}

// Narrative is the body returned by the narrative service.
type Narrative struct {
	ExecutiveSummary string           `json:"executive_summary"`
	Strengths        []string         `json:"strengths"`
	Weaknesses       []string         `json:"weaknesses"`
	Opportunities    []string         `json:"opportunities"`
	Threats          []string         `json:"threats"`
	Recommendations  []Recommendation `json:"recommendations"`
}

// NarrativeOutcome is either a ready narrative or a request to fall back.
// Exactly one of Narrative / Failure is set.
type NarrativeOutcome struct {
	Narrative *Narrative
	Failure   *NarrativeFailure
}

// NarrativeReady wraps a successful narrative.
func NarrativeReady(n *Narrative) NarrativeOutcome {
	return NarrativeOutcome{Narrative: n}
}

// FallbackRequired signals the caller to use the structured fallback.
func FallbackRequired(reason string, err error) NarrativeOutcome {
	return NarrativeOutcome{Failure: &NarrativeFailure{Reason: reason, Err: err}}
}

// Ready reports whether a narrative is available.
func (o NarrativeOutcome) Ready() bool {
	return o.Narrative != nil && o.Failure == nil
}
