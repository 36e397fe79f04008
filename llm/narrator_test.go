package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"competitive-insights/models"
)

const validReply = `{
	"executive_summary": "Main product leads on price at $19.99.",
	"strengths": ["Lowest price in group"],
	"weaknesses": ["Rating 3.9 trails competitors"],
	"opportunities": [],
	"threats": ["B0COMP1 rank improving"],
	"recommendations": [{"category": "quality", "priority": "high", "action": "Address top complaints", "rationale": "Rating 3.9 vs 4.4 average"}]
}`

func sampleResult() *models.AnalysisResult {
	return &models.AnalysisResult{
		GroupID:  7,
		MainASIN: "B0MAIN",
		Scores:   models.Scores{Price: models.Float64Ptr(80), Overall: models.Float64Ptr(61.5)},
		Positions: models.Positions{
			Price: models.PositionLeading, Quality: models.PositionUnknown,
			Popularity: models.PositionUnknown, Overall: models.PositionCompetitive,
		},
		Main:        models.ProductMetrics{ASIN: "B0MAIN", Price: models.Float64Ptr(19.99), Availability: models.AvailabilityInStock},
		Competitors: []models.ProductMetrics{{ASIN: "B0COMP1", Price: models.Float64Ptr(24.99)}},
		PerCategoryBSR: map[string]models.CategoryBSR{
			"Kitchen": {MainRank: 120, Position: models.RankBest, BestRank: 120, AvgRank: 300},
		},
		FeatureDiff: models.FeatureDiff{Unique: []string{"dishwasher safe"}, Common: []string{}, Missing: []string{"bpa free"}},
	}
}

type stubCompleter struct {
	calls atomic.Int32
	reply string
	err   error
	block bool
}

func (s *stubCompleter) ChatCompletion(ctx context.Context, _ []Message) (string, error) {
	s.calls.Add(1)
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.reply, s.err
}

func TestNarrator_Ready(t *testing.T) {
	n := NewNarrator(&stubCompleter{reply: "```json\n" + validReply + "\n```"}, DefaultBreakerSettings(), zap.NewNop())

	out := n.Generate(context.Background(), sampleResult(), nil)
	require.True(t, out.Ready())
	assert.Equal(t, "Main product leads on price at $19.99.", out.Narrative.ExecutiveSummary)
	assert.Equal(t, []string{}, out.Narrative.Opportunities)
	require.Len(t, out.Narrative.Recommendations, 1)
	assert.Equal(t, "high", out.Narrative.Recommendations[0].Priority)
}

func TestNarrator_Fallbacks(t *testing.T) {
	tests := []struct {
		name   string
		client Completer
		reason string
	}{
		{"not configured", nil, "not_configured"},
		{"request error", &stubCompleter{err: errors.New("502 bad gateway")}, "request_failed"},
		{"malformed reply", &stubCompleter{reply: "Sure! Here is your report."}, "invalid_response"},
		{"unknown keys", &stubCompleter{reply: `{"executive_summary": "x", "confidence": 0.9}`}, "invalid_response"},
		{"empty summary", &stubCompleter{reply: `{"executive_summary": "  "}`}, "invalid_response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNarrator(tt.client, DefaultBreakerSettings(), zap.NewNop())
			out := n.Generate(context.Background(), sampleResult(), nil)
			assert.False(t, out.Ready())
			require.NotNil(t, out.Failure)
			assert.Equal(t, tt.reason, out.Failure.Reason)
		})
	}
}

func TestNarrator_Timeout(t *testing.T) {
	n := NewNarrator(&stubCompleter{block: true}, DefaultBreakerSettings(), zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out := n.Generate(ctx, sampleResult(), nil)
	require.NotNil(t, out.Failure)
	assert.Equal(t, "timeout", out.Failure.Reason)
}

func TestNarrator_CircuitOpens(t *testing.T) {
	stub := &stubCompleter{err: errors.New("connection refused")}
	n := NewNarrator(stub, BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute, Interval: time.Minute}, zap.NewNop())

	for i := 0; i < 2; i++ {
		out := n.Generate(context.Background(), sampleResult(), nil)
		assert.Equal(t, "request_failed", out.Failure.Reason)
	}

	out := n.Generate(context.Background(), sampleResult(), nil)
	require.NotNil(t, out.Failure)
	assert.Equal(t, "circuit_open", out.Failure.Reason)
	assert.Equal(t, int32(2), stub.calls.Load(), "open breaker must not call the endpoint")
}

func TestClient_ChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)
		assert.Len(t, req.Messages, 2)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": validReply}},
			},
		})
	}))
	defer srv.Close()

	n := NewNarrator(NewClient(srv.URL, "secret", "test-model"), DefaultBreakerSettings(), zap.NewNop())
	out := n.Generate(context.Background(), sampleResult(), nil)
	require.True(t, out.Ready())
	assert.Contains(t, out.Narrative.ExecutiveSummary, "$19.99")
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k", "m").ChatCompletion(context.Background(), []Message{{Role: "user", Content: "hi"}})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
}

func TestFormatCompetitivePrompt(t *testing.T) {
	alerts := []models.Alert{{ASIN: "B0COMP1", Rule: models.RulePriceChange, Severity: models.SeverityHigh, Message: "Price decreased by 25.00% (24.99 -> 18.74)"}}
	prompt := FormatCompetitivePrompt(sampleResult(), alerts)

	for _, want := range []string{"B0MAIN", "$19.99", "B0COMP1", "Kitchen: #120 (best", "dishwasher safe", "bpa free", "Price decreased by 25.00%", "executive_summary"} {
		assert.True(t, strings.Contains(prompt, want), "prompt missing %q", want)
	}
	assert.Contains(t, prompt, "Quality: N/A (unknown)")
}
