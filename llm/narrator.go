package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"competitive-insights/models"
)

// Completer is the chat completion call the Narrator depends on.
type Completer interface {
	ChatCompletion(ctx context.Context, messages []Message) (string, error)
}

// BreakerSettings tunes the circuit breaker around the completion endpoint.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	Interval            time.Duration
}

// DefaultBreakerSettings trips after 3 consecutive failures and probes again after a minute.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 3, OpenTimeout: time.Minute, Interval: time.Minute}
}

// Narrator turns an analysis into a narrative report using the LLM.
type Narrator struct {
	client  Completer
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewNarrator creates a Narrator. A nil client makes every call fall back.
func NewNarrator(client Completer, settings BreakerSettings, logger *zap.Logger) *Narrator {
	st := gobreaker.Settings{
		Name:        "narrative",
		MaxRequests: 1,
		Interval:    settings.Interval,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("🔌 Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &Narrator{client: client, breaker: gobreaker.NewCircuitBreaker(st), logger: logger}
}

// Generate asks the LLM for a narrative. It never returns an error: every
// failure is reported as a FallbackRequired outcome.
func (n *Narrator) Generate(ctx context.Context, result *models.AnalysisResult, alerts []models.Alert) models.NarrativeOutcome {
	if n.client == nil {
		return models.FallbackRequired("not_configured", nil)
	}
	if result == nil {
		return models.FallbackRequired("no_analysis", nil)
	}

	messages := []Message{
		{Role: "system", Content: systemMessage},
		{Role: "user", Content: FormatCompetitivePrompt(result, alerts)},
	}

	start := time.Now()
	out, err := n.breaker.Execute(func() (interface{}, error) {
		return n.client.ChatCompletion(ctx, messages)
	})
	if err != nil {
		reason := "request_failed"
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			reason = "circuit_open"
		case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
			reason = "timeout"
		case errors.Is(err, context.Canceled):
			reason = "canceled"
		}
		n.logger.Warn("⚠️  Narrative generation failed",
			zap.Int64("group_id", result.GroupID),
			zap.String("reason", reason),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return models.FallbackRequired(reason, err)
	}

	narrative, err := ParseNarrative(out.(string))
	if err != nil {
		n.logger.Warn("⚠️  Narrative response rejected", zap.Int64("group_id", result.GroupID), zap.Error(err))
		return models.FallbackRequired("invalid_response", err)
	}

	n.logger.Debug("Narrative generated", zap.Int64("group_id", result.GroupID), zap.Duration("elapsed", time.Since(start)))
	return models.NarrativeReady(narrative)
}

// ParseNarrative strictly decodes the LLM reply. Markdown code fences around
// the object are tolerated; unknown keys and an empty summary are not.
func ParseNarrative(content string) (*models.Narrative, error) {
	body := strings.TrimSpace(content)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.New("empty response")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	var n models.Narrative
	if err := dec.Decode(&n); err != nil {
		return nil, fmt.Errorf("decode narrative: %w", err)
	}
	if dec.More() {
		return nil, errors.New("trailing data after narrative object")
	}
	if strings.TrimSpace(n.ExecutiveSummary) == "" {
		return nil, errors.New("narrative has no executive summary")
	}

	for i, r := range n.Recommendations {
		if strings.TrimSpace(r.Action) == "" {
			return nil, fmt.Errorf("recommendation %d has no action", i)
		}
		switch r.Priority {
		case "high", "medium", "low":
		default:
			n.Recommendations[i].Priority = "medium"
		}
	}

	n.Strengths = nonNil(n.Strengths)
	n.Weaknesses = nonNil(n.Weaknesses)
	n.Opportunities = nonNil(n.Opportunities)
	n.Threats = nonNil(n.Threats)
	if n.Recommendations == nil {
		n.Recommendations = []models.Recommendation{}
	}
	return &n, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
