// Package report assembles the competitive report, preferring the narrative
// service and falling back to a deterministic template rendering.
package report

import (
	"context"
	"time"

	"go.uber.org/zap"

	"competitive-insights/metrics"
	"competitive-insights/models"
	"competitive-insights/ratelimit"
)

// NarrativeService produces a narrative for an analysis.
type NarrativeService interface {
	Generate(ctx context.Context, result *models.AnalysisResult, alerts []models.Alert) models.NarrativeOutcome
}

// Limiter gates calls into the narrative service.
type Limiter interface {
	AllowOperation(ctx context.Context, keyID, tier, op string) (ratelimit.Decision, error)
}

// Assembler produces reports of a fixed shape on either path.
type Assembler struct {
	narrator NarrativeService
	limiter  Limiter
	keyID    string
	tier     string
	timeout  time.Duration
	logger   *zap.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLimiter meters narrative calls under keyID and tier.
func WithLimiter(limiter Limiter, keyID, tier string) Option {
	return func(a *Assembler) {
		a.limiter = limiter
		a.keyID = keyID
		a.tier = tier
	}
}

// WithTimeout bounds one narrative call.
func WithTimeout(d time.Duration) Option {
	return func(a *Assembler) { a.timeout = d }
}

// NewAssembler creates an Assembler. A nil narrator always uses the fallback.
func NewAssembler(narrator NarrativeService, logger *zap.Logger, opts ...Option) *Assembler {
	a := &Assembler{
		narrator: narrator,
		timeout:  30 * time.Second,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble returns the report for result. It never fails: rate-limit denial,
// timeout and narrative failure all yield the fallback report.
func (a *Assembler) Assemble(ctx context.Context, result *models.AnalysisResult, alerts []models.Alert) models.Report {
	outcome := a.narrate(ctx, result, alerts)
	if outcome.Ready() {
		metrics.Narrative(string(models.NarrativeAI))
		return fromNarrative(outcome.Narrative)
	}

	a.logger.Info("📝 Using structured fallback report",
		zap.Int64("group_id", result.GroupID),
		zap.String("reason", outcome.Failure.Reason))
	metrics.Narrative(string(models.NarrativeFallback))
	return Fallback(result, alerts)
}

func (a *Assembler) narrate(ctx context.Context, result *models.AnalysisResult, alerts []models.Alert) models.NarrativeOutcome {
	if a.narrator == nil {
		return models.FallbackRequired("not_configured", nil)
	}

	if a.limiter != nil {
		d, err := a.limiter.AllowOperation(ctx, a.keyID, a.tier, ratelimit.OpNarrative)
		if err != nil {
			return models.FallbackRequired("rate_limit_error", err)
		}
		if !d.Allowed {
			a.logger.Debug("Narrative call rate limited",
				zap.String("window", d.Window),
				zap.Duration("retry_after", d.RetryAfter),
				zap.Bool("degraded", d.Degraded))
			return models.FallbackRequired("rate_limited", nil)
		}
	}

	nctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan models.NarrativeOutcome, 1)
	go func() {
		done <- a.narrator.Generate(nctx, result, alerts)
	}()

	select {
	case out := <-done:
		if out.Narrative == nil && out.Failure == nil {
			return models.FallbackRequired("empty_outcome", nil)
		}
		return out
	case <-nctx.Done():
		return models.FallbackRequired("timeout", nctx.Err())
	}
}

func fromNarrative(n *models.Narrative) models.Report {
	return models.Report{
		ExecutiveSummary: n.ExecutiveSummary,
		Strengths:        nonNil(n.Strengths),
		Weaknesses:       nonNil(n.Weaknesses),
		Opportunities:    nonNil(n.Opportunities),
		Threats:          nonNil(n.Threats),
		Recommendations:  append([]models.Recommendation{}, n.Recommendations...),
		NarrativeSource:  models.NarrativeAI,
	}
}
