// Package ratelimit meters access to expensive downstream resources with a
// sliding-window log shared across processes.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"competitive-insights/metrics"
	"competitive-insights/models"
)

// Decision is the answer to one Allow call.
type Decision struct {
	Allowed bool
	// RetryAfter is how long until the refusing window admits again. Zero when allowed.
	RetryAfter time.Duration
	// Window names the refusing window.
	Window string
	// Remaining is the spare capacity of the tightest window after the call.
	Remaining int
	// Degraded is set when the store was unreachable and the failure policy decided.
	Degraded bool
}

// WindowStatus reports usage of one window.
type WindowStatus struct {
	Window    string
	Limit     int
	Used      int
	Remaining int
}

// Limiter admits or refuses weighted requests per key and tier.
type Limiter struct {
	store    Store
	tiers    map[string]Tier
	weights  map[string]int
	failOpen bool
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithTiers replaces the default tier policies.
func WithTiers(tiers map[string]Tier) Option {
	return func(l *Limiter) { l.tiers = tiers }
}

// WithWeights replaces the default operation weights.
func WithWeights(weights map[string]int) Option {
	return func(l *Limiter) { l.weights = weights }
}

// WithFailOpen admits requests while the store is unreachable. The default is
// to refuse them.
func WithFailOpen(open bool) Option {
	return func(l *Limiter) { l.failOpen = open }
}

// WithTimeout bounds each store call.
func WithTimeout(d time.Duration) Option {
	return func(l *Limiter) { l.timeout = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates a Limiter over store.
func NewLimiter(store Store, logger *zap.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		store:   store,
		tiers:   DefaultTiers(),
		weights: DefaultWeights(),
		timeout: 500 * time.Millisecond,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Weight returns the configured cost of op, 1 when unknown.
func (l *Limiter) Weight(op string) int {
	if w, ok := l.weights[op]; ok && w > 0 {
		return w
	}
	return 1
}

func (l *Limiter) tier(name string, weight int) (Tier, error) {
	t, ok := l.tiers[name]
	if !ok || len(t.Windows) == 0 {
		return Tier{}, models.NewValidationErrorWithValue("tier", "unknown rate limit tier", name)
	}
	for _, w := range t.Windows {
		if err := w.validate(); err != nil {
			return Tier{}, models.NewValidationError("tier", err.Error())
		}
		if weight > w.Limit {
			return Tier{}, models.NewValidationErrorWithValue("weight", "exceeds the "+w.Name+" limit of tier "+name, weight)
		}
	}
	return t, nil
}

// Allow atomically checks every window of tier for keyID and, when all admit
// weight more entries, records them. Store failures are resolved by the
// fail-open setting and reported through Decision.Degraded.
func (l *Limiter) Allow(ctx context.Context, keyID, tier string, weight int) (Decision, error) {
	if keyID == "" {
		return Decision{}, models.NewValidationError("key_id", "must not be empty")
	}
	if weight < 1 {
		return Decision{}, models.NewValidationErrorWithValue("weight", "must be at least 1", weight)
	}
	t, err := l.tier(tier, weight)
	if err != nil {
		return Decision{}, err
	}

	now := l.now()
	sctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res, err := l.store.Admit(sctx, keyID, t.Windows, weight, now)
	if err != nil {
		l.logger.Warn("⚠️  Rate limit store unavailable",
			zap.String("key_id", keyID),
			zap.String("tier", tier),
			zap.Bool("fail_open", l.failOpen),
			zap.Error(models.NewDependencyUnavailable("ratelimit", err)))
		metrics.RateLimitDecision(tier, "degraded")
		return Decision{Allowed: l.failOpen, Degraded: true}, nil
	}

	if !res.Allowed {
		w := t.Windows[res.Window]
		retry := res.Oldest.Add(w.Size).Sub(now)
		if retry <= 0 {
			retry = time.Millisecond
		}
		metrics.RateLimitDecision(tier, "denied")
		l.logger.Debug("Rate limit exceeded",
			zap.String("key_id", keyID),
			zap.String("window", w.Name),
			zap.Duration("retry_after", retry))
		return Decision{Allowed: false, RetryAfter: retry, Window: w.Name}, nil
	}

	metrics.RateLimitDecision(tier, "allowed")
	return Decision{Allowed: true, Remaining: remaining(t.Windows, res.Used)}, nil
}

// AllowOperation is Allow with the configured weight of op.
func (l *Limiter) AllowOperation(ctx context.Context, keyID, tier, op string) (Decision, error) {
	return l.Allow(ctx, keyID, tier, l.Weight(op))
}

// Status reports used and remaining capacity per window without recording anything.
func (l *Limiter) Status(ctx context.Context, keyID, tier string) ([]WindowStatus, error) {
	t, err := l.tier(tier, 0)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	used, err := l.store.Usage(sctx, keyID, t.Windows, l.now())
	if err != nil {
		return nil, models.NewDependencyUnavailable("ratelimit", err)
	}

	out := make([]WindowStatus, len(t.Windows))
	for i, w := range t.Windows {
		out[i] = WindowStatus{
			Window:    w.Name,
			Limit:     w.Limit,
			Used:      used[i],
			Remaining: max(0, w.Limit-used[i]),
		}
	}
	return out, nil
}

func remaining(windows []Window, used []int) int {
	least := -1
	for i, w := range windows {
		if i >= len(used) {
			break
		}
		r := max(0, w.Limit-used[i])
		if least < 0 || r < least {
			least = r
		}
	}
	return max(least, 0)
}
