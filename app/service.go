package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"competitive-insights/analysis"
	"competitive-insights/anomaly"
	"competitive-insights/cache"
	"competitive-insights/database"
	"competitive-insights/metrics"
	"competitive-insights/models"
	"competitive-insights/notifications"
)

// SnapshotReader reads snapshots owned by the upstream tracker.
type SnapshotReader interface {
	Latest(ctx context.Context, asin string) (*models.Snapshot, error)
	History(ctx context.Context, asin string, n int) ([]*models.Snapshot, error)
	LatestFor(ctx context.Context, asins []string) (map[string]*models.Snapshot, error)
}

// GroupReader reads competitive group configuration.
type GroupReader interface {
	Get(ctx context.Context, id int64) (*models.CompetitiveGroup, error)
	GroupsForASIN(ctx context.Context, asin string) ([]int64, error)
	ListIDs(ctx context.Context) ([]int64, error)
}

// AlertRepository persists alerts idempotently.
type AlertRepository interface {
	SaveAlerts(ctx context.Context, alerts []models.Alert) ([]models.Alert, error)
	Recent(ctx context.Context, asin string, limit int) ([]models.Alert, error)
	Since(ctx context.Context, since time.Time) ([]models.Alert, error)
}

// ReportAssembler renders a report for an analysis.
type ReportAssembler interface {
	Assemble(ctx context.Context, result *models.AnalysisResult, alerts []models.Alert) models.Report
}

// TTLs configures cache lifetimes per key family.
type TTLs struct {
	Analysis time.Duration
	Report   time.Duration
	Alerts   time.Duration
}

// DefaultTTLs returns 1h analysis, 24h report and 5m alert lifetimes.
func DefaultTTLs() TTLs {
	return TTLs{Analysis: time.Hour, Report: 24 * time.Hour, Alerts: 5 * time.Minute}
}

const recentAlertLimit = 20

// Service runs analyses, anomaly detection and report assembly.
type Service struct {
	snapshots  SnapshotReader
	groups     GroupReader
	alerts     AlertRepository
	results    database.ResultStore
	assembler  ReportAssembler
	dispatcher notifications.Dispatcher
	cache      *cache.Layer
	ttl        TTLs
	now        func() time.Time
	logger     *zap.Logger
}

// Deps bundles the collaborators of a Service.
type Deps struct {
	Snapshots  SnapshotReader
	Groups     GroupReader
	Alerts     AlertRepository
	Results    database.ResultStore
	Assembler  ReportAssembler
	Dispatcher notifications.Dispatcher
	Cache      *cache.Layer
	TTL        TTLs
	Now        func() time.Time
}

// NewService creates a Service. A nil Dispatcher drops alerts after persisting them.
func NewService(deps Deps, logger *zap.Logger) *Service {
	s := &Service{
		snapshots:  deps.Snapshots,
		groups:     deps.Groups,
		alerts:     deps.Alerts,
		results:    deps.Results,
		assembler:  deps.Assembler,
		dispatcher: deps.Dispatcher,
		cache:      deps.Cache,
		ttl:        deps.TTL,
		now:        deps.Now,
		logger:     logger,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.ttl == (TTLs{}) {
		s.ttl = DefaultTTLs()
	}
	return s
}

// Analyze returns the competitive analysis for a group, computing it at most
// once per cache lifetime. The stored result only moves forward in logical time.
func (s *Service) Analyze(ctx context.Context, groupID int64) (*models.AnalysisResult, error) {
	return cache.GetOrCompute(ctx, s.cache, cache.AnalysisKey(groupID), s.ttl.Analysis, func(ctx context.Context) (*models.AnalysisResult, error) {
		return s.computeAnalysis(ctx, groupID)
	})
}

func (s *Service) computeAnalysis(ctx context.Context, groupID int64) (*models.AnalysisResult, error) {
	started := s.now()

	group, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("load group %d: %w", groupID, err)
	}
	snaps, err := s.snapshots.LatestFor(ctx, group.ASINs())
	if err != nil {
		return nil, fmt.Errorf("load snapshots for group %d: %w", groupID, err)
	}

	result, err := analysis.Analyze(group, snaps, started)
	if err != nil {
		return nil, err
	}
	metrics.ObserveAnalysis(s.now().Sub(started))

	applied, err := s.results.Apply(ctx, result)
	if err != nil {
		return nil, fmt.Errorf("apply result for group %d: %w", groupID, err)
	}
	if !applied {
		// A run with a later logical start already landed.
		s.logger.Debug("⏭️  Stale analysis discarded",
			zap.Int64("group_id", groupID),
			zap.Time("generated_at", result.GeneratedAt))
		return s.results.Get(ctx, groupID)
	}

	s.logger.Info("📊 Analysis completed",
		zap.Int64("group_id", groupID),
		zap.String("main_asin", result.MainASIN),
		zap.Int("competitors", len(result.Competitors)))
	return result, nil
}

// DetectAnomalies compares the two latest snapshots of asin. Every detected alert is
// returned; only alerts not seen before are dispatched.
func (s *Service) DetectAnomalies(ctx context.Context, asin string, thresholds models.AnomalyThresholds) ([]models.Alert, error) {
	history, err := s.snapshots.History(ctx, asin, 2)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", asin, err)
	}

	alerts, err := anomaly.DetectLatest(asin, history, thresholds)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return alerts, nil
	}

	fresh, err := s.alerts.SaveAlerts(ctx, alerts)
	if err != nil {
		return nil, fmt.Errorf("persist alerts for %s: %w", asin, err)
	}

	for _, a := range fresh {
		metrics.Alert(string(a.Rule), string(a.Severity))
		if s.dispatcher != nil {
			s.dispatcher.Deliver(ctx, a)
		}
	}

	if len(fresh) > 0 {
		if _, err := s.cache.Invalidate(ctx, cache.AlertsKey(asin), cache.AlertSummaryPrefix); err != nil {
			s.logger.Warn("⚠️  Failed to invalidate alert cache", zap.String("asin", asin), zap.Error(err))
		}
		s.logger.Info("🚨 Anomalies detected",
			zap.String("asin", asin),
			zap.Int("alerts", len(alerts)),
			zap.Int("new", len(fresh)))
	}
	return alerts, nil
}

// DetectGroup runs anomaly detection for every product in a group with the group's thresholds.
func (s *Service) DetectGroup(ctx context.Context, groupID int64) ([]models.Alert, error) {
	group, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("load group %d: %w", groupID, err)
	}

	var all []models.Alert
	for _, asin := range group.ASINs() {
		alerts, err := s.DetectAnomalies(ctx, asin, group.Thresholds)
		if err != nil {
			return all, err
		}
		all = anomaly.Merge(all, alerts)
	}
	return all, nil
}

// RecentAlerts returns the latest stored alerts for asin through the cache.
func (s *Service) RecentAlerts(ctx context.Context, asin string) ([]models.Alert, error) {
	return cache.GetOrCompute(ctx, s.cache, cache.AlertsKey(asin), s.ttl.Alerts, func(ctx context.Context) ([]models.Alert, error) {
		alerts, err := s.alerts.Recent(ctx, asin, recentAlertLimit)
		if err != nil {
			return nil, err
		}
		if alerts == nil {
			alerts = []models.Alert{}
		}
		return alerts, nil
	})
}

// AlertSummary counts alerts of every product triggered within the trailing window.
func (s *Service) AlertSummary(ctx context.Context, window time.Duration) (models.AlertSummary, error) {
	if window <= 0 {
		return models.AlertSummary{}, models.NewValidationErrorWithValue("window", "must be positive", window)
	}
	return cache.GetOrCompute(ctx, s.cache, cache.AlertSummaryKey(window), s.ttl.Alerts, func(ctx context.Context) (models.AlertSummary, error) {
		since := s.now().Add(-window)
		alerts, err := s.alerts.Since(ctx, since)
		if err != nil {
			return models.AlertSummary{}, fmt.Errorf("load alerts since %s: %w", since.Format(time.RFC3339), err)
		}
		return anomaly.Summarize(alerts, since), nil
	})
}

// AssembleReport renders the report for a group. Reports are cached under a hash
// of the analysis and alerts they were built from.
func (s *Service) AssembleReport(ctx context.Context, groupID int64) (models.Report, error) {
	result, err := s.Analyze(ctx, groupID)
	if err != nil {
		return models.Report{}, err
	}

	var alerts []models.Alert
	for _, asin := range reportASINs(result) {
		recent, err := s.RecentAlerts(ctx, asin)
		if err != nil {
			return models.Report{}, err
		}
		alerts = anomaly.Merge(alerts, recent)
	}

	hash := cache.GenerateDataHash(struct {
		Result *models.AnalysisResult `json:"result"`
		Alerts []models.Alert         `json:"alerts"`
	}{result, alerts})

	return cache.GetOrCompute(ctx, s.cache, cache.ReportKey(groupID, hash), s.ttl.Report, func(ctx context.Context) (models.Report, error) {
		return s.assembler.Assemble(ctx, result, alerts), nil
	})
}

func reportASINs(result *models.AnalysisResult) []string {
	asins := []string{result.MainASIN}
	for _, c := range result.Competitors {
		asins = append(asins, c.ASIN)
	}
	return asins
}

// OnSnapshotInserted drops every cached analysis and report for groups tracking asin,
// plus the asin's alert list.
func (s *Service) OnSnapshotInserted(ctx context.Context, asin string) {
	ids, err := s.groups.GroupsForASIN(ctx, asin)
	if err != nil {
		s.logger.Warn("⚠️  Failed to resolve groups for snapshot", zap.String("asin", asin), zap.Error(err))
		return
	}

	patterns := []string{cache.AlertsKey(asin)}
	for _, id := range ids {
		patterns = append(patterns, cache.GroupPatterns(id)...)
	}

	removed, err := s.cache.Invalidate(ctx, patterns...)
	if err != nil {
		s.logger.Warn("⚠️  Cache invalidation failed", zap.String("asin", asin), zap.Error(err))
		return
	}
	s.logger.Debug("🧹 Cache invalidated for new snapshot",
		zap.String("asin", asin),
		zap.Int("groups", len(ids)),
		zap.Int("keys", removed))
}
