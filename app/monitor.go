package app

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Monitor periodically runs anomaly detection and analysis for every group
type Monitor struct {
	svc      *Service
	groups   GroupReader
	interval time.Duration
	logger   *zap.Logger
	done     chan struct{}
	stopped  chan struct{}
	started  atomic.Bool
}

// NewMonitor creates a new monitor
func NewMonitor(svc *Service, groups GroupReader, interval time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		svc:      svc,
		groups:   groups,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start begins the monitoring loop and blocks until Stop or ctx cancellation
func (m *Monitor) Start(ctx context.Context) {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	defer close(m.stopped)
	m.logger.Info("🔄 Competitive monitor started", zap.Duration("interval", m.interval))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Initial run
	m.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			m.RunOnce(ctx)
		case <-m.done:
			m.logger.Info("🔄 Competitive monitor stopped")
			return
		case <-ctx.Done():
			m.logger.Info("🔄 Competitive monitor stopped")
			return
		}
	}
}

// Stop stops the monitoring loop and waits for the current pass to finish
func (m *Monitor) Stop() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
	if m.started.Load() {
		<-m.stopped
	}
}

// RunOnce detects anomalies and refreshes the analysis of every group.
// A failing group is logged and skipped.
func (m *Monitor) RunOnce(ctx context.Context) {
	ids, err := m.groups.ListIDs(ctx)
	if err != nil {
		m.logger.Warn("⚠️  Failed to list groups", zap.Error(err))
		return
	}

	alerts, analyzed := 0, 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}

		detected, err := m.svc.DetectGroup(ctx, id)
		if err != nil {
			m.logger.Warn("⚠️  Anomaly detection failed", zap.Int64("group_id", id), zap.Error(err))
		}
		alerts += len(detected)

		if _, err := m.svc.Analyze(ctx, id); err != nil {
			m.logger.Warn("⚠️  Analysis failed", zap.Int64("group_id", id), zap.Error(err))
			continue
		}
		analyzed++
	}

	fields := []zap.Field{
		zap.Int("groups", len(ids)),
		zap.Int("analyzed", analyzed),
		zap.Int("alerts", alerts),
	}
	if summary, err := m.svc.AlertSummary(ctx, 24*time.Hour); err != nil {
		m.logger.Warn("⚠️  Alert summary failed", zap.Error(err))
	} else {
		fields = append(fields, zap.Int("alerts_24h", summary.Total))
	}
	m.logger.Info("✅ Monitor pass completed", fields...)
}
