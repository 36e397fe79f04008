package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// SnapshotHandler is invoked with the ASIN of every inserted snapshot
type SnapshotHandler func(ctx context.Context, asin string)

// SnapshotListener receives snapshot_inserted notifications over LISTEN/NOTIFY
type SnapshotListener struct {
	dsn     string
	handler SnapshotHandler
	logger  *zap.Logger
}

// NewSnapshotListener creates a listener using the lib/pq connection string dsn
func NewSnapshotListener(dsn string, handler SnapshotHandler, logger *zap.Logger) *SnapshotListener {
	return &SnapshotListener{dsn: dsn, handler: handler, logger: logger}
}

// Run listens until ctx is cancelled
func (l *SnapshotListener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.dsn, ListenerMinReconnect, ListenerMaxReconnect, l.onEvent)
	defer listener.Close()

	if err := listener.Listen(SnapshotChannel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", SnapshotChannel, err)
	}
	l.logger.Info("👂 Listening for snapshot notifications", zap.String("channel", SnapshotChannel))

	ticker := time.NewTicker(ListenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("🛑 Snapshot listener stopped")
			return nil
		case n := <-listener.Notify:
			if asin, ok := asinFromNotification(n); ok {
				l.handler(ctx, asin)
			}
		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					l.logger.Warn("⚠️  Listener ping failed", zap.Error(err))
				}
			}()
		}
	}
}

func (l *SnapshotListener) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		l.logger.Debug("✅ Listener connected")
	case pq.ListenerEventDisconnected:
		l.logger.Warn("⚠️  Listener disconnected", zap.Error(err))
	case pq.ListenerEventReconnected:
		l.logger.Info("🔄 Listener reconnected")
	case pq.ListenerEventConnectionAttemptFailed:
		l.logger.Warn("⚠️  Listener connection attempt failed", zap.Error(err))
	}
}

// asinFromNotification extracts the ASIN payload. A nil notification is sent
// by lib/pq after a reconnect and carries nothing.
func asinFromNotification(n *pq.Notification) (string, bool) {
	if n == nil || n.Channel != SnapshotChannel {
		return "", false
	}
	asin := strings.TrimSpace(n.Extra)
	return asin, asin != ""
}
