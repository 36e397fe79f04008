package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// ConnectionManager owns the stream connection and re-dials it after a failed write.
type ConnectionManager struct {
	mu           sync.Mutex
	client       *Client
	url          string
	token        string
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewConnectionManager creates a new ConnectionManager.
func NewConnectionManager(url, token string, pingInterval time.Duration, logger *zap.Logger) *ConnectionManager {
	return &ConnectionManager{
		url:          url,
		token:        token,
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// Connect establishes the connection if none is open.
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.connectLocked(ctx)
}

func (cm *ConnectionManager) connectLocked(ctx context.Context) error {
	if cm.client != nil {
		return nil
	}
	cm.logger.Info("🔌 Connecting to alert stream...", zap.String("url", cm.url))
	client := NewClient(cm.url, cm.token, cm.logger)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("alert stream connection failed: %w", err)
	}
	if cm.pingInterval > 0 {
		client.StartPing(cm.pingInterval)
	}
	cm.client = client
	return nil
}

// Send writes one frame, dialing first when disconnected. A failed write drops
// the connection so the next Send re-dials.
func (cm *ConnectionManager) Send(ctx context.Context, frame proto.Message) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if err := cm.connectLocked(ctx); err != nil {
		return err
	}
	if err := cm.client.WriteFrame(frame); err != nil {
		cm.logger.Warn("⚠️  Alert stream write failed, dropping connection", zap.Error(err))
		_ = cm.client.Close()
		cm.client = nil
		return err
	}
	return nil
}

// Close closes the connection.
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.client == nil {
		return nil
	}
	err := cm.client.Close()
	cm.client = nil
	return err
}
