package notifications

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"competitive-insights/models"
	"competitive-insights/websocket"
)

// FrameSender writes protobuf frames to a stream.
type FrameSender interface {
	Send(ctx context.Context, frame proto.Message) error
}

// SocketDispatcher pushes alerts as protobuf frames over a websocket stream.
type SocketDispatcher struct {
	sender  FrameSender
	timeout time.Duration
	logger  *zap.Logger
}

// NewSocketDispatcher creates a dispatcher writing through sender.
func NewSocketDispatcher(sender FrameSender, logger *zap.Logger) *SocketDispatcher {
	return &SocketDispatcher{sender: sender, timeout: 5 * time.Second, logger: logger}
}

func (sd *SocketDispatcher) Deliver(ctx context.Context, alert models.Alert) {
	frame, err := websocket.AlertFrame(alert)
	if err != nil {
		sd.logger.Warn("⚠️  Failed to encode alert frame", zap.String("alert_id", alert.ID), zap.Error(err))
		return
	}

	sctx, cancel := context.WithTimeout(ctx, sd.timeout)
	defer cancel()
	if err := sd.sender.Send(sctx, frame); err != nil {
		sd.logger.Warn("⚠️  Failed to stream alert", zap.String("alert_id", alert.ID), zap.Error(err))
		return
	}
	sd.logger.Debug("📡 Alert streamed", zap.String("alert_id", alert.ID))
}
