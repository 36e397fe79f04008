package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// Client represents a WebSocket client pushing protobuf frames to an alert stream
type Client struct {
	url        string
	conn       *websocket.Conn
	header     http.Header
	writeMu    sync.Mutex
	pingCancel context.CancelFunc // Cancel function for ping goroutine
	logger     *zap.Logger
}

// NewClient creates a new WebSocket client
func NewClient(url string, authToken string, logger *zap.Logger) *Client {
	header := make(http.Header)
	if authToken != "" {
		header.Set("Authorization", "Bearer "+authToken)
	}
	header.Set("User-Agent", "competitive-insights/1.0")

	return &Client{
		url:    url,
		header: header,
		logger: logger,
	}
}

// Connect establishes WebSocket connection
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	c.conn = conn
	c.logger.Info("✅ Connected to alert stream", zap.String("url", c.url))
	return nil
}

// StartPing starts periodic ping frames to keep the connection alive
func (c *Client) StartPing(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	c.pingCancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				frame, err := PingFrame(time.Now())
				if err != nil {
					c.logger.Warn("Failed to build ping frame", zap.Error(err))
					continue
				}
				if err := c.WriteFrame(frame); err != nil {
					c.logger.Warn("Failed to send ping", zap.Error(err))
					return
				}
			}
		}
	}()
}

// WriteFrame marshals msg and sends it as a binary message
func (c *Client) WriteFrame(msg proto.Message) error {
	data, err := proto.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	return c.WriteBinaryMessage(data)
}

// WriteBinaryMessage sends a binary message to the WebSocket connection thread-safely
func (c *Client) WriteBinaryMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("connection is nil")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Close closes the WebSocket connection
func (c *Client) Close() error {
	if c.pingCancel != nil {
		c.pingCancel()
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
