package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"competitive-insights/models"
)

func TestAlertFrame(t *testing.T) {
	a := models.Alert{
		ID: "id-1", ASIN: "B0X", Rule: models.RuleBSRChange, Category: "Kitchen",
		Severity: models.SeverityHigh, OldValue: 100, NewValue: 150, ChangeMagnitude: 0.5,
		TriggeredAt: time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
	}
	frame, err := AlertFrame(a)
	require.NoError(t, err)

	m := frame.AsMap()
	assert.Equal(t, FrameAlert, m["type"])
	assert.Equal(t, "Kitchen", m["category"])
	assert.Equal(t, 150.0, m["new_value"])
	assert.Equal(t, "2026-02-03T04:05:06Z", m["triggered_at"])
}

func TestConnectionManager_Send(t *testing.T) {
	received := make(chan *structpb.Struct, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		assert.Equal(t, websocket.BinaryMessage, mt)
		var s structpb.Struct
		if assert.NoError(t, proto.Unmarshal(data, &s)) {
			received <- &s
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	cm := NewConnectionManager(url, "tok", 0, zap.NewNop())
	defer cm.Close()

	frame, err := AlertFrame(models.Alert{ID: "a1", ASIN: "B0X", Rule: models.RuleStockChange, Severity: models.SeverityHigh})
	require.NoError(t, err)
	require.NoError(t, cm.Send(context.Background(), frame))

	select {
	case s := <-received:
		assert.Equal(t, "a1", s.AsMap()["id"])
		assert.Equal(t, "stock_change", s.AsMap()["rule"])
	case <-time.After(2 * time.Second):
		t.Fatal("frame not received")
	}
}

func TestConnectionManager_DialFailure(t *testing.T) {
	cm := NewConnectionManager("ws://127.0.0.1:1/stream", "", 0, zap.NewNop())
	frame, err := PingFrame(time.Now())
	require.NoError(t, err)
	assert.Error(t, cm.Send(context.Background(), frame))
}
