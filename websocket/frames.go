package websocket

import (
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"competitive-insights/models"
)

// Frame types carried in the "type" field of every frame
const (
	FrameAlert = "alert"
	FramePing  = "ping"
)

// timestampValue renders t the way protobuf JSON renders google.protobuf.Timestamp
func timestampValue(t time.Time) string {
	b, err := protojson.Marshal(timestamppb.New(t))
	if err != nil {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return strings.Trim(string(b), `"`)
}

// AlertFrame encodes an alert as a protobuf Struct frame
func AlertFrame(a models.Alert) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"type":             FrameAlert,
		"id":               a.ID,
		"asin":             a.ASIN,
		"rule":             string(a.Rule),
		"category":         a.Category,
		"severity":         string(a.Severity),
		"old_value":        a.OldValue,
		"new_value":        a.NewValue,
		"change_magnitude": a.ChangeMagnitude,
		"old_snapshot_id":  a.OldSnapshotID,
		"new_snapshot_id":  a.NewSnapshotID,
		"message":          a.Message,
		"triggered_at":     timestampValue(a.TriggeredAt),
	})
}

// PingFrame builds a keep-alive frame
func PingFrame(now time.Time) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"type":      FramePing,
		"timestamp": timestampValue(now),
	})
}
