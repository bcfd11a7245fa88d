package ws

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chat-presence/internal/observability"
)

const (
	wsKind       = "chat"
	wsConnect    = "ws_connect"
	wsDisconnect = "ws_disconnect"
	wsError      = "ws_error"
)

func newConnID() string {
	return uuid.NewString()
}

func wsRoutingKey(event string) string {
	switch event {
	case wsConnect:
		return "ws_events.connect"
	case wsDisconnect:
		return "ws_events.disconnect"
	default:
		return "ws_events.error"
	}
}

func publishWSEvent(ctx context.Context, event string, info ConnInfo, reason string) {
	observability.IncWSEvent(wsKind, event)

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        wsKind,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"device_id": info.DeviceID,
			"ip":        info.IP,
			"origin":    info.Origin,
		},
	}
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(ctx, wsRoutingKey(event), observability.NewEnvelope("ws_events", event, payload), headers)
}
