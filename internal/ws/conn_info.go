package ws

import (
	"time"

	"github.com/google/uuid"
)

// ConnInfo describes one established connection, for logs and telemetry.
type ConnInfo struct {
	ConnID      string
	URL         string
	Attempt     int
	ConnectedAt time.Time
}

func newConnInfo(url string, attempt int, now time.Time) ConnInfo {
	return ConnInfo{
		ConnID:      uuid.NewString(),
		URL:         url,
		Attempt:     attempt,
		ConnectedAt: now,
	}
}

func (i ConnInfo) payload(event, reason string, now time.Time) map[string]any {
	var duration int64
	if !i.ConnectedAt.IsZero() {
		duration = now.Sub(i.ConnectedAt).Milliseconds()
	}
	return map[string]any{
		"ws": map[string]any{
			"event":       event,
			"conn_id":     i.ConnID,
			"url":         i.URL,
			"attempt":     i.Attempt,
			"duration_ms": duration,
			"reason":      reason,
		},
	}
}
