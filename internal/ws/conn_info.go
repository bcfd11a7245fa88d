package ws

import "time"

type ConnInfo struct {
	ConnID      string
	DeviceID    string
	IP          string
	Origin      string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
