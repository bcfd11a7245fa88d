package models

import "time"

// Status is the presence state of a connection.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Connection is the public view of a client session tracked by the registry.
type Connection struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"username"`
	Rooms       []string   `json:"rooms"`
	Status      Status     `json:"status"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
	ConnectedAt time.Time  `json:"connectedAt"`
}

// Room describes a named channel. History is served separately.
type Room struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}
