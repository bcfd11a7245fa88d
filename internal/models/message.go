package models

import "time"

// Message represents a chat message addressed to a room or, when IsPrivate
// is set, to a single recipient.
type Message struct {
	ID            uint64    `json:"id"`
	SenderID      string    `json:"senderId,omitempty"`
	SenderName    string    `json:"sender,omitempty"`
	Body          string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
	RoomID        string    `json:"room,omitempty"`
	RecipientID   string    `json:"recipientId,omitempty"`
	RecipientName string    `json:"recipient,omitempty"`
	IsSystem      bool      `json:"system,omitempty"`
	IsPrivate     bool      `json:"isPrivate,omitempty"`
}

// NotificationType identifies an auxiliary alert.
type NotificationType string

const (
	NotificationMention NotificationType = "mention"
	NotificationPrivate NotificationType = "private"
)

// Notification is delivered to exactly one connection, named by Target.
type Notification struct {
	Type    NotificationType `json:"type"`
	Message string           `json:"message"`
	Room    string           `json:"room,omitempty"`
	From    string           `json:"from,omitempty"`
	Target  string           `json:"target"`
}

// UserPresence is the payload of userJoined and userLeft events.
type UserPresence struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// RoomHistory is the payload of the roomHistory event.
type RoomHistory struct {
	Room     string    `json:"room"`
	Messages []Message `json:"messages"`
}
