package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Inbound event names.
const (
	EventJoin           = "join"
	EventSend           = "send"
	EventPrivateMessage = "privateMessage"
	EventTyping         = "typing"
	EventJoinRoom       = "joinRoom"
)

// Outbound event names. EventPrivateMessage is shared by both directions.
const (
	EventUserList     = "userList"
	EventUserJoined   = "userJoined"
	EventUserLeft     = "userLeft"
	EventMessage      = "message"
	EventTypingUsers  = "typingUsers"
	EventRoomCreated  = "roomCreated"
	EventRoomJoined   = "roomJoined"
	EventRoomHistory  = "roomHistory"
	EventNotification = "notification"
)

// Validation limits
const (
	MaxDisplayNameLength = 50
	MaxRoomIDLength      = 100
	MaxBodyLength        = 5000
)

// ErrMalformedEvent wraps every decoding and validation failure.
var ErrMalformedEvent = errors.New("malformed event")

var (
	ErrUnknownEvent       = errors.New("unknown event")
	ErrMissingData        = errors.New("missing event data")
	ErrDisplayNameEmpty   = errors.New("display name cannot be empty")
	ErrDisplayNameTooLong = errors.New("display name exceeds maximum length")
	ErrRoomIDEmpty        = errors.New("room id cannot be empty")
	ErrRoomIDTooLong      = errors.New("room id exceeds maximum length")
	ErrBodyEmpty          = errors.New("message body cannot be empty")
	ErrBodyTooLong        = errors.New("message body exceeds maximum length")
	ErrRecipientEmpty     = errors.New("recipient id cannot be empty")
	ErrInvalidText        = errors.New("text is not valid UTF-8")
)

// Envelope is the wire frame for both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is a server-to-client event; Data is marshaled as-is.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Inbound is the closed set of client-to-server events.
type Inbound interface {
	EventName() string
}

// Join registers the connection under a display name.
type Join struct {
	DisplayName string `json:"displayName"`
}

// Send posts a message to a room.
type Send struct {
	Body   string `json:"body"`
	RoomID string `json:"roomId"`
}

// PrivateMessage posts a message to a single connection.
type PrivateMessage struct {
	Body        string `json:"body"`
	RecipientID string `json:"recipientId"`
}

// Typing toggles the typing indicator in a room.
type Typing struct {
	IsTyping bool   `json:"isTyping"`
	RoomID   string `json:"roomId"`
}

// JoinRoom adds the connection to a room, creating it on first use.
type JoinRoom struct {
	RoomID string `json:"roomId"`
}

func (Join) EventName() string           { return EventJoin }
func (Send) EventName() string           { return EventSend }
func (PrivateMessage) EventName() string { return EventPrivateMessage }
func (Typing) EventName() string         { return EventTyping }
func (JoinRoom) EventName() string       { return EventJoinRoom }

// DecodeInbound parses and validates a client frame. Room ids left empty on
// send and typing fall back to defaultRoom. join and joinRoom also accept a
// bare JSON string as their data.
func DecodeInbound(raw []byte, defaultRoom string) (Inbound, error) {
	// encoding/json substitutes U+FFFD for bad bytes instead of failing.
	if !utf8.Valid(raw) {
		return nil, malformed(ErrInvalidText)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, malformed(err)
	}

	switch env.Event {
	case EventJoin:
		var ev Join
		if err := decodeData(env.Data, &ev.DisplayName, &ev); err != nil {
			return nil, malformed(err)
		}
		if err := ValidateDisplayName(ev.DisplayName); err != nil {
			return nil, malformed(err)
		}
		return ev, nil

	case EventSend:
		var ev Send
		if err := decodeData(env.Data, nil, &ev); err != nil {
			return nil, malformed(err)
		}
		if ev.RoomID == "" {
			ev.RoomID = defaultRoom
		}
		if err := ValidateBody(ev.Body); err != nil {
			return nil, malformed(err)
		}
		if err := ValidateRoomID(ev.RoomID); err != nil {
			return nil, malformed(err)
		}
		return ev, nil

	case EventPrivateMessage:
		var ev PrivateMessage
		if err := decodeData(env.Data, nil, &ev); err != nil {
			return nil, malformed(err)
		}
		if ev.RecipientID == "" {
			return nil, malformed(ErrRecipientEmpty)
		}
		if err := ValidateBody(ev.Body); err != nil {
			return nil, malformed(err)
		}
		return ev, nil

	case EventTyping:
		var ev Typing
		if err := decodeData(env.Data, nil, &ev); err != nil {
			return nil, malformed(err)
		}
		if ev.RoomID == "" {
			ev.RoomID = defaultRoom
		}
		if err := ValidateRoomID(ev.RoomID); err != nil {
			return nil, malformed(err)
		}
		return ev, nil

	case EventJoinRoom:
		var ev JoinRoom
		if err := decodeData(env.Data, &ev.RoomID, &ev); err != nil {
			return nil, malformed(err)
		}
		if err := ValidateRoomID(ev.RoomID); err != nil {
			return nil, malformed(err)
		}
		return ev, nil
	}

	return nil, malformed(fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event))
}

func decodeData(data json.RawMessage, bare *string, v any) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return ErrMissingData
	}
	if bare != nil && data[0] == '"' {
		return json.Unmarshal(data, bare)
	}
	return json.Unmarshal(data, v)
}

func malformed(err error) error {
	return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
}

// ValidateDisplayName validates a display name.
func ValidateDisplayName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLength {
		return ErrDisplayNameTooLong
	}
	if !utf8.ValidString(name) {
		return ErrInvalidText
	}
	return nil
}

// ValidateRoomID validates a room identifier.
func ValidateRoomID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrRoomIDEmpty
	}
	if len(id) > MaxRoomIDLength {
		return ErrRoomIDTooLong
	}
	if !utf8.ValidString(id) {
		return ErrInvalidText
	}
	return nil
}

// ValidateBody validates message content.
func ValidateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrBodyEmpty
	}
	if len(body) > MaxBodyLength {
		return ErrBodyTooLong
	}
	if !utf8.ValidString(body) {
		return ErrInvalidText
	}
	return nil
}
