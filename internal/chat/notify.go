package chat

import (
	"fmt"
	"strings"

	"chat-presence/internal/models"
)

const mentionMarker = "@"

// mentionTargets returns the ids of candidates whose display name appears in
// body right after the mention marker. Matching is a case-sensitive substring
// test, so "@Bob" also mentions a user named "B".
func mentionTargets(body, senderID string, candidates []*connection) []string {
	if !strings.Contains(body, mentionMarker) {
		return nil
	}
	var targets []string
	for _, conn := range candidates {
		if conn.id == senderID {
			continue
		}
		if strings.Contains(body, mentionMarker+conn.displayName) {
			targets = append(targets, conn.id)
		}
	}
	return targets
}

func mentionNotification(senderName, roomID, target string) models.Notification {
	return models.Notification{
		Type:    models.NotificationMention,
		Message: fmt.Sprintf("%s mentioned you in %s", senderName, roomID),
		Room:    roomID,
		Target:  target,
	}
}

func privateNotification(senderName, senderID, target string) models.Notification {
	return models.Notification{
		Type:    models.NotificationPrivate,
		Message: fmt.Sprintf("New private message from %s", senderName),
		From:    senderID,
		Target:  target,
	}
}
