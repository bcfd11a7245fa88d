package chat

import "sort"

type typingEntry struct {
	displayName string
	roomID      string
}

// typingTracker keys entries by connection id, so a connection is typing in
// at most one room. Not safe for concurrent use; Service serializes access.
type typingTracker struct {
	entries map[string]typingEntry
}

func newTypingTracker() *typingTracker {
	return &typingTracker{entries: make(map[string]typingEntry)}
}

// setTyping returns the room of the entry it replaced or removed, if any.
func (t *typingTracker) setTyping(id, displayName, roomID string, isTyping bool) (string, bool) {
	prev, had := t.entries[id]
	if isTyping {
		t.entries[id] = typingEntry{displayName: displayName, roomID: roomID}
	} else {
		delete(t.entries, id)
	}
	return prev.roomID, had
}

func (t *typingTracker) typingNamesFor(roomID string) []string {
	seen := make(map[string]struct{})
	names := []string{}
	for _, entry := range t.entries {
		if entry.roomID != roomID {
			continue
		}
		if _, dup := seen[entry.displayName]; dup {
			continue
		}
		seen[entry.displayName] = struct{}{}
		names = append(names, entry.displayName)
	}
	sort.Strings(names)
	return names
}

func (t *typingTracker) purge(id string) (string, bool) {
	entry, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return entry.roomID, ok
}
