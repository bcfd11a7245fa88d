package chat

import (
	"fmt"
	"sort"
	"time"

	"chat-presence/internal/models"
)

// DefaultHistoryCap is the number of messages retained per room.
const DefaultHistoryCap = 100

type room struct {
	id        string
	createdAt time.Time
	history   []models.Message
}

// roomStore holds bounded histories for public rooms and for private
// conversations. Not safe for concurrent use; Service serializes access.
type roomStore struct {
	limit   int
	rooms   map[string]*room
	private map[string][]models.Message
}

func newRoomStore(limit int) *roomStore {
	if limit <= 0 {
		limit = DefaultHistoryCap
	}
	return &roomStore{
		limit:   limit,
		rooms:   make(map[string]*room),
		private: make(map[string][]models.Message),
	}
}

func (s *roomStore) ensureRoom(id string, now time.Time) (models.Room, bool) {
	if r, ok := s.rooms[id]; ok {
		return models.Room{ID: r.id, CreatedAt: r.createdAt}, false
	}
	r := &room{id: id, createdAt: now}
	s.rooms[id] = r
	return models.Room{ID: r.id, CreatedAt: r.createdAt}, true
}

// append adds msg to the room's history, evicting the oldest entries once the
// history exceeds the cap.
func (s *roomStore) append(id string, msg models.Message) error {
	r, ok := s.rooms[id]
	if !ok {
		return fmt.Errorf("append to %s: %w", id, ErrUnknownRoom)
	}
	r.history = s.trim(append(r.history, msg))
	return nil
}

func (s *roomStore) trim(history []models.Message) []models.Message {
	over := len(history) - s.limit
	if over <= 0 {
		return history
	}
	copy(history, history[over:])
	clear(history[s.limit:])
	return history[:s.limit]
}

// history returns a copy of the retained messages; unknown rooms yield an
// empty slice.
func (s *roomStore) history(id string) []models.Message {
	r, ok := s.rooms[id]
	if !ok {
		return []models.Message{}
	}
	out := make([]models.Message, len(r.history))
	copy(out, r.history)
	return out
}

func (s *roomStore) ids() []string {
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func privateKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "\x00" + b
}

func (s *roomStore) appendPrivate(a, b string, msg models.Message) {
	key := privateKey(a, b)
	s.private[key] = s.trim(append(s.private[key], msg))
}

func (s *roomStore) privateHistory(a, b string) []models.Message {
	history := s.private[privateKey(a, b)]
	out := make([]models.Message, len(history))
	copy(out, history)
	return out
}
