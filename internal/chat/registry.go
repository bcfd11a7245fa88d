package chat

import (
	"fmt"
	"sort"
	"time"

	"chat-presence/internal/models"
)

type connection struct {
	id          string
	displayName string
	rooms       map[string]struct{}
	status      models.Status
	lastSeen    time.Time
	connectedAt time.Time
}

func (c *connection) snapshot() models.Connection {
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)

	view := models.Connection{
		ID:          c.id,
		DisplayName: c.displayName,
		Rooms:       rooms,
		Status:      c.status,
		ConnectedAt: c.connectedAt,
	}
	if !c.lastSeen.IsZero() {
		lastSeen := c.lastSeen
		view.LastSeen = &lastSeen
	}
	return view
}

// registry tracks every connection ever registered in this process. Records
// are kept after disconnect so message attribution stays valid.
// Not safe for concurrent use; Service serializes access.
type registry struct {
	defaultRoom string
	conns       map[string]*connection
}

func newRegistry(defaultRoom string) *registry {
	return &registry{
		defaultRoom: defaultRoom,
		conns:       make(map[string]*connection),
	}
}

func (r *registry) register(id, displayName string, now time.Time) (models.Connection, error) {
	if _, exists := r.conns[id]; exists {
		return models.Connection{}, fmt.Errorf("register %s: %w", id, ErrDuplicateConnection)
	}

	conn := &connection{
		id:          id,
		displayName: displayName,
		rooms:       map[string]struct{}{r.defaultRoom: {}},
		status:      models.StatusOnline,
		connectedAt: now,
	}
	r.conns[id] = conn
	return conn.snapshot(), nil
}

// markOffline reports whether the connection transitioned from online.
// Unknown and already-offline connections are left untouched.
func (r *registry) markOffline(id string, now time.Time) (models.Connection, bool) {
	conn, ok := r.conns[id]
	if !ok || conn.status == models.StatusOffline {
		return models.Connection{}, false
	}
	conn.status = models.StatusOffline
	conn.lastSeen = now
	return conn.snapshot(), true
}

func (r *registry) addRoomMembership(id, roomID string) error {
	conn, ok := r.conns[id]
	if !ok {
		return fmt.Errorf("join room %s: %w", roomID, ErrUnknownConnection)
	}
	conn.rooms[roomID] = struct{}{}
	return nil
}

func (r *registry) get(id string) (*connection, bool) {
	conn, ok := r.conns[id]
	return conn, ok
}

// online returns a pointer to the live record of an online connection.
func (r *registry) online(id string) (*connection, bool) {
	conn, ok := r.conns[id]
	if !ok || conn.status != models.StatusOnline {
		return nil, false
	}
	return conn, true
}

func (r *registry) sorted() []*connection {
	conns := make([]*connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	sort.Slice(conns, func(i, j int) bool {
		if !conns[i].connectedAt.Equal(conns[j].connectedAt) {
			return conns[i].connectedAt.Before(conns[j].connectedAt)
		}
		return conns[i].id < conns[j].id
	})
	return conns
}

func (r *registry) list() []models.Connection {
	conns := r.sorted()
	list := make([]models.Connection, 0, len(conns))
	for _, conn := range conns {
		list = append(list, conn.snapshot())
	}
	return list
}

func (r *registry) onlineConnections() []*connection {
	var conns []*connection
	for _, conn := range r.sorted() {
		if conn.status == models.StatusOnline {
			conns = append(conns, conn)
		}
	}
	return conns
}

func (r *registry) onlineCount() int {
	n := 0
	for _, conn := range r.conns {
		if conn.status == models.StatusOnline {
			n++
		}
	}
	return n
}

// roomMembers returns the ids of online connections that joined roomID.
func (r *registry) roomMembers(roomID string) []string {
	var ids []string
	for _, conn := range r.onlineConnections() {
		if _, ok := conn.rooms[roomID]; ok {
			ids = append(ids, conn.id)
		}
	}
	return ids
}
