package chat

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-presence/internal/models"
)

var epoch = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func TestRegistryRegisterAddsDefaultRoom(t *testing.T) {
	r := newRegistry("general")

	conn, err := r.register("c1", "alice", epoch)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, conn.Status)
	assert.Equal(t, []string{"general"}, conn.Rooms)
	assert.Nil(t, conn.LastSeen)

	_, err = r.register("c1", "alice", epoch)
	assert.ErrorIs(t, err, ErrDuplicateConnection)
}

func TestRegistryMarkOfflineIsIdempotent(t *testing.T) {
	r := newRegistry("general")
	_, err := r.register("c1", "alice", epoch)
	require.NoError(t, err)

	conn, changed := r.markOffline("c1", epoch.Add(time.Minute))
	require.True(t, changed)
	assert.Equal(t, models.StatusOffline, conn.Status)
	require.NotNil(t, conn.LastSeen)
	assert.Equal(t, epoch.Add(time.Minute), *conn.LastSeen)

	_, changed = r.markOffline("c1", epoch.Add(2*time.Minute))
	assert.False(t, changed)
	_, changed = r.markOffline("ghost", epoch)
	assert.False(t, changed)

	list := r.list()
	require.Len(t, list, 1)
	assert.Equal(t, epoch.Add(time.Minute), *list[0].LastSeen)
	assert.Equal(t, 0, r.onlineCount())
}

func TestRegistryRoomMembersOnlyOnline(t *testing.T) {
	r := newRegistry("general")
	_, _ = r.register("c1", "alice", epoch)
	_, _ = r.register("c2", "bob", epoch.Add(time.Second))
	_, _ = r.register("c3", "carol", epoch.Add(2*time.Second))

	require.NoError(t, r.addRoomMembership("c1", "random"))
	require.NoError(t, r.addRoomMembership("c2", "random"))
	require.NoError(t, r.addRoomMembership("c2", "random"))
	assert.ErrorIs(t, r.addRoomMembership("ghost", "random"), ErrUnknownConnection)

	assert.Equal(t, []string{"c1", "c2"}, r.roomMembers("random"))
	assert.Equal(t, []string{"c1", "c2", "c3"}, r.roomMembers("general"))

	r.markOffline("c1", epoch)
	assert.Equal(t, []string{"c2"}, r.roomMembers("random"))
	assert.Empty(t, r.roomMembers("nowhere"))
}

func TestRoomStoreEnsureRoom(t *testing.T) {
	s := newRoomStore(0)
	assert.Equal(t, DefaultHistoryCap, s.limit)

	room, created := s.ensureRoom("general", epoch)
	assert.True(t, created)
	assert.Equal(t, "general", room.ID)

	room, created = s.ensureRoom("general", epoch.Add(time.Hour))
	assert.False(t, created)
	assert.Equal(t, epoch, room.CreatedAt)
	assert.Equal(t, []string{"general"}, s.ids())
}

func TestRoomStoreHistoryIsCapped(t *testing.T) {
	s := newRoomStore(100)
	s.ensureRoom("general", epoch)

	for i := 1; i <= 150; i++ {
		require.NoError(t, s.append("general", models.Message{ID: uint64(i), Body: fmt.Sprintf("m%d", i)}))
	}

	history := s.history("general")
	require.Len(t, history, 100)
	assert.Equal(t, uint64(51), history[0].ID)
	assert.Equal(t, uint64(150), history[99].ID)
}

func TestRoomStoreAppendUnknownRoom(t *testing.T) {
	s := newRoomStore(10)
	assert.ErrorIs(t, s.append("nowhere", models.Message{ID: 1}), ErrUnknownRoom)

	history := s.history("nowhere")
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestRoomStoreHistoryIsACopy(t *testing.T) {
	s := newRoomStore(10)
	s.ensureRoom("general", epoch)
	require.NoError(t, s.append("general", models.Message{ID: 1, Body: "hello"}))

	history := s.history("general")
	history[0].Body = "changed"
	assert.Equal(t, "hello", s.history("general")[0].Body)
}

func TestRoomStorePrivateHistoryIsSymmetric(t *testing.T) {
	s := newRoomStore(2)
	s.appendPrivate("a", "b", models.Message{ID: 1})
	s.appendPrivate("b", "a", models.Message{ID: 2})
	s.appendPrivate("a", "b", models.Message{ID: 3})
	s.appendPrivate("a", "c", models.Message{ID: 4})

	history := s.privateHistory("b", "a")
	require.Len(t, history, 2)
	assert.Equal(t, uint64(2), history[0].ID)
	assert.Equal(t, uint64(3), history[1].ID)
	assert.Len(t, s.privateHistory("c", "a"), 1)
	assert.Empty(t, s.privateHistory("b", "c"))
}

func TestTypingTrackerOneRoomPerConnection(t *testing.T) {
	tr := newTypingTracker()

	_, had := tr.setTyping("c1", "alice", "general", true)
	assert.False(t, had)
	tr.setTyping("c2", "bob", "general", true)
	assert.Equal(t, []string{"alice", "bob"}, tr.typingNamesFor("general"))

	prev, had := tr.setTyping("c1", "alice", "random", true)
	assert.True(t, had)
	assert.Equal(t, "general", prev)
	assert.Equal(t, []string{"bob"}, tr.typingNamesFor("general"))
	assert.Equal(t, []string{"alice"}, tr.typingNamesFor("random"))

	tr.setTyping("c2", "bob", "general", false)
	names := tr.typingNamesFor("general")
	assert.NotNil(t, names)
	assert.Empty(t, names)
}

func TestTypingTrackerDedupesNames(t *testing.T) {
	tr := newTypingTracker()
	tr.setTyping("c1", "alice", "general", true)
	tr.setTyping("c2", "alice", "general", true)

	assert.Equal(t, []string{"alice"}, tr.typingNamesFor("general"))
}

func TestTypingTrackerPurge(t *testing.T) {
	tr := newTypingTracker()
	tr.setTyping("c1", "alice", "random", true)

	room, ok := tr.purge("c1")
	assert.True(t, ok)
	assert.Equal(t, "random", room)

	_, ok = tr.purge("c1")
	assert.False(t, ok)
}

func TestMentionTargets(t *testing.T) {
	alice := &connection{id: "c1", displayName: "alice"}
	b := &connection{id: "c2", displayName: "B"}
	bob := &connection{id: "c3", displayName: "Bob"}
	candidates := []*connection{alice, b, bob}

	cases := map[string]struct {
		body string
		want []string
	}{
		"exact":                 {body: "@B hi", want: []string{"c2"}},
		"prefix collision":      {body: "hey @Bob", want: []string{"c2", "c3"}},
		"case sensitive":        {body: "@bob hi", want: nil},
		"no marker":             {body: "Bob hi", want: nil},
		"sender excluded":       {body: "@alice talking to myself", want: nil},
		"several":               {body: "@alice @B", want: []string{"c2"}},
		"marker without a name": {body: "email me @ home", want: nil},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, mentionTargets(tc.body, "c1", candidates))
		})
	}
}

func TestNotifications(t *testing.T) {
	n := mentionNotification("alice", "random", "c2")
	assert.Equal(t, models.NotificationMention, n.Type)
	assert.Equal(t, "alice mentioned you in random", n.Message)
	assert.Equal(t, "random", n.Room)

	n = privateNotification("alice", "c1", "c2")
	assert.Equal(t, models.NotificationPrivate, n.Type)
	assert.Equal(t, "New private message from alice", n.Message)
	assert.Equal(t, "c1", n.From)
	assert.Equal(t, "c2", n.Target)
}
