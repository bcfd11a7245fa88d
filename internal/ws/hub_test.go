package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-presence/internal/chat"
	"chat-presence/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func addTestClient(h *Hub, id string, buffer int) *Client {
	client := &Client{id: id, send: make(chan []byte, buffer), hub: h, logger: discardLogger()}
	h.mu.Lock()
	h.clients[id] = client
	h.mu.Unlock()
	return client
}

func TestHubDeliverToLiveClients(t *testing.T) {
	hub := NewHub(discardLogger())
	a := addTestClient(hub, "a", 4)
	b := addTestClient(hub, "b", 4)

	err := hub.Deliver([]string{"a"}, models.Outbound{Event: models.EventRoomJoined, Data: "random"})
	require.NoError(t, err)

	require.Len(t, a.send, 1)
	assert.Empty(t, b.send)

	var env models.Envelope
	require.NoError(t, json.Unmarshal(<-a.send, &env))
	assert.Equal(t, models.EventRoomJoined, env.Event)
	assert.JSONEq(t, `"random"`, string(env.Data))
}

func TestHubDeliverReportsMissingTargets(t *testing.T) {
	hub := NewHub(discardLogger())
	a := addTestClient(hub, "a", 4)

	err := hub.Deliver([]string{"a", "gone"}, models.Outbound{Event: models.EventMessage, Data: "x"})
	assert.ErrorIs(t, err, chat.ErrDeliveryUnavailable)
	assert.Len(t, a.send, 1)
}

func TestHubDeliverAllIncludesUnregistered(t *testing.T) {
	hub := NewHub(discardLogger())
	a := addTestClient(hub, "a", 4)
	b := addTestClient(hub, "b", 4)

	hub.DeliverAll(models.Outbound{Event: models.EventRoomCreated, Data: "random"})

	assert.Len(t, a.send, 1)
	assert.Len(t, b.send, 1)
}

func TestHubEvictsSlowClient(t *testing.T) {
	hub := NewHub(discardLogger())
	slow := addTestClient(hub, "slow", 1)
	fast := addTestClient(hub, "fast", 4)

	hub.DeliverAll(models.Outbound{Event: models.EventMessage, Data: 1})
	hub.DeliverAll(models.Outbound{Event: models.EventMessage, Data: 2})

	assert.Equal(t, 1, hub.ClientCount())
	assert.True(t, slow.closed)
	assert.Len(t, fast.send, 2)

	<-slow.send
	_, open := <-slow.send
	assert.False(t, open)

	err := hub.Deliver([]string{"slow"}, models.Outbound{Event: models.EventMessage, Data: 3})
	assert.ErrorIs(t, err, chat.ErrDeliveryUnavailable)
}

func TestHubUnregisterAfterShutdown(t *testing.T) {
	hub := NewHub(discardLogger())
	go hub.Run()
	client := addTestClient(hub, "a", 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))

	hub.Unregister(client)
	hub.Unregister(client)
	assert.Equal(t, 0, hub.ClientCount())
	assert.ErrorIs(t, hub.Register(client), ErrHubClosed)
}

func TestOriginPolicy(t *testing.T) {
	policy := NewOriginPolicy([]string{"http://localhost:5173", " HTTPS://Chat.Example.com ", "not a url"}, discardLogger())

	assert.True(t, policy.Allowed("http://localhost:5173"))
	assert.True(t, policy.Allowed("https://chat.example.com"))
	assert.True(t, policy.Allowed("http://LOCALHOST:5173/"))
	assert.False(t, policy.Allowed("http://localhost:3000"))
	assert.False(t, policy.Allowed(""))
	assert.False(t, policy.AllowAll())

	all := NewOriginPolicy([]string{"*"}, discardLogger())
	assert.True(t, all.AllowAll())
	assert.True(t, all.Allowed(""))
	assert.True(t, all.Allowed("http://anything.test"))
}
