package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"chat-presence/internal/chat"
	"chat-presence/internal/models"
	"chat-presence/internal/observability"
)

// ErrHubClosed is returned when registering with a hub that has shut down.
var ErrHubClosed = errors.New("hub closed")

// Hub owns the live websocket clients keyed by connection id and fans
// outbound events into their send buffers. It never calls back into the
// chat service.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	logger     *slog.Logger
}

// NewHub creates an empty hub. Run must be started before clients register.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run handles registration until Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				continue
			}
			h.mu.Lock()
			client.closed = false
			h.clients[client.id] = client
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client registered", "conn_id", client.id, "addr", client.info.IP, "clients", count)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// Register hands the client to the run loop, which starts its pumps.
func (h *Hub) Register(client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

// Unregister removes the client and closes its send buffer. Safe to call
// after shutdown and more than once.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		h.removeClient(client)
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	current, ok := h.clients[client.id]
	if !ok || current != client {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.id)
	client.closed = true
	count := len(h.clients)
	h.mu.Unlock()

	close(client.send)
	h.logger.Debug("client unregistered", "conn_id", client.id, "clients", count)
}

// ClientCount returns the number of live clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Deliver implements chat.Deliverer. Ids without a live client and clients
// whose buffer is full are counted as dropped; full clients are evicted.
func (h *Hub) Deliver(connIDs []string, event models.Outbound) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.Event, err)
	}

	var (
		missing int
		failed  []*Client
	)
	for _, id := range connIDs {
		h.mu.RLock()
		client, ok := h.clients[id]
		h.mu.RUnlock()
		if !ok {
			missing++
			continue
		}
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	h.removeFailedClients(failed)

	dropped := missing + len(failed)
	if dropped == 0 {
		return nil
	}
	observability.AddDeliveriesDropped(dropped)
	return fmt.Errorf("%s: %d of %d targets: %w", event.Event, dropped, len(connIDs), chat.ErrDeliveryUnavailable)
}

// DeliverAll implements chat.Deliverer.
func (h *Hub) DeliverAll(event models.Outbound) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("encode broadcast", "event", event.Event, "error", err)
		return
	}

	var failed []*Client
	for _, client := range h.snapshot() {
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	h.removeFailedClients(failed)
	observability.AddDeliveriesDropped(len(failed))
}

func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

func (h *Hub) safeSend(client *Client, payload []byte) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("recovered from send on closed client", "conn_id", client.id, "panic", r)
			sent = false
		}
	}()

	h.mu.RLock()
	defer h.mu.RUnlock()

	current, exists := h.clients[client.id]
	if !exists || current != client || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// removeFailedClients evicts clients that could not take a message. Closing
// the send buffer makes the write pump close the transport, and the read
// pump then reports the disconnect.
func (h *Hub) removeFailedClients(clients []*Client) {
	if len(clients) == 0 {
		return
	}

	h.mu.Lock()
	var toClose []chan []byte
	for _, client := range clients {
		if current, exists := h.clients[client.id]; exists && current == client {
			delete(h.clients, client.id)
			client.closed = true
			toClose = append(toClose, client.send)
			h.logger.Warn("client evicted, send buffer full", "conn_id", client.id)
		}
	}
	h.mu.Unlock()

	for _, ch := range toClose {
		close(ch)
	}
}

func (h *Hub) shutdownClients() {
	clients := h.snapshot()
	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.logger.Warn("close client", "conn_id", client.id, "error", err)
		}
	}
	h.logger.Info("hub closed client connections", "count", len(clients))
}

// Shutdown stops the run loop, closes every client and waits for their pumps
// until ctx expires.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.cancel()
	select {
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	pumps := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(pumps)
	}()

	select {
	case <-pumps:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
