package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chat-presence/internal/models"
	"chat-presence/internal/observability"
)

// DefaultRoom is the room every registered connection belongs to.
const DefaultRoom = "general"

const eventDisconnect = "disconnect"

// Deliverer pushes outbound events to live transport connections. Both
// methods must not block; they are called with the service lock held so that
// per-room delivery order matches routing order.
type Deliverer interface {
	// Deliver sends event to each listed connection. Targets that are not
	// live are skipped and reported with an error wrapping
	// ErrDeliveryUnavailable.
	Deliver(connIDs []string, event models.Outbound) error
	// DeliverAll sends event to every live connection, registered or not.
	DeliverAll(event models.Outbound)
}

// Options configures a Service.
type Options struct {
	DefaultRoom string
	HistoryCap  int
	Logger      *slog.Logger
	Now         func() time.Time
}

// Service owns the connection registry, room store and typing tracker behind
// a single lock and routes inbound events to their delivery sets.
type Service struct {
	mu       sync.Mutex
	registry *registry
	rooms    *roomStore
	typing   *typingTracker
	nextID   uint64

	out         Deliverer
	defaultRoom string
	now         func() time.Time
	logger      *slog.Logger
}

// NewService creates a Service with the default room already in place.
func NewService(out Deliverer, opts Options) *Service {
	if opts.DefaultRoom == "" {
		opts.DefaultRoom = DefaultRoom
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Service{
		registry:    newRegistry(opts.DefaultRoom),
		rooms:       newRoomStore(opts.HistoryCap),
		typing:      newTypingTracker(),
		out:         out,
		defaultRoom: opts.DefaultRoom,
		now:         opts.Now,
		logger:      opts.Logger,
	}
	s.rooms.ensureRoom(s.defaultRoom, s.now())
	return s
}

// DefaultRoomID returns the configured default room.
func (s *Service) DefaultRoomID() string {
	return s.defaultRoom
}

// Handle routes one inbound event from connID. The returned error is for
// logging only; nothing is reported back to the client.
func (s *Service) Handle(ctx context.Context, connID string, event models.Inbound) error {
	name := event.EventName()
	ctx, span := otel.Tracer("chat-presence/chat").Start(ctx, "chat."+name,
		trace.WithAttributes(attribute.String("chat.conn_id", connID)))
	defer span.End()

	var (
		payload any
		err     error
	)
	switch ev := event.(type) {
	case models.Join:
		payload, err = s.join(connID, ev)
	case models.Send:
		payload, err = s.send(connID, ev)
	case models.PrivateMessage:
		payload, err = s.privateMessage(connID, ev)
	case models.Typing:
		payload, err = s.setTyping(connID, ev)
	case models.JoinRoom:
		payload, err = s.joinRoom(connID, ev)
	default:
		err = fmt.Errorf("%w: %T", models.ErrMalformedEvent, event)
	}

	if err != nil {
		observability.IncRoutedEvent(name, "rejected")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s from %s: %w", name, connID, err)
	}

	observability.IncRoutedEvent(name, "ok")
	s.publish(ctx, name, connID, payload)
	return nil
}

// Disconnect marks connID offline and clears its typing state. Unknown or
// already offline connections produce no broadcasts.
func (s *Service) Disconnect(ctx context.Context, connID string) {
	ctx, span := otel.Tracer("chat-presence/chat").Start(ctx, "chat."+eventDisconnect,
		trace.WithAttributes(attribute.String("chat.conn_id", connID)))
	defer span.End()

	s.mu.Lock()
	now := s.now()
	typingRoom, wasTyping := s.typing.purge(connID)
	conn, changed := s.registry.markOffline(connID, now)
	if changed {
		s.out.DeliverAll(models.Outbound{
			Event: models.EventUserLeft,
			Data:  models.UserPresence{ID: conn.ID, Username: conn.DisplayName},
		})
		s.out.DeliverAll(models.Outbound{Event: models.EventUserList, Data: s.registry.list()})
		s.deliver(s.registry.roomMembers(s.defaultRoom), models.Outbound{
			Event: models.EventMessage,
			Data:  s.systemMessage(fmt.Sprintf("%s left the chat", conn.DisplayName), now),
		})
	}
	if wasTyping {
		s.deliver(s.registry.roomMembers(typingRoom), models.Outbound{
			Event: models.EventTypingUsers,
			Data:  s.typing.typingNamesFor(typingRoom),
		})
	}
	online := s.registry.onlineCount()
	s.mu.Unlock()

	if !changed {
		return
	}
	observability.SetOnlineUsers(online)
	observability.IncRoutedEvent(eventDisconnect, "ok")
	s.logger.Info("user left the chat", "conn_id", connID, "username", conn.DisplayName)
	s.publish(ctx, eventDisconnect, connID, conn)
}

func (s *Service) join(connID string, ev models.Join) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	conn, err := s.registry.register(connID, ev.DisplayName, now)
	if err != nil {
		return nil, err
	}
	s.ensureRoom(s.defaultRoom, now)

	s.out.DeliverAll(models.Outbound{Event: models.EventUserList, Data: s.registry.list()})
	s.out.DeliverAll(models.Outbound{
		Event: models.EventUserJoined,
		Data:  models.UserPresence{ID: conn.ID, Username: conn.DisplayName},
	})
	s.deliver(s.registry.roomMembers(s.defaultRoom), models.Outbound{
		Event: models.EventMessage,
		Data:  s.systemMessage(fmt.Sprintf("%s joined the chat", conn.DisplayName), now),
	})

	observability.SetOnlineUsers(s.registry.onlineCount())
	s.logger.Info("user joined the chat", "conn_id", connID, "username", conn.DisplayName)
	return conn, nil
}

func (s *Service) send(connID string, ev models.Send) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sender, ok := s.registry.online(connID)
	if !ok {
		return nil, ErrUnknownConnection
	}

	now := s.now()
	s.ensureRoom(ev.RoomID, now)
	msg := s.newMessage(now)
	msg.SenderID = sender.id
	msg.SenderName = sender.displayName
	msg.Body = ev.Body
	msg.RoomID = ev.RoomID
	if err := s.rooms.append(ev.RoomID, msg); err != nil {
		return nil, err
	}

	s.deliver(s.registry.roomMembers(ev.RoomID), models.Outbound{Event: models.EventMessage, Data: msg})
	for _, target := range mentionTargets(ev.Body, sender.id, s.registry.onlineConnections()) {
		s.notify(mentionNotification(sender.displayName, ev.RoomID, target))
	}
	return msg, nil
}

func (s *Service) privateMessage(connID string, ev models.PrivateMessage) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sender, ok := s.registry.online(connID)
	if !ok {
		return nil, ErrUnknownConnection
	}
	recipient, ok := s.registry.get(ev.RecipientID)
	if !ok {
		return nil, fmt.Errorf("recipient %s: %w", ev.RecipientID, ErrUnknownConnection)
	}

	msg := s.newMessage(s.now())
	msg.SenderID = sender.id
	msg.SenderName = sender.displayName
	msg.Body = ev.Body
	msg.RecipientID = recipient.id
	msg.RecipientName = recipient.displayName
	msg.IsPrivate = true
	s.rooms.appendPrivate(sender.id, recipient.id, msg)

	targets := []string{recipient.id}
	if sender.id != recipient.id {
		targets = append(targets, sender.id)
	}
	s.deliver(targets, models.Outbound{Event: models.EventPrivateMessage, Data: msg})
	s.notify(privateNotification(sender.displayName, sender.id, recipient.id))
	return msg, nil
}

func (s *Service) setTyping(connID string, ev models.Typing) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sender, ok := s.registry.online(connID)
	if !ok {
		return nil, ErrUnknownConnection
	}

	prevRoom, hadEntry := s.typing.setTyping(sender.id, sender.displayName, ev.RoomID, ev.IsTyping)
	names := s.typing.typingNamesFor(ev.RoomID)
	s.deliver(s.registry.roomMembers(ev.RoomID), models.Outbound{Event: models.EventTypingUsers, Data: names})
	if hadEntry && prevRoom != ev.RoomID {
		s.deliver(s.registry.roomMembers(prevRoom), models.Outbound{
			Event: models.EventTypingUsers,
			Data:  s.typing.typingNamesFor(prevRoom),
		})
	}
	return map[string]any{"room": ev.RoomID, "isTyping": ev.IsTyping}, nil
}

func (s *Service) joinRoom(connID string, ev models.JoinRoom) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.registry.online(connID); !ok {
		return nil, ErrUnknownConnection
	}

	room, _ := s.ensureRoom(ev.RoomID, s.now())
	if err := s.registry.addRoomMembership(connID, ev.RoomID); err != nil {
		return nil, err
	}

	s.out.DeliverAll(models.Outbound{Event: models.EventUserList, Data: s.registry.list()})
	s.deliver([]string{connID}, models.Outbound{Event: models.EventRoomJoined, Data: ev.RoomID})
	s.deliver([]string{connID}, models.Outbound{
		Event: models.EventRoomHistory,
		Data:  models.RoomHistory{Room: ev.RoomID, Messages: s.rooms.history(ev.RoomID)},
	})
	return room, nil
}

// ensureRoom announces newly created rooms to every connection. Callers hold
// the lock.
func (s *Service) ensureRoom(roomID string, now time.Time) (models.Room, bool) {
	room, created := s.rooms.ensureRoom(roomID, now)
	if created {
		s.out.DeliverAll(models.Outbound{Event: models.EventRoomCreated, Data: roomID})
		s.logger.Info("room created", "room", roomID)
	}
	return room, created
}

func (s *Service) notify(n models.Notification) {
	s.deliver([]string{n.Target}, models.Outbound{Event: models.EventNotification, Data: n})
}

func (s *Service) deliver(connIDs []string, event models.Outbound) {
	if len(connIDs) == 0 {
		return
	}
	if err := s.out.Deliver(connIDs, event); err != nil {
		if errors.Is(err, ErrDeliveryUnavailable) {
			s.logger.Debug("delivery dropped", "event", event.Event, "error", err)
			return
		}
		s.logger.Warn("delivery failed", "event", event.Event, "error", err)
	}
}

func (s *Service) newMessage(now time.Time) models.Message {
	s.nextID++
	return models.Message{ID: s.nextID, Timestamp: now.UTC()}
}

func (s *Service) systemMessage(body string, now time.Time) models.Message {
	msg := s.newMessage(now)
	msg.Body = body
	msg.RoomID = s.defaultRoom
	msg.IsSystem = true
	return msg
}

func (s *Service) publish(ctx context.Context, name, connID string, payload any) {
	traceID := ""
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	envelope := observability.NewEnvelope("chat_events", name, map[string]any{
		"conn_id": connID,
		"data":    payload,
	})
	headers := observability.BuildHeaders(observability.RequestIDFromContext(ctx), traceID)
	if err := observability.PublishEvent(ctx, "chat_events."+name, envelope, headers); err != nil {
		s.logger.Debug("chat event publish failed", "event", name, "error", err)
	}
}

// History returns a snapshot of the room's retained messages.
func (s *Service) History(roomID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms.history(roomID)
}

// PrivateHistory returns the retained private messages between a and b.
func (s *Service) PrivateHistory(a, b string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms.privateHistory(a, b)
}

// Users returns a snapshot of every known connection, online or offline.
func (s *Service) Users() []models.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.list()
}

// RoomIDs returns the known room identifiers.
func (s *Service) RoomIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms.ids()
}

// TypingNames returns the display names currently typing in roomID.
func (s *Service) TypingNames(roomID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing.typingNamesFor(roomID)
}
