package telemetry

import (
	"context"
	"log/slog"
	"time"

	"chat-presence/internal/rabbitmq"
)

// AuditEmitter publishes operator-facing audit records next to the chat
// event stream.
type AuditEmitter struct {
	publisher   rabbitmq.Publisher
	routingKey  string
	service     string
	environment string
	logger      *slog.Logger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

func NewAuditEmitter(publisher rabbitmq.Publisher, routingKey, service, environment string, logger *slog.Logger) *AuditEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger,
	}
}

func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string) {
	if e == nil || e.publisher == nil {
		return
	}

	e.logger.Info("audit emit", "level", level, "request_id", requestID, "text", text)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		Payload: AuditPayload{
			Level: level,
			Text:  text,
		},
	}

	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if err := e.publisher.Publish(ctx, e.routingKey, envelope, headers); err != nil {
		e.logger.Warn("audit publish failed", "error", err)
	}
}
