package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// AuditEmitter publishes audit records of security-relevant chat actions.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	log         *slog.Logger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level  string `json:"level"`
	Action string `json:"action"`
	Text   string `json:"text"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, log *slog.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		log:         log,
	}
}

// Emit publishes one audit record. Failures are logged and swallowed.
func (e *AuditEmitter) Emit(ctx context.Context, level, action, text, requestID string, userID uuid.UUID) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		Payload: AuditPayload{
			Level:  level,
			Action: action,
			Text:   text,
		},
	}
	if userID != uuid.Nil {
		id := userID.String()
		envelope.UserID = &id
	}

	e.log.DebugContext(ctx, "audit emit",
		slog.String("level", level), slog.String("action", action), slog.String("request_id", requestID))
	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.log.WarnContext(ctx, "audit publish failed", slog.Any("error", err))
	}
}
