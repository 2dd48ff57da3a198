package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"chat-client/internal/observability"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Envelope wraps every lifecycle event the client publishes.
type Envelope struct {
	SchemaVersion int            `json:"schema_version"`
	EventType     string         `json:"event_type"`
	EventName     string         `json:"event_name"`
	OccurredAt    string         `json:"occurred_at"`
	Service       string         `json:"service"`
	Environment   string         `json:"environment"`
	UserID        int            `json:"user_id,omitempty"`
	Payload       map[string]any `json:"payload"`
}

// Emitter publishes lifecycle envelopes. A nil Emitter drops everything.
type Emitter struct {
	publisher   Publisher
	service     string
	environment string
	log         zerolog.Logger
	userID      int
}

func NewEmitter(publisher Publisher, service, environment string, logger zerolog.Logger) *Emitter {
	return &Emitter{
		publisher:   publisher,
		service:     service,
		environment: environment,
		log:         logger,
	}
}

// SetUser attaches the resolved local identity to subsequent envelopes.
func (e *Emitter) SetUser(userID int) {
	if e == nil {
		return
	}
	e.userID = userID
}

// RoutingKey is the topic key for one event, "client.<eventType>.<eventName>",
// so consumers can bind to a whole event type with "client.<eventType>.*".
func RoutingKey(eventType, eventName string) string {
	return "client." + eventType + "." + eventName
}

// Emit publishes one event under RoutingKey(eventType, eventName).
func (e *Emitter) Emit(ctx context.Context, eventType, eventName string, payload map[string]any) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := Envelope{
		SchemaVersion: 1,
		EventType:     eventType,
		EventName:     eventName,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		UserID:        e.userID,
		Payload:       payload,
	}

	if err := e.publisher.Publish(ctx, RoutingKey(eventType, eventName), envelope); err != nil {
		observability.IncAMQPPublishError()
		e.log.Debug().Err(err).Str("event_name", eventName).Msg("[telemetry] publish failed")
	}
}
