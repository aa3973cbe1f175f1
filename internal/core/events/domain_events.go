package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// New builds a domain lifecycle event ready to publish.
func New(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// LoggingSubscriber returns a handler that logs every event it sees.
// The events worker subscribes it to the lifecycle streams so operators
// get a tail of domain activity without touching the audit tables.
func LoggingSubscriber(eb *EventBus) Handler {
	return func(_ context.Context, event Event) error {
		eb.logger.Info("domain event",
			"event_type", event.EventType(),
			"event_id", event.EventID(),
			"occurred_at", event.OccurredAt(),
			"payload", event.Payload())
		return nil
	}
}
