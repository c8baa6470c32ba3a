// Package events provides the in-process publish/subscribe bus used to fan
// pipeline and dashboard events out to alerting and the live stream.
// This is part of the platform layer and contains no business logic.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is implemented by every domain event.
type Event interface {
	// EventName is the subscription key, e.g. "pipeline.run.completed".
	EventName() string
	// EventID identifies one occurrence; stream clients use it to drop repeats.
	EventID() uuid.UUID
	OccurredAt() time.Time
}

// BaseEvent carries the identity and UTC timestamp of an occurrence.
// Domain events embed it and add EventName.
type BaseEvent struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) EventID() uuid.UUID    { return e.ID }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// NewBaseEvent stamps a fresh occurrence.
func NewBaseEvent() BaseEvent {
	return BaseEvent{ID: uuid.New(), Timestamp: time.Now().UTC()}
}

// Handler reacts to a published event. Errors are logged for async
// delivery and joined for PublishSync.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to the handlers subscribed to their name.
type Bus interface {
	// Publish delivers asynchronously and never blocks on handlers.
	Publish(ctx context.Context, event Event)
	// PublishSync delivers in order and returns the joined handler errors.
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}

// SubscribeAll registers one handler for each of the given event types.
func SubscribeAll(bus Bus, handler Handler, prototypes ...Event) {
	for _, p := range prototypes {
		bus.Subscribe(p.EventName(), handler)
	}
}
