package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"lead_triage_backend/platform/logger"
)

type pingEvent struct {
	BaseEvent
}

func (pingEvent) EventName() string { return "test.ping" }

func TestPublishSync_JoinsHandlerErrors(t *testing.T) {
	bus := NewInMemoryBus(logger.Nop())
	var calls int32
	bus.Subscribe("test.ping", HandlerFunc(func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("first")
	}))
	bus.Subscribe("test.ping", HandlerFunc(func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	err := bus.PublishSync(context.Background(), pingEvent{BaseEvent: NewBaseEvent()})
	if err == nil || err.Error() != "first" {
		t.Fatalf("expected joined error 'first', got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected both handlers to run, got %d", calls)
	}
}

func TestPublish_SurvivesCanceledContext(t *testing.T) {
	bus := NewInMemoryBus(logger.Nop())
	done := make(chan error, 1)
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, _ Event) error {
		done <- ctx.Err()
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Publish(ctx, pingEvent{BaseEvent: NewBaseEvent()})
	bus.Wait()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("handler saw canceled context: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("handler did not run")
	}
}

func TestPublish_NoHandlersIsNoop(t *testing.T) {
	bus := NewInMemoryBus(logger.Nop())
	bus.Publish(context.Background(), pingEvent{})
	bus.Wait()
}

type pongEvent struct {
	BaseEvent
}

func (pongEvent) EventName() string { return "test.pong" }

func TestSubscribeAll_RegistersEachPrototype(t *testing.T) {
	bus := NewInMemoryBus(logger.Nop())
	var seen []string
	SubscribeAll(bus, HandlerFunc(func(_ context.Context, e Event) error {
		seen = append(seen, e.EventName())
		return nil
	}), pingEvent{}, pongEvent{})

	for _, e := range []Event{pingEvent{BaseEvent: NewBaseEvent()}, pongEvent{BaseEvent: NewBaseEvent()}} {
		if err := bus.PublishSync(context.Background(), e); err != nil {
			t.Fatal(err)
		}
	}
	if len(seen) != 2 || seen[0] != "test.ping" || seen[1] != "test.pong" {
		t.Fatalf("unexpected deliveries %v", seen)
	}
}

func TestNewBaseEvent_StampsIdentityInUTC(t *testing.T) {
	a, b := NewBaseEvent(), NewBaseEvent()
	if a.EventID() == b.EventID() {
		t.Fatal("expected distinct event ids")
	}
	if a.OccurredAt().Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", a.OccurredAt().Location())
	}
}
