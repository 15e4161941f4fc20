package memory

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mcpbridge/mcpbridge/internal/domain/endpoint"
)

func TestCommandBusDeliversToSubscriber(t *testing.T) {
	// Verify the subscriber goroutine is gone after cancel.
	defer goleak.VerifyNone(t)

	bus := NewCommandBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan endpoint.Event, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.Subscribe(ctx, func(ev endpoint.Event) {
			got <- ev
		})
	}()

	// Give the subscriber a moment to register.
	deadline := time.After(2 * time.Second)
	for {
		bus.mu.Lock()
		n := len(bus.subs)
		bus.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("subscriber never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	want := endpoint.Event{
		Action:   endpoint.ActionConnect,
		Endpoint: endpoint.EventEndpoint{ID: 1, Name: "hub", URL: "ws://hub.example"},
	}
	if err := bus.Publish(ctx, want); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case ev := <-got:
		if ev != want {
			t.Errorf("got %+v, want %+v", ev, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return on cancel")
	}
}

func TestCommandBusPublishWithoutSubscribers(t *testing.T) {
	bus := NewCommandBus()
	ev := endpoint.Event{Action: endpoint.ActionDisconnect}
	if err := bus.Publish(context.Background(), ev); err != nil {
		t.Errorf("Publish with no subscribers: %v", err)
	}
}
