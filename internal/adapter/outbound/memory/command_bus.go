// Package memory provides in-process adapter implementations used in
// tests and in deployments that run the admin API and bridge host in
// one process without Redis.
package memory

import (
	"context"
	"sync"

	"github.com/mcpbridge/mcpbridge/internal/domain/endpoint"
)

// CommandBus is an in-process control-plane bus. Events published on it
// are delivered synchronously to every active subscriber.
type CommandBus struct {
	mu   sync.Mutex
	subs map[int]chan endpoint.Event
	next int
}

// Compile-time interface checks.
var (
	_ endpoint.Publisher  = (*CommandBus)(nil)
	_ endpoint.Subscriber = (*CommandBus)(nil)
)

// NewCommandBus creates an empty bus.
func NewCommandBus() *CommandBus {
	return &CommandBus{subs: make(map[int]chan endpoint.Event)}
}

// Publish delivers the event to all subscribers. A slow subscriber
// drops events rather than blocking the publisher.
func (b *CommandBus) Publish(ctx context.Context, ev endpoint.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribe blocks delivering events to handle until ctx is cancelled.
func (b *CommandBus) Subscribe(ctx context.Context, handle func(endpoint.Event)) error {
	ch := make(chan endpoint.Event, 16)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-ch:
			handle(ev)
		}
	}
}
