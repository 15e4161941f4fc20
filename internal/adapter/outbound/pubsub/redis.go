// Package pubsub carries control-plane events over Redis pub/sub.
// The channel is fire-and-forget: a bridge that is down misses events
// and catches up from the endpoint store on its next reconcile.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/mcpbridge/mcpbridge/internal/domain/endpoint"
)

// RedisBus implements endpoint.Publisher and endpoint.Subscriber over a
// single Redis connection pool.
type RedisBus struct {
	client *redis.Client
	logger *slog.Logger
}

// Compile-time interface checks.
var (
	_ endpoint.Publisher  = (*RedisBus)(nil)
	_ endpoint.Subscriber = (*RedisBus)(nil)
)

// NewRedisBus connects to Redis at addr. Password may be empty.
func NewRedisBus(addr, password string, logger *slog.Logger) *RedisBus {
	return &RedisBus{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		logger: logger,
	}
}

// Publish sends one control-plane event on the command channel.
func (b *RedisBus) Publish(ctx context.Context, ev endpoint.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, endpoint.Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s for endpoint %q: %w", ev.Action, ev.Endpoint.Name, err)
	}
	b.logger.Debug("published control event",
		"action", ev.Action, "endpoint", ev.Endpoint.Name)
	return nil
}

// Subscribe blocks delivering events to handle until ctx is cancelled.
// Malformed payloads are logged and skipped.
func (b *RedisBus) Subscribe(ctx context.Context, handle func(endpoint.Event)) error {
	sub := b.client.Subscribe(ctx, endpoint.Channel)
	defer sub.Close()

	// Fail fast if the server is unreachable.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", endpoint.Channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription to %s closed", endpoint.Channel)
			}
			var ev endpoint.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("dropping malformed control event",
					"error", err, "payload", msg.Payload)
				continue
			}
			handle(ev)
		}
	}
}

// Close releases the underlying connection pool.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
