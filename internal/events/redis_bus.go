package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// PubSubClient is a minimal interface for Redis Pub/Sub operations.
type PubSubClient interface {
	// Publish sends a message to a Redis channel.
	Publish(ctx context.Context, channel string, message []byte) error

	// Subscribe registers a callback for messages on a channel.
	// Returns an unsubscribe function.
	Subscribe(ctx context.Context, channel string, handler func([]byte)) (unsubscribe func(), err error)
}

// RedisBus distributes events across pods using Redis Pub/Sub. Locally it
// also fans out through a LocalBus so co-located handlers get zero-latency
// delivery.
type RedisBus struct {
	mu         sync.Mutex
	pubsub     PubSubClient
	prefix     string // Redis channel prefix, e.g. "yorby:events:"
	local      *LocalBus
	unsubFuncs []func()
	closed     bool
}

// NewRedisBus creates a Redis-backed event bus.
func NewRedisBus(client PubSubClient, channelPrefix string) *RedisBus {
	if channelPrefix == "" {
		channelPrefix = "yorby:events:"
	}
	return &RedisBus{
		pubsub: client,
		prefix: channelPrefix,
		local:  NewLocalBus(),
	}
}

// Publish sends an event to Redis Pub/Sub so all pods receive it.
// Returns immediately after publishing — delivery is asynchronous.
func (b *RedisBus) Publish(ctx context.Context, event *Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("event bus is closed")
	}
	b.mu.Unlock()

	stamp(event)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	channel := b.prefix + string(event.Type)
	if err := b.pubsub.Publish(ctx, channel, data); err != nil {
		slog.Warn("[RedisBus] Publish failed, falling back to local",
			"type", event.Type, "error", err)
		return b.local.Publish(ctx, event)
	}

	return nil
}

// Subscribe registers a handler for a specific event type. The handler
// receives events from all pods via Redis.
func (b *RedisBus) Subscribe(eventType Type, handler Handler) func() {
	localUnsub := b.local.Subscribe(eventType, handler)

	channel := b.prefix + string(eventType)
	redisUnsub, err := b.pubsub.Subscribe(context.Background(), channel, func(data []byte) {
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			slog.Warn("[RedisBus] Failed to unmarshal event", "error", err)
			return
		}
		b.local.Publish(context.Background(), &event)
	})

	if err != nil {
		slog.Warn("[RedisBus] Redis subscribe failed, local-only mode",
			"type", eventType, "error", err)
	} else {
		b.mu.Lock()
		b.unsubFuncs = append(b.unsubFuncs, redisUnsub)
		b.mu.Unlock()
	}

	return localUnsub
}

// Close shuts down the event bus and all Redis subscriptions.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true

	for _, unsub := range b.unsubFuncs {
		unsub()
	}
	b.unsubFuncs = nil
	b.local.Close()

	slog.Info("[RedisBus] Closed")
	return nil
}
