package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type subscriberEntry struct {
	id      int
	handler Handler
}

// LocalBus is an in-process Bus. Used directly in single-pod deployments
// and as the local delivery layer of RedisBus.
type LocalBus struct {
	mu      sync.RWMutex
	subs    map[Type][]subscriberEntry
	counter int
	closed  bool
}

// NewLocalBus creates an in-process event bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[Type][]subscriberEntry)}
}

// Publish fans the event out to all subscribers of its type. Handlers run
// on their own goroutines; a slow handler never blocks the publisher.
func (b *LocalBus) Publish(ctx context.Context, event *Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}
	handlers := b.subs[event.Type]
	b.mu.RUnlock()

	stamp(event)

	for _, entry := range handlers {
		h := entry.handler
		go func() {
			if err := h(ctx, event); err != nil {
				slog.Warn("[LocalBus] Handler error", "type", event.Type, "error", err)
			}
		}()
	}
	return nil
}

// Subscribe registers a handler for an event type.
func (b *LocalBus) Subscribe(eventType Type, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.counter++
	id := b.counter
	b.subs[eventType] = append(b.subs[eventType], subscriberEntry{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[eventType]
		for i, entry := range subs {
			if entry.id == id {
				b.subs[eventType] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Close stops delivery of further events.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func stamp(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
}
