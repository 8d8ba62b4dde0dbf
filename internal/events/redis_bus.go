// Redis-backed Bus for multi-instance deployments.
//
// A single coordinator owns the fleet, but dashboards and monitoring UIs may
// run against replicas of the API layer. RedisBus publishes every fleet event
// to Redis Pub/Sub so subscribers on other instances receive them; locally it
// also fans out in-process for zero-latency delivery.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// PubSubClient is the minimal Redis Pub/Sub surface the bus needs. The
// go-redis implementation lives in internal/infra.
type PubSubClient interface {
	// Publish sends a message to a Redis channel.
	Publish(ctx context.Context, channel string, message []byte) error

	// Subscribe registers a callback for messages on a channel and returns
	// an unsubscribe function.
	Subscribe(ctx context.Context, channel string, handler func([]byte)) (unsubscribe func(), err error)
}

// RedisBus distributes fleet events across instances using Redis Pub/Sub.
type RedisBus struct {
	mu         sync.RWMutex
	pubsub     PubSubClient
	prefix     string
	nextID     int
	localSubs  map[Type][]subscriberEntry
	unsubFuncs []func()
	closed     bool
}

// NewRedisBus creates a Redis-backed bus with the given channel prefix
// (default "smartmove:events:").
func NewRedisBus(client PubSubClient, channelPrefix string) *RedisBus {
	if channelPrefix == "" {
		channelPrefix = "smartmove:events:"
	}
	return &RedisBus{
		pubsub:    client,
		prefix:    channelPrefix,
		localSubs: make(map[Type][]subscriberEntry),
	}
}

// Publish sends the event to Redis; on publish failure it degrades to
// local-only delivery rather than failing the caller.
func (b *RedisBus) Publish(ctx context.Context, event *Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("event bus is closed")
	}
	b.mu.RUnlock()

	stamp(event)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	channel := b.prefix + string(event.Type)
	if err := b.pubsub.Publish(ctx, channel, data); err != nil {
		slog.Warn("[RedisBus] Publish failed, falling back to local", "type", event.Type, "error", err)
		b.deliverLocal(ctx, event)
		return nil
	}
	// Redis echoes the message back to this instance's subscription, so no
	// local fan-out here.
	return nil
}

// Subscribe registers a handler. Events arrive from all instances via Redis
// and from local publishers when Redis is unreachable.
func (b *RedisBus) Subscribe(eventType Type, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.localSubs[eventType] = append(b.localSubs[eventType], subscriberEntry{id: id, handler: handler})

	channel := b.prefix + string(eventType)
	unsub, err := b.pubsub.Subscribe(context.Background(), channel, func(data []byte) {
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			slog.Warn("[RedisBus] Failed to unmarshal event", "error", err)
			return
		}
		b.deliverLocal(context.Background(), &event)
	})
	if err != nil {
		slog.Warn("[RedisBus] Redis subscribe failed, local-only mode", "type", eventType, "error", err)
	} else {
		b.unsubFuncs = append(b.unsubFuncs, unsub)
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.localSubs[eventType]
		for i, entry := range subs {
			if entry.id == id {
				b.localSubs[eventType] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Close shuts down the bus and all Redis subscriptions.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, unsub := range b.unsubFuncs {
		unsub()
	}
	b.unsubFuncs = nil
	b.localSubs = nil
	return nil
}

func (b *RedisBus) deliverLocal(ctx context.Context, event *Event) {
	b.mu.RLock()
	handlers := append([]subscriberEntry{}, b.localSubs[event.Type]...)
	handlers = append(handlers, b.localSubs[TypeAll]...)
	b.mu.RUnlock()

	deliver(ctx, event, handlers)
}
