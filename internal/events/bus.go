// Package events provides a pluggable pub/sub bus for fleet domain events.
// The coordinator publishes an event after each committed operation (never
// before the audit append succeeds); dashboards and the websocket stream
// subscribe. LocalBus covers single-process deployments; RedisBus mirrors
// events across instances.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type classifies fleet event categories.
type Type string

const (
	TypeVehicleReserved Type = "vehicle.reserved"
	TypeRentalStarted   Type = "rental.started"
	TypeRentalEnded     Type = "rental.ended"
	TypePaymentMade     Type = "payment.processed"
	TypeEmergencyLock   Type = "vehicle.emergency_lock"
	TypeMaintenance     Type = "vehicle.maintenance"
	TypeTelemetryAlert  Type = "telemetry.alert"
)

// TypeAll subscribes a handler to every event type.
const TypeAll Type = "*"

// Event is one fleet domain event.
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	VehicleID string                 `json:"vehicle_id"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// Handler processes events of a subscribed type.
type Handler func(ctx context.Context, event *Event) error

// Bus provides publish/subscribe for fleet events.
type Bus interface {
	// Publish sends an event to all subscribers of its type.
	Publish(ctx context.Context, event *Event) error

	// Subscribe registers a handler for a type. Returns an unsubscribe
	// function. Subscribing to TypeAll receives every event.
	Subscribe(eventType Type, handler Handler) (unsubscribe func())

	// Close shuts down the bus.
	Close() error
}

// stamp fills in the id and timestamp if the publisher left them empty.
func stamp(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
}

// ============================================================================
// LOCAL BUS (in-process)
// ============================================================================

// LocalBus is the in-memory pub/sub implementation used when no Redis mirror
// is configured.
type LocalBus struct {
	mu          sync.RWMutex
	nextID      int
	subscribers map[Type][]subscriberEntry
	closed      bool
}

type subscriberEntry struct {
	id      int
	handler Handler
}

// NewLocalBus creates an in-memory bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subscribers: make(map[Type][]subscriberEntry)}
}

// Publish fans the event out to matching subscribers asynchronously.
func (b *LocalBus) Publish(ctx context.Context, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	stamp(event)

	deliver(ctx, event, b.subscribers[event.Type])
	deliver(ctx, event, b.subscribers[TypeAll])
	return nil
}

func deliver(ctx context.Context, event *Event, entries []subscriberEntry) {
	for _, entry := range entries {
		h := entry.handler
		go func() {
			if err := h(ctx, event); err != nil {
				slog.Warn("[EventBus] Handler error", "type", event.Type, "error", err)
			}
		}()
	}
}

// Subscribe registers a handler for a specific event type.
func (b *LocalBus) Subscribe(eventType Type, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriberEntry{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[eventType]
		for i, entry := range subs {
			if entry.id == id {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Close marks the bus closed; further publishes are dropped.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subscribers = make(map[Type][]subscriberEntry)
	return nil
}
