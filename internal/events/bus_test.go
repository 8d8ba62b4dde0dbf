package events

import (
	"context"
	"testing"
	"time"
)

func waitEvent(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
		return nil
	}
}

func TestLocalBusDeliversToTypeSubscribers(t *testing.T) {
	bus := NewLocalBus()
	defer bus.Close()

	got := make(chan *Event, 1)
	bus.Subscribe(TypeVehicleReserved, func(ctx context.Context, e *Event) error {
		got <- e
		return nil
	})

	err := bus.Publish(context.Background(), &Event{
		Type:      TypeVehicleReserved,
		VehicleID: "LON-ES001",
		Payload:   map[string]interface{}{"rental_id": "R1001"},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	e := waitEvent(t, got)
	if e.VehicleID != "LON-ES001" {
		t.Errorf("vehicle id = %s", e.VehicleID)
	}
	if e.ID == "" || e.Timestamp.IsZero() {
		t.Error("publish did not stamp id/timestamp")
	}
}

func TestLocalBusWildcardSubscription(t *testing.T) {
	bus := NewLocalBus()
	defer bus.Close()

	got := make(chan *Event, 2)
	bus.Subscribe(TypeAll, func(ctx context.Context, e *Event) error {
		got <- e
		return nil
	})

	bus.Publish(context.Background(), &Event{Type: TypeRentalStarted, VehicleID: "A"})
	bus.Publish(context.Background(), &Event{Type: TypeEmergencyLock, VehicleID: "B"})

	seen := map[Type]bool{}
	seen[waitEvent(t, got).Type] = true
	seen[waitEvent(t, got).Type] = true
	if !seen[TypeRentalStarted] || !seen[TypeEmergencyLock] {
		t.Errorf("wildcard missed events: %v", seen)
	}
}

func TestLocalBusUnsubscribe(t *testing.T) {
	bus := NewLocalBus()
	defer bus.Close()

	got := make(chan *Event, 1)
	unsub := bus.Subscribe(TypeRentalEnded, func(ctx context.Context, e *Event) error {
		got <- e
		return nil
	})
	unsub()

	bus.Publish(context.Background(), &Event{Type: TypeRentalEnded, VehicleID: "A"})
	select {
	case <-got:
		t.Error("unsubscribed handler still invoked")
	case <-time.After(100 * time.Millisecond):
	}
}

// fakePubSub loops published messages straight back to subscribers, like a
// single-node Redis.
type fakePubSub struct {
	handlers map[string][]func([]byte)
}

func newFakePubSub() *fakePubSub {
	return &fakePubSub{handlers: make(map[string][]func([]byte))}
}

func (f *fakePubSub) Publish(ctx context.Context, channel string, message []byte) error {
	for _, h := range f.handlers[channel] {
		h(message)
	}
	return nil
}

func (f *fakePubSub) Subscribe(ctx context.Context, channel string, handler func([]byte)) (func(), error) {
	f.handlers[channel] = append(f.handlers[channel], handler)
	return func() {}, nil
}

func TestRedisBusRoundTrip(t *testing.T) {
	bus := NewRedisBus(newFakePubSub(), "test:")
	defer bus.Close()

	got := make(chan *Event, 1)
	bus.Subscribe(TypeEmergencyLock, func(ctx context.Context, e *Event) error {
		got <- e
		return nil
	})

	err := bus.Publish(context.Background(), &Event{
		Type:      TypeEmergencyLock,
		VehicleID: "ROM-ES002",
		Payload:   map[string]interface{}{"reason": "geofence"},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	e := waitEvent(t, got)
	if e.VehicleID != "ROM-ES002" {
		t.Errorf("vehicle id = %s", e.VehicleID)
	}
	if e.Payload["reason"] != "geofence" {
		t.Errorf("payload lost in transit: %v", e.Payload)
	}
}
