package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/smartmove/fleet/internal/fleet"
	"github.com/smartmove/fleet/internal/geo"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(v *fleet.Vehicle, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// runMonitor drives the worker over the given submissions and returns after
// the queue has fully drained.
func runMonitor(t *testing.T, rec *eventRecorder, submit func(m *Monitor)) {
	t.Helper()
	m := NewMonitor(rec.record)
	go m.Run()
	submit(m)
	m.Stop()
	if !m.AwaitStopped(5 * time.Second) {
		t.Fatal("worker did not drain in time")
	}
}

func sample(gps geo.Coordinate, battery int, temp float64) fleet.TelemetrySample {
	return fleet.TelemetrySample{
		Timestamp:      time.Now().UTC(),
		GPS:            gps,
		BatteryPercent: battery,
		TemperatureC:   temp,
	}
}

func TestCriticalTemperatureIsTerminal(t *testing.T) {
	v := fleet.NewVehicle("LON-ES001", fleet.KindScooter, "London", geo.Coordinate{}, 90)
	rec := &eventRecorder{}

	// Battery is also critical, but temperature wins and stops classification.
	runMonitor(t, rec, func(m *Monitor) {
		m.Submit(v, sample(v.Location(), 3, 75.0))
	})

	events := rec.all()
	if len(events) != 1 || events[0] != EventCriticalTemperature {
		t.Fatalf("events = %v, want exactly CRITICAL_TEMPERATURE", events)
	}
	if v.TemperatureC() != 75.0 {
		t.Errorf("sample not applied, temp = %.1f", v.TemperatureC())
	}
}

func TestWarningTemperatureContinuesToBatteryChecks(t *testing.T) {
	v := fleet.NewVehicle("LON-ES001", fleet.KindScooter, "London", geo.Coordinate{}, 90)
	rec := &eventRecorder{}

	runMonitor(t, rec, func(m *Monitor) {
		m.Submit(v, sample(v.Location(), 12, 55.0))
	})

	events := rec.all()
	if len(events) != 2 || events[0] != EventHighTemperatureWarning || events[1] != EventLowBatteryWarning {
		t.Fatalf("events = %v, want [HIGH_TEMPERATURE_WARNING LOW_BATTERY_WARNING]", events)
	}
}

func TestBatteryThresholds(t *testing.T) {
	cases := []struct {
		battery int
		want    []Event
	}{
		{5, []Event{EventCriticalBattery}},
		{15, []Event{EventLowBatteryWarning}},
		{16, nil},
	}
	for _, c := range cases {
		v := fleet.NewVehicle("LON-ES001", fleet.KindScooter, "London", geo.Coordinate{}, 90)
		rec := &eventRecorder{}
		runMonitor(t, rec, func(m *Monitor) {
			m.Submit(v, sample(v.Location(), c.battery, 20.0))
		})
		events := rec.all()
		if len(events) != len(c.want) {
			t.Errorf("battery %d%%: events = %v, want %v", c.battery, events, c.want)
			continue
		}
		for i := range c.want {
			if events[i] != c.want[i] {
				t.Errorf("battery %d%%: events = %v, want %v", c.battery, events, c.want)
			}
		}
	}
}

func TestTheftAlarmOnIdleMovement(t *testing.T) {
	home := geo.Coordinate{Lat: 45.4642, Lon: 9.1900}
	moved := geo.Coordinate{Lat: 45.4700, Lon: 9.1950}

	v := fleet.NewVehicle("MIL-B001", fleet.KindBicycle, "Milan", home, 100)
	rec := &eventRecorder{}
	runMonitor(t, rec, func(m *Monitor) {
		m.Submit(v, sample(moved, 100, 20.0))
	})

	events := rec.all()
	if len(events) != 1 || events[0] != EventTheftAlarm {
		t.Fatalf("events = %v, want THEFT_ALARM", events)
	}
}

func TestNoTheftAlarmDuringRental(t *testing.T) {
	home := geo.Coordinate{Lat: 45.4642, Lon: 9.1900}
	moved := geo.Coordinate{Lat: 45.4700, Lon: 9.1950}

	v := fleet.NewVehicle("MIL-ES001", fleet.KindScooter, "Milan", home, 100)
	v.TransitionTo(fleet.StateReserved)
	v.TransitionTo(fleet.StateInUse)

	rec := &eventRecorder{}
	runMonitor(t, rec, func(m *Monitor) {
		m.Submit(v, sample(moved, 100, 20.0))
	})

	if events := rec.all(); len(events) != 0 {
		t.Fatalf("events = %v, want none while in use", events)
	}
}

func TestStopDrainsQueuedSamples(t *testing.T) {
	v := fleet.NewVehicle("LON-B001", fleet.KindBicycle, "London", geo.Coordinate{}, 100)
	rec := &eventRecorder{}

	const n = 200
	runMonitor(t, rec, func(m *Monitor) {
		for i := 0; i < n; i++ {
			m.Submit(v, sample(v.Location(), 4, 20.0))
		}
	})

	if got := len(rec.all()); got != n {
		t.Errorf("processed %d samples, want %d", got, n)
	}
}
