// Package telemetry runs the asynchronous pipeline between vehicles and the
// coordinator: a bounded queue drained by a single background worker that
// applies each sample, classifies it against the alert thresholds, and
// dispatches events through a callback.
package telemetry

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/smartmove/fleet/internal/fleet"
	"github.com/smartmove/fleet/internal/geo"
)

const (
	criticalTempC   = 60.0
	warningTempC    = 50.0
	criticalBattery = 5
	lowBattery      = 15

	// theftDistanceM is how far an idle vehicle may drift before the
	// movement counts as theft.
	theftDistanceM = 10.0

	// queueCapacity bounds the ingress queue; producers block when full.
	queueCapacity = 50_000

	// pollInterval is how often the worker re-checks the running flag while
	// the queue is idle.
	pollInterval = 100 * time.Millisecond
)

// Event classifies a telemetry sample that needs coordinator attention.
type Event int

const (
	EventCriticalTemperature Event = iota
	EventHighTemperatureWarning
	EventCriticalBattery
	EventLowBatteryWarning
	EventTheftAlarm
)

// String returns the event name used in logs and audit payloads.
func (e Event) String() string {
	switch e {
	case EventCriticalTemperature:
		return "CRITICAL_TEMPERATURE"
	case EventHighTemperatureWarning:
		return "HIGH_TEMPERATURE_WARNING"
	case EventCriticalBattery:
		return "CRITICAL_BATTERY"
	case EventLowBatteryWarning:
		return "LOW_BATTERY_WARNING"
	case EventTheftAlarm:
		return "THEFT_ALARM"
	default:
		return "UNKNOWN"
	}
}

// EventCallback is invoked by the worker for each classified event. The
// coordinator reacts under the vehicle's own mutex.
type EventCallback func(v *fleet.Vehicle, event Event)

// update captures everything needed for deterministic classification:
// the previous location is snapshotted at submit time so later samples
// cannot skew the theft check.
type update struct {
	vehicle      *fleet.Vehicle
	sample       fleet.TelemetrySample
	prevLocation geo.Coordinate
}

// Monitor is the single-consumer telemetry worker.
type Monitor struct {
	queue    chan update
	running  atomic.Bool
	stopped  chan struct{}
	callback EventCallback
}

// NewMonitor creates a monitor dispatching events to the given callback.
// Call Run in a goroutine to start draining. The running flag is armed here
// so a Stop issued before Run is scheduled still takes effect.
func NewMonitor(callback EventCallback) *Monitor {
	m := &Monitor{
		queue:    make(chan update, queueCapacity),
		stopped:  make(chan struct{}),
		callback: callback,
	}
	m.running.Store(true)
	return m
}

// Submit enqueues a sample for processing. Blocks when the queue is full;
// callers must be prepared to wait (backpressure).
func (m *Monitor) Submit(v *fleet.Vehicle, sample fleet.TelemetrySample) {
	m.queue <- update{vehicle: v, sample: sample, prevLocation: v.Location()}
	metrics.QueueDepth.Set(float64(len(m.queue)))
}

// Run drains the queue until Stop is called, then finishes the remaining
// items and exits.
func (m *Monitor) Run() {
	log.Println("[TelemetryMonitor] Started")

	for m.running.Load() {
		select {
		case u := <-m.queue:
			m.process(u)
		case <-time.After(pollInterval):
		}
	}

	// Drain whatever was queued before the stop signal.
	for {
		select {
		case u := <-m.queue:
			m.process(u)
		default:
			log.Println("[TelemetryMonitor] Stopped")
			close(m.stopped)
			return
		}
	}
}

// Stop signals the worker to drain and exit.
func (m *Monitor) Stop() {
	m.running.Store(false)
}

// Running reports whether the worker has not been told to stop.
func (m *Monitor) Running() bool {
	return m.running.Load()
}

// AwaitStopped blocks until the worker goroutine has exited, or the timeout
// elapses.
func (m *Monitor) AwaitStopped(timeout time.Duration) bool {
	select {
	case <-m.stopped:
		return true
	case <-time.After(timeout):
		return false
	}
}

// QueueLen returns the number of pending updates.
func (m *Monitor) QueueLen() int {
	return len(m.queue)
}

// process applies the sample and classifies it. Within each category the
// first match wins; terminal events stop further classification.
func (m *Monitor) process(u update) {
	v := u.vehicle
	sample := u.sample

	v.ApplyTelemetry(sample)
	metrics.SamplesProcessed.Inc()
	metrics.QueueDepth.Set(float64(len(m.queue)))

	if sample.TemperatureC > criticalTempC {
		log.Printf("[TelemetryMonitor] CRITICAL TEMP: vehicle %s at %.1fC", v.ID, sample.TemperatureC)
		m.emit(v, EventCriticalTemperature)
		return
	}
	if sample.TemperatureC > warningTempC {
		log.Printf("[TelemetryMonitor] WARNING TEMP: vehicle %s at %.1fC", v.ID, sample.TemperatureC)
		m.emit(v, EventHighTemperatureWarning)
	}

	if sample.BatteryPercent <= criticalBattery {
		log.Printf("[TelemetryMonitor] CRITICAL BATTERY: vehicle %s at %d%%", v.ID, sample.BatteryPercent)
		m.emit(v, EventCriticalBattery)
		return
	}
	if sample.BatteryPercent <= lowBattery {
		m.emit(v, EventLowBatteryWarning)
	}

	// Movement without an active rental.
	if state := v.State(); state == fleet.StateAvailable || state == fleet.StateReserved {
		if dist := u.prevLocation.DistanceTo(sample.GPS); dist > theftDistanceM {
			log.Printf("[TelemetryMonitor] THEFT ALARM: vehicle %s moved %.1fm without rental", v.ID, dist)
			m.emit(v, EventTheftAlarm)
			return
		}
	}
}

func (m *Monitor) emit(v *fleet.Vehicle, event Event) {
	metrics.EventsEmitted.WithLabelValues(event.String()).Inc()
	if m.callback != nil {
		m.callback(v, event)
	}
}
