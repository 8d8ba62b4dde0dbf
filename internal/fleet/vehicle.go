// Package fleet holds the domain entities of the SmartMove system: vehicles
// with their state machine, rentals, payments, users and telemetry samples.
package fleet

import (
	"fmt"
	"sync"

	"github.com/smartmove/fleet/internal/geo"
)

// Kind discriminates the vehicle variants. The persisted names match the
// vehicles.csv type column.
type Kind string

const (
	KindBicycle Kind = "Bicycle"
	KindScooter Kind = "ElectricScooter"
	KindMoped   Kind = "Moped"
)

// ParseKind maps a persisted type name to its Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindBicycle, KindScooter, KindMoped:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown vehicle kind %q", s)
	}
}

// Vehicle is a fleet vehicle. All mutable fields are guarded by the internal
// state lock; the coordinator additionally serializes whole operations with
// its own per-vehicle mutex. The internal lock may be taken while the
// coordinator mutex is held, never the other way around.
type Vehicle struct {
	ID   string
	Kind Kind
	City string

	mu             sync.Mutex // guards everything below
	state          State
	location       geo.Coordinate
	batteryPercent int
	temperatureC   float64
	helmetDetected bool // mopeds only
}

// NewVehicle creates a vehicle in state AVAILABLE at the given location.
func NewVehicle(id string, kind Kind, city string, location geo.Coordinate, batteryPercent int) *Vehicle {
	return &Vehicle{
		ID:             id,
		Kind:           kind,
		City:           city,
		state:          StateAvailable,
		location:       location,
		batteryPercent: batteryPercent,
		temperatureC:   20.0,
	}
}

// TransitionTo moves the vehicle to newState if the transition table allows
// it. Returns false (and leaves the state untouched) otherwise.
func (v *Vehicle) TransitionTo(newState State) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !IsValidTransition(v.state, newState) {
		return false
	}
	v.state = newState
	return true
}

// ForceState bypasses transition validation for rollback paths. If the target
// is not directly reachable it routes through AVAILABLE.
func (v *Vehicle) ForceState(target State) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == target {
		return
	}
	if IsValidTransition(v.state, target) {
		v.state = target
		return
	}
	v.state = StateAvailable
	if target != StateAvailable {
		v.state = target
	}
}

// ApplyTelemetry overwrites location, battery and temperature from a sample.
// Helmet presence is reported per-sample and only latched onto mopeds.
func (v *Vehicle) ApplyTelemetry(sample TelemetrySample) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.location = sample.GPS
	v.batteryPercent = sample.BatteryPercent
	v.temperatureC = sample.TemperatureC
	if v.Kind == KindMoped {
		v.helmetDetected = sample.HelmetPresent
	}
}

// State returns the current lifecycle state.
func (v *Vehicle) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Location returns the last known position.
func (v *Vehicle) Location() geo.Coordinate {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.location
}

// BatteryPercent returns the last reported battery level (0-100).
func (v *Vehicle) BatteryPercent() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.batteryPercent
}

// TemperatureC returns the last reported battery/motor temperature.
func (v *Vehicle) TemperatureC() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.temperatureC
}

// HelmetDetected reports the moped helmet sensor. Always false for other
// kinds.
func (v *Vehicle) HelmetDetected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.helmetDetected
}

// SetHelmetDetected latches the helmet sensor reading onto a moped.
func (v *Vehicle) SetHelmetDetected(detected bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.Kind == KindMoped {
		v.helmetDetected = detected
	}
}

// Restore is used when loading from persistence: it sets the mutable fields
// without transition validation.
func (v *Vehicle) Restore(state State, temperatureC float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = state
	v.temperatureC = temperatureC
}

func (v *Vehicle) String() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return fmt.Sprintf("%s[id=%s, state=%s, bat=%d%%, temp=%.1fC, city=%s]",
		v.Kind, v.ID, v.state, v.batteryPercent, v.temperatureC, v.City)
}
