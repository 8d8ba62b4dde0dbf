// Package policy implements the per-city regulatory gates. Every city policy
// exposes the same four capabilities; cities without specific rules fall back
// to a no-op default.
package policy

import (
	"github.com/smartmove/fleet/internal/fleet"
	"github.com/smartmove/fleet/internal/geo"
)

// Violation is returned when a policy gate refuses an operation. The reason
// text surfaces verbatim to callers.
type Violation struct {
	City   string
	Reason string
}

func (v *Violation) Error() string {
	return v.City + " policy: " + v.Reason
}

// CityPolicy is the capability set every city exposes.
type CityPolicy interface {
	// BeforeUnlock is called before a reserved vehicle is unlocked.
	// Returns a *Violation to block the unlock.
	BeforeUnlock(v *fleet.Vehicle, sample fleet.TelemetrySample, rental *fleet.Rental) error

	// AfterTrip returns the city surcharge to add on top of the base fare.
	AfterTrip(rental *fleet.Rental, baseAmount float64) (float64, error)

	// ValidateTransition applies city-specific rules to a state change.
	ValidateTransition(v *fleet.Vehicle, to fleet.State) error

	// IsAllowed checks whether the vehicle may be at the given position.
	IsAllowed(v *fleet.Vehicle, gps geo.Coordinate) error
}

var policies = map[string]CityPolicy{
	"London": &LondonPolicy{},
	"Milan":  &MilanPolicy{},
	"Rome":   &RomePolicy{},
}

// ForCity returns the policy for a city, or the no-op default for cities
// without specific rules.
func ForCity(name string) CityPolicy {
	if p, ok := policies[name]; ok {
		return p
	}
	return defaultPolicy{}
}

// defaultPolicy allows everything and charges nothing.
type defaultPolicy struct{}

func (defaultPolicy) BeforeUnlock(*fleet.Vehicle, fleet.TelemetrySample, *fleet.Rental) error {
	return nil
}

func (defaultPolicy) AfterTrip(*fleet.Rental, float64) (float64, error) { return 0, nil }

func (defaultPolicy) ValidateTransition(*fleet.Vehicle, fleet.State) error { return nil }

func (defaultPolicy) IsAllowed(*fleet.Vehicle, geo.Coordinate) error { return nil }
