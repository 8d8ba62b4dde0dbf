package policy

import (
	"fmt"

	"github.com/smartmove/fleet/internal/fleet"
	"github.com/smartmove/fleet/internal/geo"
)

// Archaeological/pedestrian areas restricted to scooters only.
var romeScooterRestrictedZones = []geo.Zone{
	{ID: "ROME_ARCHAEOLOGICAL_COLOSSEO", Center: geo.Coordinate{Lat: 41.8902, Lon: 12.4922}, RadiusM: 800, Restricted: true},
	{ID: "ROME_VATICAN", Center: geo.Coordinate{Lat: 41.9029, Lon: 12.4534}, RadiusM: 600, Restricted: true},
	{ID: "ROME_PIAZZA_NAVONA", Center: geo.Coordinate{Lat: 41.8992, Lon: 12.4731}, RadiusM: 200, Restricted: true},
}

// General ZTL restrictions for all vehicles.
var romeGeneralRestrictedZones = []geo.Zone{
	{ID: "ROME_ZTL_CENTRO", Center: geo.Coordinate{Lat: 41.8956, Lon: 12.4820}, RadiusM: 1500, Restricted: true},
}

// RomePolicy blocks the general ZTL for every vehicle and additionally the
// archaeological/pedestrian set for scooters.
type RomePolicy struct{}

func (p *RomePolicy) BeforeUnlock(v *fleet.Vehicle, sample fleet.TelemetrySample, rental *fleet.Rental) error {
	if v.BatteryPercent() < minBatteryPercent {
		return &Violation{City: "Rome", Reason: fmt.Sprintf("battery too low (%d%%)", v.BatteryPercent())}
	}
	// A vehicle already parked inside a restricted zone must not be unlocked.
	return p.IsAllowed(v, sample.GPS)
}

func (p *RomePolicy) AfterTrip(rental *fleet.Rental, baseAmount float64) (float64, error) {
	return 0, nil
}

func (p *RomePolicy) ValidateTransition(v *fleet.Vehicle, to fleet.State) error {
	return nil
}

func (p *RomePolicy) IsAllowed(v *fleet.Vehicle, gps geo.Coordinate) error {
	for _, zone := range romeGeneralRestrictedZones {
		if zone.Restricted && zone.Contains(gps) {
			return &Violation{City: "Rome", Reason: fmt.Sprintf("vehicle %s is entering restricted ZTL zone %s", v.ID, zone.ID)}
		}
	}
	if v.Kind == fleet.KindScooter {
		for _, zone := range romeScooterRestrictedZones {
			if zone.Restricted && zone.Contains(gps) {
				return &Violation{City: "Rome", Reason: fmt.Sprintf("scooter %s not allowed in protected zone %s (archaeological/pedestrian area)", v.ID, zone.ID)}
			}
		}
	}
	return nil
}
