package policy

import (
	"fmt"
	"log"

	"github.com/smartmove/fleet/internal/fleet"
	"github.com/smartmove/fleet/internal/geo"
)

// CongestionCharge is applied unconditionally at the end of every London trip.
const CongestionCharge = 3.50

// minBatteryPercent is the unlock floor shared by all three cities.
const minBatteryPercent = 15

// Simplified London congestion/pedestrian zones.
var londonCongestionZones = []geo.Zone{
	{ID: "LON_CONGESTION_CENTRAL", Center: geo.Coordinate{Lat: 51.5155, Lon: -0.1168}, RadiusM: 2500, Restricted: true},
	{ID: "LON_PEDESTRIAN_WESTMINSTER", Center: geo.Coordinate{Lat: 51.5010, Lon: -0.1247}, RadiusM: 500, Restricted: true},
}

var londonParkingZones = []geo.Zone{
	{ID: "LON_PARK_1", Center: geo.Coordinate{Lat: 51.5074, Lon: -0.1278}, RadiusM: 100},
	{ID: "LON_PARK_2", Center: geo.Coordinate{Lat: 51.5200, Lon: -0.0850}, RadiusM: 100},
}

// LondonPolicy applies the congestion charge model: presence in a congestion
// zone is observed but never a hard block; the charge lands at trip end.
type LondonPolicy struct{}

func (p *LondonPolicy) BeforeUnlock(v *fleet.Vehicle, sample fleet.TelemetrySample, rental *fleet.Rental) error {
	if v.BatteryPercent() < minBatteryPercent {
		return &Violation{City: "London", Reason: fmt.Sprintf("battery too low to start rental (%d%%)", v.BatteryPercent())}
	}
	return nil
}

func (p *LondonPolicy) AfterTrip(rental *fleet.Rental, baseAmount float64) (float64, error) {
	log.Printf("[LondonPolicy] Applying congestion charge: %.2f", CongestionCharge)
	return CongestionCharge, nil
}

func (p *LondonPolicy) ValidateTransition(v *fleet.Vehicle, to fleet.State) error {
	if to == fleet.StateInUse && v.BatteryPercent() < minBatteryPercent {
		return &Violation{City: "London", Reason: fmt.Sprintf("cannot start rental, battery at %d%% (minimum %d%%)", v.BatteryPercent(), minBatteryPercent)}
	}
	return nil
}

func (p *LondonPolicy) IsAllowed(v *fleet.Vehicle, gps geo.Coordinate) error {
	for _, zone := range londonCongestionZones {
		if zone.Restricted && zone.Contains(gps) {
			log.Printf("[LondonPolicy] Vehicle %s in congestion zone %s, congestion charge will apply", v.ID, zone.ID)
		}
	}
	return nil
}

// InMandatoryParkingZone reports whether the position is inside one of the
// designated parking bays.
func (p *LondonPolicy) InMandatoryParkingZone(gps geo.Coordinate) bool {
	for _, zone := range londonParkingZones {
		if zone.Contains(gps) {
			return true
		}
	}
	return false
}
