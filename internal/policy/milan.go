package policy

import (
	"fmt"
	"log"

	"github.com/smartmove/fleet/internal/fleet"
	"github.com/smartmove/fleet/internal/geo"
)

// CityCenterSurcharge exists in the tariff sheet but is not currently levied;
// AfterTrip returns 0 pending the pricing rollout.
const CityCenterSurcharge = 1.50

// ZTL (Zona a Traffico Limitato) areas in Milan.
var milanRestrictedZones = []geo.Zone{
	{ID: "MIL_ZTL_CENTRO", Center: geo.Coordinate{Lat: 45.4642, Lon: 9.1900}, RadiusM: 1200, Restricted: true},
	{ID: "MIL_PROTECTED_PARCO", Center: geo.Coordinate{Lat: 45.4773, Lon: 9.1878}, RadiusM: 600, Restricted: true},
}

var milanCityCenterZone = geo.Zone{
	ID: "MIL_CITY_CENTER", Center: geo.Coordinate{Lat: 45.4654, Lon: 9.1866}, RadiusM: 2000,
}

// MilanPolicy enforces the moped helmet requirement and hard-blocks ZTL
// entry; the coordinator treats a ZTL violation as an emergency-lock trigger.
type MilanPolicy struct{}

func (p *MilanPolicy) BeforeUnlock(v *fleet.Vehicle, sample fleet.TelemetrySample, rental *fleet.Rental) error {
	// Mopeds require helmet sensor confirmation before unlocking.
	if v.Kind == fleet.KindMoped {
		if !sample.HelmetPresent {
			return &Violation{City: "Milan", Reason: fmt.Sprintf("helmet not detected! Moped %s cannot be unlocked without confirmed helmet presence", v.ID)}
		}
		log.Printf("[MilanPolicy] Helmet confirmed for Moped %s", v.ID)
	}
	if v.BatteryPercent() < minBatteryPercent {
		return &Violation{City: "Milan", Reason: fmt.Sprintf("battery too low (%d%%)", v.BatteryPercent())}
	}
	return nil
}

func (p *MilanPolicy) AfterTrip(rental *fleet.Rental, baseAmount float64) (float64, error) {
	return 0, nil
}

func (p *MilanPolicy) ValidateTransition(v *fleet.Vehicle, to fleet.State) error {
	if to == fleet.StateInUse && v.Kind == fleet.KindMoped && !v.HelmetDetected() {
		return &Violation{City: "Milan", Reason: "moped requires helmet sensor confirmation before use"}
	}
	return nil
}

func (p *MilanPolicy) IsAllowed(v *fleet.Vehicle, gps geo.Coordinate) error {
	for _, zone := range milanRestrictedZones {
		if zone.Restricted && zone.Contains(gps) {
			return &Violation{City: "Milan", Reason: fmt.Sprintf("vehicle %s entered restricted zone %s", v.ID, zone.ID)}
		}
	}
	return nil
}

// InCityCenter reports whether the position falls in the higher-tariff zone.
func (p *MilanPolicy) InCityCenter(gps geo.Coordinate) bool {
	return milanCityCenterZone.Contains(gps)
}
