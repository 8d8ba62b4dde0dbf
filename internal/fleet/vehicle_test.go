package fleet

import (
	"testing"
	"time"

	"github.com/smartmove/fleet/internal/geo"
)

func TestTransitionToEnforcesTable(t *testing.T) {
	v := NewVehicle("LON-B001", KindBicycle, "London", geo.Coordinate{Lat: 51.5, Lon: -0.12}, 100)

	if v.State() != StateAvailable {
		t.Fatalf("new vehicle state = %s, want AVAILABLE", v.State())
	}
	if v.TransitionTo(StateInUse) {
		t.Error("AVAILABLE -> IN_USE accepted")
	}
	if v.State() != StateAvailable {
		t.Errorf("refused transition mutated state to %s", v.State())
	}
	if !v.TransitionTo(StateReserved) {
		t.Error("AVAILABLE -> RESERVED refused")
	}
	if !v.TransitionTo(StateInUse) {
		t.Error("RESERVED -> IN_USE refused")
	}
}

func TestForceStateRoutesThroughAvailable(t *testing.T) {
	v := NewVehicle("LON-B001", KindBicycle, "London", geo.Coordinate{}, 100)
	v.TransitionTo(StateReserved)

	// RESERVED -> MAINTENANCE is not in the table, ForceState still lands.
	v.ForceState(StateMaintenance)
	if v.State() != StateMaintenance {
		t.Errorf("ForceState landed on %s, want MAINTENANCE", v.State())
	}
}

func TestApplyTelemetryLatchesHelmetOnlyOnMopeds(t *testing.T) {
	sample := TelemetrySample{
		Timestamp:      time.Now(),
		GPS:            geo.Coordinate{Lat: 45.47, Lon: 9.19},
		BatteryPercent: 77,
		TemperatureC:   31.5,
		HelmetPresent:  true,
	}

	moped := NewVehicle("MIL-M001", KindMoped, "Milan", geo.Coordinate{}, 100)
	moped.ApplyTelemetry(sample)
	if !moped.HelmetDetected() {
		t.Error("moped did not latch helmet presence")
	}
	if moped.BatteryPercent() != 77 || moped.TemperatureC() != 31.5 {
		t.Error("moped did not apply battery/temperature")
	}
	if moped.Location() != sample.GPS {
		t.Error("moped did not apply location")
	}

	bike := NewVehicle("MIL-B001", KindBicycle, "Milan", geo.Coordinate{}, 100)
	bike.ApplyTelemetry(sample)
	if bike.HelmetDetected() {
		t.Error("bicycle latched helmet presence")
	}
}

func TestRentalEndIdempotent(t *testing.T) {
	r := NewRental("R1001", "U001", "LON-B001", time.Now())
	if !r.Active() {
		t.Fatal("new rental not active")
	}

	first := time.Now()
	r.End(first)
	r.End(first.Add(time.Hour))

	if r.Active() {
		t.Error("rental still active after End")
	}
	if !r.EndTime().Equal(first) {
		t.Errorf("second End overwrote end time: %v", r.EndTime())
	}

	r.Reopen()
	if !r.Active() || !r.EndTime().IsZero() {
		t.Error("Reopen did not reactivate the rental")
	}
}

func TestPaymentTotal(t *testing.T) {
	p := NewPayment("P1001", "R1001", 6.00, 3.50, "Rental R1001 in London + London surcharge")
	if p.Total != 9.50 {
		t.Errorf("total = %.2f, want 9.50", p.Total)
	}
}
