// fleet-cli runs an end-to-end demo of the coordinator against a scratch
// data directory: a normal London trip, the Milan helmet gate, a Rome
// geofence violation, a thermal emergency and a theft alarm.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/smartmove/fleet/internal/audit"
	"github.com/smartmove/fleet/internal/coordinator"
	"github.com/smartmove/fleet/internal/events"
	"github.com/smartmove/fleet/internal/fleet"
	"github.com/smartmove/fleet/internal/geo"
	"github.com/smartmove/fleet/internal/seed"
	"github.com/smartmove/fleet/internal/storage"
)

func main() {
	dataDir := flag.String("data", "", "data directory (default: fresh temp dir)")
	flag.Parse()

	dir := *dataDir
	if dir == "" {
		var err error
		dir, err = os.MkdirTemp("", "smartmove-demo-")
		if err != nil {
			log.Fatalf("temp dir: %v", err)
		}
		fmt.Printf("Using scratch data dir %s\n\n", dir)
	}

	coord := mustBoot(dir)
	defer coord.Shutdown()

	scenarioLondonTrip(coord)
	scenarioMilanHelmet(coord)
	scenarioRomeGeofence(coord)
	scenarioThermalEmergency(coord)
	scenarioTheftAlarm(coord)

	// Let the telemetry worker finish before the final report.
	coord.Shutdown()

	fmt.Println("\n=== Audit trail ===")
	for _, e := range coord.AuditEntries() {
		fmt.Printf("  #%d %-20s %s\n", e.SeqID, e.EventType, e.Payload)
	}
	fmt.Printf("Chain valid: %t\n", coord.VerifyAuditChain())
}

func mustBoot(dataDir string) *coordinator.Coordinator {
	vehicles, err := storage.OpenVehicleStore(dataDir)
	if err != nil {
		log.Fatalf("vehicles: %v", err)
	}
	users, err := storage.OpenUserStore(dataDir)
	if err != nil {
		log.Fatalf("users: %v", err)
	}
	rentals, err := storage.OpenRentalStore(dataDir)
	if err != nil {
		log.Fatalf("rentals: %v", err)
	}
	payments, err := storage.OpenPaymentStore(dataDir)
	if err != nil {
		log.Fatalf("payments: %v", err)
	}
	if err := seed.EnsureSeeded(vehicles, users); err != nil {
		log.Fatalf("seed: %v", err)
	}
	auditLog, err := audit.NewLog(storage.NewAuditCSVStore(dataDir))
	if err != nil {
		log.Fatalf("audit: %v", err)
	}
	return coordinator.New(vehicles, users, rentals, payments, auditLog, events.NewLocalBus())
}

func scenarioLondonTrip(coord *coordinator.Coordinator) {
	fmt.Println("=== London: reserve, ride, pay ===")
	rental, err := coord.Reserve("U001", "LON-ES001")
	if err != nil {
		log.Fatalf("reserve: %v", err)
	}
	if err := coord.StartRental(rental.ID); err != nil {
		log.Fatalf("start: %v", err)
	}
	payment, err := coord.EndRental(rental.ID)
	if err != nil {
		log.Fatalf("end: %v", err)
	}
	fmt.Printf("Charged %.2f (%s)\n\n", payment.Total, payment.Description)
}

func scenarioMilanHelmet(coord *coordinator.Coordinator) {
	fmt.Println("=== Milan: moped helmet gate ===")
	rental, err := coord.Reserve("U002", "MIL-M001")
	if err != nil {
		log.Fatalf("reserve: %v", err)
	}

	// No helmet: the unlock must be refused.
	if err := coord.StartRental(rental.ID); err != nil {
		fmt.Printf("Unlock refused as expected: %v\n", err)
	}

	// Rider puts the helmet on.
	v, _ := coord.Vehicles().Find("MIL-M001")
	v.SetHelmetDetected(true)
	if err := coord.StartRental(rental.ID); err != nil {
		log.Fatalf("start with helmet: %v", err)
	}
	payment, err := coord.EndRental(rental.ID)
	if err != nil {
		log.Fatalf("end: %v", err)
	}
	fmt.Printf("Charged %.2f (%s)\n\n", payment.Total, payment.Description)
}

func scenarioRomeGeofence(coord *coordinator.Coordinator) {
	fmt.Println("=== Rome: scooter near the Colosseum ===")
	rental, err := coord.Reserve("U003", "ROM-ES002")
	if err != nil {
		log.Fatalf("reserve: %v", err)
	}
	if err := coord.StartRental(rental.ID); err != nil {
		log.Fatalf("start: %v", err)
	}

	allowed := coord.CheckGPS("ROM-ES002", geo.Coordinate{Lat: 41.8902, Lon: 12.4922})
	v, _ := coord.Vehicles().Find("ROM-ES002")
	fmt.Printf("Position allowed: %t, vehicle now %s\n\n", allowed, v.State())
}

func scenarioThermalEmergency(coord *coordinator.Coordinator) {
	fmt.Println("=== London: battery overheating mid-ride ===")
	rental, err := coord.Reserve("U004", "LON-ES002")
	if err != nil {
		log.Fatalf("reserve: %v", err)
	}
	if err := coord.StartRental(rental.ID); err != nil {
		log.Fatalf("start: %v", err)
	}

	v, _ := coord.Vehicles().Find("LON-ES002")
	coord.SubmitTelemetry("LON-ES002", fleet.TelemetrySample{
		Timestamp:      time.Now().UTC(),
		GPS:            v.Location(),
		BatteryPercent: v.BatteryPercent(),
		TemperatureC:   75.0,
	})
	awaitState(coord, "LON-ES002", fleet.StateEmergencyLock)
	v, _ = coord.Vehicles().Find("LON-ES002")
	fmt.Printf("Vehicle now %s\n\n", v.State())
}

func scenarioTheftAlarm(coord *coordinator.Coordinator) {
	fmt.Println("=== Milan: parked bicycle starts moving ===")
	v, _ := coord.Vehicles().Find("MIL-B001")
	coord.SubmitTelemetry("MIL-B001", fleet.TelemetrySample{
		Timestamp:      time.Now().UTC(),
		GPS:            geo.Coordinate{Lat: 45.4700, Lon: 9.1950},
		BatteryPercent: v.BatteryPercent(),
		TemperatureC:   v.TemperatureC(),
	})
	awaitState(coord, "MIL-B001", fleet.StateEmergencyLock)
	v, _ = coord.Vehicles().Find("MIL-B001")
	fmt.Printf("Vehicle now %s\n\n", v.State())
}

// awaitState polls until the background worker applies the expected state.
func awaitState(coord *coordinator.Coordinator, vehicleID string, want fleet.State) {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if v, ok := coord.Vehicles().Find(vehicleID); ok && v.State() == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}
