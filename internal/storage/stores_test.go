package storage

import (
	"testing"
	"time"

	"github.com/smartmove/fleet/internal/audit"
	"github.com/smartmove/fleet/internal/fleet"
	"github.com/smartmove/fleet/internal/geo"
)

func TestVehicleStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenVehicleStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("fresh store has %d vehicles", s.Len())
	}

	v := fleet.NewVehicle("LON-ES001", fleet.KindScooter, "London", geo.Coordinate{Lat: 51.5155, Lon: -0.1168}, 90)
	v.TransitionTo(fleet.StateReserved)
	if err := s.Save(v); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := OpenVehicleStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := reloaded.Find("LON-ES001")
	if !ok {
		t.Fatal("vehicle missing after reload")
	}
	if got.Kind != fleet.KindScooter || got.City != "London" {
		t.Errorf("kind/city = %s/%s", got.Kind, got.City)
	}
	if got.State() != fleet.StateReserved {
		t.Errorf("state = %s, want RESERVED", got.State())
	}
	if got.BatteryPercent() != 90 {
		t.Errorf("battery = %d", got.BatteryPercent())
	}
	if loc := got.Location(); loc.Lat != 51.5155 || loc.Lon != -0.1168 {
		t.Errorf("location = %v", loc)
	}
}

func TestVehicleStoreFinders(t *testing.T) {
	s, err := OpenVehicleStore(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Put(fleet.NewVehicle("LON-B001", fleet.KindBicycle, "London", geo.Coordinate{}, 100))
	s.Put(fleet.NewVehicle("MIL-B001", fleet.KindBicycle, "Milan", geo.Coordinate{}, 100))
	locked := fleet.NewVehicle("MIL-M001", fleet.KindMoped, "Milan", geo.Coordinate{}, 60)
	locked.TransitionTo(fleet.StateEmergencyLock)
	s.Put(locked)

	if got := len(s.ByCity("Milan")); got != 2 {
		t.Errorf("ByCity(Milan) = %d vehicles", got)
	}
	if got := s.ByState(fleet.StateEmergencyLock); len(got) != 1 || got[0].ID != "MIL-M001" {
		t.Errorf("ByState(EMERGENCY_LOCK) = %v", got)
	}
	if all := s.All(); len(all) != 3 || all[0].ID != "LON-B001" {
		t.Errorf("All() not sorted by id: %v", all)
	}
}

func TestRentalStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenRentalStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	start := time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)
	active := fleet.NewRental("R1001", "U001", "LON-ES001", start)
	ended := fleet.NewRental("R1002", "U002", "MIL-B001", start)
	ended.End(start.Add(25 * time.Minute))
	if err := s.Save(active); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ended); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := OpenRentalStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	gotActive, ok := reloaded.Find("R1001")
	if !ok || !gotActive.Active() || !gotActive.EndTime().IsZero() {
		t.Errorf("active rental reloaded wrong: %v", gotActive)
	}
	gotEnded, ok := reloaded.Find("R1002")
	if !ok || gotEnded.Active() {
		t.Errorf("ended rental reloaded wrong: %v", gotEnded)
	}
	if !gotEnded.EndTime().Equal(start.Add(25 * time.Minute)) {
		t.Errorf("end time = %v", gotEnded.EndTime())
	}

	if r, ok := reloaded.FindActiveByVehicle("LON-ES001"); !ok || r.ID != "R1001" {
		t.Error("FindActiveByVehicle missed the active rental")
	}
	if _, ok := reloaded.FindActiveByVehicle("MIL-B001"); ok {
		t.Error("FindActiveByVehicle returned an ended rental")
	}
}

func TestPaymentStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenPaymentStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	p := fleet.NewPayment("P1001", "R1001", 6.00, 3.50, "Rental R1001 in London + London surcharge")
	if err := s.Save(p); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := OpenPaymentStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := reloaded.Find("P1001")
	if !ok {
		t.Fatal("payment missing after reload")
	}
	if got.Total != 9.50 || got.Surcharges != 3.50 {
		t.Errorf("amounts = %.2f/%.2f", got.Total, got.Surcharges)
	}
	if got.Description != p.Description {
		t.Errorf("description = %q", got.Description)
	}
}

func TestPaymentStoreDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenPaymentStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Save(fleet.NewPayment("P1001", "R1001", 6.00, 0, "Rental R1001 in Milan")); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.Delete("P1001"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := s.Find("P1001"); ok {
		t.Error("payment still present after delete")
	}
	// Unknown ids are a no-op.
	if err := s.Delete("P9999"); err != nil {
		t.Errorf("delete unknown id: %v", err)
	}

	reloaded, err := OpenPaymentStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reloaded.Len() != 0 {
		t.Errorf("deleted payment survived the file rewrite, len = %d", reloaded.Len())
	}
}

func TestAuditCSVStoreAppendsAndReloads(t *testing.T) {
	dir := t.TempDir()
	s := NewAuditCSVStore(dir)

	first := audit.NewEntry(1, "2026-08-24T10:00:00Z", "VEHICLE_RESERVED", "vehicle=LON-B001 user=U001 rental=R1001", audit.GenesisChecksum)
	second := audit.NewEntry(2, "2026-08-24T10:01:00Z", "RENTAL_STARTED", "vehicle=LON-B001 rental=R1001 city=London", first.Checksum)
	if err := s.Append(first); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(second); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := NewAuditCSVStore(dir).LoadAll()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("loaded %d entries", len(entries))
	}
	if entries[0] != first || entries[1] != second {
		t.Error("entries changed across the file round trip")
	}
	if !entries[1].VerifyIntegrity(entries[0].Checksum) {
		t.Error("reloaded chain does not verify")
	}
}
