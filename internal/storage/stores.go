package storage

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/smartmove/fleet/internal/fleet"
	"github.com/smartmove/fleet/internal/geo"
)

const timeLayout = time.RFC3339Nano

// ============================================================================
// VEHICLE STORE
// ============================================================================

var vehicleHeader = []string{"id", "type", "state", "batteryPercent", "temperatureC", "lat", "lon", "city"}

// VehicleStore is the write-through table for vehicles.csv.
type VehicleStore struct {
	mu       sync.RWMutex
	path     string
	vehicles map[string]*fleet.Vehicle
}

// OpenVehicleStore loads data/vehicles.csv under dataDir.
func OpenVehicleStore(dataDir string) (*VehicleStore, error) {
	s := &VehicleStore{
		path:     filepath.Join(dataDir, "vehicles.csv"),
		vehicles: make(map[string]*fleet.Vehicle),
	}
	records, err := readRecords(s.path)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		v, err := vehicleFromRecord(rec)
		if err != nil {
			log.Printf("[Storage] Skipping malformed vehicle row: %v", err)
			continue
		}
		s.vehicles[v.ID] = v
	}
	return s, nil
}

func vehicleFromRecord(rec []string) (*fleet.Vehicle, error) {
	if len(rec) < 8 {
		return nil, fmt.Errorf("vehicle row has %d fields", len(rec))
	}
	kind, err := fleet.ParseKind(rec[1])
	if err != nil {
		return nil, err
	}
	state, err := fleet.ParseState(rec[2])
	if err != nil {
		return nil, err
	}
	battery, err := strconv.Atoi(rec[3])
	if err != nil {
		return nil, fmt.Errorf("battery: %w", err)
	}
	temp, err := strconv.ParseFloat(rec[4], 64)
	if err != nil {
		return nil, fmt.Errorf("temperature: %w", err)
	}
	lat, err := strconv.ParseFloat(rec[5], 64)
	if err != nil {
		return nil, fmt.Errorf("lat: %w", err)
	}
	lon, err := strconv.ParseFloat(rec[6], 64)
	if err != nil {
		return nil, fmt.Errorf("lon: %w", err)
	}

	v := fleet.NewVehicle(rec[0], kind, rec[7], geo.Coordinate{Lat: lat, Lon: lon}, battery)
	v.Restore(state, temp)
	return v, nil
}

func vehicleToRecord(v *fleet.Vehicle) []string {
	loc := v.Location()
	return []string{
		v.ID,
		string(v.Kind),
		v.State().String(),
		strconv.Itoa(v.BatteryPercent()),
		strconv.FormatFloat(v.TemperatureC(), 'f', 1, 64),
		strconv.FormatFloat(loc.Lat, 'f', -1, 64),
		strconv.FormatFloat(loc.Lon, 'f', -1, 64),
		v.City,
	}
}

// Save registers the vehicle and rewrites the table.
func (s *VehicleStore) Save(v *fleet.Vehicle) error {
	s.mu.Lock()
	s.vehicles[v.ID] = v
	s.mu.Unlock()
	return s.SaveAll()
}

// Put registers the vehicle in memory without touching the file.
func (s *VehicleStore) Put(v *fleet.Vehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vehicles[v.ID] = v
}

// SaveAll rewrites the whole table from the in-memory map.
func (s *VehicleStore) SaveAll() error {
	s.mu.RLock()
	rows := make([][]string, 0, len(s.vehicles))
	for _, v := range s.sortedLocked() {
		rows = append(rows, vehicleToRecord(v))
	}
	s.mu.RUnlock()
	return writeRecords(s.path, vehicleHeader, rows)
}

// Find returns the vehicle with the given id.
func (s *VehicleStore) Find(id string) (*fleet.Vehicle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vehicles[id]
	return v, ok
}

// All returns every vehicle, ordered by id.
func (s *VehicleStore) All() []*fleet.Vehicle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}

// ByCity returns the vehicles registered in a city.
func (s *VehicleStore) ByCity(city string) []*fleet.Vehicle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*fleet.Vehicle
	for _, v := range s.sortedLocked() {
		if v.City == city {
			out = append(out, v)
		}
	}
	return out
}

// ByState returns the vehicles currently in the given state.
func (s *VehicleStore) ByState(state fleet.State) []*fleet.Vehicle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*fleet.Vehicle
	for _, v := range s.sortedLocked() {
		if v.State() == state {
			out = append(out, v)
		}
	}
	return out
}

// Len returns the number of registered vehicles.
func (s *VehicleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vehicles)
}

func (s *VehicleStore) sortedLocked() []*fleet.Vehicle {
	out := make([]*fleet.Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ============================================================================
// USER STORE
// ============================================================================

var userHeader = []string{"id", "name"}

// UserStore is the write-through table for users.csv.
type UserStore struct {
	mu    sync.RWMutex
	path  string
	users map[string]*fleet.User
}

// OpenUserStore loads data/users.csv under dataDir.
func OpenUserStore(dataDir string) (*UserStore, error) {
	s := &UserStore{
		path:  filepath.Join(dataDir, "users.csv"),
		users: make(map[string]*fleet.User),
	}
	records, err := readRecords(s.path)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if len(rec) < 2 {
			continue
		}
		s.users[rec[0]] = &fleet.User{ID: rec[0], Name: rec[1]}
	}
	return s, nil
}

// Save registers the user and rewrites the table.
func (s *UserStore) Save(u *fleet.User) error {
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
	return s.SaveAll()
}

// SaveAll rewrites the whole table.
func (s *UserStore) SaveAll() error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		u := s.users[id]
		rows = append(rows, []string{u.ID, u.Name})
	}
	s.mu.RUnlock()
	return writeRecords(s.path, userHeader, rows)
}

// Find returns the user with the given id.
func (s *UserStore) Find(id string) (*fleet.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

// Len returns the number of registered users.
func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// ============================================================================
// RENTAL STORE
// ============================================================================

var rentalHeader = []string{"id", "userId", "vehicleId", "startTime", "endTime", "active"}

// RentalStore is the write-through table for rentals.csv.
type RentalStore struct {
	mu      sync.RWMutex
	path    string
	rentals map[string]*fleet.Rental
}

// OpenRentalStore loads data/rentals.csv under dataDir.
func OpenRentalStore(dataDir string) (*RentalStore, error) {
	s := &RentalStore{
		path:    filepath.Join(dataDir, "rentals.csv"),
		rentals: make(map[string]*fleet.Rental),
	}
	records, err := readRecords(s.path)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		r, err := rentalFromRecord(rec)
		if err != nil {
			log.Printf("[Storage] Skipping malformed rental row: %v", err)
			continue
		}
		s.rentals[r.ID] = r
	}
	return s, nil
}

func rentalFromRecord(rec []string) (*fleet.Rental, error) {
	if len(rec) < 6 {
		return nil, fmt.Errorf("rental row has %d fields", len(rec))
	}
	start, err := time.Parse(timeLayout, rec[3])
	if err != nil {
		return nil, fmt.Errorf("startTime: %w", err)
	}
	r := fleet.NewRental(rec[0], rec[1], rec[2], start)
	active := rec[5] == "true"
	if !active && rec[4] != "" {
		end, err := time.Parse(timeLayout, rec[4])
		if err != nil {
			return nil, fmt.Errorf("endTime: %w", err)
		}
		r.End(end)
	}
	return r, nil
}

func rentalToRecord(r *fleet.Rental) []string {
	endTime := ""
	if end := r.EndTime(); !end.IsZero() {
		endTime = end.UTC().Format(timeLayout)
	}
	return []string{
		r.ID,
		r.UserID,
		r.VehicleID,
		r.StartTime.UTC().Format(timeLayout),
		endTime,
		strconv.FormatBool(r.Active()),
	}
}

// Save registers the rental and rewrites the table.
func (s *RentalStore) Save(r *fleet.Rental) error {
	s.mu.Lock()
	s.rentals[r.ID] = r
	s.mu.Unlock()
	return s.SaveAll()
}

// SaveAll rewrites the whole table.
func (s *RentalStore) SaveAll() error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.rentals))
	for id := range s.rentals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, rentalToRecord(s.rentals[id]))
	}
	s.mu.RUnlock()
	return writeRecords(s.path, rentalHeader, rows)
}

// Find returns the rental with the given id.
func (s *RentalStore) Find(id string) (*fleet.Rental, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rentals[id]
	return r, ok
}

// FindActiveByVehicle returns the active rental referencing a vehicle, if
// one exists.
func (s *RentalStore) FindActiveByVehicle(vehicleID string) (*fleet.Rental, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rentals {
		if r.Active() && r.VehicleID == vehicleID {
			return r, true
		}
	}
	return nil, false
}

// Len returns the number of rentals on record.
func (s *RentalStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rentals)
}

// ============================================================================
// PAYMENT STORE
// ============================================================================

var paymentHeader = []string{"id", "rentalId", "baseAmount", "surcharges", "total", "description"}

// PaymentStore is the write-through table for payments.csv.
type PaymentStore struct {
	mu       sync.RWMutex
	path     string
	payments map[string]*fleet.Payment
}

// OpenPaymentStore loads data/payments.csv under dataDir.
func OpenPaymentStore(dataDir string) (*PaymentStore, error) {
	s := &PaymentStore{
		path:     filepath.Join(dataDir, "payments.csv"),
		payments: make(map[string]*fleet.Payment),
	}
	records, err := readRecords(s.path)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		p, err := paymentFromRecord(rec)
		if err != nil {
			log.Printf("[Storage] Skipping malformed payment row: %v", err)
			continue
		}
		s.payments[p.ID] = p
	}
	return s, nil
}

func paymentFromRecord(rec []string) (*fleet.Payment, error) {
	if len(rec) < 6 {
		return nil, fmt.Errorf("payment row has %d fields", len(rec))
	}
	base, err := strconv.ParseFloat(rec[2], 64)
	if err != nil {
		return nil, fmt.Errorf("baseAmount: %w", err)
	}
	surcharges, err := strconv.ParseFloat(rec[3], 64)
	if err != nil {
		return nil, fmt.Errorf("surcharges: %w", err)
	}
	return fleet.NewPayment(rec[0], rec[1], base, surcharges, rec[5]), nil
}

func paymentToRecord(p *fleet.Payment) []string {
	return []string{
		p.ID,
		p.RentalID,
		strconv.FormatFloat(p.BaseAmount, 'f', 2, 64),
		strconv.FormatFloat(p.Surcharges, 'f', 2, 64),
		strconv.FormatFloat(p.Total, 'f', 2, 64),
		p.Description,
	}
}

// Save registers the payment and rewrites the table.
func (s *PaymentStore) Save(p *fleet.Payment) error {
	s.mu.Lock()
	s.payments[p.ID] = p
	s.mu.Unlock()
	return s.SaveAll()
}

// SaveAll rewrites the whole table.
func (s *PaymentStore) SaveAll() error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.payments))
	for id := range s.payments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, paymentToRecord(s.payments[id]))
	}
	s.mu.RUnlock()
	return writeRecords(s.path, paymentHeader, rows)
}

// Delete removes a payment and rewrites the table. Deleting an unknown id is
// a no-op; the coordinator uses this to undo a payment whose trip failed to
// commit.
func (s *PaymentStore) Delete(id string) error {
	s.mu.Lock()
	if _, ok := s.payments[id]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.payments, id)
	s.mu.Unlock()
	return s.SaveAll()
}

// Find returns the payment with the given id.
func (s *PaymentStore) Find(id string) (*fleet.Payment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	return p, ok
}

// Len returns the number of payments on record.
func (s *PaymentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.payments)
}
