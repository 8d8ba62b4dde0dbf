package fleet

import (
	"fmt"
	"sync"
	"time"

	"github.com/smartmove/fleet/internal/geo"
)

// Rental links a user to a vehicle for the duration of a trip. A rental is
// active from creation until End is called; for any vehicle at most one
// active rental exists at any instant (enforced by the coordinator).
type Rental struct {
	ID        string
	UserID    string
	VehicleID string
	StartTime time.Time

	mu      sync.Mutex
	endTime time.Time
	active  bool
}

// NewRental creates an active rental starting now.
func NewRental(id, userID, vehicleID string, start time.Time) *Rental {
	return &Rental{
		ID:        id,
		UserID:    userID,
		VehicleID: vehicleID,
		StartTime: start,
		active:    true,
	}
}

// End marks the rental inactive with the given end time. Safe to call once;
// subsequent calls are ignored.
func (r *Rental) End(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	r.endTime = at
	r.active = false
}

// Reopen is used when a failed end operation rolls back: it clears the end
// time and reactivates the rental.
func (r *Rental) Reopen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endTime = time.Time{}
	r.active = true
}

// Active reports whether the rental has not been ended.
func (r *Rental) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// EndTime returns the end timestamp, zero while the rental is active.
func (r *Rental) EndTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endTime
}

func (r *Rental) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("Rental[id=%s, user=%s, vehicle=%s, active=%t]",
		r.ID, r.UserID, r.VehicleID, r.active)
}

// Payment records the settled cost of an ended rental. Immutable after
// creation; Total is always BaseAmount + Surcharges.
type Payment struct {
	ID          string
	RentalID    string
	BaseAmount  float64
	Surcharges  float64
	Total       float64
	Description string
}

// NewPayment creates a payment with the derived total.
func NewPayment(id, rentalID string, baseAmount, surcharges float64, description string) *Payment {
	return &Payment{
		ID:          id,
		RentalID:    rentalID,
		BaseAmount:  baseAmount,
		Surcharges:  surcharges,
		Total:       baseAmount + surcharges,
		Description: description,
	}
}

func (p *Payment) String() string {
	return fmt.Sprintf("Payment[id=%s, rental=%s, base=%.2f, surcharges=%.2f, total=%.2f]",
		p.ID, p.RentalID, p.BaseAmount, p.Surcharges, p.Total)
}

// User is an immutable lookup record.
type User struct {
	ID   string
	Name string
}

// TelemetrySample is one reading pushed by a vehicle.
type TelemetrySample struct {
	Timestamp      time.Time
	GPS            geo.Coordinate
	BatteryPercent int
	TemperatureC   float64
	HelmetPresent  bool
}
