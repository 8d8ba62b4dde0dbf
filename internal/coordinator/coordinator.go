// Package coordinator orchestrates every fleet operation: reservations, trip
// start/end with policy gates and payment, geofence checks, telemetry intake
// and the snapshot/rollback discipline that keeps vehicle state consistent
// with the write-ahead audit log.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smartmove/fleet/internal/audit"
	"github.com/smartmove/fleet/internal/events"
	"github.com/smartmove/fleet/internal/fleet"
	"github.com/smartmove/fleet/internal/geo"
	"github.com/smartmove/fleet/internal/policy"
	"github.com/smartmove/fleet/internal/storage"
	"github.com/smartmove/fleet/internal/telemetry"
)

// BaseFare is the flat amount charged per completed rental, before city
// surcharges.
const BaseFare = 6.00

// Coordinator is the transactional heart of the system. All state changes to
// a vehicle happen under that vehicle's operation mutex; audit entries are
// written before in-memory commits so the trail never lags the state.
type Coordinator struct {
	vehicles *storage.VehicleStore
	users    *storage.UserStore
	rentals  *storage.RentalStore
	payments *storage.PaymentStore
	auditLog *audit.Log
	monitor  *telemetry.Monitor
	bus      events.Bus

	// vehicleLocks serializes operations per vehicle id.
	vehicleLocks sync.Map // string -> *sync.Mutex

	// snapshots holds each vehicle's pre-operation state while an operation
	// is in flight, for rollback on persistence or audit failure.
	snapshots sync.Map // string -> fleet.State

	rentalSeq  atomic.Int64
	paymentSeq atomic.Int64
}

// New wires the coordinator and starts the telemetry worker.
func New(vehicles *storage.VehicleStore, users *storage.UserStore,
	rentals *storage.RentalStore, payments *storage.PaymentStore,
	auditLog *audit.Log, bus events.Bus) *Coordinator {

	c := &Coordinator{
		vehicles: vehicles,
		users:    users,
		rentals:  rentals,
		payments: payments,
		auditLog: auditLog,
		bus:      bus,
	}
	c.rentalSeq.Store(nextIDSeed(rentals.Len()))
	c.paymentSeq.Store(nextIDSeed(payments.Len()))

	c.monitor = telemetry.NewMonitor(c.handleTelemetryEvent)
	go c.monitor.Run()

	log.Println("[Coordinator] Started")
	return c
}

// nextIDSeed keeps generated ids (R1001, P1001, ...) from colliding with rows
// loaded from a previous run.
func nextIDSeed(existing int) int64 {
	return int64(1000 + existing)
}

// Shutdown stops the telemetry worker, waiting for the queue to drain.
func (c *Coordinator) Shutdown() {
	c.monitor.Stop()
	if !c.monitor.AwaitStopped(10 * time.Second) {
		log.Println("[Coordinator] Telemetry worker did not stop in time")
	}
}

// Monitor exposes the telemetry worker (for queue introspection).
func (c *Coordinator) Monitor() *telemetry.Monitor {
	return c.monitor
}

// ===== RESERVATION =====

// Reserve moves an AVAILABLE vehicle to RESERVED and opens a rental.
func (c *Coordinator) Reserve(userID, vehicleID string) (*fleet.Rental, error) {
	if _, ok := c.users.Find(userID); !ok {
		return nil, &NotFoundError{Kind: "user", ID: userID}
	}
	v, ok := c.vehicles.Find(vehicleID)
	if !ok {
		return nil, &NotFoundError{Kind: "vehicle", ID: vehicleID}
	}

	lock := c.lockFor(vehicleID)
	lock.Lock()
	defer lock.Unlock()

	if state := v.State(); state != fleet.StateAvailable {
		metrics.Operations.WithLabelValues("reserve", "rejected").Inc()
		return nil, &NotAvailableError{VehicleID: vehicleID, State: state}
	}

	c.takeSnapshot(v)
	if !v.TransitionTo(fleet.StateReserved) {
		c.clearSnapshot(vehicleID)
		return nil, c.rolledBack("reserve", &InvalidTransitionError{
			VehicleID: vehicleID, From: v.State(), To: fleet.StateReserved,
		})
	}

	rental := fleet.NewRental(c.nextRentalID(), userID, vehicleID, time.Now().UTC())

	if err := c.rentals.Save(rental); err != nil {
		return nil, c.rollbackOp(v, "reserve", err)
	}
	if err := c.vehicles.Save(v); err != nil {
		return nil, c.rollbackOp(v, "reserve", err)
	}
	if _, err := c.auditLog.Record("VEHICLE_RESERVED",
		fmt.Sprintf("vehicle=%s user=%s rental=%s", vehicleID, userID, rental.ID)); err != nil {
		return nil, c.rollbackOp(v, "reserve", err)
	}
	c.clearSnapshot(vehicleID)

	metrics.Operations.WithLabelValues("reserve", "ok").Inc()
	log.Printf("[Coordinator] Vehicle %s reserved by user %s (rental %s)", vehicleID, userID, rental.ID)

	c.publish(events.TypeVehicleReserved, vehicleID, map[string]interface{}{
		"rental_id": rental.ID,
		"user_id":   userID,
	})
	return rental, nil
}

// ===== TRIP START =====

// StartRental unlocks a RESERVED vehicle after the city policy gates pass.
func (c *Coordinator) StartRental(rentalID string) error {
	rental, ok := c.rentals.Find(rentalID)
	if !ok {
		return &NotFoundError{Kind: "rental", ID: rentalID}
	}
	v, ok := c.vehicles.Find(rental.VehicleID)
	if !ok {
		return &NotFoundError{Kind: "vehicle", ID: rental.VehicleID}
	}

	lock := c.lockFor(v.ID)
	lock.Lock()
	defer lock.Unlock()

	if state := v.State(); state != fleet.StateReserved {
		metrics.Operations.WithLabelValues("start", "rejected").Inc()
		return &NotAvailableError{VehicleID: v.ID, State: state}
	}

	cityPolicy := policy.ForCity(v.City)
	sample := currentTelemetry(v)
	if err := cityPolicy.BeforeUnlock(v, sample, rental); err != nil {
		metrics.Operations.WithLabelValues("start", "policy_violation").Inc()
		log.Printf("[Coordinator] Unlock blocked: %v", err)
		return err
	}
	if err := cityPolicy.ValidateTransition(v, fleet.StateInUse); err != nil {
		metrics.Operations.WithLabelValues("start", "policy_violation").Inc()
		return err
	}

	c.takeSnapshot(v)
	if !v.TransitionTo(fleet.StateInUse) {
		c.clearSnapshot(v.ID)
		return c.rolledBack("start rental", &InvalidTransitionError{
			VehicleID: v.ID, From: v.State(), To: fleet.StateInUse,
		})
	}

	if err := c.vehicles.Save(v); err != nil {
		return c.rollbackOp(v, "start rental", err)
	}
	if _, err := c.auditLog.Record("RENTAL_STARTED",
		fmt.Sprintf("vehicle=%s rental=%s city=%s", v.ID, rental.ID, v.City)); err != nil {
		return c.rollbackOp(v, "start rental", err)
	}
	c.clearSnapshot(v.ID)

	metrics.Operations.WithLabelValues("start", "ok").Inc()
	log.Printf("[Coordinator] Rental %s started: vehicle %s in use", rental.ID, v.ID)

	c.publish(events.TypeRentalStarted, v.ID, map[string]interface{}{
		"rental_id": rental.ID,
		"user_id":   rental.UserID,
		"city":      v.City,
	})
	return nil
}

// ===== TRIP END =====

// EndRental closes an active rental, settles payment with the city surcharge
// and returns the vehicle to AVAILABLE.
func (c *Coordinator) EndRental(rentalID string) (*fleet.Payment, error) {
	rental, ok := c.rentals.Find(rentalID)
	if !ok {
		return nil, &NotFoundError{Kind: "rental", ID: rentalID}
	}
	v, ok := c.vehicles.Find(rental.VehicleID)
	if !ok {
		return nil, &NotFoundError{Kind: "vehicle", ID: rental.VehicleID}
	}

	lock := c.lockFor(v.ID)
	lock.Lock()
	defer lock.Unlock()

	if !rental.Active() {
		metrics.Operations.WithLabelValues("end", "rejected").Inc()
		return nil, &AlreadyEndedError{RentalID: rentalID}
	}
	if state := v.State(); state != fleet.StateInUse {
		metrics.Operations.WithLabelValues("end", "rejected").Inc()
		return nil, &NotAvailableError{VehicleID: v.ID, State: state}
	}

	c.takeSnapshot(v)
	rental.End(time.Now().UTC())

	cityPolicy := policy.ForCity(v.City)
	surcharge, err := cityPolicy.AfterTrip(rental, BaseFare)
	if err != nil {
		log.Printf("[Coordinator] Surcharge calculation failed for %s, charging base only: %v", rentalID, err)
		surcharge = 0
	}

	description := fmt.Sprintf("Rental %s in %s", rental.ID, v.City)
	if surcharge > 0 {
		description += fmt.Sprintf(" + %s surcharge", v.City)
	}
	payment := fleet.NewPayment(c.nextPaymentID(), rental.ID, BaseFare, surcharge, description)

	if !v.TransitionTo(fleet.StateAvailable) {
		rental.Reopen()
		c.clearSnapshot(v.ID)
		return nil, c.rolledBack("end rental", &InvalidTransitionError{
			VehicleID: v.ID, From: v.State(), To: fleet.StateAvailable,
		})
	}

	if err := c.rentals.Save(rental); err != nil {
		return nil, c.rollbackEnd(v, rental, payment, err)
	}
	if err := c.payments.Save(payment); err != nil {
		return nil, c.rollbackEnd(v, rental, payment, err)
	}
	if err := c.vehicles.Save(v); err != nil {
		return nil, c.rollbackEnd(v, rental, payment, err)
	}
	if _, err := c.auditLog.Record("RENTAL_ENDED",
		fmt.Sprintf("vehicle=%s rental=%s payment=%s", v.ID, rental.ID, payment.ID)); err != nil {
		return nil, c.rollbackEnd(v, rental, payment, err)
	}
	if _, err := c.auditLog.Record("PAYMENT_PROCESSED",
		fmt.Sprintf("payment=%s rental=%s total=%.2f", payment.ID, rental.ID, payment.Total)); err != nil {
		return nil, c.rollbackEnd(v, rental, payment, err)
	}
	c.clearSnapshot(v.ID)

	metrics.Operations.WithLabelValues("end", "ok").Inc()
	log.Printf("[Coordinator] Rental %s ended: %s, total %.2f", rental.ID, v.ID, payment.Total)

	c.publish(events.TypeRentalEnded, v.ID, map[string]interface{}{
		"rental_id": rental.ID,
		"user_id":   rental.UserID,
	})
	c.publish(events.TypePaymentMade, v.ID, map[string]interface{}{
		"payment_id": payment.ID,
		"rental_id":  rental.ID,
		"total":      payment.Total,
	})
	return payment, nil
}

// ===== GEOFENCE CHECK =====

// CheckGPS reports whether the vehicle may be at the given position. A policy
// violation triggers an immediate emergency lock and returns false.
func (c *Coordinator) CheckGPS(vehicleID string, gps geo.Coordinate) bool {
	v, ok := c.vehicles.Find(vehicleID)
	if !ok {
		return false
	}

	lock := c.lockFor(vehicleID)
	lock.Lock()
	defer lock.Unlock()

	if err := policy.ForCity(v.City).IsAllowed(v, gps); err != nil {
		log.Printf("[Coordinator] GPS violation: %v", err)
		c.emergencyLockLocked(v, err.Error())
		return false
	}
	return true
}

// ===== TELEMETRY =====

// SubmitTelemetry enqueues a sample for the background worker. Blocks when
// the queue is at capacity.
func (c *Coordinator) SubmitTelemetry(vehicleID string, sample fleet.TelemetrySample) error {
	v, ok := c.vehicles.Find(vehicleID)
	if !ok {
		return &NotFoundError{Kind: "vehicle", ID: vehicleID}
	}
	c.monitor.Submit(v, sample)
	return nil
}

// ===== QUERIES =====

// ValidateTransition reports whether the requested state change would pass
// both the global table and the vehicle's city policy.
func (c *Coordinator) ValidateTransition(vehicleID string, to fleet.State) (bool, error) {
	v, ok := c.vehicles.Find(vehicleID)
	if !ok {
		return false, &NotFoundError{Kind: "vehicle", ID: vehicleID}
	}
	if !fleet.IsValidTransition(v.State(), to) {
		return false, nil
	}
	if err := policy.ForCity(v.City).ValidateTransition(v, to); err != nil {
		return false, nil
	}
	return true, nil
}

// VerifyAuditChain re-walks the audit log checksum chain.
func (c *Coordinator) VerifyAuditChain() bool {
	return c.auditLog.VerifyChain()
}

// AuditEntries returns a copy of the committed audit trail.
func (c *Coordinator) AuditEntries() []audit.Entry {
	return c.auditLog.Entries()
}

// Vehicles exposes the vehicle table for read-side queries.
func (c *Coordinator) Vehicles() *storage.VehicleStore { return c.vehicles }

// Rentals exposes the rental table for read-side queries.
func (c *Coordinator) Rentals() *storage.RentalStore { return c.rentals }

// Payments exposes the payment table for read-side queries.
func (c *Coordinator) Payments() *storage.PaymentStore { return c.payments }

// ===== SNAPSHOT / ROLLBACK =====

func (c *Coordinator) takeSnapshot(v *fleet.Vehicle) {
	c.snapshots.Store(v.ID, v.State())
}

func (c *Coordinator) clearSnapshot(vehicleID string) {
	c.snapshots.Delete(vehicleID)
}

// rollbackOp restores the vehicle to its pre-operation snapshot and wraps the
// cause. Rollback itself never writes audit entries.
func (c *Coordinator) rollbackOp(v *fleet.Vehicle, op string, cause error) error {
	if snap, ok := c.snapshots.LoadAndDelete(v.ID); ok {
		v.ForceState(snap.(fleet.State))
		log.Printf("[Coordinator] ROLLBACK: vehicle %s restored to %s after failed %s", v.ID, snap.(fleet.State), op)
	}
	return c.rolledBack(op, cause)
}

// rollbackEnd additionally reopens the rental and removes the payment so the
// trip can be ended again without minting a duplicate payment.
func (c *Coordinator) rollbackEnd(v *fleet.Vehicle, rental *fleet.Rental, payment *fleet.Payment, cause error) error {
	rental.Reopen()
	if err := c.payments.Delete(payment.ID); err != nil {
		log.Printf("[Coordinator] ROLLBACK: failed to remove payment %s: %v", payment.ID, err)
	}
	return c.rollbackOp(v, "end rental", cause)
}

func (c *Coordinator) rolledBack(op string, cause error) error {
	metrics.Rollbacks.Inc()
	return &RolledBackError{Op: op, Cause: cause}
}

// rollbackAllSnapshots restores every vehicle with an in-flight snapshot.
// Used when an audit write fails outside a request path. Each vehicle's
// operation mutex is taken before touching its snapshot entry; the snapshot
// is re-read under the lock because the owning operation may have committed
// or rolled back while we waited.
func (c *Coordinator) rollbackAllSnapshots() {
	c.snapshots.Range(func(key, _ interface{}) bool {
		id := key.(string)
		lock := c.lockFor(id)
		lock.Lock()
		if value, ok := c.snapshots.LoadAndDelete(id); ok {
			snap := value.(fleet.State)
			if v, found := c.vehicles.Find(id); found && v.State() != snap {
				v.ForceState(snap)
				log.Printf("[Coordinator] ROLLBACK: vehicle %s restored to %s", id, snap)
			}
		}
		lock.Unlock()
		return true
	})
}

// ===== HELPERS =====

func (c *Coordinator) lockFor(vehicleID string) *sync.Mutex {
	actual, _ := c.vehicleLocks.LoadOrStore(vehicleID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

func (c *Coordinator) nextRentalID() string {
	return fmt.Sprintf("R%d", c.rentalSeq.Add(1))
}

func (c *Coordinator) nextPaymentID() string {
	return fmt.Sprintf("P%d", c.paymentSeq.Add(1))
}

// currentTelemetry builds a sample from the vehicle's last known readings,
// for policy gates that run without a fresh sample in hand.
func currentTelemetry(v *fleet.Vehicle) fleet.TelemetrySample {
	return fleet.TelemetrySample{
		Timestamp:      time.Now().UTC(),
		GPS:            v.Location(),
		BatteryPercent: v.BatteryPercent(),
		TemperatureC:   v.TemperatureC(),
		HelmetPresent:  v.HelmetDetected(),
	}
}

func (c *Coordinator) publish(eventType events.Type, vehicleID string, payload map[string]interface{}) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(context.Background(), &events.Event{
		Type:      eventType,
		VehicleID: vehicleID,
		Payload:   payload,
	}); err != nil {
		log.Printf("[Coordinator] Event publish failed: %v", err)
	}
}
