package coordinator

import (
	"fmt"
	"log"

	"github.com/smartmove/fleet/internal/events"
	"github.com/smartmove/fleet/internal/fleet"
	"github.com/smartmove/fleet/internal/telemetry"
)

// handleTelemetryEvent is the worker callback. It runs on the telemetry
// goroutine, so every state change here grabs the vehicle's operation mutex
// first. The critical-battery auto-end goes through EndRental, which takes
// that mutex itself.
func (c *Coordinator) handleTelemetryEvent(v *fleet.Vehicle, event telemetry.Event) {
	c.publish(events.TypeTelemetryAlert, v.ID, map[string]interface{}{
		"event":   event.String(),
		"battery": v.BatteryPercent(),
		"temp_c":  v.TemperatureC(),
	})

	if event == telemetry.EventCriticalBattery && v.State() == fleet.StateInUse {
		c.emergencyEndRental(v)
		return
	}

	lock := c.lockFor(v.ID)
	lock.Lock()
	defer lock.Unlock()

	switch event {
	case telemetry.EventCriticalTemperature:
		c.emergencyLockLocked(v, fmt.Sprintf("critical temperature %.1fC", v.TemperatureC()))

	case telemetry.EventHighTemperatureWarning:
		c.writeAudit("VEHICLE_THROTTLED",
			fmt.Sprintf("vehicle=%s temp=%.1f", v.ID, v.TemperatureC()))

	case telemetry.EventCriticalBattery:
		// Not in use (or the rental ended between classification and here):
		// pull the vehicle from circulation.
		c.sendToMaintenanceLocked(v, fmt.Sprintf("critical battery %d%%", v.BatteryPercent()))

	case telemetry.EventLowBatteryWarning:
		c.writeAudit("LOW_BATTERY_WARNING",
			fmt.Sprintf("vehicle=%s battery=%d", v.ID, v.BatteryPercent()))

	case telemetry.EventTheftAlarm:
		c.emergencyLockLocked(v, "movement detected without active rental")
	}
}

// emergencyEndRental force-closes the active rental on a critically low
// battery, then records the emergency end. If the rental cannot be found or
// ended, the vehicle is locked instead.
func (c *Coordinator) emergencyEndRental(v *fleet.Vehicle) {
	rental, ok := c.rentals.FindActiveByVehicle(v.ID)
	if !ok {
		lock := c.lockFor(v.ID)
		lock.Lock()
		defer lock.Unlock()
		c.sendToMaintenanceLocked(v, "critical battery, no active rental found")
		return
	}

	log.Printf("[Coordinator] EMERGENCY: ending rental %s, vehicle %s battery critical", rental.ID, v.ID)
	if _, err := c.EndRental(rental.ID); err != nil {
		log.Printf("[Coordinator] Emergency end failed for rental %s: %v", rental.ID, err)
		lock := c.lockFor(v.ID)
		lock.Lock()
		defer lock.Unlock()
		c.emergencyLockLocked(v, "critical battery, emergency end failed")
		return
	}
	c.writeAudit("EMERGENCY_RENTAL_END",
		fmt.Sprintf("vehicle=%s rental=%s reason=critical_battery", v.ID, rental.ID))
}

// emergencyLockLocked moves the vehicle to EMERGENCY_LOCK. Caller must hold
// the vehicle's operation mutex.
func (c *Coordinator) emergencyLockLocked(v *fleet.Vehicle, reason string) {
	if v.State() == fleet.StateEmergencyLock {
		return
	}
	if !v.TransitionTo(fleet.StateEmergencyLock) {
		log.Printf("[Coordinator] Cannot emergency-lock vehicle %s from %s", v.ID, v.State())
		return
	}
	metrics.EmergencyLocks.Inc()
	log.Printf("[Coordinator] EMERGENCY LOCK: vehicle %s (%s)", v.ID, reason)

	if err := c.vehicles.Save(v); err != nil {
		log.Printf("[Coordinator] Failed to persist emergency lock for %s: %v", v.ID, err)
	}
	c.writeAudit("EMERGENCY_LOCK", fmt.Sprintf("vehicle=%s reason=%s", v.ID, reason))

	c.publish(events.TypeEmergencyLock, v.ID, map[string]interface{}{
		"reason": reason,
	})
}

// sendToMaintenanceLocked moves the vehicle to MAINTENANCE. Caller must hold
// the vehicle's operation mutex.
func (c *Coordinator) sendToMaintenanceLocked(v *fleet.Vehicle, reason string) {
	if v.State() == fleet.StateMaintenance {
		return
	}
	if !v.TransitionTo(fleet.StateMaintenance) {
		log.Printf("[Coordinator] Cannot send vehicle %s to maintenance from %s", v.ID, v.State())
		return
	}
	log.Printf("[Coordinator] MAINTENANCE: vehicle %s (%s)", v.ID, reason)

	if err := c.vehicles.Save(v); err != nil {
		log.Printf("[Coordinator] Failed to persist maintenance state for %s: %v", v.ID, err)
	}
	c.writeAudit("VEHICLE_MAINTENANCE", fmt.Sprintf("vehicle=%s reason=%s", v.ID, reason))

	c.publish(events.TypeMaintenance, v.ID, map[string]interface{}{
		"reason": reason,
	})
}

// writeAudit records an event outside a request path. On a write failure it
// restores any vehicles with in-flight snapshots; there is no caller to
// surface the error to.
func (c *Coordinator) writeAudit(eventType, payload string) {
	if _, err := c.auditLog.Record(eventType, payload); err != nil {
		log.Printf("[Coordinator] AUDIT WRITE FAILED (%s): %v", eventType, err)
		c.rollbackAllSnapshots()
	}
}
