package coordinator

import (
	"fmt"

	"github.com/smartmove/fleet/internal/fleet"
)

// NotFoundError reports an unknown user, vehicle or rental id.
type NotFoundError struct {
	Kind string // "user", "vehicle" or "rental"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// NotAvailableError reports that the vehicle's current state precludes the
// requested operation.
type NotAvailableError struct {
	VehicleID string
	State     fleet.State
}

func (e *NotAvailableError) Error() string {
	return fmt.Sprintf("vehicle %s is not available (state: %s)", e.VehicleID, e.State)
}

// AlreadyEndedError reports an end request for an inactive rental.
type AlreadyEndedError struct {
	RentalID string
}

func (e *AlreadyEndedError) Error() string {
	return fmt.Sprintf("rental %s is already ended", e.RentalID)
}

// InvalidTransitionError reports a state-machine refusal. It only surfaces to
// callers wrapped in a RolledBackError.
type InvalidTransitionError struct {
	VehicleID string
	From      fleet.State
	To        fleet.State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for vehicle %s: %s -> %s", e.VehicleID, e.From, e.To)
}

// RolledBackError reports that an operation failed mid-commit and the
// in-memory state was restored to the pre-operation snapshot.
type RolledBackError struct {
	Op    string
	Cause error
}

func (e *RolledBackError) Error() string {
	return fmt.Sprintf("%s failed and was rolled back: %v", e.Op, e.Cause)
}

func (e *RolledBackError) Unwrap() error { return e.Cause }
