package fleet

import "fmt"

// ============================================================================
// VEHICLE STATE MACHINE
// ============================================================================

// State represents the lifecycle state of a vehicle.
type State int

const (
	StateAvailable State = iota
	StateReserved
	StateInUse
	StateMaintenance
	StateEmergencyLock
	StateRelocating
)

// String returns the persisted name of the state.
func (s State) String() string {
	switch s {
	case StateAvailable:
		return "AVAILABLE"
	case StateReserved:
		return "RESERVED"
	case StateInUse:
		return "IN_USE"
	case StateMaintenance:
		return "MAINTENANCE"
	case StateEmergencyLock:
		return "EMERGENCY_LOCK"
	case StateRelocating:
		return "RELOCATING"
	default:
		return "UNKNOWN"
	}
}

// ParseState maps a persisted state name back to its State value.
func ParseState(s string) (State, error) {
	switch s {
	case "AVAILABLE":
		return StateAvailable, nil
	case "RESERVED":
		return StateReserved, nil
	case "IN_USE":
		return StateInUse, nil
	case "MAINTENANCE":
		return StateMaintenance, nil
	case "EMERGENCY_LOCK":
		return StateEmergencyLock, nil
	case "RELOCATING":
		return StateRelocating, nil
	default:
		return 0, fmt.Errorf("unknown vehicle state %q", s)
	}
}

// validTransitions is the authoritative transition table. Every state
// mutation outside of rollback goes through it.
var validTransitions = map[State][]State{
	StateAvailable:     {StateReserved, StateMaintenance, StateEmergencyLock, StateRelocating},
	StateReserved:      {StateInUse, StateAvailable, StateEmergencyLock},
	StateInUse:         {StateAvailable, StateMaintenance, StateEmergencyLock},
	StateMaintenance:   {StateAvailable, StateEmergencyLock},
	StateEmergencyLock: {StateMaintenance, StateAvailable},
	StateRelocating:    {StateAvailable, StateMaintenance},
}

// IsValidTransition checks the transition table.
func IsValidTransition(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
