package models

import (
	"fmt"
)

// validTransitions maps from-state to allowed to-states
var validTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusPending: {
		JobStatusRunning: true, // Pending → Running (worker slot dequeues job)
	},
	JobStatusRunning: {
		JobStatusCompleted: true, // Running → Completed (executor returned results)
		JobStatusFailed:    true, // Running → Failed (executor error or timeout)
	},
	// Terminal states (no transitions allowed)
	JobStatusCompleted: {},
	JobStatusFailed:    {},
}

// statusRank orders statuses for monotonicity checks. Both terminal states
// share the highest rank; a status observed via Get never moves to a lower
// rank across successive reads.
var statusRank = map[JobStatus]int{
	JobStatusPending:   0,
	JobStatusRunning:   1,
	JobStatusCompleted: 2,
	JobStatusFailed:    2,
}

// ValidateTransition checks if a state transition is valid
func ValidateTransition(from, to JobStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminalState returns true if the state is terminal (no further transitions)
func IsTerminalState(state JobStatus) bool {
	return state == JobStatusCompleted || state == JobStatusFailed
}

// StatusRank returns the monotonic rank of a status, or -1 if unknown
func StatusRank(state JobStatus) int {
	rank, ok := statusRank[state]
	if !ok {
		return -1
	}
	return rank
}
