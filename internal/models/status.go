package models

// TripStatus is the closed set of trip lifecycle states.
type TripStatus string

const (
	StatusPendingApproval     TripStatus = "pending_approval"
	StatusPendingUrgent       TripStatus = "pending_urgent"
	StatusAutoApproved        TripStatus = "auto_approved"
	StatusApproved            TripStatus = "approved"
	StatusApprovedSolo        TripStatus = "approved_solo"
	StatusPendingOptimization TripStatus = "pending_optimization"
	StatusProposed            TripStatus = "proposed"
	StatusOptimized           TripStatus = "optimized"
	StatusRejected            TripStatus = "rejected"
	StatusCancelled           TripStatus = "cancelled"
	StatusExpired             TripStatus = "expired"
)

// transitions is the legal transition table. A status missing from the
// map, or a target missing from its set, is not reachable. Terminal
// states (rejected, cancelled, expired, optimized) have no entries;
// the batching engine's group-rejection override of optimized trips is
// applied explicitly by that path, never through CanTransition.
var transitions = map[TripStatus]map[TripStatus]struct{}{
	StatusPendingApproval: {
		StatusApproved:  {},
		StatusRejected:  {},
		StatusExpired:   {},
		StatusCancelled: {},
	},
	StatusPendingUrgent: {
		StatusApproved:  {},
		StatusRejected:  {},
		StatusExpired:   {},
		StatusCancelled: {},
	},
	StatusAutoApproved: {
		StatusPendingOptimization: {},
		StatusApprovedSolo:        {},
		StatusCancelled:           {},
	},
	StatusApproved: {
		StatusPendingOptimization: {},
		StatusApprovedSolo:        {},
		StatusCancelled:           {},
	},
	StatusApprovedSolo: {
		StatusCancelled: {},
	},
	StatusPendingOptimization: {
		StatusProposed: {},
	},
	StatusProposed: {
		StatusOptimized:    {},
		StatusApproved:     {},
		StatusAutoApproved: {},
	},
}

// CanTransition reports whether moving from current to next is legal.
// Unknown statuses fail closed.
func CanTransition(current, next TripStatus) bool {
	if !current.Valid() || !next.Valid() {
		return false
	}
	targets, ok := transitions[current]
	if !ok {
		return false
	}
	_, ok = targets[next]
	return ok
}

// Valid reports whether the status belongs to the closed set.
func (s TripStatus) Valid() bool {
	switch s {
	case StatusPendingApproval, StatusPendingUrgent, StatusAutoApproved,
		StatusApproved, StatusApprovedSolo, StatusPendingOptimization,
		StatusProposed, StatusOptimized, StatusRejected, StatusCancelled,
		StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether the status accepts no further transitions.
func (s TripStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusExpired, StatusOptimized:
		return true
	}
	return false
}

// PendingFamily reports whether the status awaits a manager decision.
func (s TripStatus) PendingFamily() bool {
	return s == StatusPendingApproval || s == StatusPendingUrgent
}

// Batchable reports whether the batching sweep may pick the trip up.
func (s TripStatus) Batchable() bool {
	return s == StatusApproved || s == StatusAutoApproved
}

// ParseTripStatus validates a raw value against the closed set.
func ParseTripStatus(raw string) (TripStatus, bool) {
	s := TripStatus(raw)
	if s.Valid() {
		return s, true
	}
	return "", false
}

// legacyStatuses maps values observed in historical data onto the
// canonical set. Used only by the one-time import path.
var legacyStatuses = map[string]TripStatus{
	"draft":     StatusPendingApproval,
	"pending":   StatusPendingApproval,
	"confirmed": StatusApproved,
}

// MigrateLegacyStatus resolves historical status strings. Canonical
// values pass through; unknown values are rejected.
func MigrateLegacyStatus(raw string) (TripStatus, bool) {
	if s, ok := ParseTripStatus(raw); ok {
		return s, true
	}
	if s, ok := legacyStatuses[raw]; ok {
		return s, true
	}
	return "", false
}
