package models

import "time"

// GroupStatus captures the lifecycle of a shared-vehicle proposal.
type GroupStatus string

const (
	GroupStatusProposed GroupStatus = "proposed"
	GroupStatusApproved GroupStatus = "approved"
	GroupStatusRejected GroupStatus = "rejected"
)

// ProposalGroup is a candidate shared-vehicle arrangement over two or
// more compatible raw trips.
type ProposalGroup struct {
	ID                string      `db:"id" json:"id"`
	Status            GroupStatus `db:"status" json:"status"`
	DepartureDate     string      `db:"departure_date" json:"departureDate"`
	DepartureLocation string      `db:"departure_location" json:"departureLocation"`
	Destination       string      `db:"destination" json:"destination"`
	ProposedTime      time.Time   `db:"proposed_time" json:"proposedTime"`
	VehicleTier       VehicleTier `db:"vehicle_tier" json:"vehicleTier"`
	MemberCount       int         `db:"member_count" json:"memberCount"`
	EstimatedSavings  float64     `db:"estimated_savings" json:"estimatedSavings"`
	SavingsPct        float64     `db:"savings_pct" json:"savingsPct"`
	CreatedBy         string      `db:"created_by" json:"createdBy"`
	ResolvedBy        *string     `db:"resolved_by" json:"resolvedBy,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"createdAt"`
	ResolvedAt        *time.Time  `db:"resolved_at" json:"resolvedAt,omitempty"`

	// MemberTripIDs is populated from the membership table on reads.
	MemberTripIDs []string `db:"-" json:"memberTripIds,omitempty"`
}

// GroupFilter constrains proposal-group listings.
type GroupFilter struct {
	Status []GroupStatus
	Limit  int
	Offset int
}
