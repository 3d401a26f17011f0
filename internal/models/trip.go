package models

import "time"

// ManagerApprovalStatus tracks the manager decision sub-state while a
// trip sits in the pending family.
type ManagerApprovalStatus string

const (
	ManagerApprovalPending  ManagerApprovalStatus = "pending"
	ManagerApprovalApproved ManagerApprovalStatus = "approved"
	ManagerApprovalRejected ManagerApprovalStatus = "rejected"
)

// TripDataType distinguishes authoritative records from proposal previews.
type TripDataType string

const (
	DataTypeRaw  TripDataType = "raw"
	DataTypeTemp TripDataType = "temp"
)

// Trip is a single business-travel request.
type Trip struct {
	ID        string `db:"id" json:"id"`
	UserID    string `db:"user_id" json:"userId"`
	UserEmail string `db:"user_email" json:"userEmail"`
	UserName  string `db:"user_name" json:"userName"`

	DepartureLocation string    `db:"departure_location" json:"departureLocation"`
	Destination       string    `db:"destination" json:"destination"`
	DepartureTime     time.Time `db:"departure_time" json:"departureTime"`
	ReturnTime        time.Time `db:"return_time" json:"returnTime"`
	Purpose           string    `db:"purpose" json:"purpose"`

	Status                TripStatus            `db:"status" json:"status"`
	ManagerApprovalStatus ManagerApprovalStatus `db:"manager_approval_status" json:"managerApprovalStatus"`
	ManagerEmail          *string               `db:"manager_email" json:"managerEmail,omitempty"`
	IsUrgent              bool                  `db:"is_urgent" json:"isUrgent"`
	AutoApproved          bool                  `db:"auto_approved" json:"autoApproved"`
	AutoApprovedReason    *string               `db:"auto_approved_reason" json:"autoApprovedReason,omitempty"`
	DataType              TripDataType          `db:"data_type" json:"dataType"`

	OptimizedGroupID      *string    `db:"optimized_group_id" json:"optimizedGroupId,omitempty"`
	ParentTripID          *string    `db:"parent_trip_id" json:"parentTripId,omitempty"`
	OriginalDepartureTime *time.Time `db:"original_departure_time" json:"originalDepartureTime,omitempty"`

	AssignedVehicleID *string    `db:"assigned_vehicle_id" json:"assignedVehicleId,omitempty"`
	VehicleType       *string    `db:"vehicle_type" json:"vehicleType,omitempty"`
	VehicleAssignedBy *string    `db:"vehicle_assigned_by" json:"vehicleAssignedBy,omitempty"`
	VehicleAssignedAt *time.Time `db:"vehicle_assigned_at" json:"vehicleAssignedAt,omitempty"`
	VehicleNotes      *string    `db:"vehicle_notes" json:"vehicleNotes,omitempty"`

	SubmittedAt time.Time `db:"submitted_at" json:"submittedAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// PreProposalStatus is the status a proposed trip reverts to when its
// group is rejected.
func (t *Trip) PreProposalStatus() TripStatus {
	if t.AutoApproved {
		return StatusAutoApproved
	}
	return StatusApproved
}

// TripFilter constrains listing queries.
type TripFilter struct {
	Status   []TripStatus
	UserID   string
	DataType TripDataType
	GroupID  string
	Limit    int
	Offset   int
}
