package models

import "time"

// Audit action kinds recorded against trips.
const (
	AuditActionSubmit        = "SUBMIT"
	AuditActionApprove       = "APPROVE"
	AuditActionReject        = "REJECT"
	AuditActionExpire        = "EXPIRE"
	AuditActionCancel        = "CANCEL"
	AuditActionAdminOverride = "ADMIN_OVERRIDE"
	AuditActionPropose       = "PROPOSE"
	AuditActionMarkSolo      = "MARK_SOLO"
	AuditActionOptimize      = "OPTIMIZE"
	AuditActionGroupReject   = "GROUP_REJECT"
	AuditActionAssignVehicle = "ASSIGN_VEHICLE"
)

// AuditEntry is an append-only record of a state-changing action.
type AuditEntry struct {
	ID         string      `db:"id" json:"id"`
	TripID     string      `db:"trip_id" json:"tripId"`
	Action     string      `db:"action" json:"action"`
	ActorEmail string      `db:"actor_email" json:"actorEmail"`
	ActorName  string      `db:"actor_name" json:"actorName"`
	ActorRole  string      `db:"actor_role" json:"actorRole"`
	OldStatus  *TripStatus `db:"old_status" json:"oldStatus,omitempty"`
	NewStatus  *TripStatus `db:"new_status" json:"newStatus,omitempty"`
	Note       *string     `db:"note" json:"note,omitempty"`
	IPAddress  string      `db:"ip_address" json:"ipAddress"`
	UserAgent  string      `db:"user_agent" json:"userAgent"`
	CreatedAt  time.Time   `db:"created_at" json:"createdAt"`
}

// Actor identifies who performed an action. Passed explicitly into
// every state-changing operation; no ambient session lookup.
type Actor struct {
	Email string
	Name  string
	Role  string
}
