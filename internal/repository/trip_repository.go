package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fleetops/tripshare-api/internal/models"
)

const tripColumns = `id, user_id, user_email, user_name, departure_location, destination,
       departure_time, return_time, purpose, status, manager_approval_status, manager_email,
       is_urgent, auto_approved, auto_approved_reason, data_type, optimized_group_id,
       parent_trip_id, original_departure_time, assigned_vehicle_id, vehicle_type,
       vehicle_assigned_by, vehicle_assigned_at, vehicle_notes, submitted_at, updated_at`

// TripRepository persists trip records.
type TripRepository struct {
	db *sqlx.DB
}

// NewTripRepository constructs the repository.
func NewTripRepository(db *sqlx.DB) *TripRepository {
	return &TripRepository{db: db}
}

// Create inserts a new trip row.
func (r *TripRepository) Create(ctx context.Context, trip *models.Trip) error {
	if trip.ID == "" {
		trip.ID = uuid.NewString()
	}
	if trip.DataType == "" {
		trip.DataType = models.DataTypeRaw
	}
	now := time.Now().UTC()
	if trip.SubmittedAt.IsZero() {
		trip.SubmittedAt = now
	}
	trip.UpdatedAt = now
	const query = `INSERT INTO trips
	(id, user_id, user_email, user_name, departure_location, destination, departure_time,
	 return_time, purpose, status, manager_approval_status, manager_email, is_urgent,
	 auto_approved, auto_approved_reason, data_type, optimized_group_id, parent_trip_id,
	 original_departure_time, assigned_vehicle_id, vehicle_type, vehicle_assigned_by,
	 vehicle_assigned_at, vehicle_notes, submitted_at, updated_at)
	VALUES (:id, :user_id, :user_email, :user_name, :departure_location, :destination,
	 :departure_time, :return_time, :purpose, :status, :manager_approval_status,
	 :manager_email, :is_urgent, :auto_approved, :auto_approved_reason, :data_type,
	 :optimized_group_id, :parent_trip_id, :original_departure_time, :assigned_vehicle_id,
	 :vehicle_type, :vehicle_assigned_by, :vehicle_assigned_at, :vehicle_notes,
	 :submitted_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, trip); err != nil {
		return fmt.Errorf("create trip: %w", err)
	}
	return nil
}

// GetByID fetches a trip by identifier.
func (r *TripRepository) GetByID(ctx context.Context, id string) (*models.Trip, error) {
	query := fmt.Sprintf(`SELECT %s FROM trips WHERE id = $1`, tripColumns)
	var trip models.Trip
	if err := r.db.GetContext(ctx, &trip, query, id); err != nil {
		return nil, err
	}
	return &trip, nil
}

// List returns trips matching the filter (newest first).
func (r *TripRepository) List(ctx context.Context, filter models.TripFilter) ([]models.Trip, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM trips", tripColumns))

	conditions := make([]string, 0, 4)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.DataType != "" {
		args = append(args, filter.DataType)
		conditions = append(conditions, fmt.Sprintf("data_type = $%d", len(args)))
	}
	if filter.GroupID != "" {
		args = append(args, filter.GroupID)
		conditions = append(conditions, fmt.Sprintf("optimized_group_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY submitted_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var trips []models.Trip
	if err := r.db.SelectContext(ctx, &trips, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	return trips, nil
}

// TransitionParams groups the fields mutated by a guarded status change.
type TransitionParams struct {
	ID              string
	From            []models.TripStatus
	To              models.TripStatus
	ManagerApproval *models.ManagerApprovalStatus
}

// Transition applies a status change guarded by the expected current
// statuses. Returns sql.ErrNoRows when the trip was not in any of the
// expected states, so concurrent actors observe exactly one winner.
func (r *TripRepository) Transition(ctx context.Context, params TransitionParams) error {
	if len(params.From) == 0 {
		return fmt.Errorf("transition: empty from-set")
	}
	args := []interface{}{params.To, time.Now().UTC()}
	set := "status = $1, updated_at = $2"
	if params.ManagerApproval != nil {
		args = append(args, *params.ManagerApproval)
		set += fmt.Sprintf(", manager_approval_status = $%d", len(args))
	}
	args = append(args, params.ID)
	idPos := len(args)
	placeholders := make([]string, len(params.From))
	for i, status := range params.From {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf("UPDATE trips SET %s WHERE id = $%d AND status IN (%s)",
		set, idPos, strings.Join(placeholders, ","))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition trip: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListPendingOlderThan returns trips still awaiting a manager decision
// submitted before the cutoff (the exception queue).
func (r *TripRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]models.Trip, error) {
	query := fmt.Sprintf(`SELECT %s FROM trips
	WHERE status IN ($1, $2) AND manager_approval_status = $3 AND submitted_at < $4
	ORDER BY submitted_at ASC`, tripColumns)
	var trips []models.Trip
	err := r.db.SelectContext(ctx, &trips, query,
		models.StatusPendingApproval, models.StatusPendingUrgent,
		models.ManagerApprovalPending, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list pending trips: %w", err)
	}
	return trips, nil
}

// CountPending returns the number of trips awaiting a manager decision,
// excluding rows already past the expiry cutoff that the sweep has not
// flipped yet.
func (r *TripRepository) CountPending(ctx context.Context, expiryCutoff time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM trips
	WHERE status IN ($1, $2) AND manager_approval_status = $3 AND submitted_at >= $4`
	var count int
	err := r.db.GetContext(ctx, &count, query,
		models.StatusPendingApproval, models.StatusPendingUrgent,
		models.ManagerApprovalPending, expiryCutoff)
	if err != nil {
		return 0, fmt.Errorf("count pending trips: %w", err)
	}
	return count, nil
}

// ExpiredTrip pairs a flipped trip with the pending status it held, so
// the audit trail can record the transition it underwent.
type ExpiredTrip struct {
	ID         string            `db:"id"`
	FromStatus models.TripStatus `db:"status"`
}

// ExpireOverdue flips pending trips submitted before the cutoff to
// expired. The self-join captures each row's status before the flip.
func (r *TripRepository) ExpireOverdue(ctx context.Context, cutoff time.Time) ([]ExpiredTrip, error) {
	const query = `UPDATE trips SET status = $1, updated_at = $2
	FROM (SELECT id, status FROM trips
	      WHERE status IN ($3, $4) AND manager_approval_status = $5 AND submitted_at < $6
	      FOR UPDATE) prev
	WHERE trips.id = prev.id
	RETURNING trips.id, prev.status`
	var expired []ExpiredTrip
	err := r.db.SelectContext(ctx, &expired, query,
		models.StatusExpired, time.Now().UTC(),
		models.StatusPendingApproval, models.StatusPendingUrgent,
		models.ManagerApprovalPending, cutoff)
	if err != nil {
		return nil, fmt.Errorf("expire overdue trips: %w", err)
	}
	return expired, nil
}

// ListCandidates returns raw trips eligible for the batching sweep:
// approved or auto-approved, not yet linked to a group.
func (r *TripRepository) ListCandidates(ctx context.Context) ([]models.Trip, error) {
	query := fmt.Sprintf(`SELECT %s FROM trips
	WHERE status IN ($1, $2) AND data_type = $3 AND optimized_group_id IS NULL
	ORDER BY departure_time ASC`, tripColumns)
	var trips []models.Trip
	err := r.db.SelectContext(ctx, &trips, query,
		models.StatusApproved, models.StatusAutoApproved, models.DataTypeRaw)
	if err != nil {
		return nil, fmt.Errorf("list batching candidates: %w", err)
	}
	return trips, nil
}

// AssignVehicleParams groups vehicle-assignment fields.
type AssignVehicleParams struct {
	TripID      string
	VehicleID   string
	VehicleType string
	AssignedBy  string
	Notes       *string
}

// AssignVehicle records a manual vehicle assignment on an approved or
// optimized trip.
func (r *TripRepository) AssignVehicle(ctx context.Context, params AssignVehicleParams) error {
	const query = `UPDATE trips SET assigned_vehicle_id = $1, vehicle_type = $2,
	vehicle_assigned_by = $3, vehicle_assigned_at = $4, vehicle_notes = $5, updated_at = $4
	WHERE id = $6 AND status IN ($7, $8, $9, $10)`
	result, err := r.db.ExecContext(ctx, query,
		params.VehicleID, params.VehicleType, params.AssignedBy, time.Now().UTC(), params.Notes,
		params.TripID,
		models.StatusApproved, models.StatusAutoApproved, models.StatusApprovedSolo, models.StatusOptimized)
	if err != nil {
		return fmt.Errorf("assign vehicle: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check vehicle assignment rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
