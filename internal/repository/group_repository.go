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

const groupColumns = `id, status, departure_date, departure_location, destination,
       proposed_time, vehicle_tier, member_count, estimated_savings, savings_pct,
       created_by, resolved_by, created_at, resolved_at`

// GroupRepository persists proposal groups and their temp preview trips.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs the repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// CreateWithMembers atomically inserts a proposed group, links its
// member trips, and creates one temp preview trip per member. Each
// member is first held in pending_optimization (re-checking it is
// still an unlinked batching candidate) and then landed on proposed
// with the group id; any member lost to a concurrent sweep rolls the
// whole group back with sql.ErrNoRows.
func (r *GroupRepository) CreateWithMembers(ctx context.Context, group *models.ProposalGroup, tempTrips []models.Trip) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	if group.Status == "" {
		group.Status = models.GroupStatusProposed
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}
	group.MemberCount = len(group.MemberTripIDs)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin group tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertGroup = `INSERT INTO proposal_groups
	(id, status, departure_date, departure_location, destination, proposed_time,
	 vehicle_tier, member_count, estimated_savings, savings_pct, created_by, created_at)
	VALUES (:id, :status, :departure_date, :departure_location, :destination, :proposed_time,
	 :vehicle_tier, :member_count, :estimated_savings, :savings_pct, :created_by, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertGroup, group); err != nil {
		return fmt.Errorf("insert proposal group: %w", err)
	}

	const insertMember = `INSERT INTO proposal_group_members (group_id, trip_id, position)
	VALUES ($1, $2, $3)`
	const holdMember = `UPDATE trips SET status = $1, updated_at = $2
	WHERE id = $3 AND status IN ($4, $5) AND optimized_group_id IS NULL AND data_type = $6`
	const linkMember = `UPDATE trips SET status = $1, optimized_group_id = $2, updated_at = $3
	WHERE id = $4 AND status = $5`
	now := time.Now().UTC()
	for i, tripID := range group.MemberTripIDs {
		if _, err := tx.ExecContext(ctx, insertMember, group.ID, tripID, i); err != nil {
			return fmt.Errorf("insert group member: %w", err)
		}
		result, err := tx.ExecContext(ctx, holdMember,
			models.StatusPendingOptimization, now, tripID,
			models.StatusApproved, models.StatusAutoApproved, models.DataTypeRaw)
		if err != nil {
			return fmt.Errorf("hold group member: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("check member hold rows: %w", err)
		}
		if rows == 0 {
			return sql.ErrNoRows
		}
		result, err = tx.ExecContext(ctx, linkMember,
			models.StatusProposed, group.ID, now, tripID, models.StatusPendingOptimization)
		if err != nil {
			return fmt.Errorf("link group member: %w", err)
		}
		rows, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("check member link rows: %w", err)
		}
		if rows == 0 {
			return sql.ErrNoRows
		}
	}

	const insertTemp = `INSERT INTO trips
	(id, user_id, user_email, user_name, departure_location, destination, departure_time,
	 return_time, purpose, status, manager_approval_status, manager_email, is_urgent,
	 auto_approved, auto_approved_reason, data_type, optimized_group_id, parent_trip_id,
	 original_departure_time, submitted_at, updated_at)
	VALUES (:id, :user_id, :user_email, :user_name, :departure_location, :destination,
	 :departure_time, :return_time, :purpose, :status, :manager_approval_status,
	 :manager_email, :is_urgent, :auto_approved, :auto_approved_reason, :data_type,
	 :optimized_group_id, :parent_trip_id, :original_departure_time, :submitted_at, :updated_at)`
	for i := range tempTrips {
		temp := &tempTrips[i]
		if temp.ID == "" {
			temp.ID = uuid.NewString()
		}
		// Resolve deletes temps by group id; an unlinked temp would
		// survive the group forever.
		temp.OptimizedGroupID = &group.ID
		temp.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, insertTemp, temp); err != nil {
			return fmt.Errorf("insert temp trip: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit group tx: %w", err)
	}
	return nil
}

// GetByID fetches a group with its member trip ids.
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*models.ProposalGroup, error) {
	query := fmt.Sprintf(`SELECT %s FROM proposal_groups WHERE id = $1`, groupColumns)
	var group models.ProposalGroup
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	const memberQuery = `SELECT trip_id FROM proposal_group_members WHERE group_id = $1 ORDER BY position`
	if err := r.db.SelectContext(ctx, &group.MemberTripIDs, memberQuery, id); err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	return &group, nil
}

// List returns groups matching the filter (newest first).
func (r *GroupRepository) List(ctx context.Context, filter models.GroupFilter) ([]models.ProposalGroup, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM proposal_groups", groupColumns))
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		builder.WriteString(fmt.Sprintf(" WHERE status IN (%s)", strings.Join(placeholders, ",")))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var groups []models.ProposalGroup
	if err := r.db.SelectContext(ctx, &groups, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list proposal groups: %w", err)
	}
	return groups, nil
}

// Resolve finalises an admin decision on a proposed group in one
// transaction: flips the group status, rewrites member trips, and
// deletes the group's temp previews. Returns sql.ErrNoRows when the
// group was already resolved, so exactly one concurrent resolution
// wins.
func (r *GroupRepository) Resolve(ctx context.Context, id string, approve bool, resolvedBy string) (*models.ProposalGroup, []models.Trip, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin resolve tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	newStatus := models.GroupStatusRejected
	if approve {
		newStatus = models.GroupStatusApproved
	}
	now := time.Now().UTC()

	const flipGroup = `UPDATE proposal_groups SET status = $1, resolved_by = $2, resolved_at = $3
	WHERE id = $4 AND status = $5`
	result, err := tx.ExecContext(ctx, flipGroup, newStatus, resolvedBy, now, id, models.GroupStatusProposed)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve group: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, nil, fmt.Errorf("check resolve rows: %w", err)
	}
	if rows == 0 {
		return nil, nil, sql.ErrNoRows
	}

	query := fmt.Sprintf(`SELECT %s FROM proposal_groups WHERE id = $1`, groupColumns)
	var group models.ProposalGroup
	if err := tx.GetContext(ctx, &group, query, id); err != nil {
		return nil, nil, fmt.Errorf("load resolved group: %w", err)
	}

	// Temp previews are purpose-fulfilled either way.
	const deleteTemps = `DELETE FROM trips WHERE optimized_group_id = $1 AND data_type = $2`
	if _, err := tx.ExecContext(ctx, deleteTemps, id, models.DataTypeTemp); err != nil {
		return nil, nil, fmt.Errorf("delete temp trips: %w", err)
	}

	if approve {
		const finalize = `UPDATE trips SET status = $1,
		original_departure_time = departure_time, departure_time = $2, updated_at = $3
		WHERE optimized_group_id = $4 AND data_type = $5 AND status = $6`
		if _, err := tx.ExecContext(ctx, finalize,
			models.StatusOptimized, group.ProposedTime, now, id, models.DataTypeRaw, models.StatusProposed); err != nil {
			return nil, nil, fmt.Errorf("finalize member trips: %w", err)
		}
	} else {
		const revert = `UPDATE trips SET
		status = CASE WHEN auto_approved THEN $1::text ELSE $2::text END,
		optimized_group_id = NULL, updated_at = $3
		WHERE optimized_group_id = $4 AND data_type = $5 AND status = $6`
		if _, err := tx.ExecContext(ctx, revert,
			models.StatusAutoApproved, models.StatusApproved, now, id, models.DataTypeRaw, models.StatusProposed); err != nil {
			return nil, nil, fmt.Errorf("revert member trips: %w", err)
		}
	}

	const memberQuery = `SELECT trip_id FROM proposal_group_members WHERE group_id = $1 ORDER BY position`
	if err := tx.SelectContext(ctx, &group.MemberTripIDs, memberQuery, id); err != nil {
		return nil, nil, fmt.Errorf("list group members: %w", err)
	}

	var members []models.Trip
	if len(group.MemberTripIDs) > 0 {
		memberTrips, args, err := sqlx.In(
			fmt.Sprintf("SELECT %s FROM trips WHERE id IN (?)", tripColumns), group.MemberTripIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("build member trip query: %w", err)
		}
		memberTrips = tx.Rebind(memberTrips)
		if err := tx.SelectContext(ctx, &members, memberTrips, args...); err != nil {
			return nil, nil, fmt.Errorf("load member trips: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit resolve tx: %w", err)
	}
	return &group, members, nil
}
