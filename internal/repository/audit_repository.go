package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fleetops/tripshare-api/internal/models"
)

// AuditRepository persists the append-only audit ledger.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts a new audit entry. Entries are never updated or
// deleted after insertion.
func (r *AuditRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_entries
	(id, trip_id, action, actor_email, actor_name, actor_role, old_status, new_status,
	 note, ip_address, user_agent, created_at)
	VALUES (:id, :trip_id, :action, :actor_email, :actor_name, :actor_role, :old_status,
	 :new_status, :note, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListByTrip returns a trip's audit entries, newest first.
func (r *AuditRepository) ListByTrip(ctx context.Context, tripID string) ([]models.AuditEntry, error) {
	const query = `SELECT id, trip_id, action, actor_email, actor_name, actor_role,
	old_status, new_status, note, ip_address, user_agent, created_at
	FROM audit_entries WHERE trip_id = $1 ORDER BY created_at DESC`
	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, tripID); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}
