package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// DirectoryRepository reads the synced employee directory. The rows
// are owned by the HR sync job; this API only reads them.
type DirectoryRepository struct {
	db *sqlx.DB
}

// NewDirectoryRepository constructs the repository.
func NewDirectoryRepository(db *sqlx.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// ManagerEmail returns the confirmed manager for a user, or the empty
// string when none is on file.
func (r *DirectoryRepository) ManagerEmail(ctx context.Context, userID string) (string, error) {
	var email sql.NullString
	err := r.db.GetContext(ctx, &email,
		`SELECT manager_email FROM employee_directory WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !email.Valid {
		return "", nil
	}
	return email.String, nil
}
