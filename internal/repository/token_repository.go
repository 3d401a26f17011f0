package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fleetops/tripshare-api/internal/models"
)

const tokenColumns = `id, token, subject, purpose, expires_at, consumed, consumed_at, outcome, created_at`

// TokenRepository persists confirmation tokens.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository constructs the repository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create inserts a new confirmation token.
func (r *TokenRepository) Create(ctx context.Context, token *models.ConfirmationToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO confirmation_tokens
	(id, token, subject, purpose, expires_at, consumed, consumed_at, outcome, created_at)
	VALUES (:id, :token, :subject, :purpose, :expires_at, :consumed, :consumed_at, :outcome, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create confirmation token: %w", err)
	}
	return nil
}

// GetByToken fetches a token by its opaque value.
func (r *TokenRepository) GetByToken(ctx context.Context, token string) (*models.ConfirmationToken, error) {
	query := fmt.Sprintf(`SELECT %s FROM confirmation_tokens WHERE token = $1`, tokenColumns)
	var record models.ConfirmationToken
	if err := r.db.GetContext(ctx, &record, query, token); err != nil {
		return nil, err
	}
	return &record, nil
}

// Consume marks an unconsumed, unexpired token consumed with the given
// outcome. Returns sql.ErrNoRows when the token was already consumed
// or is past expiry, so exactly one concurrent redemption succeeds.
func (r *TokenRepository) Consume(ctx context.Context, token, outcome string) error {
	now := time.Now().UTC()
	const query = `UPDATE confirmation_tokens
	SET consumed = TRUE, consumed_at = $1, outcome = $2
	WHERE token = $3 AND consumed = FALSE AND expires_at > $1`
	result, err := r.db.ExecContext(ctx, query, now, outcome, token)
	if err != nil {
		return fmt.Errorf("consume token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check consume rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkExpired records that an expired token was presented, so it is
// never silently reusable.
func (r *TokenRepository) MarkExpired(ctx context.Context, token string) error {
	const query = `UPDATE confirmation_tokens
	SET consumed = TRUE, consumed_at = $1, outcome = 'expired'
	WHERE token = $2 AND consumed = FALSE`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), token); err != nil {
		return fmt.Errorf("mark token expired: %w", err)
	}
	return nil
}
